package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("writing temp config: %v", err)
	}
	return path
}

func TestLoad_AppliesFileOverridesOnTopOfDefaults(t *testing.T) {
	path := writeTempConfig(t, `
site:
  id: home-001
api:
  port: 9090
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Site.ID != "home-001" {
		t.Errorf("expected file override for site.id, got %q", cfg.Site.ID)
	}
	if cfg.API.Port != 9090 {
		t.Errorf("expected file override for api.port, got %d", cfg.API.Port)
	}
	// Untouched defaults should survive.
	if cfg.WebSocket.Path != "/ws" {
		t.Errorf("expected default websocket path to survive, got %q", cfg.WebSocket.Path)
	}
}

func TestLoad_EnvOverridesTakePrecedenceOverFile(t *testing.T) {
	path := writeTempConfig(t, `
site:
  id: home-001
integration:
  mqtt:
    host: file-broker
`)
	t.Setenv("HEARTH_MQTT_HOST", "env-broker")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Integration.MQTT.Host != "env-broker" {
		t.Errorf("expected env override to win, got %q", cfg.Integration.MQTT.Host)
	}
}

func TestLoad_MissingFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

func TestLoad_InvalidPortFailsValidation(t *testing.T) {
	path := writeTempConfig(t, `
site:
  id: home-001
api:
  port: 99999
`)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected validation to reject an out-of-range port")
	}
}

func TestDBAvailable_EmptyPathMeansUnavailable(t *testing.T) {
	cfg := &Config{Database: DatabaseConfig{Path: ""}}
	if cfg.DBAvailable() {
		t.Fatal("expected an empty database path to report unavailable")
	}

	cfg.Database.Path = "./data/hearth.db"
	if !cfg.DBAvailable() {
		t.Fatal("expected a non-empty database path to report available")
	}
}

func TestDatabaseURL_EnvOverridesPath(t *testing.T) {
	path := writeTempConfig(t, "site:\n  id: home-001\n")
	t.Setenv("DATABASE_URL", "/tmp/custom.db")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Database.Path != "/tmp/custom.db" {
		t.Errorf("expected DATABASE_URL override, got %q", cfg.Database.Path)
	}
}
