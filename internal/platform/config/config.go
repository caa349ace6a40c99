// Package config loads hub configuration from YAML with environment
// variable overrides, following the same defaults-then-file-then-env
// layering used throughout the reference building-automation stack this
// project is patterned on.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the hub.
type Config struct {
	Site        SiteConfig        `yaml:"site"`
	Database    DatabaseConfig    `yaml:"database"`
	API         APIConfig         `yaml:"api"`
	WebSocket   WebSocketConfig   `yaml:"websocket"`
	Logging     LoggingConfig     `yaml:"logging"`
	Integration IntegrationConfig `yaml:"integration"`
}

// SiteConfig contains site-wide identity used in scene/group defaults.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings. An empty Path means
// persistence is skipped entirely: scenes live config-only and UI state
// is memory-only, matching §6's "DATABASE_URL unset" contract.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings, in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path                string `yaml:"path"`
	MaxMessageSize      int    `yaml:"max_message_size"`
	PingInterval        int    `yaml:"ping_interval"`
	PongTimeout         int    `yaml:"pong_timeout"`
	SendBufferSize      int    `yaml:"send_buffer_size"`
	BroadcastDebounceMS int    `yaml:"broadcast_debounce_ms"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// IntegrationConfig contains settings for the MQTT-transport integration
// adapter (the stand-in for vendor-specific drivers, which are out of
// scope per spec.md §1).
type IntegrationConfig struct {
	MQTT MQTTConfig `yaml:"mqtt"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Host      string              `yaml:"host"`
	Port      int                 `yaml:"port"`
	TLS       bool                `yaml:"tls"`
	ClientID  string              `yaml:"client_id"`
	Username  string              `yaml:"username"`
	Password  string              `yaml:"password"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTReconnectConfig contains MQTT reconnection backoff settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// Load reads configuration from a YAML file and applies environment
// variable overrides.
//
// Loading order: hardcoded defaults -> YAML file -> HEARTH_* environment
// variables -> Validate().
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{ID: "site-001", Name: "Hearth"},
		Database: DatabaseConfig{
			Path:        "./data/hearth.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:                "/ws",
			MaxMessageSize:      8192,
			PingInterval:        30,
			PongTimeout:         10,
			SendBufferSize:      256,
			BroadcastDebounceMS: 100,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Integration: IntegrationConfig{
			MQTT: MQTTConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "hearthd",
				QoS:      1,
				Reconnect: MQTTReconnectConfig{
					InitialDelay: 1,
					MaxDelay:     60,
				},
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the
// configuration. Variables follow the pattern HEARTH_SECTION_KEY.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("HEARTH_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("HEARTH_MQTT_HOST"); v != "" {
		cfg.Integration.MQTT.Host = v
	}
	if v := os.Getenv("HEARTH_MQTT_USERNAME"); v != "" {
		cfg.Integration.MQTT.Username = v
	}
	if v := os.Getenv("HEARTH_MQTT_PASSWORD"); v != "" {
		cfg.Integration.MQTT.Password = v
	}
}

// Validate checks the configuration for structural errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if c.Integration.MQTT.QoS < 0 || c.Integration.MQTT.QoS > 2 {
		errs = append(errs, "integration.mqtt.qos must be 0, 1, or 2")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// DBAvailable reports whether persistence is configured. Per spec.md §6,
// an unset DATABASE_URL (empty Database.Path) means the DB layer is
// skipped entirely.
func (c *Config) DBAvailable() bool {
	return c.Database.Path != ""
}
