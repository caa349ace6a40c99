// Package sqlite is the relational persistence layer: scenes, scene
// overrides and UI state (spec.md §6 "Persistence surface"). The
// specific driver is an implementation detail the dispatcher never
// sees — it only calls through the appstate.Persistence interface.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/homehub/hearth-core/internal/platform/config"
)

const (
	dirPermissions  = 0o750
	filePermissions = 0o600

	msPerSecond       = 1000
	connectionTimeout = 5 * time.Second
	connMaxIdleTime   = 30 * time.Minute
)

// DB wraps a sql.DB connection configured for SQLite's single-writer
// model (spec.md §5 "DB handle is a process-wide lazily-initialized
// pool").
type DB struct {
	*sql.DB
	path string
}

// Open connects to (creating if absent) the SQLite database at
// cfg.Path, applying WAL mode and busy-timeout pragmas, then runs
// migrations.
func Open(cfg config.DatabaseConfig) (*DB, error) {
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, dirPermissions); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	connStr := fmt.Sprintf("file:%s?_busy_timeout=%d&_foreign_keys=on",
		cfg.Path, cfg.BusyTimeout*msPerSecond)
	if cfg.WALMode {
		connStr += "&_journal_mode=WAL&_synchronous=NORMAL"
	}

	sqlDB, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	db := &DB{DB: sqlDB, path: cfg.Path}

	ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("verifying database connection: %w", err)
	}
	_ = os.Chmod(cfg.Path, filePermissions)

	if err := db.migrate(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return db, nil
}

func (db *DB) migrate(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS scenes (
	scene_id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	config_json TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS scene_overrides (
	integration_id TEXT NOT NULL,
	device_id TEXT NOT NULL,
	overridden BOOLEAN NOT NULL,
	PRIMARY KEY (integration_id, device_id)
);

CREATE TABLE IF NOT EXISTS ui_state (
	key TEXT PRIMARY KEY,
	value_json TEXT NOT NULL
);
`
	_, err := db.ExecContext(ctx, schema)
	return err
}

// HealthCheck reports whether the connection is usable, used by the
// /health/ready endpoint's db:"available"/"unavailable" field.
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, connectionTimeout)
	defer cancel()
	return db.PingContext(ctx)
}
