package sqlite

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/homehub/hearth-core/internal/core/devices"
)

// Available implements appstate.Persistence: a non-nil *DB is always
// available once Open has succeeded (spec.md §6's "unset DATABASE_URL"
// case is represented by a nil Persistence, not by this method).
func (db *DB) Available() bool {
	return db != nil
}

// GetUIState implements appstate.Persistence.
func (db *DB) GetUIState(ctx context.Context) (map[string]any, error) {
	rows, err := db.QueryContext(ctx, `SELECT key, value_json FROM ui_state`)
	if err != nil {
		return nil, fmt.Errorf("loading ui state: %w", err)
	}
	defer rows.Close()

	out := make(map[string]any)
	for rows.Next() {
		var key, valueJSON string
		if err := rows.Scan(&key, &valueJSON); err != nil {
			return nil, fmt.Errorf("scanning ui state row: %w", err)
		}
		var v any
		if err := json.Unmarshal([]byte(valueJSON), &v); err != nil {
			return nil, fmt.Errorf("unmarshal ui state %s: %w", key, err)
		}
		out[key] = v
	}
	return out, rows.Err()
}

// StoreUIState implements appstate.Persistence.
func (db *DB) StoreUIState(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal ui state %s: %w", key, err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO ui_state (key, value_json) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value_json = excluded.value_json`,
		key, string(data))
	if err != nil {
		return fmt.Errorf("storing ui state %s: %w", key, err)
	}
	return nil
}

// StoreSceneOverride implements appstate.Persistence. Storing the same
// value twice is indistinguishable from storing it once (spec.md §8).
func (db *DB) StoreSceneOverride(ctx context.Context, key devices.Key, on bool) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO scene_overrides (integration_id, device_id, overridden) VALUES (?, ?, ?)
		ON CONFLICT(integration_id, device_id) DO UPDATE SET overridden = excluded.overridden`,
		key.IntegrationID, key.DeviceID, on)
	if err != nil {
		return fmt.Errorf("storing scene override %s: %w", key.String(), err)
	}
	return nil
}

// LoadSceneOverrides reads every persisted override flag, for startup.
func (db *DB) LoadSceneOverrides(ctx context.Context) (map[devices.Key]bool, error) {
	rows, err := db.QueryContext(ctx, `SELECT integration_id, device_id, overridden FROM scene_overrides`)
	if err != nil {
		return nil, fmt.Errorf("loading scene overrides: %w", err)
	}
	defer rows.Close()

	out := make(map[devices.Key]bool)
	for rows.Next() {
		var integrationID, deviceID string
		var on bool
		if err := rows.Scan(&integrationID, &deviceID, &on); err != nil {
			return nil, fmt.Errorf("scanning scene override row: %w", err)
		}
		out[devices.Key{IntegrationID: integrationID, DeviceID: deviceID}] = on
	}
	return out, rows.Err()
}
