package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/homehub/hearth-core/internal/core/color"
	"github.com/homehub/hearth-core/internal/core/devices"
	"github.com/homehub/hearth-core/internal/core/scenes"
)

// sceneDoc is the JSON shape scenes.Config is marshaled to/from for
// storage, since Go map keys can't be struct types the way
// map[devices.Key]Binding is modeled in-memory.
type sceneDoc struct {
	Devices map[string]bindingDoc `json:"devices,omitempty"`
	Groups  map[string]bindingDoc `json:"groups,omitempty"`
}

type bindingDoc struct {
	Kind string `json:"kind"`

	Power        bool    `json:"power,omitempty"`
	Brightness   float64 `json:"brightness,omitempty"`
	ColorMode    string  `json:"color_mode,omitempty"`
	Hue          float64 `json:"hue,omitempty"`
	Saturation   float64 `json:"saturation,omitempty"`
	TransitionMS int     `json:"transition_ms,omitempty"`

	LinkIntegration string   `json:"link_integration,omitempty"`
	LinkDeviceID    string   `json:"link_device_id,omitempty"`
	LinkBrightness  *float64 `json:"link_brightness,omitempty"`

	LinkScene string `json:"link_scene,omitempty"`
}

func toBindingDoc(b scenes.Binding) bindingDoc {
	switch b.Kind {
	case scenes.BindingState:
		return bindingDoc{
			Kind:         string(b.Kind),
			Power:        b.State.Power,
			Brightness:   b.State.Brightness,
			ColorMode:    string(b.State.Color.Mode),
			Hue:          b.State.Color.Hue,
			Saturation:   b.State.Color.Saturation,
			TransitionMS: b.State.TransitionMS,
		}
	case scenes.BindingDeviceLink:
		return bindingDoc{
			Kind:            string(b.Kind),
			LinkIntegration: b.LinkDevice.IntegrationID,
			LinkDeviceID:    b.LinkDevice.DeviceID,
			LinkBrightness:  b.LinkBrightness,
		}
	case scenes.BindingSceneLink:
		return bindingDoc{Kind: string(b.Kind), LinkScene: b.LinkScene}
	default:
		return bindingDoc{}
	}
}

func fromBindingDoc(d bindingDoc) scenes.Binding {
	switch scenes.BindingKind(d.Kind) {
	case scenes.BindingState:
		return scenes.Binding{
			Kind: scenes.BindingState,
			State: scenes.DeviceState{
				Power:        d.Power,
				Brightness:   d.Brightness,
				Color:        color.Color{Mode: color.Mode(d.ColorMode), Hue: d.Hue, Saturation: d.Saturation},
				TransitionMS: d.TransitionMS,
			},
		}
	case scenes.BindingDeviceLink:
		return scenes.Binding{
			Kind:           scenes.BindingDeviceLink,
			LinkDevice:     devices.Key{IntegrationID: d.LinkIntegration, DeviceID: d.LinkDeviceID},
			LinkBrightness: d.LinkBrightness,
		}
	case scenes.BindingSceneLink:
		return scenes.Binding{Kind: scenes.BindingSceneLink, LinkScene: d.LinkScene}
	default:
		return scenes.Binding{}
	}
}

// StoreScene implements appstate.Persistence.
func (db *DB) StoreScene(ctx context.Context, cfg scenes.Config) error {
	doc := sceneDoc{
		Devices: make(map[string]bindingDoc, len(cfg.Devices)),
		Groups:  make(map[string]bindingDoc, len(cfg.Groups)),
	}
	for k, b := range cfg.Devices {
		doc.Devices[k.String()] = toBindingDoc(b)
	}
	for g, b := range cfg.Groups {
		doc.Groups[g] = toBindingDoc(b)
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal scene config: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO scenes (scene_id, name, config_json, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(scene_id) DO UPDATE SET
			name = excluded.name,
			config_json = excluded.config_json,
			updated_at = CURRENT_TIMESTAMP`,
		cfg.ID, cfg.Name, string(data))
	if err != nil {
		return fmt.Errorf("storing scene %s: %w", cfg.ID, err)
	}
	return nil
}

// DeleteScene implements appstate.Persistence. Deleting an id that
// isn't present is not an error (idempotent per spec.md §6).
func (db *DB) DeleteScene(ctx context.Context, sceneID string) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM scenes WHERE scene_id = ?`, sceneID); err != nil {
		return fmt.Errorf("deleting scene %s: %w", sceneID, err)
	}
	return nil
}

// EditScene implements appstate.Persistence.
func (db *DB) EditScene(ctx context.Context, sceneID, name string) error {
	if _, err := db.ExecContext(ctx, `UPDATE scenes SET name = ? WHERE scene_id = ?`, name, sceneID); err != nil {
		return fmt.Errorf("renaming scene %s: %w", sceneID, err)
	}
	return nil
}

// LoadScenes reads every database-sourced scene, for Scenes.RefreshDB
// at startup.
func (db *DB) LoadScenes(ctx context.Context) ([]scenes.Config, error) {
	rows, err := db.QueryContext(ctx, `SELECT scene_id, name, config_json FROM scenes`)
	if err != nil {
		return nil, fmt.Errorf("loading scenes: %w", err)
	}
	defer rows.Close()

	var out []scenes.Config
	for rows.Next() {
		var id, name, configJSON string
		if err := rows.Scan(&id, &name, &configJSON); err != nil {
			return nil, fmt.Errorf("scanning scene row: %w", err)
		}

		var doc sceneDoc
		if err := json.Unmarshal([]byte(configJSON), &doc); err != nil {
			return nil, fmt.Errorf("unmarshal scene %s config: %w", id, err)
		}

		cfg := scenes.Config{
			ID:      id,
			Name:    name,
			Source:  scenes.SourceDB,
			Devices: make(map[devices.Key]scenes.Binding, len(doc.Devices)),
			Groups:  make(map[string]scenes.Binding, len(doc.Groups)),
		}
		for keyStr, bd := range doc.Devices {
			key, err := parseDeviceKey(keyStr)
			if err != nil {
				return nil, fmt.Errorf("scene %s: %w", id, err)
			}
			cfg.Devices[key] = fromBindingDoc(bd)
		}
		for groupID, bd := range doc.Groups {
			cfg.Groups[groupID] = fromBindingDoc(bd)
		}
		out = append(out, cfg)
	}
	return out, rows.Err()
}

func parseDeviceKey(s string) (devices.Key, error) {
	integration, deviceID, ok := strings.Cut(s, "/")
	if !ok {
		return devices.Key{}, fmt.Errorf("malformed device key %q", s)
	}
	return devices.Key{IntegrationID: integration, DeviceID: deviceID}, nil
}
