package appstate

import (
	"encoding/json"
	"fmt"

	"github.com/homehub/hearth-core/internal/core/color"
	"github.com/homehub/hearth-core/internal/core/devices"
	"github.com/homehub/hearth-core/internal/core/scenes"
)

// wireDevice is a device as shown to clients: colors always normalized
// to Hs regardless of the integration's preferred mode (spec.md §6).
type wireDevice struct {
	Name string `json:"name"`
	Kind string `json:"kind"`

	Power      bool    `json:"power,omitempty"`
	Brightness float64 `json:"brightness,omitempty"`
	Hue        float64 `json:"hue,omitempty"`
	Saturation float64 `json:"saturation,omitempty"`

	SensorValue any `json:"sensor_value,omitempty"`

	SceneBinding *wireSceneBinding `json:"scene_binding,omitempty"`
}

type wireSceneBinding struct {
	SceneID      string `json:"scene_id"`
	ActivationID string `json:"activation_id"`
}

type wireSceneDeviceState struct {
	Power        bool    `json:"power"`
	Brightness   float64 `json:"brightness"`
	Hue          float64 `json:"hue"`
	Saturation   float64 `json:"saturation"`
	TransitionMS int     `json:"transition_ms,omitempty"`
}

type statePayload struct {
	Type    string                                     `json:"type"`
	Devices map[string]wireDevice                      `json:"devices"`
	Scenes  map[string]map[string]wireSceneDeviceState `json:"scenes"`
	Groups  map[string][]string                        `json:"groups"`
	UIState map[string]any                             `json:"ui_state"`
}

func toWireDevice(d devices.Device) wireDevice {
	w := wireDevice{Name: d.Name, Kind: string(d.Data.Kind)}
	if d.Data.Kind == devices.KindSensor {
		w.SensorValue = d.Data.SensorValue
	} else {
		hs := d.Data.Light.Color.ToMode(color.ModeHs)
		w.Power = d.Data.Light.Power
		w.Brightness = d.Data.Light.Brightness
		w.Hue = hs.Hue
		w.Saturation = hs.Saturation
	}
	if d.SceneBinding != nil {
		w.SceneBinding = &wireSceneBinding{SceneID: d.SceneBinding.SceneID, ActivationID: d.SceneBinding.ActivationID}
	}
	return w
}

func toWireSceneDeviceState(s scenes.DeviceState) wireSceneDeviceState {
	hs := s.Color.ToMode(color.ModeHs)
	return wireSceneDeviceState{
		Power:        s.Power,
		Brightness:   s.Brightness,
		Hue:          hs.Hue,
		Saturation:   hs.Saturation,
		TransitionMS: s.TransitionMS,
	}
}

// StateSnapshot builds the same wire State message a debounced
// broadcast would send, for unicasting to a single newly connected
// client (spec.md §4.9's `send(Some(id), msg)`) rather than waiting for
// the next coalesced broadcast to reach everyone.
func (a *AppState) StateSnapshot() ([]byte, error) {
	return a.buildBroadcastPayload()
}

// buildBroadcastPayload snapshots every substate into the wire State
// message (spec.md §6).
func (a *AppState) buildBroadcastPayload() ([]byte, error) {
	devs := make(map[string]wireDevice)
	for _, d := range a.Devices.Snapshot() {
		devs[d.Key.String()] = toWireDevice(d)
	}

	sceneMap := make(map[string]map[string]wireSceneDeviceState)
	for sceneID, byKey := range a.Scenes.FlattenedScenes() {
		inner := make(map[string]wireSceneDeviceState, len(byKey))
		for key, st := range byKey {
			inner[key.String()] = toWireSceneDeviceState(st)
		}
		sceneMap[sceneID] = inner
	}

	groupMap := make(map[string][]string)
	for groupID, keys := range a.Groups.Membership() {
		strs := make([]string, len(keys))
		for i, k := range keys {
			strs[i] = k.String()
		}
		groupMap[groupID] = strs
	}

	payload := statePayload{
		Type:    "State",
		Devices: devs,
		Scenes:  sceneMap,
		Groups:  groupMap,
		UIState: a.UI.Snapshot(),
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal state payload: %w", err)
	}
	return data, nil
}
