// Package scenes materializes scene definitions (config-file and
// database-sourced) into flattened per-device target state, resolving
// DeviceLink and SceneLink bindings recursively with a cycle guard
// (spec.md §4.4).
package scenes

import (
	"github.com/homehub/hearth-core/internal/core/color"
	"github.com/homehub/hearth-core/internal/core/devices"
)

// DeviceState is the fully-resolved state a scene assigns to a device.
type DeviceState struct {
	Power        bool
	Brightness   float64
	Color        color.Color
	TransitionMS int
}

// BindingKind discriminates Binding's three variants (spec.md §3).
type BindingKind string

const (
	BindingState      BindingKind = "state"
	BindingDeviceLink BindingKind = "device_link"
	BindingSceneLink  BindingKind = "scene_link"
)

// Binding is one device or group entry inside a Scene's definition.
type Binding struct {
	Kind BindingKind

	// BindingState
	State DeviceState

	// BindingDeviceLink
	LinkDevice     devices.Key
	LinkBrightness *float64 // optional override distinct from the source device's own brightness

	// BindingSceneLink
	LinkScene string
}

// Config is a scene's static definition: direct device bindings plus
// group bindings that expand to every member of the named group.
type Config struct {
	ID     string
	Name   string
	Source Source

	Devices map[devices.Key]Binding
	Groups  map[string]Binding
}

// SearchConfig is a scene definition as written in a config file: its
// device bindings are keyed by display name rather than DeviceKey,
// since a config author rarely knows integration-assigned device ids.
// Names resolve against the live device table once every integration
// has reported its initial set.
type SearchConfig struct {
	ID     string
	Name   string
	Groups map[string]Binding

	Devices map[string]Binding // device display name -> binding
}

// Source distinguishes config-file scenes (never touched by
// refresh_db_scenes) from database-sourced ones.
type Source int

const (
	SourceFile Source = iota
	SourceDB
)

// GroupExpander is the subset of groups.Groups scenes needs: resolving a
// group binding to its member keys.
type GroupExpander interface {
	Members(groupID string) ([]devices.Key, bool)
}

// DeviceProjectedStater is the subset of devices state scenes needs to
// resolve a DeviceLink: the target device's current observed state.
type DeviceProjectedStater interface {
	Get(key devices.Key) (devices.Device, bool)
}
