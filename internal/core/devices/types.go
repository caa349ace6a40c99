// Package devices holds the authoritative device table: reconciliation
// between raw integration reports and the scene/override-projected state
// clients actually see, plus the scene activation, cycling and dimming
// commands that operate on it.
package devices

import (
	"errors"
	"fmt"

	"github.com/homehub/hearth-core/internal/core/color"
)

// Sentinel errors, checked with errors.Is at call sites.
var (
	ErrDeviceNotFound = errors.New("device not found")
	ErrNotManaged     = errors.New("device is not a managed (light) device")
)

// Key is the composite identity of a device: (integration_id, device_id).
// Two devices sharing a Key are the same device (spec.md §3, I6).
type Key struct {
	IntegrationID string
	DeviceID      string
}

// String renders the key in the wire form "<integration>/<device_id>"
// used throughout the WebSocket protocol and MQTT topics.
func (k Key) String() string {
	return k.IntegrationID + "/" + k.DeviceID
}

// SceneBinding records which scene (and which activation of it) a device
// is currently projecting state from.
type SceneBinding struct {
	SceneID      string
	ActivationID string
}

// SceneRef is one step of a scene cycle: the scene to advance to and
// whether overridden devices are excluded from that step entirely
// (rather than just keeping their user-set state).
type SceneRef struct {
	SceneID    string
	SkipLocked bool
}

// Light is the managed-device payload: power, brightness and color.
type Light struct {
	Power      bool
	Brightness float64 // 0..1
	Color      color.Color
	Capability Capability
}

// Capability describes what a managed device can be asked to do, and
// the color mode its integration prefers commands in — recorded from
// the integration's own reports and applied to outbound state before
// it reaches the integration (spec.md §3, §4.1).
type Capability struct {
	Dimmable           bool
	ColorCapable       bool
	PreferredColorMode color.Mode
}

// Data is the device's type-specific payload. Exactly one of Light or
// SensorValue is meaningful, selected by Kind.
type Data struct {
	Kind        Kind
	Light       Light
	SensorValue any // opaque JSON-shaped value for sensor devices
}

// Kind discriminates Device.Data.
type Kind string

const (
	KindManaged Kind = "managed" // light/color/brightness/power/capabilities
	KindSensor  Kind = "sensor"  // opaque read-only value
)

// Device is the hub's model of a single integration-reported device.
//
// Raw holds the last report from the integration, pre-projection.
// Data holds the projected (observed) state: what clients see, and what
// is shown in broadcasts. The two are equal except while a scene binding
// or override causes Data to diverge from the raw report.
type Device struct {
	Key  Key
	Name string

	Data Data
	Raw  Data

	SceneBinding *SceneBinding
}

// Clone returns a deep copy so callers can hold a Device across mutation
// boundaries without aliasing the table's own copy.
func (d Device) Clone() Device {
	out := d
	if d.SceneBinding != nil {
		b := *d.SceneBinding
		out.SceneBinding = &b
	}
	return out
}

// IsManaged reports whether this device carries a Light payload.
func (d Device) IsManaged() bool {
	return d.Data.Kind == KindManaged
}

// State is an ordered mapping from Key to Device. Iteration order is
// insertion order so broadcasts are deterministic (spec.md §3).
type State struct {
	order []Key
	byKey map[Key]Device
}

// NewState constructs an empty device table.
func NewState() *State {
	return &State{byKey: make(map[Key]Device)}
}

// Get returns a copy of the device at key, if present.
func (s *State) Get(key Key) (Device, bool) {
	d, ok := s.byKey[key]
	if !ok {
		return Device{}, false
	}
	return d.Clone(), true
}

// Put inserts or replaces the device at its own key, preserving
// insertion order for new keys.
func (s *State) Put(d Device) {
	if _, exists := s.byKey[d.Key]; !exists {
		s.order = append(s.order, d.Key)
	}
	s.byKey[d.Key] = d.Clone()
}

// Delete removes the device at key, if present.
func (s *State) Delete(key Key) {
	if _, ok := s.byKey[key]; !ok {
		return
	}
	delete(s.byKey, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// All returns a snapshot slice of all devices in insertion order.
func (s *State) All() []Device {
	out := make([]Device, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, s.byKey[k].Clone())
	}
	return out
}

// Len returns the number of devices in the table.
func (s *State) Len() int {
	return len(s.order)
}

// MustGet is a convenience for internal call sites that have already
// established the key exists; it wraps ErrDeviceNotFound with the key
// for diagnostics when it hasn't.
func (s *State) MustGet(key Key) (Device, error) {
	d, ok := s.Get(key)
	if !ok {
		return Device{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, key)
	}
	return d, nil
}
