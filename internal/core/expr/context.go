// Package expr is a pure functional evaluator over a read-only snapshot
// of devices, groups and scenes. It has no side effects; evaluating an
// action expression returns a list of Intents for the caller to enqueue
// rather than enqueuing anything itself (spec.md §4.6).
package expr

import (
	"time"

	"github.com/homehub/hearth-core/internal/core/devices"
	"github.com/homehub/hearth-core/internal/core/scenes"
)

// Context is the read-only snapshot produced after each mutation and
// consumed by condition and action evaluation.
type Context struct {
	Devices map[devices.Key]devices.Device
	Groups  map[string][]devices.Key
	Scenes  map[string]map[devices.Key]scenes.DeviceState
	Now     time.Time
}

// DeviceSource is the subset of devices.Component needed to build a
// Context snapshot.
type DeviceSource interface {
	Snapshot() []devices.Device
}

// GroupSource is the subset of groups.Groups needed to build a Context.
type GroupSource interface {
	Membership() map[string][]devices.Key
}

// SceneSource is the subset of scenes.Scenes needed to build a Context.
type SceneSource interface {
	FlattenedScenes() map[string]map[devices.Key]scenes.DeviceState
}

// Now is swappable in tests; defaults to time.Now.
var Now = time.Now

// Build constructs a fresh Context from the current component state
// (invalidation cascade steps 2 and 5, spec.md §4.2).
func Build(d DeviceSource, g GroupSource, s SceneSource) Context {
	devMap := make(map[devices.Key]devices.Device)
	for _, dev := range d.Snapshot() {
		devMap[dev.Key] = dev
	}
	return Context{
		Devices: devMap,
		Groups:  g.Membership(),
		Scenes:  s.FlattenedScenes(),
		Now:     Now(),
	}
}

// Device looks up a device by key in the snapshot.
func (c Context) Device(key devices.Key) (devices.Device, bool) {
	d, ok := c.Devices[key]
	return d, ok
}

// GroupMembers looks up a group's flattened membership in the snapshot.
func (c Context) GroupMembers(groupID string) ([]devices.Key, bool) {
	m, ok := c.Groups[groupID]
	return m, ok
}

// SceneHasDevice reports whether a scene defines state for key.
func (c Context) SceneHasDevice(sceneID string, key devices.Key) bool {
	m, ok := c.Scenes[sceneID]
	if !ok {
		return false
	}
	_, ok = m[key]
	return ok
}
