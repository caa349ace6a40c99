package devices

import (
	"fmt"

	"github.com/google/uuid"
)

// Logger is the minimal interface every core component depends on,
// satisfied by *internal/platform/logging.Logger or a no-op in tests.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Change describes a before/after pair produced by a mutation. The
// dispatcher translates a non-nil Change into an InternalStateUpdate
// event; Component itself never touches the event bus (see eventbus
// package and appstate's dispatcher for why).
type Change struct {
	Old, New Device
}

// Component is the authoritative device table plus the operations that
// mutate it: external reconciliation, direct sets, scene activation,
// cycling and dimming (spec.md §4.3).
type Component struct {
	state *State
	log   Logger
}

// New constructs an empty Component. A nil logger is replaced with a
// no-op so callers (and tests) never need to supply one.
func New(log Logger) *Component {
	if log == nil {
		log = noopLogger{}
	}
	return &Component{state: NewState(), log: log}
}

// Snapshot returns every device in insertion order, for broadcast and
// expr-context construction.
func (c *Component) Snapshot() []Device {
	return c.state.All()
}

// Get returns a copy of the device at key.
func (c *Component) Get(key Key) (Device, bool) {
	return c.state.Get(key)
}

// HandleExternalStateUpdate merges an integration's report of device d
// into the table. If d is currently bound to a live scene (and not
// overridden), the observed Data is the scene's projection rather than
// the raw report; the raw report is retained for diffing regardless.
//
// Returns the resulting Change if the *projected* (observed) state
// differs from what was previously observed — per spec.md §9's Open
// Question resolution, a report that only changes Raw without changing
// the projected view never produces an InternalStateUpdate, so
// integrations that echo back their own writes don't create feedback.
func (c *Component) HandleExternalStateUpdate(d Device, proj SceneProjector) (*Change, error) {
	prev, existed := c.state.Get(d.Key)

	next := d
	next.Raw = d.Data
	next.SceneBinding = d.SceneBinding
	if existed && prev.SceneBinding != nil {
		next.SceneBinding = prev.SceneBinding
	}

	if next.SceneBinding != nil && proj != nil && !proj.HasOverride(next.Key) {
		if projected, ok := proj.Project(next.SceneBinding.SceneID, next.Key); ok {
			next.Data = withCapability(projected, d.Data)
		}
	}

	c.state.Put(next)

	if existed && dataEqual(prev.Data, next.Data) {
		return nil, nil
	}
	return &Change{Old: prev, New: next}, nil
}

// SetState authoritatively sets a device's observed state. emitInternal
// controls whether the caller wants a Change back for InternalStateUpdate
// purposes: when false the device is stored and no Change is returned;
// when true a Change is returned only if the observed Data differs.
func (c *Component) SetState(d Device, emitInternal bool) (*Change, error) {
	prev, existed := c.state.Get(d.Key)
	// Capability is reported by the integration, not by whoever is
	// setting state; a set that doesn't carry one keeps the recorded one.
	if existed && prev.IsManaged() && d.Data.Kind == KindManaged && d.Data.Light.Capability == (Capability{}) {
		d.Data.Light.Capability = prev.Data.Light.Capability
	}
	c.state.Put(d)

	if !emitInternal {
		return nil, nil
	}
	if dataEqual(prev.Data, d.Data) {
		return nil, nil
	}
	return &Change{Old: prev, New: d}, nil
}

// Invalidate re-projects every device currently bound to one of the
// affected scenes (invalidation cascade step 4, spec.md §4.2).
func (c *Component) Invalidate(affectedScenes map[string]struct{}, proj SceneProjector) []Change {
	var changes []Change
	for _, d := range c.state.All() {
		if d.SceneBinding == nil {
			continue
		}
		if _, affected := affectedScenes[d.SceneBinding.SceneID]; !affected {
			continue
		}
		if proj.HasOverride(d.Key) {
			continue
		}
		projected, ok := proj.Project(d.SceneBinding.SceneID, d.Key)
		if !ok {
			continue
		}
		prev := d
		next := d
		next.Data = withCapability(projected, d.Data)
		if dataEqual(prev.Data, next.Data) {
			continue
		}
		c.state.Put(next)
		changes = append(changes, Change{Old: prev, New: next})
	}
	return changes
}

// withCapability carries a device's reported capability through a scene
// projection, which describes target state only.
func withCapability(projected, reported Data) Data {
	if projected.Kind == KindManaged && reported.Kind == KindManaged {
		projected.Light.Capability = reported.Light.Capability
	}
	return projected
}

// targetKeys resolves the explicit/group-expanded/scene-wide device set
// used by ActivateScene, CycleScenes and Dim.
func (c *Component) targetKeys(deviceKeys, groupKeys []Key, sceneID string, groups GroupExpander, proj SceneProjector) []Key {
	seen := make(map[Key]struct{})
	var out []Key
	add := func(k Key) {
		if _, ok := seen[k]; ok {
			return
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}

	for _, k := range deviceKeys {
		add(k)
	}
	for _, gid := range groupIDs(groupKeys) {
		if groups == nil {
			continue
		}
		members, _ := groups.Members(gid)
		for _, k := range members {
			add(k)
		}
	}

	if len(out) == 0 && sceneID != "" && proj != nil {
		for _, k := range proj.DevicesInScene(sceneID) {
			add(k)
		}
	}
	return out
}

// groupIDs recovers group ids out of a []Key parameter used as a loose
// carrier for caller-supplied group identifiers (IntegrationID unused).
func groupIDs(groupKeys []Key) []string {
	ids := make([]string, 0, len(groupKeys))
	for _, k := range groupKeys {
		ids = append(ids, k.DeviceID)
	}
	return ids
}

// ActivateScene resolves the target device set (explicit keys ∪ group
// expansion; if both are empty, every device the scene binds) and
// projects each through scenes, assigning a fresh activation id.
//
// An overridden device never has the scene's projection asserted over
// its user-set state. skipLocked decides how far the skip goes: true
// excludes the device from the activation entirely, false still moves
// its scene binding to the new activation (so cycling and a later
// override release see it as part of this scene) while leaving its
// observed state untouched.
func (c *Component) ActivateScene(sceneID string, deviceKeys, groupKeys []Key, skipLocked bool, groups GroupExpander, proj SceneProjector) ([]Change, error) {
	if proj == nil {
		return nil, fmt.Errorf("activate scene %s: %w", sceneID, ErrNotManaged)
	}

	targets := c.targetKeys(deviceKeys, groupKeys, sceneID, groups, proj)

	activationID := uuid.NewString()
	var changes []Change
	for _, key := range targets {
		locked := proj.HasOverride(key)
		if skipLocked && locked {
			continue
		}

		projected, ok := proj.Project(sceneID, key)
		if !ok {
			continue
		}

		prev, existed := c.state.Get(key)
		if !existed && locked {
			continue
		}
		next := prev
		if !existed {
			next = Device{Key: key}
		}
		if !locked {
			next.Data = withCapability(projected, prev.Data)
		}
		next.SceneBinding = &SceneBinding{SceneID: sceneID, ActivationID: activationID}

		c.state.Put(next)
		if !existed || !dataEqual(prev.Data, next.Data) {
			changes = append(changes, Change{Old: prev, New: next})
		}
	}
	return changes, nil
}

// CycleScenes advances the target set to the next scene in refs
// relative to each device's currently bound scene. nowrap stops at the
// last scene in the list instead of wrapping to the first. Each step
// carries its own SkipLocked flag with the same semantics as
// ActivateScene's.
func (c *Component) CycleScenes(refs []SceneRef, nowrap bool, deviceKeys, groupKeys []Key, groups GroupExpander, proj SceneProjector) ([]Change, error) {
	if len(refs) == 0 {
		return nil, nil
	}

	targets := c.targetKeys(deviceKeys, groupKeys, "", groups, proj)
	if len(targets) == 0 {
		for _, ref := range refs {
			targets = append(targets, proj.DevicesInScene(ref.SceneID)...)
		}
	}

	var changes []Change
	for _, key := range targets {
		locked := proj.HasOverride(key)
		d, existed := c.state.Get(key)

		idx := -1
		if d.SceneBinding != nil {
			for i, ref := range refs {
				if ref.SceneID == d.SceneBinding.SceneID {
					idx = i
					break
				}
			}
		}

		next := idx + 1
		if next >= len(refs) {
			if nowrap {
				next = len(refs) - 1
			} else {
				next = 0
			}
		}
		target := refs[next]
		if locked && (target.SkipLocked || !existed) {
			continue
		}

		projected, ok := proj.Project(target.SceneID, key)
		if !ok {
			continue
		}

		prev := d
		newDev := d
		if !existed {
			newDev.Key = key
		}
		if !locked {
			newDev.Data = withCapability(projected, d.Data)
		}
		if existed && d.SceneBinding != nil && d.SceneBinding.SceneID == target.SceneID && dataEqual(prev.Data, newDev.Data) {
			continue
		}
		newDev.SceneBinding = &SceneBinding{SceneID: target.SceneID, ActivationID: uuid.NewString()}

		c.state.Put(newDev)
		if !existed || !dataEqual(prev.Data, newDev.Data) {
			changes = append(changes, Change{Old: prev, New: newDev})
		}
	}
	return changes, nil
}

// Dim clamps brightness into [0,1] for every targeted managed device;
// step may be negative. Devices already at a boundary stay there
// (underflow/overflow saturates rather than wrapping or powering off).
func (c *Component) Dim(deviceKeys, groupKeys []Key, step float64, groups GroupExpander) ([]Change, error) {
	targets := c.targetKeys(deviceKeys, groupKeys, "", groups, nil)

	var changes []Change
	for _, key := range targets {
		d, ok := c.state.Get(key)
		if !ok || !d.IsManaged() {
			continue
		}
		prev := d
		next := d
		b := next.Data.Light.Brightness + step
		if b < 0 {
			b = 0
		}
		if b > 1 {
			b = 1
		}
		next.Data.Light.Brightness = b

		if b == prev.Data.Light.Brightness {
			continue
		}
		c.state.Put(next)
		changes = append(changes, Change{Old: prev, New: next})
	}
	return changes, nil
}

func dataEqual(a, b Data) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindManaged:
		return a.Light.Power == b.Light.Power &&
			a.Light.Brightness == b.Light.Brightness &&
			a.Light.Color == b.Light.Color
	default:
		return fmt.Sprint(a.SensorValue) == fmt.Sprint(b.SensorValue)
	}
}
