package scenes

import (
	"fmt"
	"sync"

	"github.com/homehub/hearth-core/internal/core/devices"
)

type logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// Scenes holds scene definitions and their materialized flattening. It
// implements devices.SceneProjector so the devices Component can resolve
// scene bindings without importing this package.
type Scenes struct {
	mu sync.RWMutex

	configs   map[string]Config
	flat      map[string]map[devices.Key]DeviceState
	overrides map[devices.Key]bool
	search    []SearchConfig

	groups  GroupExpander
	devices DeviceProjectedStater
	log     logger
}

// New constructs Scenes from their static (config-file) definitions.
// Database-sourced scenes are added later via RefreshDB.
func New(configs []Config, groups GroupExpander, devs DeviceProjectedStater, log logger) *Scenes {
	if log == nil {
		log = noopLogger{}
	}
	s := &Scenes{
		configs:   make(map[string]Config, len(configs)),
		flat:      make(map[string]map[devices.Key]DeviceState),
		overrides: make(map[devices.Key]bool),
		groups:    groups,
		devices:   devs,
		log:       log,
	}
	for _, c := range configs {
		s.configs[c.ID] = c
	}
	s.ForceInvalidate()
	return s
}

// ForceInvalidate fully recomputes every scene's flattening.
func (s *Scenes) ForceInvalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.configs {
		s.flat[id] = s.flattenLocked(id)
	}
}

// Invalidate recomputes flattened state only for scenes that bind the
// changed device (directly or via a group it belongs to), returning
// their ids (invalidation cascade step 3, spec.md §4.2).
func (s *Scenes) Invalidate(changed devices.Key) map[string]struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	affected := make(map[string]struct{})
	for id, cfg := range s.configs {
		if s.touches(cfg, changed, map[string]struct{}{id: {}}) {
			s.flat[id] = s.flattenLocked(id)
			affected[id] = struct{}{}
		}
	}
	return affected
}

// touches reports whether a scene's flattening depends on key: a direct
// or group-expanded binding for it, a DeviceLink targeting it, or a
// SceneLink (followed transitively) into a scene that touches it.
// Caller holds s.mu.
func (s *Scenes) touches(cfg Config, key devices.Key, visited map[string]struct{}) bool {
	if _, ok := cfg.Devices[key]; ok {
		return true
	}
	for groupID := range cfg.Groups {
		if s.groups == nil {
			continue
		}
		members, _ := s.groups.Members(groupID)
		for _, m := range members {
			if m == key {
				return true
			}
		}
	}

	depends := func(b Binding) bool {
		switch b.Kind {
		case BindingDeviceLink:
			return b.LinkDevice == key
		case BindingSceneLink:
			if _, seen := visited[b.LinkScene]; seen {
				return false
			}
			visited[b.LinkScene] = struct{}{}
			linked, ok := s.configs[b.LinkScene]
			return ok && s.touches(linked, key, visited)
		default:
			return false
		}
	}
	for _, b := range cfg.Devices {
		if depends(b) {
			return true
		}
	}
	for _, b := range cfg.Groups {
		if depends(b) {
			return true
		}
	}
	return false
}

// flattenLocked recomputes the full DeviceKey -> DeviceState map for a
// single scene. Caller holds s.mu.
func (s *Scenes) flattenLocked(sceneID string) map[devices.Key]DeviceState {
	cfg, ok := s.configs[sceneID]
	if !ok {
		return nil
	}

	keys := make(map[devices.Key]struct{})
	for k := range cfg.Devices {
		keys[k] = struct{}{}
	}
	for groupID := range cfg.Groups {
		if s.groups == nil {
			continue
		}
		members, _ := s.groups.Members(groupID)
		for _, k := range members {
			keys[k] = struct{}{}
		}
	}

	out := make(map[devices.Key]DeviceState, len(keys))
	for k := range keys {
		st, err := s.resolve(sceneID, k, map[string]struct{}{})
		if err != nil {
			s.log.Warn("scene resolution failed", "scene_id", sceneID, "device_key", k.String(), "error", err)
			continue
		}
		if st != nil {
			out[k] = *st
		}
	}
	return out
}

// resolve follows DeviceLink/SceneLink bindings depth-first for a single
// device key, guarded against cycles by the visited set (spec.md §4.4,
// §8 scenario 6).
func (s *Scenes) resolve(sceneID string, key devices.Key, visited map[string]struct{}) (*DeviceState, error) {
	if _, ok := visited[sceneID]; ok {
		return nil, fmt.Errorf("scene link cycle at %s", sceneID)
	}
	visited[sceneID] = struct{}{}

	cfg, ok := s.configs[sceneID]
	if !ok {
		return nil, nil
	}

	binding, ok := s.bindingFor(cfg, key)
	if !ok {
		return nil, nil
	}

	switch binding.Kind {
	case BindingState:
		st := binding.State
		return &st, nil

	case BindingDeviceLink:
		if s.devices == nil {
			return nil, nil
		}
		target, found := s.devices.Get(binding.LinkDevice)
		if !found || !target.IsManaged() {
			return nil, nil
		}
		st := DeviceState{
			Power:      target.Data.Light.Power,
			Brightness: target.Data.Light.Brightness,
			Color:      target.Data.Light.Color,
		}
		if binding.LinkBrightness != nil {
			st.Brightness = *binding.LinkBrightness
		}
		return &st, nil

	case BindingSceneLink:
		return s.resolve(binding.LinkScene, key, visited)

	default:
		return nil, nil
	}
}

// bindingFor returns the binding applicable to key, direct device
// bindings taking precedence over group-expanded ones.
func (s *Scenes) bindingFor(cfg Config, key devices.Key) (Binding, bool) {
	if b, ok := cfg.Devices[key]; ok {
		return b, true
	}
	for groupID, b := range cfg.Groups {
		if s.groups == nil {
			continue
		}
		members, _ := s.groups.Members(groupID)
		for _, m := range members {
			if m == key {
				return b, true
			}
		}
	}
	return Binding{}, false
}

// Project implements devices.SceneProjector.
func (s *Scenes) Project(sceneID string, key devices.Key) (devices.Data, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sceneMap, ok := s.flat[sceneID]
	if !ok {
		return devices.Data{}, false
	}
	st, ok := sceneMap[key]
	if !ok {
		return devices.Data{}, false
	}
	return devices.Data{
		Kind: devices.KindManaged,
		Light: devices.Light{
			Power:      st.Power,
			Brightness: st.Brightness,
			Color:      st.Color,
		},
	}, true
}

// DevicesInScene implements devices.SceneProjector.
func (s *Scenes) DevicesInScene(sceneID string) []devices.Key {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sceneMap, ok := s.flat[sceneID]
	if !ok {
		return nil
	}
	out := make([]devices.Key, 0, len(sceneMap))
	for k := range sceneMap {
		out = append(out, k)
	}
	return out
}

// HasOverride implements devices.SceneProjector.
func (s *Scenes) HasOverride(key devices.Key) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.overrides[key]
}

// StoreOverride sets (or clears) a device's override flag. Persistence
// is the caller's responsibility (the dispatcher persists asynchronously
// and treats memory as authoritative even on DB failure, spec.md §4.4).
// Setting the same value twice is indistinguishable from setting it once
// (spec.md §8).
func (s *Scenes) StoreOverride(key devices.Key, on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if on {
		s.overrides[key] = true
	} else {
		delete(s.overrides, key)
	}
}

// FlattenedScenes returns the full scene_id -> device_key -> DeviceState
// map, for broadcast construction.
func (s *Scenes) FlattenedScenes() map[string]map[devices.Key]DeviceState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]map[devices.Key]DeviceState, len(s.flat))
	for id, m := range s.flat {
		cp := make(map[devices.Key]DeviceState, len(m))
		for k, v := range m {
			cp[k] = v
		}
		out[id] = cp
	}
	return out
}

// AddSearchConfigs queues name-keyed scene definitions for resolution
// once the device table is populated (ResolveSearchConfigs).
func (s *Scenes) AddSearchConfigs(cfgs []SearchConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.search = append(s.search, cfgs...)
}

// ResolveSearchConfigs resolves every queued name-keyed definition
// against devs, consuming the queue. A name that matches no device is
// logged and its binding dropped; the rest of the scene still loads.
// The caller reflattens afterwards (ForceInvalidate).
func (s *Scenes) ResolveSearchConfigs(devs []devices.Device) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.search) == 0 {
		return
	}

	byName := make(map[string]devices.Key, len(devs))
	for _, d := range devs {
		if _, taken := byName[d.Name]; !taken {
			byName[d.Name] = d.Key
		}
	}

	for _, sc := range s.search {
		cfg := Config{
			ID:      sc.ID,
			Name:    sc.Name,
			Source:  SourceFile,
			Devices: make(map[devices.Key]Binding, len(sc.Devices)),
			Groups:  sc.Groups,
		}
		for name, b := range sc.Devices {
			key, ok := byName[name]
			if !ok {
				s.log.Warn("scene references unknown device name", "scene_id", sc.ID, "device_name", name)
				continue
			}
			cfg.Devices[key] = b
		}
		s.configs[cfg.ID] = cfg
	}
	s.search = nil
}

// RefreshDB replaces every database-sourced scene with cfgs, leaving
// config-file scenes untouched, then fully reflattens.
func (s *Scenes) RefreshDB(cfgs []Config) {
	s.mu.Lock()
	for id, cfg := range s.configs {
		if cfg.Source == SourceDB {
			delete(s.configs, id)
		}
	}
	for _, c := range cfgs {
		c.Source = SourceDB
		s.configs[c.ID] = c
	}
	s.mu.Unlock()

	s.ForceInvalidate()
}

// StoreScene adds or replaces a single database-sourced scene and
// reflattens it (and anything linking to it).
func (s *Scenes) StoreScene(cfg Config) map[string]struct{} {
	cfg.Source = SourceDB
	s.mu.Lock()
	s.configs[cfg.ID] = cfg
	s.mu.Unlock()
	return s.forceInvalidateAffecting(cfg.ID)
}

// DeleteScene removes a database-sourced scene.
func (s *Scenes) DeleteScene(sceneID string) map[string]struct{} {
	s.mu.Lock()
	delete(s.configs, sceneID)
	delete(s.flat, sceneID)
	s.mu.Unlock()
	return s.forceInvalidateAffecting(sceneID)
}

// EditSceneName renames a scene without touching its bindings.
func (s *Scenes) EditSceneName(sceneID, name string) map[string]struct{} {
	s.mu.Lock()
	cfg, ok := s.configs[sceneID]
	if ok {
		cfg.Name = name
		s.configs[sceneID] = cfg
	}
	s.mu.Unlock()
	if !ok {
		return nil
	}
	return s.forceInvalidateAffecting(sceneID)
}

// forceInvalidateAffecting reflattens every scene that SceneLinks to
// sceneID (transitively, since link chains can be arbitrarily deep),
// plus sceneID itself; the reflatten is a full pass because it is
// O(scenes) against an in-memory map.
func (s *Scenes) forceInvalidateAffecting(sceneID string) map[string]struct{} {
	s.ForceInvalidate()
	affected := map[string]struct{}{sceneID: {}}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id, cfg := range s.configs {
		if s.linksTo(cfg, sceneID, map[string]struct{}{id: {}}) {
			affected[id] = struct{}{}
		}
	}
	return affected
}

// linksTo reports whether cfg reaches target through any chain of
// SceneLink bindings. Caller holds s.mu.
func (s *Scenes) linksTo(cfg Config, target string, visited map[string]struct{}) bool {
	next := func(linked string) bool {
		if linked == target {
			return true
		}
		if _, seen := visited[linked]; seen {
			return false
		}
		visited[linked] = struct{}{}
		linkedCfg, ok := s.configs[linked]
		return ok && s.linksTo(linkedCfg, target, visited)
	}
	for _, b := range cfg.Devices {
		if b.Kind == BindingSceneLink && next(b.LinkScene) {
			return true
		}
	}
	for _, b := range cfg.Groups {
		if b.Kind == BindingSceneLink && next(b.LinkScene) {
			return true
		}
	}
	return false
}

// Config returns a scene's static definition, for name resolution at
// startup and API responses.
func (s *Scenes) Config(sceneID string) (Config, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.configs[sceneID]
	return c, ok
}
