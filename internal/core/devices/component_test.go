package devices

import "testing"

type fakeProjector struct {
	projections map[string]map[Key]Data
	overrides   map[Key]bool
}

func newFakeProjector() *fakeProjector {
	return &fakeProjector{
		projections: make(map[string]map[Key]Data),
		overrides:   make(map[Key]bool),
	}
}

func (f *fakeProjector) set(sceneID string, key Key, d Data) {
	if f.projections[sceneID] == nil {
		f.projections[sceneID] = make(map[Key]Data)
	}
	f.projections[sceneID][key] = d
}

func (f *fakeProjector) Project(sceneID string, key Key) (Data, bool) {
	d, ok := f.projections[sceneID][key]
	return d, ok
}

func (f *fakeProjector) HasOverride(key Key) bool {
	return f.overrides[key]
}

func (f *fakeProjector) DevicesInScene(sceneID string) []Key {
	var out []Key
	for k := range f.projections[sceneID] {
		out = append(out, k)
	}
	return out
}

type fakeGroups struct {
	members map[string][]Key
}

func (f *fakeGroups) Members(groupID string) ([]Key, bool) {
	m, ok := f.members[groupID]
	return m, ok
}

var livingRoom = Key{IntegrationID: "hue", DeviceID: "living-room"}

func TestHandleExternalStateUpdate_EmitsChangeOnDiff(t *testing.T) {
	c := New(nil)
	d := Device{Key: livingRoom, Data: Data{Kind: KindManaged, Light: Light{Power: true, Brightness: 0.5}}}

	change, err := c.HandleExternalStateUpdate(d, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if change == nil {
		t.Fatal("expected a change for the first report")
	}

	same, err := c.HandleExternalStateUpdate(d, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if same != nil {
		t.Fatalf("expected no change for a repeated identical report, got %+v", same)
	}
}

func TestHandleExternalStateUpdate_SuppressesEchoWhileSceneBound(t *testing.T) {
	c := New(nil)
	proj := newFakeProjector()
	proj.set("evening", livingRoom, Data{Kind: KindManaged, Light: Light{Power: true, Brightness: 0.3}})

	_, err := c.ActivateScene("evening", []Key{livingRoom}, nil, false, nil, proj)
	if err != nil {
		t.Fatalf("ActivateScene: %v", err)
	}

	// The integration echoes back the exact state the scene just pushed.
	echo := Device{Key: livingRoom, Data: Data{Kind: KindManaged, Light: Light{Power: true, Brightness: 0.3}}}
	change, err := c.HandleExternalStateUpdate(echo, proj)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if change != nil {
		t.Fatalf("expected echo of the scene's own projection to produce no change, got %+v", change)
	}
}

func TestActivateScene_SkipsOverriddenDevices(t *testing.T) {
	c := New(nil)
	proj := newFakeProjector()
	proj.set("evening", livingRoom, Data{Kind: KindManaged, Light: Light{Power: true, Brightness: 0.8}})
	proj.overrides[livingRoom] = true

	changes, err := c.ActivateScene("evening", []Key{livingRoom}, nil, false, nil, proj)
	if err != nil {
		t.Fatalf("ActivateScene: %v", err)
	}
	if len(changes) != 0 {
		t.Fatalf("expected overridden device to be skipped, got %d changes", len(changes))
	}
}

func TestActivateScene_LockedDeviceKeepsStateButMovesBinding(t *testing.T) {
	c := New(nil)
	proj := newFakeProjector()
	proj.set("day", livingRoom, Data{Kind: KindManaged, Light: Light{Power: true, Brightness: 0.2}})
	proj.set("evening", livingRoom, Data{Kind: KindManaged, Light: Light{Power: true, Brightness: 0.8}})

	if _, err := c.ActivateScene("day", []Key{livingRoom}, nil, false, nil, proj); err != nil {
		t.Fatalf("ActivateScene: %v", err)
	}
	proj.overrides[livingRoom] = true

	changes, err := c.ActivateScene("evening", []Key{livingRoom}, nil, false, nil, proj)
	if err != nil {
		t.Fatalf("ActivateScene: %v", err)
	}
	if len(changes) != 0 {
		t.Fatalf("expected no state change for a locked device, got %d", len(changes))
	}

	d, _ := c.Get(livingRoom)
	if d.Data.Light.Brightness != 0.2 {
		t.Fatalf("expected locked device to keep its state, got %f", d.Data.Light.Brightness)
	}
	if d.SceneBinding == nil || d.SceneBinding.SceneID != "evening" {
		t.Fatalf("expected locked device to follow the new binding, got %+v", d.SceneBinding)
	}
}

func TestActivateScene_SkipLockedLeavesBindingUntouched(t *testing.T) {
	c := New(nil)
	proj := newFakeProjector()
	proj.set("day", livingRoom, Data{Kind: KindManaged, Light: Light{Power: true, Brightness: 0.2}})
	proj.set("evening", livingRoom, Data{Kind: KindManaged, Light: Light{Power: true, Brightness: 0.8}})

	if _, err := c.ActivateScene("day", []Key{livingRoom}, nil, false, nil, proj); err != nil {
		t.Fatalf("ActivateScene: %v", err)
	}
	proj.overrides[livingRoom] = true

	if _, err := c.ActivateScene("evening", []Key{livingRoom}, nil, true, nil, proj); err != nil {
		t.Fatalf("ActivateScene: %v", err)
	}

	d, _ := c.Get(livingRoom)
	if d.SceneBinding == nil || d.SceneBinding.SceneID != "day" {
		t.Fatalf("expected skip_locked_devices to leave the old binding in place, got %+v", d.SceneBinding)
	}
}

func TestActivateScene_ExpandsGroupMembership(t *testing.T) {
	c := New(nil)
	kitchen := Key{IntegrationID: "hue", DeviceID: "kitchen"}
	proj := newFakeProjector()
	proj.set("evening", livingRoom, Data{Kind: KindManaged, Light: Light{Power: true}})
	proj.set("evening", kitchen, Data{Kind: KindManaged, Light: Light{Power: true}})
	groups := &fakeGroups{members: map[string][]Key{"downstairs": {livingRoom, kitchen}}}

	changes, err := c.ActivateScene("evening", nil, []Key{{DeviceID: "downstairs"}}, false, groups, proj)
	if err != nil {
		t.Fatalf("ActivateScene: %v", err)
	}
	if len(changes) != 2 {
		t.Fatalf("expected both group members activated, got %d changes", len(changes))
	}
}

func TestCycleScenes_NoWrapStopsAtLastScene(t *testing.T) {
	c := New(nil)
	proj := newFakeProjector()
	proj.set("a", livingRoom, Data{Kind: KindManaged, Light: Light{Brightness: 0.1}})
	proj.set("b", livingRoom, Data{Kind: KindManaged, Light: Light{Brightness: 0.5}})
	proj.set("c", livingRoom, Data{Kind: KindManaged, Light: Light{Brightness: 0.9}})

	if _, err := c.ActivateScene("c", []Key{livingRoom}, nil, false, nil, proj); err != nil {
		t.Fatalf("ActivateScene: %v", err)
	}

	changes, err := c.CycleScenes([]SceneRef{{SceneID: "a"}, {SceneID: "b"}, {SceneID: "c"}}, true, []Key{livingRoom}, nil, nil, proj)
	if err != nil {
		t.Fatalf("CycleScenes: %v", err)
	}
	if len(changes) != 0 {
		t.Fatalf("expected device already on last scene to stay put with nowrap, got %d changes", len(changes))
	}

	d, _ := c.Get(livingRoom)
	if d.SceneBinding == nil || d.SceneBinding.SceneID != "c" {
		t.Fatalf("expected device to remain bound to scene c, got %+v", d.SceneBinding)
	}
}

func TestCycleScenes_WrapsToFirstSceneByDefault(t *testing.T) {
	c := New(nil)
	proj := newFakeProjector()
	proj.set("a", livingRoom, Data{Kind: KindManaged, Light: Light{Brightness: 0.1}})
	proj.set("b", livingRoom, Data{Kind: KindManaged, Light: Light{Brightness: 0.5}})

	if _, err := c.ActivateScene("b", []Key{livingRoom}, nil, false, nil, proj); err != nil {
		t.Fatalf("ActivateScene: %v", err)
	}

	changes, err := c.CycleScenes([]SceneRef{{SceneID: "a"}, {SceneID: "b"}}, false, []Key{livingRoom}, nil, nil, proj)
	if err != nil {
		t.Fatalf("CycleScenes: %v", err)
	}
	if len(changes) != 1 {
		t.Fatalf("expected a wraparound change, got %d", len(changes))
	}
	if changes[0].New.SceneBinding.SceneID != "a" {
		t.Fatalf("expected wrap to scene a, got %s", changes[0].New.SceneBinding.SceneID)
	}
}

func TestCycleScenes_SkipLockedStepExcludesOverriddenDevice(t *testing.T) {
	c := New(nil)
	proj := newFakeProjector()
	proj.set("a", livingRoom, Data{Kind: KindManaged, Light: Light{Brightness: 0.1}})
	proj.set("b", livingRoom, Data{Kind: KindManaged, Light: Light{Brightness: 0.5}})

	if _, err := c.ActivateScene("a", []Key{livingRoom}, nil, false, nil, proj); err != nil {
		t.Fatalf("ActivateScene: %v", err)
	}
	proj.overrides[livingRoom] = true

	if _, err := c.CycleScenes([]SceneRef{{SceneID: "a"}, {SceneID: "b", SkipLocked: true}}, false, []Key{livingRoom}, nil, nil, proj); err != nil {
		t.Fatalf("CycleScenes: %v", err)
	}

	d, _ := c.Get(livingRoom)
	if d.SceneBinding == nil || d.SceneBinding.SceneID != "a" {
		t.Fatalf("expected the skip_locked step to leave the overridden device on scene a, got %+v", d.SceneBinding)
	}
}

func TestDim_ClampsAtUpperBound(t *testing.T) {
	c := New(nil)
	c.SetState(Device{Key: livingRoom, Data: Data{Kind: KindManaged, Light: Light{Brightness: 0.9}}}, false)

	changes, err := c.Dim([]Key{livingRoom}, nil, 0.5, nil)
	if err != nil {
		t.Fatalf("Dim: %v", err)
	}
	if len(changes) != 1 {
		t.Fatalf("expected one change, got %d", len(changes))
	}
	if changes[0].New.Data.Light.Brightness != 1.0 {
		t.Fatalf("expected brightness clamped to 1.0, got %f", changes[0].New.Data.Light.Brightness)
	}
}

func TestDim_ClampsAtLowerBound(t *testing.T) {
	c := New(nil)
	c.SetState(Device{Key: livingRoom, Data: Data{Kind: KindManaged, Light: Light{Brightness: 0.1}}}, false)

	changes, err := c.Dim([]Key{livingRoom}, nil, -0.5, nil)
	if err != nil {
		t.Fatalf("Dim: %v", err)
	}
	if changes[0].New.Data.Light.Brightness != 0 {
		t.Fatalf("expected brightness clamped to 0, got %f", changes[0].New.Data.Light.Brightness)
	}
}

func TestDim_SkipsUnmanagedDevices(t *testing.T) {
	c := New(nil)
	sensor := Key{IntegrationID: "zigbee", DeviceID: "temp-1"}
	c.SetState(Device{Key: sensor, Data: Data{Kind: KindSensor, SensorValue: 21.5}}, false)

	changes, err := c.Dim([]Key{sensor}, nil, 0.5, nil)
	if err != nil {
		t.Fatalf("Dim: %v", err)
	}
	if len(changes) != 0 {
		t.Fatalf("expected sensor device to be skipped by Dim, got %d changes", len(changes))
	}
}

func TestInvalidate_ReprojectsBoundDevicesOnly(t *testing.T) {
	c := New(nil)
	proj := newFakeProjector()
	proj.set("evening", livingRoom, Data{Kind: KindManaged, Light: Light{Brightness: 0.4}})
	if _, err := c.ActivateScene("evening", []Key{livingRoom}, nil, false, nil, proj); err != nil {
		t.Fatalf("ActivateScene: %v", err)
	}

	proj.set("evening", livingRoom, Data{Kind: KindManaged, Light: Light{Brightness: 0.7}})
	changes := c.Invalidate(map[string]struct{}{"evening": {}}, proj)
	if len(changes) != 1 {
		t.Fatalf("expected re-projection to produce one change, got %d", len(changes))
	}
	if changes[0].New.Data.Light.Brightness != 0.7 {
		t.Fatalf("expected device to pick up the new projection, got %f", changes[0].New.Data.Light.Brightness)
	}
}

func TestInvalidate_SkipsOverriddenDevice(t *testing.T) {
	c := New(nil)
	proj := newFakeProjector()
	proj.set("evening", livingRoom, Data{Kind: KindManaged, Light: Light{Brightness: 0.4}})
	if _, err := c.ActivateScene("evening", []Key{livingRoom}, nil, false, nil, proj); err != nil {
		t.Fatalf("ActivateScene: %v", err)
	}

	proj.overrides[livingRoom] = true
	proj.set("evening", livingRoom, Data{Kind: KindManaged, Light: Light{Brightness: 0.9}})

	changes := c.Invalidate(map[string]struct{}{"evening": {}}, proj)
	if len(changes) != 0 {
		t.Fatalf("expected overridden device to be skipped on invalidation, got %d changes", len(changes))
	}
}
