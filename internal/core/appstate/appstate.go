// Package appstate owns every mutable substate and the dispatcher that
// serializes all writes to it: the single consumer of the event bus
// (spec.md §2, §4.1, §5).
package appstate

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/homehub/hearth-core/internal/core/devices"
	"github.com/homehub/hearth-core/internal/core/expr"
	"github.com/homehub/hearth-core/internal/core/groups"
	"github.com/homehub/hearth-core/internal/core/routines"
	"github.com/homehub/hearth-core/internal/core/scenes"
	"github.com/homehub/hearth-core/internal/core/ui"
	"github.com/homehub/hearth-core/internal/eventbus"
	"github.com/homehub/hearth-core/internal/integration"
)

// CoalescingWindow is the fixed debounce period for WebSocket broadcasts
// (spec.md §4.9, §8 "Debounce").
const CoalescingWindow = 100 * time.Millisecond

// Logger is the minimal logging dependency.
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

// Broadcaster is the subset of the WebSocket hub the dispatcher needs:
// sending the serialized state snapshot to every connected client.
// Declared here rather than imported from internal/api, which itself
// depends on appstate for action dispatch.
type Broadcaster interface {
	Broadcast(payload []byte)
	NumUsers() int
}

// Persistence is the minimal action surface spec.md §6 requires of the
// database layer. Declared here and implemented by
// internal/persistence/sqlite; a nil Persistence means the DB is
// unavailable and every Db* event logs a warning and proceeds
// (spec.md §6 "Configuration environment").
type Persistence interface {
	Available() bool
	StoreScene(ctx context.Context, cfg scenes.Config) error
	DeleteScene(ctx context.Context, sceneID string) error
	EditScene(ctx context.Context, sceneID, name string) error
	GetUIState(ctx context.Context) (map[string]any, error)
	StoreUIState(ctx context.Context, key string, value any) error
	StoreSceneOverride(ctx context.Context, key devices.Key, on bool) error
}

// Metrics is the subset of internal/platform/metrics the dispatcher
// reports to.
type Metrics interface {
	ObserveEventLoopDepth(n int)
	IncBroadcast()
	IncRoutineFire()
	IncSceneActivation()
}

type noopMetrics struct{}

func (noopMetrics) ObserveEventLoopDepth(int) {}
func (noopMetrics) IncBroadcast()             {}
func (noopMetrics) IncRoutineFire()           {}
func (noopMetrics) IncSceneActivation()       {}

// AppState aggregates every substate plus the dispatcher loop
// (spec.md §3 "AppState").
type AppState struct {
	Devices      *devices.Component
	Groups       *groups.Groups
	Scenes       *scenes.Scenes
	Routines     *routines.Routines
	UI           *ui.Store
	Integrations *integration.Registry

	bus     *eventbus.Bus
	ws      Broadcaster
	db      Persistence
	log     Logger
	metrics Metrics

	warmingUp        atomic.Bool
	broadcastPending atomic.Bool
}

// Deps bundles AppState's constructor dependencies.
type Deps struct {
	Devices      *devices.Component
	Groups       *groups.Groups
	Scenes       *scenes.Scenes
	Routines     *routines.Routines
	UI           *ui.Store
	Integrations *integration.Registry
	Bus          *eventbus.Bus
	WS           Broadcaster
	DB           Persistence // nil means the database layer is unavailable
	Log          Logger
	Metrics      Metrics
}

// New constructs AppState, warming_up = true until StartupCompleted is
// handled.
func New(d Deps) *AppState {
	if d.Log == nil {
		d.Log = noopLogger{}
	}
	if d.Metrics == nil {
		d.Metrics = noopMetrics{}
	}
	a := &AppState{
		Devices:      d.Devices,
		Groups:       d.Groups,
		Scenes:       d.Scenes,
		Routines:     d.Routines,
		UI:           d.UI,
		Integrations: d.Integrations,
		bus:          d.Bus,
		ws:           d.WS,
		db:           d.DB,
		log:          d.Log,
		metrics:      d.Metrics,
	}
	a.warmingUp.Store(true)
	return a
}

// WarmingUp reports whether StartupCompleted has not yet been handled.
func (a *AppState) WarmingUp() bool {
	return a.warmingUp.Load()
}

// DBAvailable reports whether a persistence layer is wired in.
func (a *AppState) DBAvailable() bool {
	return a.db != nil && a.db.Available()
}

// Send enqueues an event from any producer. Safe for concurrent use.
func (a *AppState) Send(e eventbus.Event) {
	a.bus.Send(e)
}

// Run is the dispatcher loop: the sole writer of every substate
// (spec.md §5). It processes events to completion one at a time,
// including any awaits on integrations or the database, and returns
// once ctx is canceled and the queue drains.
func (a *AppState) Run(ctx context.Context) {
	go func() {
		<-ctx.Done()
		a.bus.Close()
	}()

	for {
		e, ok := a.bus.Recv()
		if !ok {
			return
		}
		a.metrics.ObserveEventLoopDepth(a.bus.Len())
		a.handleEvent(ctx, e)
	}
}

// handleEvent is the dispatcher's single entry point. A panicking
// handler would otherwise take the whole loop down with it; every event
// is a terminator, per spec.md §7, so failures are logged here and
// never propagate.
func (a *AppState) handleEvent(ctx context.Context, e eventbus.Event) {
	defer func() {
		if r := recover(); r != nil {
			a.log.Error("dispatcher: handler panicked", "event_kind", e.Kind, "recovered", r)
		}
	}()

	switch e.Kind {
	case eventbus.KindExternalStateUpdate:
		a.onExternalStateUpdate(e)
	case eventbus.KindStartupCompleted:
		a.onStartupCompleted()
	case eventbus.KindInternalStateUpdate:
		a.onInternalStateUpdate(e.OldDevice, e.NewDevice)
	case eventbus.KindSetInternalState:
		a.onSetInternalState(ctx, e)
	case eventbus.KindSetExternalState:
		a.onSetExternalState(ctx, e.Device)
	case eventbus.KindDbStoreScene:
		a.onDbStoreScene(ctx, e.SceneConfig)
	case eventbus.KindDbDeleteScene:
		a.onDbDeleteScene(ctx, e.SceneID)
	case eventbus.KindDbEditScene:
		a.onDbEditScene(ctx, e.SceneID, e.SceneName)
	case eventbus.KindAction:
		a.onAction(ctx, e)
	default:
		a.log.Warn("dispatcher: unknown event kind", "kind", e.Kind)
	}
}

// onExternalStateUpdate handles an integration's report of its view of
// a device (spec.md §4.1).
func (a *AppState) onExternalStateUpdate(e eventbus.Event) {
	change, err := a.Devices.HandleExternalStateUpdate(e.Device, a.Scenes)
	if err != nil {
		a.log.Warn("external state update failed", "device_key", e.Device.Key.String(), "error", err)
		return
	}
	if change != nil {
		a.Send(eventbus.InternalStateUpdate(change.Old, change.New))
	}
}

// onStartupCompleted forces full invalidation of Groups -> Expr ->
// Scenes -> Expr (the second Expr pass reflects post-scene state) and
// clears warming_up (spec.md §4.1). Name-keyed config-file scenes are
// resolved first: this is the earliest point at which every
// integration's device set is known.
func (a *AppState) onStartupCompleted() {
	a.Groups.ForceInvalidate()
	_ = a.buildContext()
	a.Scenes.ResolveSearchConfigs(a.Devices.Snapshot())
	a.Scenes.ForceInvalidate()
	_ = a.buildContext()

	a.warmingUp.Store(false)
	a.log.Info("startup completed, warm-up cleared")
	a.scheduleBroadcast()
}

// onInternalStateUpdate runs the fixed 7-step invalidation cascade
// (spec.md §4.2). This order is load-bearing: reordering it breaks I2
// (the flattened scene map being a pure function of its inputs) or I4
// (routines not reacting to warm-up noise).
//
// While warm-up is in effect the whole cascade is skipped, not just the
// routines step: the initial burst of ExternalStateUpdate-driven
// InternalStateUpdates during startup is noise the cascade must not act
// on at all, and no broadcast is owed for it either (spec.md §8 scenario
// 1, "no routine fires, no broadcast").
func (a *AppState) onInternalStateUpdate(old, next devices.Device) {
	if a.warmingUp.Load() {
		return
	}

	// 1. Groups.invalidate
	a.Groups.Invalidate(next.Key)

	// 2. Expr.invalidate
	_ = a.buildContext()

	// 3. Scenes.invalidate
	affectedScenes := a.Scenes.Invalidate(next.Key)

	// 4. Devices.invalidate
	a.Devices.Invalidate(affectedScenes, a.Scenes)

	// 5. Expr.invalidate, again: step 4 may have mutated devices.
	ctx := a.buildContext()

	// 6. Routines.handle_internal_state_update
	fires := a.Routines.HandleInternalStateUpdate(ctx, a.warmingUp.Load())
	for _, f := range fires {
		a.metrics.IncRoutineFire()
		a.dispatchIntents(f.Actions)
	}

	// 7. AppState.schedule_ws_broadcast
	a.scheduleBroadcast()
}

// onSetInternalState is the authoritative local set (spec.md §4.1): an
// existing override on the device is re-asserted — memory first, then
// best-effort persistence, so the pin converges even if an earlier
// write failed — the incoming device's scene binding is projected
// through current scenes, and the result is delegated to Devices. An
// overridden device set without a binding keeps its current one, so
// releasing the override later snaps it back to that scene's state.
func (a *AppState) onSetInternalState(ctx context.Context, e eventbus.Event) {
	d := e.Device

	if a.Scenes.HasOverride(d.Key) {
		a.Scenes.StoreOverride(d.Key, true)
		if a.DBAvailable() {
			if err := a.db.StoreSceneOverride(ctx, d.Key, true); err != nil {
				a.log.Warn("db store scene override failed", "device_key", d.Key.String(), "error", err)
			}
		}
		a.Scenes.ForceInvalidate()
	}

	if d.SceneBinding != nil {
		if projected, ok := a.Scenes.Project(d.SceneBinding.SceneID, d.Key); ok {
			d.Data = projected
		}
	}

	if d.SceneBinding == nil && a.Scenes.HasOverride(d.Key) {
		if cur, ok := a.Devices.Get(d.Key); ok {
			d.SceneBinding = cur.SceneBinding
		}
	}

	change, err := a.Devices.SetState(d, true)
	if err != nil {
		a.log.Warn("set internal state failed", "device_key", d.Key.String(), "error", err)
		return
	}
	if change == nil {
		return
	}
	a.Send(eventbus.InternalStateUpdate(change.Old, change.New))
	if !e.SkipExternalUpdate {
		a.Send(eventbus.SetExternalState(d))
	}
}

// onSetExternalState converts the device's color to the mode its
// integration prefers — recorded on Capability from the integration's
// own reports — then hands it to the owning integration (spec.md §4.1).
// Broadcasts separately normalize to Hs (spec.md §6).
func (a *AppState) onSetExternalState(ctx context.Context, d devices.Device) {
	if d.IsManaged() {
		mode := d.Data.Light.Capability.PreferredColorMode
		if cur, ok := a.Devices.Get(d.Key); ok && cur.IsManaged() && cur.Data.Light.Capability.PreferredColorMode != "" {
			mode = cur.Data.Light.Capability.PreferredColorMode
		}
		if mode != "" {
			d.Data.Light.Color = d.Data.Light.Color.ToMode(mode)
		}
	}
	if err := a.Integrations.SetDeviceState(ctx, d); err != nil {
		a.log.Warn("set external state failed", "device_key", d.Key.String(), "error", err)
	}
}

func (a *AppState) onDbStoreScene(ctx context.Context, cfg scenes.Config) {
	if a.DBAvailable() {
		if err := a.db.StoreScene(ctx, cfg); err != nil {
			a.log.Warn("db store scene failed", "scene_id", cfg.ID, "error", err)
		}
	}
	affected := a.Scenes.StoreScene(cfg)
	a.forceSceneInvalidation(affected)
}

func (a *AppState) onDbDeleteScene(ctx context.Context, sceneID string) {
	if a.DBAvailable() {
		if err := a.db.DeleteScene(ctx, sceneID); err != nil {
			a.log.Warn("db delete scene failed", "scene_id", sceneID, "error", err)
		}
	}
	affected := a.Scenes.DeleteScene(sceneID)
	a.forceSceneInvalidation(affected)
}

func (a *AppState) onDbEditScene(ctx context.Context, sceneID, name string) {
	if a.DBAvailable() {
		if err := a.db.EditScene(ctx, sceneID, name); err != nil {
			a.log.Warn("db edit scene failed", "scene_id", sceneID, "error", err)
		}
	}
	affected := a.Scenes.EditSceneName(sceneID, name)
	a.forceSceneInvalidation(affected)
}

// forceSceneInvalidation re-projects any device bound to an affected
// scene and refreshes the expr context, then schedules a broadcast
// (spec.md §4.1 "force scene-invalidation, schedule broadcast").
func (a *AppState) forceSceneInvalidation(affected map[string]struct{}) {
	a.Devices.Invalidate(affected, a.Scenes)
	_ = a.buildContext()
	a.scheduleBroadcast()
}

func (a *AppState) buildContext() expr.Context {
	return expr.Build(a.Devices, a.Groups, a.Scenes)
}

// scheduleBroadcast implements the atomic swap-based debounce of
// spec.md §4.9: the first caller in a coalescing window starts the
// timer, every subsequent caller within the window is a no-op, and the
// broadcast sent when the timer fires always reflects the state at fire
// time, not at schedule time (spec.md I5, §8 "Debounce").
func (a *AppState) scheduleBroadcast() {
	if a.broadcastPending.Swap(true) {
		return
	}
	go func() {
		time.Sleep(CoalescingWindow)
		a.broadcastPending.Store(false)
		a.sendWSBroadcast()
	}()
}

func (a *AppState) sendWSBroadcast() {
	if a.ws == nil || a.ws.NumUsers() == 0 {
		return
	}
	payload, err := a.buildBroadcastPayload()
	if err != nil {
		a.log.Error("failed to build broadcast payload", "error", err)
		return
	}
	a.ws.Broadcast(payload)
	a.metrics.IncBroadcast()
}
