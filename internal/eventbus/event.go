// Package eventbus defines the closed set of Events the dispatcher
// understands and the MPSC channel producers enqueue them on
// (spec.md §4.1, §5).
package eventbus

import (
	"github.com/homehub/hearth-core/internal/core/devices"
	"github.com/homehub/hearth-core/internal/core/expr"
	"github.com/homehub/hearth-core/internal/core/scenes"
)

// Kind discriminates Event's variants. Event is a closed tagged union:
// every variant the dispatcher must understand is listed here, and
// nowhere else constructs a Kind outside this package's constructors.
type Kind string

const (
	KindExternalStateUpdate Kind = "external_state_update"
	KindStartupCompleted    Kind = "startup_completed"
	KindInternalStateUpdate Kind = "internal_state_update"
	KindSetInternalState    Kind = "set_internal_state"
	KindSetExternalState    Kind = "set_external_state"

	KindDbStoreScene  Kind = "db_store_scene"
	KindDbDeleteScene Kind = "db_delete_scene"
	KindDbEditScene   Kind = "db_edit_scene"

	KindAction Kind = "action"
)

// ActionKind discriminates the Action variant family (spec.md §4.1).
type ActionKind string

const (
	ActionActivate             ActionKind = "activate"
	ActionCycle                ActionKind = "cycle"
	ActionDim                  ActionKind = "dim"
	ActionCustom               ActionKind = "custom"
	ActionForceTriggerRoutine  ActionKind = "force_trigger_routine"
	ActionSetDeviceState       ActionKind = "set_device_state"
	ActionToggleDeviceOverride ActionKind = "toggle_device_override"
	ActionEvalExpr             ActionKind = "eval_expr"
	ActionUI                   ActionKind = "ui_action"
)

// SceneDescriptor pairs a scene id with the skip_locked_devices flag
// recovered from the original Rust SceneDescriptor (SPEC_FULL.md §4).
type SceneDescriptor struct {
	SceneID           string
	SkipLockedDevices bool
}

// Event is a single enqueued occurrence. Only the fields relevant to
// Kind (and, for KindAction, ActionKind) are meaningful; this mirrors
// the teacher's convention of a single struct carrying an enum tag
// rather than a Go interface type switch, since every producer and the
// dispatcher need to construct/inspect Events without a type assertion
// per call site.
type Event struct {
	Kind   Kind
	Action ActionKind

	// KindExternalStateUpdate, KindSetInternalState, KindSetExternalState,
	// ActionSetDeviceState
	Device             devices.Device
	SkipExternalUpdate bool

	// KindInternalStateUpdate
	OldDevice devices.Device
	NewDevice devices.Device

	// KindDbStoreScene, KindDbEditScene
	SceneConfig scenes.Config
	SceneName   string

	// KindDbDeleteScene, KindDbEditScene, ActionActivate
	SceneID string

	// ActionActivate, ActionCycle, ActionDim
	SceneIDs   []string
	Scenes     []SceneDescriptor
	DeviceKeys []devices.Key
	GroupKeys  []devices.Key
	NoWrap     bool
	DimStep    float64

	// ActionForceTriggerRoutine
	RoutineID string

	// ActionToggleDeviceOverride
	OverrideOn bool

	// ActionCustom
	IntegrationID string
	Payload       any

	// ActionEvalExpr
	ActionExprs []expr.ActionExpr

	// ActionUI
	UIKey   string
	UIValue any
}

// ExternalStateUpdate constructs the event an integration sends when it
// reports its view of a device.
func ExternalStateUpdate(d devices.Device) Event {
	return Event{Kind: KindExternalStateUpdate, Device: d}
}

// StartupCompleted constructs the event signaling every integration has
// registered its initial device set.
func StartupCompleted() Event {
	return Event{Kind: KindStartupCompleted}
}

// InternalStateUpdate constructs the event the Devices component fires
// after a real, dispatcher-visible change.
func InternalStateUpdate(old, next devices.Device) Event {
	return Event{Kind: KindInternalStateUpdate, OldDevice: old, NewDevice: next}
}

// SetInternalState constructs an authoritative local set.
func SetInternalState(d devices.Device, skipExternal bool) Event {
	return Event{Kind: KindSetInternalState, Device: d, SkipExternalUpdate: skipExternal}
}

// SetExternalState constructs the event that hands a device's state to
// its owning integration.
func SetExternalState(d devices.Device) Event {
	return Event{Kind: KindSetExternalState, Device: d}
}

// DbStoreScene constructs a persist-then-invalidate event.
func DbStoreScene(cfg scenes.Config) Event {
	return Event{Kind: KindDbStoreScene, SceneConfig: cfg}
}

// DbDeleteScene constructs a delete-then-invalidate event.
func DbDeleteScene(sceneID string) Event {
	return Event{Kind: KindDbDeleteScene, SceneID: sceneID}
}

// DbEditScene constructs a rename-then-invalidate event.
func DbEditScene(sceneID, name string) Event {
	return Event{Kind: KindDbEditScene, SceneID: sceneID, SceneName: name}
}

// ActivateScene constructs an Action(Activate) event.
func ActivateScene(sceneID string, skipLocked bool, deviceKeys, groupKeys []devices.Key) Event {
	return Event{
		Kind:       KindAction,
		Action:     ActionActivate,
		SceneID:    sceneID,
		Scenes:     []SceneDescriptor{{SceneID: sceneID, SkipLockedDevices: skipLocked}},
		DeviceKeys: deviceKeys,
		GroupKeys:  groupKeys,
	}
}

// CycleScenes constructs an Action(Cycle) event over an ordered list of
// scene descriptors (the original's CycleScenesDescriptor).
func CycleScenes(descriptors []SceneDescriptor, nowrap bool, deviceKeys, groupKeys []devices.Key) Event {
	ids := make([]string, len(descriptors))
	for i, d := range descriptors {
		ids[i] = d.SceneID
	}
	return Event{
		Kind:       KindAction,
		Action:     ActionCycle,
		Scenes:     descriptors,
		SceneIDs:   ids,
		NoWrap:     nowrap,
		DeviceKeys: deviceKeys,
		GroupKeys:  groupKeys,
	}
}

// Dim constructs an Action(Dim) event.
func Dim(step float64, deviceKeys, groupKeys []devices.Key) Event {
	return Event{Kind: KindAction, Action: ActionDim, DimStep: step, DeviceKeys: deviceKeys, GroupKeys: groupKeys}
}

// Custom constructs an Action(Custom) event, opaque beyond integration id.
func Custom(integrationID string, payload any) Event {
	return Event{Kind: KindAction, Action: ActionCustom, IntegrationID: integrationID, Payload: payload}
}

// ForceTriggerRoutine constructs an Action(ForceTriggerRoutine) event.
func ForceTriggerRoutine(routineID string) Event {
	return Event{Kind: KindAction, Action: ActionForceTriggerRoutine, RoutineID: routineID}
}

// SetDeviceState constructs an Action(SetDeviceState) event.
func SetDeviceState(d devices.Device) Event {
	return Event{Kind: KindAction, Action: ActionSetDeviceState, Device: d}
}

// ToggleDeviceOverride constructs an Action(ToggleDeviceOverride) event.
func ToggleDeviceOverride(key devices.Key, on bool) Event {
	return Event{
		Kind:       KindAction,
		Action:     ActionToggleDeviceOverride,
		DeviceKeys: []devices.Key{key},
		OverrideOn: on,
	}
}

// EvalExpr constructs an Action(EvalExpr) event: a caller-supplied list
// of guarded intents to evaluate against the current snapshot and
// dispatch (spec.md §4.1, §4.6).
func EvalExpr(exprs []expr.ActionExpr) Event {
	return Event{Kind: KindAction, Action: ActionEvalExpr, ActionExprs: exprs}
}

// UIAction constructs an Action(UiAction) event.
func UIAction(key string, value any) Event {
	return Event{Kind: KindAction, Action: ActionUI, UIKey: key, UIValue: value}
}
