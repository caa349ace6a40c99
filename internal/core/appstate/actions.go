package appstate

import (
	"context"

	"github.com/homehub/hearth-core/internal/core/devices"
	"github.com/homehub/hearth-core/internal/core/expr"
	"github.com/homehub/hearth-core/internal/eventbus"
)

// onAction dispatches an Action(...) event to its owning component
// (spec.md §4.1).
func (a *AppState) onAction(ctx context.Context, e eventbus.Event) {
	switch e.Action {
	case eventbus.ActionActivate:
		a.actionActivate(e)
	case eventbus.ActionCycle:
		a.actionCycle(e)
	case eventbus.ActionDim:
		a.actionDim(e)
	case eventbus.ActionCustom:
		a.actionCustom(ctx, e)
	case eventbus.ActionForceTriggerRoutine:
		a.actionForceTriggerRoutine(e)
	case eventbus.ActionSetDeviceState:
		a.Send(eventbus.SetInternalState(e.Device, false))
	case eventbus.ActionToggleDeviceOverride:
		a.actionToggleDeviceOverride(ctx, e)
	case eventbus.ActionEvalExpr:
		a.actionEvalExpr(e)
	case eventbus.ActionUI:
		a.actionUI(ctx, e)
	default:
		a.log.Warn("dispatcher: unknown action", "action", e.Action)
	}
}

func (a *AppState) actionActivate(e eventbus.Event) {
	skipLocked := false
	if len(e.Scenes) > 0 {
		skipLocked = e.Scenes[0].SkipLockedDevices
	}

	changes, err := a.Devices.ActivateScene(e.SceneID, e.DeviceKeys, e.GroupKeys, skipLocked, a.Groups, a.Scenes)
	if err != nil {
		a.log.Warn("activate scene failed", "scene_id", e.SceneID, "error", err)
		return
	}
	a.metrics.IncSceneActivation()
	a.emitInternalUpdates(changes)
}

func (a *AppState) actionCycle(e eventbus.Event) {
	refs := make([]devices.SceneRef, 0, len(e.Scenes))
	for _, s := range e.Scenes {
		refs = append(refs, devices.SceneRef{SceneID: s.SceneID, SkipLocked: s.SkipLockedDevices})
	}
	if len(refs) == 0 {
		for _, id := range e.SceneIDs {
			refs = append(refs, devices.SceneRef{SceneID: id})
		}
	}

	changes, err := a.Devices.CycleScenes(refs, e.NoWrap, e.DeviceKeys, e.GroupKeys, a.Groups, a.Scenes)
	if err != nil {
		a.log.Warn("cycle scenes failed", "error", err)
		return
	}
	a.emitInternalUpdates(changes)
}

func (a *AppState) actionDim(e eventbus.Event) {
	changes, err := a.Devices.Dim(e.DeviceKeys, e.GroupKeys, e.DimStep, a.Groups)
	if err != nil {
		a.log.Warn("dim failed", "error", err)
		return
	}
	a.emitInternalUpdates(changes)
}

func (a *AppState) actionCustom(ctx context.Context, e eventbus.Event) {
	if err := a.Integrations.RunAction(ctx, e.IntegrationID, e.Payload); err != nil {
		a.log.Warn("custom action failed", "integration_id", e.IntegrationID, "error", err)
	}
}

func (a *AppState) actionForceTriggerRoutine(e eventbus.Event) {
	fire, ok := a.Routines.ForceTrigger(e.RoutineID)
	if !ok {
		a.log.Warn("force trigger: unknown routine", "routine_id", e.RoutineID)
		return
	}
	a.dispatchIntents(fire.Actions)
}

// actionEvalExpr runs eval_action_expr (spec.md §4.6) against a fresh
// snapshot and dispatches whichever intents it returns. The evaluation
// itself has no side effects; only dispatchIntents touches the bus.
func (a *AppState) actionEvalExpr(e eventbus.Event) {
	intents, err := expr.EvalActionExpr(a.buildContext(), e.ActionExprs)
	if err != nil {
		a.log.Warn("eval_expr action failed", "error", err)
		return
	}
	a.dispatchIntents(intents)
}

func (a *AppState) actionToggleDeviceOverride(ctx context.Context, e eventbus.Event) {
	for _, key := range e.DeviceKeys {
		a.Scenes.StoreOverride(key, e.OverrideOn)
		if a.DBAvailable() {
			if err := a.db.StoreSceneOverride(ctx, key, e.OverrideOn); err != nil {
				a.log.Warn("db store scene override failed", "device_key", key.String(), "error", err)
			}
		}

		if !e.OverrideOn {
			if d, ok := a.Devices.Get(key); ok && d.SceneBinding != nil {
				if projected, ok := a.Scenes.Project(d.SceneBinding.SceneID, key); ok {
					next := d
					next.Data = projected
					change, err := a.Devices.SetState(next, true)
					if err == nil && change != nil {
						a.Send(eventbus.InternalStateUpdate(change.Old, change.New))
					}
				}
			}
		}
	}
	a.scheduleBroadcast()
}

func (a *AppState) actionUI(ctx context.Context, e eventbus.Event) {
	a.UI.Set(e.UIKey, e.UIValue)
	if a.DBAvailable() {
		if err := a.db.StoreUIState(ctx, e.UIKey, e.UIValue); err != nil {
			a.log.Warn("db store ui state failed", "key", e.UIKey, "error", err)
		}
	}
	a.scheduleBroadcast()
}

// emitInternalUpdates sends an InternalStateUpdate for every change a
// component method produced, preserving FIFO order (spec.md §4.1).
func (a *AppState) emitInternalUpdates(changes []devices.Change) {
	for _, c := range changes {
		a.Send(eventbus.InternalStateUpdate(c.Old, c.New))
	}
}

// dispatchIntents translates expr.Intent values (the pure evaluator's
// side-effect-free output) into enqueued events.
func (a *AppState) dispatchIntents(intents []expr.Intent) {
	for _, in := range intents {
		switch in.Kind {
		case expr.IntentActivateScene:
			a.Send(eventbus.ActivateScene(in.SceneID, false, in.DeviceKeys, in.GroupKeys))
		case expr.IntentDim:
			a.Send(eventbus.Dim(in.DimStep, in.DeviceKeys, in.GroupKeys))
		case expr.IntentSetDeviceState:
			for _, key := range in.DeviceKeys {
				a.Send(eventbus.SetInternalState(devices.Device{Key: key, Data: in.SetState}, false))
			}
		default:
			a.log.Warn("dispatcher: unknown intent kind", "kind", in.Kind)
		}
	}
}
