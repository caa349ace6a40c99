// Package routines implements edge-triggered condition-over-state rules:
// a routine's action list fires only on a false->true transition of its
// condition, never on repeated true evaluations (spec.md §4.7).
package routines

import (
	"sync"

	"github.com/homehub/hearth-core/internal/core/expr"
)

// Routine is a single condition/action rule. Condition-driven firing
// is edge-gated for every routine; EdgeTrigger is carried from
// configuration but grants no level-triggered fires (see DESIGN.md) —
// ForceTrigger is the unconditional path.
type Routine struct {
	ID          string
	Condition   *expr.Node
	OnTrue      []expr.Intent
	EdgeTrigger bool
}

type logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// Routines tracks every routine's definition and last-satisfied flag.
type Routines struct {
	mu            sync.Mutex
	routines      map[string]Routine
	lastSatisfied map[string]bool
	log           logger
}

// New constructs Routines from their static definitions.
func New(defs []Routine, log logger) *Routines {
	if log == nil {
		log = noopLogger{}
	}
	r := &Routines{
		routines:      make(map[string]Routine, len(defs)),
		lastSatisfied: make(map[string]bool, len(defs)),
		log:           log,
	}
	for _, d := range defs {
		r.routines[d.ID] = d
	}
	return r
}

// Fire is one routine's action list paired with the id that triggered
// it, for the dispatcher to translate into enqueued events.
type Fire struct {
	RoutineID string
	Actions   []expr.Intent
}

// HandleInternalStateUpdate evaluates every routine's condition against
// the fresh context and returns the action lists of those that just
// transitioned false->true. A failure evaluating one routine's
// condition is logged and does not prevent the others from firing
// (spec.md §4.7).
//
// While warmingUp is true, no routine evaluates at all (invariant I4):
// InternalStateUpdate events during warm-up must not invalidate routine
// firing state, so the last-satisfied flags are left untouched entirely
// rather than being updated without firing.
func (r *Routines) HandleInternalStateUpdate(ctx expr.Context, warmingUp bool) []Fire {
	if warmingUp {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var fires []Fire
	for id, routine := range r.routines {
		v, err := expr.Eval(ctx, routine.Condition)
		if err != nil {
			r.log.Warn("routine condition evaluation failed", "routine_id", id, "error", err)
			continue
		}
		satisfied := v.Truthy()
		prev := r.lastSatisfied[id]
		r.lastSatisfied[id] = satisfied

		if satisfied && !prev {
			fires = append(fires, Fire{RoutineID: id, Actions: routine.OnTrue})
		}
	}
	return fires
}

// ForceTrigger runs a routine's action list unconditionally and does
// not update its last-satisfied flag.
func (r *Routines) ForceTrigger(routineID string) (Fire, bool) {
	r.mu.Lock()
	routine, ok := r.routines[routineID]
	r.mu.Unlock()
	if !ok {
		return Fire{}, false
	}
	return Fire{RoutineID: routineID, Actions: routine.OnTrue}, true
}
