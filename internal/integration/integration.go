// Package integration defines the capability interface integrations
// implement and the registry that dispatches to them by id, replacing
// the original's dynamic-dispatch integration trait with a plain Go
// interface (spec.md §9).
package integration

import (
	"context"
	"fmt"

	"github.com/homehub/hearth-core/internal/core/devices"
)

// Capability is what the hub requires of every integration: register
// its device set, start its background work, accept outbound state and
// run opaque custom actions (spec.md §9).
type Capability interface {
	ID() string
	Register(ctx context.Context) ([]devices.Device, error)
	Start(ctx context.Context) error
	SetDeviceState(ctx context.Context, d devices.Device) error
	RunAction(ctx context.Context, payload any) error
}

// Registry is a table of Capabilities keyed by integration id. No
// inheritance or dynamic dispatch is needed: callers type-switch never,
// they just call through the interface (spec.md §9).
type Registry struct {
	byID map[string]Capability
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]Capability)}
}

// Add registers a Capability under its own id.
func (r *Registry) Add(c Capability) {
	r.byID[c.ID()] = c
}

// Get returns the Capability registered under id.
func (r *Registry) Get(id string) (Capability, bool) {
	c, ok := r.byID[id]
	return c, ok
}

// All returns every registered Capability.
func (r *Registry) All() []Capability {
	out := make([]Capability, 0, len(r.byID))
	for _, c := range r.byID {
		out = append(out, c)
	}
	return out
}

// SetDeviceState hands d — already converted to its preferred color
// mode by the dispatcher's SetExternalState handler — to the owning
// integration (spec.md §4.1).
func (r *Registry) SetDeviceState(ctx context.Context, d devices.Device) error {
	c, ok := r.byID[d.Key.IntegrationID]
	if !ok {
		return fmt.Errorf("integration %q not registered", d.Key.IntegrationID)
	}
	return c.SetDeviceState(ctx, d)
}

// RunAction dispatches an opaque custom action to the named integration.
func (r *Registry) RunAction(ctx context.Context, integrationID string, payload any) error {
	c, ok := r.byID[integrationID]
	if !ok {
		return fmt.Errorf("integration %q not registered", integrationID)
	}
	return c.RunAction(ctx, payload)
}
