// Package groups materializes group membership: a group is defined as a
// static list of device selectors, each either a direct device key or a
// nested group id, flattened to its transitive closure (spec.md §4.5).
package groups

import (
	"errors"
	"fmt"

	"github.com/homehub/hearth-core/internal/core/devices"
)

// ErrCycle is returned when a group's selector list would make it its
// own transitive member (invariant I3).
var ErrCycle = errors.New("group membership cycle")

// Selector is one entry of a group's definition: exactly one of Device
// or NestedGroup is set.
type Selector struct {
	Device      devices.Key
	NestedGroup string
}

// Config is a group's static definition.
type Config struct {
	ID        string
	Selectors []Selector
}

// Groups holds the static definitions and their flattened membership.
type Groups struct {
	configs   map[string]Config
	flattened map[string][]devices.Key
	log       logger
}

type logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// New constructs Groups from their static definitions. Invalid (cyclic)
// groups are logged and excluded from membership resolution.
func New(configs []Config, log logger) *Groups {
	if log == nil {
		log = noopLogger{}
	}
	g := &Groups{
		configs:   make(map[string]Config, len(configs)),
		flattened: make(map[string][]devices.Key, len(configs)),
		log:       log,
	}
	for _, c := range configs {
		g.configs[c.ID] = c
	}
	g.ForceInvalidate()
	return g
}

// Members returns the flattened device membership of a group.
func (g *Groups) Members(groupID string) ([]devices.Key, bool) {
	m, ok := g.flattened[groupID]
	return m, ok
}

// Membership returns every group id, for broadcast construction.
func (g *Groups) Membership() map[string][]devices.Key {
	out := make(map[string][]devices.Key, len(g.flattened))
	for id, keys := range g.flattened {
		cp := make([]devices.Key, len(keys))
		copy(cp, keys)
		out[id] = cp
	}
	return out
}

// ForceInvalidate recomputes membership for every group from scratch.
func (g *Groups) ForceInvalidate() {
	for id := range g.configs {
		members, err := g.resolve(id, make(map[string]struct{}))
		if err != nil {
			g.log.Warn("group membership cycle, treating as empty", "group_id", id, "error", err)
			members = nil
		}
		g.flattened[id] = members
	}
}

// Invalidate recomputes only groups whose membership could depend on
// the changed device, returning their ids. Because group selectors
// reference devices only by key (membership, not state), a changed
// device's own presence in the selector graph is what matters — so we
// conservatively recompute every group that (transitively) selects that
// key.
func (g *Groups) Invalidate(changed devices.Key) map[string]struct{} {
	affected := make(map[string]struct{})
	for id := range g.configs {
		if g.references(id, changed, make(map[string]struct{})) {
			members, err := g.resolve(id, make(map[string]struct{}))
			if err != nil {
				g.log.Warn("group membership cycle, treating as empty", "group_id", id, "error", err)
				members = nil
			}
			g.flattened[id] = members
			affected[id] = struct{}{}
		}
	}
	return affected
}

func (g *Groups) references(groupID string, key devices.Key, visited map[string]struct{}) bool {
	if _, ok := visited[groupID]; ok {
		return false
	}
	visited[groupID] = struct{}{}

	cfg, ok := g.configs[groupID]
	if !ok {
		return false
	}
	for _, sel := range cfg.Selectors {
		if sel.NestedGroup == "" && sel.Device == key {
			return true
		}
		if sel.NestedGroup != "" && g.references(sel.NestedGroup, key, visited) {
			return true
		}
	}
	return false
}

func (g *Groups) resolve(groupID string, visited map[string]struct{}) ([]devices.Key, error) {
	if _, ok := visited[groupID]; ok {
		return nil, fmt.Errorf("%w: %s", ErrCycle, groupID)
	}
	visited[groupID] = struct{}{}
	defer delete(visited, groupID)

	cfg, ok := g.configs[groupID]
	if !ok {
		return nil, nil
	}

	seen := make(map[devices.Key]struct{})
	var out []devices.Key
	for _, sel := range cfg.Selectors {
		if sel.NestedGroup == "" {
			if _, dup := seen[sel.Device]; !dup {
				seen[sel.Device] = struct{}{}
				out = append(out, sel.Device)
			}
			continue
		}
		nested, err := g.resolve(sel.NestedGroup, visited)
		if err != nil {
			return nil, err
		}
		for _, k := range nested {
			if _, dup := seen[k]; !dup {
				seen[k] = struct{}{}
				out = append(out, k)
			}
		}
	}
	return out, nil
}
