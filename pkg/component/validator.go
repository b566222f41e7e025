package component

import (
	"fmt"
	"strings"
)

// DefaultMaxDependencyDepth bounds the dependency chain length explored by
// cycle detection when no explicit bound is configured.
const DefaultMaxDependencyDepth = 32

// Validator checks dependency satisfaction and dependency cycles against a
// registry.
type Validator struct {
	registry *Registry
	maxDepth int
}

// NewValidator creates a validator. A maxDepth of zero or less selects
// DefaultMaxDependencyDepth.
func NewValidator(registry *Registry, maxDepth int) *Validator {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDependencyDepth
	}
	return &Validator{registry: registry, maxDepth: maxDepth}
}

// MaxDepth returns the configured dependency depth bound.
func (v *Validator) MaxDepth() int {
	return v.maxDepth
}

// CheckDependencies verifies that every mandatory dependency of the named
// component is registered and initialized or running. Optional
// dependencies are always satisfied. The registry lock is taken once per
// lookup, so the answer reflects each dependency at the moment it is read.
func (v *Validator) CheckDependencies(name string) error {
	h, err := v.registry.handle(name)
	if err != nil {
		return err
	}
	return v.checkHandle(h)
}

func (v *Validator) checkHandle(h Handle) error {
	for _, dep := range h.rec.desc.Dependencies {
		status, registered := v.registry.lookup(dep.Name)
		if dep.Optional {
			continue
		}
		if !registered {
			return newError(KindMissingDependency, ModuleValidator,
				fmt.Sprintf("mandatory dependency %s is not registered", dep.Name)).
				WithComponent(h.Name()).
				WithDependency(dep.Name)
		}
		if !status.IsReady() {
			return newError(KindDependencyNotReady, ModuleValidator,
				fmt.Sprintf("mandatory dependency %s is %s", dep.Name, status)).
				WithComponent(h.Name()).
				WithDependency(dep.Name).
				WithDetail("dependency_status", string(status))
		}
	}
	return nil
}

// CheckCycle reports a DependencyCycle error if the named component can
// reach itself through registered dependencies. Dependency names that are
// not registered are ignored; statuses are not consulted.
func (v *Validator) CheckCycle(name string) error {
	h, err := v.registry.handle(name)
	if err != nil {
		return err
	}
	graph := buildGraph(v.registry.Snapshot(0))
	return v.walk(graph, h.Name(), make([]string, 0, v.maxDepth), make(map[string]int))
}

// CheckCycles runs cycle detection from every handle over the graph formed
// by the handles themselves. It returns the first cycle found.
func (v *Validator) CheckCycles(handles []Handle) error {
	graph := buildGraph(handles)
	cleared := make(map[string]int, len(handles))
	path := make([]string, 0, v.maxDepth)
	for _, h := range handles {
		if err := v.walk(graph, h.Name(), path[:0], cleared); err != nil {
			return err
		}
	}
	return nil
}

// walk performs a depth-first search from name. path holds the chain that
// led here; reaching a node already on it closes a cycle. cleared records
// the depth at which a node's reachable set was fully explored without a
// cycle; the node is not entered again from that depth or shallower.
func (v *Validator) walk(graph map[string][]string, name string, path []string, cleared map[string]int) error {
	if depth, ok := cleared[name]; ok && len(path) <= depth {
		return nil
	}

	for i, visited := range path {
		if visited == name {
			cycle := make([]string, 0, len(path)-i+1)
			cycle = append(cycle, path[i:]...)
			cycle = append(cycle, name)

			e := newError(KindDependencyCycle, ModuleValidator,
				fmt.Sprintf("circular dependency detected: %s", formatCycle(cycle))).
				WithComponent(cycle[0])
			e.Cycle = cycle
			return e
		}
	}

	if len(path) >= v.maxDepth {
		chain := append(append([]string(nil), path...), name)
		e := newError(KindDependencyCycle, ModuleValidator,
			fmt.Sprintf("dependency chain exceeds maximum depth %d: %s", v.maxDepth, formatCycle(chain))).
			WithComponent(path[0]).
			WithDetail("max_depth", v.maxDepth)
		e.Cycle = chain
		return e
	}

	path = append(path, name)
	for _, dep := range graph[name] {
		if _, registered := graph[dep]; !registered {
			continue
		}
		if err := v.walk(graph, dep, path, cleared); err != nil {
			return err
		}
	}

	cleared[name] = len(path) - 1
	return nil
}

// buildGraph maps each handle's name to its dependency names. Names and
// dependencies are immutable after registration, so no lock is needed.
func buildGraph(handles []Handle) map[string][]string {
	graph := make(map[string][]string, len(handles))
	for _, h := range handles {
		deps := make([]string, 0, len(h.rec.desc.Dependencies))
		for _, dep := range h.rec.desc.Dependencies {
			deps = append(deps, dep.Name)
		}
		graph[h.Name()] = deps
	}
	return graph
}

// formatCycle formats a dependency chain for error messages.
func formatCycle(cycle []string) string {
	if len(cycle) == 0 {
		return ""
	}
	return strings.Join(cycle, " -> ")
}
