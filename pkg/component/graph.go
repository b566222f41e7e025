package component

import (
	"fmt"
	"sort"
	"strings"
)

// OrderingConflict is a mandatory dependency that the priority order
// places at or after its dependent. A single BringUpAll pass cannot
// initialize the dependent; a second pass can.
type OrderingConflict struct {
	Component          string   `json:"component"`
	Priority           Priority `json:"priority"`
	Dependency         string   `json:"dependency"`
	DependencyPriority Priority `json:"dependency_priority"`
}

// String describes the conflict for logs and CLI output.
func (c OrderingConflict) String() string {
	return fmt.Sprintf("%s (priority %s) requires %s (priority %s), which is ordered after it",
		c.Component, c.Priority, c.Dependency, c.DependencyPriority)
}

// OrderingConflicts lists mandatory dependencies that sort at or after
// their dependent in bulk order. handles must be in registry order.
func (v *Validator) OrderingConflicts(handles []Handle) []OrderingConflict {
	position := make(map[string]int, len(handles))
	for i, h := range handles {
		position[h.Name()] = i
	}

	var conflicts []OrderingConflict
	for i, h := range handles {
		for _, dep := range h.rec.desc.Dependencies {
			if dep.Optional {
				continue
			}
			j, registered := position[dep.Name]
			if !registered || j < i {
				continue
			}
			conflicts = append(conflicts, OrderingConflict{
				Component:          h.Name(),
				Priority:           h.Priority(),
				Dependency:         dep.Name,
				DependencyPriority: handles[j].Priority(),
			})
		}
	}
	return conflicts
}

// ToDOT renders the dependency graph of handles in Graphviz DOT format.
// Components are clustered by priority and colored by status; mandatory
// edges are solid, optional edges dashed, and unregistered dependencies
// are drawn as dotted placeholder nodes.
func (v *Validator) ToDOT(handles []Handle) string {
	var sb strings.Builder

	sb.WriteString("digraph Components {\n")
	sb.WriteString("  rankdir=LR;\n")
	sb.WriteString("  node [shape=box, style=rounded];\n\n")

	byPriority := make(map[Priority][]Handle)
	registered := make(map[string]bool, len(handles))
	for _, h := range handles {
		byPriority[h.Priority()] = append(byPriority[h.Priority()], h)
		registered[h.Name()] = true
	}

	priorities := make([]Priority, 0, len(byPriority))
	for p := range byPriority {
		priorities = append(priorities, p)
	}
	sort.Slice(priorities, func(i, j int) bool { return priorities[i] < priorities[j] })

	for _, p := range priorities {
		sb.WriteString(fmt.Sprintf("  subgraph cluster_priority_%d {\n", int(p)))
		sb.WriteString(fmt.Sprintf("    label=\"Priority %s\";\n", p))
		sb.WriteString("    style=dashed;\n")
		for _, h := range byPriority[p] {
			status, ok := v.registry.statusOf(h)
			if !ok {
				continue
			}
			sb.WriteString(fmt.Sprintf("    %s [label=\"%s\\n%s\", fillcolor=%s, style=\"rounded,filled\"];\n",
				dotID(h.Name()), dotEscape(h.Name()), status, getStatusColor(status)))
		}
		sb.WriteString("  }\n\n")
	}

	missing := make(map[string]bool)
	for _, h := range handles {
		for _, dep := range h.rec.desc.Dependencies {
			if !registered[dep.Name] && !missing[dep.Name] {
				missing[dep.Name] = true
				sb.WriteString(fmt.Sprintf("  %s [style=dotted, color=red];\n", dotID(dep.Name)))
			}
			sb.WriteString(fmt.Sprintf("  %s -> %s [%s];\n",
				dotID(dep.Name), dotID(h.Name()), getDependencyStyle(dep)))
		}
	}

	sb.WriteString("}\n")
	return sb.String()
}

var dotEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// dotEscape escapes s for use inside a double-quoted DOT string.
func dotEscape(s string) string { return dotEscaper.Replace(s) }

// dotID returns s as a quoted DOT identifier.
func dotID(s string) string { return `"` + dotEscape(s) + `"` }

// getStatusColor returns a fill color for visualizing component status.
func getStatusColor(s Status) string {
	switch s {
	case StatusInitialized:
		return "lightblue"
	case StatusRunning:
		return "lightgreen"
	case StatusSuspended:
		return "khaki"
	case StatusError:
		return "lightcoral"
	default:
		return "lightgray"
	}
}

// getDependencyStyle returns a DOT style string for a dependency edge.
func getDependencyStyle(dep Dependency) string {
	if dep.Optional {
		return "style=dashed, color=blue"
	}
	return "style=solid, color=black"
}
