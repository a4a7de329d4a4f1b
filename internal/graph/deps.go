package graph

import (
	"fmt"
	"sort"
	"strings"
)

// Cycles returns every dependency cycle reachable in the linked graph, each
// as a name path that starts and ends on the same node. Every cycle is
// reported once, from the first of its nodes in declaration order.
func (r *Registry) Cycles() [][]string {
	ids := r.cycleIDs()
	cycles := make([][]string, len(ids))
	for i, path := range ids {
		cycles[i] = r.names(path)
	}
	return cycles
}

func (r *Registry) names(ids []NodeID) []string {
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = r.node(id).Name
	}
	return names
}

// cycleIDs is Cycles over arena ids, which stay distinct when a name has
// been re-declared.
func (r *Registry) cycleIDs() [][]NodeID {
	const (
		white = iota
		grey
		black
	)
	color := make([]uint8, len(r.nodes)+1)
	var stack []NodeID
	var cycles [][]NodeID

	var visit func(id NodeID)
	visit = func(id NodeID) {
		color[id] = grey
		stack = append(stack, id)
		for _, dep := range r.node(id).Dependencies() {
			if r.node(dep) == nil {
				continue
			}
			switch color[dep] {
			case white:
				visit(dep)
			case grey:
				start := len(stack) - 1
				for stack[start] != dep {
					start--
				}
				path := make([]NodeID, 0, len(stack)-start+1)
				path = append(path, stack[start:]...)
				cycles = append(cycles, append(path, dep))
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
	}

	for i := range r.nodes {
		if id := r.nodes[i].ID; color[id] == white {
			visit(id)
		}
	}
	return cycles
}

// Dependents maps each node to the nodes whose operand refers to it.
func (r *Registry) Dependents() map[NodeID][]NodeID {
	graph := make(map[NodeID][]NodeID)
	for i := range r.nodes {
		n := &r.nodes[i]
		seen := make(map[NodeID]bool)
		for _, dep := range n.Dependencies() {
			if dep == n.ID || seen[dep] {
				continue
			}
			seen[dep] = true
			graph[dep] = append(graph[dep], n.ID)
		}
	}
	return graph
}

// ImpactReport lists, level by level, the nodes whose resolved value
// changes when Root changes.
type ImpactReport struct {
	Root   string
	Levels [][]string
}

// Impact walks the dependents of the node registered under name
// breadth-first.
func (r *Registry) Impact(name string) (ImpactReport, error) {
	root, ok := r.byName[name]
	if !ok {
		return ImpactReport{}, fmt.Errorf("%w: %s", ErrNodeNotFound, name)
	}
	dependents := r.Dependents()
	visited := map[NodeID]bool{root: true}
	frontier := []NodeID{root}
	report := ImpactReport{Root: name}

	for len(frontier) > 0 {
		var next []NodeID
		for _, id := range frontier {
			for _, dep := range dependents[id] {
				if visited[dep] {
					continue
				}
				visited[dep] = true
				next = append(next, dep)
			}
		}
		if len(next) == 0 {
			break
		}
		names := make([]string, len(next))
		for i, id := range next {
			names[i] = r.node(id).Name
		}
		sort.Strings(names)
		report.Levels = append(report.Levels, names)
		frontier = next
	}
	return report, nil
}

// FormatImpact renders an impact report as indented text.
func FormatImpact(report ImpactReport) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("  %s\n", report.Root))
	for i, level := range report.Levels {
		b.WriteString(fmt.Sprintf("    level %d (%d): %s\n", i+1, len(level), strings.Join(level, ", ")))
	}
	return b.String()
}
