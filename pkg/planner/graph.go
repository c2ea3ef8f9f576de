package planner

import (
	"fmt"
	"sort"

	"github.com/eap-project/eap/pkg/models"
)

// ValidateGraph checks the structural invariants of a task graph:
// every dependency id resolves to a node, and the graph is acyclic.
func ValidateGraph(g *models.TaskGraph) error {
	if g == nil || len(g.Nodes) == 0 {
		return fmt.Errorf("graph has no nodes")
	}
	for id, node := range g.Nodes {
		for _, dep := range node.Dependencies {
			if _, ok := g.Nodes[dep]; !ok {
				return fmt.Errorf("task %q depends on unknown task %q", id, dep)
			}
		}
	}
	if _, err := TopologicalSort(g); err != nil {
		return err
	}
	return nil
}

// TopologicalSort orders the graph's tasks so every task follows all of
// its dependencies (Kahn's algorithm). Returns an error when the graph
// contains a cycle. Ties are broken by task id for deterministic output.
func TopologicalSort(g *models.TaskGraph) ([]string, error) {
	inDegree := make(map[string]int, len(g.Nodes))
	for id, node := range g.Nodes {
		if _, ok := inDegree[id]; !ok {
			inDegree[id] = 0
		}
		for _, dep := range node.Dependencies {
			if _, ok := g.Nodes[dep]; ok {
				inDegree[id]++
			}
		}
	}

	ready := make([]string, 0, len(g.Nodes))
	for id, deg := range inDegree {
		if deg == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(g.Nodes))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)

		released := make([]string, 0)
		for _, dependent := range g.Edges[id] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				released = append(released, dependent)
			}
		}
		sort.Strings(released)
		ready = append(ready, released...)
	}

	if len(order) != len(g.Nodes) {
		return nil, fmt.Errorf("graph contains a cycle: sorted %d of %d tasks", len(order), len(g.Nodes))
	}
	return order, nil
}

// InDegrees returns a fresh in-degree map for wave scheduling. Only
// dependencies that resolve to real nodes are counted.
func InDegrees(g *models.TaskGraph) map[string]int {
	degrees := make(map[string]int, len(g.Nodes))
	for id, node := range g.Nodes {
		count := 0
		for _, dep := range node.Dependencies {
			if _, ok := g.Nodes[dep]; ok {
				count++
			}
		}
		degrees[id] = count
	}
	return degrees
}
