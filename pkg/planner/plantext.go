package planner

import (
	"fmt"
	"strings"

	"github.com/eap-project/eap/pkg/models"
)

// ExecutionPlanText renders a human-readable listing of the graph in
// topological order — advisory output shown to approvers.
func ExecutionPlanText(g *models.TaskGraph) (string, error) {
	order, err := TopologicalSort(g)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Execution plan for: %s\n", g.RootGoal)
	for i, id := range order {
		node := g.Nodes[id]
		fmt.Fprintf(&b, "%d. [%s] %s (agent: %s)", i+1, id, node.Description, node.AgentID)
		if len(node.Dependencies) > 0 {
			fmt.Fprintf(&b, " — after %s", strings.Join(node.Dependencies, ", "))
		}
		b.WriteByte('\n')
	}
	return b.String(), nil
}
