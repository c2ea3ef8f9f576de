// Package executor walks a validated task graph in topologically ordered
// waves, running each wave's tasks concurrently through the agent registry.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/eap-project/eap/pkg/agent"
	"github.com/eap-project/eap/pkg/llm"
	"github.com/eap-project/eap/pkg/models"
	"github.com/eap-project/eap/pkg/planner"
)

// DefaultMaxParallelTasks caps intra-wave concurrency when the execution
// context does not set its own limit.
const DefaultMaxParallelTasks = 8

// ExecContext carries the per-execution scope: whose plan this is, which
// model tier to route to, and any conversation history the agents see.
type ExecContext struct {
	TenantID     string
	UserID       string
	Model        string
	Conversation []llm.Message

	// MaxParallelTasks limits concurrent tasks within a wave.
	// Zero or negative uses DefaultMaxParallelTasks.
	MaxParallelTasks int
}

// Executor runs task graphs. Safe for concurrent use; all mutable state
// lives in the graph being executed.
type Executor struct {
	llm      llm.Client
	registry *agent.Registry
	memory   agent.MemoryProvider
	logger   *slog.Logger
}

// New creates an executor. memory may be nil.
func New(client llm.Client, registry *agent.Registry, memory agent.MemoryProvider) *Executor {
	return &Executor{
		llm:      client,
		registry: registry,
		memory:   memory,
		logger:   slog.With("component", "executor"),
	}
}

// ExecuteGraph runs the graph to completion and returns the ids of tasks
// that completed successfully, in wave order.
//
// Scheduling: tasks whose dependencies have all terminated form a wave and
// run concurrently, capped by MaxParallelTasks. A task failure is recorded
// in its node; running peers are not cancelled and independent branches
// keep executing. Unborn dependents of a failed task are skipped and marked
// failed. Every node reaches a terminal state before ExecuteGraph returns.
func (e *Executor) ExecuteGraph(ctx context.Context, g *models.TaskGraph, exec ExecContext) ([]string, error) {
	if err := planner.ValidateGraph(g); err != nil {
		return nil, fmt.Errorf("refusing to execute invalid graph: %w", err)
	}

	limit := exec.MaxParallelTasks
	if limit <= 0 {
		limit = DefaultMaxParallelTasks
	}

	inDegree := planner.InDegrees(g)
	completed := make([]string, 0, len(g.Nodes))
	wave := 0

	for len(inDegree) > 0 {
		ready := make([]string, 0, len(inDegree))
		for id, deg := range inDegree {
			if deg == 0 {
				ready = append(ready, id)
			}
		}
		if len(ready) == 0 {
			// Validation guarantees acyclicity, so this is a contract
			// violation, not a user error.
			return completed, fmt.Errorf("execution deadlock: %d tasks blocked with no runnable wave", len(inDegree))
		}
		sort.Strings(ready)
		for _, id := range ready {
			delete(inDegree, id)
		}

		e.logger.Info("Starting execution wave",
			"wave", wave, "tasks", len(ready), "goal", g.RootGoal)

		var group errgroup.Group
		group.SetLimit(limit)
		for _, id := range ready {
			node := g.Nodes[id]
			if dep := failedDependency(g, node); dep != "" {
				e.failTask(node, fmt.Errorf("skipped: dependency %q failed", dep))
				continue
			}
			node.Status = models.TaskStatusRunning
			group.Go(func() error {
				e.runTask(ctx, g, node, exec)
				return nil
			})
		}
		group.Wait() //nolint:errcheck // task errors are recorded in nodes

		for _, id := range ready {
			if g.Nodes[id].Status == models.TaskStatusComplete {
				completed = append(completed, id)
			}
			for _, dependent := range g.Edges[id] {
				if _, pending := inDegree[dependent]; pending {
					inDegree[dependent]--
				}
			}
		}
		wave++
	}
	return completed, nil
}

// runTask executes one node and records the outcome on it. Never returns
// an error: failures terminate the node, not the graph.
func (e *Executor) runTask(ctx context.Context, g *models.TaskGraph, node *models.TaskNode, exec ExecContext) {
	started := time.Now()

	instance, err := e.registry.CreateAgent(node.AgentID, agent.Deps{
		LLM:      e.llm,
		Memory:   e.memory,
		TenantID: exec.TenantID,
		Model:    exec.Model,
	})
	if err != nil {
		e.failTask(node, err)
		return
	}

	resp, err := instance.Process(ctx, buildTaskMessage(g, node), exec.Conversation)
	if err != nil {
		e.failTask(node, err)
		return
	}

	node.Status = models.TaskStatusComplete
	node.Result = &models.TaskResult{
		Content:     resp.Content,
		CompletedAt: time.Now(),
	}
	if node.Metadata == nil {
		node.Metadata = make(map[string]any)
	}
	node.Metadata["model"] = resp.Model
	node.Metadata["duration_ms"] = time.Since(started).Milliseconds()

	e.logger.Info("Task complete",
		"task_id", node.ID, "agent_id", node.AgentID, "duration", time.Since(started))
}

func (e *Executor) failTask(node *models.TaskNode, err error) {
	node.Status = models.TaskStatusFailed
	node.Result = &models.TaskResult{
		Error:       err.Error(),
		CompletedAt: time.Now(),
	}
	e.logger.Error("Task failed",
		"task_id", node.ID, "agent_id", node.AgentID, "error", err)
}

// failedDependency returns the id of a failed direct dependency, or "".
func failedDependency(g *models.TaskGraph, node *models.TaskNode) string {
	for _, dep := range node.Dependencies {
		if depNode, ok := g.Nodes[dep]; ok && depNode.Status == models.TaskStatusFailed {
			return dep
		}
	}
	return ""
}

// buildTaskMessage assembles the prompt for one task: the description plus
// the result content of every completed direct dependency.
func buildTaskMessage(g *models.TaskGraph, node *models.TaskNode) string {
	var b strings.Builder
	b.WriteString(node.Description)

	var blocks []string
	for _, dep := range node.Dependencies {
		depNode, ok := g.Nodes[dep]
		if !ok || depNode.Status != models.TaskStatusComplete || depNode.Result == nil {
			continue
		}
		blocks = append(blocks, fmt.Sprintf("[%s] %s:\n%s", dep, depNode.Description, depNode.Result.Content))
	}
	if len(blocks) > 0 {
		b.WriteString("\n\nContext from dependencies:\n\n")
		b.WriteString(strings.Join(blocks, "\n\n"))
	}
	return b.String()
}
