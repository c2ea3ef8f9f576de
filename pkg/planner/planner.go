// Package planner decomposes natural-language goals into validated task
// graphs ready for DAG execution.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/eap-project/eap/pkg/agent"
	"github.com/eap-project/eap/pkg/llm"
	"github.com/eap-project/eap/pkg/models"
)

const (
	decomposeTemperature = 0.5
	decomposeMaxTokens   = 2048
)

// GoalLoader supplies a user's active goals for planning context.
// Implemented by the goal service; nil disables goal context entirely.
type GoalLoader interface {
	ActiveGoals(ctx context.Context, tenantID, userID string) ([]models.UserGoal, error)
}

// Planner turns a goal string into a TaskGraph via one LLM decomposition
// call. Planners are stateless and safe for concurrent use.
type Planner struct {
	llm      llm.Client
	registry *agent.Registry
	goals    GoalLoader
	logger   *slog.Logger
}

// New creates a planner. goals may be nil.
func New(client llm.Client, registry *agent.Registry, goals GoalLoader) *Planner {
	return &Planner{
		llm:      client,
		registry: registry,
		goals:    goals,
		logger:   slog.With("component", "planner"),
	}
}

// DecomposeInput carries everything one decomposition needs.
type DecomposeInput struct {
	Goal string
	Role models.Role

	// TenantID/UserID, when set, load the user's active goals as planning
	// context so the planner avoids duplicating completed work.
	TenantID string
	UserID   string

	// RequestingUserID guards goal disclosure: when set and different from
	// UserID, the goal load is silently skipped.
	RequestingUserID string

	// Agents overrides the available agent set. Empty = registry filtered
	// by Role.
	Agents []agent.Spec
}

// decomposedTask is the strict JSON schema the LLM is asked to emit.
type decomposedTask struct {
	ID           string   `json:"id"`
	Description  string   `json:"description"`
	AgentID      string   `json:"agent_id"`
	Dependencies []string `json:"dependencies"`
}

type decomposition struct {
	Tasks []decomposedTask `json:"tasks"`
}

// Decompose plans a goal into a validated task graph. A malformed LLM
// response never fails the call: it degrades to a single-task graph whose
// agent is the first available agent, with the failure recorded in graph
// metadata for prompt-drift diagnosis.
func (p *Planner) Decompose(ctx context.Context, in DecomposeInput) (*models.TaskGraph, error) {
	if strings.TrimSpace(in.Goal) == "" {
		return nil, fmt.Errorf("goal must not be empty")
	}

	agents := in.Agents
	if len(agents) == 0 {
		agents = p.registry.FilterByRole(in.Role)
	}
	if len(agents) == 0 {
		return nil, fmt.Errorf("no agents available for role %q", in.Role)
	}

	goalContext := p.loadGoalContext(ctx, in)

	resp, err := p.llm.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: "system", Content: decomposeSystemPrompt},
			{Role: "user", Content: buildDecomposePrompt(in.Goal, agents, goalContext)},
		},
		Temperature: decomposeTemperature,
		MaxTokens:   decomposeMaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("decomposition call failed: %w", err)
	}

	graph, parseErr := parseDecomposition(llm.ExtractText(resp), in.Goal, agents)
	if parseErr != nil {
		p.logger.Warn("Decomposition parse failed, using single-task fallback",
			"goal", in.Goal, "error", parseErr)
		return fallbackGraph(in.Goal, agents, parseErr), nil
	}

	if err := ValidateGraph(graph); err != nil {
		p.logger.Warn("Decomposed graph failed validation, using single-task fallback",
			"goal", in.Goal, "error", err)
		return fallbackGraph(in.Goal, agents, err), nil
	}
	return graph, nil
}

// loadGoalContext loads the requester's active goals. Cross-user loads
// are silently skipped — no error, no context.
func (p *Planner) loadGoalContext(ctx context.Context, in DecomposeInput) []models.UserGoal {
	if p.goals == nil || in.TenantID == "" || in.UserID == "" {
		return nil
	}
	if in.RequestingUserID != "" && in.RequestingUserID != in.UserID {
		return nil
	}
	goals, err := p.goals.ActiveGoals(ctx, in.TenantID, in.UserID)
	if err != nil {
		p.logger.Warn("Failed to load active goals for planning context", "error", err)
		return nil
	}
	return goals
}

const decomposeSystemPrompt = `You are a planning engine that decomposes goals into task graphs.
Respond with ONLY a JSON object of the form:
{"tasks": [{"id": "...", "description": "...", "agent_id": "...", "dependencies": ["..."]}]}
Rules:
- Each task is assigned to exactly one agent from the catalog.
- dependencies lists ids of tasks that must complete first.
- The graph must be acyclic.`

func buildDecomposePrompt(goal string, agents []agent.Spec, activeGoals []models.UserGoal) string {
	var b strings.Builder
	b.WriteString("Available agents:\n")
	for _, spec := range agents {
		fmt.Fprintf(&b, "- %s: %s (capabilities: %s)\n",
			spec.ID, spec.Description, strings.Join(spec.Capability, ", "))
	}
	if len(activeGoals) > 0 {
		b.WriteString("\nThe user is already pursuing these goals; avoid duplicating work:\n")
		for _, g := range activeGoals {
			fmt.Fprintf(&b, "- %s\n", g.GoalText)
		}
	}
	fmt.Fprintf(&b, "\nDecompose this goal into tasks:\n%s\n", goal)
	return b.String()
}

// parseDecomposition turns the LLM output into a graph. Unknown agent ids
// are remapped to the first available agent with the request noted in node
// metadata.
func parseDecomposition(content, goal string, agents []agent.Spec) (*models.TaskGraph, error) {
	raw := llm.ExtractJSON(content)
	if raw == "" {
		return nil, fmt.Errorf("no JSON object in response")
	}
	var parsed decomposition
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("malformed decomposition JSON: %w", err)
	}
	if len(parsed.Tasks) == 0 {
		return nil, fmt.Errorf("decomposition contains no tasks")
	}

	available := make(map[string]bool, len(agents))
	for _, spec := range agents {
		available[spec.ID] = true
	}

	graph := models.NewTaskGraph(goal)
	for i, task := range parsed.Tasks {
		if task.ID == "" {
			return nil, fmt.Errorf("task %d has no id", i)
		}
		node := &models.TaskNode{
			ID:           task.ID,
			Description:  task.Description,
			AgentID:      task.AgentID,
			Dependencies: task.Dependencies,
		}
		if !available[task.AgentID] {
			node.Metadata = map[string]any{"requested_agent": task.AgentID}
			node.AgentID = agents[0].ID
		}
		graph.AddNode(node)
	}
	return graph, nil
}

// fallbackGraph is the single-task degradation for unusable decompositions.
func fallbackGraph(goal string, agents []agent.Spec, cause error) *models.TaskGraph {
	graph := models.NewTaskGraph(goal)
	graph.Metadata["decompose_fallback"] = true
	graph.Metadata["decompose_error"] = cause.Error()
	graph.AddNode(&models.TaskNode{
		ID:          "task-1",
		Description: goal,
		AgentID:     agents[0].ID,
	})
	return graph
}
