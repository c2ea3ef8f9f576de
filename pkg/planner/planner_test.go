package planner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eap-project/eap/pkg/agent"
	"github.com/eap-project/eap/pkg/llm/llmtest"
	"github.com/eap-project/eap/pkg/models"
)

func plannerRegistry(t *testing.T) *agent.Registry {
	t.Helper()
	reg, err := agent.NewRegistry([]agent.Spec{
		{ID: "security", Description: "Security reviewer", Capability: []string{"threat-model"}},
		{ID: "dev", Description: "Implementation", Capability: []string{"code"}},
		{ID: "qa", Description: "Testing", Capability: []string{"test"}},
	}, agent.NewSpecialist)
	require.NoError(t, err)
	return reg
}

type fakeGoalLoader struct {
	goals  []models.UserGoal
	loads  int
	lastID string
}

func (f *fakeGoalLoader) ActiveGoals(_ context.Context, _, userID string) ([]models.UserGoal, error) {
	f.loads++
	f.lastID = userID
	return f.goals, nil
}

const validDecomposition = `{"tasks": [
	{"id": "security", "description": "Review security posture", "agent_id": "security", "dependencies": []},
	{"id": "impl", "description": "Implement the service", "agent_id": "dev", "dependencies": ["security"]},
	{"id": "test", "description": "Run the test suite", "agent_id": "qa", "dependencies": ["impl"]}
]}`

func TestDecompose_ThreeTaskSequential(t *testing.T) {
	client := llmtest.NewScripted(llmtest.Reply{Content: validDecomposition})
	p := New(client, plannerRegistry(t), nil)

	graph, err := p.Decompose(context.Background(), DecomposeInput{
		Goal: "Deploy service X",
		Role: models.RoleOperator,
	})
	require.NoError(t, err)

	require.Len(t, graph.Nodes, 3)
	assert.NoError(t, ValidateGraph(graph))

	order, err := TopologicalSort(graph)
	require.NoError(t, err)
	assert.Equal(t, []string{"security", "impl", "test"}, order)
}

func TestDecompose_MalformedJSONFallsBack(t *testing.T) {
	client := llmtest.NewScripted(llmtest.Reply{Content: "I think you should start by..."})
	p := New(client, plannerRegistry(t), nil)

	graph, err := p.Decompose(context.Background(), DecomposeInput{
		Goal: "Deploy service X",
		Role: models.RoleViewer,
	})
	require.NoError(t, err)

	// Exactly one node, assigned to an available agent, description = raw goal.
	require.Len(t, graph.Nodes, 1)
	node := graph.Nodes["task-1"]
	require.NotNil(t, node)
	assert.Equal(t, "Deploy service X", node.Description)
	assert.Equal(t, "dev", node.AgentID)
	assert.Equal(t, true, graph.Metadata["decompose_fallback"])
	assert.NotEmpty(t, graph.Metadata["decompose_error"])
}

func TestDecompose_CyclicResultFallsBack(t *testing.T) {
	cyclic := `{"tasks": [
		{"id": "a", "description": "first", "agent_id": "dev", "dependencies": ["b"]},
		{"id": "b", "description": "second", "agent_id": "dev", "dependencies": ["a"]}
	]}`
	client := llmtest.NewScripted(llmtest.Reply{Content: cyclic})
	p := New(client, plannerRegistry(t), nil)

	graph, err := p.Decompose(context.Background(), DecomposeInput{Goal: "loop", Role: models.RoleViewer})
	require.NoError(t, err)
	assert.Len(t, graph.Nodes, 1)
	assert.Equal(t, true, graph.Metadata["decompose_fallback"])
}

func TestDecompose_UnknownAgentRemapped(t *testing.T) {
	decomp := `{"tasks": [{"id": "t1", "description": "do it", "agent_id": "mystery", "dependencies": []}]}`
	client := llmtest.NewScripted(llmtest.Reply{Content: decomp})
	p := New(client, plannerRegistry(t), nil)

	graph, err := p.Decompose(context.Background(), DecomposeInput{Goal: "g", Role: models.RoleViewer})
	require.NoError(t, err)
	node := graph.Nodes["t1"]
	require.NotNil(t, node)
	assert.Equal(t, "dev", node.AgentID)
	assert.Equal(t, "mystery", node.Metadata["requested_agent"])
}

func TestDecompose_GoalContextInjected(t *testing.T) {
	loader := &fakeGoalLoader{goals: []models.UserGoal{{GoalText: "Migrate the database"}}}
	client := llmtest.NewScripted(llmtest.Reply{Content: validDecomposition})
	p := New(client, plannerRegistry(t), loader)

	_, err := p.Decompose(context.Background(), DecomposeInput{
		Goal:     "Deploy service X",
		Role:     models.RoleOperator,
		TenantID: "t1",
		UserID:   "u1",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, loader.loads)

	calls := client.Calls()
	require.Len(t, calls, 1)
	prompt := calls[0].Request.Messages[1].Content
	assert.Contains(t, prompt, "Migrate the database")
}

func TestDecompose_CrossUserGoalLoadSkipped(t *testing.T) {
	loader := &fakeGoalLoader{goals: []models.UserGoal{{GoalText: "secret goal"}}}
	client := llmtest.NewScripted(llmtest.Reply{Content: validDecomposition})
	p := New(client, plannerRegistry(t), loader)

	_, err := p.Decompose(context.Background(), DecomposeInput{
		Goal:             "Deploy service X",
		Role:             models.RoleOperator,
		TenantID:         "t1",
		UserID:           "u1",
		RequestingUserID: "u2",
	})
	require.NoError(t, err)

	// Silently skipped: no load, no goal text in the prompt, no error.
	assert.Equal(t, 0, loader.loads)
	prompt := client.Calls()[0].Request.Messages[1].Content
	assert.NotContains(t, prompt, "secret goal")
}

func TestDecompose_CallParameters(t *testing.T) {
	client := llmtest.NewScripted(llmtest.Reply{Content: validDecomposition})
	p := New(client, plannerRegistry(t), nil)

	_, err := p.Decompose(context.Background(), DecomposeInput{Goal: "g", Role: models.RoleViewer})
	require.NoError(t, err)

	req := client.Calls()[0].Request
	assert.InDelta(t, 0.5, req.Temperature, 0.001)
	assert.Equal(t, 2048, req.MaxTokens)
	// Agent catalog is rendered into the prompt.
	assert.Contains(t, req.Messages[1].Content, "- security: Security reviewer (capabilities: threat-model)")
}

func TestDecompose_EmptyGoalRejected(t *testing.T) {
	p := New(llmtest.NewScripted(), plannerRegistry(t), nil)
	_, err := p.Decompose(context.Background(), DecomposeInput{Goal: "  ", Role: models.RoleViewer})
	assert.Error(t, err)
}
