package models

import (
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"
)

// TaskStatus is the lifecycle state of a task node.
// Lifecycle: pending → running → {complete | failed}.
type TaskStatus string

// Task node statuses.
const (
	TaskStatusPending  TaskStatus = "pending"
	TaskStatusRunning  TaskStatus = "running"
	TaskStatusComplete TaskStatus = "complete"
	TaskStatusFailed   TaskStatus = "failed"
)

// Terminal reports whether the status is a terminal state.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusComplete || s == TaskStatusFailed
}

// TaskResult is the outcome of a single executed task.
type TaskResult struct {
	Content     string    `json:"content"`
	Error       string    `json:"error,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}

// TaskNode is a single unit of work in a task graph, assigned to one agent.
type TaskNode struct {
	ID           string         `json:"id"`
	Description  string         `json:"description"`
	AgentID      string         `json:"agent_id"`
	Dependencies []string       `json:"dependencies"`
	Status       TaskStatus     `json:"status"`
	Result       *TaskResult    `json:"result,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// TaskGraph is a directed acyclic graph of agent tasks.
//
// Invariants:
//   - Edges is the reverse of Dependencies: Edges[a] lists every node that
//     depends on a.
//   - The graph is acyclic.
//   - Every id in any node's Dependencies exists in Nodes.
//
// The executor treats the structure as immutable and writes only per-node
// Status and Result.
type TaskGraph struct {
	Nodes    map[string]*TaskNode `json:"nodes"`
	Edges    map[string][]string  `json:"edges"`
	RootGoal string               `json:"root_goal"`
	Metadata map[string]any       `json:"metadata,omitempty"`
}

// NewTaskGraph creates an empty graph for the given goal.
func NewTaskGraph(rootGoal string) *TaskGraph {
	return &TaskGraph{
		Nodes:    make(map[string]*TaskNode),
		Edges:    make(map[string][]string),
		RootGoal: rootGoal,
		Metadata: make(map[string]any),
	}
}

// AddNode inserts a node and rebuilds its reverse edges.
// The node starts pending unless a status is already set.
func (g *TaskGraph) AddNode(n *TaskNode) {
	if n.Status == "" {
		n.Status = TaskStatusPending
	}
	g.Nodes[n.ID] = n
	for _, dep := range n.Dependencies {
		g.Edges[dep] = append(g.Edges[dep], n.ID)
	}
}

// canonicalNode is the stored-plan wire form of a task node.
type canonicalNode struct {
	ID            string     `json:"id"`
	Description   string     `json:"description"`
	AgentID       string     `json:"agent_id"`
	Dependencies  []string   `json:"dependencies"`
	Status        TaskStatus `json:"status"`
	ResultContent *string    `json:"result_content"`
}

type canonicalGraph struct {
	Nodes    map[string]canonicalNode `json:"nodes"`
	RootGoal string                   `json:"root_goal,omitempty"`
	Metadata map[string]any           `json:"metadata,omitempty"`
}

// resultPreviewLen caps stored result content in the canonical plan form.
const resultPreviewLen = 200

// resultPreview truncates result content to the preview cap on a rune
// boundary, so the stored form is always valid UTF-8.
func resultPreview(content string) *string {
	if len(content) > resultPreviewLen {
		cut := resultPreviewLen
		for cut > 0 && !utf8.RuneStart(content[cut]) {
			cut--
		}
		content = content[:cut]
	}
	return &content
}

// MarshalGraph serialises a graph into the canonical stored-plan JSON form:
// a nodes map keyed by task id, each node carrying at most the first 200
// bytes of its result content, cut on a rune boundary (null when absent).
func MarshalGraph(g *TaskGraph) ([]byte, error) {
	out := canonicalGraph{
		Nodes:    make(map[string]canonicalNode, len(g.Nodes)),
		RootGoal: g.RootGoal,
		Metadata: g.Metadata,
	}
	for id, n := range g.Nodes {
		cn := canonicalNode{
			ID:           n.ID,
			Description:  n.Description,
			AgentID:      n.AgentID,
			Dependencies: n.Dependencies,
			Status:       n.Status,
		}
		if cn.Dependencies == nil {
			cn.Dependencies = []string{}
		}
		if n.Result != nil {
			cn.ResultContent = resultPreview(n.Result.Content)
		}
		out.Nodes[id] = cn
	}
	return json.Marshal(out)
}

// UnmarshalGraph reconstructs a graph from its canonical JSON form,
// rebuilding the reverse-edge map from node dependencies.
func UnmarshalGraph(data []byte) (*TaskGraph, error) {
	var in canonicalGraph
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("failed to parse stored graph: %w", err)
	}
	g := NewTaskGraph(in.RootGoal)
	if in.Metadata != nil {
		g.Metadata = in.Metadata
	}
	for id, cn := range in.Nodes {
		node := &TaskNode{
			ID:           cn.ID,
			Description:  cn.Description,
			AgentID:      cn.AgentID,
			Dependencies: cn.Dependencies,
			Status:       cn.Status,
		}
		if node.ID == "" {
			node.ID = id
		}
		if cn.ResultContent != nil {
			node.Result = &TaskResult{Content: *cn.ResultContent}
		}
		g.AddNode(node)
	}
	return g, nil
}
