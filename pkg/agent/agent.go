// Package agent defines the specialist agent contract and the in-memory
// registry the planner and executor dispatch through. The core never
// imports concrete agent implementations directly — everything goes
// through the factory registry.
package agent

import (
	"context"

	"github.com/eap-project/eap/pkg/llm"
	"github.com/eap-project/eap/pkg/models"
)

// Spec describes a specialist agent: what it can do and who may use it.
type Spec struct {
	ID          string      `yaml:"id" json:"id"`
	Description string      `yaml:"description" json:"description"`
	Capability  []string    `yaml:"capabilities" json:"capabilities"`
	MinRole     models.Role `yaml:"min_role" json:"min_role"`
}

// Response is the outcome of one agent invocation.
type Response struct {
	Content  string
	Model    string
	Usage    llm.TokenUsage
	Metadata map[string]any
}

// Agent processes a single task message with conversation context.
type Agent interface {
	Process(ctx context.Context, message string, conv []llm.Message) (*Response, error)
}

// MemoryProvider supplies a formatted memory context block for an agent.
// Implemented by the memory service; nil means no memory recall.
type MemoryProvider interface {
	ContextForAgent(ctx context.Context, agentID, tenantID, query string, max int) (string, error)
}

// Deps carries the shared dependencies a factory needs to build an agent
// instance for one invocation scope.
type Deps struct {
	LLM      llm.Client
	Memory   MemoryProvider
	TenantID string
	Model    string // tier-routed model identifier; empty = client default
}

// Factory builds an agent instance from its spec and invocation deps.
type Factory func(spec Spec, deps Deps) Agent
