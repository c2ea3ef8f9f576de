package models

import "time"

// AgentMemory is one tenant+agent-scoped key/value memory entry.
// Uniqueness: (agent_id, tenant_id, key) — stores upsert.
type AgentMemory struct {
	ID          string         `db:"id" json:"id"`
	AgentID     string         `db:"agent_id" json:"agent_id"`
	TenantID    string         `db:"tenant_id" json:"tenant_id"`
	Key         string         `db:"key" json:"key"`
	Value       string         `db:"value" json:"value"`
	AccessCount int            `db:"access_count" json:"access_count"`
	Metadata    map[string]any `db:"-" json:"metadata,omitempty"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
}

// GetTenantID implements policy.TenantOwned.
func (m AgentMemory) GetTenantID() string { return m.TenantID }

// ScoredMemory pairs a memory with an LLM-assigned relevance score.
type ScoredMemory struct {
	AgentMemory
	Relevance float64 `json:"relevance"`
}
