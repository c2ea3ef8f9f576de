package models

import (
	"encoding/json"
	"time"
)

// AuditStatus records whether an audited action succeeded.
type AuditStatus string

// Audit entry statuses.
const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusFailure AuditStatus = "failure"
)

// AuditEntry is one row of the append-only audit log. Every
// policy-relevant action writes one.
type AuditEntry struct {
	ID           int64           `db:"id" json:"id"`
	TenantID     string          `db:"tenant_id" json:"tenant_id"`
	UserID       string          `db:"user_id" json:"user_id"`
	Action       string          `db:"action" json:"action"`
	ResourceType string          `db:"resource_type" json:"resource_type"`
	ResourceID   string          `db:"resource_id" json:"resource_id"`
	Status       AuditStatus     `db:"status" json:"status"`
	ModelUsed    *string         `db:"model_used" json:"model_used,omitempty"`
	LatencyMs    *int64          `db:"latency_ms" json:"latency_ms,omitempty"`
	Extra        json.RawMessage `db:"extra_json" json:"extra,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
}

// GetTenantID implements policy.TenantOwned.
func (a AuditEntry) GetTenantID() string { return a.TenantID }
