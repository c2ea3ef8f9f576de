package models

import (
	"encoding/json"
	"time"
)

// PlanStatus is the approval-workflow state of a stored execution plan.
// Lifecycle: draft → {approved, rejected}; approved → executing → {complete, failed}.
type PlanStatus string

// Plan statuses.
const (
	PlanStatusDraft     PlanStatus = "draft"
	PlanStatusApproved  PlanStatus = "approved"
	PlanStatusRejected  PlanStatus = "rejected"
	PlanStatusExecuting PlanStatus = "executing"
	PlanStatusComplete  PlanStatus = "complete"
	PlanStatusFailed    PlanStatus = "failed"
)

// PlanRecord persists a decomposed goal across the approval workflow.
//
// Invariant: approve/reject are only legal from draft; ApprovedAt is
// non-null iff the plan has ever been approved.
type PlanRecord struct {
	ID            string          `db:"id" json:"id"`
	TenantID      string          `db:"tenant_id" json:"tenant_id"`
	CreatedBy     string          `db:"created_by" json:"created_by"`
	Goal          string          `db:"goal" json:"goal"`
	Status        PlanStatus      `db:"status" json:"status"`
	GraphJSON     json.RawMessage `db:"graph_json" json:"graph_json"`
	ExecutionPlan string          `db:"execution_plan" json:"execution_plan"`
	MetadataJSON  json.RawMessage `db:"metadata_json" json:"metadata_json,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
	ApprovedBy    *string         `db:"approved_by" json:"approved_by,omitempty"`
	ApprovedAt    *time.Time      `db:"approved_at" json:"approved_at,omitempty"`
	RejectedBy    *string         `db:"rejected_by" json:"rejected_by,omitempty"`
	RejectedAt    *time.Time      `db:"rejected_at" json:"rejected_at,omitempty"`
}

// GetTenantID implements policy.TenantOwned.
func (p PlanRecord) GetTenantID() string { return p.TenantID }

// Graph deserialises the stored task graph.
func (p *PlanRecord) Graph() (*TaskGraph, error) {
	return UnmarshalGraph(p.GraphJSON)
}

// GoalStatus is the lifecycle state of a user goal.
type GoalStatus string

// User goal statuses.
const (
	GoalStatusActive    GoalStatus = "active"
	GoalStatusCompleted GoalStatus = "completed"
	GoalStatusAbandoned GoalStatus = "abandoned"
)

// UserGoal tracks a long-running user objective. Agents may append to
// ProgressNotes; only the owning user or an admin transitions Status.
type UserGoal struct {
	ID            string     `db:"id" json:"id"`
	TenantID      string     `db:"tenant_id" json:"tenant_id"`
	UserID        string     `db:"user_id" json:"user_id"`
	GoalText      string     `db:"goal_text" json:"goal_text"`
	Status        GoalStatus `db:"status" json:"status"`
	ProgressNotes string     `db:"progress_notes" json:"progress_notes"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
	CompletedAt   *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}

// GetTenantID implements policy.TenantOwned.
func (g UserGoal) GetTenantID() string { return g.TenantID }
