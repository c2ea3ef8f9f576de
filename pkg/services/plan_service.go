package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/eap-project/eap/pkg/executor"
	"github.com/eap-project/eap/pkg/models"
	"github.com/eap-project/eap/pkg/planner"
	"github.com/eap-project/eap/pkg/policy"
	"github.com/eap-project/eap/pkg/webhook"
)

// PlanStore is the persistence contract for plans.
type PlanStore interface {
	Create(ctx context.Context, p *models.PlanRecord) error
	Get(ctx context.Context, tenantID, planID string) (*models.PlanRecord, error)
	List(ctx context.Context, tenantID string, limit, offset int) ([]models.PlanRecord, error)
	TransitionStatus(ctx context.Context, tenantID, planID string, from, to models.PlanStatus, actor string) error
	UpdateGraph(ctx context.Context, tenantID, planID string, graphJSON []byte) error
	Delete(ctx context.Context, tenantID, planID string) error
}

// MFAConfig gates plan approval.
type MFAConfig struct {
	Enabled    bool
	StaticCode string
}

// PlanService drives the plan lifecycle: decompose into a draft, approve
// or reject, execute, and record the outcome.
type PlanService struct {
	plans    PlanStore
	planner  *planner.Planner
	executor *executor.Executor
	audit    *AuditService
	events   EventPublisher
	mfa      MFAConfig
	logger   *slog.Logger
}

// NewPlanService creates a plan service. events may be nil.
func NewPlanService(plans PlanStore, p *planner.Planner, e *executor.Executor, audit *AuditService, events EventPublisher, mfa MFAConfig) *PlanService {
	return &PlanService{
		plans:    plans,
		planner:  p,
		executor: e,
		audit:    audit,
		events:   events,
		mfa:      mfa,
		logger:   slog.With("component", "plans"),
	}
}

// CreateDraft decomposes a goal and stores the result as a draft plan
// awaiting approval.
func (s *PlanService) CreateDraft(ctx context.Context, actor Actor, goal string) (*models.PlanRecord, error) {
	if err := policy.CheckPermission(actor.Role, policy.PermPlanCreate); err != nil {
		return nil, err
	}
	if goal == "" {
		return nil, NewValidationError("goal", "must not be empty")
	}

	graph, err := s.planner.Decompose(ctx, planner.DecomposeInput{
		Goal:     goal,
		Role:     actor.Role,
		TenantID: actor.TenantID,
		UserID:   actor.UserID,
	})
	if err != nil {
		s.recordPlanAudit(ctx, actor, "plan.create", "", models.AuditStatusFailure)
		return nil, fmt.Errorf("decomposition failed: %w", err)
	}

	graphJSON, err := models.MarshalGraph(graph)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize graph: %w", err)
	}
	planText, err := planner.ExecutionPlanText(graph)
	if err != nil {
		return nil, fmt.Errorf("failed to render execution plan: %w", err)
	}

	record := &models.PlanRecord{
		TenantID:      actor.TenantID,
		CreatedBy:     actor.UserID,
		Goal:          goal,
		Status:        models.PlanStatusDraft,
		GraphJSON:     graphJSON,
		ExecutionPlan: planText,
	}
	if err := s.plans.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to store plan: %w", err)
	}

	s.recordPlanAudit(ctx, actor, "plan.create", record.ID, models.AuditStatusSuccess)
	return record, nil
}

// Get returns a plan within the actor's tenant.
func (s *PlanService) Get(ctx context.Context, actor Actor, planID string) (*models.PlanRecord, error) {
	return s.plans.Get(ctx, actor.TenantID, planID)
}

// List returns the actor's tenant's plans.
func (s *PlanService) List(ctx context.Context, actor Actor, limit, offset int) ([]models.PlanRecord, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.plans.List(ctx, actor.TenantID, limit, offset)
}

// Approve moves a draft plan to approved. Approval is a critical-risk
// operation and passes the MFA gate first. A plan that already left
// draft cannot be approved again.
func (s *PlanService) Approve(ctx context.Context, actor Actor, planID, mfaCode string) error {
	if err := policy.CheckPermission(actor.Role, policy.PermPlanApprove); err != nil {
		return err
	}
	if err := s.checkMFA(mfaCode); err != nil {
		s.recordPlanAudit(ctx, actor, "plan.approve", planID, models.AuditStatusFailure)
		return err
	}
	if err := s.transitionFromDraft(ctx, actor, planID, models.PlanStatusApproved); err != nil {
		s.recordPlanAudit(ctx, actor, "plan.approve", planID, models.AuditStatusFailure)
		return err
	}
	s.recordPlanAudit(ctx, actor, "plan.approve", planID, models.AuditStatusSuccess)
	return nil
}

// Reject moves a draft plan to rejected.
func (s *PlanService) Reject(ctx context.Context, actor Actor, planID string) error {
	if err := policy.CheckPermission(actor.Role, policy.PermPlanApprove); err != nil {
		return err
	}
	if err := s.transitionFromDraft(ctx, actor, planID, models.PlanStatusRejected); err != nil {
		s.recordPlanAudit(ctx, actor, "plan.reject", planID, models.AuditStatusFailure)
		return err
	}
	s.recordPlanAudit(ctx, actor, "plan.reject", planID, models.AuditStatusSuccess)
	return nil
}

// transitionFromDraft distinguishes "gone" from "already decided": a
// failed draft transition against an existing plan is an invalid
// transition, not a missing resource.
func (s *PlanService) transitionFromDraft(ctx context.Context, actor Actor, planID string, to models.PlanStatus) error {
	err := s.plans.TransitionStatus(ctx, actor.TenantID, planID, models.PlanStatusDraft, to, actor.UserID)
	if err == nil {
		return nil
	}
	if errors.Is(err, policy.ErrNotFound) {
		plan, getErr := s.plans.Get(ctx, actor.TenantID, planID)
		if getErr != nil {
			return getErr
		}
		return fmt.Errorf("%w: plan is %s, not draft", ErrInvalidTransition, plan.Status)
	}
	return err
}

// checkMFA validates the approval code. With MFA disabled any non-empty
// code passes; the code is still required so approvals stay deliberate.
func (s *PlanService) checkMFA(code string) error {
	if code == "" {
		return ErrMFARequired
	}
	if s.mfa.Enabled && code != s.mfa.StaticCode {
		return ErrMFARequired
	}
	return nil
}

// Execute runs an approved plan's graph and records the terminal status.
// The agent.completed event fires on completion either way.
func (s *PlanService) Execute(ctx context.Context, actor Actor, planID string) (*models.PlanRecord, error) {
	if err := policy.CheckPermission(actor.Role, policy.PermPlanCreate); err != nil {
		return nil, err
	}

	plan, err := s.plans.Get(ctx, actor.TenantID, planID)
	if err != nil {
		return nil, err
	}
	if err := s.plans.TransitionStatus(ctx, actor.TenantID, planID,
		models.PlanStatusApproved, models.PlanStatusExecuting, actor.UserID); err != nil {
		if errors.Is(err, policy.ErrNotFound) {
			return nil, fmt.Errorf("%w: plan is %s, not approved", ErrInvalidTransition, plan.Status)
		}
		return nil, err
	}

	graph, err := plan.Graph()
	if err != nil {
		return nil, fmt.Errorf("stored graph is unreadable: %w", err)
	}

	started := time.Now()
	completed, execErr := s.executor.ExecuteGraph(ctx, graph, executor.ExecContext{
		TenantID: actor.TenantID,
		UserID:   actor.UserID,
	})

	finalStatus := models.PlanStatusComplete
	if execErr != nil || len(completed) < len(graph.Nodes) {
		finalStatus = models.PlanStatusFailed
	}

	if graphJSON, marshalErr := models.MarshalGraph(graph); marshalErr == nil {
		if err := s.plans.UpdateGraph(ctx, actor.TenantID, planID, graphJSON); err != nil {
			s.logger.Error("Failed to persist execution results", "plan_id", planID, "error", err)
		}
	}
	if err := s.plans.TransitionStatus(ctx, actor.TenantID, planID,
		models.PlanStatusExecuting, finalStatus, actor.UserID); err != nil {
		s.logger.Error("Failed to record final plan status", "plan_id", planID, "error", err)
	}

	latency := time.Since(started).Milliseconds()
	status := models.AuditStatusSuccess
	if finalStatus == models.PlanStatusFailed {
		status = models.AuditStatusFailure
	}
	s.audit.Record(ctx, models.AuditEntry{
		TenantID:     actor.TenantID,
		UserID:       actor.UserID,
		Action:       "plan.execute",
		ResourceType: "plan",
		ResourceID:   planID,
		Status:       status,
		LatencyMs:    &latency,
	})

	if s.events != nil {
		if err := s.events.Publish(ctx, actor.TenantID, webhook.EventAgentCompleted, map[string]any{
			"plan_id":         planID,
			"status":          finalStatus,
			"completed_tasks": len(completed),
			"total_tasks":     len(graph.Nodes),
		}); err != nil {
			s.logger.Warn("Failed to publish agent.completed event", "plan_id", planID, "error", err)
		}
	}

	if execErr != nil {
		return nil, fmt.Errorf("execution failed: %w", execErr)
	}
	return s.plans.Get(ctx, actor.TenantID, planID)
}

// Delete removes a plan within the actor's tenant.
func (s *PlanService) Delete(ctx context.Context, actor Actor, planID string) error {
	if err := policy.CheckPermission(actor.Role, policy.PermPlanCreate); err != nil {
		return err
	}
	if err := s.plans.Delete(ctx, actor.TenantID, planID); err != nil {
		return err
	}
	s.recordPlanAudit(ctx, actor, "plan.delete", planID, models.AuditStatusSuccess)
	return nil
}

func (s *PlanService) recordPlanAudit(ctx context.Context, actor Actor, action, planID string, status models.AuditStatus) {
	s.audit.Record(ctx, models.AuditEntry{
		TenantID:     actor.TenantID,
		UserID:       actor.UserID,
		Action:       action,
		ResourceType: "plan",
		ResourceID:   planID,
		Status:       status,
	})
}
