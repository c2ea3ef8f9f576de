package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/eap-project/eap/pkg/models"
	"github.com/eap-project/eap/pkg/policy"
)

// PlanRepo persists decomposed plans across the approval workflow.
type PlanRepo struct {
	db *sqlx.DB
}

const planColumns = `id, tenant_id, created_by, goal, status, graph_json, execution_plan,
	metadata_json, created_at, updated_at, approved_by, approved_at, rejected_by, rejected_at`

// Create inserts a draft plan.
func (r *PlanRepo) Create(ctx context.Context, p *models.PlanRecord) error {
	return r.db.QueryRowxContext(ctx,
		`INSERT INTO plans (tenant_id, created_by, goal, status, graph_json, execution_plan, metadata_json)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at, updated_at`,
		p.TenantID, p.CreatedBy, p.Goal, p.Status, p.GraphJSON, p.ExecutionPlan, p.MetadataJSON,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
}

// Get returns a plan by id within the requester's tenant. A plan owned by
// another tenant is indistinguishable from a missing one.
func (r *PlanRepo) Get(ctx context.Context, tenantID, planID string) (*models.PlanRecord, error) {
	filter, err := policy.TenantFilter[models.PlanRecord](tenantID)
	if err != nil {
		return nil, err
	}
	var p models.PlanRecord
	err = r.db.GetContext(ctx, &p,
		`SELECT `+planColumns+` FROM plans WHERE id = $1 AND `+filter.Predicate(2),
		planID, filter.TenantID())
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

// List returns a tenant's plans, newest first.
func (r *PlanRepo) List(ctx context.Context, tenantID string, limit, offset int) ([]models.PlanRecord, error) {
	filter, err := policy.TenantFilter[models.PlanRecord](tenantID)
	if err != nil {
		return nil, err
	}
	var plans []models.PlanRecord
	err = r.db.SelectContext(ctx, &plans,
		`SELECT `+planColumns+` FROM plans WHERE `+filter.Predicate(1)+`
		 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		filter.TenantID(), limit, offset)
	return plans, err
}

// TransitionStatus moves a plan between workflow states atomically: the
// UPDATE only matches when the plan is still in fromStatus, so two racing
// approvals cannot both succeed.
func (r *PlanRepo) TransitionStatus(ctx context.Context, tenantID, planID string, from, to models.PlanStatus, actor string) error {
	filter, err := policy.TenantFilter[models.PlanRecord](tenantID)
	if err != nil {
		return err
	}

	var query string
	args := []any{to, planID, from}
	switch to {
	case models.PlanStatusApproved:
		query = `UPDATE plans SET status = $1, approved_by = $4, approved_at = now(), updated_at = now()
			 WHERE id = $2 AND status = $3 AND ` + filter.Predicate(5)
		args = append(args, actor, filter.TenantID())
	case models.PlanStatusRejected:
		query = `UPDATE plans SET status = $1, rejected_by = $4, rejected_at = now(), updated_at = now()
			 WHERE id = $2 AND status = $3 AND ` + filter.Predicate(5)
		args = append(args, actor, filter.TenantID())
	default:
		query = `UPDATE plans SET status = $1, updated_at = now()
			 WHERE id = $2 AND status = $3 AND ` + filter.Predicate(4)
		args = append(args, filter.TenantID())
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to transition plan: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return policy.ErrNotFound
	}
	return nil
}

// UpdateGraph stores execution progress back onto the plan row.
func (r *PlanRepo) UpdateGraph(ctx context.Context, tenantID, planID string, graphJSON []byte) error {
	filter, err := policy.TenantFilter[models.PlanRecord](tenantID)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE plans SET graph_json = $1, updated_at = $2 WHERE id = $3 AND `+filter.Predicate(4),
		graphJSON, time.Now(), planID, filter.TenantID())
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return policy.ErrNotFound
	}
	return nil
}

// Delete removes a plan within the requester's tenant.
func (r *PlanRepo) Delete(ctx context.Context, tenantID, planID string) error {
	filter, err := policy.TenantFilter[models.PlanRecord](tenantID)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM plans WHERE id = $1 AND `+filter.Predicate(2),
		planID, filter.TenantID())
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return policy.ErrNotFound
	}
	return nil
}
