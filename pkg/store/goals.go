package store

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/eap-project/eap/pkg/models"
	"github.com/eap-project/eap/pkg/policy"
)

// GoalRepo persists long-running user goals.
type GoalRepo struct {
	db *sqlx.DB
}

const goalColumns = `id, tenant_id, user_id, goal_text, status, progress_notes,
	created_at, updated_at, completed_at`

// Create inserts an active goal.
func (r *GoalRepo) Create(ctx context.Context, g *models.UserGoal) error {
	if g.Status == "" {
		g.Status = models.GoalStatusActive
	}
	return r.db.QueryRowxContext(ctx,
		`INSERT INTO user_goals (tenant_id, user_id, goal_text, status, progress_notes)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at, updated_at`,
		g.TenantID, g.UserID, g.GoalText, g.Status, g.ProgressNotes,
	).Scan(&g.ID, &g.CreatedAt, &g.UpdatedAt)
}

// Get returns a goal by id within a tenant.
func (r *GoalRepo) Get(ctx context.Context, tenantID, goalID string) (*models.UserGoal, error) {
	filter, err := policy.TenantFilter[models.UserGoal](tenantID)
	if err != nil {
		return nil, err
	}
	var g models.UserGoal
	err = r.db.GetContext(ctx, &g,
		`SELECT `+goalColumns+` FROM user_goals WHERE id = $1 AND `+filter.Predicate(2),
		goalID, filter.TenantID())
	if err != nil {
		return nil, notFound(err)
	}
	return &g, nil
}

// ActiveForUser lists a user's active goals, newest first.
func (r *GoalRepo) ActiveForUser(ctx context.Context, tenantID, userID string) ([]models.UserGoal, error) {
	filter, err := policy.TenantFilter[models.UserGoal](tenantID)
	if err != nil {
		return nil, err
	}
	var goals []models.UserGoal
	err = r.db.SelectContext(ctx, &goals,
		`SELECT `+goalColumns+` FROM user_goals
		 WHERE user_id = $1 AND status = $2 AND `+filter.Predicate(3)+`
		 ORDER BY created_at DESC`,
		userID, models.GoalStatusActive, filter.TenantID())
	return goals, err
}

// AppendProgress adds a note to a goal's progress log.
func (r *GoalRepo) AppendProgress(ctx context.Context, tenantID, goalID, note string) error {
	filter, err := policy.TenantFilter[models.UserGoal](tenantID)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE user_goals
		 SET progress_notes = progress_notes || $1, updated_at = now()
		 WHERE id = $2 AND `+filter.Predicate(3),
		note+"\n", goalID, filter.TenantID())
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

// TransitionStatus moves a goal between lifecycle states.
func (r *GoalRepo) TransitionStatus(ctx context.Context, tenantID, goalID string, to models.GoalStatus) error {
	filter, err := policy.TenantFilter[models.UserGoal](tenantID)
	if err != nil {
		return err
	}
	var completedAt *time.Time
	if to == models.GoalStatusCompleted {
		now := time.Now()
		completedAt = &now
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE user_goals SET status = $1, completed_at = $2, updated_at = now()
		 WHERE id = $3 AND `+filter.Predicate(4),
		to, completedAt, goalID, filter.TenantID())
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
