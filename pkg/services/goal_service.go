package services

import (
	"context"

	"github.com/eap-project/eap/pkg/models"
	"github.com/eap-project/eap/pkg/policy"
)

// GoalStore is the persistence contract for user goals.
type GoalStore interface {
	Create(ctx context.Context, g *models.UserGoal) error
	Get(ctx context.Context, tenantID, goalID string) (*models.UserGoal, error)
	ActiveForUser(ctx context.Context, tenantID, userID string) ([]models.UserGoal, error)
	AppendProgress(ctx context.Context, tenantID, goalID, note string) error
	TransitionStatus(ctx context.Context, tenantID, goalID string, to models.GoalStatus) error
}

// GoalService manages long-running user goals. Implements
// planner.GoalLoader for decomposition context.
type GoalService struct {
	goals GoalStore
}

// NewGoalService creates a goal service.
func NewGoalService(goals GoalStore) *GoalService {
	return &GoalService{goals: goals}
}

// Create records a new active goal owned by the actor.
func (s *GoalService) Create(ctx context.Context, actor Actor, goalText string) (*models.UserGoal, error) {
	if goalText == "" {
		return nil, NewValidationError("goal_text", "must not be empty")
	}
	g := &models.UserGoal{
		TenantID: actor.TenantID,
		UserID:   actor.UserID,
		GoalText: goalText,
		Status:   models.GoalStatusActive,
	}
	if err := s.goals.Create(ctx, g); err != nil {
		return nil, err
	}
	return g, nil
}

// ActiveGoals lists a user's active goals within a tenant. Implements
// planner.GoalLoader.
func (s *GoalService) ActiveGoals(ctx context.Context, tenantID, userID string) ([]models.UserGoal, error) {
	return s.goals.ActiveForUser(ctx, tenantID, userID)
}

// ListMine returns the actor's own active goals.
func (s *GoalService) ListMine(ctx context.Context, actor Actor) ([]models.UserGoal, error) {
	return s.goals.ActiveForUser(ctx, actor.TenantID, actor.UserID)
}

// AppendProgress adds a progress note. Agents call this on behalf of the
// owning user during execution, so ownership is not checked here; the
// tenant filter still applies.
func (s *GoalService) AppendProgress(ctx context.Context, actor Actor, goalID, note string) error {
	if note == "" {
		return NewValidationError("note", "must not be empty")
	}
	return s.goals.AppendProgress(ctx, actor.TenantID, goalID, note)
}

// Transition changes a goal's lifecycle status. Only the owning user or
// an admin may do this; anyone else sees the goal as missing.
func (s *GoalService) Transition(ctx context.Context, actor Actor, goalID string, to models.GoalStatus) error {
	switch to {
	case models.GoalStatusActive, models.GoalStatusCompleted, models.GoalStatusAbandoned:
	default:
		return NewValidationError("status", "unknown goal status")
	}

	g, err := s.goals.Get(ctx, actor.TenantID, goalID)
	if err != nil {
		return err
	}
	if g.UserID != actor.UserID && actor.Role != models.RoleAdmin {
		return policy.ErrNotFound
	}
	return s.goals.TransitionStatus(ctx, actor.TenantID, goalID, to)
}
