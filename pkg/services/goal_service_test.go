package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eap-project/eap/pkg/models"
	"github.com/eap-project/eap/pkg/policy"
)

func TestGoalCreateAndListMine(t *testing.T) {
	svc := NewGoalService(newFakeGoalStore())
	owner := Actor{TenantID: "t1", UserID: "u1", Role: models.RoleViewer}

	g, err := svc.Create(context.Background(), owner, "Ship the quarterly report")
	require.NoError(t, err)
	assert.Equal(t, models.GoalStatusActive, g.Status)
	assert.Equal(t, "u1", g.UserID)

	mine, err := svc.ListMine(context.Background(), owner)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, g.ID, mine[0].ID)

	// Another user in the same tenant sees nothing.
	other := Actor{TenantID: "t1", UserID: "u2", Role: models.RoleViewer}
	theirs, err := svc.ListMine(context.Background(), other)
	require.NoError(t, err)
	assert.Empty(t, theirs)
}

func TestGoalCreate_EmptyTextRejected(t *testing.T) {
	svc := NewGoalService(newFakeGoalStore())
	_, err := svc.Create(context.Background(), Actor{TenantID: "t1", UserID: "u1"}, "")
	assert.True(t, IsValidationError(err))
}

func TestGoalTransition_OwnerOrAdminOnly(t *testing.T) {
	store := newFakeGoalStore()
	svc := NewGoalService(store)
	owner := Actor{TenantID: "t1", UserID: "u1", Role: models.RoleViewer}

	g, err := svc.Create(context.Background(), owner, "Ship it")
	require.NoError(t, err)

	// A non-owner, non-admin peer sees the goal as missing, not forbidden.
	peer := Actor{TenantID: "t1", UserID: "u2", Role: models.RoleOperator}
	err = svc.Transition(context.Background(), peer, g.ID, models.GoalStatusCompleted)
	assert.ErrorIs(t, err, policy.ErrNotFound)

	admin := Actor{TenantID: "t1", UserID: "u3", Role: models.RoleAdmin}
	require.NoError(t, svc.Transition(context.Background(), admin, g.ID, models.GoalStatusAbandoned))

	stored, err := store.Get(context.Background(), "t1", g.ID)
	require.NoError(t, err)
	assert.Equal(t, models.GoalStatusAbandoned, stored.Status)
}

func TestGoalTransition_UnknownStatusRejected(t *testing.T) {
	store := newFakeGoalStore()
	svc := NewGoalService(store)
	owner := Actor{TenantID: "t1", UserID: "u1", Role: models.RoleViewer}

	g, err := svc.Create(context.Background(), owner, "Ship it")
	require.NoError(t, err)

	err = svc.Transition(context.Background(), owner, g.ID, models.GoalStatus("paused"))
	assert.True(t, IsValidationError(err))
}

func TestGoalTransition_CrossTenantIsNotFound(t *testing.T) {
	store := newFakeGoalStore()
	svc := NewGoalService(store)
	owner := Actor{TenantID: "t1", UserID: "u1", Role: models.RoleViewer}

	g, err := svc.Create(context.Background(), owner, "Ship it")
	require.NoError(t, err)

	intruder := Actor{TenantID: "t2", UserID: "u1", Role: models.RoleAdmin}
	err = svc.Transition(context.Background(), intruder, g.ID, models.GoalStatusCompleted)
	assert.ErrorIs(t, err, policy.ErrNotFound)
}

func TestGoalAppendProgress(t *testing.T) {
	store := newFakeGoalStore()
	svc := NewGoalService(store)
	owner := Actor{TenantID: "t1", UserID: "u1", Role: models.RoleViewer}

	g, err := svc.Create(context.Background(), owner, "Ship it")
	require.NoError(t, err)

	require.NoError(t, svc.AppendProgress(context.Background(), owner, g.ID, "drafted the outline"))
	require.NoError(t, svc.AppendProgress(context.Background(), owner, g.ID, "review scheduled"))

	stored, err := store.Get(context.Background(), "t1", g.ID)
	require.NoError(t, err)
	assert.Equal(t, "drafted the outline\nreview scheduled\n", stored.ProgressNotes)

	err = svc.AppendProgress(context.Background(), owner, g.ID, "")
	assert.True(t, IsValidationError(err))
}

func TestActiveGoals_ExcludesFinishedGoals(t *testing.T) {
	store := newFakeGoalStore()
	svc := NewGoalService(store)
	owner := Actor{TenantID: "t1", UserID: "u1", Role: models.RoleViewer}

	g1, err := svc.Create(context.Background(), owner, "Ship it")
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), owner, "Plan next quarter")
	require.NoError(t, err)
	require.NoError(t, svc.Transition(context.Background(), owner, g1.ID, models.GoalStatusCompleted))

	active, err := svc.ActiveGoals(context.Background(), "t1", "u1")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "Plan next quarter", active[0].GoalText)
}
