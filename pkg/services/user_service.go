package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/eap-project/eap/pkg/models"
	"github.com/eap-project/eap/pkg/policy"
	"github.com/eap-project/eap/pkg/webhook"
)

// UserStore is the persistence contract for tenant members.
type UserStore interface {
	GetByExternalID(ctx context.Context, tenantID, externalID string) (*models.User, error)
	Get(ctx context.Context, tenantID, userID string) (*models.User, error)
	Provision(ctx context.Context, tenantID, externalID, email string) (*models.User, error)
	TouchLastLogin(ctx context.Context, tenantID, userID string, at time.Time) error
}

// TenantStore is the persistence contract for tenants.
type TenantStore interface {
	Get(ctx context.Context, tenantID string) (*models.Tenant, error)
}

// EventPublisher fans platform events out to webhooks.
type EventPublisher interface {
	Publish(ctx context.Context, tenantID, eventType string, payload any) error
}

// UserService resolves authenticated principals, provisioning first-time
// users just in time.
type UserService struct {
	users   UserStore
	tenants TenantStore
	audit   *AuditService
	events  EventPublisher
	logger  *slog.Logger
}

// NewUserService creates a user service. events may be nil.
func NewUserService(users UserStore, tenants TenantStore, audit *AuditService, events EventPublisher) *UserService {
	return &UserService{
		users:   users,
		tenants: tenants,
		audit:   audit,
		events:  events,
		logger:  slog.With("component", "users"),
	}
}

// Resolve returns the user for validated token claims, creating one on
// first login. A provisioned user is always a viewer; the token's role
// claim never grants a stored role.
func (s *UserService) Resolve(ctx context.Context, tenantID, externalID, email string) (*models.User, error) {
	if tenantID == "" || externalID == "" {
		return nil, NewValidationError("subject", "tenant_id and external_id are required")
	}
	if _, err := s.tenants.Get(ctx, tenantID); err != nil {
		return nil, fmt.Errorf("unknown tenant: %w", err)
	}

	user, err := s.users.GetByExternalID(ctx, tenantID, externalID)
	switch {
	case err == nil:
		// Known user.
	case errors.Is(err, policy.ErrNotFound):
		user, err = s.provision(ctx, tenantID, externalID, email)
		if err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	if !user.Active {
		return nil, policy.ErrPermissionDenied
	}
	if err := s.users.TouchLastLogin(ctx, tenantID, user.ID, time.Now()); err != nil {
		s.logger.Warn("Failed to record last login", "user_id", user.ID, "error", err)
	}
	return user, nil
}

func (s *UserService) provision(ctx context.Context, tenantID, externalID, email string) (*models.User, error) {
	user, err := s.users.Provision(ctx, tenantID, externalID, email)
	if err != nil {
		return nil, fmt.Errorf("jit provisioning failed: %w", err)
	}
	s.logger.Info("Provisioned first-login user",
		"tenant_id", tenantID, "user_id", user.ID, "role", user.Role)

	s.audit.Record(ctx, models.AuditEntry{
		TenantID:     tenantID,
		UserID:       user.ID,
		Action:       "user.created",
		ResourceType: "user",
		ResourceID:   user.ID,
		Status:       models.AuditStatusSuccess,
	})
	if s.events != nil {
		if err := s.events.Publish(ctx, tenantID, webhook.EventUserCreated, map[string]string{
			"user_id": user.ID,
			"email":   user.Email,
		}); err != nil {
			s.logger.Warn("Failed to publish user.created event", "error", err)
		}
	}
	return user, nil
}

// Get returns a user within the actor's tenant. Admin only.
func (s *UserService) Get(ctx context.Context, actor Actor, userID string) (*models.User, error) {
	if err := policy.CheckPermission(actor.Role, policy.PermAdminUsers); err != nil {
		return nil, err
	}
	return s.users.Get(ctx, actor.TenantID, userID)
}
