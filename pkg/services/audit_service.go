package services

import (
	"context"
	"log/slog"

	"github.com/eap-project/eap/pkg/models"
	"github.com/eap-project/eap/pkg/policy"
)

// AuditStore is the persistence contract for audit entries.
type AuditStore interface {
	Append(ctx context.Context, e *models.AuditEntry) error
	List(ctx context.Context, tenantID string, limit, offset int) ([]models.AuditEntry, error)
}

// AuditService writes the append-only audit log and serves admin reads.
type AuditService struct {
	store  AuditStore
	logger *slog.Logger
}

// NewAuditService creates an audit service.
func NewAuditService(store AuditStore) *AuditService {
	return &AuditService{store: store, logger: slog.With("component", "audit")}
}

// Record writes one entry. Audit failures never fail the audited
// operation; they are logged and dropped.
func (s *AuditService) Record(ctx context.Context, e models.AuditEntry) {
	if err := s.store.Append(ctx, &e); err != nil {
		s.logger.Error("Failed to write audit entry",
			"action", e.Action, "tenant_id", e.TenantID, "error", err)
	}
}

// List returns a tenant's audit entries. Admin only.
func (s *AuditService) List(ctx context.Context, actor Actor, limit, offset int) ([]models.AuditEntry, error) {
	if err := policy.CheckPermission(actor.Role, policy.PermAuditRead); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.store.List(ctx, actor.TenantID, limit, offset)
}
