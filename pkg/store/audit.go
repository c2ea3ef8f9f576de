package store

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/eap-project/eap/pkg/models"
	"github.com/eap-project/eap/pkg/policy"
)

// AuditRepo writes and reads the append-only audit log. There is no
// update or delete path.
type AuditRepo struct {
	db *sqlx.DB
}

// Append writes one audit row.
func (r *AuditRepo) Append(ctx context.Context, e *models.AuditEntry) error {
	return r.db.QueryRowxContext(ctx,
		`INSERT INTO audit_log
		     (tenant_id, user_id, action, resource_type, resource_id, status, model_used, latency_ms, extra_json)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id, created_at`,
		e.TenantID, e.UserID, e.Action, e.ResourceType, e.ResourceID,
		e.Status, e.ModelUsed, e.LatencyMs, e.Extra,
	).Scan(&e.ID, &e.CreatedAt)
}

// List returns a tenant's audit entries, newest first.
func (r *AuditRepo) List(ctx context.Context, tenantID string, limit, offset int) ([]models.AuditEntry, error) {
	filter, err := policy.TenantFilter[models.AuditEntry](tenantID)
	if err != nil {
		return nil, err
	}
	var entries []models.AuditEntry
	err = r.db.SelectContext(ctx, &entries,
		`SELECT id, tenant_id, user_id, action, resource_type, resource_id,
		        status, model_used, latency_ms, extra_json, created_at
		 FROM audit_log WHERE `+filter.Predicate(1)+`
		 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		filter.TenantID(), limit, offset)
	return entries, err
}
