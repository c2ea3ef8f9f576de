package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/eap-project/eap/pkg/models"
	"github.com/eap-project/eap/pkg/policy"
)

// TenantRepo reads and writes tenants. Tenants themselves are the scoping
// root, so lookups here are by primary key, not by filter.
type TenantRepo struct {
	db *sqlx.DB
}

// Get returns an active tenant by id.
func (r *TenantRepo) Get(ctx context.Context, tenantID string) (*models.Tenant, error) {
	var t models.Tenant
	err := r.db.GetContext(ctx, &t,
		`SELECT id, name, slug, active, created_at, deleted_at
		 FROM tenants WHERE id = $1 AND deleted_at IS NULL`, tenantID)
	if err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

// Create inserts a tenant.
func (r *TenantRepo) Create(ctx context.Context, t *models.Tenant) error {
	return r.db.QueryRowxContext(ctx,
		`INSERT INTO tenants (name, slug, active)
		 VALUES ($1, $2, $3) RETURNING id, created_at`,
		t.Name, t.Slug, t.Active).Scan(&t.ID, &t.CreatedAt)
}

// UserRepo reads and writes tenant members.
type UserRepo struct {
	db *sqlx.DB
}

const userColumns = `id, tenant_id, external_id, email, role, active, last_login, created_at`

// GetByExternalID looks a user up by IdP subject within a tenant.
func (r *UserRepo) GetByExternalID(ctx context.Context, tenantID, externalID string) (*models.User, error) {
	filter, err := policy.TenantFilter[models.User](tenantID)
	if err != nil {
		return nil, err
	}
	var u models.User
	err = r.db.GetContext(ctx, &u,
		`SELECT `+userColumns+` FROM users WHERE external_id = $1 AND `+filter.Predicate(2),
		externalID, filter.TenantID())
	if err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

// Get returns a user by id within a tenant.
func (r *UserRepo) Get(ctx context.Context, tenantID, userID string) (*models.User, error) {
	filter, err := policy.TenantFilter[models.User](tenantID)
	if err != nil {
		return nil, err
	}
	var u models.User
	err = r.db.GetContext(ctx, &u,
		`SELECT `+userColumns+` FROM users WHERE id = $1 AND `+filter.Predicate(2),
		userID, filter.TenantID())
	if err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

// Provision inserts a first-login user. Two concurrent first logins may
// both miss the read; ON CONFLICT DO NOTHING plus the re-read makes the
// race converge on one row.
func (r *UserRepo) Provision(ctx context.Context, tenantID, externalID, email string) (*models.User, error) {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (tenant_id, external_id, email, role, active)
		 VALUES ($1, $2, $3, $4, TRUE)
		 ON CONFLICT (tenant_id, external_id) DO NOTHING`,
		tenantID, externalID, email, models.RoleViewer)
	if err != nil {
		return nil, fmt.Errorf("failed to provision user: %w", err)
	}
	return r.GetByExternalID(ctx, tenantID, externalID)
}

// TouchLastLogin records a successful authentication.
func (r *UserRepo) TouchLastLogin(ctx context.Context, tenantID, userID string, at time.Time) error {
	filter, err := policy.TenantFilter[models.User](tenantID)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`UPDATE users SET last_login = $1 WHERE id = $2 AND `+filter.Predicate(3),
		at, userID, filter.TenantID())
	return err
}
