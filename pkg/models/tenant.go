package models

import "time"

// Tenant is the top of the ownership hierarchy. Every persisted entity
// carries the owning tenant's ID; deleting a tenant cascades to all of it.
type Tenant struct {
	ID        string     `db:"id" json:"id"`
	Name      string     `db:"name" json:"name"`
	Slug      string     `db:"slug" json:"slug"`
	Active    bool       `db:"active" json:"active"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	DeletedAt *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
}

// TenantSettings holds per-tenant overrides. A nil field means "use the
// platform default".
type TenantSettings struct {
	TenantID           string   `db:"tenant_id" json:"tenant_id"`
	CustomRateLimit    *int     `db:"custom_rate_limit" json:"custom_rate_limit,omitempty"`
	CustomModelConfig  *string  `db:"custom_model_config" json:"custom_model_config,omitempty"`
	EnabledFeatures    []string `db:"-" json:"enabled_features,omitempty"`
	MaxUsers           *int     `db:"max_users" json:"max_users,omitempty"`
	MaxStorageGB       *int     `db:"max_storage_gb" json:"max_storage_gb,omitempty"`
	TokenBudgetDaily   *int64   `db:"token_budget_daily" json:"token_budget_daily,omitempty"`
	TokenBudgetMonthly *int64   `db:"token_budget_monthly" json:"token_budget_monthly,omitempty"`
	CustomSystemPrompt *string  `db:"custom_system_prompt" json:"custom_system_prompt,omitempty"`
	Branding           *string  `db:"branding" json:"branding,omitempty"`
}

// GetTenantID implements policy.TenantOwned.
func (s TenantSettings) GetTenantID() string { return s.TenantID }

// User is a member of a tenant, identified externally by the IdP subject.
// Uniqueness: (tenant_id, external_id).
type User struct {
	ID         string     `db:"id" json:"id"`
	TenantID   string     `db:"tenant_id" json:"tenant_id"`
	ExternalID string     `db:"external_id" json:"external_id"`
	Email      string     `db:"email" json:"email"`
	Role       Role       `db:"role" json:"role"`
	Active     bool       `db:"active" json:"active"`
	LastLogin  *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}

// GetTenantID implements policy.TenantOwned.
func (u User) GetTenantID() string { return u.TenantID }
