package policy

import (
	"errors"
	"fmt"
)

// TenantOwned is the compile-time gate for tenant scoping: only entity
// types that carry a tenant_id can satisfy it. Query helpers in this
// package are generic over TenantOwned, so building a tenant-scoped query
// against an entity without a tenant_id does not compile.
type TenantOwned interface {
	GetTenantID() string
}

// ErrNotFound is the uniform response for both genuinely missing resources
// and resources owned by another tenant. The two cases must be
// indistinguishable to the caller.
var ErrNotFound = errors.New("resource not found")

// ErrMissingTenant is returned when a scoped query is built without a
// tenant id. An unscoped read never reaches the database.
var ErrMissingTenant = errors.New("tenant id is required for scoped queries")

// ScopedFilter is a mandatory tenant predicate for one query. Obtain one
// via TenantFilter; the generic parameter proves the target entity is
// tenant-owned.
type ScopedFilter struct {
	tenantID string
}

// TenantFilter builds the mandatory tenant predicate for queries targeting
// entity type T. T must be tenant-owned or the call does not compile.
func TenantFilter[T TenantOwned](tenantID string) (ScopedFilter, error) {
	if tenantID == "" {
		return ScopedFilter{}, ErrMissingTenant
	}
	return ScopedFilter{tenantID: tenantID}, nil
}

// Predicate renders the tenant condition for the given positional
// placeholder, e.g. Predicate(2) → "tenant_id = $2".
func (f ScopedFilter) Predicate(position int) string {
	return fmt.Sprintf("tenant_id = $%d", position)
}

// PredicateOn renders the condition with a table alias,
// e.g. PredicateOn("p", 2) → "p.tenant_id = $2".
func (f ScopedFilter) PredicateOn(alias string, position int) string {
	return fmt.Sprintf("%s.tenant_id = $%d", alias, position)
}

// TenantID returns the bound tenant argument for the predicate.
func (f ScopedFilter) TenantID() string {
	return f.tenantID
}

// AssertOwnership is the post-fetch guard: when a resource fetched by id
// belongs to a different tenant, the caller must observe ErrNotFound —
// never an authorization error — so the existence of other tenants'
// records is not acknowledged.
func AssertOwnership(requesterTenantID string, resource TenantOwned) error {
	if resource == nil || resource.GetTenantID() != requesterTenantID {
		return ErrNotFound
	}
	return nil
}
