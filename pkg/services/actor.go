// Package services implements the application operations behind the API:
// plan workflow, user provisioning, goals, conversations, and auditing.
// Every operation takes an Actor and enforces role and tenant policy
// before touching storage.
package services

import "github.com/eap-project/eap/pkg/models"

// Actor is the authenticated principal performing an operation, resolved
// from token claims by the auth middleware.
type Actor struct {
	TenantID string
	UserID   string
	Role     models.Role
}
