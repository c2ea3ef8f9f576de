// Package auth validates bearer tokens and extracts platform claims.
//
// Three verifiers cover the deployment spectrum: OIDC discovery with
// provider-managed JWKS for normal operation, a local JWKS file for
// air-gapped installs, and a symmetric HS256 verifier for dev and test.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/eap-project/eap/pkg/models"
)

// ErrInvalidToken is the only authentication failure callers see. The
// underlying reason is logged, never returned, so token probing learns
// nothing.
var ErrInvalidToken = errors.New("invalid or expired token")

// Claims are the validated platform claims of a bearer token.
type Claims struct {
	Subject  string
	TenantID string
	Role     models.Role
	Email    string
	Expiry   time.Time
}

// rawClaims is the wire shape shared by all verifiers.
type rawClaims struct {
	TenantID string `json:"tenant_id"`
	Role     string `json:"role"`
	Email    string `json:"email"`
}

// validate enforces the claim contract: non-empty subject, tenant_id is a
// UUID, role is a known role. Audience and expiry are checked by the
// signature verifiers.
func (c *Claims) validate() error {
	if c.Subject == "" {
		return fmt.Errorf("missing sub claim")
	}
	if _, err := uuid.Parse(c.TenantID); err != nil {
		return fmt.Errorf("tenant_id is not a UUID: %w", err)
	}
	if !models.ValidRole(string(c.Role)) {
		return fmt.Errorf("unknown role %q", c.Role)
	}
	return nil
}
