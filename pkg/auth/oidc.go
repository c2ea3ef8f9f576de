package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"

	"github.com/eap-project/eap/pkg/models"
)

// OIDCVerifier validates RS256 tokens against an OIDC provider. Discovery
// runs once at construction; the provider's remote key set handles JWKS
// fetching and rotation internally.
type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
	logger   *slog.Logger
}

// NewOIDCVerifier discovers the issuer and builds a verifier bound to the
// configured audience.
func NewOIDCVerifier(ctx context.Context, issuerURL, audience string) (*OIDCVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery for %s failed: %w", issuerURL, err)
	}
	return &OIDCVerifier{
		verifier: provider.Verifier(&oidc.Config{ClientID: audience}),
		logger:   slog.With("component", "auth", "verifier", "oidc"),
	}, nil
}

// Verify implements TokenVerifier.
func (v *OIDCVerifier) Verify(ctx context.Context, rawToken string) (*Claims, error) {
	token, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, logRejection(v.logger, "signature or standard claims", err)
	}

	var raw rawClaims
	if err := token.Claims(&raw); err != nil {
		return nil, logRejection(v.logger, "claims decode", err)
	}

	claims := &Claims{
		Subject:  token.Subject,
		TenantID: raw.TenantID,
		Role:     models.Role(raw.Role),
		Email:    raw.Email,
		Expiry:   token.Expiry,
	}
	if err := claims.validate(); err != nil {
		return nil, logRejection(v.logger, "platform claims", err)
	}
	if time.Until(claims.Expiry) <= 0 {
		return nil, logRejection(v.logger, "expired", nil)
	}
	return claims, nil
}
