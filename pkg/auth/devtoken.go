package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/eap-project/eap/pkg/models"
)

// jwtClaims is the golang-jwt claim set for symmetric and local-JWKS
// tokens.
type jwtClaims struct {
	jwt.RegisteredClaims
	TenantID string `json:"tenant_id"`
	Role     string `json:"role"`
	Email    string `json:"email"`
}

// DevVerifier validates HS256 tokens signed with a shared secret. Only
// wired in dev and test environments; config validation refuses it in
// prod.
type DevVerifier struct {
	secret   []byte
	audience string
	logger   *slog.Logger
}

// NewDevVerifier builds a symmetric verifier.
func NewDevVerifier(secret, audience string) *DevVerifier {
	return &DevVerifier{
		secret:   []byte(secret),
		audience: audience,
		logger:   slog.With("component", "auth", "verifier", "dev"),
	}
}

// Verify implements TokenVerifier.
func (v *DevVerifier) Verify(_ context.Context, rawToken string) (*Claims, error) {
	var claims jwtClaims
	_, err := jwt.ParseWithClaims(rawToken, &claims,
		func(*jwt.Token) (any, error) { return v.secret, nil },
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithAudience(v.audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, logRejection(v.logger, "signature or standard claims", err)
	}
	return platformClaims(&claims, v.logger)
}

// SignDevToken issues an HS256 token for local development and tests.
func SignDevToken(secret, audience string, claims Claims, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   claims.Subject,
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		TenantID: claims.TenantID,
		Role:     string(claims.Role),
		Email:    claims.Email,
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign dev token: %w", err)
	}
	return signed, nil
}

// platformClaims converts a verified claim set and applies the platform
// claim contract.
func platformClaims(claims *jwtClaims, logger *slog.Logger) (*Claims, error) {
	out := &Claims{
		Subject:  claims.Subject,
		TenantID: claims.TenantID,
		Role:     models.Role(claims.Role),
		Email:    claims.Email,
	}
	if claims.ExpiresAt != nil {
		out.Expiry = claims.ExpiresAt.Time
	}
	if err := out.validate(); err != nil {
		return nil, logRejection(logger, "platform claims", err)
	}
	return out, nil
}
