package auth

import (
	"context"
	"log/slog"
)

// TokenVerifier checks a raw bearer token and returns its platform claims.
type TokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (*Claims, error)
}

// logRejection records why a token was refused. The caller only ever
// receives ErrInvalidToken.
func logRejection(logger *slog.Logger, reason string, err error) error {
	logger.Warn("Rejected bearer token", "reason", reason, "error", err)
	return ErrInvalidToken
}
