package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"os"

	"github.com/golang-jwt/jwt/v5"
)

// LocalJWKSVerifier validates RS256 tokens against a JWKS file on disk,
// for installs with no network path to the identity provider. Keys are
// loaded once at startup; rotating them means restarting the process.
type LocalJWKSVerifier struct {
	keys     map[string]*rsa.PublicKey
	audience string
	logger   *slog.Logger
}

type jwksDocument struct {
	Keys []jwksKey `json:"keys"`
}

type jwksKey struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// NewLocalJWKSVerifier loads RSA keys from a JWKS JSON file.
func NewLocalJWKSVerifier(path, audience string) (*LocalJWKSVerifier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read JWKS file: %w", err)
	}
	var doc jwksDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse JWKS file %s: %w", path, err)
	}

	keys := make(map[string]*rsa.PublicKey)
	for _, k := range doc.Keys {
		if k.Kty != "RSA" {
			continue
		}
		pub, err := rsaKeyFromJWK(k)
		if err != nil {
			return nil, fmt.Errorf("invalid JWKS key %q: %w", k.Kid, err)
		}
		keys[k.Kid] = pub
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("JWKS file %s contains no RSA keys", path)
	}

	return &LocalJWKSVerifier{
		keys:     keys,
		audience: audience,
		logger:   slog.With("component", "auth", "verifier", "local-jwks"),
	}, nil
}

// Verify implements TokenVerifier.
func (v *LocalJWKSVerifier) Verify(_ context.Context, rawToken string) (*Claims, error) {
	var claims jwtClaims
	_, err := jwt.ParseWithClaims(rawToken, &claims,
		func(token *jwt.Token) (any, error) {
			kid, _ := token.Header["kid"].(string)
			key, ok := v.keys[kid]
			if !ok {
				return nil, fmt.Errorf("no key for kid %q", kid)
			}
			return key, nil
		},
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithAudience(v.audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, logRejection(v.logger, "signature or standard claims", err)
	}
	return platformClaims(&claims, v.logger)
}

func rsaKeyFromJWK(k jwksKey) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("exponent: %w", err)
	}
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: int(new(big.Int).SetBytes(eBytes).Int64()),
	}, nil
}
