package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eap-project/eap/pkg/models"
)

const (
	testAudience = "eap-platform"
	testTenantID = "0b7e4a52-90ec-4fbe-8e8f-6b9f4a7de90e"
)

func validClaims() Claims {
	return Claims{
		Subject:  "okta|alice",
		TenantID: testTenantID,
		Role:     models.RoleOperator,
		Email:    "alice@example.com",
	}
}

func TestDevVerifier_RoundTrip(t *testing.T) {
	v := NewDevVerifier("dev-secret", testAudience)

	token, err := SignDevToken("dev-secret", testAudience, validClaims(), time.Hour)
	require.NoError(t, err)

	claims, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "okta|alice", claims.Subject)
	assert.Equal(t, testTenantID, claims.TenantID)
	assert.Equal(t, models.RoleOperator, claims.Role)
	assert.Equal(t, "alice@example.com", claims.Email)
}

func TestDevVerifier_RejectionsAreUniform(t *testing.T) {
	v := NewDevVerifier("dev-secret", testAudience)

	expired, err := SignDevToken("dev-secret", testAudience, validClaims(), -time.Minute)
	require.NoError(t, err)
	wrongKey, err := SignDevToken("other-secret", testAudience, validClaims(), time.Hour)
	require.NoError(t, err)
	wrongAud, err := SignDevToken("dev-secret", "someone-else", validClaims(), time.Hour)
	require.NoError(t, err)

	badTenant := validClaims()
	badTenant.TenantID = "not-a-uuid"
	badTenantTok, err := SignDevToken("dev-secret", testAudience, badTenant, time.Hour)
	require.NoError(t, err)

	badRole := validClaims()
	badRole.Role = "superadmin"
	badRoleTok, err := SignDevToken("dev-secret", testAudience, badRole, time.Hour)
	require.NoError(t, err)

	noSub := validClaims()
	noSub.Subject = ""
	noSubTok, err := SignDevToken("dev-secret", testAudience, noSub, time.Hour)
	require.NoError(t, err)

	// Every failure mode surfaces as the same opaque error.
	for name, token := range map[string]string{
		"expired":        expired,
		"wrong key":      wrongKey,
		"wrong audience": wrongAud,
		"bad tenant id":  badTenantTok,
		"unknown role":   badRoleTok,
		"missing sub":    noSubTok,
		"garbage":        "not.a.token",
	} {
		_, err := v.Verify(context.Background(), token)
		assert.ErrorIs(t, err, ErrInvalidToken, name)
	}
}

func signRS256(t *testing.T, key *rsa.PrivateKey, kid, issuer, audience string, claims Claims, ttl time.Duration) string {
	t.Helper()
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   claims.Subject,
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		TenantID: claims.TenantID,
		Role:     string(claims.Role),
		Email:    claims.Email,
	})
	token.Header["kid"] = kid
	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

func jwksJSON(t *testing.T, kid string, pub *rsa.PublicKey) []byte {
	t.Helper()
	doc := map[string]any{
		"keys": []map[string]string{{
			"kty": "RSA",
			"kid": kid,
			"use": "sig",
			"alg": "RS256",
			"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		}},
	}
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	return data
}

func TestLocalJWKSVerifier_RoundTrip(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "jwks.json")
	require.NoError(t, os.WriteFile(path, jwksJSON(t, "key-1", &key.PublicKey), 0o600))

	v, err := NewLocalJWKSVerifier(path, testAudience)
	require.NoError(t, err)

	token := signRS256(t, key, "key-1", "air-gapped", testAudience, validClaims(), time.Hour)
	claims, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, testTenantID, claims.TenantID)

	// Unknown kid and symmetric tokens are both refused.
	unknownKid := signRS256(t, key, "key-2", "air-gapped", testAudience, validClaims(), time.Hour)
	_, err = v.Verify(context.Background(), unknownKid)
	assert.ErrorIs(t, err, ErrInvalidToken)

	hs256, err := SignDevToken("dev-secret", testAudience, validClaims(), time.Hour)
	require.NoError(t, err)
	_, err = v.Verify(context.Background(), hs256)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestLocalJWKSVerifier_RejectsEmptyKeySet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jwks.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"keys":[]}`), 0o600))

	_, err := NewLocalJWKSVerifier(path, testAudience)
	assert.Error(t, err)
}

func TestOIDCVerifier_AgainstFakeProvider(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"issuer":   server.URL,
			"jwks_uri": server.URL + "/keys",
		})
	})
	mux.HandleFunc("/keys", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(jwksJSON(t, "key-1", &key.PublicKey))
	})

	v, err := NewOIDCVerifier(context.Background(), server.URL, testAudience)
	require.NoError(t, err)

	token := signRS256(t, key, "key-1", server.URL, testAudience, validClaims(), time.Hour)
	claims, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "okta|alice", claims.Subject)
	assert.Equal(t, models.RoleOperator, claims.Role)

	wrongIssuer := signRS256(t, key, "key-1", "https://evil.example.com", testAudience, validClaims(), time.Hour)
	_, err = v.Verify(context.Background(), wrongIssuer)
	assert.ErrorIs(t, err, ErrInvalidToken)

	badTenant := validClaims()
	badTenant.TenantID = "not-a-uuid"
	badTenantTok := signRS256(t, key, "key-1", server.URL, testAudience, badTenant, time.Hour)
	_, err = v.Verify(context.Background(), badTenantTok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
