package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const signaturePrefix = "sha256="

// HashSecret returns the hex SHA-256 of a raw webhook secret. Only the
// hash is persisted; it doubles as the HMAC signing key, so consumers who
// hold the raw secret can derive the same key.
func HashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// Sign computes the X-EAP-Signature-256 header value for a payload:
// "sha256=" + hex(HMAC-SHA256(secretHash, body)).
func Sign(body []byte, secretHash string) string {
	mac := hmac.New(sha256.New, []byte(secretHash))
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a received signature header against the payload
// in constant time.
func VerifySignature(body []byte, secretHash, header string) bool {
	if !strings.HasPrefix(header, signaturePrefix) {
		return false
	}
	want, err := hex.DecodeString(strings.TrimPrefix(header, signaturePrefix))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secretHash))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), want)
}
