package signature

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

const (
	// HeaderName is the request header carrying the hex signature
	HeaderName = "X-Webhook-Signature"

	// SecretBytes is the amount of entropy behind a generated secret (384 bits)
	SecretBytes = 48
)

/* Signing works on the canonical JSON form of the payload, never on the bytes the
 * caller happened to build. Two payloads with the same keys and values always sign
 * the same, whatever order their maps were filled in.
 */

// GenerateSecret creates a new URL-safe signing secret
func GenerateSecret() (string, error) {
	raw := make([]byte, SecretBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generating random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// Sign returns the hex HMAC-SHA256 of the canonical payload keyed by secret
func Sign(payload map[string]any, secret string) (string, error) {
	canonical, err := Canonicalize(payload)
	if err != nil {
		return "", fmt.Errorf("canonicalizing payload: %w", err)
	}
	return SignBytes(canonical, secret), nil
}

// SignBytes signs bytes that are already in canonical form
func SignBytes(canonical []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(canonical)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature matches the payload under secret.
// The comparison runs in constant time.
func Verify(payload map[string]any, signature, secret string) bool {
	canonical, err := Canonicalize(payload)
	if err != nil {
		return false
	}
	return VerifyBytes(canonical, signature, secret)
}

// VerifyBytes is Verify for a payload already in canonical form
func VerifyBytes(canonical []byte, signature, secret string) bool {
	provided, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(canonical)
	return hmac.Equal(provided, mac.Sum(nil))
}
