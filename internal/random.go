package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"

	"github.com/google/uuid"
)

// SigningKeyBytes is the size of generated signing key material.
const SigningKeyBytes = 64

// NewJTI returns a unique token identifier for the jti claim.
func NewJTI() string {
	return uuid.NewString()
}

// NewKeyMaterial generates cryptographically random signing key material.
func NewKeyMaterial() ([]byte, error) {
	material := make([]byte, SigningKeyBytes)
	if _, err := rand.Read(material); err != nil {
		return nil, err
	}
	return material, nil
}

// NewLeaseToken returns an opaque fencing token for distributed lease ownership.
func NewLeaseToken() (string, error) {
	var raw [16]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// HashToken returns the SHA-256 hash of a token string, hex encoded.
// Refresh tokens and rate-limit fingerprints are stored as this hash so
// raw token strings never reach Redis or the durable store.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
