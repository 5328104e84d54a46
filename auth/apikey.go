// Package auth protects the migration API with API keys and records who
// called it.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	// BcryptCost is the cost factor for bcrypt hashing
	BcryptCost = 10
	// MinKeyLength is the shortest API key accepted for hashing
	MinKeyLength = 16
)

// HashKey hashes an API key using bcrypt
func HashKey(key string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	bytes, err := bcrypt.GenerateFromPassword([]byte(key), BcryptCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

// CheckKeyHash verifies an API key against a bcrypt hash
func CheckKeyHash(key, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)) == nil
}

// ValidateKey checks if a key is long enough to be hashed and used
func ValidateKey(key string) error {
	if len(key) < MinKeyLength {
		return errors.New("api key is too short")
	}
	if strings.TrimSpace(key) != key {
		return errors.New("api key must not start or end with whitespace")
	}
	return nil
}

// GenerateKey returns a random 32 byte key, hex encoded
func GenerateKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// KeyID is a short, non-secret fingerprint of a key for audit records
func KeyID(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:4])
}

// Verifier checks presented keys against a plain key or a bcrypt hash.
// The hash wins when both are set.
type Verifier struct {
	key  string
	hash string
}

// NewVerifier creates a verifier; with neither key nor hash every request
// is accepted
func NewVerifier(key, hash string) *Verifier {
	return &Verifier{key: key, hash: hash}
}

// Enabled reports whether keys are checked at all
func (v *Verifier) Enabled() bool {
	return v.key != "" || v.hash != ""
}

// Verify reports whether presented is acceptable
func (v *Verifier) Verify(presented string) bool {
	switch {
	case v.hash != "":
		return presented != "" && CheckKeyHash(presented, v.hash)
	case v.key != "":
		return subtle.ConstantTimeCompare([]byte(presented), []byte(v.key)) == 1
	default:
		return true
	}
}
