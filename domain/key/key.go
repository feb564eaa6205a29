// Package key provides API key value types and pure validation functions.
// Keys are stored as SHA-256 digests so the plaintext never has to be
// persisted; lookup is by exact digest.
package key

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"time"
)

// RandomHexLength is the length of the random part of a key (hex chars).
const RandomHexLength = 32

// DefaultPrefix is the default API key prefix.
const DefaultPrefix = "ak_"

// Status is the lifecycle state of a key.
type Status string

// Key states.
const (
	StatusActive  Status = "active"
	StatusRevoked Status = "revoked"
)

// Key represents an API key at rest (immutable value type).
type Key struct {
	ID        string
	Name      string
	Hash      string // SHA-256 hex digest of the full raw key
	Status    Status
	CreatedAt time.Time
	LastUsed  *time.Time
}

// Active reports whether the key may authenticate requests.
func (k Key) Active() bool {
	return k.Status == StatusActive
}

// Generate creates a new raw API key: prefix followed by 32 random hex
// characters. The raw key is shown once; only its hash is stored.
func Generate(prefix string) string {
	b := make([]byte, RandomHexLength/2)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("crypto/rand failed: %v", err))
	}
	return prefix + hex.EncodeToString(b)
}

// ValidFormat checks that a raw key has the expected prefix and a
// 32-char hex tail.
// This is a PURE function.
func ValidFormat(prefix, raw string) bool {
	if len(raw) != len(prefix)+RandomHexLength {
		return false
	}
	if raw[:len(prefix)] != prefix {
		return false
	}
	_, err := hex.DecodeString(raw[len(prefix):])
	return err == nil
}

// Hash returns the SHA-256 hex digest of a raw key.
// This is a PURE function.
func Hash(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Verify checks a raw key against a stored key in constant time and
// requires the key to be active.
// This is a PURE function.
func Verify(raw string, k Key) bool {
	if !k.Active() {
		return false
	}
	digest := Hash(raw)
	return subtle.ConstantTimeCompare([]byte(digest), []byte(k.Hash)) == 1
}
