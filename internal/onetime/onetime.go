// Package onetime generates the random single-use secrets behind email
// verification and password reset links. Only the sha256 digest of a secret
// is ever persisted; the raw value is exposed once, inside the outbound
// link, and discarded.
package onetime

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

const secretBytes = 32

// Secret pairs the raw value destined for the outbound link with the digest
// destined for storage.
type Secret struct {
	Raw    string
	Digest string
	Expiry time.Time
}

// New draws a fresh high-entropy secret expiring after ttl.
func New(ttl time.Duration) (Secret, error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return Secret{}, fmt.Errorf("generate secret: %w", err)
	}
	raw := hex.EncodeToString(buf)
	return Secret{
		Raw:    raw,
		Digest: Digest(raw),
		Expiry: time.Now().UTC().Add(ttl),
	}, nil
}

// Digest maps a raw secret to its stored form. Lookups digest the presented
// value and match against storage, so the raw secret never needs to exist
// server-side after issuance.
func Digest(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
