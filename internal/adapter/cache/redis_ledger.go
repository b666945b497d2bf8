// Package cache holds Redis-backed adapters.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/taskhive/taskhive-auth/internal/repository"
)

const revokedKeyPrefix = "revoked:"

// RedisLedger implements the revocation ledger on Redis. Entries carry a TTL
// equal to the access-token lifetime, so storage hygiene falls out of Redis
// expiry: once a token has expired naturally its ledger entry is moot and
// evicts itself.
type RedisLedger struct {
	client redis.UniversalClient
}

var _ repository.RevocationLedger = (*RedisLedger)(nil)

// NewRedisLedger constructs a ledger over the given client.
func NewRedisLedger(client redis.UniversalClient) *RedisLedger {
	return &RedisLedger{client: client}
}

// Revoke appends the access token to the ledger for ttl.
func (l *RedisLedger) Revoke(ctx context.Context, accessToken string, ttl time.Duration) error {
	if err := l.client.Set(ctx, ledgerKey(accessToken), 1, ttl).Err(); err != nil {
		return fmt.Errorf("persist revocation: %w", err)
	}
	return nil
}

// IsRevoked tests membership in O(1).
func (l *RedisLedger) IsRevoked(ctx context.Context, accessToken string) (bool, error) {
	n, err := l.client.Exists(ctx, ledgerKey(accessToken)).Result()
	if err != nil {
		return false, fmt.Errorf("check revocation: %w", err)
	}
	return n > 0, nil
}

// Tokens are keyed by digest: the ledger must never hold a usable credential
// in recoverable form.
func ledgerKey(accessToken string) string {
	sum := sha256.Sum256([]byte(accessToken))
	return revokedKeyPrefix + hex.EncodeToString(sum[:])
}
