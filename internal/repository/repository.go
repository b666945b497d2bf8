// Package repository persists accounts and the revocation ledger.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/taskhive/taskhive-auth/internal/domain"
)

var (
	// ErrNotFound is returned for any lookup miss, including one-time token
	// digests that are wrong or expired; callers must not be able to tell
	// which.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateEmail surfaces the store's unique constraint on email.
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrStaleRefresh means a fenced refresh-hash update lost the race: the
	// stored hash no longer matches the one the caller loaded.
	ErrStaleRefresh = errors.New("refresh token hash superseded")
)

// AccountRepository exposes point lookups and atomic field updates over the
// account table. Multi-field clears happen in single statements so the
// one-time-token and session invariants hold without explicit locking.
type AccountRepository interface {
	Create(ctx context.Context, account domain.Account) (domain.Account, error)
	GetByEmail(ctx context.Context, email string) (domain.Account, error)
	GetByID(ctx context.Context, id int64) (domain.Account, error)
	List(ctx context.Context, limit, offset int32) ([]domain.Account, error)

	// SetRefreshTokenHash overwrites the stored hash unconditionally (login,
	// register). A nil hash clears the refresh chain (logout).
	SetRefreshTokenHash(ctx context.Context, id int64, hash *string) error

	// RotateRefreshTokenHash is the fenced compare-and-update used on
	// refresh and change-password: it succeeds only while the stored hash
	// still equals expected, so concurrent replays of a superseded token
	// produce exactly one winner. Returns ErrStaleRefresh when the fence
	// fails.
	RotateRefreshTokenHash(ctx context.Context, id int64, expected, next string) error

	// ActivateByVerificationDigest flips the account active and clears both
	// verification fields in one statement, matching only unexpired digests.
	ActivateByVerificationDigest(ctx context.Context, digest string, now time.Time) (domain.Account, error)

	// SetResetToken stores a new reset digest and expiry, superseding any
	// outstanding one.
	SetResetToken(ctx context.Context, id int64, digest string, expiry time.Time) error

	// ResetPasswordByDigest stores the new password hash and clears the
	// reset fields and the refresh chain atomically, matching only
	// unexpired digests. Clearing the refresh chain forces re-auth on all
	// devices.
	ResetPasswordByDigest(ctx context.Context, digest, passwordHash string, now time.Time) (domain.Account, error)

	// UpdatePassword stores a new password hash and replaces the refresh
	// chain in one statement (authenticated change-password).
	UpdatePassword(ctx context.Context, id int64, passwordHash string, refreshHash *string) error
}

// RevocationLedger records access tokens that must be rejected before their
// natural expiry. Membership tests are O(1); entries may be garbage
// collected once older than the maximum access-token lifetime.
type RevocationLedger interface {
	Revoke(ctx context.Context, accessToken string, ttl time.Duration) error
	IsRevoked(ctx context.Context, accessToken string) (bool, error)
}
