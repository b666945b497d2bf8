package domain

import "time"

// Role is the coarse capability level attached to an account.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// Account is the persisted identity record, including the one-way digests of
// every secret tied to the account. Raw secrets are never stored.
type Account struct {
	ID           int64
	Email        string
	Name         string
	PasswordHash string
	Role         Role
	Active       bool

	// At most one refresh token is outstanding per account; rotation
	// replaces the hash, it never appends.
	RefreshTokenHash *string

	VerificationTokenHash   *string
	VerificationTokenExpiry *time.Time

	ResetTokenHash   *string
	ResetTokenExpiry *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Identity is the decoded access-token payload attached to a request after
// the access gate verified it. It carries enough to authorize downstream
// without another store lookup.
type Identity struct {
	AccountID int64
	Name      string
	Role      Role
}
