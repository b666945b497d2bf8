package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/taskhive/taskhive-auth/internal/domain"
)

// MemoryAccountRepo is a mutex-guarded AccountRepository for tests and local
// runs without Postgres. It mirrors the SQL implementation's semantics,
// including the fenced refresh-hash rotation and the atomic one-time-token
// redemptions.
type MemoryAccountRepo struct {
	mu   sync.Mutex
	byID map[int64]*domain.Account
}

// NewMemoryAccountRepo returns an empty in-memory store.
func NewMemoryAccountRepo() *MemoryAccountRepo {
	return &MemoryAccountRepo{byID: make(map[int64]*domain.Account)}
}

func (m *MemoryAccountRepo) Create(ctx context.Context, account domain.Account) (domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.byID {
		if existing.Email == account.Email {
			return domain.Account{}, ErrDuplicateEmail
		}
	}
	now := time.Now().UTC()
	account.CreatedAt = now
	account.UpdatedAt = now
	stored := account
	m.byID[account.ID] = &stored
	return account, nil
}

func (m *MemoryAccountRepo) GetByEmail(ctx context.Context, email string) (domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, account := range m.byID {
		if account.Email == email {
			return *account, nil
		}
	}
	return domain.Account{}, ErrNotFound
}

func (m *MemoryAccountRepo) GetByID(ctx context.Context, id int64) (domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if account, ok := m.byID[id]; ok {
		return *account, nil
	}
	return domain.Account{}, ErrNotFound
}

func (m *MemoryAccountRepo) List(ctx context.Context, limit, offset int32) ([]domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	accounts := make([]domain.Account, 0, len(m.byID))
	for _, account := range m.byID {
		accounts = append(accounts, *account)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].ID < accounts[j].ID })
	if int(offset) >= len(accounts) {
		return nil, nil
	}
	accounts = accounts[offset:]
	if int(limit) < len(accounts) {
		accounts = accounts[:limit]
	}
	return accounts, nil
}

func (m *MemoryAccountRepo) SetRefreshTokenHash(ctx context.Context, id int64, hash *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	account.RefreshTokenHash = copyString(hash)
	account.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryAccountRepo) RotateRefreshTokenHash(ctx context.Context, id int64, expected, next string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.byID[id]
	if !ok || account.RefreshTokenHash == nil || *account.RefreshTokenHash != expected {
		return ErrStaleRefresh
	}
	account.RefreshTokenHash = &next
	account.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryAccountRepo) ActivateByVerificationDigest(ctx context.Context, digest string, now time.Time) (domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, account := range m.byID {
		if account.VerificationTokenHash != nil && *account.VerificationTokenHash == digest &&
			account.VerificationTokenExpiry != nil && account.VerificationTokenExpiry.After(now) {
			account.Active = true
			account.VerificationTokenHash = nil
			account.VerificationTokenExpiry = nil
			account.UpdatedAt = now
			return *account, nil
		}
	}
	return domain.Account{}, ErrNotFound
}

func (m *MemoryAccountRepo) SetResetToken(ctx context.Context, id int64, digest string, expiry time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	account.ResetTokenHash = &digest
	account.ResetTokenExpiry = &expiry
	account.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryAccountRepo) ResetPasswordByDigest(ctx context.Context, digest, passwordHash string, now time.Time) (domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, account := range m.byID {
		if account.ResetTokenHash != nil && *account.ResetTokenHash == digest &&
			account.ResetTokenExpiry != nil && account.ResetTokenExpiry.After(now) {
			account.PasswordHash = passwordHash
			account.ResetTokenHash = nil
			account.ResetTokenExpiry = nil
			account.RefreshTokenHash = nil
			account.UpdatedAt = now
			return *account, nil
		}
	}
	return domain.Account{}, ErrNotFound
}

func (m *MemoryAccountRepo) UpdatePassword(ctx context.Context, id int64, passwordHash string, refreshHash *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	account.PasswordHash = passwordHash
	account.RefreshTokenHash = copyString(refreshHash)
	account.UpdatedAt = time.Now().UTC()
	return nil
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// MemoryLedger is an in-process RevocationLedger for tests and local runs.
// Expired entries are dropped lazily on lookup.
type MemoryLedger struct {
	mu      sync.Mutex
	revoked map[string]time.Time
}

// NewMemoryLedger returns an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{revoked: make(map[string]time.Time)}
}

func (l *MemoryLedger) Revoke(ctx context.Context, accessToken string, ttl time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.revoked[accessToken] = time.Now().Add(ttl)
	return nil
}

func (l *MemoryLedger) IsRevoked(ctx context.Context, accessToken string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	expiry, ok := l.revoked[accessToken]
	if ok && time.Now().After(expiry) {
		delete(l.revoked, accessToken)
		return false, nil
	}
	return ok, nil
}
