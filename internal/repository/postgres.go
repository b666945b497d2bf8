package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taskhive/taskhive-auth/internal/domain"
)

var _ AccountRepository = (*PostgresAccountRepo)(nil)

const accountColumns = `id, email, name, password_hash, role, active,
refresh_token_hash, verification_token_hash, verification_token_expiry,
reset_token_hash, reset_token_expiry, created_at, updated_at`

// PostgresAccountRepo implements AccountRepository over a pgx pool.
type PostgresAccountRepo struct {
	db *pgxpool.Pool
}

func NewPostgresAccountRepo(pool *pgxpool.Pool) *PostgresAccountRepo {
	return &PostgresAccountRepo{db: pool}
}

func (r *PostgresAccountRepo) Create(ctx context.Context, account domain.Account) (domain.Account, error) {
	const query = `
INSERT INTO accounts (id, email, name, password_hash, role, active,
	refresh_token_hash, verification_token_hash, verification_token_expiry)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING ` + accountColumns

	row := r.db.QueryRow(ctx, query,
		account.ID, account.Email, account.Name, account.PasswordHash,
		account.Role, account.Active, account.RefreshTokenHash,
		account.VerificationTokenHash, account.VerificationTokenExpiry,
	)
	created, err := scanAccount(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return domain.Account{}, ErrDuplicateEmail
		}
		return domain.Account{}, fmt.Errorf("insert account: %w", err)
	}
	return created, nil
}

func (r *PostgresAccountRepo) GetByEmail(ctx context.Context, email string) (domain.Account, error) {
	const query = `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1`
	account, err := scanAccount(r.db.QueryRow(ctx, query, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Account{}, ErrNotFound
		}
		return domain.Account{}, fmt.Errorf("get account by email: %w", err)
	}
	return account, nil
}

func (r *PostgresAccountRepo) GetByID(ctx context.Context, id int64) (domain.Account, error) {
	const query = `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	account, err := scanAccount(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Account{}, ErrNotFound
		}
		return domain.Account{}, fmt.Errorf("get account by id: %w", err)
	}
	return account, nil
}

func (r *PostgresAccountRepo) List(ctx context.Context, limit, offset int32) ([]domain.Account, error) {
	const query = `SELECT ` + accountColumns + ` FROM accounts ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	accounts := make([]domain.Account, 0, limit)
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return accounts, nil
}

func (r *PostgresAccountRepo) SetRefreshTokenHash(ctx context.Context, id int64, hash *string) error {
	const query = `UPDATE accounts SET refresh_token_hash = $2, updated_at = now() WHERE id = $1`
	tag, err := r.db.Exec(ctx, query, id, hash)
	if err != nil {
		return fmt.Errorf("set refresh token hash: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresAccountRepo) RotateRefreshTokenHash(ctx context.Context, id int64, expected, next string) error {
	const query = `
UPDATE accounts SET refresh_token_hash = $3, updated_at = now()
WHERE id = $1 AND refresh_token_hash = $2`
	tag, err := r.db.Exec(ctx, query, id, expected, next)
	if err != nil {
		return fmt.Errorf("rotate refresh token hash: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleRefresh
	}
	return nil
}

func (r *PostgresAccountRepo) ActivateByVerificationDigest(ctx context.Context, digest string, now time.Time) (domain.Account, error) {
	const query = `
UPDATE accounts
SET active = TRUE, verification_token_hash = NULL,
	verification_token_expiry = NULL, updated_at = now()
WHERE verification_token_hash = $1 AND verification_token_expiry > $2
RETURNING ` + accountColumns

	account, err := scanAccount(r.db.QueryRow(ctx, query, digest, now))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Account{}, ErrNotFound
		}
		return domain.Account{}, fmt.Errorf("activate account: %w", err)
	}
	return account, nil
}

func (r *PostgresAccountRepo) SetResetToken(ctx context.Context, id int64, digest string, expiry time.Time) error {
	const query = `
UPDATE accounts SET reset_token_hash = $2, reset_token_expiry = $3, updated_at = now()
WHERE id = $1`
	tag, err := r.db.Exec(ctx, query, id, digest, expiry)
	if err != nil {
		return fmt.Errorf("set reset token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresAccountRepo) ResetPasswordByDigest(ctx context.Context, digest, passwordHash string, now time.Time) (domain.Account, error) {
	const query = `
UPDATE accounts
SET password_hash = $2, reset_token_hash = NULL, reset_token_expiry = NULL,
	refresh_token_hash = NULL, updated_at = now()
WHERE reset_token_hash = $1 AND reset_token_expiry > $3
RETURNING ` + accountColumns

	account, err := scanAccount(r.db.QueryRow(ctx, query, digest, passwordHash, now))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Account{}, ErrNotFound
		}
		return domain.Account{}, fmt.Errorf("reset password: %w", err)
	}
	return account, nil
}

func (r *PostgresAccountRepo) UpdatePassword(ctx context.Context, id int64, passwordHash string, refreshHash *string) error {
	const query = `
UPDATE accounts SET password_hash = $2, refresh_token_hash = $3, updated_at = now()
WHERE id = $1`
	tag, err := r.db.Exec(ctx, query, id, passwordHash, refreshHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanAccount(row pgx.Row) (domain.Account, error) {
	var a domain.Account
	err := row.Scan(
		&a.ID, &a.Email, &a.Name, &a.PasswordHash, &a.Role, &a.Active,
		&a.RefreshTokenHash, &a.VerificationTokenHash, &a.VerificationTokenExpiry,
		&a.ResetTokenHash, &a.ResetTokenExpiry, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return domain.Account{}, err
	}
	return a, nil
}
