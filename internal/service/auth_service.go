// Package service implements the session orchestrator: registration, login,
// token rotation, logout and the one-time-token flows for email
// verification and password reset.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/taskhive/taskhive-auth/internal/config"
	"github.com/taskhive/taskhive-auth/internal/domain"
	"github.com/taskhive/taskhive-auth/internal/mail"
	"github.com/taskhive/taskhive-auth/internal/onetime"
	pw "github.com/taskhive/taskhive-auth/internal/password"
	"github.com/taskhive/taskhive-auth/internal/repository"
	"github.com/taskhive/taskhive-auth/internal/token"
)

const (
	// Identical for unknown email and wrong password so the two causes are
	// indistinguishable to a caller probing for accounts.
	msgBadCredentials = "Email or password is incorrect"
)

// MsgResetRequested is the fixed forgot-password response, identical for
// registered and unregistered addresses.
const MsgResetRequested = "If email exists a reset password link will be sent to your email"

// AuthService composes the credential store, hasher, signer, one-time token
// generator, revocation ledger and mail channel into atomic, audited
// operations. Each invocation is independent; per-account mutual exclusion
// on the refresh chain relies on the store's fenced updates.
type AuthService struct {
	accounts  repository.AccountRepository
	ledger    repository.RevocationLedger
	tokens    *token.Signer
	mailer    mail.Mailer
	snowflake *snowflake.Node
	cfg       config.Config
	logger    *zap.Logger
	tracer    trace.Tracer
}

// NewAuthService wires dependencies.
func NewAuthService(accounts repository.AccountRepository, ledger repository.RevocationLedger, tokens *token.Signer, mailer mail.Mailer, node *snowflake.Node, cfg config.Config, logger *zap.Logger) *AuthService {
	return &AuthService{
		accounts:  accounts,
		ledger:    ledger,
		tokens:    tokens,
		mailer:    mailer,
		snowflake: node,
		cfg:       cfg,
		logger:    logger,
		tracer:    otel.Tracer("github.com/taskhive/taskhive-auth/internal/service"),
	}
}

// Register creates an unverified account, issues the first token pair and
// sends the verification link. The account is usable before verification;
// call sites may gate specific actions on the active flag.
func (s *AuthService) Register(ctx context.Context, email, name, passwd string) (AuthPayload, error) {
	ctx, span := s.startSpan(ctx, "AuthService.Register")
	defer span.End()

	normalized := normalizeEmail(email)
	if normalized == "" {
		return AuthPayload{}, errBadRequest("Email is required")
	}
	if strings.TrimSpace(passwd) == "" {
		return AuthPayload{}, errBadRequest("Password is required")
	}

	hashed, err := pw.Hash(passwd)
	if err != nil {
		span.RecordError(err)
		return AuthPayload{}, fmt.Errorf("hash password: %w", err)
	}

	verification, err := onetime.New(s.cfg.VerificationTokenTTL)
	if err != nil {
		span.RecordError(err)
		return AuthPayload{}, fmt.Errorf("generate verification token: %w", err)
	}

	account := domain.Account{
		ID:                      s.snowflake.Generate().Int64(),
		Email:                   normalized,
		Name:                    strings.TrimSpace(name),
		PasswordHash:            hashed,
		Role:                    domain.RoleUser,
		Active:                  false,
		VerificationTokenHash:   &verification.Digest,
		VerificationTokenExpiry: &verification.Expiry,
	}

	created, err := s.accounts.Create(ctx, account)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return AuthPayload{}, errConflict("Email already registered")
		}
		span.RecordError(err)
		return AuthPayload{}, fmt.Errorf("create account: %w", err)
	}

	pair, err := s.issuePair(ctx, created)
	if err != nil {
		span.RecordError(err)
		return AuthPayload{}, err
	}

	s.deliver(ctx, created.Email, mail.TemplateVerification, mail.Payload{
		Name: created.Name,
		URL:  s.cfg.FrontendURL + "/auth/verify-email/" + verification.Raw,
	})

	s.audit("register.success", "account_id", created.ID)
	return AuthPayload{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		User:         newAccountView(created),
	}, nil
}

// VerifyEmail redeems a verification link. Wrong and expired tokens are
// deliberately indistinguishable.
func (s *AuthService) VerifyEmail(ctx context.Context, rawToken string) error {
	ctx, span := s.startSpan(ctx, "AuthService.VerifyEmail")
	defer span.End()

	account, err := s.accounts.ActivateByVerificationDigest(ctx, onetime.Digest(rawToken), time.Now().UTC())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return errNotFound("User not found")
		}
		span.RecordError(err)
		return fmt.Errorf("activate account: %w", err)
	}

	s.audit("verify_email.success", "account_id", account.ID)
	return nil
}

// Login authenticates by email and password and replaces any outstanding
// refresh token: a single refresh token is valid per account at any time.
func (s *AuthService) Login(ctx context.Context, email, passwd string) (AuthPayload, error) {
	ctx, span := s.startSpan(ctx, "AuthService.Login")
	defer span.End()

	account, err := s.accounts.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return AuthPayload{}, errUnauthorized(msgBadCredentials)
		}
		span.RecordError(err)
		return AuthPayload{}, fmt.Errorf("load account: %w", err)
	}

	ok, err := pw.Verify(passwd, account.PasswordHash)
	if err != nil {
		span.RecordError(err)
		return AuthPayload{}, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return AuthPayload{}, errUnauthorized(msgBadCredentials)
	}

	pair, err := s.issuePair(ctx, account)
	if err != nil {
		span.RecordError(err)
		return AuthPayload{}, err
	}

	s.audit("login.success", "account_id", account.ID)
	return AuthPayload{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		User:         minimalView(account),
	}, nil
}

// Refresh exchanges a refresh token for a brand-new pair. Rotation is
// fenced on the previously stored hash, so each refresh token is usable at
// most once: concurrent replays of a superseded token produce exactly one
// success.
func (s *AuthService) Refresh(ctx context.Context, rawRefresh string) (TokenPair, error) {
	ctx, span := s.startSpan(ctx, "AuthService.Refresh")
	defer span.End()

	accountID, err := s.tokens.VerifyRefresh(rawRefresh)
	if err != nil {
		return TokenPair{}, errUnauthorized("Invalid or expired token")
	}

	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return TokenPair{}, errUnauthorized("Access denied")
		}
		span.RecordError(err)
		return TokenPair{}, fmt.Errorf("load account: %w", err)
	}
	if account.RefreshTokenHash == nil {
		return TokenPair{}, errUnauthorized("Access denied")
	}

	ok, err := pw.Verify(rawRefresh, *account.RefreshTokenHash)
	if err != nil {
		span.RecordError(err)
		return TokenPair{}, fmt.Errorf("verify refresh token: %w", err)
	}
	if !ok {
		return TokenPair{}, errUnauthorized("Invalid or expired token")
	}

	pair, nextHash, err := s.signPair(account)
	if err != nil {
		span.RecordError(err)
		return TokenPair{}, err
	}

	if err := s.accounts.RotateRefreshTokenHash(ctx, account.ID, *account.RefreshTokenHash, nextHash); err != nil {
		if errors.Is(err, repository.ErrStaleRefresh) {
			return TokenPair{}, errUnauthorized("Invalid or expired token")
		}
		span.RecordError(err)
		return TokenPair{}, fmt.Errorf("rotate refresh token: %w", err)
	}

	s.audit("refresh.success", "account_id", account.ID)
	return pair, nil
}

// Logout ends the refresh chain and revokes the presented access token for
// the remainder of its natural lifetime.
func (s *AuthService) Logout(ctx context.Context, accountID int64, accessToken string) error {
	ctx, span := s.startSpan(ctx, "AuthService.Logout")
	defer span.End()

	if _, err := s.accounts.GetByID(ctx, accountID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return errNotFound("User not found")
		}
		span.RecordError(err)
		return fmt.Errorf("load account: %w", err)
	}

	if err := s.accounts.SetRefreshTokenHash(ctx, accountID, nil); err != nil {
		span.RecordError(err)
		return fmt.Errorf("clear refresh token: %w", err)
	}

	if err := s.ledger.Revoke(ctx, accessToken, s.tokens.AccessTTL()); err != nil {
		span.RecordError(err)
		return fmt.Errorf("revoke access token: %w", err)
	}

	s.audit("logout.success", "account_id", accountID)
	return nil
}

// ForgotPassword starts the reset flow. The caller gets the same answer
// whether or not the address is registered; only the registered case has
// side effects.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	ctx, span := s.startSpan(ctx, "AuthService.ForgotPassword")
	defer span.End()

	account, err := s.accounts.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.audit("forgot_password.unknown_email")
			return nil
		}
		span.RecordError(err)
		return fmt.Errorf("load account: %w", err)
	}

	reset, err := onetime.New(s.cfg.ResetTokenTTL)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("generate reset token: %w", err)
	}

	// A newer request supersedes any outstanding reset token.
	if err := s.accounts.SetResetToken(ctx, account.ID, reset.Digest, reset.Expiry); err != nil {
		span.RecordError(err)
		return fmt.Errorf("persist reset token: %w", err)
	}

	s.deliver(ctx, account.Email, mail.TemplatePassword, mail.Payload{
		Name: account.Name,
		URL:  s.cfg.FrontendURL + "/auth/reset-password/" + reset.Raw,
	})

	s.audit("forgot_password.requested", "account_id", account.ID)
	return nil
}

// ResetPassword redeems a reset link. On success the refresh chain is
// cleared as well, forcing re-authentication on all devices.
func (s *AuthService) ResetPassword(ctx context.Context, rawToken, newPassword string) error {
	ctx, span := s.startSpan(ctx, "AuthService.ResetPassword")
	defer span.End()

	if strings.TrimSpace(newPassword) == "" {
		return errBadRequest("Password is required")
	}

	hashed, err := pw.Hash(newPassword)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("hash password: %w", err)
	}

	account, err := s.accounts.ResetPasswordByDigest(ctx, onetime.Digest(rawToken), hashed, time.Now().UTC())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return errNotFound("User not found")
		}
		span.RecordError(err)
		return fmt.Errorf("reset password: %w", err)
	}

	s.audit("reset_password.success", "account_id", account.ID)
	return nil
}

// ChangePassword re-verifies the current password of an already
// authenticated caller, then stores the new hash and rotates the refresh
// chain. Unlike ResetPassword this does not revoke outstanding access
// tokens; the narrower invalidation mirrors the product's behavior.
func (s *AuthService) ChangePassword(ctx context.Context, identity domain.Identity, current, next string) error {
	ctx, span := s.startSpan(ctx, "AuthService.ChangePassword")
	defer span.End()

	account, err := s.accounts.GetByID(ctx, identity.AccountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return errNotFound("User not found")
		}
		span.RecordError(err)
		return fmt.Errorf("load account: %w", err)
	}

	ok, err := pw.Verify(current, account.PasswordHash)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		// The caller already holds a valid access token; a wrong current
		// password is a bad request, not an authentication failure.
		return errBadRequest("Current password is incorrect")
	}

	hashed, err := pw.Hash(next)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("hash password: %w", err)
	}

	// Rotate the refresh chain to a token the caller never receives: every
	// outstanding refresh token dies with the old password.
	_, nextHash, err := s.signPair(account)
	if err != nil {
		span.RecordError(err)
		return err
	}

	if err := s.accounts.UpdatePassword(ctx, account.ID, hashed, &nextHash); err != nil {
		span.RecordError(err)
		return fmt.Errorf("update password: %w", err)
	}

	s.audit("change_password.success", "account_id", account.ID)
	return nil
}

// Authenticate is the access-gate entry point: signature and expiry first,
// then the revocation ledger, then the decoded identity.
func (s *AuthService) Authenticate(ctx context.Context, rawAccess string) (domain.Identity, error) {
	identity, err := s.tokens.VerifyAccess(rawAccess)
	if err != nil {
		return domain.Identity{}, errUnauthorized("Invalid or expired access token")
	}

	revoked, err := s.ledger.IsRevoked(ctx, rawAccess)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("check revocation: %w", err)
	}
	if revoked {
		return domain.Identity{}, errUnauthorized("Access token has been revoked")
	}

	return identity, nil
}

// ListAccounts backs the admin listing endpoint.
func (s *AuthService) ListAccounts(ctx context.Context, limit, offset int32) ([]AccountView, error) {
	ctx, span := s.startSpan(ctx, "AuthService.ListAccounts")
	defer span.End()

	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	accounts, err := s.accounts.List(ctx, limit, offset)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("list accounts: %w", err)
	}

	views := make([]AccountView, 0, len(accounts))
	for _, account := range accounts {
		views = append(views, newAccountView(account))
	}
	return views, nil
}

// issuePair signs a fresh pair and overwrites the stored refresh hash,
// invalidating any previously issued refresh token for the account.
func (s *AuthService) issuePair(ctx context.Context, account domain.Account) (TokenPair, error) {
	pair, hash, err := s.signPair(account)
	if err != nil {
		return TokenPair{}, err
	}
	if err := s.accounts.SetRefreshTokenHash(ctx, account.ID, &hash); err != nil {
		return TokenPair{}, fmt.Errorf("persist refresh token hash: %w", err)
	}
	return pair, nil
}

// signPair issues both tokens and returns the hash of the refresh token;
// the raw refresh token is never persisted.
func (s *AuthService) signPair(account domain.Account) (TokenPair, string, error) {
	access, err := s.tokens.IssueAccessToken(domain.Identity{
		AccountID: account.ID,
		Name:      account.Name,
		Role:      account.Role,
	})
	if err != nil {
		return TokenPair{}, "", fmt.Errorf("issue access token: %w", err)
	}

	refresh, err := s.tokens.IssueRefreshToken(account.ID)
	if err != nil {
		return TokenPair{}, "", fmt.Errorf("issue refresh token: %w", err)
	}

	hash, err := pw.Hash(refresh)
	if err != nil {
		return TokenPair{}, "", fmt.Errorf("hash refresh token: %w", err)
	}

	return TokenPair{AccessToken: access, RefreshToken: refresh}, hash, nil
}

// deliver sends outbound mail best-effort: failure is logged and never
// aborts the state transition that preceded it.
func (s *AuthService) deliver(ctx context.Context, to string, tmpl mail.Template, payload mail.Payload) {
	if err := s.mailer.Send(ctx, to, tmpl, payload); err != nil {
		s.log().Error("mail delivery failed",
			zap.String("template", string(tmpl)),
			zap.Error(err),
		)
	}
}

func (s *AuthService) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if s == nil || s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return s.tracer.Start(ctx, name)
}

func (s *AuthService) audit(event string, attrs ...any) {
	logger := s.log()
	if logger == nil {
		return
	}
	fields := make([]zap.Field, 0, len(attrs)/2+2)
	fields = append(fields, zap.String("event", event), zap.Time("timestamp", time.Now().UTC()))
	for i := 0; i+1 < len(attrs); i += 2 {
		key, ok := attrs[i].(string)
		if !ok {
			continue
		}
		fields = append(fields, zap.Any(key, attrs[i+1]))
	}
	logger.Info("audit", fields...)
}

func (s *AuthService) log() *zap.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return zap.L()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
