// Package token issues and verifies the two signed credential classes:
// short-lived access tokens carrying identity claims and longer-lived
// refresh tokens carrying only the account id. The two classes are signed
// with distinct secrets so compromise of one cannot forge the other.
package token

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	gojose "github.com/go-jose/go-jose/v4"
	gojwt "github.com/go-jose/go-jose/v4/jwt"

	"github.com/taskhive/taskhive-auth/internal/domain"
)

var (
	// ErrInvalid covers malformed tokens, bad signatures and wrong claims.
	ErrInvalid = errors.New("invalid token")
	// ErrExpired is a structurally valid token past its expiry.
	ErrExpired = errors.New("token expired")
)

// AccessClaims is the custom payload embedded in access tokens. It carries
// enough identity to authorize a request without a storage lookup.
type AccessClaims struct {
	AccountID int64  `json:"id,string"`
	Name      string `json:"name"`
	Role      string `json:"role"`
}

// Signer signs and verifies both token classes with symmetric HS256 keys.
// Secrets are immutable after construction; methods are safe for concurrent
// use.
type Signer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

// NewSigner constructs a Signer. Access and refresh secrets must differ.
func NewSigner(accessSecret, refreshSecret []byte, accessTTL, refreshTTL time.Duration) (*Signer, error) {
	if len(accessSecret) == 0 || len(refreshSecret) == 0 {
		return nil, errors.New("token secrets must not be empty")
	}
	if string(accessSecret) == string(refreshSecret) {
		return nil, errors.New("access and refresh secrets must be distinct")
	}
	return &Signer{
		accessSecret:  accessSecret,
		refreshSecret: refreshSecret,
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}, nil
}

// AccessTTL exposes the configured access-token lifetime; the revocation
// ledger bounds entry retention with it.
func (s *Signer) AccessTTL() time.Duration {
	return s.accessTTL
}

// IssueAccessToken signs a short-lived token embedding the account identity.
func (s *Signer) IssueAccessToken(identity domain.Identity) (string, error) {
	custom := AccessClaims{
		AccountID: identity.AccountID,
		Name:      identity.Name,
		Role:      string(identity.Role),
	}
	return sign(s.accessSecret, identity.AccountID, s.accessTTL, &custom)
}

// IssueRefreshToken signs a long-lived token carrying only the account id.
func (s *Signer) IssueRefreshToken(accountID int64) (string, error) {
	return sign(s.refreshSecret, accountID, s.refreshTTL, nil)
}

// VerifyAccess checks signature and expiry against the access secret and
// decodes the identity claims.
func (s *Signer) VerifyAccess(raw string) (domain.Identity, error) {
	var custom AccessClaims
	if err := verify(s.accessSecret, raw, &custom); err != nil {
		return domain.Identity{}, err
	}
	return domain.Identity{
		AccountID: custom.AccountID,
		Name:      custom.Name,
		Role:      domain.Role(custom.Role),
	}, nil
}

// VerifyRefresh checks signature and expiry against the refresh secret and
// returns the claimed account id.
func (s *Signer) VerifyRefresh(raw string) (int64, error) {
	var std gojwt.Claims
	parsed, err := gojwt.ParseSigned(raw, []gojose.SignatureAlgorithm{gojose.HS256})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := parsed.Claims(s.refreshSecret, &std); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := validate(std); err != nil {
		return 0, err
	}
	id, err := strconv.ParseInt(std.Subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: non-numeric subject", ErrInvalid)
	}
	return id, nil
}

func sign(secret []byte, accountID int64, ttl time.Duration, custom *AccessClaims) (string, error) {
	signer, err := gojose.NewSigner(
		gojose.SigningKey{Algorithm: gojose.HS256, Key: secret},
		(&gojose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", fmt.Errorf("new signer: %w", err)
	}

	now := time.Now().UTC()
	std := gojwt.Claims{
		Subject:  strconv.FormatInt(accountID, 10),
		IssuedAt: gojwt.NewNumericDate(now),
		Expiry:   gojwt.NewNumericDate(now.Add(ttl)),
	}

	builder := gojwt.Signed(signer).Claims(std)
	if custom != nil {
		builder = builder.Claims(custom)
	}
	serialized, err := builder.Serialize()
	if err != nil {
		return "", fmt.Errorf("serialize token: %w", err)
	}
	return serialized, nil
}

func verify(secret []byte, raw string, custom *AccessClaims) error {
	parsed, err := gojwt.ParseSigned(raw, []gojose.SignatureAlgorithm{gojose.HS256})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	var std gojwt.Claims
	if err := parsed.Claims(secret, &std, custom); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return validate(std)
}

func validate(std gojwt.Claims) error {
	if err := std.Validate(gojwt.Expected{Time: time.Now().UTC()}); err != nil {
		if errors.Is(err, gojwt.ErrExpired) {
			return ErrExpired
		}
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}
