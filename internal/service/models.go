package service

import (
	"time"

	"github.com/taskhive/taskhive-auth/internal/domain"
)

// AccountView is the public projection of an account. Secrets and digests
// never leave the service layer.
type AccountView struct {
	ID        int64     `json:"id,string"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Role      string    `json:"role,omitempty"`
	Active    bool      `json:"active,omitempty"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// TokenPair is a freshly issued access/refresh pair. The refresh token's
// hash is already persisted by the time a pair is returned.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// AuthPayload bundles tokens with the account view for register and login
// responses.
type AuthPayload struct {
	AccessToken  string      `json:"accessToken"`
	RefreshToken string      `json:"refreshToken"`
	User         AccountView `json:"user"`
}

func newAccountView(account domain.Account) AccountView {
	return AccountView{
		ID:        account.ID,
		Name:      account.Name,
		Email:     account.Email,
		Role:      string(account.Role),
		Active:    account.Active,
		CreatedAt: account.CreatedAt,
	}
}

// minimalView is the login projection: just enough identity for the client
// to greet the user.
func minimalView(account domain.Account) AccountView {
	return AccountView{ID: account.ID, Name: account.Name}
}
