// Package bootstrap seeds startup state.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/taskhive/taskhive-auth/internal/config"
	"github.com/taskhive/taskhive-auth/internal/domain"
	"github.com/taskhive/taskhive-auth/internal/password"
	"github.com/taskhive/taskhive-auth/internal/repository"
)

// EnsureAdmin creates the configured admin account if missing. Skipped
// entirely when ADMIN_EMAIL or ADMIN_PASSWORD is unset.
func EnsureAdmin(lc fx.Lifecycle, cfg config.Config, accounts repository.AccountRepository, node *snowflake.Node, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return ensureAdmin(ctx, cfg, accounts, node, logger)
		},
	})
}

func ensureAdmin(ctx context.Context, cfg config.Config, accounts repository.AccountRepository, node *snowflake.Node, logger *zap.Logger) error {
	email := strings.ToLower(strings.TrimSpace(cfg.AdminEmail))
	if email == "" || cfg.AdminPassword == "" {
		return nil
	}

	if _, err := accounts.GetByEmail(ctx, email); err == nil {
		return nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("bootstrap lookup admin: %w", err)
	}

	hashed, err := password.Hash(cfg.AdminPassword)
	if err != nil {
		return fmt.Errorf("bootstrap hash password: %w", err)
	}

	admin := domain.Account{
		ID:           node.Generate().Int64(),
		Email:        email,
		Name:         "Admin",
		PasswordHash: hashed,
		Role:         domain.RoleAdmin,
		Active:       true,
	}

	created, err := accounts.Create(ctx, admin)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil
		}
		return fmt.Errorf("bootstrap create admin: %w", err)
	}

	logger.Info("bootstrap admin created", zap.Int64("account_id", created.ID))
	return nil
}
