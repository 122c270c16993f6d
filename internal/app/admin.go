package app

import (
	"context"
	"fmt"

	"github.com/yungbote/compoundlab-backend/internal/data/repos"
	"github.com/yungbote/compoundlab-backend/internal/domain"
	"github.com/yungbote/compoundlab-backend/internal/platform/logger"
	"github.com/yungbote/compoundlab-backend/internal/services"
)

// Migrate connects to the configured database and applies the schema.
func Migrate(cfg Config) error {
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()
	svc, err := OpenDatabase(log, cfg)
	if err != nil {
		return err
	}
	log.Info("Schema migrated", "driver", cfg.DBDriver)
	return svc.Close()
}

// CreateAdmin creates an admin account, or promotes the existing user with
// that email.
func CreateAdmin(ctx context.Context, cfg Config, email, password, fullName string) (*domain.User, error) {
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()
	svc, err := OpenDatabase(log, cfg)
	if err != nil {
		return nil, err
	}
	defer svc.Close()

	auth := services.NewAuthService(svc.DB(), log, repos.NewUserRepo(svc.DB(), log), nil, cfg.SecretKey, cfg.AccessTokenTTL)
	return auth.CreateAdmin(ctx, email, password, fullName)
}
