package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/compoundlab-backend/internal/domain"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(domain.Models()...)
}

// EnsureIndexes adds the indexes gorm tags cannot express.
func EnsureIndexes(db *gorm.DB) error {
	// At most one live compound per SMILES; tombstoned rows keep their history.
	if err := db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_compound_live_smiles
		ON compound (smiles)
		WHERE deleted = false;
	`).Error; err != nil {
		return fmt.Errorf("create idx_compound_live_smiles: %w", err)
	}
	// Sweeper scan: pending, unclaimed predictions oldest first.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_prediction_pending_created
		ON prediction (status, created_at)
		WHERE locked_at IS NULL;
	`).Error; err != nil {
		return fmt.Errorf("create idx_prediction_pending_created: %w", err)
	}
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_prediction_batch_seq
		ON prediction (batch_id, batch_seq);
	`).Error; err != nil {
		return fmt.Errorf("create idx_prediction_batch_seq: %w", err)
	}
	return nil
}

func (s *Service) AutoMigrateAll() error {
	s.log.Info("Auto migrating tables...")
	if err := AutoMigrateAll(s.db); err != nil {
		s.log.Error("Auto migration failed", "error", err)
		return err
	}
	if err := EnsureIndexes(s.db); err != nil {
		s.log.Error("Index migration failed", "error", err)
		return err
	}
	return nil
}
