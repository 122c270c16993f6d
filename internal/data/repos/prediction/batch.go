package prediction

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/yungbote/compoundlab-backend/internal/domain"
	"github.com/yungbote/compoundlab-backend/internal/platform/logger"
	"gorm.io/gorm"
)

type BatchRepo interface {
	Create(ctx context.Context, tx *gorm.DB, b *domain.PredictionBatch) error
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.PredictionBatch, error)
	MarkCancelled(ctx context.Context, tx *gorm.DB, id uuid.UUID, now time.Time) error
}

type batchRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewBatchRepo(db *gorm.DB, baseLog *logger.Logger) BatchRepo {
	repoLog := baseLog.With("repo", "PredictionBatchRepo")
	return &batchRepo{db: db, log: repoLog}
}

func (r *batchRepo) Create(ctx context.Context, tx *gorm.DB, b *domain.PredictionBatch) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return transaction.WithContext(ctx).Create(b).Error
}

func (r *batchRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.PredictionBatch, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var b domain.PredictionBatch
	err := transaction.WithContext(ctx).Where("id = ?", id).First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// MarkCancelled records the first cancellation time; later calls keep it.
func (r *batchRepo) MarkCancelled(ctx context.Context, tx *gorm.DB, id uuid.UUID, now time.Time) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Model(&domain.PredictionBatch{}).
		Where("id = ? AND cancelled_at IS NULL", id).
		Update("cancelled_at", now).Error
}
