package compound

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/yungbote/compoundlab-backend/internal/domain"
	"github.com/yungbote/compoundlab-backend/internal/platform/logger"
	"gorm.io/gorm"
)

// VersionRepo reads and appends compound snapshots. Rows are never updated.
type VersionRepo interface {
	Append(ctx context.Context, tx *gorm.DB, v *domain.CompoundVersion) error
	Get(ctx context.Context, tx *gorm.DB, compoundID uuid.UUID, version int) (*domain.CompoundVersion, error)
	List(ctx context.Context, tx *gorm.DB, compoundID uuid.UUID, skip, limit int) ([]*domain.CompoundVersion, error)
	Count(ctx context.Context, tx *gorm.DB, compoundID uuid.UUID) (int64, error)
}

type versionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewVersionRepo(db *gorm.DB, baseLog *logger.Logger) VersionRepo {
	repoLog := baseLog.With("repo", "CompoundVersionRepo")
	return &versionRepo{db: db, log: repoLog}
}

func (r *versionRepo) Append(ctx context.Context, tx *gorm.DB, v *domain.CompoundVersion) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return transaction.WithContext(ctx).Create(v).Error
}

func (r *versionRepo) Get(ctx context.Context, tx *gorm.DB, compoundID uuid.UUID, version int) (*domain.CompoundVersion, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var v domain.CompoundVersion
	err := transaction.WithContext(ctx).
		Where("compound_id = ? AND version = ?", compoundID, version).
		First(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// List returns snapshots ascending by version. A non-positive limit means no limit.
func (r *versionRepo) List(ctx context.Context, tx *gorm.DB, compoundID uuid.UUID, skip, limit int) ([]*domain.CompoundVersion, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	q := transaction.WithContext(ctx).
		Where("compound_id = ?", compoundID).
		Order("version ASC").
		Offset(clampSkip(skip))
	if limit > 0 {
		q = q.Limit(limit)
	}
	var results []*domain.CompoundVersion
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *versionRepo) Count(ctx context.Context, tx *gorm.DB, compoundID uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	err := transaction.WithContext(ctx).
		Model(&domain.CompoundVersion{}).
		Where("compound_id = ?", compoundID).
		Count(&count).Error
	return count, err
}
