package experiment

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/yungbote/compoundlab-backend/internal/domain"
	"github.com/yungbote/compoundlab-backend/internal/platform/logger"
	"gorm.io/gorm"
)

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

type ExperimentRepo interface {
	Create(ctx context.Context, tx *gorm.DB, e *domain.Experiment) error
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.Experiment, error)
	List(ctx context.Context, tx *gorm.DB, filter domain.ExperimentFilter) ([]*domain.Experiment, error)
	// SetTrackingRun stores runID only if no run id was stored before.
	SetTrackingRun(ctx context.Context, tx *gorm.DB, id uuid.UUID, runID, status string, now time.Time) (bool, error)
}

type experimentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewExperimentRepo(db *gorm.DB, baseLog *logger.Logger) ExperimentRepo {
	repoLog := baseLog.With("repo", "ExperimentRepo")
	return &experimentRepo{db: db, log: repoLog}
}

func (r *experimentRepo) Create(ctx context.Context, tx *gorm.DB, e *domain.Experiment) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return transaction.WithContext(ctx).Create(e).Error
}

func (r *experimentRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.Experiment, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var e domain.Experiment
	err := transaction.WithContext(ctx).Where("id = ?", id).First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *experimentRepo) List(ctx context.Context, tx *gorm.DB, filter domain.ExperimentFilter) ([]*domain.Experiment, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	q := transaction.WithContext(ctx).Model(&domain.Experiment{})
	if filter.UserID != nil {
		q = q.Where("user_id = ?", *filter.UserID)
	}
	if mt := strings.TrimSpace(filter.ModelType); mt != "" {
		q = q.Where("model_type = ?", mt)
	}
	if st := strings.TrimSpace(filter.Status); st != "" {
		q = q.Where("status = ?", st)
	}
	limit := filter.Limit
	switch {
	case limit <= 0:
		limit = DefaultLimit
	case limit > MaxLimit:
		limit = MaxLimit
	}
	skip := filter.Skip
	if skip < 0 {
		skip = 0
	}
	var results []*domain.Experiment
	if err := q.Order("created_at DESC").Offset(skip).Limit(limit).Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *experimentRepo) SetTrackingRun(ctx context.Context, tx *gorm.DB, id uuid.UUID, runID, status string, now time.Time) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	updates := map[string]any{
		"tracking_run_id": runID,
		"updated_at":      now,
	}
	if status != "" {
		updates["status"] = status
		updates["completed_at"] = now
	}
	res := transaction.WithContext(ctx).
		Model(&domain.Experiment{}).
		Where("id = ? AND tracking_run_id IS NULL", id).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
