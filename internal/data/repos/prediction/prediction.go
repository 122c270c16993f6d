package prediction

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/yungbote/compoundlab-backend/internal/domain"
	predictiondomain "github.com/yungbote/compoundlab-backend/internal/domain/prediction"
	"github.com/yungbote/compoundlab-backend/internal/platform/logger"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// Outcome is the terminal result written by a worker.
type Outcome struct {
	Status     string
	Value      *float64
	Confidence *float64
	Details    datatypes.JSON
	ModelName  string
	Error      string
	Attempts   int
}

type PredictionRepo interface {
	Create(ctx context.Context, tx *gorm.DB, preds []*domain.Prediction) ([]*domain.Prediction, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.Prediction, error)
	List(ctx context.Context, tx *gorm.DB, filter domain.PredictionFilter) ([]*domain.Prediction, error)
	ListByBatch(ctx context.Context, tx *gorm.DB, batchID uuid.UUID) ([]*domain.Prediction, error)
	ListForModel(ctx context.Context, tx *gorm.DB, modelType, modelName string, createdBy *uuid.UUID, limit int) ([]*domain.Prediction, error)

	// Claim marks a pending, unclaimed prediction as taken under token. It
	// reports false when another worker holds it or it is already terminal.
	Claim(ctx context.Context, tx *gorm.DB, id, token uuid.UUID, now time.Time) (bool, error)
	RecordAttempt(ctx context.Context, tx *gorm.DB, id, token uuid.UUID, attempts int) error
	// Finish writes a terminal outcome. Only a pending row still held under
	// token transitions; a claim released by the sweeper reports false.
	Finish(ctx context.Context, tx *gorm.DB, id, token uuid.UUID, out Outcome, now time.Time) (bool, error)
	CancelPendingInBatch(ctx context.Context, tx *gorm.DB, batchID uuid.UUID, now time.Time) (int64, error)

	ListUnclaimedPendingIDs(ctx context.Context, tx *gorm.DB, limit int) ([]uuid.UUID, error)
	ReleaseStaleClaims(ctx context.Context, tx *gorm.DB, claimedBefore time.Time) (int64, error)
	CountByStatus(ctx context.Context, tx *gorm.DB) (map[string]int64, error)
}

type predictionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPredictionRepo(db *gorm.DB, baseLog *logger.Logger) PredictionRepo {
	repoLog := baseLog.With("repo", "PredictionRepo")
	return &predictionRepo{db: db, log: repoLog}
}

func (r *predictionRepo) tx(tx *gorm.DB) *gorm.DB {
	if tx == nil {
		return r.db
	}
	return tx
}

func (r *predictionRepo) Create(ctx context.Context, tx *gorm.DB, preds []*domain.Prediction) ([]*domain.Prediction, error) {
	if len(preds) == 0 {
		return []*domain.Prediction{}, nil
	}
	for _, p := range preds {
		if p.ID == uuid.Nil {
			p.ID = uuid.New()
		}
		if p.Status == "" {
			p.Status = predictiondomain.StatusPending
		}
	}
	if err := r.tx(tx).WithContext(ctx).Create(&preds).Error; err != nil {
		return nil, err
	}
	return preds, nil
}

func (r *predictionRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.Prediction, error) {
	var p domain.Prediction
	err := r.tx(tx).WithContext(ctx).Where("id = ?", id).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *predictionRepo) List(ctx context.Context, tx *gorm.DB, filter domain.PredictionFilter) ([]*domain.Prediction, error) {
	q := r.tx(tx).WithContext(ctx).Model(&domain.Prediction{})
	if filter.CompoundID != nil {
		q = q.Where("compound_id = ?", *filter.CompoundID)
	}
	if filter.ExperimentID != nil {
		q = q.Where("experiment_id = ?", *filter.ExperimentID)
	}
	if filter.BatchID != nil {
		q = q.Where("batch_id = ?", *filter.BatchID)
	}
	if filter.CreatedBy != nil {
		q = q.Where("(created_by = ? OR created_by IS NULL)", *filter.CreatedBy)
	}
	if mt := predictiondomain.NormalizeModelType(filter.ModelType); mt != "" {
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
	var results []*domain.Prediction
	if err := q.Order("created_at DESC").Order("batch_seq").
		Offset(skip).Limit(limit).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// ListByBatch returns members in submission order.
func (r *predictionRepo) ListByBatch(ctx context.Context, tx *gorm.DB, batchID uuid.UUID) ([]*domain.Prediction, error) {
	var results []*domain.Prediction
	if err := r.tx(tx).WithContext(ctx).
		Where("batch_id = ?", batchID).
		Order("batch_seq ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// ListForModel matches predictions by model identity, the loose experiment linkage.
// An empty modelName matches every variant of the type; a nil createdBy
// matches every submitter. Rows without a submitter match any createdBy.
func (r *predictionRepo) ListForModel(ctx context.Context, tx *gorm.DB, modelType, modelName string, createdBy *uuid.UUID, limit int) ([]*domain.Prediction, error) {
	q := r.tx(tx).WithContext(ctx).Where("model_type = ?", predictiondomain.NormalizeModelType(modelType))
	if name := strings.TrimSpace(modelName); name != "" {
		q = q.Where("model_name = ?", name)
	}
	if createdBy != nil {
		q = q.Where("(created_by = ? OR created_by IS NULL)", *createdBy)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var results []*domain.Prediction
	if err := q.Order("created_at ASC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *predictionRepo) Claim(ctx context.Context, tx *gorm.DB, id, token uuid.UUID, now time.Time) (bool, error) {
	res := r.tx(tx).WithContext(ctx).
		Model(&domain.Prediction{}).
		Where("id = ? AND status = ? AND locked_at IS NULL", id, predictiondomain.StatusPending).
		Updates(map[string]any{"locked_at": now, "claim_token": token, "updated_at": now})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *predictionRepo) RecordAttempt(ctx context.Context, tx *gorm.DB, id, token uuid.UUID, attempts int) error {
	return r.tx(tx).WithContext(ctx).
		Model(&domain.Prediction{}).
		Where("id = ? AND status = ? AND claim_token = ?", id, predictiondomain.StatusPending, token).
		Update("attempts", attempts).Error
}

func (r *predictionRepo) Finish(ctx context.Context, tx *gorm.DB, id, token uuid.UUID, out Outcome, now time.Time) (bool, error) {
	updates := map[string]any{
		"status":       out.Status,
		"value":        out.Value,
		"confidence":   out.Confidence,
		"error":        out.Error,
		"attempts":     out.Attempts,
		"completed_at": now,
		"locked_at":    nil,
		"claim_token":  nil,
		"updated_at":   now,
	}
	if len(out.Details) > 0 {
		updates["details"] = out.Details
	}
	if out.ModelName != "" {
		updates["model_name"] = out.ModelName
	}
	res := r.tx(tx).WithContext(ctx).
		Model(&domain.Prediction{}).
		Where("id = ? AND status = ? AND claim_token = ?", id, predictiondomain.StatusPending, token).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// CancelPendingInBatch fails members no worker has claimed; claimed members run to completion.
func (r *predictionRepo) CancelPendingInBatch(ctx context.Context, tx *gorm.DB, batchID uuid.UUID, now time.Time) (int64, error) {
	res := r.tx(tx).WithContext(ctx).
		Model(&domain.Prediction{}).
		Where("batch_id = ? AND status = ? AND locked_at IS NULL", batchID, predictiondomain.StatusPending).
		Updates(map[string]any{
			"status":       predictiondomain.StatusFailed,
			"error":        predictiondomain.ReasonCancelled,
			"completed_at": now,
			"updated_at":   now,
		})
	return res.RowsAffected, res.Error
}

func (r *predictionRepo) ListUnclaimedPendingIDs(ctx context.Context, tx *gorm.DB, limit int) ([]uuid.UUID, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	var ids []uuid.UUID
	if err := r.tx(tx).WithContext(ctx).
		Model(&domain.Prediction{}).
		Where("status = ? AND locked_at IS NULL", predictiondomain.StatusPending).
		Order("created_at ASC").
		Limit(limit).
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// ReleaseStaleClaims clears claims left behind by workers that died mid-item.
func (r *predictionRepo) ReleaseStaleClaims(ctx context.Context, tx *gorm.DB, claimedBefore time.Time) (int64, error) {
	res := r.tx(tx).WithContext(ctx).
		Model(&domain.Prediction{}).
		Where("status = ? AND locked_at IS NOT NULL AND locked_at < ?", predictiondomain.StatusPending, claimedBefore).
		Updates(map[string]any{"locked_at": nil, "claim_token": nil, "updated_at": time.Now().UTC()})
	return res.RowsAffected, res.Error
}

func (r *predictionRepo) CountByStatus(ctx context.Context, tx *gorm.DB) (map[string]int64, error) {
	var rows []struct {
		Status string
		N      int64
	}
	if err := r.tx(tx).WithContext(ctx).
		Model(&domain.Prediction{}).
		Select("status, COUNT(*) AS n").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.Status] = row.N
	}
	return out, nil
}
