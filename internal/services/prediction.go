package services

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/compoundlab-backend/internal/data/repos"
	"github.com/yungbote/compoundlab-backend/internal/domain"
	domainagg "github.com/yungbote/compoundlab-backend/internal/domain/aggregates"
	"github.com/yungbote/compoundlab-backend/internal/domain/prediction"
	"github.com/yungbote/compoundlab-backend/internal/jobs/queue"
	"github.com/yungbote/compoundlab-backend/internal/models"
	"github.com/yungbote/compoundlab-backend/internal/platform/apierr"
	"github.com/yungbote/compoundlab-backend/internal/platform/ctxutil"
	"github.com/yungbote/compoundlab-backend/internal/platform/logger"
)

const maxBatchSize = 1000

type SubmitRequest struct {
	CompoundIDs  []uuid.UUID
	ModelType    string
	ModelName    string
	ExperimentID *uuid.UUID
}

type PredictionService interface {
	SubmitSingle(ctx context.Context, req SubmitRequest) (*domain.Prediction, error)
	SubmitBatch(ctx context.Context, req SubmitRequest) (*domain.PredictionBatch, error)
	GetBatch(ctx context.Context, id uuid.UUID) (*domain.PredictionBatch, error)
	CancelBatch(ctx context.Context, id uuid.UUID) (*domain.PredictionBatch, int64, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.Prediction, error)
	List(ctx context.Context, filter domain.PredictionFilter) ([]*domain.Prediction, error)
	ListByCompound(ctx context.Context, compoundID uuid.UUID, skip, limit int) ([]*domain.Prediction, error)
	Models() []models.ModelInfo
}

type predictionService struct {
	db             *gorm.DB
	log            *logger.Logger
	ledger         domainagg.PredictionLedger
	predictionRepo repos.PredictionRepo
	batchRepo      repos.PredictionBatchRepo
	compoundRepo   repos.CompoundRepo
	experimentRepo repos.ExperimentRepo
	registry       *models.Registry
	queue          queue.Queue
}

func NewPredictionService(
	db *gorm.DB,
	baseLog *logger.Logger,
	ledger domainagg.PredictionLedger,
	predictionRepo repos.PredictionRepo,
	batchRepo repos.PredictionBatchRepo,
	compoundRepo repos.CompoundRepo,
	experimentRepo repos.ExperimentRepo,
	registry *models.Registry,
	q queue.Queue,
) PredictionService {
	return &predictionService{
		db:             db,
		log:            baseLog.With("service", "PredictionService"),
		ledger:         ledger,
		predictionRepo: predictionRepo,
		batchRepo:      batchRepo,
		compoundRepo:   compoundRepo,
		experimentRepo: experimentRepo,
		registry:       registry,
		queue:          q,
	}
}

func (ps *predictionService) SubmitSingle(ctx context.Context, req SubmitRequest) (*domain.Prediction, error) {
	if len(req.CompoundIDs) != 1 {
		return nil, apierr.Validation("exactly one compound_id is required")
	}
	res, err := ps.submit(ctx, req, false)
	if err != nil {
		return nil, err
	}
	return res.Predictions[0], nil
}

func (ps *predictionService) SubmitBatch(ctx context.Context, req SubmitRequest) (*domain.PredictionBatch, error) {
	if len(req.CompoundIDs) == 0 {
		return nil, apierr.Validation("compound_ids must not be empty")
	}
	if len(req.CompoundIDs) > maxBatchSize {
		return nil, apierr.Validation("batch exceeds %d compounds", maxBatchSize)
	}
	res, err := ps.submit(ctx, req, true)
	if err != nil {
		return nil, err
	}
	return res.Batch, nil
}

func (ps *predictionService) submit(ctx context.Context, req SubmitRequest, asBatch bool) (domainagg.SubmitPredictionsResult, error) {
	modelType := prediction.NormalizeModelType(req.ModelType)
	modelName := strings.TrimSpace(req.ModelName)
	if err := ps.checkModel(modelType, modelName); err != nil {
		return domainagg.SubmitPredictionsResult{}, err
	}
	if req.ExperimentID != nil {
		exp, err := ps.experimentRepo.GetByID(ctx, nil, *req.ExperimentID)
		if err != nil {
			return domainagg.SubmitPredictionsResult{}, err
		}
		if exp == nil || !visibleTo(ctx, exp) {
			return domainagg.SubmitPredictionsResult{}, apierr.NotFound("experiment %s not found", *req.ExperimentID)
		}
	}

	res, err := ps.ledger.Submit(ctx, domainagg.SubmitPredictionsInput{
		CompoundIDs:  req.CompoundIDs,
		ModelType:    modelType,
		ModelName:    modelName,
		ExperimentID: req.ExperimentID,
		CreatedBy:    ctxutil.UserIDPtr(ctx),
		AsBatch:      asBatch,
	})
	if err != nil {
		return res, err
	}

	// Rows are committed; a dropped enqueue is picked up by the sweeper.
	dropped := 0
	for _, p := range res.Predictions {
		if err := ps.queue.Enqueue(ctx, p.ID); err != nil {
			if !errors.Is(err, queue.ErrFull) {
				ps.log.Warn("Enqueue failed", "prediction_id", p.ID, "error", err)
			}
			dropped++
		}
	}
	fields := append(ctxutil.LogFields(ctx), "model_type", modelType, "count", len(res.Predictions), "dropped", dropped)
	if res.Batch != nil {
		fields = append(fields, "batch_id", res.Batch.ID)
	}
	ps.log.Info("Predictions submitted", fields...)
	return res, nil
}

func (ps *predictionService) checkModel(modelType, modelName string) error {
	if modelType == "" {
		return apierr.Validation("model_type is required")
	}
	if !ps.registry.Has(modelType) {
		return apierr.Validation("unknown model type %q (available: %s)", modelType, strings.Join(ps.registry.Types(), ", "))
	}
	if modelName != "" {
		if _, ok := ps.registry.Resolve(modelType, modelName); !ok {
			return apierr.Validation("unknown model %q for type %q", modelName, modelType)
		}
	}
	return nil
}

func (ps *predictionService) GetBatch(ctx context.Context, id uuid.UUID) (*domain.PredictionBatch, error) {
	b, err := ps.batchRepo.GetByID(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if b == nil || !ownedBy(ctx, b.CreatedBy) {
		return nil, apierr.NotFound("batch %s not found", id)
	}
	members, err := ps.predictionRepo.ListByBatch(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	b.Predictions = members
	b.Status = prediction.AggregateStatus(members)
	return b, nil
}

func (ps *predictionService) CancelBatch(ctx context.Context, id uuid.UUID) (*domain.PredictionBatch, int64, error) {
	if _, err := ps.GetBatch(ctx, id); err != nil {
		return nil, 0, err
	}
	res, err := ps.ledger.CancelBatch(ctx, id)
	if err != nil {
		return nil, 0, err
	}
	ps.log.Info("Batch cancelled", append(ctxutil.LogFields(ctx), "batch_id", id, "cancelled", res.Cancelled)...)
	b, err := ps.GetBatch(ctx, id)
	if err != nil {
		return nil, 0, err
	}
	return b, res.Cancelled, nil
}

func (ps *predictionService) Get(ctx context.Context, id uuid.UUID) (*domain.Prediction, error) {
	p, err := ps.predictionRepo.GetByID(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if p == nil || !ownedBy(ctx, p.CreatedBy) {
		return nil, apierr.NotFound("prediction %s not found", id)
	}
	return p, nil
}

func (ps *predictionService) List(ctx context.Context, filter domain.PredictionFilter) ([]*domain.Prediction, error) {
	filter.Skip, filter.Limit = clampPage(filter.Skip, filter.Limit)
	filter.ModelType = prediction.NormalizeModelType(filter.ModelType)
	switch filter.Status {
	case "", prediction.StatusPending, prediction.StatusDone, prediction.StatusFailed:
	default:
		return nil, apierr.Validation("unknown status %q", filter.Status)
	}
	filter.CreatedBy = ownerScope(ctx)
	return ps.predictionRepo.List(ctx, nil, filter)
}

// ListByCompound works for tombstoned compounds too; history stays readable.
func (ps *predictionService) ListByCompound(ctx context.Context, compoundID uuid.UUID, skip, limit int) ([]*domain.Prediction, error) {
	c, err := ps.compoundRepo.GetByID(ctx, nil, compoundID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, apierr.NotFound("compound %s not found", compoundID)
	}
	return ps.List(ctx, domain.PredictionFilter{CompoundID: &compoundID, Skip: skip, Limit: limit})
}

func (ps *predictionService) Models() []models.ModelInfo {
	return ps.registry.Describe()
}
