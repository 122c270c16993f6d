package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/compoundlab-backend/internal/clients/mlflow"
	"github.com/yungbote/compoundlab-backend/internal/data/repos"
	"github.com/yungbote/compoundlab-backend/internal/domain"
	domainagg "github.com/yungbote/compoundlab-backend/internal/domain/aggregates"
	"github.com/yungbote/compoundlab-backend/internal/domain/experiment"
	"github.com/yungbote/compoundlab-backend/internal/domain/prediction"
	"github.com/yungbote/compoundlab-backend/internal/observability"
	"github.com/yungbote/compoundlab-backend/internal/platform/apierr"
	"github.com/yungbote/compoundlab-backend/internal/platform/ctxutil"
	"github.com/yungbote/compoundlab-backend/internal/platform/logger"
	"go.opentelemetry.io/otel/attribute"
)

const (
	// Predictions considered when summarizing an experiment for tracking.
	trackingPredictionLimit = 1000
	// Predictions embedded in the run's summary tag.
	trackingSummaryRows = 50
)

type CreateExperimentInput struct {
	Name        string
	Description string
	ModelType   string
	ModelName   string
	Parameters  datatypes.JSON
}

type TrackingResult struct {
	Experiment    *domain.Experiment `json:"experiment"`
	RunID         string             `json:"run_id"`
	AlreadyLogged bool               `json:"already_logged"`
}

type ExperimentService interface {
	Create(ctx context.Context, in CreateExperimentInput) (*domain.Experiment, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.Experiment, error)
	List(ctx context.Context, filter domain.ExperimentFilter) ([]*domain.Experiment, error)
	Update(ctx context.Context, id uuid.UUID, patch domainagg.ExperimentPatch) (*domain.Experiment, error)
	// LogToTracking pushes the experiment to the tracking service at most once.
	LogToTracking(ctx context.Context, id uuid.UUID) (*TrackingResult, error)
}

type experimentService struct {
	db             *gorm.DB
	log            *logger.Logger
	lifecycle      domainagg.ExperimentLifecycle
	experimentRepo repos.ExperimentRepo
	predictionRepo repos.PredictionRepo
	tracking       mlflow.Client
	trackingName   string
	flight         singleflight.Group
}

func NewExperimentService(
	db *gorm.DB,
	baseLog *logger.Logger,
	lifecycle domainagg.ExperimentLifecycle,
	experimentRepo repos.ExperimentRepo,
	predictionRepo repos.PredictionRepo,
	tracking mlflow.Client,
	trackingExperimentName string,
) ExperimentService {
	if strings.TrimSpace(trackingExperimentName) == "" {
		trackingExperimentName = "compoundlab"
	}
	return &experimentService{
		db:             db,
		log:            baseLog.With("service", "ExperimentService"),
		lifecycle:      lifecycle,
		experimentRepo: experimentRepo,
		predictionRepo: predictionRepo,
		tracking:       tracking,
		trackingName:   trackingExperimentName,
	}
}

func (es *experimentService) Create(ctx context.Context, in CreateExperimentInput) (*domain.Experiment, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apierr.Validation("name is required")
	}
	modelType := prediction.NormalizeModelType(in.ModelType)
	if modelType == "" {
		return nil, apierr.Validation("model_type is required")
	}
	if len(in.Parameters) > 0 {
		var obj map[string]any
		if err := json.Unmarshal(in.Parameters, &obj); err != nil {
			return nil, apierr.Validation("parameters must be a JSON object")
		}
	}
	e := &domain.Experiment{
		ID:          uuid.New(),
		Name:        name,
		Description: in.Description,
		ModelType:   modelType,
		ModelName:   strings.TrimSpace(in.ModelName),
		Status:      experiment.StatusCreated,
		Parameters:  in.Parameters,
		UserID:      ctxutil.UserIDPtr(ctx),
	}
	if err := es.experimentRepo.Create(ctx, nil, e); err != nil {
		return nil, err
	}
	es.log.Info("Experiment created", append(ctxutil.LogFields(ctx), "experiment_id", e.ID)...)
	return e, nil
}

func (es *experimentService) Get(ctx context.Context, id uuid.UUID) (*domain.Experiment, error) {
	e, err := es.experimentRepo.GetByID(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if e == nil || !visibleTo(ctx, e) {
		return nil, apierr.NotFound("experiment %s not found", id)
	}
	return e, nil
}

// List shows callers their own experiments; admins and callers without a
// request identity (CLI) see all of them.
func (es *experimentService) List(ctx context.Context, filter domain.ExperimentFilter) ([]*domain.Experiment, error) {
	filter.Skip, filter.Limit = clampPage(filter.Skip, filter.Limit)
	filter.ModelType = prediction.NormalizeModelType(filter.ModelType)
	if filter.Status != "" && !experiment.ValidStatus(filter.Status) {
		return nil, apierr.Validation("unknown status %q", filter.Status)
	}
	filter.UserID = ownerScope(ctx)
	return es.experimentRepo.List(ctx, nil, filter)
}

func (es *experimentService) Update(ctx context.Context, id uuid.UUID, patch domainagg.ExperimentPatch) (*domain.Experiment, error) {
	if _, err := es.Get(ctx, id); err != nil {
		return nil, err
	}
	e, err := es.lifecycle.Update(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	es.log.Info("Experiment updated", append(ctxutil.LogFields(ctx), "experiment_id", id, "status", e.Status)...)
	return e, nil
}

func (es *experimentService) LogToTracking(ctx context.Context, id uuid.UUID) (*TrackingResult, error) {
	if _, err := es.Get(ctx, id); err != nil {
		return nil, err
	}
	v, err, _ := es.flight.Do(id.String(), func() (interface{}, error) {
		return es.logToTracking(context.WithoutCancel(ctx), id)
	})
	if err != nil {
		return nil, err
	}
	res := *v.(*TrackingResult)
	return &res, nil
}

func (es *experimentService) logToTracking(ctx context.Context, id uuid.UUID) (_ *TrackingResult, err error) {
	ctx, span := observability.StartSpan(ctx, "experiment.log_to_tracking", attribute.String("experiment.id", id.String()))
	defer func() { observability.EndSpan(span, err) }()

	e, err := es.experimentRepo.GetByID(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, apierr.NotFound("experiment %s not found", id)
	}
	if e.TrackingRunID != nil && *e.TrackingRunID != "" {
		return &TrackingResult{Experiment: e, RunID: *e.TrackingRunID, AlreadyLogged: true}, nil
	}
	if !experiment.Loggable(e.Status) {
		return nil, apierr.Conflict("experiment in status %s cannot be logged", e.Status)
	}
	if es.tracking == nil {
		return nil, apierr.External("mlflow", fmt.Errorf("tracking service not configured"))
	}

	preds, err := es.trackedPredictions(ctx, e)
	if err != nil {
		return nil, err
	}
	req, err := buildRunRequest(es.trackingName, e, preds)
	if err != nil {
		return nil, err
	}
	runID, err := es.tracking.LogRun(ctx, req)
	if err != nil {
		es.log.Warn("Tracking log failed", "experiment_id", id, "error", err)
		return nil, apierr.External("mlflow", err)
	}

	rec, err := es.lifecycle.RecordTrackingRun(ctx, id, runID)
	if err != nil {
		// The run exists remotely but is not linked; the next call creates a new one.
		es.log.Error("Persisting tracking run failed", "experiment_id", id, "run_id", runID, "error", err)
		return nil, err
	}
	out := &TrackingResult{Experiment: rec.Experiment, AlreadyLogged: rec.AlreadyLogged}
	if rec.Experiment != nil && rec.Experiment.TrackingRunID != nil {
		out.RunID = *rec.Experiment.TrackingRunID
	}
	if rec.AlreadyLogged {
		es.log.Warn("Concurrent tracking run lost the race", "experiment_id", id, "orphan_run_id", runID, "run_id", out.RunID)
	} else {
		es.log.Info("Experiment logged to tracking", "experiment_id", id, "run_id", out.RunID, "predictions", len(preds))
	}
	return out, nil
}

// trackedPredictions returns predictions linked to the experiment, falling back
// to predictions of the same model when none are linked.
func (es *experimentService) trackedPredictions(ctx context.Context, e *domain.Experiment) ([]*domain.Prediction, error) {
	linked, err := es.predictionRepo.List(ctx, nil, domain.PredictionFilter{ExperimentID: &e.ID, Limit: trackingPredictionLimit})
	if err != nil {
		return nil, err
	}
	if len(linked) > 0 {
		return linked, nil
	}
	return es.predictionRepo.ListForModel(ctx, nil, e.ModelType, e.ModelName, e.UserID, trackingPredictionLimit)
}

type predictionSummary struct {
	ID         string   `json:"id"`
	CompoundID string   `json:"compound_id"`
	Status     string   `json:"status"`
	Value      *float64 `json:"value"`
	Confidence *float64 `json:"confidence"`
}

func buildRunRequest(trackingName string, e *domain.Experiment, preds []*domain.Prediction) (mlflow.RunRequest, error) {
	params := map[string]string{
		"experiment_id": e.ID.String(),
		"model_type":    e.ModelType,
	}
	if e.ModelName != "" {
		params["model_name"] = e.ModelName
	}
	if len(e.Parameters) > 0 {
		var raw map[string]any
		if err := json.Unmarshal(e.Parameters, &raw); err != nil {
			return mlflow.RunRequest{}, apierr.Validation("stored parameters are not a JSON object")
		}
		for k, v := range raw {
			params[k] = stringify(v)
		}
	}

	metrics := map[string]float64{}
	if len(e.Metrics) > 0 {
		var raw map[string]any
		if err := json.Unmarshal(e.Metrics, &raw); err != nil {
			return mlflow.RunRequest{}, apierr.Validation("stored metrics are not a JSON object")
		}
		for k, v := range raw {
			if f, ok := v.(float64); ok {
				metrics[k] = f
			}
		}
	}
	counts := prediction.CountStatuses(preds)
	metrics["prediction_count"] = float64(counts.Total)
	metrics["prediction_done"] = float64(counts.Done)
	metrics["prediction_failed"] = float64(counts.Failed)
	var sumValue, sumConf float64
	var nValue, nConf int
	for _, p := range preds {
		if p.Value != nil {
			sumValue += *p.Value
			nValue++
		}
		if p.Confidence != nil {
			sumConf += *p.Confidence
			nConf++
		}
	}
	if nValue > 0 {
		metrics["prediction_value_mean"] = sumValue / float64(nValue)
	}
	if nConf > 0 {
		metrics["prediction_confidence_mean"] = sumConf / float64(nConf)
	}

	rows := make([]predictionSummary, 0, min(len(preds), trackingSummaryRows))
	for _, p := range preds {
		if len(rows) == trackingSummaryRows {
			break
		}
		rows = append(rows, predictionSummary{
			ID:         p.ID.String(),
			CompoundID: p.CompoundID.String(),
			Status:     p.Status,
			Value:      p.Value,
			Confidence: p.Confidence,
		})
	}
	summary, err := json.Marshal(rows)
	if err != nil {
		return mlflow.RunRequest{}, err
	}

	return mlflow.RunRequest{
		ExperimentName: trackingName,
		RunName:        e.Name,
		Params:         params,
		Metrics:        metrics,
		Tags: map[string]string{
			"compoundlab.experiment_id": e.ID.String(),
			"compoundlab.status":        e.Status,
			"compoundlab.predictions":   string(summary),
		},
	}, nil
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	case map[string]any, []any:
		b, _ := json.Marshal(t)
		return string(b)
	default:
		return fmt.Sprint(t)
	}
}
