package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/compoundlab-backend/internal/data/repos"
	"github.com/yungbote/compoundlab-backend/internal/domain"
	"github.com/yungbote/compoundlab-backend/internal/domain/prediction"
	"github.com/yungbote/compoundlab-backend/internal/jobs/queue"
	"github.com/yungbote/compoundlab-backend/internal/models"
	"github.com/yungbote/compoundlab-backend/internal/observability"
	"github.com/yungbote/compoundlab-backend/internal/platform/logger"
)

type Config struct {
	Concurrency    int
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func (c Config) withDefaults() Config {
	if c.Concurrency < 1 {
		c.Concurrency = 4
	}
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 3
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 200 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 5 * time.Second
	}
	return c
}

type Deps struct {
	DB          *gorm.DB
	Log         *logger.Logger
	Queue       queue.Queue
	Predictions repos.PredictionRepo
	Compounds   repos.CompoundRepo
	Invoker     *models.Invoker
	Metrics     *observability.Metrics
}

// Pool runs a fixed number of workers over the prediction queue. Each item is
// claimed in the database before work starts, so duplicate queue deliveries
// and multiple instances never process the same prediction twice.
type Pool struct {
	deps Deps
	cfg  Config
	log  *logger.Logger
	now  func() time.Time
}

func NewPool(deps Deps, cfg Config) *Pool {
	if deps.Log == nil {
		deps.Log = logger.NewNop()
	}
	return &Pool{
		deps: deps,
		cfg:  cfg.withDefaults(),
		log:  deps.Log.With("component", "PredictionWorkerPool"),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Run blocks until ctx is cancelled and every worker has finished its current
// item.
func (p *Pool) Run(ctx context.Context) error {
	p.log.Info("Starting prediction worker pool", "concurrency", p.cfg.Concurrency, "max_attempts", p.cfg.MaxAttempts)
	var wg sync.WaitGroup
	for i := 0; i < p.cfg.Concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			p.runLoop(ctx, workerID)
		}(i + 1)
	}
	wg.Wait()
	return nil
}

func (p *Pool) runLoop(ctx context.Context, workerID int) {
	for {
		id, err := p.deps.Queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, queue.ErrClosed) {
				p.log.Info("Worker loop stopped", "worker_id", workerID)
				return
			}
			p.log.Warn("Dequeue failed", "worker_id", workerID, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		// Shutdown stops intake, not the item in hand.
		p.Process(context.WithoutCancel(ctx), workerID, id)
	}
}

// Process claims and executes a single prediction. It is a no-op when the
// prediction is terminal or another worker already holds it.
func (p *Pool) Process(ctx context.Context, workerID int, id uuid.UUID) {
	token := uuid.New()
	claimed, err := p.deps.Predictions.Claim(ctx, p.deps.DB, id, token, p.now())
	if err != nil {
		p.log.Warn("Claim failed", "worker_id", workerID, "prediction_id", id, "error", err)
		return
	}
	if !claimed {
		p.log.Debug("Prediction already claimed or terminal", "worker_id", workerID, "prediction_id", id)
		return
	}

	pred, err := p.deps.Predictions.GetByID(ctx, p.deps.DB, id)
	if err != nil || pred == nil {
		p.log.Error("Claimed prediction could not be loaded", "prediction_id", id, "error", err)
		return
	}

	defer func() {
		if r := recover(); r != nil {
			p.log.Error("Prediction worker panic",
				"worker_id", workerID,
				"prediction_id", id,
				"model_type", pred.ModelType,
				"panic", r,
			)
			p.finish(ctx, pred, token, repos.PredictionOutcome{
				Status:   prediction.StatusFailed,
				Error:    prediction.ReasonInternal,
				Details:  errorDetails(fmt.Errorf("panic: %v", r)),
				Attempts: pred.Attempts,
			})
		}
	}()

	out := p.execute(ctx, pred, token)
	p.finish(ctx, pred, token, out)
}

func (p *Pool) execute(ctx context.Context, pred *domain.Prediction, token uuid.UUID) repos.PredictionOutcome {
	c, err := p.deps.Compounds.GetByID(ctx, p.deps.DB, pred.CompoundID)
	if err != nil || c == nil {
		if err == nil {
			err = fmt.Errorf("compound %s not found", pred.CompoundID)
		}
		return repos.PredictionOutcome{
			Status:   prediction.StatusFailed,
			Error:    prediction.ReasonInternal,
			Details:  errorDetails(err),
			Attempts: pred.Attempts,
		}
	}
	snap := models.Snapshot{
		CompoundID:      c.ID,
		Name:            c.Name,
		Smiles:          c.Smiles,
		MolecularWeight: c.MolecularWeight,
		Properties:      c.Properties,
	}

	attempts := pred.Attempts
	op := func() (models.Result, error) {
		attempts++
		if err := p.deps.Predictions.RecordAttempt(ctx, p.deps.DB, pred.ID, token, attempts); err != nil {
			p.log.Warn("RecordAttempt failed", "prediction_id", pred.ID, "error", err)
		}
		res, err := p.deps.Invoker.Invoke(ctx, pred.ModelType, pred.ModelName, snap)
		if err != nil && !models.Retryable(err) {
			return res, backoff.Permanent(err)
		}
		return res, err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.cfg.InitialBackoff
	b.MaxInterval = p.cfg.MaxBackoff
	res, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(p.cfg.MaxAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			p.log.Warn("Model call failed; retrying",
				"prediction_id", pred.ID,
				"model_type", pred.ModelType,
				"attempt", attempts,
				"next_in", next.String(),
				"error", err,
			)
		}),
	)
	if err != nil {
		return repos.PredictionOutcome{
			Status:   prediction.StatusFailed,
			Error:    failureReason(err),
			Details:  errorDetails(err),
			Attempts: attempts,
		}
	}

	value, confidence := res.Value, res.Confidence
	details, _ := json.Marshal(res.Details)
	return repos.PredictionOutcome{
		Status:     prediction.StatusDone,
		Value:      &value,
		Confidence: &confidence,
		Details:    details,
		ModelName:  res.ModelName,
		Attempts:   attempts,
	}
}

func (p *Pool) finish(ctx context.Context, pred *domain.Prediction, token uuid.UUID, out repos.PredictionOutcome) {
	ok, err := p.deps.Predictions.Finish(ctx, p.deps.DB, pred.ID, token, out, p.now())
	if err != nil {
		p.log.Error("Finish failed", "prediction_id", pred.ID, "status", out.Status, "error", err)
		return
	}
	if !ok {
		// Cancelled, or the sweeper released the claim and another worker owns it.
		p.log.Warn("Claim lost before finish; outcome discarded", "prediction_id", pred.ID, "status", out.Status)
		return
	}
	p.deps.Metrics.ObservePrediction(pred.ModelType, out.Status, out.Error, out.Attempts)
	if out.Status == prediction.StatusFailed {
		p.log.Info("Prediction failed", "prediction_id", pred.ID, "reason", out.Error, "attempts", out.Attempts)
	}
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, models.ErrUnknownModel):
		return prediction.ReasonInvalidInput
	case errors.Is(err, context.Canceled):
		return prediction.ReasonCancelled
	}
	switch models.KindOf(err) {
	case models.KindInvalidInput:
		return prediction.ReasonInvalidInput
	case models.KindTimeout:
		return prediction.ReasonTimeout
	default:
		return prediction.ReasonUnavailable
	}
}

func errorDetails(err error) []byte {
	raw, _ := json.Marshal(map[string]any{"error": err.Error()})
	return raw
}
