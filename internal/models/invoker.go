package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/yungbote/compoundlab-backend/internal/observability"
	"github.com/yungbote/compoundlab-backend/internal/platform/logger"
)

const DefaultTimeout = 30 * time.Second

// ErrUnknownModel is returned when no capability matches (type, name).
var ErrUnknownModel = errors.New("unknown model")

type Invoker struct {
	registry *Registry
	timeout  time.Duration
	metrics  *observability.Metrics
	log      *logger.Logger
}

func NewInvoker(registry *Registry, timeout time.Duration, metrics *observability.Metrics, baseLog *logger.Logger) *Invoker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if baseLog == nil {
		baseLog = logger.NewNop()
	}
	return &Invoker{
		registry: registry,
		timeout:  timeout,
		metrics:  metrics,
		log:      baseLog.With("component", "ModelInvoker"),
	}
}

func (inv *Invoker) Registry() *Registry { return inv.registry }

type callResult struct {
	res Result
	err error
}

// Invoke runs one prediction under the per-call timeout. A capability that
// ignores its context is abandoned when the deadline passes. Cancellation of
// the parent context is returned as-is so callers can tell shutdown apart
// from a model timeout.
func (inv *Invoker) Invoke(ctx context.Context, modelType, modelName string, in Snapshot) (Result, error) {
	c, ok := inv.registry.Resolve(modelType, modelName)
	if !ok {
		return Result{}, fmt.Errorf("%w: model_type=%s name=%s", ErrUnknownModel, modelType, modelName)
	}

	ctx, span := observability.StartSpan(ctx, "models.invoke",
		attribute.String("model.type", c.ModelType()),
		attribute.String("model.name", c.Name()),
	)
	start := time.Now()

	callCtx, cancel := context.WithTimeout(ctx, inv.timeout)
	defer cancel()

	done := make(chan callResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				inv.log.Error("Model capability panic", "model_type", c.ModelType(), "model_name", c.Name(), "panic", r)
				done <- callResult{err: Unavailable(fmt.Errorf("capability panic: %v", r))}
			}
		}()
		res, err := c.Predict(callCtx, in)
		done <- callResult{res: res, err: err}
	}()

	var out callResult
	select {
	case out = <-done:
	case <-callCtx.Done():
		out = callResult{err: callCtx.Err()}
	}

	err := inv.classify(ctx, callCtx, out.err)
	outcome := "ok"
	if err != nil {
		outcome = string(KindOf(err))
		if ctx.Err() != nil {
			outcome = "cancelled"
		}
	}
	inv.metrics.ObserveModelCall(c.ModelType(), c.Name(), outcome, time.Since(start))
	observability.EndSpan(span, err)
	if err != nil {
		return Result{}, err
	}
	if out.res.ModelName == "" {
		out.res.ModelName = c.Name()
	}
	return out.res, nil
}

func (inv *Invoker) classify(parent, call context.Context, err error) error {
	if err == nil {
		return nil
	}
	if perr := parent.Err(); perr != nil {
		return perr
	}
	var f *Failure
	if errors.As(err, &f) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(call.Err(), context.DeadlineExceeded) {
		return Timeout(err)
	}
	return Unavailable(err)
}
