package aggregates

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"gorm.io/gorm"

	domainagg "github.com/yungbote/compoundlab-backend/internal/domain/aggregates"
	"github.com/yungbote/compoundlab-backend/internal/platform/dbctx"
	"github.com/yungbote/compoundlab-backend/internal/platform/logger"
)

const (
	defaultWriteAttempts = 3
	writeBackoffInitial  = 10 * time.Millisecond
	writeBackoffMax      = 200 * time.Millisecond
)

// TxRunner opens the transaction a store write runs in.
type TxRunner interface {
	InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error
}

type gormTxRunner struct {
	db *gorm.DB
}

func NewGormTxRunner(db *gorm.DB) TxRunner {
	return &gormTxRunner{db: db}
}

func (r *gormTxRunner) InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error {
	if r == nil || r.db == nil {
		return domainagg.NewError(domainagg.CodeInternal, "store.tx", "no database configured", nil)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(dbctx.Context{Ctx: ctx, Tx: tx})
	})
}

// BaseDeps is shared by the compound store, the prediction ledger and the
// experiment lifecycle. WriteAttempts bounds how often a write that failed on
// a serialization failure, deadlock or busy database is re-run.
type BaseDeps struct {
	DB            *gorm.DB
	Log           *logger.Logger
	Runner        TxRunner
	Hooks         Hooks
	CASGuard      CASGuard
	WriteAttempts int
}

func (d BaseDeps) withDefaults() BaseDeps {
	if d.Runner == nil {
		d.Runner = NewGormTxRunner(d.DB)
	}
	if d.Hooks == nil {
		d.Hooks = noopHooks{}
	}
	if d.CASGuard.db == nil {
		d.CASGuard = NewCASGuard(d.DB)
	}
	if d.WriteAttempts < 1 {
		d.WriteAttempts = defaultWriteAttempts
	}
	return d
}

// executeWrite runs fn in a transaction and maps its failure onto an aggregate
// code. Each attempt gets a fresh transaction, so fn must only assign captured
// results, never accumulate them. Version conflicts are returned, not retried:
// the caller has to re-read before writing again.
func executeWrite(ctx context.Context, deps BaseDeps, op string, fn func(dbc dbctx.Context) error) error {
	deps = deps.withDefaults()
	if op = strings.TrimSpace(op); op == "" {
		op = "store.write"
	}
	start := time.Now()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = writeBackoffInitial
	b.MaxInterval = writeBackoffMax
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := MapError(op, deps.Runner.InTx(ctx, fn))
		if err != nil && !rerunnable(ctx, err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(deps.WriteAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			deps.Hooks.IncRetry(op)
			if deps.Log != nil {
				deps.Log.Debug("Store write retrying", "op", op, "next_in", next.String(), "error", err)
			}
		}),
	)
	// Retry hands back the wrapper when the last allowed attempt was permanent.
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Unwrap()
	}
	err = MapError(op, err)

	if domainagg.IsCode(err, domainagg.CodeConflict) {
		deps.Hooks.IncConflict(op)
	}
	deps.Hooks.ObserveOperation(op, aggregateErrorStatus(err), time.Since(start))
	return err
}

// rerunnable reports transient storage failures. Cancellation and deadlines
// are mapped to retryable for callers but never re-run here.
func rerunnable(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return domainagg.IsCode(err, domainagg.CodeRetryable)
}

func aggregateErrorStatus(err error) string {
	if err == nil {
		return "ok"
	}
	if code := domainagg.CodeOf(MapError("store.status", err)); code != "" {
		return string(code)
	}
	return string(domainagg.CodeInternal)
}
