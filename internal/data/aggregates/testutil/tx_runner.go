package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/yungbote/compoundlab-backend/internal/data/aggregates"
	"github.com/yungbote/compoundlab-backend/internal/platform/dbctx"
)

// errInjectedCommit aborts the inner transaction so its writes roll back.
var errInjectedCommit = errors.New("injected commit failure")

// FaultyTxRunner wraps a real runner and injects begin or commit failures.
// A commit failure runs the body, then rolls the inner transaction back.
type FaultyTxRunner struct {
	Inner aggregates.TxRunner

	FailBegin  error
	FailCommit error

	mu          sync.Mutex
	BeginCalls  int
	CommitCalls int
}

var _ aggregates.TxRunner = (*FaultyTxRunner)(nil)

func (r *FaultyTxRunner) InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error {
	r.mu.Lock()
	r.BeginCalls++
	failBegin, failCommit := r.FailBegin, r.FailCommit
	r.mu.Unlock()

	if failBegin != nil {
		return failBegin
	}
	err := r.Inner.InTx(ctx, func(dbc dbctx.Context) error {
		if err := fn(dbc); err != nil {
			return err
		}
		if failCommit != nil {
			return errInjectedCommit
		}
		return nil
	})
	if errors.Is(err, errInjectedCommit) {
		return failCommit
	}
	if err == nil {
		r.mu.Lock()
		r.CommitCalls++
		r.mu.Unlock()
	}
	return err
}
