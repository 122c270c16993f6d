package testutil

import (
	"context"
	"errors"
	"testing"

	"github.com/yungbote/compoundlab-backend/internal/platform/dbctx"
)

type passthroughRunner struct{ calls int }

func (p *passthroughRunner) InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error {
	p.calls++
	return fn(dbctx.New(ctx))
}

func TestFaultyTxRunnerCommitsOnSuccess(t *testing.T) {
	inner := &passthroughRunner{}
	r := &FaultyTxRunner{Inner: inner}
	if err := r.InTx(context.Background(), func(_ dbctx.Context) error { return nil }); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if r.BeginCalls != 1 || r.CommitCalls != 1 || inner.calls != 1 {
		t.Fatalf("counters begin=%d commit=%d inner=%d", r.BeginCalls, r.CommitCalls, inner.calls)
	}
}

func TestFaultyTxRunnerFailBeginSkipsBody(t *testing.T) {
	beginErr := errors.New("connection refused")
	inner := &passthroughRunner{}
	r := &FaultyTxRunner{Inner: inner, FailBegin: beginErr}
	called := false
	err := r.InTx(context.Background(), func(_ dbctx.Context) error {
		called = true
		return nil
	})
	if !errors.Is(err, beginErr) || called || inner.calls != 0 {
		t.Fatalf("err=%v called=%v inner=%d", err, called, inner.calls)
	}
}

func TestFaultyTxRunnerFailCommitSurfacesInjectedError(t *testing.T) {
	commitErr := errors.New("commit failed")
	r := &FaultyTxRunner{Inner: &passthroughRunner{}, FailCommit: commitErr}
	called := false
	err := r.InTx(context.Background(), func(_ dbctx.Context) error {
		called = true
		return nil
	})
	if !errors.Is(err, commitErr) || !called {
		t.Fatalf("err=%v called=%v", err, called)
	}
	if r.CommitCalls != 0 {
		t.Fatalf("commit must not be counted: %d", r.CommitCalls)
	}
}

func TestFaultyTxRunnerBodyErrorPassesThrough(t *testing.T) {
	bodyErr := errors.New("boom")
	r := &FaultyTxRunner{Inner: &passthroughRunner{}, FailCommit: errors.New("unused")}
	if err := r.InTx(context.Background(), func(_ dbctx.Context) error { return bodyErr }); !errors.Is(err, bodyErr) {
		t.Fatalf("expected body err, got %v", err)
	}
}
