package models

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newInvoker(t *testing.T, timeout time.Duration, caps ...Capability) *Invoker {
	t.Helper()
	reg := NewRegistry()
	for _, c := range caps {
		require.NoError(t, reg.Register(c))
	}
	return NewInvoker(reg, timeout, nil, nil)
}

func TestInvokeSuccessFillsModelName(t *testing.T) {
	inv := newInvoker(t, time.Second, &stubCapability{modelType: "solubility", name: "stub"})
	res, err := inv.Invoke(context.Background(), "solubility", "", Snapshot{Smiles: "CCO"})
	require.NoError(t, err)
	assert.Equal(t, "stub", res.ModelName)
	assert.Equal(t, 1.0, res.Value)
}

func TestInvokeUnknownModel(t *testing.T) {
	inv := newInvoker(t, time.Second)
	_, err := inv.Invoke(context.Background(), "solubility", "", Snapshot{Smiles: "CCO"})
	assert.ErrorIs(t, err, ErrUnknownModel)
}

func TestInvokeTimeout(t *testing.T) {
	slow := &stubCapability{modelType: "toxicity", name: "slow", predict: func(ctx context.Context, in Snapshot) (Result, error) {
		<-ctx.Done()
		return Result{}, ctx.Err()
	}}
	inv := newInvoker(t, 20*time.Millisecond, slow)
	_, err := inv.Invoke(context.Background(), "toxicity", "slow", Snapshot{Smiles: "CCO"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.True(t, Retryable(err))
}

func TestInvokeAbandonsCapabilityIgnoringContext(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	stuck := &stubCapability{modelType: "toxicity", name: "stuck", predict: func(ctx context.Context, in Snapshot) (Result, error) {
		<-release
		return Result{Value: 1}, nil
	}}
	inv := newInvoker(t, 20*time.Millisecond, stuck)
	start := time.Now()
	_, err := inv.Invoke(context.Background(), "toxicity", "stuck", Snapshot{Smiles: "CCO"})
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), time.Second)
}

func TestInvokeRecoversPanic(t *testing.T) {
	boom := &stubCapability{modelType: "solubility", name: "boom", predict: func(ctx context.Context, in Snapshot) (Result, error) {
		panic("kaboom")
	}}
	inv := newInvoker(t, time.Second, boom)
	_, err := inv.Invoke(context.Background(), "solubility", "boom", Snapshot{Smiles: "CCO"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestInvokeKeepsTypedFailures(t *testing.T) {
	bad := &stubCapability{modelType: "solubility", name: "bad", predict: func(ctx context.Context, in Snapshot) (Result, error) {
		return Result{}, InvalidInput("nope")
	}}
	plain := &stubCapability{modelType: "toxicity", name: "plain", predict: func(ctx context.Context, in Snapshot) (Result, error) {
		return Result{}, errors.New("connection reset")
	}}
	inv := newInvoker(t, time.Second, bad, plain)

	_, err := inv.Invoke(context.Background(), "solubility", "bad", Snapshot{})
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.False(t, Retryable(err))

	_, err = inv.Invoke(context.Background(), "toxicity", "plain", Snapshot{})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestInvokeParentCancellationIsNotTimeout(t *testing.T) {
	slow := &stubCapability{modelType: "toxicity", name: "slow", predict: func(ctx context.Context, in Snapshot) (Result, error) {
		<-ctx.Done()
		return Result{}, ctx.Err()
	}}
	inv := newInvoker(t, time.Minute, slow)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := inv.Invoke(ctx, "toxicity", "slow", Snapshot{})
	assert.ErrorIs(t, err, context.Canceled)
}
