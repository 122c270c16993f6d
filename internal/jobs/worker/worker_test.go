package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"gorm.io/gorm"

	"github.com/yungbote/compoundlab-backend/internal/data/repos"
	"github.com/yungbote/compoundlab-backend/internal/data/repos/testutil"
	"github.com/yungbote/compoundlab-backend/internal/domain"
	"github.com/yungbote/compoundlab-backend/internal/domain/prediction"
	"github.com/yungbote/compoundlab-backend/internal/jobs/queue"
	"github.com/yungbote/compoundlab-backend/internal/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"))
}

type fakeModel struct {
	calls   atomic.Int32
	predict func(call int32) (models.Result, error)
}

func (f *fakeModel) ModelType() string { return prediction.ModelSolubility }
func (f *fakeModel) Name() string      { return "fake" }
func (f *fakeModel) Predict(ctx context.Context, in models.Snapshot) (models.Result, error) {
	n := f.calls.Add(1)
	if f.predict == nil {
		return models.Result{Value: 1.5, Confidence: 0.9, Details: map[string]any{"smiles": in.Smiles}}, nil
	}
	return f.predict(n)
}

type fixture struct {
	db    *gorm.DB
	preds repos.PredictionRepo
	queue queue.Queue
	pool  *Pool
	model *fakeModel
}

func newFixture(t *testing.T, model *fakeModel, cfg Config) *fixture {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	reg := models.NewRegistry()
	require.NoError(t, reg.Register(model))
	q := queue.NewMemory(64, nil)
	preds := repos.NewPredictionRepo(db, log)
	pool := NewPool(Deps{
		DB:          db,
		Log:         log,
		Queue:       q,
		Predictions: preds,
		Compounds:   repos.NewCompoundRepo(db, log),
		Invoker:     models.NewInvoker(reg, time.Second, nil, log),
	}, cfg)
	return &fixture{db: db, preds: preds, queue: q, pool: pool, model: model}
}

func (f *fixture) seed(t *testing.T, n int) []*domain.Prediction {
	t.Helper()
	ctx := context.Background()
	c := testutil.SeedCompound(t, ctx, f.db, "ethanol", "CCO")
	out := make([]*domain.Prediction, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, testutil.SeedPrediction(t, ctx, f.db, c.ID, prediction.ModelSolubility))
	}
	return out
}

func (f *fixture) get(t *testing.T, id uuid.UUID) *domain.Prediction {
	t.Helper()
	p, err := f.preds.GetByID(context.Background(), nil, id)
	require.NoError(t, err)
	require.NotNil(t, p)
	return p
}

var fastRetry = Config{Concurrency: 1, MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}

func TestPoolDrainsQueue(t *testing.T) {
	f := newFixture(t, &fakeModel{}, Config{Concurrency: 3, MaxAttempts: 3, InitialBackoff: time.Millisecond})
	preds := f.seed(t, 6)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.pool.Run(ctx) }()

	for _, p := range preds {
		require.NoError(t, f.queue.Enqueue(ctx, p.ID))
	}
	require.Eventually(t, func() bool {
		counts, err := f.preds.CountByStatus(context.Background(), nil)
		return err == nil && counts[prediction.StatusDone] == int64(len(preds))
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("pool did not stop")
	}

	got := f.get(t, preds[0].ID)
	require.NotNil(t, got.Value)
	assert.Equal(t, 1.5, *got.Value)
	assert.Equal(t, 0.9, *got.Confidence)
	assert.Equal(t, "fake", got.ModelName)
	assert.Equal(t, 1, got.Attempts)
	assert.Nil(t, got.LockedAt)
	assert.NotNil(t, got.CompletedAt)
}

func TestDuplicateDeliveriesRunOnce(t *testing.T) {
	f := newFixture(t, &fakeModel{}, Config{Concurrency: 3, MaxAttempts: 1})
	p := f.seed(t, 1)[0]

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.pool.Run(ctx) }()
	for i := 0; i < 3; i++ {
		require.NoError(t, f.queue.Enqueue(ctx, p.ID))
	}
	require.Eventually(t, func() bool {
		n, _ := f.queue.Len(context.Background())
		return n == 0 && f.get(t, p.ID).Status == prediction.StatusDone
	}, 5*time.Second, 10*time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, int32(1), f.model.calls.Load())
}

func TestProcessRetriesTransientFailures(t *testing.T) {
	model := &fakeModel{predict: func(call int32) (models.Result, error) {
		if call < 3 {
			return models.Result{}, models.Unavailable(errors.New("503"))
		}
		return models.Result{Value: 2, Confidence: 0.5}, nil
	}}
	f := newFixture(t, model, fastRetry)
	p := f.seed(t, 1)[0]

	f.pool.Process(context.Background(), 1, p.ID)
	require.Equal(t, int64(1), released)

	got := f.get(t, p.ID)
	assert.Equal(t, prediction.StatusDone, got.Status)
	assert.Equal(t, 3, got.Attempts)
	assert.Equal(t, int32(3), model.calls.Load())
}

func TestProcessInvalidInputFailsImmediately(t *testing.T) {
	model := &fakeModel{predict: func(call int32) (models.Result, error) {
		return models.Result{}, models.InvalidInput("unparseable")
	}}
	f := newFixture(t, model, fastRetry)
	p := f.seed(t, 1)[0]

	f.pool.Process(context.Background(), 1, p.ID)

	got := f.get(t, p.ID)
	assert.Equal(t, prediction.StatusFailed, got.Status)
	assert.Equal(t, prediction.ReasonInvalidInput, got.Error)
	assert.Equal(t, 1, got.Attempts)
	assert.Nil(t, got.Value)
	assert.Contains(t, string(got.Details), "unparseable")
}

func TestProcessGivesUpAfterMaxAttempts(t *testing.T) {
	model := &fakeModel{predict: func(call int32) (models.Result, error) {
		return models.Result{}, models.Timeout(context.DeadlineExceeded)
	}}
	f := newFixture(t, model, fastRetry)
	p := f.seed(t, 1)[0]

	f.pool.Process(context.Background(), 1, p.ID)

	got := f.get(t, p.ID)
	assert.Equal(t, prediction.StatusFailed, got.Status)
	assert.Equal(t, prediction.ReasonTimeout, got.Error)
	assert.Equal(t, 3, got.Attempts)
	assert.Equal(t, int32(3), model.calls.Load())
}

func TestProcessPanickingModelFailsOnlyThatItem(t *testing.T) {
	model := &fakeModel{predict: func(call int32) (models.Result, error) {
		if call == 1 {
			panic("model crashed")
		}
		return models.Result{Value: 1}, nil
	}}
	f := newFixture(t, model, Config{Concurrency: 1, MaxAttempts: 1})
	preds := f.seed(t, 2)

	f.pool.Process(context.Background(), 1, preds[0].ID)
	f.pool.Process(context.Background(), 1, preds[1].ID)

	assert.Equal(t, prediction.StatusFailed, f.get(t, preds[0].ID).Status)
	assert.Equal(t, prediction.ReasonUnavailable, f.get(t, preds[0].ID).Error)
	assert.Equal(t, prediction.StatusDone, f.get(t, preds[1].ID).Status)
}

func TestProcessSkipsClaimedAndTerminal(t *testing.T) {
	f := newFixture(t, &fakeModel{}, fastRetry)
	preds := f.seed(t, 2)
	ctx := context.Background()

	ok, err := f.preds.Claim(ctx, nil, preds[0].ID, uuid.New(), time.Now().UTC())
	require.NoError(t, err)
	require.True(t, ok)
	f.pool.Process(ctx, 1, preds[0].ID)
	assert.Equal(t, prediction.StatusPending, f.get(t, preds[0].ID).Status)

	require.NoError(t, f.db.Model(&domain.Prediction{}).Where("id = ?", preds[1].ID).
		Updates(map[string]any{"status": prediction.StatusFailed, "error": prediction.ReasonCancelled}).Error)
	f.pool.Process(ctx, 1, preds[1].ID)
	assert.Equal(t, prediction.ReasonCancelled, f.get(t, preds[1].ID).Error)

	assert.Zero(t, f.model.calls.Load())
}

func TestProcessUsesTombstonedCompound(t *testing.T) {
	f := newFixture(t, &fakeModel{}, fastRetry)
	p := f.seed(t, 1)[0]
	require.NoError(t, f.db.Model(&domain.Compound{}).Where("id = ?", p.CompoundID).Update("deleted", true).Error)

	f.pool.Process(context.Background(), 1, p.ID)
	assert.Equal(t, prediction.StatusDone, f.get(t, p.ID).Status)
}

func TestReleasedClaimDiscardsLateOutcome(t *testing.T) {
	model := &fakeModel{}
	f := newFixture(t, model, fastRetry)
	p := f.seed(t, 1)[0]

	// While the first worker is still inside the model call its claim goes
	// stale; a second worker takes over and finishes first.
	var released int64
	model.predict = func(call int32) (models.Result, error) {
		if call == 1 {
			n, err := f.preds.ReleaseStaleClaims(context.Background(), nil, time.Now().UTC().Add(time.Minute))
			if err != nil {
				return models.Result{}, models.InvalidInput("release: %v", err)
			}
			released = n
			f.pool.Process(context.Background(), 2, p.ID)
			return models.Result{Value: 1, Confidence: 0.5}, nil
		}
		return models.Result{Value: 2, Confidence: 0.9}, nil
	}

	f.pool.Process(context.Background(), 1, p.ID)
	require.Equal(t, int64(1), released)

	got := f.get(t, p.ID)
	assert.Equal(t, prediction.StatusDone, got.Status)
	require.NotNil(t, got.Value)
	assert.Equal(t, 2.0, *got.Value, "the current claim holder's outcome wins")
	assert.Nil(t, got.ClaimToken)
	assert.Equal(t, int32(2), model.calls.Load())
}
