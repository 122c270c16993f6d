package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/yungbote/compoundlab-backend/internal/data/repos/testutil"
	"github.com/yungbote/compoundlab-backend/internal/domain"
	domainagg "github.com/yungbote/compoundlab-backend/internal/domain/aggregates"
	"github.com/yungbote/compoundlab-backend/internal/domain/experiment"
	"github.com/yungbote/compoundlab-backend/internal/domain/prediction"
	"github.com/yungbote/compoundlab-backend/internal/domain/user"
	"github.com/yungbote/compoundlab-backend/internal/platform/apierr"
)

func runningExperiment(t *testing.T, h *harness, ctx context.Context) *domain.Experiment {
	t.Helper()
	e, err := h.experiments.Create(ctx, CreateExperimentInput{
		Name:       "Solubility screen",
		ModelType:  "solubility",
		Parameters: datatypes.JSON(`{"threshold":0.5,"features":["logp","mw"]}`),
	})
	require.NoError(t, err)
	running := experiment.StatusRunning
	e, err = h.experiments.Update(ctx, e.ID, domainagg.ExperimentPatch{Status: &running})
	require.NoError(t, err)
	return e
}

func TestExperimentCreateValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.experiments.Create(ctx, CreateExperimentInput{ModelType: "solubility"})
	assert.True(t, apierr.Is(err, apierr.CodeValidation))
	_, err = h.experiments.Create(ctx, CreateExperimentInput{Name: "x"})
	assert.True(t, apierr.Is(err, apierr.CodeValidation))
	_, err = h.experiments.Create(ctx, CreateExperimentInput{Name: "x", ModelType: "toxicity", Parameters: datatypes.JSON(`[1,2]`)})
	assert.True(t, apierr.Is(err, apierr.CodeValidation))

	e, err := h.experiments.Create(ctx, CreateExperimentInput{Name: " x ", ModelType: "DTI"})
	require.NoError(t, err)
	assert.Equal(t, "x", e.Name)
	assert.Equal(t, prediction.ModelInteractionAffinity, e.ModelType)
	assert.Equal(t, experiment.StatusCreated, e.Status)
}

func TestExperimentTransitions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	e, err := h.experiments.Create(ctx, CreateExperimentInput{Name: "run", ModelType: "toxicity"})
	require.NoError(t, err)

	completed := experiment.StatusCompleted
	_, err = h.experiments.Update(ctx, e.ID, domainagg.ExperimentPatch{Status: &completed})
	assert.True(t, apierr.Is(err, apierr.CodeConflict), "created -> completed: %v", err)

	failed := experiment.StatusFailed
	e, err = h.experiments.Update(ctx, e.ID, domainagg.ExperimentPatch{Status: &failed})
	require.NoError(t, err)
	assert.NotNil(t, e.CompletedAt)

	running := experiment.StatusRunning
	_, err = h.experiments.Update(ctx, e.ID, domainagg.ExperimentPatch{Status: &running})
	assert.True(t, apierr.Is(err, apierr.CodeConflict))
}

func TestExperimentVisibility(t *testing.T) {
	h := newHarness(t)
	aliceCtx, _ := h.asUser(t, user.RoleUser)
	bobCtx, _ := h.asUser(t, user.RoleUser)
	adminCtx, _ := h.asUser(t, user.RoleAdmin)

	e, err := h.experiments.Create(aliceCtx, CreateExperimentInput{Name: "alice", ModelType: "toxicity"})
	require.NoError(t, err)
	_, err = h.experiments.Create(bobCtx, CreateExperimentInput{Name: "bob", ModelType: "toxicity"})
	require.NoError(t, err)

	mine, err := h.experiments.List(aliceCtx, domain.ExperimentFilter{})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "alice", mine[0].Name)

	all, err := h.experiments.List(adminCtx, domain.ExperimentFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = h.experiments.Get(bobCtx, e.ID)
	assert.True(t, apierr.Is(err, apierr.CodeNotFound))
	_, err = h.experiments.Get(adminCtx, e.ID)
	assert.NoError(t, err)
}

func TestLogToTrackingExactlyOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.tracking.delay = 20 * time.Millisecond
	e := runningExperiment(t, h, ctx)

	c := testutil.SeedCompound(t, ctx, h.db, "Ethanol", "CCO")
	p := testutil.SeedPrediction(t, ctx, h.db, c.ID, prediction.ModelSolubility)
	require.NoError(t, h.db.Model(&domain.Prediction{}).Where("id = ?", p.ID).
		Updates(map[string]any{"experiment_id": e.ID, "status": prediction.StatusDone, "value": 42.0}).Error)

	const callers = 8
	results := make([]*TrackingResult, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = h.experiments.LogToTracking(ctx, e.ID)
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "run-1", results[i].RunID)
	}
	assert.Equal(t, int32(1), h.tracking.calls.Load())

	req := h.tracking.lastRequest()
	assert.Equal(t, "compoundlab-test", req.ExperimentName)
	assert.Equal(t, "Solubility screen", req.RunName)
	assert.Equal(t, "0.5", req.Params["threshold"])
	assert.Equal(t, `["logp","mw"]`, req.Params["features"])
	assert.Equal(t, 1.0, req.Metrics["prediction_count"])
	assert.Equal(t, 42.0, req.Metrics["prediction_value_mean"])
	assert.Contains(t, req.Tags["compoundlab.predictions"], p.ID.String())

	again, err := h.experiments.LogToTracking(ctx, e.ID)
	require.NoError(t, err)
	assert.True(t, again.AlreadyLogged)
	assert.Equal(t, "run-1", again.RunID)
	assert.Equal(t, experiment.StatusCompleted, again.Experiment.Status)
	assert.Equal(t, int32(1), h.tracking.calls.Load())
}

func TestLogToTrackingFallsBackToModelPredictions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	e := runningExperiment(t, h, ctx)
	c := testutil.SeedCompound(t, ctx, h.db, "Ethanol", "CCO")
	testutil.SeedPrediction(t, ctx, h.db, c.ID, prediction.ModelSolubility)
	testutil.SeedPrediction(t, ctx, h.db, c.ID, prediction.ModelToxicity)

	_, err := h.experiments.LogToTracking(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, 1.0, h.tracking.lastRequest().Metrics["prediction_count"])
}

func TestLogToTrackingFailureLeavesStateUnchanged(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	e := runningExperiment(t, h, ctx)
	h.tracking.err = errors.New("mlflow down")

	_, err := h.experiments.LogToTracking(ctx, e.ID)
	assert.True(t, apierr.Is(err, apierr.CodeExternal), "got %v", err)

	stored, err := h.experiments.Get(ctx, e.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.TrackingRunID)
	assert.Equal(t, experiment.StatusRunning, stored.Status)

	h.tracking.err = nil
	res, err := h.experiments.LogToTracking(ctx, e.ID)
	require.NoError(t, err)
	assert.False(t, res.AlreadyLogged)
	assert.NotEmpty(t, res.RunID)
}

func TestLogToTrackingRequiresLoggableStatus(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	e, err := h.experiments.Create(ctx, CreateExperimentInput{Name: "draft", ModelType: "toxicity"})
	require.NoError(t, err)

	_, err = h.experiments.LogToTracking(ctx, e.ID)
	assert.True(t, apierr.Is(err, apierr.CodeConflict))
	assert.Equal(t, int32(0), h.tracking.calls.Load())

	_, err = h.experiments.LogToTracking(ctx, uuid.New())
	assert.True(t, apierr.Is(err, apierr.CodeNotFound))
}
