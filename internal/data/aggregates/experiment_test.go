package aggregates_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/yungbote/compoundlab-backend/internal/data/aggregates"
	"github.com/yungbote/compoundlab-backend/internal/data/repos"
	"github.com/yungbote/compoundlab-backend/internal/data/repos/testutil"
	domainagg "github.com/yungbote/compoundlab-backend/internal/domain/aggregates"
	"github.com/yungbote/compoundlab-backend/internal/domain/experiment"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func newLifecycle(t *testing.T, db *gorm.DB) domainagg.ExperimentLifecycle {
	t.Helper()
	log := testutil.Logger(t)
	return aggregates.NewExperimentLifecycle(aggregates.ExperimentLifecycleDeps{
		Base:        aggregates.BaseDeps{DB: db, Log: log},
		Experiments: repos.NewExperimentRepo(db, log),
	})
}

func status(s string) domainagg.ExperimentPatch { return domainagg.ExperimentPatch{Status: &s} }

func TestExperimentLifecycleTransitions(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	lc := newLifecycle(t, db)
	e := testutil.SeedExperiment(t, ctx, db, "sol", "solubility", nil)

	if _, err := lc.Update(ctx, e.ID, status(experiment.StatusCompleted)); !domainagg.IsCode(err, domainagg.CodeConflict) {
		t.Fatalf("created->completed: want conflict, got %v", err)
	}
	running, err := lc.Update(ctx, e.ID, status(experiment.StatusRunning))
	if err != nil || running.Status != experiment.StatusRunning {
		t.Fatalf("created->running: %+v %v", running, err)
	}
	done, err := lc.Update(ctx, e.ID, domainagg.ExperimentPatch{
		Status:  strPtr(experiment.StatusCompleted),
		Metrics: datatypes.JSON(`{"rmse":0.42}`),
	})
	if err != nil || done.Status != experiment.StatusCompleted || done.CompletedAt == nil {
		t.Fatalf("running->completed: %+v %v", done, err)
	}
	if _, err := lc.Update(ctx, e.ID, status(experiment.StatusRunning)); !domainagg.IsCode(err, domainagg.CodeConflict) {
		t.Fatalf("completed->running: want conflict, got %v", err)
	}
	if _, err := lc.Update(ctx, e.ID, domainagg.ExperimentPatch{Description: strPtr("notes")}); err != nil {
		t.Fatalf("metadata edit on terminal experiment: %v", err)
	}
}

func TestExperimentLifecycleValidation(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	lc := newLifecycle(t, db)
	e := testutil.SeedExperiment(t, ctx, db, "sol", "solubility", nil)

	bad := []domainagg.ExperimentPatch{
		{},
		status("paused"),
		{Name: strPtr("  ")},
		{Parameters: datatypes.JSON(`"nope"`)},
	}
	for _, p := range bad {
		if _, err := lc.Update(ctx, e.ID, p); !domainagg.IsCode(err, domainagg.CodeValidation) {
			t.Fatalf("%+v: want validation, got %v", p, err)
		}
	}
	if _, err := lc.Update(ctx, uuid.New(), status(experiment.StatusRunning)); !domainagg.IsCode(err, domainagg.CodeNotFound) {
		t.Fatalf("unknown experiment: want not found, got %v", err)
	}
}

func TestExperimentLifecycleRecordTrackingRunOnce(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	lc := newLifecycle(t, db)
	e := testutil.SeedExperiment(t, ctx, db, "tox", "toxicity", nil)

	if _, err := lc.RecordTrackingRun(ctx, e.ID, "run-early"); !domainagg.IsCode(err, domainagg.CodeConflict) {
		t.Fatalf("created experiment: want conflict, got %v", err)
	}
	if _, err := lc.Update(ctx, e.ID, status(experiment.StatusRunning)); err != nil {
		t.Fatalf("start: %v", err)
	}

	first, err := lc.RecordTrackingRun(ctx, e.ID, "run-1")
	if err != nil || first.AlreadyLogged || *first.Experiment.TrackingRunID != "run-1" || first.Experiment.Status != experiment.StatusCompleted {
		t.Fatalf("first record: %+v %v", first, err)
	}
	second, err := lc.RecordTrackingRun(ctx, e.ID, "run-2")
	if err != nil || !second.AlreadyLogged || *second.Experiment.TrackingRunID != "run-1" {
		t.Fatalf("second record must keep run-1: %+v %v", second, err)
	}
}
