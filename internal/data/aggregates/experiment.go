package aggregates

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/yungbote/compoundlab-backend/internal/data/repos"
	domainagg "github.com/yungbote/compoundlab-backend/internal/domain/aggregates"
	"github.com/yungbote/compoundlab-backend/internal/domain/experiment"
	"github.com/yungbote/compoundlab-backend/internal/platform/dbctx"
)

const experimentTable = "experiment"

type ExperimentLifecycleDeps struct {
	Base BaseDeps

	Experiments repos.ExperimentRepo
}

type experimentLifecycle struct {
	deps ExperimentLifecycleDeps
}

func NewExperimentLifecycle(deps ExperimentLifecycleDeps) domainagg.ExperimentLifecycle {
	deps.Base = deps.Base.withDefaults()
	return &experimentLifecycle{deps: deps}
}

func (a *experimentLifecycle) Contract() domainagg.Contract {
	return domainagg.ExperimentLifecycleContract
}

func (a *experimentLifecycle) Update(ctx context.Context, id uuid.UUID, patch domainagg.ExperimentPatch) (*experiment.Experiment, error) {
	const op = "Experiment.Lifecycle.Update"
	if id == uuid.Nil {
		return nil, domainagg.Validation(op, "missing experiment id")
	}
	if patch.Empty() {
		return nil, domainagg.Validation(op, "patch has no fields")
	}
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		return nil, domainagg.Validation(op, "name must not be empty")
	}
	if patch.Status != nil && !experiment.ValidStatus(*patch.Status) {
		return nil, domainagg.Validation(op, "unknown status %q", *patch.Status)
	}
	for field, raw := range map[string][]byte{"parameters": patch.Parameters, "metrics": patch.Metrics} {
		if len(raw) == 0 {
			continue
		}
		var obj map[string]any
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, domainagg.Validation(op, "%s must be a JSON object", field)
		}
	}

	var out *experiment.Experiment
	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		cur, err := a.deps.Experiments.GetByID(dbc.Ctx, dbc.Tx, id)
		if err != nil {
			return err
		}
		if cur == nil {
			return domainagg.NotFound(op, "experiment %s not found", id)
		}

		now := time.Now().UTC()
		updates := map[string]any{"updated_at": now}
		next := *cur
		if patch.Name != nil {
			next.Name = strings.TrimSpace(*patch.Name)
			updates["name"] = next.Name
		}
		if patch.Description != nil {
			next.Description = *patch.Description
			updates["description"] = next.Description
		}
		if patch.ModelName != nil {
			next.ModelName = strings.TrimSpace(*patch.ModelName)
			updates["model_name"] = next.ModelName
		}
		if patch.Parameters != nil {
			next.Parameters = patch.Parameters
			updates["parameters"] = patch.Parameters
		}
		if patch.Metrics != nil {
			next.Metrics = patch.Metrics
			updates["metrics"] = patch.Metrics
		}
		if patch.Status != nil && *patch.Status != cur.Status {
			if !experiment.CanTransition(cur.Status, *patch.Status) {
				return domainagg.Conflict(op, "cannot move experiment from %s to %s", cur.Status, *patch.Status)
			}
			next.Status = *patch.Status
			updates["status"] = next.Status
			if next.Status == experiment.StatusCompleted || next.Status == experiment.StatusFailed {
				next.CompletedAt = &now
				updates["completed_at"] = now
			}
		}

		ok, err := a.deps.Base.CASGuard.UpdateByStatus(dbc, experimentTable, id, []string{cur.Status}, updates)
		if err != nil {
			return err
		}
		if err := RequireCASSuccess(ok, "experiment "+id.String()+" changed status concurrently"); err != nil {
			return err
		}
		next.UpdatedAt = now
		out = &next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RecordTrackingRun stores runID and completes the experiment unless a run id
// is already stored, in which case the stored experiment is returned.
func (a *experimentLifecycle) RecordTrackingRun(ctx context.Context, id uuid.UUID, runID string) (domainagg.RecordTrackingRunResult, error) {
	const op = "Experiment.Lifecycle.RecordTrackingRun"
	var out domainagg.RecordTrackingRunResult
	runID = strings.TrimSpace(runID)
	if id == uuid.Nil || runID == "" {
		return out, domainagg.Validation(op, "experiment id and run id are required")
	}
	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		cur, err := a.deps.Experiments.GetByID(dbc.Ctx, dbc.Tx, id)
		if err != nil {
			return err
		}
		if cur == nil {
			return domainagg.NotFound(op, "experiment %s not found", id)
		}
		if cur.TrackingRunID != nil {
			out = domainagg.RecordTrackingRunResult{Experiment: cur, AlreadyLogged: true}
			return nil
		}
		if !experiment.Loggable(cur.Status) {
			return domainagg.Conflict(op, "experiment in status %s cannot be logged", cur.Status)
		}
		now := time.Now().UTC()
		won, err := a.deps.Experiments.SetTrackingRun(dbc.Ctx, dbc.Tx, id, runID, experiment.StatusCompleted, now)
		if err != nil {
			return err
		}
		if !won {
			stored, err := a.deps.Experiments.GetByID(dbc.Ctx, dbc.Tx, id)
			if err != nil {
				return err
			}
			out = domainagg.RecordTrackingRunResult{Experiment: stored, AlreadyLogged: true}
			return nil
		}
		next := *cur
		next.TrackingRunID = &runID
		next.Status = experiment.StatusCompleted
		next.CompletedAt = &now
		next.UpdatedAt = now
		out = domainagg.RecordTrackingRunResult{Experiment: &next}
		return nil
	})
	if err != nil {
		return domainagg.RecordTrackingRunResult{}, err
	}
	return out, nil
}
