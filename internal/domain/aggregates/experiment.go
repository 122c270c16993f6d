package aggregates

import (
	"context"

	"github.com/google/uuid"
	"github.com/yungbote/compoundlab-backend/internal/domain/experiment"
	"gorm.io/datatypes"
)

// ExperimentPatch carries optional experiment edits; nil members are unchanged.
type ExperimentPatch struct {
	Name        *string
	Description *string
	ModelName   *string
	Status      *string
	Parameters  datatypes.JSON
	Metrics     datatypes.JSON
}

func (p ExperimentPatch) Empty() bool {
	return p.Name == nil && p.Description == nil && p.ModelName == nil && p.Status == nil &&
		p.Parameters == nil && p.Metrics == nil
}

type RecordTrackingRunResult struct {
	Experiment *experiment.Experiment
	// AlreadyLogged is true when another caller stored a run id first.
	AlreadyLogged bool
}

type ExperimentLifecycle interface {
	Aggregate
	Update(ctx context.Context, id uuid.UUID, patch ExperimentPatch) (*experiment.Experiment, error)
	RecordTrackingRun(ctx context.Context, id uuid.UUID, runID string) (RecordTrackingRunResult, error)
}
