package domain

import (
	"github.com/yungbote/compoundlab-backend/internal/domain/compound"
	"github.com/yungbote/compoundlab-backend/internal/domain/experiment"
	"github.com/yungbote/compoundlab-backend/internal/domain/prediction"
	"github.com/yungbote/compoundlab-backend/internal/domain/user"
)

type Compound = compound.Compound
type CompoundFields = compound.Fields
type CompoundVersion = compound.Version
type CompoundFilter = compound.Filter

type Prediction = prediction.Prediction
type PredictionBatch = prediction.Batch
type PredictionFilter = prediction.Filter

type Experiment = experiment.Experiment
type ExperimentFilter = experiment.Filter

type User = user.User

// Models lists every persisted model in migration order.
func Models() []any {
	return []any{
		&User{},
		&Compound{},
		&CompoundVersion{},
		&PredictionBatch{},
		&Prediction{},
		&Experiment{},
	}
}
