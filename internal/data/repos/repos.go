package repos

import (
	"github.com/yungbote/compoundlab-backend/internal/data/repos/compound"
	"github.com/yungbote/compoundlab-backend/internal/data/repos/experiment"
	"github.com/yungbote/compoundlab-backend/internal/data/repos/prediction"
	"github.com/yungbote/compoundlab-backend/internal/data/repos/user"
	"github.com/yungbote/compoundlab-backend/internal/platform/logger"
	"gorm.io/gorm"
)

type UserRepo = user.UserRepo

type CompoundRepo = compound.CompoundRepo
type CompoundVersionRepo = compound.VersionRepo

type PredictionRepo = prediction.PredictionRepo
type PredictionBatchRepo = prediction.BatchRepo
type PredictionOutcome = prediction.Outcome

type ExperimentRepo = experiment.ExperimentRepo

func NewUserRepo(db *gorm.DB, baseLog *logger.Logger) UserRepo { return user.NewUserRepo(db, baseLog) }

func NewCompoundRepo(db *gorm.DB, baseLog *logger.Logger) CompoundRepo {
	return compound.NewCompoundRepo(db, baseLog)
}
func NewCompoundVersionRepo(db *gorm.DB, baseLog *logger.Logger) CompoundVersionRepo {
	return compound.NewVersionRepo(db, baseLog)
}

func NewPredictionRepo(db *gorm.DB, baseLog *logger.Logger) PredictionRepo {
	return prediction.NewPredictionRepo(db, baseLog)
}
func NewPredictionBatchRepo(db *gorm.DB, baseLog *logger.Logger) PredictionBatchRepo {
	return prediction.NewBatchRepo(db, baseLog)
}

func NewExperimentRepo(db *gorm.DB, baseLog *logger.Logger) ExperimentRepo {
	return experiment.NewExperimentRepo(db, baseLog)
}
