package aggregates

import (
	"context"

	"github.com/google/uuid"
	"github.com/yungbote/compoundlab-backend/internal/domain/prediction"
)

type SubmitPredictionsInput struct {
	CompoundIDs  []uuid.UUID
	ModelType    string
	ModelName    string
	ExperimentID *uuid.UUID
	CreatedBy    *uuid.UUID
	// AsBatch groups the members under a new batch header.
	AsBatch bool
}

type SubmitPredictionsResult struct {
	Batch       *prediction.Batch
	Predictions []*prediction.Prediction
}

type CancelBatchResult struct {
	Cancelled int64
}

// PredictionLedger owns prediction submission and batch cancellation writes.
// Compound liveness is checked inside the same transaction as the inserts.
type PredictionLedger interface {
	Aggregate
	Submit(ctx context.Context, in SubmitPredictionsInput) (SubmitPredictionsResult, error)
	CancelBatch(ctx context.Context, batchID uuid.UUID) (CancelBatchResult, error)
}
