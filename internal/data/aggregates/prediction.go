package aggregates

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/yungbote/compoundlab-backend/internal/data/repos"
	domainagg "github.com/yungbote/compoundlab-backend/internal/domain/aggregates"
	"github.com/yungbote/compoundlab-backend/internal/domain/prediction"
	"github.com/yungbote/compoundlab-backend/internal/platform/dbctx"
)

type PredictionLedgerDeps struct {
	Base BaseDeps

	Compounds   repos.CompoundRepo
	Predictions repos.PredictionRepo
	Batches     repos.PredictionBatchRepo
}

type predictionLedger struct {
	deps PredictionLedgerDeps
}

func NewPredictionLedger(deps PredictionLedgerDeps) domainagg.PredictionLedger {
	deps.Base = deps.Base.withDefaults()
	return &predictionLedger{deps: deps}
}

func (l *predictionLedger) Contract() domainagg.Contract {
	return domainagg.PredictionLedgerContract
}

// Submit inserts one pending prediction per compound id, in order. Duplicate
// ids yield duplicate members. Nothing is written unless every compound is live.
func (l *predictionLedger) Submit(ctx context.Context, in domainagg.SubmitPredictionsInput) (domainagg.SubmitPredictionsResult, error) {
	const op = "Prediction.Ledger.Submit"
	var out domainagg.SubmitPredictionsResult
	if len(in.CompoundIDs) == 0 {
		return out, domainagg.Validation(op, "at least one compound id is required")
	}
	if !in.AsBatch && len(in.CompoundIDs) != 1 {
		return out, domainagg.Validation(op, "single submission takes exactly one compound id")
	}
	modelType := prediction.NormalizeModelType(in.ModelType)
	if modelType == "" {
		return out, domainagg.Validation(op, "model_type is required")
	}
	modelName := strings.TrimSpace(in.ModelName)

	err := executeWrite(ctx, l.deps.Base, op, func(dbc dbctx.Context) error {
		if err := l.requireLive(dbc, op, in.CompoundIDs); err != nil {
			return err
		}

		var batchID *uuid.UUID
		if in.AsBatch {
			b := &prediction.Batch{
				ID:        uuid.New(),
				ModelType: modelType,
				ModelName: modelName,
				CreatedBy: in.CreatedBy,
			}
			if err := l.deps.Batches.Create(dbc.Ctx, dbc.Tx, b); err != nil {
				return err
			}
			batchID = &b.ID
			out.Batch = b
		}

		members := make([]*prediction.Prediction, 0, len(in.CompoundIDs))
		for i, cid := range in.CompoundIDs {
			members = append(members, &prediction.Prediction{
				ID:           uuid.New(),
				CompoundID:   cid,
				ModelType:    modelType,
				ModelName:    modelName,
				Status:       prediction.StatusPending,
				BatchID:      batchID,
				BatchSeq:     i,
				ExperimentID: in.ExperimentID,
				CreatedBy:    in.CreatedBy,
			})
		}
		created, err := l.deps.Predictions.Create(dbc.Ctx, dbc.Tx, members)
		if err != nil {
			return err
		}
		out.Predictions = created
		return nil
	})
	if err != nil {
		return domainagg.SubmitPredictionsResult{}, err
	}
	if out.Batch != nil {
		out.Batch.Predictions = out.Predictions
		out.Batch.Status = prediction.AggregateStatus(out.Predictions)
	}
	return out, nil
}

// CancelBatch fails every member no worker has claimed yet.
func (l *predictionLedger) CancelBatch(ctx context.Context, batchID uuid.UUID) (domainagg.CancelBatchResult, error) {
	const op = "Prediction.Ledger.CancelBatch"
	var out domainagg.CancelBatchResult
	if batchID == uuid.Nil {
		return out, domainagg.Validation(op, "missing batch id")
	}
	err := executeWrite(ctx, l.deps.Base, op, func(dbc dbctx.Context) error {
		b, err := l.deps.Batches.GetByID(dbc.Ctx, dbc.Tx, batchID)
		if err != nil {
			return err
		}
		if b == nil {
			return domainagg.NotFound(op, "batch %s not found", batchID)
		}
		now := time.Now().UTC()
		if err := l.deps.Batches.MarkCancelled(dbc.Ctx, dbc.Tx, batchID, now); err != nil {
			return err
		}
		n, err := l.deps.Predictions.CancelPendingInBatch(dbc.Ctx, dbc.Tx, batchID, now)
		if err != nil {
			return err
		}
		out.Cancelled = n
		return nil
	})
	return out, err
}

func (l *predictionLedger) requireLive(dbc dbctx.Context, op string, ids []uuid.UUID) error {
	unique := make([]uuid.UUID, 0, len(ids))
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			return domainagg.Validation(op, "compound id must not be empty")
		}
		if !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}
	found, err := l.deps.Compounds.GetByIDs(dbc.Ctx, dbc.Tx, unique)
	if err != nil {
		return err
	}
	live := make(map[uuid.UUID]bool, len(found))
	for _, c := range found {
		if !c.Deleted {
			live[c.ID] = true
		}
	}
	var missing []string
	for _, id := range unique {
		if !live[id] {
			missing = append(missing, id.String())
		}
	}
	if len(missing) > 0 {
		return domainagg.NotFound(op, "compounds not found: %s", strings.Join(missing, ", "))
	}
	return nil
}
