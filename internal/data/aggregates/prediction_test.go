package aggregates_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/yungbote/compoundlab-backend/internal/data/aggregates"
	"github.com/yungbote/compoundlab-backend/internal/data/repos"
	"github.com/yungbote/compoundlab-backend/internal/data/repos/testutil"
	"github.com/yungbote/compoundlab-backend/internal/domain"
	domainagg "github.com/yungbote/compoundlab-backend/internal/domain/aggregates"
	"github.com/yungbote/compoundlab-backend/internal/domain/prediction"
	"gorm.io/gorm"
)

func newLedger(t *testing.T, db *gorm.DB) (domainagg.PredictionLedger, repos.PredictionRepo) {
	t.Helper()
	log := testutil.Logger(t)
	preds := repos.NewPredictionRepo(db, log)
	return aggregates.NewPredictionLedger(aggregates.PredictionLedgerDeps{
		Base:        aggregates.BaseDeps{DB: db, Log: log},
		Compounds:   repos.NewCompoundRepo(db, log),
		Predictions: preds,
		Batches:     repos.NewPredictionBatchRepo(db, log),
	}), preds
}

func TestPredictionLedgerSubmitBatch(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	ledger, preds := newLedger(t, db)
	c := testutil.SeedCompound(t, ctx, db, "Ethanol", "CCO")

	res, err := ledger.Submit(ctx, domainagg.SubmitPredictionsInput{
		CompoundIDs: []uuid.UUID{c.ID, c.ID, c.ID},
		ModelType:   "solubility",
		AsBatch:     true,
	})
	if err != nil {
		t.Fatalf("submit batch: %v", err)
	}
	if res.Batch == nil || len(res.Batch.Predictions) != 3 || res.Batch.Status != prediction.StatusPending {
		t.Fatalf("unexpected batch: %+v", res.Batch)
	}
	members, err := preds.ListByBatch(ctx, nil, res.Batch.ID)
	if err != nil || len(members) != 3 {
		t.Fatalf("persisted members: %v len=%d", err, len(members))
	}
	for i, m := range members {
		if m.Status != prediction.StatusPending || m.BatchSeq != i || m.ID != res.Predictions[i].ID {
			t.Fatalf("member %d: %+v", i, m)
		}
	}
}

func TestPredictionLedgerSubmitIsAllOrNothing(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	ledger, _ := newLedger(t, db)
	live := testutil.SeedCompound(t, ctx, db, "Ethanol", "CCO")
	gone := testutil.SeedCompound(t, ctx, db, "Gone", "CCCC")
	if err := db.Model(&domain.Compound{}).Where("id = ?", gone.ID).Update("deleted", true).Error; err != nil {
		t.Fatalf("tombstone: %v", err)
	}

	for _, ids := range [][]uuid.UUID{{live.ID, uuid.New()}, {live.ID, gone.ID}} {
		_, err := ledger.Submit(ctx, domainagg.SubmitPredictionsInput{CompoundIDs: ids, ModelType: "toxicity", AsBatch: true})
		if !domainagg.IsCode(err, domainagg.CodeNotFound) {
			t.Fatalf("want not found, got %v", err)
		}
	}
	var n int64
	db.Model(&domain.Prediction{}).Count(&n)
	if n != 0 {
		t.Fatalf("no prediction may be written on failure, got %d", n)
	}
	db.Model(&domain.PredictionBatch{}).Count(&n)
	if n != 0 {
		t.Fatalf("no batch may be written on failure, got %d", n)
	}

	if _, err := ledger.Submit(ctx, domainagg.SubmitPredictionsInput{CompoundIDs: []uuid.UUID{live.ID, live.ID}, ModelType: "toxicity"}); !domainagg.IsCode(err, domainagg.CodeValidation) {
		t.Fatalf("single submit with two ids: want validation, got %v", err)
	}
}

func TestPredictionLedgerCancelBatch(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	ledger, preds := newLedger(t, db)
	c := testutil.SeedCompound(t, ctx, db, "Ethanol", "CCO")

	res, err := ledger.Submit(ctx, domainagg.SubmitPredictionsInput{CompoundIDs: []uuid.UUID{c.ID, c.ID}, ModelType: "dti", AsBatch: true})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Predictions[0].ModelType != prediction.ModelInteractionAffinity {
		t.Fatalf("alias not normalized: %s", res.Predictions[0].ModelType)
	}

	out, err := ledger.CancelBatch(ctx, res.Batch.ID)
	if err != nil || out.Cancelled != 2 {
		t.Fatalf("cancel: %+v %v", out, err)
	}
	members, _ := preds.ListByBatch(ctx, nil, res.Batch.ID)
	if prediction.AggregateStatus(members) != prediction.StatusFailed {
		t.Fatalf("cancelled batch should be failed")
	}
	again, err := ledger.CancelBatch(ctx, res.Batch.ID)
	if err != nil || again.Cancelled != 0 {
		t.Fatalf("second cancel: %+v %v", again, err)
	}
	if _, err := ledger.CancelBatch(ctx, uuid.New()); !domainagg.IsCode(err, domainagg.CodeNotFound) {
		t.Fatalf("unknown batch: want not found, got %v", err)
	}
}
