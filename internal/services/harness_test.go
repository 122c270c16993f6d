package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/compoundlab-backend/internal/clients/mlflow"
	"github.com/yungbote/compoundlab-backend/internal/data/aggregates"
	"github.com/yungbote/compoundlab-backend/internal/data/repos"
	"github.com/yungbote/compoundlab-backend/internal/data/repos/testutil"
	domainagg "github.com/yungbote/compoundlab-backend/internal/domain/aggregates"
	"github.com/yungbote/compoundlab-backend/internal/domain/user"
	"github.com/yungbote/compoundlab-backend/internal/jobs/queue"
	"github.com/yungbote/compoundlab-backend/internal/models"
	"github.com/yungbote/compoundlab-backend/internal/platform/ctxutil"
	"github.com/yungbote/compoundlab-backend/internal/platform/logger"
)

type harness struct {
	db  *gorm.DB
	log *logger.Logger

	userRepo       repos.UserRepo
	compoundRepo   repos.CompoundRepo
	predictionRepo repos.PredictionRepo
	batchRepo      repos.PredictionBatchRepo
	experimentRepo repos.ExperimentRepo

	store     domainagg.CompoundStore
	ledger    domainagg.PredictionLedger
	lifecycle domainagg.ExperimentLifecycle

	registry *models.Registry
	queue    queue.Queue
	tracking *fakeTracking

	auth        AuthService
	compounds   CompoundService
	predictions PredictionService
	experiments ExperimentService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	h := &harness{
		db:             db,
		log:            log,
		userRepo:       repos.NewUserRepo(db, log),
		compoundRepo:   repos.NewCompoundRepo(db, log),
		predictionRepo: repos.NewPredictionRepo(db, log),
		batchRepo:      repos.NewPredictionBatchRepo(db, log),
		experimentRepo: repos.NewExperimentRepo(db, log),
		registry:       models.NewRegistry(),
		queue:          queue.NewMemory(64, nil),
		tracking:       &fakeTracking{},
	}
	t.Cleanup(func() { _ = h.queue.Close() })
	for _, c := range models.Heuristics() {
		if err := h.registry.Register(c); err != nil {
			t.Fatalf("register %s: %v", c.Name(), err)
		}
	}

	base := aggregates.BaseDeps{DB: db, Log: log}
	h.store = aggregates.NewCompoundStore(aggregates.CompoundStoreDeps{
		Base:      base,
		Compounds: h.compoundRepo,
		Versions:  repos.NewCompoundVersionRepo(db, log),
	})
	h.ledger = aggregates.NewPredictionLedger(aggregates.PredictionLedgerDeps{
		Base:        base,
		Compounds:   h.compoundRepo,
		Predictions: h.predictionRepo,
		Batches:     h.batchRepo,
	})
	h.lifecycle = aggregates.NewExperimentLifecycle(aggregates.ExperimentLifecycleDeps{
		Base:        base,
		Experiments: h.experimentRepo,
	})

	h.auth = NewAuthService(db, log, h.userRepo, nil, "test-secret", time.Minute)
	h.compounds = NewCompoundService(db, log, h.store, h.compoundRepo)
	h.predictions = NewPredictionService(db, log, h.ledger, h.predictionRepo, h.batchRepo, h.compoundRepo, h.experimentRepo, h.registry, h.queue)
	h.experiments = NewExperimentService(db, log, h.lifecycle, h.experimentRepo, h.predictionRepo, h.tracking, "compoundlab-test")
	return h
}

// asUser returns a context carrying request identity for a freshly seeded user.
func (h *harness) asUser(t *testing.T, role string) (context.Context, uuid.UUID) {
	t.Helper()
	u := testutil.SeedUser(t, context.Background(), h.db, fmt.Sprintf("%s@example.com", uuid.NewString()[:8]))
	if role == user.RoleAdmin {
		if err := h.userRepo.UpdateRole(context.Background(), nil, u.ID, role); err != nil {
			t.Fatalf("promote: %v", err)
		}
	}
	ctx := ctxutil.WithRequestData(context.Background(), &ctxutil.RequestData{UserID: u.ID, Role: role})
	return ctx, u.ID
}

// fakeTracking records LogRun calls; the other client methods are unused.
type fakeTracking struct {
	calls atomic.Int32
	delay time.Duration
	err   error

	mu   sync.Mutex
	reqs []mlflow.RunRequest
}

var _ mlflow.Client = (*fakeTracking)(nil)

func (f *fakeTracking) GetOrCreateExperiment(ctx context.Context, name string) (string, error) {
	return "", errors.New("not used")
}

func (f *fakeTracking) CreateRun(ctx context.Context, experimentID, runName string, tags map[string]string) (string, error) {
	return "", errors.New("not used")
}

func (f *fakeTracking) LogBatch(ctx context.Context, runID string, params map[string]string, metrics map[string]float64, tags map[string]string) error {
	return errors.New("not used")
}

func (f *fakeTracking) UpdateRun(ctx context.Context, runID, status string) error {
	return errors.New("not used")
}

func (f *fakeTracking) LogRun(ctx context.Context, req mlflow.RunRequest) (string, error) {
	n := f.calls.Add(1)
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return "", f.err
	}
	return fmt.Sprintf("run-%d", n), nil
}

func (f *fakeTracking) lastRequest() mlflow.RunRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reqs[len(f.reqs)-1]
}
