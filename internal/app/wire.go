package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/compoundlab-backend/internal/clients/chembl"
	"github.com/yungbote/compoundlab-backend/internal/clients/mlflow"
	"github.com/yungbote/compoundlab-backend/internal/data/aggregates"
	"github.com/yungbote/compoundlab-backend/internal/data/repos"
	domainagg "github.com/yungbote/compoundlab-backend/internal/domain/aggregates"
	httpH "github.com/yungbote/compoundlab-backend/internal/http/handlers"
	httpMW "github.com/yungbote/compoundlab-backend/internal/http/middleware"
	"github.com/yungbote/compoundlab-backend/internal/jobs/queue"
	"github.com/yungbote/compoundlab-backend/internal/models"
	"github.com/yungbote/compoundlab-backend/internal/observability"
	"github.com/yungbote/compoundlab-backend/internal/platform/archive"
	"github.com/yungbote/compoundlab-backend/internal/platform/httpx"
	"github.com/yungbote/compoundlab-backend/internal/platform/logger"
	"github.com/yungbote/compoundlab-backend/internal/services"
)

type Repos struct {
	User            repos.UserRepo
	Compound        repos.CompoundRepo
	CompoundVersion repos.CompoundVersionRepo
	Prediction      repos.PredictionRepo
	PredictionBatch repos.PredictionBatchRepo
	Experiment      repos.ExperimentRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		User:            repos.NewUserRepo(db, log),
		Compound:        repos.NewCompoundRepo(db, log),
		CompoundVersion: repos.NewCompoundVersionRepo(db, log),
		Prediction:      repos.NewPredictionRepo(db, log),
		PredictionBatch: repos.NewPredictionBatchRepo(db, log),
		Experiment:      repos.NewExperimentRepo(db, log),
	}
}

type Aggregates struct {
	Compounds   domainagg.CompoundStore
	Predictions domainagg.PredictionLedger
	Experiments domainagg.ExperimentLifecycle
}

func wireAggregates(db *gorm.DB, log *logger.Logger, metrics *observability.Metrics, r Repos) Aggregates {
	base := aggregates.BaseDeps{
		DB:    db,
		Log:   log,
		Hooks: aggregates.NewMetricsHooks(metrics),
	}
	return Aggregates{
		Compounds: aggregates.NewCompoundStore(aggregates.CompoundStoreDeps{
			Base:      base,
			Compounds: r.Compound,
			Versions:  r.CompoundVersion,
		}),
		Predictions: aggregates.NewPredictionLedger(aggregates.PredictionLedgerDeps{
			Base:        base,
			Compounds:   r.Compound,
			Predictions: r.Prediction,
			Batches:     r.PredictionBatch,
		}),
		Experiments: aggregates.NewExperimentLifecycle(aggregates.ExperimentLifecycleDeps{
			Base:        base,
			Experiments: r.Experiment,
		}),
	}
}

// Clients are the outbound integrations. Archive is nil when reports are not archived.
type Clients struct {
	Registry chembl.Client
	Tracking mlflow.Client
	Archive  archive.Store
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config, metrics *observability.Metrics) (Clients, error) {
	log.Info("Wiring clients...")
	retry := httpx.RetryPolicy{MaxAttempts: 3, Initial: 200 * time.Millisecond, Max: 2 * time.Second}

	registry, err := chembl.New(log, chembl.Config{
		BaseURL:        cfg.ChemblAPIURL,
		Timeout:        30 * time.Second,
		CacheTTL:       cfg.ChemblCacheTTL,
		RequestsPerSec: cfg.ChemblRPS,
		Burst:          int(cfg.ChemblRPS) + 1,
		Retry:          retry,
	}, metrics)
	if err != nil {
		return Clients{}, fmt.Errorf("init chembl client: %w", err)
	}

	tracking, err := mlflow.New(log, mlflow.Config{
		TrackingURI: cfg.MLflowTrackingURI,
		Token:       cfg.MLflowToken,
		Timeout:     15 * time.Second,
		Retry:       retry,
	}, metrics)
	if err != nil {
		return Clients{}, fmt.Errorf("init mlflow client: %w", err)
	}

	store, err := resolveArchive(ctx, log, cfg, metrics)
	if err != nil {
		return Clients{}, err
	}
	return Clients{Registry: registry, Tracking: tracking, Archive: store}, nil
}

// wireModels builds the capability registry from MODEL_CONFIG, or the
// built-in heuristics when no file is configured.
func wireModels(log *logger.Logger, cfg Config, metrics *observability.Metrics) (*models.Registry, *models.Invoker, error) {
	var mcfg *models.Config
	if path := strings.TrimSpace(cfg.ModelConfig); path != "" {
		loaded, err := models.LoadConfig(path)
		if err != nil {
			return nil, nil, err
		}
		mcfg = loaded
	}
	registry, err := models.BuildRegistry(mcfg)
	if err != nil {
		return nil, nil, fmt.Errorf("build model registry: %w", err)
	}
	for _, info := range registry.Describe() {
		log.Info("Model capability registered", "model_type", info.ModelType, "default", info.Default, "names", info.Names)
	}
	return registry, models.NewInvoker(registry, cfg.ModelTimeout, metrics, log), nil
}

type Services struct {
	Auth        services.AuthService
	Compounds   services.CompoundService
	Predictions services.PredictionService
	Experiments services.ExperimentService
	Import      services.ImportService
	Reports     services.ReportService
}

func wireServices(
	db *gorm.DB,
	log *logger.Logger,
	cfg Config,
	metrics *observability.Metrics,
	r Repos,
	aggs Aggregates,
	clients Clients,
	registry *models.Registry,
	q queue.Queue,
) Services {
	log.Info("Wiring services...")
	experiments := services.NewExperimentService(db, log, aggs.Experiments, r.Experiment, r.Prediction, clients.Tracking, cfg.MLflowExperimentName)
	return Services{
		Auth:        services.NewAuthService(db, log, r.User, metrics, cfg.SecretKey, cfg.AccessTokenTTL),
		Compounds:   services.NewCompoundService(db, log, aggs.Compounds, r.Compound),
		Predictions: services.NewPredictionService(db, log, aggs.Predictions, r.Prediction, r.PredictionBatch, r.Compound, r.Experiment, registry, q),
		Experiments: experiments,
		Import:      services.NewImportService(log, aggs.Compounds, r.Compound, clients.Registry),
		Reports:     services.NewReportService(log, r.Compound, r.Prediction, experiments, clients.Archive),
	}
}

type Handlers struct {
	Auth        *httpH.AuthHandler
	Compounds   *httpH.CompoundHandler
	Predictions *httpH.PredictionHandler
	Experiments *httpH.ExperimentHandler
	Reports     *httpH.ReportHandler
	Health      *httpH.HealthHandler
}

func wireHandlers(log *logger.Logger, s Services, ping httpH.Pinger) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Auth:        httpH.NewAuthHandler(s.Auth),
		Compounds:   httpH.NewCompoundHandler(s.Compounds, s.Import),
		Predictions: httpH.NewPredictionHandler(s.Predictions),
		Experiments: httpH.NewExperimentHandler(s.Experiments),
		Reports:     httpH.NewReportHandler(s.Reports),
		Health:      httpH.NewHealthHandler(ping),
	}
}

type Middleware struct {
	Auth        *httpMW.AuthMiddleware
	AuthLimiter *httpMW.RateLimiter
}

func wireMiddleware(log *logger.Logger, cfg Config, metrics *observability.Metrics, s Services) Middleware {
	log.Info("Wiring middleware...")
	return Middleware{
		Auth:        httpMW.NewAuthMiddleware(log, s.Auth),
		AuthLimiter: httpMW.NewRateLimiter(cfg.AuthRateLimit, 0, metrics),
	}
}
