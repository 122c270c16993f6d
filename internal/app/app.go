package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/yungbote/compoundlab-backend/internal/data/db"
	httpserver "github.com/yungbote/compoundlab-backend/internal/http"
	"github.com/yungbote/compoundlab-backend/internal/jobs/queue"
	"github.com/yungbote/compoundlab-backend/internal/jobs/sweeper"
	"github.com/yungbote/compoundlab-backend/internal/jobs/worker"
	"github.com/yungbote/compoundlab-backend/internal/observability"
	"github.com/yungbote/compoundlab-backend/internal/platform/logger"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Cfg      Config
	Metrics  *observability.Metrics
	Repos    Repos
	Services Services
	Queue    queue.Queue
	Server   *httpserver.Server

	dbService    *db.Service
	redis        goredis.UniversalClient
	pool         *worker.Pool
	sweeper      *sweeper.Sweeper
	shutdownOTel func(context.Context) error
}

// New wires the full process: storage, queue, clients, services, the worker
// pool and the HTTP server. Nothing runs until Run is called.
func New(ctx context.Context, cfg Config) (*App, error) {
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return build(ctx, log, cfg)
}

func build(ctx context.Context, log *logger.Logger, cfg Config) (a *App, err error) {
	a = &App{Log: log, Cfg: cfg}
	defer func() {
		if err != nil {
			a.Close()
			a = nil
		}
	}()

	a.Metrics, err = observability.NewMetrics()
	if err != nil {
		return a, fmt.Errorf("init metrics: %w", err)
	}
	a.shutdownOTel = observability.InitOTel(ctx, log, observability.OtelConfig{
		Enabled:     cfg.OtelEnabled,
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
		Endpoint:    cfg.OtelEndpoint,
		Insecure:    cfg.OtelInsecure,
		SampleRatio: cfg.OtelSampleRatio,
	})

	a.dbService, err = OpenDatabase(log, cfg)
	if err != nil {
		return a, err
	}
	a.DB = a.dbService.DB()

	a.Repos = wireRepos(a.DB, log)
	aggs := wireAggregates(a.DB, log, a.Metrics, a.Repos)

	registry, invoker, err := wireModels(log, cfg, a.Metrics)
	if err != nil {
		return a, err
	}

	if strings.TrimSpace(cfg.RedisURL) != "" {
		a.Queue, a.redis, err = queue.NewRedis(ctx, log, cfg.RedisURL, cfg.QueueKey)
		if err != nil {
			return a, fmt.Errorf("init redis queue: %w", err)
		}
	} else {
		log.Info("REDIS_URL not set; using in-process prediction queue", "size", cfg.QueueSize)
		a.Queue = queue.NewMemory(cfg.QueueSize, a.Metrics)
	}

	clients, err := wireClients(ctx, log, cfg, a.Metrics)
	if err != nil {
		return a, err
	}
	a.Services = wireServices(a.DB, log, cfg, a.Metrics, a.Repos, aggs, clients, registry, a.Queue)

	a.pool = worker.NewPool(worker.Deps{
		DB:          a.DB,
		Log:         log,
		Queue:       a.Queue,
		Predictions: a.Repos.Prediction,
		Compounds:   a.Repos.Compound,
		Invoker:     invoker,
		Metrics:     a.Metrics,
	}, worker.Config{
		Concurrency: cfg.Workers,
		MaxAttempts: cfg.MaxAttempts,
	})
	a.sweeper = sweeper.New(a.DB, log, a.Repos.Prediction, a.Queue, sweeper.Config{
		Interval:   cfg.SweepInterval,
		StaleAfter: cfg.StaleClaim,
	})

	handlers := wireHandlers(log, a.Services, a.ping)
	mw := wireMiddleware(log, cfg, a.Metrics, a.Services)
	tracing := ""
	if cfg.OtelEnabled {
		tracing = cfg.ServiceName
	}
	a.Server = httpserver.NewServer(httpserver.RouterConfig{
		Log:               log,
		Metrics:           a.Metrics,
		CORSOrigins:       cfg.CORSOrigins,
		TracingService:    tracing,
		AuthLimiter:       mw.AuthLimiter,
		AuthHandler:       handlers.Auth,
		AuthMiddleware:    mw.Auth,
		CompoundHandler:   handlers.Compounds,
		PredictionHandler: handlers.Predictions,
		ExperimentHandler: handlers.Experiments,
		ReportHandler:     handlers.Reports,
		HealthHandler:     handlers.Health,
	})
	return a, nil
}

// OpenDatabase connects and migrates the schema.
func OpenDatabase(log *logger.Logger, cfg Config) (*db.Service, error) {
	svc, err := db.NewService(log, db.Config{Driver: cfg.DBDriver, URL: cfg.DatabaseURL})
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	if err := svc.AutoMigrateAll(); err != nil {
		_ = svc.Close()
		return nil, fmt.Errorf("database automigrate: %w", err)
	}
	return svc, nil
}

func (a *App) ping(ctx context.Context) error {
	sqlDB, err := a.DB.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if a.redis != nil {
		if err := a.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

// Run serves HTTP and processes predictions until ctx is cancelled or a
// component fails.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.Server == nil {
		return errors.New("app not initialized")
	}
	g, gctx := errgroup.WithContext(ctx)

	a.Metrics.StartDBCollector(gctx, a.Log, a.DB)
	a.Metrics.StartRedisCollector(gctx, a.Log, a.redis)
	a.Metrics.StartPredictionCollector(gctx, a.Log, func(ctx context.Context) (map[string]int64, error) {
		return a.Repos.Prediction.CountByStatus(ctx, a.DB)
	})

	g.Go(func() error {
		return a.Server.Run(gctx, net.JoinHostPort("", a.Cfg.Port), a.Cfg.ShutdownTimeout)
	})
	g.Go(func() error { return a.pool.Run(gctx) })
	g.Go(func() error { return a.sweeper.Run(gctx) })
	return g.Wait()
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.Queue != nil {
		if err := a.Queue.Close(); err != nil && !errors.Is(err, queue.ErrClosed) {
			a.Log.Warn("Queue close failed", "error", err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			a.Log.Warn("Redis close failed", "error", err)
		}
	}
	if a.dbService != nil {
		if err := a.dbService.Close(); err != nil {
			a.Log.Warn("Database close failed", "error", err)
		}
	}
	if a.shutdownOTel != nil {
		if err := a.shutdownOTel(context.Background()); err != nil {
			a.Log.Warn("OTel shutdown failed", "error", err)
		}
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
