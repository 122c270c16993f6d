package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/compoundlab-backend/internal/http/handlers"
	httpMW "github.com/yungbote/compoundlab-backend/internal/http/middleware"
	"github.com/yungbote/compoundlab-backend/internal/observability"
	"github.com/yungbote/compoundlab-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	Metrics        *observability.Metrics
	CORSOrigins    []string
	TracingService string
	AuthLimiter    *httpMW.RateLimiter

	AuthHandler    *httpH.AuthHandler
	AuthMiddleware *httpMW.AuthMiddleware

	CompoundHandler   *httpH.CompoundHandler
	PredictionHandler *httpH.PredictionHandler
	ExperimentHandler *httpH.ExperimentHandler
	ReportHandler     *httpH.ReportHandler

	HealthHandler *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.TracingService != "" {
		r.Use(otelgin.Middleware(cfg.TracingService))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
		r.GET("/health", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	api := r.Group("/api/v1")
	{
		// Auth (public)
		if cfg.AuthHandler != nil {
			limited := api.Group("/auth", cfg.AuthLimiter.Middleware())
			limited.POST("/register", cfg.AuthHandler.Register)
			limited.POST("/login", cfg.AuthHandler.Login)
		}
	}

	protected := api.Group("/")
	{
		// Middleware
		if cfg.AuthMiddleware != nil {
			protected.Use(cfg.AuthMiddleware.RequireAuth())
		}

		if cfg.AuthHandler != nil {
			protected.GET("/auth/me", cfg.AuthHandler.Me)
		}

		// Compounds
		if cfg.CompoundHandler != nil {
			protected.GET("/compounds", cfg.CompoundHandler.List)
			protected.POST("/compounds", cfg.CompoundHandler.Create)
			protected.POST("/compounds/import/registry/:external_id", cfg.CompoundHandler.ImportFromRegistry)
			protected.GET("/compounds/:id", cfg.CompoundHandler.Get)
			protected.PUT("/compounds/:id", cfg.CompoundHandler.Update)
			protected.DELETE("/compounds/:id", cfg.CompoundHandler.Delete)
			protected.GET("/compounds/:id/versions", cfg.CompoundHandler.Versions)
			protected.POST("/compounds/:id/rollback/:version", cfg.CompoundHandler.Rollback)
		}

		// Predictions
		if cfg.PredictionHandler != nil {
			protected.GET("/models", cfg.PredictionHandler.Models)
			protected.GET("/predictions", cfg.PredictionHandler.List)
			protected.POST("/predictions", cfg.PredictionHandler.Create)
			protected.POST("/predictions/batch", cfg.PredictionHandler.CreateBatch)
			protected.GET("/predictions/batch/:id", cfg.PredictionHandler.GetBatch)
			protected.POST("/predictions/batch/:id/cancel", cfg.PredictionHandler.CancelBatch)
			protected.GET("/predictions/compound/:id", cfg.PredictionHandler.ListByCompound)
			protected.GET("/predictions/:id", cfg.PredictionHandler.Get)
		}

		// Experiments
		if cfg.ExperimentHandler != nil {
			protected.GET("/experiments", cfg.ExperimentHandler.List)
			protected.POST("/experiments", cfg.ExperimentHandler.Create)
			protected.GET("/experiments/:id", cfg.ExperimentHandler.Get)
			protected.PUT("/experiments/:id", cfg.ExperimentHandler.Update)
			protected.POST("/experiments/:id/log-to-mlflow", cfg.ExperimentHandler.LogToTracking)
		}

		// Reports
		if cfg.ReportHandler != nil {
			protected.GET("/reports/compounds/csv", cfg.ReportHandler.CompoundsCSV)
			protected.GET("/reports/predictions/csv", cfg.ReportHandler.PredictionsCSV)
			protected.GET("/reports/experiment/:id/pdf", cfg.ReportHandler.ExperimentPDF)
		}
	}

	return r
}
