package observability

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/yungbote/compoundlab-backend/internal/platform/logger"
)

const namespace = "compoundlab"

// Metrics holds every prometheus collector the service exports. All methods
// are safe on a nil receiver so components can run without metrics.
type Metrics struct {
	registry *prometheus.Registry

	apiRequests *prometheus.CounterVec
	apiLatency  *prometheus.HistogramVec
	apiInflight prometheus.Gauge

	storeOps       *prometheus.CounterVec
	storeLatency   *prometheus.HistogramVec
	storeConflicts *prometheus.CounterVec
	storeRetries   *prometheus.CounterVec

	predictions     *prometheus.CounterVec
	predictionTries *prometheus.HistogramVec
	modelCalls      *prometheus.CounterVec
	modelLatency    *prometheus.HistogramVec
	queueDepth      *prometheus.GaugeVec
	queueDropped    prometheus.Counter

	externalCalls   *prometheus.CounterVec
	externalLatency *prometheus.HistogramVec

	securityEvents *prometheus.CounterVec
	dbStats        *prometheus.GaugeVec
	redisUp        prometheus.Gauge
}

// NewMetrics builds the collectors and registers them on a private registry.
func NewMetrics() (*Metrics, error) {
	m := &Metrics{registry: prometheus.NewRegistry()}
	m.initMetrics()
	cs := []prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.storeOps, m.storeLatency, m.storeConflicts, m.storeRetries,
		m.predictions, m.predictionTries, m.modelCalls, m.modelLatency, m.queueDepth, m.queueDropped,
		m.externalCalls, m.externalLatency,
		m.securityEvents, m.dbStats, m.redisUp,
	}
	for _, c := range cs {
		if err := m.registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) initMetrics() {
	m.apiRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "http_requests_total",
		Help: "HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})
	m.apiLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Name: "http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
	m.apiInflight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "http_inflight_requests",
		Help: "Requests currently being served.",
	})

	m.storeOps = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "store_operations_total",
		Help: "Aggregate write operations by name and outcome.",
	}, []string{"op", "status"})
	m.storeLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Name: "store_operation_duration_seconds",
		Help:    "Aggregate write latency including the transaction.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	}, []string{"op"})
	m.storeConflicts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "store_conflicts_total",
		Help: "Writes rejected by a compare-and-set guard.",
	}, []string{"op"})
	m.storeRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "store_retryable_errors_total",
		Help: "Writes that failed with a retryable database error.",
	}, []string{"op"})

	m.predictions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "predictions_total",
		Help: "Predictions finished by model type, status and reason.",
	}, []string{"model_type", "status", "reason"})
	m.predictionTries = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Name: "prediction_attempts",
		Help:    "Model attempts needed per finished prediction.",
		Buckets: []float64{1, 2, 3, 4, 5},
	}, []string{"model_type"})
	m.modelCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "model_calls_total",
		Help: "Model invocations by capability and outcome.",
	}, []string{"model_type", "model_name", "outcome"})
	m.modelLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Name: "model_call_duration_seconds",
		Help:    "Model invocation latency.",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
	}, []string{"model_type", "model_name"})
	m.queueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace, Name: "predictions_by_status",
		Help: "Stored predictions by status, sampled periodically.",
	}, []string{"status"})
	m.queueDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "queue_dropped_total",
		Help: "Enqueue attempts dropped because the queue was full.",
	})

	m.externalCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "external_calls_total",
		Help: "Outbound calls to external services.",
	}, []string{"service", "op", "status"})
	m.externalLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Name: "external_call_duration_seconds",
		Help:    "Outbound call latency including retries.",
		Buckets: prometheus.DefBuckets,
	}, []string{"service", "op"})

	m.securityEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "security_events_total",
		Help: "Authentication failures and rate limit rejections.",
	}, []string{"event"})
	m.dbStats = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace, Name: "db_pool",
		Help: "database/sql pool statistics.",
	}, []string{"stat"})
	m.redisUp = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "redis_up",
		Help: "Whether the last redis ping succeeded.",
	})
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	route = strings.TrimSpace(route)
	if route == "" {
		route = "unmatched"
	}
	m.apiRequests.WithLabelValues(method, route, status).Inc()
	m.apiLatency.WithLabelValues(method, route).Observe(dur.Seconds())
}

func (m *Metrics) ApiInflightInc() {
	if m != nil {
		m.apiInflight.Inc()
	}
}

func (m *Metrics) ApiInflightDec() {
	if m != nil {
		m.apiInflight.Dec()
	}
}

func (m *Metrics) ObserveStoreOperation(op, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.storeOps.WithLabelValues(op, status).Inc()
	m.storeLatency.WithLabelValues(op).Observe(dur.Seconds())
}

func (m *Metrics) IncStoreConflict(op string) {
	if m != nil {
		m.storeConflicts.WithLabelValues(op).Inc()
	}
}

func (m *Metrics) IncStoreRetry(op string) {
	if m != nil {
		m.storeRetries.WithLabelValues(op).Inc()
	}
}

func (m *Metrics) ObservePrediction(modelType, status, reason string, attempts int) {
	if m == nil {
		return
	}
	m.predictions.WithLabelValues(modelType, status, reason).Inc()
	if attempts > 0 {
		m.predictionTries.WithLabelValues(modelType).Observe(float64(attempts))
	}
}

func (m *Metrics) ObserveModelCall(modelType, modelName, outcome string, dur time.Duration) {
	if m == nil {
		return
	}
	m.modelCalls.WithLabelValues(modelType, modelName, outcome).Inc()
	m.modelLatency.WithLabelValues(modelType, modelName).Observe(dur.Seconds())
}

func (m *Metrics) IncQueueDropped() {
	if m != nil {
		m.queueDropped.Inc()
	}
}

func (m *Metrics) ObserveExternalCall(service, op, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.externalCalls.WithLabelValues(service, op, status).Inc()
	m.externalLatency.WithLabelValues(service, op).Observe(dur.Seconds())
}

func (m *Metrics) IncSecurityEvent(event string) {
	if m == nil {
		return
	}
	event = strings.TrimSpace(event)
	if event == "" {
		event = "unknown"
	}
	m.securityEvents.WithLabelValues(event).Inc()
}

func scrapeInterval() time.Duration {
	raw := strings.TrimSpace(os.Getenv("METRICS_SCRAPE_INTERVAL_SECONDS"))
	if raw == "" {
		return 15 * time.Second
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs <= 0 {
		return 15 * time.Second
	}
	return time.Duration(secs) * time.Second
}

func (m *Metrics) StartDBCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	interval := scrapeInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sqlDB, err := db.DB()
				if err != nil {
					if log != nil {
						log.Warn("metrics: db stats unavailable", "error", err)
					}
					continue
				}
				stats := sqlDB.Stats()
				m.dbStats.WithLabelValues("open_connections").Set(float64(stats.OpenConnections))
				m.dbStats.WithLabelValues("in_use").Set(float64(stats.InUse))
				m.dbStats.WithLabelValues("idle").Set(float64(stats.Idle))
				m.dbStats.WithLabelValues("wait_count").Set(float64(stats.WaitCount))
				m.dbStats.WithLabelValues("wait_duration_seconds").Set(stats.WaitDuration.Seconds())
			}
		}
	}()
}

func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, rdb redis.UniversalClient) {
	if m == nil || rdb == nil {
		return
	}
	interval := scrapeInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := rdb.Ping(ctx).Err(); err != nil {
					m.redisUp.Set(0)
					if log != nil {
						log.Warn("metrics: redis ping failed", "error", err)
					}
					continue
				}
				m.redisUp.Set(1)
			}
		}
	}()
}

// StatusCounter reports stored prediction counts keyed by status.
type StatusCounter func(ctx context.Context) (map[string]int64, error)

func (m *Metrics) StartPredictionCollector(ctx context.Context, log *logger.Logger, count StatusCounter) {
	if m == nil || count == nil {
		return
	}
	interval := scrapeInterval()
	statuses := []string{"pending", "done", "failed"}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rows, err := count(ctx)
				if err != nil {
					if log != nil {
						log.Warn("metrics: prediction status query failed", "error", err)
					}
					continue
				}
				for _, s := range statuses {
					m.queueDepth.WithLabelValues(s).Set(float64(rows[s]))
				}
			}
		}
	}()
}
