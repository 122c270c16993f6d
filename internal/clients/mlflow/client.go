// Package mlflow is a minimal client for the MLflow tracking REST API.
package mlflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/yungbote/compoundlab-backend/internal/observability"
	"github.com/yungbote/compoundlab-backend/internal/platform/httpx"
	"github.com/yungbote/compoundlab-backend/internal/platform/logger"
)

const (
	RunStatusFinished = "FINISHED"
	RunStatusFailed   = "FAILED"

	// MLflow rejects param values longer than this.
	maxParamValue = 6000
	maxTagValue   = 5000
)

type Client interface {
	GetOrCreateExperiment(ctx context.Context, name string) (string, error)
	CreateRun(ctx context.Context, experimentID, runName string, tags map[string]string) (string, error)
	LogBatch(ctx context.Context, runID string, params map[string]string, metrics map[string]float64, tags map[string]string) error
	UpdateRun(ctx context.Context, runID, status string) error
	// LogRun creates a finished run carrying params, metrics and tags.
	LogRun(ctx context.Context, req RunRequest) (string, error)
}

type Config struct {
	TrackingURI string
	Token       string
	Timeout     time.Duration
	Retry       httpx.RetryPolicy
}

type RunRequest struct {
	ExperimentName string
	RunName        string
	Params         map[string]string
	Metrics        map[string]float64
	Tags           map[string]string
}

type client struct {
	log        *logger.Logger
	cfg        Config
	httpClient *http.Client
	metrics    *observability.Metrics
	now        func() time.Time
}

func New(log *logger.Logger, cfg Config, metrics *observability.Metrics) (Client, error) {
	return NewWithHTTPClient(log, cfg, metrics, nil)
}

func NewWithHTTPClient(log *logger.Logger, cfg Config, metrics *observability.Metrics, httpClient *http.Client) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	cfg.TrackingURI = strings.TrimRight(strings.TrimSpace(cfg.TrackingURI), "/")
	if cfg.TrackingURI == "" {
		return nil, fmt.Errorf("missing MLFLOW_TRACKING_URI")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &client{
		log:        log.With("client", "MLflowClient"),
		cfg:        cfg,
		httpClient: httpClient,
		metrics:    metrics,
		now:        time.Now,
	}, nil
}

type HTTPError struct {
	StatusCode int
	ErrorCode  string
	Message    string
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "mlflow: <nil error>"
	}
	if e.ErrorCode != "" {
		return fmt.Sprintf("mlflow http %d: %s: %s", e.StatusCode, e.ErrorCode, e.Message)
	}
	return fmt.Sprintf("mlflow http %d: %s", e.StatusCode, e.Message)
}

func (e *HTTPError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

func isMissing(err error) bool {
	var he *HTTPError
	return errors.As(err, &he) && (he.ErrorCode == "RESOURCE_DOES_NOT_EXIST" || he.StatusCode == http.StatusNotFound)
}

func isAlreadyExists(err error) bool {
	var he *HTTPError
	return errors.As(err, &he) && he.ErrorCode == "RESOURCE_ALREADY_EXISTS"
}

type keyValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type metric struct {
	Key       string  `json:"key"`
	Value     float64 `json:"value"`
	Timestamp int64   `json:"timestamp"`
	Step      int64   `json:"step"`
}

func (c *client) GetOrCreateExperiment(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("experiment name required")
	}
	id, err := c.experimentByName(ctx, name)
	if err == nil {
		return id, nil
	}
	if !isMissing(err) {
		return "", err
	}

	var created struct {
		ExperimentID string `json:"experiment_id"`
	}
	err = c.do(ctx, "experiments.create", http.MethodPost, "/api/2.0/mlflow/experiments/create", map[string]any{"name": name}, &created)
	if isAlreadyExists(err) {
		// Lost a creation race with another caller.
		return c.experimentByName(ctx, name)
	}
	if err != nil {
		return "", err
	}
	return created.ExperimentID, nil
}

func (c *client) experimentByName(ctx context.Context, name string) (string, error) {
	var got struct {
		Experiment struct {
			ExperimentID string `json:"experiment_id"`
		} `json:"experiment"`
	}
	q := url.Values{"experiment_name": []string{name}}
	if err := c.do(ctx, "experiments.get_by_name", http.MethodGet, "/api/2.0/mlflow/experiments/get-by-name?"+q.Encode(), nil, &got); err != nil {
		return "", err
	}
	if got.Experiment.ExperimentID == "" {
		return "", &HTTPError{StatusCode: http.StatusNotFound, ErrorCode: "RESOURCE_DOES_NOT_EXIST", Message: "empty experiment"}
	}
	return got.Experiment.ExperimentID, nil
}

func (c *client) CreateRun(ctx context.Context, experimentID, runName string, tags map[string]string) (string, error) {
	body := map[string]any{
		"experiment_id": experimentID,
		"run_name":      runName,
		"start_time":    c.now().UnixMilli(),
		"tags":          toKeyValues(tags, maxTagValue),
	}
	var out struct {
		Run struct {
			Info struct {
				RunID string `json:"run_id"`
			} `json:"info"`
		} `json:"run"`
	}
	if err := c.do(ctx, "runs.create", http.MethodPost, "/api/2.0/mlflow/runs/create", body, &out); err != nil {
		return "", err
	}
	if out.Run.Info.RunID == "" {
		return "", fmt.Errorf("mlflow runs/create returned no run_id")
	}
	return out.Run.Info.RunID, nil
}

func (c *client) LogBatch(ctx context.Context, runID string, params map[string]string, metrics map[string]float64, tags map[string]string) error {
	ts := c.now().UnixMilli()
	ms := make([]metric, 0, len(metrics))
	for _, k := range sortedKeys(metrics) {
		ms = append(ms, metric{Key: k, Value: metrics[k], Timestamp: ts})
	}
	body := map[string]any{
		"run_id":  runID,
		"params":  toKeyValues(params, maxParamValue),
		"metrics": ms,
		"tags":    toKeyValues(tags, maxTagValue),
	}
	return c.do(ctx, "runs.log_batch", http.MethodPost, "/api/2.0/mlflow/runs/log-batch", body, nil)
}

func (c *client) UpdateRun(ctx context.Context, runID, status string) error {
	body := map[string]any{
		"run_id":   runID,
		"status":   status,
		"end_time": c.now().UnixMilli(),
	}
	return c.do(ctx, "runs.update", http.MethodPost, "/api/2.0/mlflow/runs/update", body, nil)
}

func (c *client) LogRun(ctx context.Context, req RunRequest) (string, error) {
	expID, err := c.GetOrCreateExperiment(ctx, req.ExperimentName)
	if err != nil {
		return "", err
	}
	runID, err := c.CreateRun(ctx, expID, req.RunName, map[string]string{"mlflow.runName": req.RunName})
	if err != nil {
		return "", err
	}
	if err := c.LogBatch(ctx, runID, req.Params, req.Metrics, req.Tags); err != nil {
		if uerr := c.UpdateRun(ctx, runID, RunStatusFailed); uerr != nil {
			c.log.Warn("Failed to mark MLflow run failed", "run_id", runID, "error", uerr)
		}
		return "", err
	}
	if err := c.UpdateRun(ctx, runID, RunStatusFinished); err != nil {
		return "", err
	}
	return runID, nil
}

func (c *client) do(ctx context.Context, op, method, path string, body any, out any) error {
	start := time.Now()
	_, err := httpx.Retry(ctx, c.cfg.Retry, func() (struct{}, error) {
		return struct{}{}, c.doOnce(ctx, method, path, body, out)
	}, func(err error, next time.Duration) {
		c.log.Warn("MLflow request retrying", "op", op, "sleep", next.String(), "error", err)
	})
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.metrics.ObserveExternalCall("mlflow", op, status, time.Since(start))
	return err
}

func (c *client) doOnce(ctx context.Context, method, path string, body any, out any) error {
	var buf io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		buf = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.TrackingURI+path, buf)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	_ = resp.Body.Close()
	if readErr != nil {
		return readErr
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			ErrorCode string `json:"error_code"`
			Message   string `json:"message"`
		}
		if json.Unmarshal(raw, &apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		return &HTTPError{StatusCode: resp.StatusCode, ErrorCode: apiErr.ErrorCode, Message: apiErr.Message}
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("mlflow decode error: %w", err)
	}
	return nil
}

func toKeyValues(m map[string]string, maxLen int) []keyValue {
	out := make([]keyValue, 0, len(m))
	for _, k := range sortedKeys(m) {
		v := m[k]
		if len(v) > maxLen {
			v = v[:maxLen]
		}
		out = append(out, keyValue{Key: k, Value: v})
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
