package models

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/yungbote/compoundlab-backend/internal/domain/prediction"
)

type RemoteConfig struct {
	ModelType string
	Name      string
	URL       string
	APIKey    string
	Timeout   time.Duration
}

// Remote calls an HTTP JSON model server:
// POST {url} {"smiles","model_type","model_name"} -> {"value","confidence","details"}.
type Remote struct {
	modelType  string
	name       string
	url        string
	apiKey     string
	timeout    time.Duration
	httpClient *http.Client
}

type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "model server http error"
	}
	if e.Body == "" {
		return fmt.Sprintf("model server http error: status=%d", e.StatusCode)
	}
	return fmt.Sprintf("model server http error: status=%d body=%s", e.StatusCode, e.Body)
}

func NewRemote(cfg RemoteConfig) (*Remote, error) {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		return nil, errors.New("remote model: url required")
	}
	t := prediction.NormalizeModelType(cfg.ModelType)
	if t == "" || strings.TrimSpace(cfg.Name) == "" {
		return nil, errors.New("remote model: type and name required")
	}
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        50,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	return &Remote{
		modelType:  t,
		name:       strings.TrimSpace(cfg.Name),
		url:        url,
		apiKey:     strings.TrimSpace(cfg.APIKey),
		timeout:    cfg.Timeout,
		httpClient: &http.Client{Transport: tr},
	}, nil
}

// NewRemoteWithHTTPClient is intended for tests.
func NewRemoteWithHTTPClient(cfg RemoteConfig, httpClient *http.Client) (*Remote, error) {
	r, err := NewRemote(cfg)
	if err != nil {
		return nil, err
	}
	if httpClient != nil {
		r.httpClient = httpClient
	}
	return r, nil
}

func (r *Remote) ModelType() string { return r.modelType }
func (r *Remote) Name() string      { return r.name }

type remoteRequest struct {
	Smiles    string `json:"smiles"`
	ModelType string `json:"model_type"`
	ModelName string `json:"model_name,omitempty"`
}

type remoteResponse struct {
	Value      *float64       `json:"value"`
	Confidence *float64       `json:"confidence"`
	Details    map[string]any `json:"details,omitempty"`
}

func (r *Remote) Predict(ctx context.Context, in Snapshot) (Result, error) {
	if strings.TrimSpace(in.Smiles) == "" {
		return Result{}, InvalidInput("empty structure notation")
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(remoteRequest{Smiles: in.Smiles, ModelType: r.modelType, ModelName: r.name}); err != nil {
		return Result{}, InvalidInput("encode request: %v", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, &buf)
	if err != nil {
		return Result{}, Unavailable(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Result{}, Timeout(err)
		}
		return Result{}, Unavailable(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		herr := &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
		switch {
		case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusGatewayTimeout:
			return Result{}, Timeout(herr)
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return Result{}, Unavailable(herr)
		default:
			return Result{}, &Failure{Kind: KindInvalidInput, Err: herr}
		}
	}

	var out remoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Result{}, Unavailable(fmt.Errorf("decode response: %w", err))
	}
	if out.Value == nil {
		return Result{}, Unavailable(errors.New("response missing value"))
	}
	conf := 0.0
	if out.Confidence != nil {
		conf = *out.Confidence
	}
	details := out.Details
	if details == nil {
		details = map[string]any{}
	}
	details["model_type"] = r.modelType
	details["model_name"] = r.name
	return Result{Value: *out.Value, Confidence: conf, ModelName: r.name, Details: details}, nil
}
