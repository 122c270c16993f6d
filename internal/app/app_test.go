package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/compoundlab-backend/internal/domain"
	"github.com/yungbote/compoundlab-backend/internal/platform/logger"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		LogMode:              "test",
		Port:                 "0",
		SecretKey:            "test-secret",
		AccessTokenTTL:       30 * time.Minute,
		DBDriver:             "sqlite",
		DatabaseURL:          fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
		QueueSize:            64,
		Workers:              1,
		MaxAttempts:          2,
		ModelTimeout:         2 * time.Second,
		SweepInterval:        time.Hour,
		StaleClaim:           time.Hour,
		MLflowTrackingURI:    "http://mlflow.invalid",
		MLflowExperimentName: "drug_discovery",
		ChemblAPIURL:         "http://chembl.invalid/api/data",
		ChemblCacheTTL:       time.Minute,
		ChemblRPS:            5,
		AuthRateLimit:        1000,
	}
}

func newTestApp(t *testing.T) *App {
	t.Helper()
	gin.SetMode(gin.TestMode)
	a, err := build(context.Background(), logger.NewNop(), testConfig(t))
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

type client struct {
	t     *testing.T
	h     http.Handler
	token string
}

func (c *client) do(method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	c.t.Helper()
	var req *http.Request
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(c.t, err)
		req = httptest.NewRequest(method, path, strings.NewReader(string(raw)))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	c.h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func login(t *testing.T, c *client) {
	t.Helper()
	rec := c.do(http.MethodPost, "/api/v1/auth/register", map[string]string{
		"email":     "chemist@example.com",
		"password":  "correct-horse",
		"full_name": "Lab Chemist",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	form := url.Values{"username": {"chemist@example.com"}, "password": {"correct-horse"}}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	out := httptest.NewRecorder()
	c.h.ServeHTTP(out, req)
	require.Equal(t, http.StatusOK, out.Code, out.Body.String())

	tok := decode[struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}](t, out)
	require.NotEmpty(t, tok.AccessToken)
	assert.Equal(t, "bearer", strings.ToLower(tok.TokenType))
	c.token = tok.AccessToken
}

func TestUnauthenticatedRequestsTouchNothing(t *testing.T) {
	a := newTestApp(t)
	c := &client{t: t, h: a.Server.Engine}

	rec := c.do(http.MethodPost, "/api/v1/compounds", map[string]string{"name": "Ethanol", "smiles": "CCO"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))

	var n int64
	require.NoError(t, a.DB.Model(&domain.Compound{}).Count(&n).Error)
	assert.Zero(t, n)

	c.token = "not-a-jwt"
	rec = c.do(http.MethodGet, "/api/v1/compounds", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHealthEndpoints(t *testing.T) {
	a := newTestApp(t)
	c := &client{t: t, h: a.Server.Engine}

	for _, path := range []string{"/healthcheck", "/health"} {
		rec := c.do(http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, "healthy", decode[map[string]string](t, rec)["status"])
	}
	rec := c.do(http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCompoundLifecycleOverHTTP(t *testing.T) {
	a := newTestApp(t)
	c := &client{t: t, h: a.Server.Engine}
	login(t, c)

	rec := c.do(http.MethodPost, "/api/v1/compounds", map[string]any{"name": "Ethanol", "smiles": "CCO"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[domain.Compound](t, rec)
	assert.Equal(t, 1, created.CurrentVersion)
	base := "/api/v1/compounds/" + created.ID.String()

	rec = c.do(http.MethodPut, base, map[string]any{"version": 1, "name": "Ethyl alcohol"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, `"2"`, rec.Header().Get("ETag"))
	assert.Equal(t, "Ethyl alcohol", decode[domain.Compound](t, rec).Name)

	// A writer still holding version 1 loses.
	rec = c.do(http.MethodPut, base, map[string]any{"name": "Stale"}, "If-Match", `W/"1"`)
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	assert.Equal(t, "conflict", decode[struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}](t, rec).Error.Code)

	rec = c.do(http.MethodPost, base+"/rollback/1", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rolled := decode[domain.Compound](t, rec)
	assert.Equal(t, "Ethanol", rolled.Name)
	assert.Equal(t, 3, rolled.CurrentVersion)

	rec = c.do(http.MethodGet, base+"/versions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]domain.CompoundVersion](t, rec), 3)

	rec = c.do(http.MethodGet, "/api/v1/compounds?limit=0", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = c.do(http.MethodDelete, base, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = c.do(http.MethodGet, base, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBatchPredictionCompletesThroughWorkers(t *testing.T) {
	a := newTestApp(t)
	c := &client{t: t, h: a.Server.Engine}
	login(t, c)

	var ids []uuid.UUID
	for _, s := range []string{"CCO", "c1ccccc1"} {
		rec := c.do(http.MethodPost, "/api/v1/compounds", map[string]any{"name": s, "smiles": s})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		ids = append(ids, decode[domain.Compound](t, rec).ID)
	}

	rec := c.do(http.MethodPost, "/api/v1/predictions/batch", map[string]any{
		"compound_ids": ids,
		"model_type":   "solubility",
	})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	type batchView struct {
		ID     uuid.UUID `json:"id"`
		Counts struct {
			Total int `json:"total"`
			Done  int `json:"done"`
		} `json:"counts"`
	}
	batch := decode[batchView](t, rec)
	require.Equal(t, 2, batch.Counts.Total)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.pool.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	require.Eventually(t, func() bool {
		rec := c.do(http.MethodGet, "/api/v1/predictions/batch/"+batch.ID.String(), nil)
		var view batchView
		if rec.Code != http.StatusOK || json.Unmarshal(rec.Body.Bytes(), &view) != nil {
			return false
		}
		return view.Counts.Done == 2
	}, 5*time.Second, 20*time.Millisecond)

	rec = c.do(http.MethodGet, "/api/v1/reports/predictions/csv", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
	assert.Equal(t, 3, strings.Count(strings.TrimSpace(rec.Body.String()), "\n")+1)
}
