package models

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const remoteURL = "http://models.test/predict"

func newRemote(t *testing.T, timeout time.Duration) (*Remote, *httpmock.MockTransport) {
	t.Helper()
	mt := httpmock.NewMockTransport()
	r, err := NewRemoteWithHTTPClient(RemoteConfig{
		ModelType: "toxicity",
		Name:      "tox-server",
		URL:       remoteURL,
		APIKey:    "k",
		Timeout:   timeout,
	}, &http.Client{Transport: mt})
	require.NoError(t, err)
	return r, mt
}

func TestRemotePredictSuccess(t *testing.T) {
	r, mt := newRemote(t, time.Second)
	mt.RegisterResponder(http.MethodPost, remoteURL, func(req *http.Request) (*http.Response, error) {
		var body remoteRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			return httpmock.NewStringResponse(http.StatusBadRequest, "bad body"), nil
		}
		if body.Smiles != "CCO" || body.ModelType != "toxicity" || req.Header.Get("Authorization") != "Bearer k" {
			return httpmock.NewStringResponse(http.StatusBadRequest, "unexpected request"), nil
		}
		return httpmock.NewJsonResponse(http.StatusOK, map[string]any{"value": 0.42, "confidence": 0.9})
	})

	res, err := r.Predict(context.Background(), Snapshot{Smiles: "CCO"})
	require.NoError(t, err)
	assert.Equal(t, 0.42, res.Value)
	assert.Equal(t, 0.9, res.Confidence)
	assert.Equal(t, "tox-server", res.ModelName)
	assert.Equal(t, 1, mt.GetTotalCallCount())
}

func TestRemotePredictClassifiesFailures(t *testing.T) {
	cases := []struct {
		name      string
		responder httpmock.Responder
		want      error
	}{
		{"server error", httpmock.NewStringResponder(http.StatusInternalServerError, "boom"), ErrUnavailable},
		{"unavailable", httpmock.NewStringResponder(http.StatusServiceUnavailable, ""), ErrUnavailable},
		{"throttled", httpmock.NewStringResponder(http.StatusTooManyRequests, ""), ErrUnavailable},
		{"bad request", httpmock.NewStringResponder(http.StatusBadRequest, "bad smiles"), ErrInvalidInput},
		{"unprocessable", httpmock.NewStringResponder(http.StatusUnprocessableEntity, ""), ErrInvalidInput},
		{"gateway timeout", httpmock.NewStringResponder(http.StatusGatewayTimeout, ""), ErrTimeout},
		{"transport", httpmock.NewErrorResponder(errors.New("connection refused")), ErrUnavailable},
		{"garbage body", httpmock.NewStringResponder(http.StatusOK, "not json"), ErrUnavailable},
		{"missing value", httpmock.NewStringResponder(http.StatusOK, `{"confidence":0.5}`), ErrUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r, mt := newRemote(t, time.Second)
			mt.RegisterResponder(http.MethodPost, remoteURL, tc.responder)
			_, err := r.Predict(context.Background(), Snapshot{Smiles: "CCO"})
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestRemotePredictDeadline(t *testing.T) {
	r, mt := newRemote(t, 20*time.Millisecond)
	mt.RegisterResponder(http.MethodPost, remoteURL, func(req *http.Request) (*http.Response, error) {
		<-req.Context().Done()
		return nil, req.Context().Err()
	})
	_, err := r.Predict(context.Background(), Snapshot{Smiles: "CCO"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestRemoteRejectsEmptyNotation(t *testing.T) {
	r, mt := newRemote(t, time.Second)
	_, err := r.Predict(context.Background(), Snapshot{})
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Zero(t, mt.GetTotalCallCount())
}
