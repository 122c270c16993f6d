package httpx

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type statusErr int

func (s statusErr) Error() string       { return "status" }
func (s statusErr) HTTPStatusCode() int { return int(s) }

func TestIsRetryableError(t *testing.T) {
	assert.True(t, IsRetryableError(statusErr(503)))
	assert.True(t, IsRetryableError(statusErr(429)))
	assert.False(t, IsRetryableError(statusErr(404)))
	assert.True(t, IsRetryableError(context.DeadlineExceeded))
	assert.False(t, IsRetryableError(context.Canceled))
	assert.False(t, IsRetryableError(errors.New("decode")))
	assert.False(t, IsRetryableError(nil))
}

func TestRetryAfterDuration(t *testing.T) {
	resp := &http.Response{Header: http.Header{"Retry-After": []string{"3"}}}
	assert.Equal(t, 3*time.Second, RetryAfterDuration(resp, time.Second, 10*time.Second))
	assert.Equal(t, 2*time.Second, RetryAfterDuration(resp, time.Second, 2*time.Second))
	assert.Equal(t, time.Second, RetryAfterDuration(nil, time.Second, 0))
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), RetryPolicy{MaxAttempts: 5, Initial: time.Millisecond}, func() (int, error) {
		calls++
		return 0, statusErr(400)
	}, nil)
	assert.Equal(t, 1, calls)
	var sc HTTPStatusCoder
	assert.True(t, errors.As(err, &sc))
	assert.Equal(t, 400, sc.HTTPStatusCode())
}

func TestRetryRetriesTransient(t *testing.T) {
	calls := 0
	notified := 0
	out, err := Retry(context.Background(), RetryPolicy{MaxAttempts: 3, Initial: time.Millisecond}, func() (string, error) {
		calls++
		if calls < 3 {
			return "", statusErr(502)
		}
		return "ok", nil
	}, func(error, time.Duration) { notified++ })
	assert.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, notified)
}

func TestRetryGivesUp(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), RetryPolicy{MaxAttempts: 2, Initial: time.Millisecond}, func() (int, error) {
		calls++
		return 0, statusErr(500)
	}, nil)
	assert.Error(t, err)
	assert.Equal(t, 2, calls)
}
