package app

import (
	"context"
	"time"

	"github.com/yungbote/compoundlab-backend/internal/observability"
	"github.com/yungbote/compoundlab-backend/internal/platform/archive"
)

type instrumentedArchive struct {
	inner   archive.Store
	metrics *observability.Metrics
}

func instrumentArchive(inner archive.Store, metrics *observability.Metrics) archive.Store {
	if inner == nil {
		return nil
	}
	return &instrumentedArchive{inner: inner, metrics: metrics}
}

func (s *instrumentedArchive) Kind() string { return s.inner.Kind() }

func (s *instrumentedArchive) Put(ctx context.Context, key, contentType string, data []byte) error {
	start := time.Now()
	err := s.inner.Put(ctx, key, contentType, data)
	s.observe("put", err, time.Since(start))
	return err
}

func (s *instrumentedArchive) observe(operation string, err error, dur time.Duration) {
	if s == nil || s.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	s.metrics.ObserveExternalCall("archive", s.inner.Kind()+"."+operation, status, dur)
}
