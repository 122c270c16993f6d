// Package sweeper recovers predictions the queue lost: ids dropped from a full
// queue, and claims held by workers that died mid-item.
package sweeper

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/compoundlab-backend/internal/data/repos"
	"github.com/yungbote/compoundlab-backend/internal/jobs/queue"
	"github.com/yungbote/compoundlab-backend/internal/platform/logger"
)

type Config struct {
	Interval   time.Duration
	StaleAfter time.Duration
	BatchSize  int
}

type Sweeper struct {
	db          *gorm.DB
	log         *logger.Logger
	predictions repos.PredictionRepo
	queue       queue.Queue
	cfg         Config
}

func New(db *gorm.DB, baseLog *logger.Logger, predictions repos.PredictionRepo, q queue.Queue, cfg Config) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 10 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	return &Sweeper{
		db:          db,
		log:         baseLog.With("component", "PredictionSweeper"),
		predictions: predictions,
		queue:       q,
		cfg:         cfg,
	}
}

// Run sweeps once immediately, then on every interval until ctx ends.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
			s.log.Warn("Sweep failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

type Result struct {
	Released  int64
	Requeued  int
	QueueFull bool
}

// Sweep releases stale claims and re-enqueues unclaimed pending predictions.
// Re-enqueueing an id that is still queued is harmless: workers claim before
// running.
func (s *Sweeper) Sweep(ctx context.Context) (Result, error) {
	var res Result
	released, err := s.predictions.ReleaseStaleClaims(ctx, s.db, time.Now().UTC().Add(-s.cfg.StaleAfter))
	if err != nil {
		return res, err
	}
	res.Released = released
	if released > 0 {
		s.log.Warn("Released stale prediction claims", "count", released)
	}

	ids, err := s.predictions.ListUnclaimedPendingIDs(ctx, s.db, s.cfg.BatchSize)
	if err != nil {
		return res, err
	}
	for _, id := range ids {
		if err := s.queue.Enqueue(ctx, id); err != nil {
			if errors.Is(err, queue.ErrFull) {
				res.QueueFull = true
				break
			}
			return res, err
		}
		res.Requeued++
	}
	if res.Requeued > 0 {
		s.log.Debug("Re-enqueued pending predictions", "count", res.Requeued, "queue_full", res.QueueFull)
	}
	return res, nil
}
