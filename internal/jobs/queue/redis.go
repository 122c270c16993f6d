package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/compoundlab-backend/internal/platform/logger"
)

const (
	DefaultRedisKey = "compoundlab:predictions"
	popTimeout      = 2 * time.Second
	pushTimeout     = 2 * time.Second
)

// redisQueue shares one list across instances: LPUSH on submit, BRPOP in workers.
type redisQueue struct {
	log    *logger.Logger
	rdb    goredis.UniversalClient
	key    string
	closed chan struct{}
	once   sync.Once
}

// NewRedis connects from a redis:// URL and verifies the server with PING.
func NewRedis(ctx context.Context, baseLog *logger.Logger, url, key string) (Queue, goredis.UniversalClient, error) {
	if baseLog == nil {
		return nil, nil, fmt.Errorf("logger required")
	}
	opts, err := goredis.ParseURL(strings.TrimSpace(url))
	if err != nil {
		return nil, nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	rdb := goredis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisWithClient(baseLog, rdb, key), rdb, nil
}

func NewRedisWithClient(baseLog *logger.Logger, rdb goredis.UniversalClient, key string) Queue {
	if strings.TrimSpace(key) == "" {
		key = DefaultRedisKey
	}
	if baseLog == nil {
		baseLog = logger.NewNop()
	}
	return &redisQueue{
		log:    baseLog.With("component", "RedisPredictionQueue"),
		rdb:    rdb,
		key:    key,
		closed: make(chan struct{}),
	}
}

func (q *redisQueue) Enqueue(ctx context.Context, id uuid.UUID) error {
	select {
	case <-q.closed:
		return ErrClosed
	default:
	}
	pushCtx, cancel := context.WithTimeout(ctx, pushTimeout)
	defer cancel()
	return q.rdb.LPush(pushCtx, q.key, id.String()).Err()
}

func (q *redisQueue) Dequeue(ctx context.Context) (uuid.UUID, error) {
	for {
		select {
		case <-ctx.Done():
			return uuid.Nil, ctx.Err()
		case <-q.closed:
			return uuid.Nil, ErrClosed
		default:
		}
		res, err := q.rdb.BRPop(ctx, popTimeout, q.key).Result()
		if errors.Is(err, goredis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return uuid.Nil, ctx.Err()
			}
			return uuid.Nil, err
		}
		if len(res) != 2 {
			continue
		}
		id, err := uuid.Parse(res[1])
		if err != nil {
			q.log.Warn("Dropping malformed queue entry", "value", res[1], "error", err)
			continue
		}
		return id, nil
	}
}

func (q *redisQueue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.key).Result()
}

func (q *redisQueue) Close() error {
	q.once.Do(func() { close(q.closed) })
	return nil
}
