package redisx

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// RateLimiter decides whether key may perform one more action in the
// current window.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

type Limiter struct {
	c      *Client
	limit  int64
	window time.Duration
	logger *zap.Logger
}

func NewLimiter(c *Client, limit int64, window time.Duration, logger *zap.Logger) *Limiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Limiter{c: c, limit: limit, window: window, logger: logger}
}

// Allow counts one hit against key in a fixed window that starts at the
// key's first hit. SET NX creates the counter with its TTL; INCR keeps the
// TTL, so later hits never extend the window. A Redis failure lets the
// request through.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, error) {
	if l.limit <= 0 {
		return true, nil
	}

	k := "rl:" + key
	pipe := l.c.R.TxPipeline()
	pipe.SetNX(ctx, k, 0, l.window)
	incr := pipe.Incr(ctx, k)
	if _, err := pipe.Exec(ctx); err != nil {
		l.logger.Warn("rate limiter unavailable", zap.String("key", key), zap.Error(err))
		return true, nil
	}
	return incr.Val() <= l.limit, nil
}

// LocalLimiter is a fixed-window counter kept in process memory.
type LocalLimiter struct {
	mu     sync.Mutex
	limit  int64
	window time.Duration
	hits   map[string]*bucket
	now    func() time.Time
}

type bucket struct {
	start time.Time
	n     int64
}

func NewLocalLimiter(limit int64, window time.Duration) *LocalLimiter {
	return &LocalLimiter{
		limit:  limit,
		window: window,
		hits:   make(map[string]*bucket),
		now:    time.Now,
	}
}

func (l *LocalLimiter) Allow(_ context.Context, key string) (bool, error) {
	if l.limit <= 0 {
		return true, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.hits[key]
	if !ok || now.Sub(w.start) >= l.window {
		w = &bucket{start: now}
		l.hits[key] = w
	}
	w.n++
	return w.n <= l.limit, nil
}
