package redisx

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// IdempotencyStore records that a key has been used. Claim reports true the
// first time a key is seen within ttl and false for every repeat. Release
// gives a claimed key back when the request it guarded did not complete, so
// the client can retry with the same key.
type IdempotencyStore interface {
	Claim(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

type Idempotency struct {
	c      *Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewIdempotency(c *Client, ttl time.Duration, logger *zap.Logger) *Idempotency {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Idempotency{c: c, ttl: ttl, logger: logger}
}

func (s *Idempotency) Claim(ctx context.Context, key string) (bool, error) {
	ok, err := s.c.R.SetNX(ctx, "idem:"+key, "1", s.ttl).Result()
	if err != nil {
		s.logger.Warn("idempotency store unavailable", zap.String("key", key), zap.Error(err))
		return true, nil
	}
	return ok, nil
}

func (s *Idempotency) Release(ctx context.Context, key string) error {
	if err := s.c.R.Del(ctx, "idem:"+key).Err(); err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}

// LocalIdempotency keeps claimed keys in process memory until they expire.
type LocalIdempotency struct {
	mu   sync.Mutex
	ttl  time.Duration
	keys map[string]time.Time
	now  func() time.Time
}

func NewLocalIdempotency(ttl time.Duration) *LocalIdempotency {
	return &LocalIdempotency{ttl: ttl, keys: make(map[string]time.Time), now: time.Now}
}

func (s *LocalIdempotency) Claim(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if exp, ok := s.keys[key]; ok && now.Before(exp) {
		return false, nil
	}
	s.keys[key] = now.Add(s.ttl)

	// Sweep opportunistically so the map does not grow without bound.
	if len(s.keys) > 10000 {
		for k, exp := range s.keys {
			if !now.Before(exp) {
				delete(s.keys, k)
			}
		}
	}
	return true, nil
}

func (s *LocalIdempotency) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, key)
	return nil
}
