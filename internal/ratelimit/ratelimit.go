// Package ratelimit implements the per-client fixed-window request
// limiter: redis-backed when configured, with a process-local counter as
// the degraded-but-available fallback.
package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/mathquest/coach-service/pkg/models"
)

const keyPrefix = "coach:rl:"

type windowState struct {
	count   int
	resetAt time.Time
}

// Limiter is a fixed-window counter keyed by client identity. The redis
// path uses an atomic INCR with an expiry set on the window's first hit;
// the local path is a mutex-guarded map. Redis failures fall back to the
// local counter rather than blocking requests.
type Limiter struct {
	limit  int
	window time.Duration
	rdb    *redis.Client // nil when redis is not configured

	mu    sync.Mutex
	local map[string]*windowState

	now func() time.Time
}

// NewLimiter creates a limiter. rdb may be nil, in which case only the
// process-local counter is used (single-instance accuracy only).
func NewLimiter(limit int, window time.Duration, rdb *redis.Client) *Limiter {
	return &Limiter{
		limit:  limit,
		window: window,
		rdb:    rdb,
		local:  make(map[string]*windowState),
		now:    time.Now,
	}
}

// Check counts one request for identity and reports whether it is allowed
// within the current window.
func (l *Limiter) Check(ctx context.Context, identity string) *models.RateDecision {
	if l.rdb != nil {
		decision, err := l.checkRedis(ctx, identity)
		if err == nil {
			return decision
		}
		log.Warn().Err(err).Msg("redis rate limiter unavailable, using local counter")
	}
	return l.checkLocal(identity)
}

// Sweep drops closed windows from the local counter and reports how many
// were removed. Redis keys expire server-side; the local map otherwise
// only resets a window when its identity is seen again.
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for identity, state := range l.local {
		if !state.resetAt.After(now) {
			delete(l.local, identity)
			removed++
		}
	}
	return removed
}

func (l *Limiter) checkRedis(ctx context.Context, identity string) (*models.RateDecision, error) {
	key := keyPrefix + identity

	count, err := l.rdb.Incr(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	if count == 1 {
		if err := l.rdb.Expire(ctx, key, l.window).Err(); err != nil {
			return nil, err
		}
	}

	if count > int64(l.limit) {
		retryAfter := int(l.window / time.Second)
		if ttl, err := l.rdb.TTL(ctx, key).Result(); err == nil && ttl > 0 {
			retryAfter = int(math.Ceil(ttl.Seconds()))
		}
		return &models.RateDecision{
			Allowed:           false,
			Remaining:         0,
			Limit:             l.limit,
			RetryAfterSeconds: retryAfter,
		}, nil
	}

	return &models.RateDecision{
		Allowed:   true,
		Remaining: max(0, l.limit-int(count)),
		Limit:     l.limit,
	}, nil
}

func (l *Limiter) checkLocal(identity string) *models.RateDecision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	state, ok := l.local[identity]
	if !ok || !state.resetAt.After(now) {
		l.local[identity] = &windowState{count: 1, resetAt: now.Add(l.window)}
		return &models.RateDecision{
			Allowed:   true,
			Remaining: max(0, l.limit-1),
			Limit:     l.limit,
		}
	}

	state.count++
	if state.count > l.limit {
		return &models.RateDecision{
			Allowed:           false,
			Remaining:         0,
			Limit:             l.limit,
			RetryAfterSeconds: int(math.Ceil(state.resetAt.Sub(now).Seconds())),
		}
	}

	return &models.RateDecision{
		Allowed:   true,
		Remaining: max(0, l.limit-state.count),
		Limit:     l.limit,
	}
}
