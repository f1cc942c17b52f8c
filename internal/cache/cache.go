// Package cache implements the read-through response cache for completed
// coach replies: a redis store when configured, always mirrored by a
// process-local map with TTL eviction.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/mathquest/coach-service/pkg/models"
)

const keyPrefix = "coach:response:"

// fingerprintPayload is the canonical serialization digested into a cache
// key. Field order is fixed by the struct; any change to conversation
// content, mode, context, or the active model produces a different key.
type fingerprintPayload struct {
	Mode           models.CoachMode        `json:"mode"`
	Messages       []models.CoachMessage   `json:"messages"`
	Topic          string                  `json:"topic,omitempty"`
	Question       *models.QuestionContext `json:"question,omitempty"`
	AttemptSummary *models.AttemptSummary  `json:"attemptSummary,omitempty"`
	Model          string                  `json:"model"`
}

// Fingerprint returns the cache key for a request under the given model.
func Fingerprint(req *models.CoachRequest, model string) string {
	raw, err := json.Marshal(fingerprintPayload{
		Mode:           req.Mode,
		Messages:       req.Messages,
		Topic:          req.Topic,
		Question:       req.Question,
		AttemptSummary: req.AttemptSummary,
		Model:          model,
	})
	if err != nil {
		// The payload is plain data; marshalling cannot fail in practice.
		raw = []byte(model)
	}
	sum := sha256.Sum256(raw)
	return keyPrefix + hex.EncodeToString(sum[:])
}

// Layer is the dual-store response cache. Reads consult redis first (when
// configured), then the local mirror; writes go through to both.
type Layer struct {
	model string
	ttl   time.Duration
	rdb   *redis.Client // nil when redis is not configured

	mu    sync.Mutex
	local map[string]*models.CacheEntry

	now func() time.Time
}

// NewLayer creates a cache layer. rdb may be nil, in which case only the
// process-local store is used.
func NewLayer(model string, ttl time.Duration, rdb *redis.Client) *Layer {
	return &Layer{
		model: model,
		ttl:   ttl,
		rdb:   rdb,
		local: make(map[string]*models.CacheEntry),
		now:   time.Now,
	}
}

// Key returns the fingerprint cache key for a request.
func (l *Layer) Key(req *models.CoachRequest) string {
	return Fingerprint(req, l.model)
}

// Get returns the cached entry for key. Redis hits are returned as-is;
// local entries older than the TTL are evicted and treated as misses.
func (l *Layer) Get(ctx context.Context, key string) (*models.CacheEntry, bool) {
	if l.rdb != nil {
		raw, err := l.rdb.Get(ctx, key).Bytes()
		switch {
		case err == nil:
			var entry models.CacheEntry
			if jsonErr := json.Unmarshal(raw, &entry); jsonErr == nil {
				return &entry, true
			}
			log.Warn().Str("key", key).Msg("discarding unreadable cached coach response")
		case err != redis.Nil:
			log.Warn().Err(err).Msg("redis cache read failed, falling back to local cache")
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.local[key]
	if !ok {
		return nil, false
	}
	if l.now().Sub(entry.CachedAt) > l.ttl {
		delete(l.local, key)
		return nil, false
	}
	copy := *entry
	return &copy, true
}

// Sweep drops expired entries from the local mirror and reports how many
// were removed. Redis entries expire server-side; the mirror otherwise
// only evicts on access.
func (l *Layer) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for key, entry := range l.local {
		if now.Sub(entry.CachedAt) > l.ttl {
			delete(l.local, key)
			removed++
		}
	}
	return removed
}

// Put stores entry under key with a refreshed CachedAt, writing through to
// redis when configured and always updating the local mirror.
func (l *Layer) Put(ctx context.Context, key string, entry *models.CacheEntry) {
	stamped := *entry
	stamped.CachedAt = l.now().UTC()

	if l.rdb != nil {
		if raw, err := json.Marshal(stamped); err == nil {
			if err := l.rdb.Set(ctx, key, raw, l.ttl).Err(); err != nil {
				log.Warn().Err(err).Msg("redis cache write failed")
			}
		}
	}

	l.mu.Lock()
	l.local[key] = &stamped
	l.mu.Unlock()
}
