// Package contracts defines the interfaces between the coach request
// pipeline's stages. Handlers depend on these rather than on concrete
// implementations so every stage can be stubbed in tests.
package contracts

import (
	"context"

	"github.com/mathquest/coach-service/pkg/models"
)

// CompletionGenerator produces a tutoring reply for a validated request.
// Implementations retry transient provider failures internally; the error
// returned is the final one after retries are exhausted.
type CompletionGenerator interface {
	Generate(ctx context.Context, req *models.CoachRequest) (*models.GenerationResult, error)
}

// ModerationGate classifies user-supplied text for safety. Classifier
// failures are converted to an allow verdict (fail-open), so Check never
// blocks a request for infrastructure reasons.
type ModerationGate interface {
	Check(ctx context.Context, input string) *models.ModerationVerdict
}

// RateLimiter enforces the per-identity fixed-window request cap. Loss of
// the distributed counter degrades to process-local counting rather than
// surfacing an error.
type RateLimiter interface {
	Check(ctx context.Context, identity string) *models.RateDecision
}

// ResponseCache stores completed replies keyed by request fingerprint.
type ResponseCache interface {
	// Key returns the fingerprint cache key for a request.
	Key(req *models.CoachRequest) string
	// Get returns the cached entry for key, or ok=false on a miss or an
	// expired entry.
	Get(ctx context.Context, key string) (*models.CacheEntry, bool)
	// Put stores entry under key with a refreshed CachedAt. Best effort;
	// storage failures are logged, not returned.
	Put(ctx context.Context, key string, entry *models.CacheEntry)
}
