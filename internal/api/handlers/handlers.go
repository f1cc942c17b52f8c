// Package handlers implements the HTTP handlers for the MathQuest coach
// service: the coaching request pipeline plus the learner progress
// endpoints (attempts, questions, streaks, stats, profile).
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/mathquest/coach-service/internal/api/middleware"
	"github.com/mathquest/coach-service/internal/coach"
	"github.com/mathquest/coach-service/internal/store"
	"github.com/mathquest/coach-service/pkg/contracts"
	"github.com/mathquest/coach-service/pkg/models"
)

// Handlers holds all handler dependencies.
type Handlers struct {
	Store     store.Store
	Generator contracts.CompletionGenerator // nil when no provider credential is configured
	Moderator contracts.ModerationGate
	Limiter   contracts.RateLimiter
	Cache     contracts.ResponseCache
}

// New creates a Handlers instance with all dependencies.
func New(s store.Store, gen contracts.CompletionGenerator, mod contracts.ModerationGate, lim contracts.RateLimiter, c contracts.ResponseCache) *Handlers {
	return &Handlers{
		Store:     s,
		Generator: gen,
		Moderator: mod,
		Limiter:   lim,
		Cache:     c,
	}
}

// coachResponse is the body of a successful coaching reply. LatencyMs is
// always present (zero for cache hits); Attempts only for fresh replies.
type coachResponse struct {
	Message      string           `json:"message"`
	Mode         models.CoachMode `json:"mode"`
	FinishReason *string          `json:"finishReason"`
	Usage        *models.Usage    `json:"usage"`
	Cached       bool             `json:"cached"`
	Attempts     int              `json:"attempts,omitempty"`
	LatencyMs    int64            `json:"latencyMs"`
}

// CoachChat is the coaching pipeline entry point. It sequences:
// credential check, decode, validate, rate limit, moderation, cache
// lookup, generation, cache store.
func (h *Handlers) CoachChat(w http.ResponseWriter, r *http.Request) {
	if h.Generator == nil {
		respondError(w, http.StatusServiceUnavailable, "Coach service is not configured. Set OPENAI_API_KEY.")
		return
	}

	var req models.CoachRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		respondJSON(w, http.StatusBadRequest, map[string]any{
			"error":   "Invalid request payload",
			"details": errs,
		})
		return
	}

	ctx := r.Context()

	decision := h.Limiter.Check(ctx, middleware.ClientIdentity(r))
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
	if !decision.Allowed {
		w.Header().Set("Retry-After", strconv.Itoa(decision.RetryAfterSeconds))
		respondJSON(w, http.StatusTooManyRequests, map[string]any{
			"error":             "Rate limit exceeded. Try again soon.",
			"retryAfterSeconds": decision.RetryAfterSeconds,
		})
		return
	}

	verdict := h.Moderator.Check(ctx, coach.ModerationInput(&req))
	if !verdict.Allowed {
		respondJSON(w, http.StatusBadRequest, map[string]any{
			"error":             "Message was flagged by content moderation",
			"flaggedCategories": verdict.FlaggedCategories,
		})
		return
	}

	key := h.Cache.Key(&req)
	if entry, ok := h.Cache.Get(ctx, key); ok {
		respondJSON(w, http.StatusOK, coachResponse{
			Message:      entry.Message,
			Mode:         entry.Mode,
			FinishReason: entry.FinishReason,
			Usage:        entry.Usage,
			Cached:       true,
		})
		return
	}

	result, err := h.Generator.Generate(ctx, &req)
	if err != nil {
		log.Error().Err(err).Str("mode", string(req.Mode)).Msg("coach generation failed")
		respondError(w, http.StatusInternalServerError, "Failed to contact coach")
		return
	}

	h.Cache.Put(ctx, key, models.NewCacheEntry(req.Mode, result))

	respondJSON(w, http.StatusOK, coachResponse{
		Message:      result.Message,
		Mode:         req.Mode,
		FinishReason: result.FinishReason,
		Usage:        result.Usage,
		Cached:       false,
		Attempts:     result.Attempts,
		LatencyMs:    result.LatencyMs,
	})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
