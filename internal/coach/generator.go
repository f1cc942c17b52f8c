// Package coach implements the AI coaching pipeline stages: prompt
// construction, completion generation over two provider calling
// conventions, and content moderation.
package coach

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"github.com/mathquest/coach-service/internal/config"
	"github.com/mathquest/coach-service/pkg/models"
)

// completion is the backend-agnostic result of a single provider call.
type completion struct {
	text         string
	finishReason *string
	usage        *models.Usage
}

// backend is one provider calling convention. The active one is selected
// once at startup from the configured model identifier.
type backend interface {
	Name() string
	Complete(ctx context.Context, instructions string, turns []models.CoachMessage, mode models.CoachMode) (*completion, error)
}

// Generator orchestrates provider calls: it builds the backend input from
// the prompt builder's output and retries transient failures with
// exponential backoff.
type Generator struct {
	backend    backend
	maxRetries int
	retryBase  time.Duration
	retryCap   time.Duration
}

// usesResponsesAPI reports whether the model is served through the
// job-style responses convention.
func usesResponsesAPI(model string) bool {
	return strings.HasPrefix(strings.ToLower(model), "gpt-5")
}

// NewGenerator builds a generator for the configured model, picking the
// calling convention from the model identifier.
func NewGenerator(cfg config.ProviderConfig) *Generator {
	var b backend
	if usesResponsesAPI(cfg.Model) {
		b = newResponsesBackend(cfg.APIKey, cfg.Model,
			WithPollInterval(cfg.PollInterval),
			WithCompletionDeadline(cfg.ResponseTimeout),
		)
	} else {
		b = newChatBackend(cfg.APIKey, cfg.Model)
	}
	return NewGeneratorWithBackend(b, cfg)
}

// NewGeneratorWithBackend builds a generator around an explicit backend.
// Tests use this to point at stub servers.
func NewGeneratorWithBackend(b backend, cfg config.ProviderConfig) *Generator {
	return &Generator{
		backend:    b,
		maxRetries: cfg.MaxRetries,
		retryBase:  cfg.RetryBase,
		retryCap:   cfg.RetryCap,
	}
}

// Generate produces a coaching reply for a validated request. Up to
// maxRetries+1 attempts are made; each failed attempt waits base*2^(n-1)
// capped at retryCap before the next. A response with no extractable text
// counts as a failure and is retried. A poll timeout is permanent.
func (g *Generator) Generate(ctx context.Context, req *models.CoachRequest) (*models.GenerationResult, error) {
	instructions := BuildInstructions(req)
	turns := ConversationTurns(req)
	if len(turns) == 0 {
		// Validation guarantees at least one message, but an all-system
		// conversation leaves no turns to send.
		turns = []models.CoachMessage{{Role: models.RoleUser, Content: "I need help with SAT math practice."}}
	}

	start := time.Now()
	attempts := 0
	var result *completion

	op := func() error {
		attempts++
		c, err := g.backend.Complete(ctx, instructions, turns, req.Mode)
		if err != nil {
			if errors.Is(err, ErrPollTimeout) {
				return backoff.Permanent(err)
			}
			log.Warn().Err(err).Int("attempt", attempts).Str("backend", g.backend.Name()).Msg("coach completion attempt failed")
			return err
		}
		if strings.TrimSpace(c.text) == "" {
			log.Warn().Int("attempt", attempts).Str("backend", g.backend.Name()).Msg("coach completion was empty")
			return ErrEmptyResponse
		}
		c.text = strings.TrimSpace(c.text)
		result = c
		return nil
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = g.retryBase
	expo.Multiplier = 2
	expo.MaxInterval = g.retryCap
	expo.RandomizationFactor = 0
	expo.MaxElapsedTime = 0

	bo := backoff.WithContext(backoff.WithMaxRetries(expo, uint64(g.maxRetries)), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		return nil, err
	}

	return &models.GenerationResult{
		Message:      result.text,
		FinishReason: result.finishReason,
		Usage:        result.usage,
		Attempts:     attempts,
		LatencyMs:    time.Since(start).Milliseconds(),
	}, nil
}
