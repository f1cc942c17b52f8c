package coach

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mathquest/coach-service/pkg/models"
)

// Moderator checks user-supplied text against the provider's content-safety
// classifier. Classifier failures never block tutoring traffic: any error
// is logged and converted to an allow verdict.
type Moderator struct {
	apiKey   string
	model    string
	endpoint string // defaults to https://api.openai.com/v1/moderations
	client   *http.Client
}

// ModeratorOption configures the moderator.
type ModeratorOption func(*Moderator)

// WithModerationEndpoint sets a custom API endpoint (e.g. for tests).
func WithModerationEndpoint(endpoint string) ModeratorOption {
	return func(m *Moderator) { m.endpoint = endpoint }
}

// NewModerator creates a moderation gate against the configured classifier.
func NewModerator(apiKey, model string, opts ...ModeratorOption) *Moderator {
	m := &Moderator{
		apiKey:   apiKey,
		model:    model,
		endpoint: "https://api.openai.com/v1/moderations",
		client:   &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ModerationInput assembles the text to classify: the latest user-authored
// message, the question prompt, and the topic — trimmed, empties dropped,
// joined with line breaks.
func ModerationInput(req *models.CoachRequest) string {
	var parts []string

	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == models.RoleUser {
			if content := strings.TrimSpace(req.Messages[i].Content); content != "" {
				parts = append(parts, content)
			}
			break
		}
	}
	if req.Question != nil {
		if prompt := strings.TrimSpace(req.Question.Prompt); prompt != "" {
			parts = append(parts, prompt)
		}
	}
	if topic := strings.TrimSpace(req.Topic); topic != "" {
		parts = append(parts, topic)
	}

	return strings.Join(parts, "\n")
}

type moderationRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type moderationResponse struct {
	Results []struct {
		Flagged    bool            `json:"flagged"`
		Categories map[string]bool `json:"categories"`
	} `json:"results"`
}

// Check classifies input. An empty input is allowed without a remote call.
func (m *Moderator) Check(ctx context.Context, input string) *models.ModerationVerdict {
	if strings.TrimSpace(input) == "" {
		return &models.ModerationVerdict{Allowed: true}
	}

	verdict, err := m.classify(ctx, input)
	if err != nil {
		log.Warn().Err(err).Msg("coach moderation failed, allowing request by default")
		return &models.ModerationVerdict{Allowed: true}
	}
	return verdict
}

func (m *Moderator) classify(ctx context.Context, input string) (*models.ModerationVerdict, error) {
	body, err := json.Marshal(moderationRequest{Model: m.model, Input: input})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.apiKey)

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("moderation API returned %d: %s", resp.StatusCode, string(respBody))
	}

	var result moderationResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if len(result.Results) == 0 {
		return &models.ModerationVerdict{Allowed: true}, nil
	}

	first := result.Results[0]
	if !first.Flagged {
		return &models.ModerationVerdict{Allowed: true}, nil
	}

	categories := make([]string, 0, len(first.Categories))
	for name, flagged := range first.Categories {
		if flagged {
			categories = append(categories, name)
		}
	}
	sort.Strings(categories)
	return &models.ModerationVerdict{Allowed: false, FlaggedCategories: categories}, nil
}
