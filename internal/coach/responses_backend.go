package coach

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mathquest/coach-service/pkg/models"
)

// Response job statuses. Anything outside this set keeps polling until the
// completion deadline.
const (
	statusQueued     = "queued"
	statusInProgress = "in_progress"
	statusCompleted  = "completed"
	statusFailed     = "failed"
	statusCancelled  = "cancelled"
	statusIncomplete = "incomplete"
)

// responsesBackend calls the job-style convention: creating a response may
// return an already-completed job or a pending one that must be polled
// until it reaches a terminal state.
type responsesBackend struct {
	apiKey             string
	model              string
	endpoint           string // defaults to https://api.openai.com/v1/responses
	pollInterval       time.Duration
	completionDeadline time.Duration
	client             *http.Client
}

// ResponsesOption configures the responses backend.
type ResponsesOption func(*responsesBackend)

// WithResponsesEndpoint sets a custom API endpoint (e.g. for proxies or tests).
func WithResponsesEndpoint(endpoint string) ResponsesOption {
	return func(b *responsesBackend) { b.endpoint = endpoint }
}

// WithPollInterval overrides the delay between status polls.
func WithPollInterval(d time.Duration) ResponsesOption {
	return func(b *responsesBackend) { b.pollInterval = d }
}

// WithCompletionDeadline overrides how long a job may stay pending before
// the call fails with ErrPollTimeout.
func WithCompletionDeadline(d time.Duration) ResponsesOption {
	return func(b *responsesBackend) { b.completionDeadline = d }
}

func newResponsesBackend(apiKey, model string, opts ...ResponsesOption) *responsesBackend {
	b := &responsesBackend{
		apiKey:             apiKey,
		model:              model,
		endpoint:           "https://api.openai.com/v1/responses",
		pollInterval:       500 * time.Millisecond,
		completionDeadline: 20 * time.Second,
		client:             &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *responsesBackend) Name() string { return "responses" }

// terminalStatus reports whether a job status ends the polling loop. An
// empty status is treated as completed: some provider-compatible servers
// omit it on an immediate completion.
func terminalStatus(status string) bool {
	switch status {
	case statusCompleted, statusFailed, statusCancelled, statusIncomplete, "":
		return true
	default:
		return false
	}
}

// responsesSupportsTemperature reports whether the model accepts a
// temperature parameter on the responses API. gpt-5 family models reject it.
func responsesSupportsTemperature(model string) bool {
	return !strings.HasPrefix(strings.ToLower(model), "gpt-5")
}

type responsesInputMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responsesRequest struct {
	Model           string                  `json:"model"`
	Input           []responsesInputMessage `json:"input"`
	MaxOutputTokens int                     `json:"max_output_tokens"`
	Instructions    string                  `json:"instructions,omitempty"`
	Temperature     *float64                `json:"temperature,omitempty"`
}

type responsesPayload struct {
	ID         string             `json:"id"`
	Status     string             `json:"status"`
	OutputText string             `json:"output_text"`
	Output     []responsesOutput  `json:"output"`
	Usage      *responsesUsage    `json:"usage"`
	Error      *providerErrorBody `json:"error,omitempty"`
}

type responsesOutput struct {
	Type    string `json:"type"`
	Role    string `json:"role"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

type responsesUsage struct {
	InputTokens  *int `json:"input_tokens"`
	OutputTokens *int `json:"output_tokens"`
	TotalTokens  *int `json:"total_tokens"`
}

// Complete creates a response job and, if it comes back pending, polls the
// retrieval endpoint at a fixed interval until the job is terminal or the
// completion deadline passes.
func (b *responsesBackend) Complete(ctx context.Context, instructions string, turns []models.CoachMessage, mode models.CoachMode) (*completion, error) {
	input := make([]responsesInputMessage, 0, len(turns))
	for _, t := range turns {
		input = append(input, responsesInputMessage{Role: t.Role, Content: t.Content})
	}

	payload := responsesRequest{
		Model:           b.model,
		Input:           input,
		MaxOutputTokens: maxCompletionTokens,
		Instructions:    instructions,
	}
	if responsesSupportsTemperature(b.model) {
		temp := ModeTemperature(mode)
		payload.Temperature = &temp
	}

	job, err := b.create(ctx, payload)
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(b.completionDeadline)
	for !terminalStatus(job.Status) {
		if time.Now().After(deadline) {
			return nil, ErrPollTimeout
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(b.pollInterval):
		}
		job, err = b.retrieve(ctx, job.ID)
		if err != nil {
			return nil, err
		}
	}

	if job.Status == statusFailed || job.Status == statusCancelled || job.Status == statusIncomplete {
		msg := "response job " + job.Status
		if job.Error != nil && job.Error.Message != "" {
			msg = job.Error.Message
		}
		return nil, &ProviderError{Status: http.StatusOK, Message: msg}
	}

	c := &completion{text: extractText(job)}
	if u := job.Usage; u != nil {
		c.usage = &models.Usage{
			PromptTokens:     u.InputTokens,
			CompletionTokens: u.OutputTokens,
			TotalTokens:      totalTokens(u.InputTokens, u.OutputTokens, u.TotalTokens),
		}
	}
	return c, nil
}

// extractText prefers the output_text convenience field and falls back to
// scanning output items for assistant message content.
func extractText(job *responsesPayload) string {
	if text := strings.TrimSpace(job.OutputText); text != "" {
		return text
	}
	var parts []string
	for _, item := range job.Output {
		if item.Type != "message" || item.Role != models.RoleAssistant {
			continue
		}
		for _, part := range item.Content {
			if part.Type == "output_text" && strings.TrimSpace(part.Text) != "" {
				parts = append(parts, strings.TrimSpace(part.Text))
			}
		}
	}
	return strings.Join(parts, "\n")
}

func (b *responsesBackend) create(ctx context.Context, payload responsesRequest) (*responsesPayload, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	return b.roundTrip(ctx, http.MethodPost, b.endpoint, bytes.NewReader(body))
}

func (b *responsesBackend) retrieve(ctx context.Context, id string) (*responsesPayload, error) {
	return b.roundTrip(ctx, http.MethodGet, b.endpoint+"/"+id, nil)
}

func (b *responsesBackend) roundTrip(ctx context.Context, method, url string, body io.Reader) (*responsesPayload, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+b.apiKey)

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &ProviderError{Status: resp.StatusCode, Message: string(respBody)}
	}

	var result responsesPayload
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return &result, nil
}
