package coach

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mathquest/coach-service/pkg/models"
)

const maxCompletionTokens = 512

// chatBackend calls the synchronous chat-completions convention: one call
// returns the completion directly, with per-mode sampling temperature.
type chatBackend struct {
	apiKey   string
	model    string
	endpoint string // defaults to https://api.openai.com/v1/chat/completions
	client   *http.Client
}

// ChatOption configures the chat backend.
type ChatOption func(*chatBackend)

// WithChatEndpoint sets a custom API endpoint (e.g. for proxies or tests).
func WithChatEndpoint(endpoint string) ChatOption {
	return func(b *chatBackend) { b.endpoint = endpoint }
}

func newChatBackend(apiKey, model string, opts ...ChatOption) *chatBackend {
	b := &chatBackend{
		apiKey:   apiKey,
		model:    model,
		endpoint: "https://api.openai.com/v1/chat/completions",
		client:   &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *chatBackend) Name() string { return "chat" }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	Messages    []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     *int `json:"prompt_tokens"`
		CompletionTokens *int `json:"completion_tokens"`
		TotalTokens      *int `json:"total_tokens"`
	} `json:"usage"`
	Error *providerErrorBody `json:"error,omitempty"`
}

type providerErrorBody struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// Complete performs one chat-completions call. The instructions become the
// system message; turns follow in order.
func (b *chatBackend) Complete(ctx context.Context, instructions string, turns []models.CoachMessage, mode models.CoachMode) (*completion, error) {
	messages := make([]chatMessage, 0, len(turns)+1)
	messages = append(messages, chatMessage{Role: models.RoleSystem, Content: instructions})
	for _, t := range turns {
		messages = append(messages, chatMessage{Role: t.Role, Content: t.Content})
	}

	payload := chatRequest{
		Model:       b.model,
		Temperature: ModeTemperature(mode),
		MaxTokens:   maxCompletionTokens,
		Messages:    messages,
	}

	var result chatResponse
	if err := b.post(ctx, payload, &result); err != nil {
		return nil, err
	}
	if result.Error != nil {
		return nil, &ProviderError{Status: http.StatusOK, Message: result.Error.Message}
	}
	if len(result.Choices) == 0 {
		return &completion{}, nil
	}

	choice := result.Choices[0]
	c := &completion{
		text:         choice.Message.Content,
		finishReason: choice.FinishReason,
	}
	if u := result.Usage; u != nil {
		c.usage = &models.Usage{
			PromptTokens:     u.PromptTokens,
			CompletionTokens: u.CompletionTokens,
			TotalTokens:      totalTokens(u.PromptTokens, u.CompletionTokens, u.TotalTokens),
		}
	}
	return c, nil
}

func (b *chatBackend) post(ctx context.Context, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+b.apiKey)

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return &ProviderError{Status: resp.StatusCode, Message: string(respBody)}
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

// totalTokens fills in a missing total from prompt+completion when possible.
func totalTokens(prompt, completionTokens, total *int) *int {
	if total != nil {
		return total
	}
	if prompt != nil && completionTokens != nil {
		sum := *prompt + *completionTokens
		return &sum
	}
	return nil
}
