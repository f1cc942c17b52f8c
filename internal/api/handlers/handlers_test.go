package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mathquest/coach-service/internal/store"
	"github.com/mathquest/coach-service/pkg/models"
)

// ─── Pipeline stage stubs ────────────────────────────────────

type stubGenerator struct {
	result *models.GenerationResult
	err    error
	calls  int
}

func (s *stubGenerator) Generate(_ context.Context, _ *models.CoachRequest) (*models.GenerationResult, error) {
	s.calls++
	return s.result, s.err
}

type stubModerator struct {
	verdict *models.ModerationVerdict
}

func (s *stubModerator) Check(_ context.Context, _ string) *models.ModerationVerdict {
	if s.verdict != nil {
		return s.verdict
	}
	return &models.ModerationVerdict{Allowed: true}
}

type stubLimiter struct {
	decision *models.RateDecision
}

func (s *stubLimiter) Check(_ context.Context, _ string) *models.RateDecision {
	if s.decision != nil {
		return s.decision
	}
	return &models.RateDecision{Allowed: true, Remaining: 39, Limit: 40}
}

type stubCache struct {
	entries map[string]*models.CacheEntry
	puts    int
}

func (s *stubCache) Key(_ *models.CoachRequest) string { return "test-key" }

func (s *stubCache) Get(_ context.Context, key string) (*models.CacheEntry, bool) {
	entry, ok := s.entries[key]
	return entry, ok
}

func (s *stubCache) Put(_ context.Context, key string, entry *models.CacheEntry) {
	s.puts++
	if s.entries == nil {
		s.entries = map[string]*models.CacheEntry{}
	}
	s.entries[key] = entry
}

// newTestHandlers wires a Handlers with an in-memory store and permissive
// pipeline stubs. Tests override the stage they exercise.
func newTestHandlers(t *testing.T) (*Handlers, *stubGenerator, *stubModerator, *stubLimiter, *stubCache) {
	t.Helper()
	gen := &stubGenerator{result: &models.GenerationResult{Message: "Try isolating x.", Attempts: 1, LatencyMs: 42}}
	mod := &stubModerator{}
	lim := &stubLimiter{}
	c := &stubCache{}
	h := New(store.NewMemoryStore(), gen, mod, lim, c)
	return h, gen, mod, lim, c
}

func postCoach(t *testing.T, h *Handlers, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/coach", bytes.NewReader(raw))
	w := httptest.NewRecorder()
	h.CoachChat(w, req)
	return w
}

func validCoachBody() map[string]any {
	return map[string]any{
		"mode": "hint",
		"messages": []map[string]string{
			{"role": "user", "content": "How do I solve 2x + 3 = 11?"},
		},
	}
}

// ─── CoachChat ───────────────────────────────────────────────

func TestCoachChat_NoProviderConfigured(t *testing.T) {
	h, _, _, _, _ := newTestHandlers(t)
	h.Generator = nil

	w := postCoach(t, h, validCoachBody())
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
}

func TestCoachChat_InvalidJSON(t *testing.T) {
	h, _, _, _, _ := newTestHandlers(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/coach", bytes.NewReader([]byte("{nope")))
	w := httptest.NewRecorder()
	h.CoachChat(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestCoachChat_ValidationErrors(t *testing.T) {
	h, gen, _, _, _ := newTestHandlers(t)

	w := postCoach(t, h, map[string]any{"mode": "osmosis", "messages": []any{}})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}

	var body struct {
		Error   string              `json:"error"`
		Details []models.FieldError `json:"details"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Details) != 2 {
		t.Errorf("details = %+v, want mode and messages errors", body.Details)
	}
	if gen.calls != 0 {
		t.Error("invalid request should not reach the generator")
	}
}

func TestCoachChat_RateLimited(t *testing.T) {
	h, gen, _, lim, _ := newTestHandlers(t)
	lim.decision = &models.RateDecision{Allowed: false, Remaining: 0, Limit: 40, RetryAfterSeconds: 1200}

	w := postCoach(t, h, validCoachBody())
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "1200" {
		t.Errorf("Retry-After = %q, want 1200", got)
	}
	if got := w.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Errorf("X-RateLimit-Remaining = %q, want 0", got)
	}
	if gen.calls != 0 {
		t.Error("limited request should not reach the generator")
	}
}

func TestCoachChat_ModerationBlocks(t *testing.T) {
	h, gen, mod, _, _ := newTestHandlers(t)
	mod.verdict = &models.ModerationVerdict{Allowed: false, FlaggedCategories: []string{"harassment"}}

	w := postCoach(t, h, validCoachBody())
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}

	var body struct {
		FlaggedCategories []string `json:"flaggedCategories"`
	}
	json.Unmarshal(w.Body.Bytes(), &body)
	if len(body.FlaggedCategories) != 1 || body.FlaggedCategories[0] != "harassment" {
		t.Errorf("flaggedCategories = %v", body.FlaggedCategories)
	}
	if gen.calls != 0 {
		t.Error("flagged request should not reach the generator")
	}
}

func TestCoachChat_CacheHit(t *testing.T) {
	h, gen, _, _, c := newTestHandlers(t)
	c.entries = map[string]*models.CacheEntry{
		"test-key": {Message: "Cached hint.", Mode: models.ModeHint, Attempts: 2, LatencyMs: 900},
	}

	w := postCoach(t, h, validCoachBody())
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var body map[string]any
	json.Unmarshal(w.Body.Bytes(), &body)
	if body["cached"] != true {
		t.Error("cached should be true")
	}
	if body["message"] != "Cached hint." {
		t.Errorf("message = %v", body["message"])
	}
	// Cache hits never report the original generation's attempt count or
	// latency.
	if _, present := body["attempts"]; present {
		t.Error("cached response should omit attempts")
	}
	if body["latencyMs"] != float64(0) {
		t.Errorf("latencyMs = %v, want 0", body["latencyMs"])
	}
	if gen.calls != 0 {
		t.Error("cache hit should not reach the generator")
	}
}

func TestCoachChat_Success(t *testing.T) {
	h, _, _, _, c := newTestHandlers(t)

	w := postCoach(t, h, validCoachBody())
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var body map[string]any
	json.Unmarshal(w.Body.Bytes(), &body)
	if body["cached"] != false {
		t.Error("fresh response should report cached=false")
	}
	if body["message"] != "Try isolating x." {
		t.Errorf("message = %v", body["message"])
	}
	if body["attempts"] != float64(1) {
		t.Errorf("attempts = %v, want 1", body["attempts"])
	}
	if body["mode"] != "hint" {
		t.Errorf("mode = %v", body["mode"])
	}
	if c.puts != 1 {
		t.Errorf("cache puts = %d, want 1", c.puts)
	}
}

func TestCoachChat_GeneratorFailure(t *testing.T) {
	h, gen, _, _, c := newTestHandlers(t)
	gen.result = nil
	gen.err = errors.New("provider down")

	w := postCoach(t, h, validCoachBody())
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if c.puts != 0 {
		t.Error("failed generation should not be cached")
	}
}

func TestCoachChat_DefaultsModeToHint(t *testing.T) {
	h, _, _, _, _ := newTestHandlers(t)

	body := validCoachBody()
	delete(body, "mode")
	w := postCoach(t, h, body)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["mode"] != "hint" {
		t.Errorf("mode = %v, want hint default", resp["mode"])
	}
}
