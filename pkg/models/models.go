// Package models defines the shared data types for the MathQuest coach
// service: the coaching request/response pipeline types and the learner
// progress entities (questions, attempts, profiles, streaks).
package models

import (
	"fmt"
	"strings"
	"time"
)

// ── Coach pipeline ──────────────────────────────────────────

// CoachMode selects the tutoring persona and, for the chat backend, the
// sampling temperature.
type CoachMode string

const (
	ModeHint      CoachMode = "hint"
	ModeExplain   CoachMode = "explain"
	ModeComfort   CoachMode = "comfort"
	ModeChallenge CoachMode = "challenge"
)

// Message roles accepted in a coach conversation.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// CoachMessage is a single turn of the conversation supplied by the caller.
type CoachMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// QuestionContext describes the question the student is currently working on.
type QuestionContext struct {
	ID            string   `json:"id,omitempty"`
	Prompt        string   `json:"prompt"`
	Choices       []string `json:"choices,omitempty"`
	CorrectAnswer string   `json:"correctAnswer,omitempty"`
	Domain        string   `json:"domain,omitempty"`
	Difficulty    *float64 `json:"difficulty,omitempty"`
}

// AttemptSummary summarizes the student's recent attempts on the question.
type AttemptSummary struct {
	Attempts   *int   `json:"attempts,omitempty"`
	LastAnswer string `json:"lastAnswer,omitempty"`
	Correct    *bool  `json:"correct,omitempty"`
	Streak     *int   `json:"streak,omitempty"`
}

// CoachRequest is the input to the coaching pipeline.
type CoachRequest struct {
	Mode           CoachMode        `json:"mode"`
	Messages       []CoachMessage   `json:"messages"`
	Topic          string           `json:"topic,omitempty"`
	Question       *QuestionContext `json:"question,omitempty"`
	AttemptSummary *AttemptSummary  `json:"attemptSummary,omitempty"`
}

// FieldError reports a single validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

const maxTopicLength = 80

// Validate normalizes the request (an absent mode defaults to hint) and
// returns field-level errors for anything that fails the schema.
func (r *CoachRequest) Validate() []FieldError {
	var errs []FieldError

	if r.Mode == "" {
		r.Mode = ModeHint
	}
	switch r.Mode {
	case ModeHint, ModeExplain, ModeComfort, ModeChallenge:
	default:
		errs = append(errs, FieldError{Field: "mode", Message: fmt.Sprintf("mode must be one of hint, explain, comfort, challenge (got %q)", r.Mode)})
	}

	if len(r.Messages) == 0 {
		errs = append(errs, FieldError{Field: "messages", Message: "provide at least one message"})
	}
	for i, m := range r.Messages {
		switch m.Role {
		case RoleUser, RoleAssistant, RoleSystem:
		default:
			errs = append(errs, FieldError{Field: fmt.Sprintf("messages[%d].role", i), Message: "role must be user, assistant, or system"})
		}
		if strings.TrimSpace(m.Content) == "" {
			errs = append(errs, FieldError{Field: fmt.Sprintf("messages[%d].content", i), Message: "message content is required"})
		}
	}

	if len(r.Topic) > maxTopicLength {
		errs = append(errs, FieldError{Field: "topic", Message: fmt.Sprintf("topic must be at most %d characters", maxTopicLength)})
	}

	if r.Question != nil && strings.TrimSpace(r.Question.Prompt) == "" {
		errs = append(errs, FieldError{Field: "question.prompt", Message: "question prompt is required"})
	}

	if s := r.AttemptSummary; s != nil {
		if s.Attempts != nil && *s.Attempts < 0 {
			errs = append(errs, FieldError{Field: "attemptSummary.attempts", Message: "attempts must be >= 0"})
		}
		if s.Streak != nil && *s.Streak < 0 {
			errs = append(errs, FieldError{Field: "attemptSummary.streak", Message: "streak must be >= 0"})
		}
	}

	return errs
}

// Usage reports the provider's token accounting. Any field may be absent.
type Usage struct {
	PromptTokens     *int `json:"promptTokens"`
	CompletionTokens *int `json:"completionTokens"`
	TotalTokens      *int `json:"totalTokens"`
}

// GenerationResult is a successful completion from the provider.
// Attempts counts every call made (including failed ones); LatencyMs is
// wall-clock time from the first attempt to success.
type GenerationResult struct {
	Message      string  `json:"message"`
	FinishReason *string `json:"finishReason"`
	Usage        *Usage  `json:"usage"`
	Attempts     int     `json:"attempts"`
	LatencyMs    int64   `json:"latencyMs"`
}

// CacheEntry is a completed reply stored under its request fingerprint.
type CacheEntry struct {
	Message      string    `json:"message"`
	FinishReason *string   `json:"finishReason"`
	Usage        *Usage    `json:"usage"`
	Mode         CoachMode `json:"mode"`
	CachedAt     time.Time `json:"cachedAt"`
	Attempts     int       `json:"attempts"`
	LatencyMs    int64     `json:"latencyMs"`
}

// NewCacheEntry wraps a generation result for storage.
func NewCacheEntry(mode CoachMode, result *GenerationResult) *CacheEntry {
	return &CacheEntry{
		Message:      result.Message,
		FinishReason: result.FinishReason,
		Usage:        result.Usage,
		Mode:         mode,
		CachedAt:     time.Now().UTC(),
		Attempts:     result.Attempts,
		LatencyMs:    result.LatencyMs,
	}
}

// ModerationVerdict is the outcome of the content-safety check.
// FlaggedCategories is populated only when Allowed is false.
type ModerationVerdict struct {
	Allowed           bool     `json:"allowed"`
	FlaggedCategories []string `json:"flaggedCategories,omitempty"`
}

// RateDecision is the outcome of a rate-limit check for one request.
type RateDecision struct {
	Allowed           bool `json:"allowed"`
	Remaining         int  `json:"remaining"`
	Limit             int  `json:"limit"`
	RetryAfterSeconds int  `json:"retryAfterSeconds"`
}

// ── Learner progress ────────────────────────────────────────

// QuestionStatus marks whether a question is served to students.
type QuestionStatus string

const (
	QuestionActive   QuestionStatus = "ACTIVE"
	QuestionArchived QuestionStatus = "ARCHIVED"
)

// Question is a practice question in the bank.
type Question struct {
	ID            string         `json:"id"`
	Prompt        string         `json:"prompt"`
	Choices       []string       `json:"choices,omitempty"`
	CorrectAnswer string         `json:"correctAnswer"`
	Domain        string         `json:"domain"`
	Difficulty    float64        `json:"difficulty"`
	Status        QuestionStatus `json:"status"`
	CreatedAt     time.Time      `json:"createdAt"`
}

// Attempt records one answer submitted by a student.
type Attempt struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	QuestionID  string    `json:"questionId"`
	Answer      string    `json:"answer"`
	Correct     bool      `json:"correct"`
	TimeSpentMs int       `json:"timeSpentMs"`
	CreatedAt   time.Time `json:"createdAt"`
}

// TargetExam is the exam a student is preparing for.
type TargetExam string

const (
	ExamSAT  TargetExam = "SAT"
	ExamPERT TargetExam = "PERT"
	ExamBEST TargetExam = "BEST"
)

// NormalizeExam maps free-form input onto a known exam, defaulting to SAT.
func NormalizeExam(s string) TargetExam {
	switch TargetExam(strings.ToUpper(strings.TrimSpace(s))) {
	case ExamPERT:
		return ExamPERT
	case ExamBEST:
		return ExamBEST
	default:
		return ExamSAT
	}
}

// Profile holds a student's display data and experience points.
type Profile struct {
	UserID      string         `json:"userId"`
	DisplayName string         `json:"displayName"`
	XP          int            `json:"xp"`
	TargetExam  TargetExam     `json:"targetExam"`
	ParentEmail string         `json:"parentEmail,omitempty"`
	Settings    map[string]any `json:"settings,omitempty"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// Level derives the student's level from XP (100 XP per level).
func (p *Profile) Level() int {
	return p.XP/100 + 1
}

// StreakData tracks consecutive days of practice for one student.
type StreakData struct {
	UserID         string    `json:"userId"`
	CurrentStreak  int       `json:"currentStreak"`
	LongestStreak  int       `json:"longestStreak"`
	LastActivityAt time.Time `json:"lastActivityAt"`
	StreakFreezes  int       `json:"streakFreezes"`
}

// RecentAttempt is an attempt joined with its question's domain and
// difficulty, as returned by the stats endpoint.
type RecentAttempt struct {
	ID          string    `json:"id"`
	Domain      string    `json:"domain"`
	Difficulty  float64   `json:"difficulty"`
	Correct     bool      `json:"correct"`
	TimeSpentMs int       `json:"timeSpentMs"`
	CreatedAt   time.Time `json:"createdAt"`
}

// UserStats is the aggregate progress snapshot for a student.
type UserStats struct {
	TotalAttempts   int             `json:"totalAttempts"`
	CorrectAttempts int             `json:"correctAttempts"`
	XP              int             `json:"xp"`
	CurrentLevel    int             `json:"currentLevel"`
	RecentAttempts  []RecentAttempt `json:"recentAttempts"`
}
