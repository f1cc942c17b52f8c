// Package store provides the persistence interface and implementations for
// learner progress data: questions, attempts, profiles, and streaks.
package store

import (
	"context"

	"github.com/mathquest/coach-service/pkg/models"
)

// Store is the primary storage interface. Handler code depends on this
// interface so the in-memory implementation (local dev, tests) and the
// PostgreSQL implementation are interchangeable.
type Store interface {
	QuestionStore
	AttemptStore
	ProfileStore
	StreakStore

	// Ping checks if the backing store is reachable.
	Ping(ctx context.Context) error

	// Close releases all resources held by the store.
	Close() error
}

// ── Question Store ──────────────────────────────────────────

type QuestionStore interface {
	// ListQuestions returns up to limit active questions, optionally
	// filtered by domain, newest first.
	ListQuestions(ctx context.Context, domain string, limit int) ([]models.Question, error)
	GetQuestion(ctx context.Context, id string) (*models.Question, error)
	CreateQuestion(ctx context.Context, q *models.Question) error
}

// ── Attempt Store ───────────────────────────────────────────

type AttemptStore interface {
	CreateAttempt(ctx context.Context, a *models.Attempt) error
	// CountAttempts returns the user's attempt total; with correctOnly set,
	// only correct attempts are counted.
	CountAttempts(ctx context.Context, userID string, correctOnly bool) (int, error)
	// ListRecentAttempts returns the user's newest attempts joined with
	// question domain/difficulty, up to limit.
	ListRecentAttempts(ctx context.Context, userID string, limit int) ([]models.RecentAttempt, error)
}

// ── Profile Store ───────────────────────────────────────────

type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
	UpsertProfile(ctx context.Context, p *models.Profile) error
	// AddXP atomically adds delta XP to the user's profile, creating it
	// with the given display name if absent, and returns the updated row.
	AddXP(ctx context.Context, userID, displayName string, delta int) (*models.Profile, error)
}

// ── Streak Store ────────────────────────────────────────────

type StreakStore interface {
	GetStreak(ctx context.Context, userID string) (*models.StreakData, error)
	UpsertStreak(ctx context.Context, s *models.StreakData) error
}

// ErrNotFound is returned when a requested entity does not exist.
type ErrNotFound struct {
	Entity string
	Key    string
}

func (e *ErrNotFound) Error() string {
	return e.Entity + " not found: " + e.Key
}
