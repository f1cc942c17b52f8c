// Package store — in-memory Store implementation.
// Used when DATABASE_URL is not configured (local dev, tests).
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mathquest/coach-service/pkg/models"
)

// MemoryStore implements Store with mutex-guarded maps.
type MemoryStore struct {
	mu        sync.RWMutex
	questions map[string]*models.Question   // key: id
	attempts  []*models.Attempt             // append-only, newest last
	profiles  map[string]*models.Profile    // key: user id
	streaks   map[string]*models.StreakData // key: user id
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		questions: make(map[string]*models.Question),
		profiles:  make(map[string]*models.Profile),
		streaks:   make(map[string]*models.StreakData),
	}
}

func (m *MemoryStore) Ping(_ context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }

// ── Questions ───────────────────────────────────────────────

func (m *MemoryStore) ListQuestions(_ context.Context, domain string, limit int) ([]models.Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]models.Question, 0, limit)
	for _, q := range m.questions {
		if q.Status != models.QuestionActive {
			continue
		}
		if domain != "" && q.Domain != domain {
			continue
		}
		result = append(result, *q)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MemoryStore) GetQuestion(_ context.Context, id string) (*models.Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.questions[id]
	if !ok {
		return nil, &ErrNotFound{Entity: "question", Key: id}
	}
	copy := *q
	return &copy, nil
}

func (m *MemoryStore) CreateQuestion(_ context.Context, q *models.Question) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := *q
	if copy.Status == "" {
		copy.Status = models.QuestionActive
	}
	m.questions[copy.ID] = &copy
	return nil
}

// ── Attempts ────────────────────────────────────────────────

func (m *MemoryStore) CreateAttempt(_ context.Context, a *models.Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := *a
	m.attempts = append(m.attempts, &copy)
	return nil
}

func (m *MemoryStore) CountAttempts(_ context.Context, userID string, correctOnly bool) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, a := range m.attempts {
		if a.UserID != userID {
			continue
		}
		if correctOnly && !a.Correct {
			continue
		}
		count++
	}
	return count, nil
}

func (m *MemoryStore) ListRecentAttempts(_ context.Context, userID string, limit int) ([]models.RecentAttempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]models.RecentAttempt, 0, limit)
	for i := len(m.attempts) - 1; i >= 0 && (limit <= 0 || len(result) < limit); i-- {
		a := m.attempts[i]
		if a.UserID != userID {
			continue
		}
		recent := models.RecentAttempt{
			ID:          a.ID,
			Correct:     a.Correct,
			TimeSpentMs: a.TimeSpentMs,
			CreatedAt:   a.CreatedAt,
		}
		if q, ok := m.questions[a.QuestionID]; ok {
			recent.Domain = q.Domain
			recent.Difficulty = q.Difficulty
		}
		result = append(result, recent)
	}
	return result, nil
}

// ── Profiles ────────────────────────────────────────────────

func (m *MemoryStore) GetProfile(_ context.Context, userID string) (*models.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[userID]
	if !ok {
		return nil, &ErrNotFound{Entity: "profile", Key: userID}
	}
	copy := *p
	return &copy, nil
}

func (m *MemoryStore) UpsertProfile(_ context.Context, p *models.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := *p
	copy.UpdatedAt = time.Now().UTC()
	if existing, ok := m.profiles[p.UserID]; ok {
		copy.XP = existing.XP
	}
	m.profiles[p.UserID] = &copy
	return nil
}

func (m *MemoryStore) AddXP(_ context.Context, userID, displayName string, delta int) (*models.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		p = &models.Profile{
			UserID:      userID,
			DisplayName: displayName,
			TargetExam:  models.ExamSAT,
		}
		m.profiles[userID] = p
	}
	p.XP += delta
	p.UpdatedAt = time.Now().UTC()
	copy := *p
	return &copy, nil
}

// ── Streaks ─────────────────────────────────────────────────

func (m *MemoryStore) GetStreak(_ context.Context, userID string) (*models.StreakData, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.streaks[userID]
	if !ok {
		return nil, &ErrNotFound{Entity: "streak", Key: userID}
	}
	copy := *s
	return &copy, nil
}

func (m *MemoryStore) UpsertStreak(_ context.Context, s *models.StreakData) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := *s
	m.streaks[s.UserID] = &copy
	return nil
}
