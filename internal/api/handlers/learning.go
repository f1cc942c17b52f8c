package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mathquest/coach-service/internal/api/middleware"
	"github.com/mathquest/coach-service/internal/store"
	"github.com/mathquest/coach-service/pkg/models"
)

// XP awards per attempt.
const (
	xpCorrect   = 10
	xpAttempted = 2
)

const maxTimeSpentMs = 10 * 60 * 1000

// ── Attempts ────────────────────────────────────────────────

type attemptRequest struct {
	QuestionID  string `json:"questionId"`
	Answer      any    `json:"answer"`
	Correct     *bool  `json:"correct"`
	TimeSpentMs *int   `json:"timeSpentMs"`
}

// RecordAttempt saves an answer submission and awards XP onto the profile.
func (h *Handlers) RecordAttempt(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req attemptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.QuestionID == "" || req.Answer == nil || req.Correct == nil || req.TimeSpentMs == nil {
		respondError(w, http.StatusBadRequest, "Missing required fields")
		return
	}
	if *req.TimeSpentMs < 0 || *req.TimeSpentMs > maxTimeSpentMs {
		respondError(w, http.StatusBadRequest, "timeSpentMs must be between 0 and 600000")
		return
	}

	attempt := &models.Attempt{
		ID:          uuid.New().String(),
		UserID:      userID,
		QuestionID:  req.QuestionID,
		Answer:      fmt.Sprintf("%v", req.Answer),
		Correct:     *req.Correct,
		TimeSpentMs: *req.TimeSpentMs,
		CreatedAt:   time.Now().UTC(),
	}
	if err := h.Store.CreateAttempt(r.Context(), attempt); err != nil {
		log.Error().Err(err).Msg("failed to save attempt")
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	xpGained := xpAttempted
	if attempt.Correct {
		xpGained = xpCorrect
	}
	if _, err := h.Store.AddXP(r.Context(), userID, "Student", xpGained); err != nil {
		log.Error().Err(err).Msg("failed to award xp")
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"attempt": map[string]any{
			"id":       attempt.ID,
			"correct":  attempt.Correct,
			"xpGained": xpGained,
		},
	})
}

// ── Questions ───────────────────────────────────────────────

// ListQuestions returns up to count active questions (1..25, default 10),
// optionally filtered by domain.
func (h *Handlers) ListQuestions(w http.ResponseWriter, r *http.Request) {
	count := 10
	if v := r.URL.Query().Get("count"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 1 && n <= 25 {
			count = n
		}
	}
	domain := r.URL.Query().Get("domain")

	questions, err := h.Store.ListQuestions(r.Context(), domain, count)
	if err != nil {
		log.Error().Err(err).Msg("failed to list questions")
		respondError(w, http.StatusInternalServerError, "Failed to fetch questions")
		return
	}
	if questions == nil {
		questions = []models.Question{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"questions": questions})
}

// CreateQuestion adds a question to the bank.
func (h *Handlers) CreateQuestion(w http.ResponseWriter, r *http.Request) {
	var q models.Question
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if q.Prompt == "" {
		respondError(w, http.StatusBadRequest, "prompt is required")
		return
	}
	if q.ID == "" {
		q.ID = uuid.New().String()
	}
	if q.Status == "" {
		q.Status = models.QuestionActive
	}
	q.CreatedAt = time.Now().UTC()

	if err := h.Store.CreateQuestion(r.Context(), &q); err != nil {
		log.Error().Err(err).Msg("failed to create question")
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	respondJSON(w, http.StatusCreated, q)
}

// ── Streaks ─────────────────────────────────────────────────

type streakResponse struct {
	CurrentStreak  int        `json:"currentStreak"`
	LongestStreak  int        `json:"longestStreak"`
	LastActivityAt *time.Time `json:"lastActivityAt"`
	StreakFreezes  int        `json:"streakFreezes"`
}

// GetStreak returns the student's streak, zeroed when none exists yet.
func (h *Handlers) GetStreak(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	streak, err := h.Store.GetStreak(r.Context(), userID)
	if err != nil {
		if _, ok := err.(*store.ErrNotFound); ok {
			respondJSON(w, http.StatusOK, streakResponse{})
			return
		}
		log.Error().Err(err).Msg("failed to fetch streak")
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	respondJSON(w, http.StatusOK, streakResponse{
		CurrentStreak:  streak.CurrentStreak,
		LongestStreak:  streak.LongestStreak,
		LastActivityAt: &streak.LastActivityAt,
		StreakFreezes:  streak.StreakFreezes,
	})
}

// UpdateStreak records today's practice activity: same-day activity is a
// no-op, consecutive-day activity extends the streak, and a gap resets it
// to one.
func (h *Handlers) UpdateStreak(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	now := time.Now().UTC()

	existing, err := h.Store.GetStreak(r.Context(), userID)
	if err != nil {
		if _, ok := err.(*store.ErrNotFound); !ok {
			log.Error().Err(err).Msg("failed to fetch streak")
			respondError(w, http.StatusInternalServerError, "Internal server error")
			return
		}
		existing = nil
	}

	updated, increased := advanceStreak(existing, now)
	updated.UserID = userID
	if err := h.Store.UpsertStreak(r.Context(), updated); err != nil {
		log.Error().Err(err).Msg("failed to update streak")
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"currentStreak":   updated.CurrentStreak,
		"longestStreak":   updated.LongestStreak,
		"streakIncreased": increased,
	})
}

// advanceStreak applies one day of activity at now to an existing streak
// (nil when the student has none yet).
func advanceStreak(existing *models.StreakData, now time.Time) (*models.StreakData, bool) {
	if existing == nil {
		return &models.StreakData{
			CurrentStreak:  1,
			LongestStreak:  1,
			LastActivityAt: now,
		}, true
	}

	days := daysBetween(existing.LastActivityAt, now)
	updated := *existing
	switch {
	case days == 0:
		return &updated, false
	case days == 1:
		updated.CurrentStreak++
	default:
		updated.CurrentStreak = 1
	}
	updated.LongestStreak = max(updated.LongestStreak, updated.CurrentStreak)
	updated.LastActivityAt = now
	return &updated, days == 1
}

// daysBetween counts calendar-day boundaries between two instants.
func daysBetween(from, to time.Time) int {
	fromDay := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	toDay := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	return int(toDay.Sub(fromDay) / (24 * time.Hour))
}

// ── Stats ───────────────────────────────────────────────────

// UserStats returns the student's aggregate progress snapshot.
func (h *Handlers) UserStats(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	ctx := r.Context()

	total, err := h.Store.CountAttempts(ctx, userID, false)
	if err != nil {
		log.Error().Err(err).Msg("failed to count attempts")
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	correct, err := h.Store.CountAttempts(ctx, userID, true)
	if err != nil {
		log.Error().Err(err).Msg("failed to count correct attempts")
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	recent, err := h.Store.ListRecentAttempts(ctx, userID, 10)
	if err != nil {
		log.Error().Err(err).Msg("failed to list recent attempts")
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if recent == nil {
		recent = []models.RecentAttempt{}
	}

	xp := 0
	if profile, err := h.Store.GetProfile(ctx, userID); err == nil {
		xp = profile.XP
	}

	respondJSON(w, http.StatusOK, models.UserStats{
		TotalAttempts:   total,
		CorrectAttempts: correct,
		XP:              xp,
		CurrentLevel:    xp/100 + 1,
		RecentAttempts:  recent,
	})
}

// ── Profile ─────────────────────────────────────────────────

type profileSyncRequest struct {
	DisplayName string         `json:"displayName"`
	TargetExam  string         `json:"targetExam"`
	ParentEmail string         `json:"parentEmail"`
	Role        string         `json:"role"`
	Settings    map[string]any `json:"settings"`
}

// SyncProfile upserts the student's profile from the caller's payload.
func (h *Handlers) SyncProfile(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req profileSyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		// An empty or malformed body syncs defaults, matching upstream
		// clients that POST without a payload.
		req = profileSyncRequest{}
	}

	if req.DisplayName == "" {
		req.DisplayName = "Learner"
	}
	if req.Role == "" {
		req.Role = "student"
	}
	settings := req.Settings
	if settings == nil {
		settings = map[string]any{}
	}
	settings["role"] = req.Role

	profile := &models.Profile{
		UserID:      userID,
		DisplayName: req.DisplayName,
		TargetExam:  models.NormalizeExam(req.TargetExam),
		ParentEmail: req.ParentEmail,
		Settings:    settings,
	}
	if err := h.Store.UpsertProfile(r.Context(), profile); err != nil {
		log.Error().Err(err).Msg("profile sync failed")
		respondError(w, http.StatusInternalServerError, "Profile sync failed")
		return
	}

	stored, err := h.Store.GetProfile(r.Context(), userID)
	if err != nil {
		log.Error().Err(err).Msg("profile sync failed")
		respondError(w, http.StatusInternalServerError, "Profile sync failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"profile": stored})
}
