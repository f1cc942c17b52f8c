package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mathquest/coach-service/internal/api/middleware"
	"github.com/mathquest/coach-service/pkg/models"
)

// doAs runs a handler through the user middleware with auth disabled, the
// same path requests take in local development.
func doAs(t *testing.T, userID string, handler http.HandlerFunc, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("X-User-Id", userID)
	w := httptest.NewRecorder()
	middleware.NewBearerAuth("").RequireUser(handler).ServeHTTP(w, req)
	return w
}

// ─── Attempts ────────────────────────────────────────────────

func TestRecordAttempt_AwardsXP(t *testing.T) {
	h, _, _, _, _ := newTestHandlers(t)
	correct := true
	spent := 4200

	w := doAs(t, "u1", h.RecordAttempt, http.MethodPost, "/api/v1/attempts", map[string]any{
		"questionId":  "q1",
		"answer":      "4",
		"correct":     correct,
		"timeSpentMs": spent,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var body struct {
		Success bool `json:"success"`
		Attempt struct {
			Correct  bool `json:"correct"`
			XPGained int  `json:"xpGained"`
		} `json:"attempt"`
	}
	json.Unmarshal(w.Body.Bytes(), &body)
	if !body.Success {
		t.Error("success = false")
	}
	if body.Attempt.XPGained != 10 {
		t.Errorf("xpGained = %d, want 10 for a correct answer", body.Attempt.XPGained)
	}

	profile, err := h.Store.GetProfile(context.Background(), "u1")
	if err != nil {
		t.Fatalf("GetProfile() error = %v", err)
	}
	if profile.XP != 10 {
		t.Errorf("profile XP = %d, want 10", profile.XP)
	}
}

func TestRecordAttempt_IncorrectAwardsTwo(t *testing.T) {
	h, _, _, _, _ := newTestHandlers(t)

	w := doAs(t, "u1", h.RecordAttempt, http.MethodPost, "/api/v1/attempts", map[string]any{
		"questionId":  "q1",
		"answer":      "7",
		"correct":     false,
		"timeSpentMs": 1000,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var body struct {
		Attempt struct {
			XPGained int `json:"xpGained"`
		} `json:"attempt"`
	}
	json.Unmarshal(w.Body.Bytes(), &body)
	if body.Attempt.XPGained != 2 {
		t.Errorf("xpGained = %d, want 2 for an incorrect answer", body.Attempt.XPGained)
	}
}

func TestRecordAttempt_Validation(t *testing.T) {
	h, _, _, _, _ := newTestHandlers(t)

	cases := []struct {
		name string
		body map[string]any
	}{
		{"missing fields", map[string]any{"questionId": "q1"}},
		{"negative time", map[string]any{"questionId": "q1", "answer": "4", "correct": true, "timeSpentMs": -1}},
		{"excessive time", map[string]any{"questionId": "q1", "answer": "4", "correct": true, "timeSpentMs": 600001}},
	}
	for _, tc := range cases {
		w := doAs(t, "u1", h.RecordAttempt, http.MethodPost, "/api/v1/attempts", tc.body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", tc.name, w.Code)
		}
	}
}

// ─── Streaks ─────────────────────────────────────────────────

func TestAdvanceStreak(t *testing.T) {
	day := func(d int) time.Time {
		return time.Date(2026, 3, d, 20, 0, 0, 0, time.UTC)
	}

	t.Run("first activity", func(t *testing.T) {
		got, increased := advanceStreak(nil, day(1))
		if got.CurrentStreak != 1 || got.LongestStreak != 1 || !increased {
			t.Errorf("advanceStreak(nil) = %+v, increased=%v", got, increased)
		}
	})

	t.Run("same day is a no-op", func(t *testing.T) {
		existing := &models.StreakData{CurrentStreak: 3, LongestStreak: 5, LastActivityAt: day(1)}
		got, increased := advanceStreak(existing, day(1).Add(2*time.Hour))
		if got.CurrentStreak != 3 || increased {
			t.Errorf("same-day advance = %+v, increased=%v", got, increased)
		}
		if !got.LastActivityAt.Equal(existing.LastActivityAt) {
			t.Error("same-day advance should not touch LastActivityAt")
		}
	})

	t.Run("next day extends", func(t *testing.T) {
		existing := &models.StreakData{CurrentStreak: 3, LongestStreak: 3, LastActivityAt: day(1)}
		got, increased := advanceStreak(existing, day(2))
		if got.CurrentStreak != 4 || got.LongestStreak != 4 || !increased {
			t.Errorf("next-day advance = %+v, increased=%v", got, increased)
		}
	})

	t.Run("gap resets to one", func(t *testing.T) {
		existing := &models.StreakData{CurrentStreak: 6, LongestStreak: 9, LastActivityAt: day(1)}
		got, increased := advanceStreak(existing, day(4))
		if got.CurrentStreak != 1 || increased {
			t.Errorf("gap advance = %+v, increased=%v", got, increased)
		}
		if got.LongestStreak != 9 {
			t.Errorf("LongestStreak = %d, want preserved 9", got.LongestStreak)
		}
	})

	t.Run("midnight boundary counts as next day", func(t *testing.T) {
		existing := &models.StreakData{
			CurrentStreak:  1,
			LongestStreak:  1,
			LastActivityAt: time.Date(2026, 3, 1, 23, 50, 0, 0, time.UTC),
		}
		got, increased := advanceStreak(existing, time.Date(2026, 3, 2, 0, 10, 0, 0, time.UTC))
		if got.CurrentStreak != 2 || !increased {
			t.Errorf("boundary advance = %+v, increased=%v", got, increased)
		}
	})
}

func TestDaysBetween(t *testing.T) {
	cases := []struct {
		from, to time.Time
		want     int
	}{
		{time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC), 0},
		{time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC), time.Date(2026, 3, 2, 0, 1, 0, 0, time.UTC), 1},
		{time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), time.Date(2026, 3, 8, 12, 0, 0, 0, time.UTC), 7},
	}
	for _, tc := range cases {
		if got := daysBetween(tc.from, tc.to); got != tc.want {
			t.Errorf("daysBetween(%v, %v) = %d, want %d", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestGetStreak_UnknownUserIsZeroed(t *testing.T) {
	h, _, _, _, _ := newTestHandlers(t)

	w := doAs(t, "newcomer", h.GetStreak, http.MethodGet, "/api/v1/streaks", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var body map[string]any
	json.Unmarshal(w.Body.Bytes(), &body)
	if body["currentStreak"] != float64(0) {
		t.Errorf("currentStreak = %v, want 0", body["currentStreak"])
	}
	if body["lastActivityAt"] != nil {
		t.Errorf("lastActivityAt = %v, want null", body["lastActivityAt"])
	}
}

func TestUpdateStreak_EndToEnd(t *testing.T) {
	h, _, _, _, _ := newTestHandlers(t)

	w := doAs(t, "u1", h.UpdateStreak, http.MethodPost, "/api/v1/streaks", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body map[string]any
	json.Unmarshal(w.Body.Bytes(), &body)
	if body["currentStreak"] != float64(1) || body["streakIncreased"] != true {
		t.Errorf("first update = %v", body)
	}

	// Same day again: unchanged.
	w = doAs(t, "u1", h.UpdateStreak, http.MethodPost, "/api/v1/streaks", nil)
	json.Unmarshal(w.Body.Bytes(), &body)
	if body["currentStreak"] != float64(1) || body["streakIncreased"] != false {
		t.Errorf("same-day update = %v", body)
	}
}

// ─── Stats ───────────────────────────────────────────────────

func TestUserStats(t *testing.T) {
	h, _, _, _, _ := newTestHandlers(t)

	for _, correct := range []bool{true, true, false} {
		doAs(t, "u1", h.RecordAttempt, http.MethodPost, "/api/v1/attempts", map[string]any{
			"questionId":  "q1",
			"answer":      "4",
			"correct":     correct,
			"timeSpentMs": 1000,
		})
	}

	w := doAs(t, "u1", h.UserStats, http.MethodGet, "/api/v1/users/stats", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var stats models.UserStats
	json.Unmarshal(w.Body.Bytes(), &stats)
	if stats.TotalAttempts != 3 || stats.CorrectAttempts != 2 {
		t.Errorf("attempts = %d/%d, want 3/2", stats.CorrectAttempts, stats.TotalAttempts)
	}
	// 10 + 10 + 2 XP.
	if stats.XP != 22 {
		t.Errorf("XP = %d, want 22", stats.XP)
	}
	if stats.CurrentLevel != 1 {
		t.Errorf("CurrentLevel = %d, want 1", stats.CurrentLevel)
	}
	if len(stats.RecentAttempts) != 3 {
		t.Errorf("RecentAttempts = %d, want 3", len(stats.RecentAttempts))
	}
}

// ─── Profile ─────────────────────────────────────────────────

func TestSyncProfile(t *testing.T) {
	h, _, _, _, _ := newTestHandlers(t)

	w := doAs(t, "u1", h.SyncProfile, http.MethodPost, "/api/v1/profile/sync", map[string]any{
		"displayName": "Ada",
		"targetExam":  "pert",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var body struct {
		Profile models.Profile `json:"profile"`
	}
	json.Unmarshal(w.Body.Bytes(), &body)
	if body.Profile.DisplayName != "Ada" {
		t.Errorf("DisplayName = %q", body.Profile.DisplayName)
	}
	if body.Profile.TargetExam != models.ExamPERT {
		t.Errorf("TargetExam = %q, want PERT", body.Profile.TargetExam)
	}
	if body.Profile.Settings["role"] != "student" {
		t.Errorf("settings role = %v, want student default", body.Profile.Settings["role"])
	}
}

func TestSyncProfile_EmptyBodyUsesDefaults(t *testing.T) {
	h, _, _, _, _ := newTestHandlers(t)

	w := doAs(t, "u1", h.SyncProfile, http.MethodPost, "/api/v1/profile/sync", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var body struct {
		Profile models.Profile `json:"profile"`
	}
	json.Unmarshal(w.Body.Bytes(), &body)
	if body.Profile.DisplayName != "Learner" {
		t.Errorf("DisplayName = %q, want Learner default", body.Profile.DisplayName)
	}
	if body.Profile.TargetExam != models.ExamSAT {
		t.Errorf("TargetExam = %q, want SAT default", body.Profile.TargetExam)
	}
}
