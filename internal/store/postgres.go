// Package store — PostgreSQL Store implementation backed by pgx.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/mathquest/coach-service/pkg/models"
)

// PostgresStore implements Store on a pgx connection pool. The schema is
// created on startup if it does not exist.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to connURL and runs migrations.
func NewPostgresStore(ctx context.Context, connURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connURL)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres migrate: %w", err)
	}

	log.Info().Msg("postgres store initialized")
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	ddl := `
		CREATE TABLE IF NOT EXISTS questions (
			id             TEXT PRIMARY KEY,
			prompt         TEXT NOT NULL,
			choices        TEXT[] NOT NULL DEFAULT '{}',
			correct_answer TEXT NOT NULL DEFAULT '',
			domain         TEXT NOT NULL DEFAULT '',
			difficulty     DOUBLE PRECISION NOT NULL DEFAULT 0,
			status         TEXT NOT NULL DEFAULT 'ACTIVE',
			created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS attempts (
			id            TEXT PRIMARY KEY,
			user_id       TEXT NOT NULL,
			question_id   TEXT NOT NULL,
			answer        TEXT NOT NULL DEFAULT '',
			correct       BOOLEAN NOT NULL,
			time_spent_ms INTEGER NOT NULL DEFAULT 0,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS attempts_user_created_idx ON attempts (user_id, created_at DESC);

		CREATE TABLE IF NOT EXISTS profiles (
			user_id      TEXT PRIMARY KEY,
			display_name TEXT NOT NULL DEFAULT '',
			xp           INTEGER NOT NULL DEFAULT 0,
			target_exam  TEXT NOT NULL DEFAULT 'SAT',
			parent_email TEXT NOT NULL DEFAULT '',
			settings     JSONB NOT NULL DEFAULT '{}',
			updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS streaks (
			user_id          TEXT PRIMARY KEY,
			current_streak   INTEGER NOT NULL DEFAULT 0,
			longest_streak   INTEGER NOT NULL DEFAULT 0,
			last_activity_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			streak_freezes   INTEGER NOT NULL DEFAULT 0
		);
	`
	_, err := s.pool.Exec(ctx, ddl)
	return err
}

func (s *PostgresStore) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// ── Questions ───────────────────────────────────────────────

func (s *PostgresStore) ListQuestions(ctx context.Context, domain string, limit int) ([]models.Question, error) {
	query := `SELECT id, prompt, choices, correct_answer, domain, difficulty, status, created_at
		FROM questions WHERE status = 'ACTIVE'`
	args := []any{}
	if domain != "" {
		query += ` AND domain = $1`
		args = append(args, domain)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d`, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()

	var questions []models.Question
	for rows.Next() {
		var q models.Question
		if err := rows.Scan(&q.ID, &q.Prompt, &q.Choices, &q.CorrectAnswer, &q.Domain, &q.Difficulty, &q.Status, &q.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

func (s *PostgresStore) GetQuestion(ctx context.Context, id string) (*models.Question, error) {
	var q models.Question
	err := s.pool.QueryRow(ctx,
		`SELECT id, prompt, choices, correct_answer, domain, difficulty, status, created_at
		 FROM questions WHERE id = $1`, id,
	).Scan(&q.ID, &q.Prompt, &q.Choices, &q.CorrectAnswer, &q.Domain, &q.Difficulty, &q.Status, &q.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "question", Key: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get question: %w", err)
	}
	return &q, nil
}

func (s *PostgresStore) CreateQuestion(ctx context.Context, q *models.Question) error {
	status := q.Status
	if status == "" {
		status = models.QuestionActive
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO questions (id, prompt, choices, correct_answer, domain, difficulty, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO UPDATE SET
			prompt = EXCLUDED.prompt, choices = EXCLUDED.choices,
			correct_answer = EXCLUDED.correct_answer, domain = EXCLUDED.domain,
			difficulty = EXCLUDED.difficulty, status = EXCLUDED.status`,
		q.ID, q.Prompt, q.Choices, q.CorrectAnswer, q.Domain, q.Difficulty, status, q.CreatedAt)
	if err != nil {
		return fmt.Errorf("create question: %w", err)
	}
	return nil
}

// ── Attempts ────────────────────────────────────────────────

func (s *PostgresStore) CreateAttempt(ctx context.Context, a *models.Attempt) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO attempts (id, user_id, question_id, answer, correct, time_spent_ms, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, a.UserID, a.QuestionID, a.Answer, a.Correct, a.TimeSpentMs, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("create attempt: %w", err)
	}
	return nil
}

func (s *PostgresStore) CountAttempts(ctx context.Context, userID string, correctOnly bool) (int, error) {
	query := `SELECT COUNT(*) FROM attempts WHERE user_id = $1`
	if correctOnly {
		query += ` AND correct`
	}
	var count int
	if err := s.pool.QueryRow(ctx, query, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count attempts: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) ListRecentAttempts(ctx context.Context, userID string, limit int) ([]models.RecentAttempt, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT a.id, COALESCE(q.domain, ''), COALESCE(q.difficulty, 0), a.correct, a.time_spent_ms, a.created_at
		 FROM attempts a LEFT JOIN questions q ON q.id = a.question_id
		 WHERE a.user_id = $1 ORDER BY a.created_at DESC LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent attempts: %w", err)
	}
	defer rows.Close()

	var attempts []models.RecentAttempt
	for rows.Next() {
		var a models.RecentAttempt
		if err := rows.Scan(&a.ID, &a.Domain, &a.Difficulty, &a.Correct, &a.TimeSpentMs, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// ── Profiles ────────────────────────────────────────────────

func (s *PostgresStore) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	var p models.Profile
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, display_name, xp, target_exam, parent_email, settings, updated_at
		 FROM profiles WHERE user_id = $1`, userID,
	).Scan(&p.UserID, &p.DisplayName, &p.XP, &p.TargetExam, &p.ParentEmail, &p.Settings, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "profile", Key: userID}
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return &p, nil
}

func (s *PostgresStore) UpsertProfile(ctx context.Context, p *models.Profile) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO profiles (user_id, display_name, xp, target_exam, parent_email, settings, updated_at)
		 VALUES ($1, $2, 0, $3, $4, $5, NOW())
		 ON CONFLICT (user_id) DO UPDATE SET
			display_name = EXCLUDED.display_name, target_exam = EXCLUDED.target_exam,
			parent_email = EXCLUDED.parent_email, settings = EXCLUDED.settings,
			updated_at = NOW()`,
		p.UserID, p.DisplayName, p.TargetExam, p.ParentEmail, p.Settings)
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

func (s *PostgresStore) AddXP(ctx context.Context, userID, displayName string, delta int) (*models.Profile, error) {
	var p models.Profile
	err := s.pool.QueryRow(ctx,
		`INSERT INTO profiles (user_id, display_name, xp, updated_at)
		 VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (user_id) DO UPDATE SET
			xp = profiles.xp + EXCLUDED.xp, updated_at = NOW()
		 RETURNING user_id, display_name, xp, target_exam, parent_email, settings, updated_at`,
		userID, displayName, delta,
	).Scan(&p.UserID, &p.DisplayName, &p.XP, &p.TargetExam, &p.ParentEmail, &p.Settings, &p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("add xp: %w", err)
	}
	return &p, nil
}

// ── Streaks ─────────────────────────────────────────────────

func (s *PostgresStore) GetStreak(ctx context.Context, userID string) (*models.StreakData, error) {
	var st models.StreakData
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, current_streak, longest_streak, last_activity_at, streak_freezes
		 FROM streaks WHERE user_id = $1`, userID,
	).Scan(&st.UserID, &st.CurrentStreak, &st.LongestStreak, &st.LastActivityAt, &st.StreakFreezes)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "streak", Key: userID}
	}
	if err != nil {
		return nil, fmt.Errorf("get streak: %w", err)
	}
	return &st, nil
}

func (s *PostgresStore) UpsertStreak(ctx context.Context, st *models.StreakData) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO streaks (user_id, current_streak, longest_streak, last_activity_at, streak_freezes)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (user_id) DO UPDATE SET
			current_streak = EXCLUDED.current_streak, longest_streak = EXCLUDED.longest_streak,
			last_activity_at = EXCLUDED.last_activity_at, streak_freezes = EXCLUDED.streak_freezes`,
		st.UserID, st.CurrentStreak, st.LongestStreak, st.LastActivityAt, st.StreakFreezes)
	if err != nil {
		return fmt.Errorf("upsert streak: %w", err)
	}
	return nil
}
