package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/terra-clan/tutor-quest/internal/models"
	"github.com/terra-clan/tutor-quest/internal/storage/migrations"
)

// SQLiteStore implements Store on a single SQLite file
type SQLiteStore struct {
	db *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// NewSQLiteStore opens the database at path and applies embedded migrations.
// ":memory:" opens a private in-memory database.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	dsn := ":memory:"
	if path != ":memory:" {
		cleanPath := filepath.Clean(path)
		if err := os.MkdirAll(filepath.Dir(cleanPath), 0o755); err != nil {
			return nil, fail("open", err)
		}
		dsn = "file:" + cleanPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fail("open", err)
	}
	// one writer; also keeps ":memory:" on a single shared connection
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fail("open", err)
	}
	if err := runSQLiteMigrations(ctx, db, migrations.SQLite, "sqlite"); err != nil {
		_ = db.Close()
		return nil, fail("migrate", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) SaveDraft(ctx context.Context, id string, a models.Attempt) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return fail("save draft", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO drafts (applicant_id, attempt, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (applicant_id) DO UPDATE SET attempt = excluded.attempt, updated_at = excluded.updated_at
	`, id, string(payload), toMillis(time.Now()))
	return fail("save draft", err)
}

func (s *SQLiteStore) LoadDraft(ctx context.Context, id string) (*models.Attempt, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT attempt FROM drafts WHERE applicant_id = ?`, id).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fail("load draft", err)
	}

	var a models.Attempt
	if err := json.Unmarshal([]byte(payload), &a); err != nil {
		return nil, fail("load draft", fmt.Errorf("decode draft %q: %w", id, err))
	}
	return &a, nil
}

func (s *SQLiteStore) DeleteDraft(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM drafts WHERE applicant_id = ?`, id)
	return fail("delete draft", err)
}

func (s *SQLiteStore) AppendSubmission(ctx context.Context, sub models.Submission) error {
	payload, err := json.Marshal(sub)
	if err != nil {
		return fail("append submission", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO submissions (id, applicant_id, submitted_at, record)
		VALUES (?, ?, ?, ?)
	`, sub.ID, sub.ApplicantID, toMillis(sub.SubmittedAt), string(payload))
	return fail("append submission", err)
}

func (s *SQLiteStore) ListSubmissions(ctx context.Context) ([]models.Submission, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT record FROM submissions ORDER BY seq`)
	if err != nil {
		return nil, fail("list submissions", err)
	}
	defer rows.Close()

	out := []models.Submission{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fail("list submissions", err)
		}
		var sub models.Submission
		if err := json.Unmarshal([]byte(payload), &sub); err != nil {
			return nil, fail("list submissions", err)
		}
		out = append(out, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fail("list submissions", err)
	}
	return out, nil
}

func (s *SQLiteStore) ClearSubmissions(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM submissions`)
	return fail("clear submissions", err)
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return fail("ping", s.db.PingContext(ctx))
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
