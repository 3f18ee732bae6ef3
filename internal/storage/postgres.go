package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/terra-clan/tutor-quest/internal/models"
	"github.com/terra-clan/tutor-quest/internal/storage/migrations"
)

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	pool *pgxpool.Pool
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	DSN         string
	MaxConns    int32
	MinConns    int32
	MaxLifetime time.Duration
}

// NewPostgresStore connects to PostgreSQL and applies embedded migrations
func NewPostgresStore(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}

	// Set pool configuration
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	} else {
		poolConfig.MaxConns = 10 // default
	}

	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	} else {
		poolConfig.MinConns = 1 // default
	}

	if cfg.MaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxLifetime
	} else {
		poolConfig.MaxConnLifetime = 30 * time.Minute
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fail("open", fmt.Errorf("failed to create connection pool: %w", err))
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fail("open", fmt.Errorf("failed to ping database: %w", err))
	}

	if err := RunMigrations(ctx, pool, migrations.Postgres, "postgres"); err != nil {
		pool.Close()
		return nil, fail("migrate", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Ping checks database connectivity
func (r *PostgresStore) Ping(ctx context.Context) error {
	return fail("ping", r.pool.Ping(ctx))
}

// Close closes the database connection pool
func (r *PostgresStore) Close() error {
	r.pool.Close()
	return nil
}

// SaveDraft upserts the draft of an applicant
func (r *PostgresStore) SaveDraft(ctx context.Context, id string, a models.Attempt) error {
	attemptJSON, err := json.Marshal(a)
	if err != nil {
		return fail("save draft", fmt.Errorf("failed to marshal attempt: %w", err))
	}

	query := `
		INSERT INTO drafts (applicant_id, attempt, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (applicant_id) DO UPDATE SET attempt = EXCLUDED.attempt, updated_at = EXCLUDED.updated_at
	`

	if _, err := r.pool.Exec(ctx, query, id, attemptJSON); err != nil {
		return fail("save draft", err)
	}

	return nil
}

// LoadDraft retrieves the draft of an applicant
func (r *PostgresStore) LoadDraft(ctx context.Context, id string) (*models.Attempt, error) {
	var attemptJSON []byte
	err := r.pool.QueryRow(ctx, `SELECT attempt FROM drafts WHERE applicant_id = $1`, id).Scan(&attemptJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fail("load draft", err)
	}

	var a models.Attempt
	if err := json.Unmarshal(attemptJSON, &a); err != nil {
		return nil, fail("load draft", fmt.Errorf("failed to unmarshal attempt: %w", err))
	}

	return &a, nil
}

// DeleteDraft removes the draft of an applicant
func (r *PostgresStore) DeleteDraft(ctx context.Context, id string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM drafts WHERE applicant_id = $1`, id); err != nil {
		return fail("delete draft", err)
	}
	return nil
}

// AppendSubmission adds a finalized attempt to the log
func (r *PostgresStore) AppendSubmission(ctx context.Context, sub models.Submission) error {
	recordJSON, err := json.Marshal(sub)
	if err != nil {
		return fail("append submission", fmt.Errorf("failed to marshal submission: %w", err))
	}

	query := `
		INSERT INTO submissions (id, applicant_id, submitted_at, record)
		VALUES ($1, $2, $3, $4)
	`

	if _, err := r.pool.Exec(ctx, query, sub.ID, sub.ApplicantID, sub.SubmittedAt, recordJSON); err != nil {
		return fail("append submission", err)
	}

	return nil
}

// ListSubmissions returns all submissions in insertion order
func (r *PostgresStore) ListSubmissions(ctx context.Context) ([]models.Submission, error) {
	rows, err := r.pool.Query(ctx, `SELECT record FROM submissions ORDER BY seq`)
	if err != nil {
		return nil, fail("list submissions", err)
	}
	defer rows.Close()

	submissions := []models.Submission{}
	for rows.Next() {
		var recordJSON []byte
		if err := rows.Scan(&recordJSON); err != nil {
			return nil, fail("list submissions", err)
		}

		var sub models.Submission
		if err := json.Unmarshal(recordJSON, &sub); err != nil {
			return nil, fail("list submissions", fmt.Errorf("failed to unmarshal submission: %w", err))
		}
		submissions = append(submissions, sub)
	}

	if err := rows.Err(); err != nil {
		return nil, fail("list submissions", err)
	}

	return submissions, nil
}

// ClearSubmissions empties the submission log
func (r *PostgresStore) ClearSubmissions(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM submissions`); err != nil {
		return fail("clear submissions", err)
	}
	return nil
}
