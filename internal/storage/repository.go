package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/terra-clan/tutor-quest/internal/models"
)

// ErrPersistence matches every backend I/O failure
var ErrPersistence = errors.New("persistence failure")

// PersistenceError reports a failed storage operation
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrPersistence) match any PersistenceError
func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}

func fail(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Err: err}
}

// DraftStore keeps the latest resumable attempt per applicant
type DraftStore interface {
	// SaveDraft overwrites any previous draft under id
	SaveDraft(ctx context.Context, id string, a models.Attempt) error
	// LoadDraft returns nil, nil when no draft exists
	LoadDraft(ctx context.Context, id string) (*models.Attempt, error)
	// DeleteDraft does not fail when id is absent
	DeleteDraft(ctx context.Context, id string) error
}

// SubmissionLog is the append-only log of finalized attempts
type SubmissionLog interface {
	AppendSubmission(ctx context.Context, s models.Submission) error
	// ListSubmissions returns submissions in insertion order
	ListSubmissions(ctx context.Context) ([]models.Submission, error)
	ClearSubmissions(ctx context.Context) error
}

// Store defines the interface for questionnaire persistence
type Store interface {
	DraftStore
	SubmissionLog

	// Health
	Ping(ctx context.Context) error
	Close() error
}
