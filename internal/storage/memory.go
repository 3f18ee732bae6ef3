package storage

import (
	"context"
	"sync"

	"github.com/terra-clan/tutor-quest/internal/models"
)

// MemoryStore implements Store in process memory. Nothing survives a restart.
type MemoryStore struct {
	mu          sync.RWMutex
	drafts      map[string]models.Attempt
	submissions []models.Submission
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		drafts: make(map[string]models.Attempt),
	}
}

func (s *MemoryStore) SaveDraft(ctx context.Context, id string, a models.Attempt) error {
	if err := ctx.Err(); err != nil {
		return fail("save draft", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drafts[id] = a.Clone()
	return nil
}

func (s *MemoryStore) LoadDraft(ctx context.Context, id string) (*models.Attempt, error) {
	if err := ctx.Err(); err != nil {
		return nil, fail("load draft", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.drafts[id]
	if !ok {
		return nil, nil
	}
	out := a.Clone()
	return &out, nil
}

func (s *MemoryStore) DeleteDraft(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return fail("delete draft", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.drafts, id)
	return nil
}

func (s *MemoryStore) AppendSubmission(ctx context.Context, sub models.Submission) error {
	if err := ctx.Err(); err != nil {
		return fail("append submission", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submissions = append(s.submissions, cloneSubmission(sub))
	return nil
}

func (s *MemoryStore) ListSubmissions(ctx context.Context) ([]models.Submission, error) {
	if err := ctx.Err(); err != nil {
		return nil, fail("list submissions", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Submission, len(s.submissions))
	for i, sub := range s.submissions {
		out[i] = cloneSubmission(sub)
	}
	return out, nil
}

func (s *MemoryStore) ClearSubmissions(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fail("clear submissions", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submissions = nil
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

func cloneSubmission(sub models.Submission) models.Submission {
	out := sub
	out.Owned = append([]string(nil), sub.Owned...)
	out.QuestionIDs = append([]string(nil), sub.QuestionIDs...)
	out.Answers = append([]string(nil), sub.Answers...)
	return out
}
