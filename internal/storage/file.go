package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/terra-clan/tutor-quest/internal/models"
)

// FileStore implements Store as one JSON document on local disk.
//
// Every mutation rewrites the whole document into a temporary file next to
// the target and renames it into place, so a failed write leaves the last
// committed document untouched. The mutex is the single writer; the file is
// not safe to share between processes.
type FileStore struct {
	mu   sync.Mutex
	path string

	createTemp func(dir, pattern string) (*os.File, error)
}

type fileDocument struct {
	Drafts      map[string]models.Attempt `json:"drafts"`
	Submissions []models.Submission       `json:"submissions"`
}

// NewFileStore opens (or prepares) the document at path
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("file path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fail("open", err)
	}

	s := &FileStore{path: filepath.Clean(path), createTemp: os.CreateTemp}

	// Refuse to start on a document we cannot parse rather than overwrite it later.
	if _, err := s.read(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the document location
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) SaveDraft(ctx context.Context, id string, a models.Attempt) error {
	return s.update(ctx, "save draft", func(doc *fileDocument) error {
		doc.Drafts[id] = a
		return nil
	})
}

func (s *FileStore) LoadDraft(ctx context.Context, id string) (*models.Attempt, error) {
	if err := ctx.Err(); err != nil {
		return nil, fail("load draft", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	a, ok := doc.Drafts[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (s *FileStore) DeleteDraft(ctx context.Context, id string) error {
	return s.update(ctx, "delete draft", func(doc *fileDocument) error {
		if _, ok := doc.Drafts[id]; !ok {
			return errUnchanged
		}
		delete(doc.Drafts, id)
		return nil
	})
}

func (s *FileStore) AppendSubmission(ctx context.Context, sub models.Submission) error {
	return s.update(ctx, "append submission", func(doc *fileDocument) error {
		doc.Submissions = append(doc.Submissions, sub)
		return nil
	})
}

func (s *FileStore) ListSubmissions(ctx context.Context) ([]models.Submission, error) {
	if err := ctx.Err(); err != nil {
		return nil, fail("list submissions", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	if doc.Submissions == nil {
		return []models.Submission{}, nil
	}
	return doc.Submissions, nil
}

func (s *FileStore) ClearSubmissions(ctx context.Context) error {
	return s.update(ctx, "clear submissions", func(doc *fileDocument) error {
		doc.Submissions = nil
		return nil
	})
}

// Ping checks that the directory exists and the document is still readable
func (s *FileStore) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := os.Stat(filepath.Dir(s.path)); err != nil {
		return fail("ping", err)
	}
	_, err := s.read()
	return err
}

func (s *FileStore) Close() error {
	return nil
}

var errUnchanged = errors.New("unchanged")

// update runs fn on the current document and commits the result atomically
func (s *FileStore) update(ctx context.Context, op string, fn func(doc *fileDocument) error) error {
	if err := ctx.Err(); err != nil {
		return fail(op, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return err
	}
	if err := fn(&doc); err != nil {
		if errors.Is(err, errUnchanged) {
			return nil
		}
		return fail(op, err)
	}
	return fail(op, s.write(doc))
}

func (s *FileStore) read() (fileDocument, error) {
	doc := fileDocument{Drafts: make(map[string]models.Attempt)}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return doc, nil
		}
		return doc, fail("read", err)
	}
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return doc, fail("read", fmt.Errorf("decode %s: %w", s.path, err))
	}
	if doc.Drafts == nil {
		doc.Drafts = make(map[string]models.Attempt)
	}
	return doc, nil
}

func (s *FileStore) write(doc fileDocument) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}

	tmp, err := s.createTemp(filepath.Dir(s.path), ".tutor-quest-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace %s: %w", s.path, err)
	}
	committed = true
	return nil
}
