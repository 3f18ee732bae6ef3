// Package quest runs live questionnaire sessions on top of the state machine
// and the persistence store.
package quest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/terra-clan/tutor-quest/internal/config"
	"github.com/terra-clan/tutor-quest/internal/export"
	"github.com/terra-clan/tutor-quest/internal/grading"
	"github.com/terra-clan/tutor-quest/internal/metrics"
	"github.com/terra-clan/tutor-quest/internal/models"
	"github.com/terra-clan/tutor-quest/internal/session"
	"github.com/terra-clan/tutor-quest/internal/storage"
)

// Manager defines the operations the API needs from the quest service
type Manager interface {
	Start(ctx context.Context) (models.Outcome, error)
	Get(ctx context.Context, token string) (models.Outcome, error)
	Apply(ctx context.Context, token string, action models.Action) (models.Outcome, error)
	Sessions() []models.SessionInfo

	ListSubmissions(ctx context.Context) (models.SubmissionList, error)
	ClearSubmissions(ctx context.Context) error
	ExportCSV(ctx context.Context, w io.Writer) error
	Grades(ctx context.Context) ([]grading.Report, error)

	Ping(ctx context.Context) error
}

// Options tunes a Service
type Options struct {
	RestorePolicy string
	IdleTTL       time.Duration
	Metrics       *metrics.Metrics
	Now           func() time.Time
}

// Service owns the live session table
type Service struct {
	machine       *session.Machine
	store         storage.Store
	metrics       *metrics.Metrics
	restorePolicy string
	idleTTL       time.Duration
	now           func() time.Time
	newID         func() string

	mu       sync.RWMutex
	sessions map[string]*liveSession
}

// liveSession is one applicant's in-memory attempt. mu serializes actions.
type liveSession struct {
	mu             sync.Mutex
	attempt        models.Attempt
	draftAvailable bool
	evicted        bool
	createdAt      time.Time
	lastSeen       time.Time
}

// NewService creates a quest service
func NewService(machine *session.Machine, store storage.Store, opts Options) *Service {
	if opts.RestorePolicy == "" {
		opts.RestorePolicy = config.RestoreAuto
	}
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = 2 * time.Hour
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Service{
		machine:       machine,
		store:         store,
		metrics:       opts.Metrics,
		restorePolicy: opts.RestorePolicy,
		idleTTL:       opts.IdleTTL,
		now:           opts.Now,
		newID:         uuid.NewString,
		sessions:      make(map[string]*liveSession),
	}
}

// Start opens a new live session with a fresh attempt
func (s *Service) Start(ctx context.Context) (models.Outcome, error) {
	token, err := models.GenerateSessionToken()
	if err != nil {
		return models.Outcome{}, fmt.Errorf("failed to generate session token: %w", err)
	}

	now := s.now()
	ls := &liveSession{
		attempt:   s.machine.Start(now),
		createdAt: now,
		lastSeen:  now,
	}

	s.mu.Lock()
	s.sessions[token] = ls
	count := len(s.sessions)
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.ActiveSessions.Set(float64(count))
	}
	slog.Info("session started", "token", maskToken(token))

	ls.mu.Lock()
	defer ls.mu.Unlock()
	return s.outcome(token, ls), nil
}

// Get returns the current state of a live session
func (s *Service) Get(ctx context.Context, token string) (models.Outcome, error) {
	ls, err := s.lock(token)
	if err != nil {
		return models.Outcome{}, err
	}
	defer ls.mu.Unlock()

	ls.lastSeen = s.now()
	return s.outcome(token, ls), nil
}

// Apply runs one action as an atomic step: the reducer and any persistence it
// triggers complete before the next action on the same session starts. On
// error the session keeps its previous attempt.
func (s *Service) Apply(ctx context.Context, token string, action models.Action) (models.Outcome, error) {
	ls, err := s.lock(token)
	if err != nil {
		s.observe(action.Type, err)
		return models.Outcome{}, err
	}
	defer ls.mu.Unlock()

	now := s.now()
	ls.lastSeen = now

	out, err := s.apply(ctx, token, ls, action, now)
	s.observe(action.Type, err)
	if err != nil {
		slog.Debug("action rejected",
			"token", maskToken(token),
			"type", action.Type,
			"code", ErrorCode(err),
		)
		return models.Outcome{}, err
	}
	return out, nil
}

func (s *Service) apply(ctx context.Context, token string, ls *liveSession, action models.Action, now time.Time) (models.Outcome, error) {
	current := ls.attempt
	var (
		next       models.Attempt
		advanceRes session.AdvanceResult
		persist    bool
		err        error
	)

	switch action.Type {
	case models.ActionAnswer:
		next, err = s.machine.RecordAnswer(current, action.Position, action.Text)
	case models.ActionBack:
		next, err = s.machine.Navigate(current, session.Prev)
	case models.ActionAdvance:
		next, advanceRes, err = s.machine.Advance(current)
		persist = true
	case models.ActionPurchase:
		next, err = s.machine.Purchase(current, action.ItemID)
		persist = true
	case models.ActionAvatar:
		next, err = s.machine.ChooseAvatar(current, action.AvatarID)
	case models.ActionFlag:
		next, err = s.machine.ToggleFlag(current, action.Position)
	case models.ActionReset:
		next, err = s.machine.Reset(current, now)
		persist = true
	case models.ActionIdentity:
		if action.Identity == nil {
			return models.Outcome{}, fmt.Errorf("%w: identity payload is required", ErrInvalidAction)
		}
		return s.updateIdentity(ctx, token, ls, *action.Identity, now)
	case models.ActionResume:
		return s.resume(ctx, token, ls, now)
	case models.ActionSubmit:
		return s.submit(ctx, token, ls, now)
	default:
		return models.Outcome{}, fmt.Errorf("%w: unknown type %q", ErrInvalidAction, action.Type)
	}
	if err != nil {
		return models.Outcome{}, err
	}

	next.UpdatedAt = now
	ls.attempt = next

	out := s.outcome(token, ls)
	out.ReachedEnd = advanceRes.ReachedEnd
	out.LevelsGained = advanceRes.LevelsGained
	out.BonusCoins = advanceRes.BonusCoins
	if persist {
		out.DraftError = s.saveDraft(ctx, next)
	}
	if advanceRes.LevelsGained > 0 {
		slog.Info("level up",
			"token", maskToken(token),
			"level", next.Ledger.Level,
			"bonus_coins", advanceRes.BonusCoins,
		)
	}
	return out, nil
}

// updateIdentity applies the profile and looks for a draft under the new applicant id
func (s *Service) updateIdentity(ctx context.Context, token string, ls *liveSession, identity models.Identity, now time.Time) (models.Outcome, error) {
	previousID := ls.attempt.Identity.ApplicantID()

	next, err := s.machine.UpdateIdentity(ls.attempt, identity)
	if err != nil {
		return models.Outcome{}, err
	}
	next.UpdatedAt = now
	ls.attempt = next

	applicantID := next.Identity.ApplicantID()
	if applicantID == "" || applicantID == previousID {
		return s.outcome(token, ls), nil
	}

	ls.draftAvailable = false
	draft, err := s.store.LoadDraft(ctx, applicantID)
	if err != nil {
		slog.Warn("draft lookup failed", "applicant_id", applicantID, "error", err)
		out := s.outcome(token, ls)
		out.DraftError = err.Error()
		return out, nil
	}
	if draft == nil || draft.Status.IsTerminal() {
		return s.outcome(token, ls), nil
	}

	if s.restorePolicy == config.RestoreAuto {
		if restored, err := s.machine.Resume(ls.attempt, *draft); err == nil {
			restored.UpdatedAt = now
			ls.attempt = restored
			slog.Info("draft restored", "token", maskToken(token), "applicant_id", applicantID)
			out := s.outcome(token, ls)
			out.Restored = true
			return out, nil
		}
	}

	ls.draftAvailable = true
	return s.outcome(token, ls), nil
}

// resume explicitly restores the stored draft of the current applicant
func (s *Service) resume(ctx context.Context, token string, ls *liveSession, now time.Time) (models.Outcome, error) {
	applicantID := ls.attempt.Identity.ApplicantID()
	if applicantID == "" {
		return models.Outcome{}, ErrNoDraft
	}

	draft, err := s.store.LoadDraft(ctx, applicantID)
	if err != nil {
		return models.Outcome{}, fmt.Errorf("failed to load draft: %w", err)
	}
	if draft == nil {
		return models.Outcome{}, ErrNoDraft
	}

	restored, err := s.machine.Resume(ls.attempt, *draft)
	if err != nil {
		return models.Outcome{}, err
	}
	restored.UpdatedAt = now
	ls.attempt = restored
	ls.draftAvailable = false

	slog.Info("draft restored", "token", maskToken(token), "applicant_id", applicantID)
	out := s.outcome(token, ls)
	out.Restored = true
	return out, nil
}

// submit freezes the attempt and appends it to the submission log. The live
// attempt only becomes terminal once the append succeeded.
func (s *Service) submit(ctx context.Context, token string, ls *liveSession, now time.Time) (models.Outcome, error) {
	next, sub, err := s.machine.Submit(ls.attempt, now)
	if err != nil {
		return models.Outcome{}, err
	}
	sub.ID = s.newID()

	if err := s.store.AppendSubmission(ctx, sub); err != nil {
		slog.Error("failed to record submission",
			"token", maskToken(token),
			"submission_id", sub.ID,
			"error", err,
		)
		if s.metrics != nil {
			s.metrics.ObserveSubmission("failed")
		}
		return models.Outcome{}, fmt.Errorf("%w: %w", ErrSubmissionNotRecorded, err)
	}
	if s.metrics != nil {
		s.metrics.ObserveSubmission("recorded")
	}

	ls.attempt = next
	ls.draftAvailable = false

	slog.Info("submission recorded",
		"token", maskToken(token),
		"submission_id", sub.ID,
		"applicant_id", sub.ApplicantID,
	)

	out := s.outcome(token, ls)
	out.Submission = &sub
	if sub.ApplicantID != "" {
		if err := s.store.DeleteDraft(ctx, sub.ApplicantID); err != nil {
			slog.Warn("failed to delete draft after submit", "applicant_id", sub.ApplicantID, "error", err)
			out.DraftError = err.Error()
		}
	}
	return out, nil
}

// saveDraft persists an in-progress attempt under its applicant id.
// A failure is reported, never undone: the step already happened.
func (s *Service) saveDraft(ctx context.Context, a models.Attempt) string {
	applicantID := a.Identity.ApplicantID()
	if applicantID == "" || a.Status.IsTerminal() {
		return ""
	}
	if err := s.store.SaveDraft(ctx, applicantID, a); err != nil {
		slog.Warn("draft save failed", "applicant_id", applicantID, "error", err)
		if s.metrics != nil {
			s.metrics.DraftFailures.Inc()
		}
		return err.Error()
	}
	return ""
}

// Sessions lists the live sessions
func (s *Service) Sessions() []models.SessionInfo {
	s.mu.RLock()
	live := make(map[string]*liveSession, len(s.sessions))
	for token, ls := range s.sessions {
		live[token] = ls
	}
	s.mu.RUnlock()

	infos := make([]models.SessionInfo, 0, len(live))
	for token, ls := range live {
		ls.mu.Lock()
		infos = append(infos, models.SessionInfo{
			Token:      maskToken(token),
			CreatedAt:  ls.createdAt,
			LastSeenAt: ls.lastSeen,
		})
		ls.mu.Unlock()
	}
	return infos
}

// Sweep evicts sessions idle for longer than the idle TTL and returns how many
// were removed. In-progress attempts with an applicant id are flushed as drafts
// first so unsaved answers survive the eviction.
func (s *Service) Sweep(ctx context.Context) int {
	cutoff := s.now().Add(-s.idleTTL)

	s.mu.RLock()
	candidates := make(map[string]*liveSession, len(s.sessions))
	for token, ls := range s.sessions {
		candidates[token] = ls
	}
	s.mu.RUnlock()

	var evicted []string
	for token, ls := range candidates {
		ls.mu.Lock()
		if ls.lastSeen.Before(cutoff) {
			if errMsg := s.saveDraft(ctx, ls.attempt); errMsg != "" {
				slog.Warn("evicting session with unsaved draft", "token", maskToken(token))
			}
			ls.evicted = true
			evicted = append(evicted, token)
		}
		ls.mu.Unlock()
	}

	if len(evicted) == 0 {
		return 0
	}

	s.mu.Lock()
	for _, token := range evicted {
		delete(s.sessions, token)
	}
	count := len(s.sessions)
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.ActiveSessions.Set(float64(count))
	}
	slog.Info("idle sessions evicted", "count", len(evicted), "remaining", count)
	return len(evicted)
}

// ListSubmissions returns every recorded submission in insertion order
func (s *Service) ListSubmissions(ctx context.Context) (models.SubmissionList, error) {
	subs, err := s.store.ListSubmissions(ctx)
	if err != nil {
		return models.SubmissionList{}, fmt.Errorf("failed to list submissions: %w", err)
	}
	return models.SubmissionList{Submissions: subs, Total: len(subs)}, nil
}

// ClearSubmissions empties the submission log
func (s *Service) ClearSubmissions(ctx context.Context) error {
	if err := s.store.ClearSubmissions(ctx); err != nil {
		return fmt.Errorf("failed to clear submissions: %w", err)
	}
	slog.Warn("submission log cleared")
	return nil
}

// ExportCSV writes all submissions as CSV with one column per live question
func (s *Service) ExportCSV(ctx context.Context, w io.Writer) error {
	subs, err := s.store.ListSubmissions(ctx)
	if err != nil {
		return fmt.Errorf("failed to list submissions: %w", err)
	}
	return export.WriteCSV(w, models.QuestionIDs(s.machine.Questions()), subs)
}

// Grades scores the puzzle answers of every submission
func (s *Service) Grades(ctx context.Context) ([]grading.Report, error) {
	subs, err := s.store.ListSubmissions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}
	return grading.GradeAll(s.machine.Questions(), subs), nil
}

// Ping checks the store
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// lock returns the live session with its mutex held
func (s *Service) lock(token string) (*liveSession, error) {
	s.mu.RLock()
	ls, ok := s.sessions[token]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}

	ls.mu.Lock()
	if ls.evicted {
		ls.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	return ls, nil
}

// outcome snapshots the session; callers hold ls.mu
func (s *Service) outcome(token string, ls *liveSession) models.Outcome {
	return models.Outcome{
		Token:          token,
		Attempt:        ls.attempt.Clone(),
		Question:       s.machine.Current(ls.attempt).View(),
		Progress:       s.machine.Progress(ls.attempt),
		DraftAvailable: ls.draftAvailable,
	}
}

func (s *Service) observe(t models.ActionType, err error) {
	if s.metrics != nil {
		s.metrics.ObserveAction(string(t), ErrorCode(err))
	}
}

// maskToken returns first 8 chars of token for safe logging
func maskToken(token string) string {
	if len(token) < 8 {
		return "***"
	}
	return token[:8] + "..."
}
