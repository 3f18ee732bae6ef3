// Package session implements the questionnaire state machine.
//
// Every operation takes the current Attempt and returns its successor. The
// input is never modified, and on error it is returned unchanged, so callers
// can keep the previous value when an action is rejected.
package session

import (
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/terra-clan/tutor-quest/internal/models"
)

// Common errors
var (
	ErrMissingIdentity    = errors.New("name is required")
	ErrAlreadySubmitted   = errors.New("attempt already submitted")
	ErrInsufficientFunds  = errors.New("not enough coins")
	ErrAlreadyOwned       = errors.New("item already owned")
	ErrUnknownItem        = errors.New("item not in catalog")
	ErrUnknownAvatar      = errors.New("avatar not available")
	ErrPositionOutOfRange = errors.New("question position out of range")
	ErrInvalidDirection   = errors.New("only backward navigation is allowed")
	ErrLocalProgress      = errors.New("local answers present, draft not restored")
)

// Direction of plain navigation
type Direction string

const (
	Prev Direction = "prev"
	Next Direction = "next"
)

// AdvanceResult reports what happened during Advance
type AdvanceResult struct {
	ReachedEnd   bool
	LevelsGained int
	BonusCoins   int
}

// Machine applies user actions to attempts under fixed rules and content
type Machine struct {
	rules     models.Rules
	questions []models.Question
	catalog   map[string]models.CatalogItem
	avatars   []string
}

// NewMachine creates a state machine. questions must not be empty.
func NewMachine(rules models.Rules, questions []models.Question, catalog []models.CatalogItem, avatars []models.Avatar) *Machine {
	m := &Machine{
		rules:     rules,
		questions: questions,
		catalog:   make(map[string]models.CatalogItem, len(catalog)),
		avatars:   make([]string, 0, len(avatars)),
	}
	if m.rules.LevelXPFactor <= 0 {
		m.rules.LevelXPFactor = models.DefaultRules().LevelXPFactor
	}
	for _, item := range catalog {
		m.catalog[item.ID] = item
	}
	for _, av := range avatars {
		m.avatars = append(m.avatars, av.ID)
	}
	return m
}

// Rules returns the reward constants in effect
func (m *Machine) Rules() models.Rules {
	return m.rules
}

// Questions returns the question set
func (m *Machine) Questions() []models.Question {
	return m.questions
}

// Current returns the question under the cursor
func (m *Machine) Current(a models.Attempt) models.Question {
	return m.questions[clamp(a.Cursor, 0, len(m.questions)-1)]
}

// Progress summarizes the attempt against the question set
func (m *Machine) Progress(a models.Attempt) models.Progress {
	return models.Progress{
		Step:     a.Cursor + 1,
		Total:    len(m.questions),
		Answered: a.AnsweredCount(),
	}
}

// Start returns a fresh attempt
func (m *Machine) Start(at time.Time) models.Attempt {
	a := models.Attempt{
		Status:    models.AttemptInProgress,
		StartedAt: at,
		UpdatedAt: at,
	}
	if len(m.avatars) > 0 {
		a.Avatar = m.avatars[0]
	}
	m.resetProgress(&a)
	return a
}

// RecordAnswer stores text as the answer at position
func (m *Machine) RecordAnswer(a models.Attempt, position int, text string) (models.Attempt, error) {
	if a.Status.IsTerminal() {
		return a, ErrAlreadySubmitted
	}
	if position < 0 || position >= len(a.Answers) {
		return a, ErrPositionOutOfRange
	}

	next := a.Clone()
	next.Answers[position] = text
	return next, nil
}

// Navigate moves the cursor backward. Forward movement only happens through Advance.
func (m *Machine) Navigate(a models.Attempt, dir Direction) (models.Attempt, error) {
	if a.Status.IsTerminal() {
		return a, ErrAlreadySubmitted
	}
	if dir != Prev {
		return a, ErrInvalidDirection
	}
	if a.Cursor == 0 {
		return a, nil
	}

	next := a.Clone()
	next.Cursor--
	return next, nil
}

// Advance is "save and continue": it grants the step reward, applies level-ups
// and moves to the next question unless the cursor is on the last one.
//
// Level-ups cascade: the check repeats until experience is below the next
// threshold, so a large experience jump can raise several levels at once.
func (m *Machine) Advance(a models.Attempt) (models.Attempt, AdvanceResult, error) {
	var res AdvanceResult
	if a.Status.IsTerminal() {
		return a, res, ErrAlreadySubmitted
	}
	if !a.Identity.HasName() {
		return a, res, ErrMissingIdentity
	}

	next := a.Clone()
	next.Ledger.Coins += m.rules.CoinReward
	next.Ledger.XP += m.rules.XPReward

	for next.Ledger.XP >= next.Ledger.Level*m.rules.LevelXPFactor {
		next.Ledger.Level++
		next.Ledger.Coins += m.rules.LevelUpBonus
		res.LevelsGained++
		res.BonusCoins += m.rules.LevelUpBonus
	}

	if next.Cursor < len(m.questions)-1 {
		next.Cursor++
	} else {
		res.ReachedEnd = true
	}

	return next, res, nil
}

// Purchase buys a catalog item with coins
func (m *Machine) Purchase(a models.Attempt, itemID string) (models.Attempt, error) {
	if a.Status.IsTerminal() {
		return a, ErrAlreadySubmitted
	}
	item, ok := m.catalog[itemID]
	if !ok {
		return a, ErrUnknownItem
	}
	if a.Owns(itemID) {
		return a, ErrAlreadyOwned
	}
	if a.Ledger.Coins < item.Price {
		return a, ErrInsufficientFunds
	}

	next := a.Clone()
	next.Ledger.Coins -= item.Price
	next.Owned = append(next.Owned, itemID)
	return next, nil
}

// Submit finalizes the attempt. The returned submission has no ID; the caller assigns one.
func (m *Machine) Submit(a models.Attempt, at time.Time) (models.Attempt, models.Submission, error) {
	if a.Status.IsTerminal() {
		return a, models.Submission{}, ErrAlreadySubmitted
	}
	if !a.Identity.HasName() {
		return a, models.Submission{}, ErrMissingIdentity
	}

	next := a.Clone()
	next.Status = models.AttemptSubmitted
	next.UpdatedAt = at

	sub := models.Submission{
		SubmittedAt: at.UTC(),
		ApplicantID: a.Identity.ApplicantID(),
		Identity:    a.Identity,
		Avatar:      a.Avatar,
		Owned:       slices.Clone(a.Owned),
		Ledger:      a.Ledger,
		QuestionIDs: models.QuestionIDs(m.questions),
		Answers:     slices.Clone(a.Answers),
	}
	return next, sub, nil
}

// Reset clears game progress. Identity and avatar are kept.
func (m *Machine) Reset(a models.Attempt, at time.Time) (models.Attempt, error) {
	if a.Status.IsTerminal() {
		return a, ErrAlreadySubmitted
	}

	next := a.Clone()
	m.resetProgress(&next)
	next.UpdatedAt = at
	return next, nil
}

// UpdateIdentity replaces the profile fields
func (m *Machine) UpdateIdentity(a models.Attempt, identity models.Identity) (models.Attempt, error) {
	if a.Status.IsTerminal() {
		return a, ErrAlreadySubmitted
	}

	next := a.Clone()
	next.Identity = models.Identity{
		Name:       strings.TrimSpace(identity.Name),
		NationalID: strings.TrimSpace(identity.NationalID),
		Phone:      strings.TrimSpace(identity.Phone),
		Email:      strings.TrimSpace(identity.Email),
		Experience: strings.TrimSpace(identity.Experience),
		Education:  strings.TrimSpace(identity.Education),
	}
	return next, nil
}

// ChooseAvatar selects one avatar of the fixed set
func (m *Machine) ChooseAvatar(a models.Attempt, avatarID string) (models.Attempt, error) {
	if a.Status.IsTerminal() {
		return a, ErrAlreadySubmitted
	}
	if !slices.Contains(m.avatars, avatarID) {
		return a, ErrUnknownAvatar
	}

	next := a.Clone()
	next.Avatar = avatarID
	return next, nil
}

// ToggleFlag marks or unmarks the question at position for review
func (m *Machine) ToggleFlag(a models.Attempt, position int) (models.Attempt, error) {
	if a.Status.IsTerminal() {
		return a, ErrAlreadySubmitted
	}
	if position < 0 || position >= len(m.questions) {
		return a, ErrPositionOutOfRange
	}

	id := m.questions[position].QuestionID()
	next := a.Clone()
	if i := slices.Index(next.Flagged, id); i >= 0 {
		next.Flagged = slices.Delete(next.Flagged, i, i+1)
	} else {
		next.Flagged = append(next.Flagged, id)
	}
	return next, nil
}

// Resume replaces current with a stored draft, keeping the identity of current.
// It refuses when current already has answers, so local work is never clobbered.
func (m *Machine) Resume(current, draft models.Attempt) (models.Attempt, error) {
	if current.Status.IsTerminal() || draft.Status.IsTerminal() {
		return current, ErrAlreadySubmitted
	}
	if !current.AnswersBlank() {
		return current, ErrLocalProgress
	}

	next := draft.Clone()
	next.Identity = current.Identity
	// Drafts saved against a different question set are realigned by length.
	if len(next.Answers) != len(m.questions) {
		answers := make([]string, len(m.questions))
		copy(answers, next.Answers)
		next.Answers = answers
	}
	next.Cursor = clamp(next.Cursor, 0, len(m.questions)-1)
	return next, nil
}

func (m *Machine) resetProgress(a *models.Attempt) {
	a.Cursor = 0
	a.Answers = make([]string, len(m.questions))
	a.Flagged = nil
	a.Owned = nil
	a.Ledger = models.Ledger{
		Coins: m.rules.StartingCoins,
		XP:    0,
		Level: 1,
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
