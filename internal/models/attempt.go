package models

import (
	"slices"
	"strings"
	"time"
)

// AttemptStatus represents the lifecycle state of an attempt
type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptSubmitted  AttemptStatus = "submitted"
)

// IsTerminal returns true once the attempt can no longer change
func (s AttemptStatus) IsTerminal() bool {
	return s == AttemptSubmitted
}

// Identity holds the applicant's free-text profile fields
type Identity struct {
	Name       string `json:"name"`
	NationalID string `json:"national_id"`
	Phone      string `json:"phone"`
	Email      string `json:"email"`
	Experience string `json:"experience"`
	Education  string `json:"education"`
}

// ApplicantID is the key drafts are stored under; empty when not yet provided
func (i Identity) ApplicantID() string {
	return strings.TrimSpace(i.NationalID)
}

// HasName reports whether a non-blank name was supplied
func (i Identity) HasName() bool {
	return strings.TrimSpace(i.Name) != ""
}

// Ledger tracks gamified progress
type Ledger struct {
	Coins int `json:"coins"`
	XP    int `json:"xp"`
	Level int `json:"level"`
}

// Attempt is one applicant's run through the question set
type Attempt struct {
	Identity  Identity      `json:"identity"`
	Cursor    int           `json:"cursor"`
	Answers   []string      `json:"answers"`
	Flagged   []string      `json:"flagged,omitempty"` // question ids marked for review
	Avatar    string        `json:"avatar"`
	Ledger    Ledger        `json:"ledger"`
	Owned     []string      `json:"owned,omitempty"` // purchase order, no duplicates
	Status    AttemptStatus `json:"status"`
	StartedAt time.Time     `json:"started_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Clone returns a deep copy so successors never share slices with their predecessor
func (a Attempt) Clone() Attempt {
	out := a
	out.Answers = slices.Clone(a.Answers)
	out.Flagged = slices.Clone(a.Flagged)
	out.Owned = slices.Clone(a.Owned)
	return out
}

// Owns reports whether the item was already bought
func (a Attempt) Owns(itemID string) bool {
	return slices.Contains(a.Owned, itemID)
}

// IsFlagged reports whether the question is marked for review
func (a Attempt) IsFlagged(questionID string) bool {
	return slices.Contains(a.Flagged, questionID)
}

// AnswersBlank returns true when no answer has any non-whitespace text
func (a Attempt) AnswersBlank() bool {
	for _, ans := range a.Answers {
		if strings.TrimSpace(ans) != "" {
			return false
		}
	}
	return true
}

// AnsweredCount returns the number of non-blank answers
func (a Attempt) AnsweredCount() int {
	n := 0
	for _, ans := range a.Answers {
		if strings.TrimSpace(ans) != "" {
			n++
		}
	}
	return n
}
