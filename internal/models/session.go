package models

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// GenerateSessionToken creates a cryptographically random 48-char hex token
func GenerateSessionToken() (string, error) {
	bytes := make([]byte, 24)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// ActionType names a discrete user action on a live session
type ActionType string

const (
	ActionAnswer   ActionType = "answer"
	ActionBack     ActionType = "back"
	ActionAdvance  ActionType = "advance"
	ActionPurchase ActionType = "purchase"
	ActionIdentity ActionType = "identity"
	ActionAvatar   ActionType = "avatar"
	ActionFlag     ActionType = "flag"
	ActionResume   ActionType = "resume"
	ActionReset    ActionType = "reset"
	ActionSubmit   ActionType = "submit"
)

// Action is one user event. Only the fields relevant to Type are read.
type Action struct {
	Type     ActionType `json:"type"`
	Position int        `json:"position,omitempty"`
	Text     string     `json:"text,omitempty"`
	ItemID   string     `json:"item_id,omitempty"`
	AvatarID string     `json:"avatar_id,omitempty"`
	Identity *Identity  `json:"identity,omitempty"`
}

// Progress summarizes how far the applicant is
type Progress struct {
	Step     int `json:"step"` // 1-based position of the cursor
	Total    int `json:"total"`
	Answered int `json:"answered"`
}

// Outcome is the result of applying an action to a live session
type Outcome struct {
	Token          string       `json:"token"`
	Attempt        Attempt      `json:"attempt"`
	Question       QuestionView `json:"question"`
	Progress       Progress     `json:"progress"`
	ReachedEnd     bool         `json:"reached_end,omitempty"`
	LevelsGained   int          `json:"levels_gained,omitempty"`
	BonusCoins     int          `json:"bonus_coins,omitempty"`
	DraftAvailable bool         `json:"draft_available,omitempty"`
	Restored       bool         `json:"restored,omitempty"`
	DraftError     string       `json:"draft_error,omitempty"`
	Submission     *Submission  `json:"submission,omitempty"`
}

// SessionInfo describes a live session held by the server
type SessionInfo struct {
	Token      string    `json:"token"`
	CreatedAt  time.Time `json:"created_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

// PositionRequest carries a question position
type PositionRequest struct {
	Position int `json:"position"`
}

// AnswerRequest records an answer at a position
type AnswerRequest struct {
	Position int    `json:"position"`
	Text     string `json:"text"`
}

// PurchaseRequest buys a catalog item
type PurchaseRequest struct {
	ItemID string `json:"item_id"`
}

// AvatarRequest selects an avatar
type AvatarRequest struct {
	AvatarID string `json:"avatar_id"`
}

// SubmissionList is returned by the admin listing endpoint
type SubmissionList struct {
	Submissions []Submission `json:"submissions"`
	Total       int          `json:"total"`
}
