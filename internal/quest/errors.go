package quest

import (
	"errors"

	"github.com/terra-clan/tutor-quest/internal/session"
	"github.com/terra-clan/tutor-quest/internal/storage"
)

// Common errors
var (
	ErrSessionNotFound       = errors.New("session not found")
	ErrNoDraft               = errors.New("no draft to resume")
	ErrInvalidAction         = errors.New("invalid action")
	ErrSubmissionNotRecorded = errors.New("submission not recorded")
)

// Error codes shared by the API envelope and the action metrics
const (
	CodeOK                    = "ok"
	CodeMissingIdentity       = "missing_identity"
	CodeAlreadySubmitted      = "already_submitted"
	CodeInsufficientFunds     = "insufficient_funds"
	CodeAlreadyOwned          = "already_owned"
	CodeUnknownItem           = "unknown_item"
	CodeUnknownAvatar         = "unknown_avatar"
	CodePositionOutOfRange    = "position_out_of_range"
	CodeInvalidDirection      = "invalid_direction"
	CodeLocalProgress         = "local_progress"
	CodeSessionNotFound       = "session_not_found"
	CodeNoDraft               = "no_draft"
	CodeInvalidAction         = "invalid_action"
	CodeSubmissionNotRecorded = "submission_not_recorded"
	CodeStorageUnavailable    = "storage_unavailable"
	CodeInternal              = "internal_error"
)

var codes = []struct {
	err  error
	code string
}{
	// checked before ErrPersistence, which it wraps
	{ErrSubmissionNotRecorded, CodeSubmissionNotRecorded},
	{session.ErrMissingIdentity, CodeMissingIdentity},
	{session.ErrAlreadySubmitted, CodeAlreadySubmitted},
	{session.ErrInsufficientFunds, CodeInsufficientFunds},
	{session.ErrAlreadyOwned, CodeAlreadyOwned},
	{session.ErrUnknownItem, CodeUnknownItem},
	{session.ErrUnknownAvatar, CodeUnknownAvatar},
	{session.ErrPositionOutOfRange, CodePositionOutOfRange},
	{session.ErrInvalidDirection, CodeInvalidDirection},
	{session.ErrLocalProgress, CodeLocalProgress},
	{ErrSessionNotFound, CodeSessionNotFound},
	{ErrNoDraft, CodeNoDraft},
	{ErrInvalidAction, CodeInvalidAction},
	{storage.ErrPersistence, CodeStorageUnavailable},
}

// ErrorCode returns the stable code for err, CodeOK for nil
func ErrorCode(err error) string {
	if err == nil {
		return CodeOK
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeInternal
}
