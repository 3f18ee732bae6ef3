package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/terra-clan/tutor-quest/internal/quest"
)

// Response helpers

type apiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *apiError   `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: status >= 200 && status < 300,
		Data:    data,
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: false,
		Error: &apiError{
			Code:    code,
			Message: message,
		},
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}

// statusFor maps a quest error code to an HTTP status
func statusFor(code string) int {
	switch code {
	case quest.CodeMissingIdentity:
		return http.StatusUnprocessableEntity
	case quest.CodeAlreadySubmitted,
		quest.CodeInsufficientFunds,
		quest.CodeAlreadyOwned,
		quest.CodeLocalProgress:
		return http.StatusConflict
	case quest.CodeUnknownItem,
		quest.CodeUnknownAvatar,
		quest.CodeSessionNotFound,
		quest.CodeNoDraft:
		return http.StatusNotFound
	case quest.CodePositionOutOfRange,
		quest.CodeInvalidDirection,
		quest.CodeInvalidAction:
		return http.StatusBadRequest
	case quest.CodeSubmissionNotRecorded,
		quest.CodeStorageUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondQuestError writes the envelope for an error returned by the quest service
func respondQuestError(w http.ResponseWriter, err error) {
	code := quest.ErrorCode(err)
	status := statusFor(code)

	message := err.Error()
	if status == http.StatusInternalServerError {
		slog.Error("unexpected quest error", "error", err)
		message = "internal server error"
	}
	if errors.Is(err, quest.ErrSubmissionNotRecorded) {
		message = "submission could not be recorded, please retry"
	}

	respondError(w, status, code, message)
}

// Health handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	results := s.health.CheckAll(r.Context())

	checks := make(map[string]string, len(results))
	ready := true
	for name, err := range results {
		if err != nil {
			slog.Warn("readiness check failed", "check", name, "error", err)
			checks[name] = "unavailable"
			ready = false
			continue
		}
		checks[name] = "ok"
	}

	if !ready {
		respondError(w, http.StatusServiceUnavailable, "not_ready", "service not ready")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ready",
		"checks": checks,
	})
}
