package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/terra-clan/tutor-quest/internal/models"
)

// --- Session handlers (public, addressed by token) ---

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	out, err := s.quests.Start(r.Context())
	if err != nil {
		slog.Error("failed to start session", "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to start session")
		return
	}

	respondJSON(w, http.StatusCreated, out)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	out, err := s.quests.Get(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		respondQuestError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var req models.AnswerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	s.applyAction(w, r, models.Action{Type: models.ActionAnswer, Position: req.Position, Text: req.Text})
}

func (s *Server) handleBack(w http.ResponseWriter, r *http.Request) {
	s.applyAction(w, r, models.Action{Type: models.ActionBack})
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	s.applyAction(w, r, models.Action{Type: models.ActionAdvance})
}

func (s *Server) handlePurchase(w http.ResponseWriter, r *http.Request) {
	var req models.PurchaseRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ItemID == "" {
		respondError(w, http.StatusBadRequest, "validation_error", "item_id is required")
		return
	}
	s.applyAction(w, r, models.Action{Type: models.ActionPurchase, ItemID: req.ItemID})
}

func (s *Server) handleUpdateIdentity(w http.ResponseWriter, r *http.Request) {
	var req models.Identity
	if !decodeBody(w, r, &req) {
		return
	}
	s.applyAction(w, r, models.Action{Type: models.ActionIdentity, Identity: &req})
}

func (s *Server) handleChooseAvatar(w http.ResponseWriter, r *http.Request) {
	var req models.AvatarRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.AvatarID == "" {
		respondError(w, http.StatusBadRequest, "validation_error", "avatar_id is required")
		return
	}
	s.applyAction(w, r, models.Action{Type: models.ActionAvatar, AvatarID: req.AvatarID})
}

func (s *Server) handleToggleFlag(w http.ResponseWriter, r *http.Request) {
	var req models.PositionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	s.applyAction(w, r, models.Action{Type: models.ActionFlag, Position: req.Position})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	s.applyAction(w, r, models.Action{Type: models.ActionResume})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.applyAction(w, r, models.Action{Type: models.ActionReset})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	s.applyAction(w, r, models.Action{Type: models.ActionSubmit})
}

// applyAction runs one action against the session named in the URL
func (s *Server) applyAction(w http.ResponseWriter, r *http.Request, action models.Action) {
	out, err := s.quests.Apply(r.Context(), chi.URLParam(r, "token"), action)
	if err != nil {
		respondQuestError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, out)
}

// decodeBody reads a JSON body into v. An empty body leaves v untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return false
	}
	return true
}
