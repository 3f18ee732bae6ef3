package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/terra-clan/tutor-quest/internal/models"
	"github.com/terra-clan/tutor-quest/internal/quest"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// SessionMessage is one frame sent to the client on the action channel
type SessionMessage struct {
	Type    string          `json:"type"` // "connected", "outcome" or "error"
	Outcome *models.Outcome `json:"outcome,omitempty"`
	Error   *apiError       `json:"error,omitempty"`
}

// handleSessionWS applies every inbound JSON Action as one step and answers
// each with an outcome or an error frame, in order.
func (s *Server) handleSessionWS(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	current, err := s.quests.Get(r.Context(), token)
	if err != nil {
		respondQuestError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("failed to upgrade to websocket", "error", err)
		return
	}
	defer conn.Close()

	// Hijacked connections keep the server's read/write deadlines
	_ = conn.SetReadDeadline(time.Time{})
	_ = conn.SetWriteDeadline(time.Time{})

	slog.Info("session websocket connected", "token", maskToken(token))

	if err := s.sendSessionMessage(conn, SessionMessage{Type: "connected", Outcome: &current}); err != nil {
		return
	}

	ctx := r.Context()
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("websocket read error", "error", err)
			}
			break
		}

		var action models.Action
		if err := json.Unmarshal(message, &action); err != nil {
			slog.Debug("invalid message format", "error", err)
			if err := s.sendSessionError(conn, quest.CodeInvalidAction, "invalid JSON action"); err != nil {
				break
			}
			continue
		}

		out, err := s.quests.Apply(ctx, token, action)
		if err != nil {
			if err := s.sendSessionError(conn, quest.ErrorCode(err), err.Error()); err != nil {
				break
			}
			continue
		}
		if err := s.sendSessionMessage(conn, SessionMessage{Type: "outcome", Outcome: &out}); err != nil {
			break
		}
	}

	slog.Info("session websocket disconnected", "token", maskToken(token))
}

func (s *Server) sendSessionMessage(conn *websocket.Conn, msg SessionMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("failed to marshal session message", "error", err)
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		slog.Debug("failed to send session message", "error", err)
		return err
	}
	return nil
}

func (s *Server) sendSessionError(conn *websocket.Conn, code, message string) error {
	return s.sendSessionMessage(conn, SessionMessage{
		Type:  "error",
		Error: &apiError{Code: code, Message: message},
	})
}

// maskToken returns first 8 chars of token for safe logging
func maskToken(token string) string {
	if len(token) < 8 {
		return "***"
	}
	return token[:8] + "..."
}
