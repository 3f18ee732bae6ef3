package api

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// --- Admin handlers (shared secret) ---

func (s *Server) handleListSubmissions(w http.ResponseWriter, r *http.Request) {
	list, err := s.quests.ListSubmissions(r.Context())
	if err != nil {
		respondQuestError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, list)
}

func (s *Server) handleClearSubmissions(w http.ResponseWriter, r *http.Request) {
	if err := s.quests.ClearSubmissions(r.Context()); err != nil {
		respondQuestError(w, err)
		return
	}

	slog.Warn("submissions cleared by admin", "remote_addr", clientIP(r))
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "cleared",
	})
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	// Render fully before writing so a store failure still gets a JSON error
	var buf bytes.Buffer
	if err := s.quests.ExportCSV(r.Context(), &buf); err != nil {
		respondQuestError(w, err)
		return
	}

	filename := fmt.Sprintf("submissions-%s.csv", time.Now().UTC().Format("20060102-150405"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		slog.Debug("failed to write csv export", "error", err)
	}
}

func (s *Server) handleGrades(w http.ResponseWriter, r *http.Request) {
	reports, err := s.quests.Grades(r.Context())
	if err != nil {
		respondQuestError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"grades": reports,
		"total":  len(reports),
	})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := s.quests.Sessions()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": sessions,
		"total":    len(sessions),
	})
}
