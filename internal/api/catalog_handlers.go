package api

import (
	"net/http"
)

// Catalog handlers: read-only views of the loaded quest

func (s *Server) handleListQuestions(w http.ResponseWriter, r *http.Request) {
	views := s.quest.Views()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"title":     s.quest.Title,
		"questions": views,
		"total":     len(views),
	})
}

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"items": s.quest.Catalog,
		"total": len(s.quest.Catalog),
	})
}

func (s *Server) handleListAvatars(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"avatars": s.quest.Avatars,
		"total":   len(s.quest.Avatars),
	})
}

func (s *Server) handleGetRules(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.quest.Rules)
}
