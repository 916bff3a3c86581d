package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/campusaid/campusaid/internal/session"
)

// defaultHistoryLimit is how many entries a session detail request
// returns unless the client asks otherwise.
const defaultHistoryLimit = 20

type sessionDetail struct {
	SessionID    string          `json:"session_id"`
	Summary      string          `json:"summary"`
	History      []session.Entry `json:"history"`
	MessageCount int             `json:"message_count"`
}

type sessionCleared struct {
	SessionID string `json:"session_id"`
	Cleared   bool   `json:"cleared"`
	Message   string `json:"message"`
}

type cleanupResult struct {
	RemovedSessions int    `json:"removed_sessions"`
	Message         string `json:"message"`
}

func (s *Server) handleMemoryStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sessions.Stats(), s.logger)
}

func (s *Server) handleMemorySession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("max_messages"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid_request",
				"max_messages must be a positive integer", s.logger)
			return
		}
		limit = n
	}

	history, ok := s.sessions.History(id, limit)
	if !ok {
		history = []session.Entry{}
	}

	writeJSON(w, http.StatusOK, sessionDetail{
		SessionID:    id,
		Summary:      s.sessions.Summary(id),
		History:      history,
		MessageCount: len(history),
	}, s.logger)
}

func (s *Server) handleMemoryClear(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	cleared := s.sessions.Clear(id)
	message := "Session memory cleared"
	if !cleared {
		message = "No session found"
	}

	writeJSON(w, http.StatusOK, sessionCleared{
		SessionID: id,
		Cleared:   cleared,
		Message:   message,
	}, s.logger)
}

func (s *Server) handleMemoryCleanup(w http.ResponseWriter, r *http.Request) {
	removed := s.sessions.Cleanup()
	writeJSON(w, http.StatusOK, cleanupResult{
		RemovedSessions: removed,
		Message:         fmt.Sprintf("Cleaned up %d expired sessions", removed),
	}, s.logger)
}
