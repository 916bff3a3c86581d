package api

import (
	"context"
	"net/http"
	"time"

	"github.com/campusaid/campusaid/internal/session"
)

// healthPingTimeout bounds the knowledge-base connectivity probe.
const healthPingTimeout = 2 * time.Second

type healthResponse struct {
	Status    string        `json:"status"`
	Service   string        `json:"service"`
	Agent     string        `json:"agent"`
	Features  []string      `json:"features"`
	Memory    session.Stats `json:"memory"`
	Timestamp int64         `json:"timestamp"`
}

// handleHealth reports service health. The feature list reflects what
// is actually reachable right now, so a lost database drops
// knowledge_base from the list without failing the check.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	features := make([]string, 0, 5)

	if s.knowledge != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthPingTimeout)
		if err := s.knowledge.Ping(ctx); err != nil {
			s.logger.Warn("knowledge base unreachable", "error", err)
		} else {
			features = append(features, "knowledge_base")
		}
		cancel()
	}
	if s.searchConfigured {
		features = append(features, "web_search")
	}
	features = append(features, "calculator", "streaming", "session_memory")

	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Service:   serviceName,
		Agent:     agentName,
		Features:  features,
		Memory:    s.sessions.Stats(),
		Timestamp: time.Now().UnixMilli(),
	}, s.logger)
}
