package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"

	"github.com/campusaid/campusaid/internal/agent"
	"github.com/campusaid/campusaid/internal/session"
	"github.com/campusaid/campusaid/internal/tools"
)

// maxMessageLength caps a single user message.
const maxMessageLength = 4000

// maxBodyBytes caps chat request bodies.
const maxBodyBytes = 1 << 20

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

type chatResponse struct {
	Success   bool           `json:"success"`
	Response  string         `json:"response"`
	Sources   []tools.Source `json:"sources"`
	Timestamp int64          `json:"timestamp"`
}

// parseChatRequest reads the message and session id from the query
// string (GET, for EventSource clients) or the JSON body (POST).
func parseChatRequest(r *http.Request) (chatRequest, error) {
	var req chatRequest
	if r.Method == http.MethodGet {
		req.Message = r.URL.Query().Get("message")
		req.SessionID = r.URL.Query().Get("session_id")
	} else {
		r.Body = http.MaxBytesReader(nil, r.Body, maxBodyBytes)
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return req, fmt.Errorf("invalid JSON body: %w", err)
		}
	}

	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		return req, fmt.Errorf("message is required")
	}
	if len(req.Message) > maxMessageLength {
		return req, fmt.Errorf("message exceeds %d characters", maxMessageLength)
	}
	return req, nil
}

// newSessionID mints a temporary session id for clients that did not
// supply one. The prefix marks it as server-generated.
func newSessionID() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "temp_" + hex[:8]
}

// historyMessages replays the most recent session entries as model
// conversation turns.
func (s *Server) historyMessages(sessionID string) []*ai.Message {
	entries, ok := s.sessions.History(sessionID, s.contextWindow)
	if !ok {
		return nil
	}

	msgs := make([]*ai.Message, 0, len(entries))
	for _, e := range entries {
		switch e.Role {
		case session.RoleUser:
			msgs = append(msgs, ai.NewUserMessage(ai.NewTextPart(e.Content)))
		case session.RoleAssistant:
			msgs = append(msgs, ai.NewModelMessage(ai.NewTextPart(e.Content)))
		}
	}
	return msgs
}

// recordTurn persists a completed exchange into session memory.
func (s *Server) recordTurn(sessionID, message string, result *agent.StreamResult) {
	toolNames := make([]string, len(result.ToolCalls))
	for i, tc := range result.ToolCalls {
		toolNames[i] = tc.Tool
	}
	s.sessions.AppendTurn(sessionID, message, result.Response, map[string]any{
		"tools_used": toolNames,
	})
}

// handleChatStream serves a chat request over SSE. Each chunk becomes
// one event whose name is the chunk type; the stream always ends with a
// single done or error event.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	req, err := parseChatRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error(), s.logger)
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = newSessionID()
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError,
			"streaming_unsupported", "Streaming is not supported", s.logger)
		return
	}

	history := s.historyMessages(sessionID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.Header().Set("X-Session-ID", sessionID)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	emitter := agent.NewEmitter(func(c agent.Chunk) error {
		return writeEvent(w, flusher, c.Type, c)
	})

	result, err := s.agent.Execute(r.Context(), history, req.Message, emitter)
	if err != nil {
		// The client already received the terminal error chunk, or is
		// gone; either way this is log-only.
		s.logger.Error("chat stream failed",
			"request_id", requestIDFrom(r.Context()),
			"session_id", sessionID,
			"error", err,
		)
		return
	}

	s.recordTurn(sessionID, req.Message, result)
	s.logger.Info("chat stream completed",
		"request_id", requestIDFrom(r.Context()),
		"session_id", sessionID,
		"tool_calls", len(result.ToolCalls),
	)
}

// handleChat serves the non-streaming variant: the same graph runs with
// chunks discarded, and only the final response is returned.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	req, err := parseChatRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error(), s.logger)
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = newSessionID()
	}
	history := s.historyMessages(sessionID)

	emitter := agent.NewEmitter(func(agent.Chunk) error { return nil })

	result, err := s.agent.Execute(r.Context(), history, req.Message, emitter)
	if err != nil {
		s.logger.Error("chat request failed",
			"request_id", requestIDFrom(r.Context()),
			"session_id", sessionID,
			"error", err,
		)
		status, code := classifyChatError(err)
		writeError(w, status, code, chatErrorMessage(err), s.logger)
		return
	}

	s.recordTurn(sessionID, req.Message, result)

	sources := result.Sources
	if sources == nil {
		sources = []tools.Source{}
	}
	writeJSON(w, http.StatusOK, chatResponse{
		Success:   true,
		Response:  result.Response,
		Sources:   sources,
		Timestamp: time.Now().UnixMilli(),
	}, s.logger)
}

func classifyChatError(err error) (status int, code string) {
	switch {
	case errors.Is(err, agent.ErrRequestTimeout):
		return http.StatusGatewayTimeout, "request_timeout"
	case errors.Is(err, agent.ErrModelFailure):
		return http.StatusBadGateway, "model_unavailable"
	case errors.Is(err, agent.ErrToolFailure):
		return http.StatusBadGateway, "tool_failure"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func chatErrorMessage(err error) string {
	switch {
	case errors.Is(err, agent.ErrRequestTimeout):
		return "The request timed out before a response could be completed. Please try again."
	case errors.Is(err, agent.ErrModelFailure):
		return "The assistant is temporarily unavailable. Please try again shortly."
	default:
		return "An error occurred while processing your request."
	}
}
