// Package api exposes the HTTP surface: the streaming and non-streaming
// chat endpoints, session memory management, and health.
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/firebase/genkit/go/ai"

	"github.com/campusaid/campusaid/internal/agent"
	"github.com/campusaid/campusaid/internal/log"
	"github.com/campusaid/campusaid/internal/session"
)

// serviceName identifies this service in health payloads.
const serviceName = "campusaid"

// agentName identifies the orchestration profile in health payloads.
const agentName = "campus-support-agent"

// defaultContextWindow bounds how many history entries seed a request.
const defaultContextWindow = 8

// Runner executes one chat request against the orchestration graph.
// Satisfied by *agent.Agent.
type Runner interface {
	Execute(ctx context.Context, history []*ai.Message, message string, emitter *agent.Emitter) (*agent.StreamResult, error)
}

// Pinger reports knowledge-base connectivity for health checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ServerConfig assembles the HTTP server.
type ServerConfig struct {
	Logger   log.Logger
	Agent    Runner
	Sessions *session.Store

	// Knowledge is optional; nil means the service runs degraded
	// without a vector store.
	Knowledge Pinger

	// SearchConfigured reports whether web search has an API key.
	SearchConfigured bool

	// ContextWindow is the number of history entries replayed into each
	// request. Zero selects the default.
	ContextWindow int

	CORSOrigins        []string
	TrustProxy         bool
	RateLimitPerSecond float64
	RateLimitBurst     int
}

// Server is the HTTP API server.
type Server struct {
	logger           log.Logger
	agent            Runner
	sessions         *session.Store
	knowledge        Pinger
	searchConfigured bool
	contextWindow    int

	handler http.Handler
}

// NewServer wires handlers and the middleware chain.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg.Agent == nil {
		return nil, fmt.Errorf("agent is required")
	}
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if cfg.ContextWindow <= 0 {
		cfg.ContextWindow = defaultContextWindow
	}
	if cfg.RateLimitPerSecond <= 0 {
		cfg.RateLimitPerSecond = 1
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 60
	}

	s := &Server{
		logger:           cfg.Logger,
		agent:            cfg.Agent,
		sessions:         cfg.Sessions,
		knowledge:        cfg.Knowledge,
		searchConfigured: cfg.SearchConfigured,
		contextWindow:    cfg.ContextWindow,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/chat/stream", s.handleChatStream)
	mux.HandleFunc("POST /api/chat/stream", s.handleChatStream)
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/memory/stats", s.handleMemoryStats)
	mux.HandleFunc("GET /api/memory/sessions/{id}", s.handleMemorySession)
	mux.HandleFunc("DELETE /api/memory/sessions/{id}", s.handleMemoryClear)
	mux.HandleFunc("POST /api/memory/cleanup", s.handleMemoryCleanup)

	rl := newRateLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst)

	// Order matters: RequestID must run before Logging so log lines
	// carry the id; CORS must run before RateLimit so preflights are
	// never throttled.
	var handler http.Handler = mux
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, cfg.Logger)(handler)
	handler = corsMiddleware(cfg.CORSOrigins)(handler)
	handler = loggingMiddleware(cfg.Logger)(handler)
	handler = requestIDMiddleware(handler)
	handler = recoveryMiddleware(cfg.Logger)(handler)
	s.handler = handler

	return s, nil
}

// Handler returns the root handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}
