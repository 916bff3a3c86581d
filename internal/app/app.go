// Package app wires the application together: configuration, Genkit,
// the knowledge store, web search, tools, the orchestration agent, and
// session memory. The cmd layer owns process concerns (signals, the
// HTTP listener); everything between config and handlers is built here.
package app

import (
	"context"

	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campusaid/campusaid/internal/agent"
	"github.com/campusaid/campusaid/internal/config"
	"github.com/campusaid/campusaid/internal/knowledge"
	"github.com/campusaid/campusaid/internal/log"
	"github.com/campusaid/campusaid/internal/search"
	"github.com/campusaid/campusaid/internal/session"
)

// App is the assembled application.
type App struct {
	Config *config.Config
	Logger log.Logger

	Genkit *genkit.Genkit

	// Knowledge is nil when the database is unreachable; the service
	// then runs degraded and the knowledge tool serves fallback text.
	Knowledge *knowledge.Store

	Search   *search.Client
	Agent    *agent.Agent
	Sessions *session.Store

	pool   *pgxpool.Pool
	cancel context.CancelFunc
}

// Close releases resources and stops background work.
func (a *App) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.pool != nil {
		a.pool.Close()
		a.Logger.Info("database pool closed")
	}
}
