package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campusaid/campusaid/db"
	"github.com/campusaid/campusaid/internal/agent"
	"github.com/campusaid/campusaid/internal/config"
	"github.com/campusaid/campusaid/internal/knowledge"
	"github.com/campusaid/campusaid/internal/log"
	"github.com/campusaid/campusaid/internal/prompt"
	"github.com/campusaid/campusaid/internal/search"
	"github.com/campusaid/campusaid/internal/session"
	"github.com/campusaid/campusaid/internal/tools"
)

// dbConnectTimeout bounds the startup database probe. The service
// starts degraded rather than crash-looping when the database is slow
// or absent.
const dbConnectTimeout = 5 * time.Second

// Setup builds the application from configuration.
// Call Close on the returned App to release resources.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	a := &App{Config: cfg, Logger: logger}

	defer func() {
		if retErr != nil {
			a.Close()
		}
	}()

	g, err := provideGenkit(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	embedder := googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	if embedder == nil {
		return nil, fmt.Errorf("embedder %q not found", cfg.EmbedderModel)
	}

	a.pool, a.Knowledge = provideKnowledge(ctx, cfg, embedder, logger)
	a.Search = search.NewClient(cfg.SearchBaseURL, cfg.SearchAPIKey, logger)

	systemPrompt, err := prompt.Load(cfg.PromptPath)
	if err != nil {
		return nil, fmt.Errorf("loading system prompt: %w", err)
	}

	refs := tools.Register(g, tools.Deps{
		Knowledge:  tools.NewKnowledge(searcherFor(a.Knowledge), cfg.KnowledgeFallbackURLs, logger),
		WebSearch:  tools.NewWebSearch(a.Search, cfg.SearchDomains, logger),
		Calculator: tools.NewCalculator(logger),
		Logger:     logger,
	})

	a.Agent, err = agent.New(agent.Config{
		Genkit:         g,
		ModelName:      cfg.FullModelName(),
		SystemPrompt:   systemPrompt,
		Tools:          refs,
		MaxToolRounds:  cfg.MaxToolRounds,
		RequestTimeout: cfg.RequestTimeout,
		Logger:         logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating agent: %w", err)
	}

	a.Sessions = session.NewStore(session.Config{
		MaxSessions: cfg.MaxSessions,
		IdleTimeout: cfg.SessionTimeout,
	}, logger)

	cleanupCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.cancel = cancel
	go a.Sessions.RunCleanup(cleanupCtx, cfg.CleanupInterval)

	return a, nil
}

// provideGenkit initializes Genkit with the Gemini provider.
func provideGenkit(ctx context.Context, cfg *config.Config) (*genkit.Genkit, error) {
	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	if g == nil {
		return nil, errors.New("initializing genkit")
	}
	return g, nil
}

// provideKnowledge migrates the schema, opens the connection pool, and
// builds the passage store. Any failure is logged and swallowed: the
// knowledge tool degrades to fallback text instead of taking the
// service down with the database.
func provideKnowledge(ctx context.Context, cfg *config.Config, embedder ai.Embedder, logger log.Logger) (*pgxpool.Pool, *knowledge.Store) {
	connURL := cfg.ConnString()

	if err := db.Migrate(connURL, logger); err != nil {
		logger.Warn("knowledge base unavailable, running degraded", "error", err)
		return nil, nil
	}

	poolCfg, err := pgxpool.ParseConfig(connURL)
	if err != nil {
		logger.Warn("knowledge base unavailable, running degraded", "error", err)
		return nil, nil
	}
	poolCfg.MaxConns = 10

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		logger.Warn("knowledge base unavailable, running degraded", "error", err)
		return nil, nil
	}

	pingCtx, cancel := context.WithTimeout(ctx, dbConnectTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		logger.Warn("knowledge base unavailable, running degraded", "error", err)
		return nil, nil
	}

	store, err := knowledge.NewStore(pool, embedder, logger)
	if err != nil {
		pool.Close()
		logger.Warn("knowledge base unavailable, running degraded", "error", err)
		return nil, nil
	}

	logger.Info("knowledge base connected",
		"host", cfg.PostgresHost,
		"database", cfg.PostgresDBName,
	)
	return pool, store
}

// searcherFor converts the nilable store into the tool's interface
// without producing a typed-nil interface value.
func searcherFor(store *knowledge.Store) tools.PassageSearcher {
	if store == nil {
		return nil
	}
	return store
}
