package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/campusaid/campusaid/internal/api"
	"github.com/campusaid/campusaid/internal/app"
	"github.com/campusaid/campusaid/internal/config"
	"github.com/campusaid/campusaid/internal/log"
)

// Server timeouts. WriteTimeout must cover a full streamed response,
// so it tracks the agent's request deadline rather than a typical
// request/response exchange.
const (
	readHeaderTimeout = 10 * time.Second
	readTimeout       = 30 * time.Second
	writeTimeout      = 2 * time.Minute
	idleTimeout       = 2 * time.Minute
	shutdownTimeout   = 30 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := log.New(log.Config{JSON: true})
	logger.Info("starting campusaid", "version", AppVersion, "model", cfg.FullModelName())

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer a.Close()

	apiServer, err := api.NewServer(api.ServerConfig{
		Logger:           logger,
		Agent:            a.Agent,
		Sessions:         a.Sessions,
		Knowledge:        pingerFor(a),
		SearchConfigured: a.Search.Configured(),
		ContextWindow:    cfg.ContextWindow,
		CORSOrigins:      cfg.CORSOrigins,
		TrustProxy:       cfg.TrustProxy,
		RateLimitBurst:   cfg.RateBurst,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	logger.Info("HTTP server ready",
		"addr", cfg.Addr,
		"stream", "/api/chat/stream",
		"health", "/api/health",
		"knowledge_base", a.Knowledge != nil,
		"web_search", a.Search.Configured(),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down HTTP server")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down server: %w", err)
		}
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("HTTP server: %w", err)
	}
}

// pingerFor avoids handing the server a typed-nil interface when the
// knowledge store is absent.
func pingerFor(a *app.App) api.Pinger {
	if a.Knowledge == nil {
		return nil
	}
	return a.Knowledge
}
