package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"

	"github.com/reelchat/reelchat/db"
	"github.com/reelchat/reelchat/internal/answer"
	"github.com/reelchat/reelchat/internal/api"
	"github.com/reelchat/reelchat/internal/catalog"
)

// Server timeout configuration. WriteTimeout is generous because SSE
// answers stream for the lifetime of a generation call.
const (
	readHeaderTimeout = 10 * time.Second
	readTimeout       = 30 * time.Second
	writeTimeout      = 2 * time.Minute
	idleTimeout       = 2 * time.Minute
	shutdownTimeout   = 30 * time.Second
)

// executeServe starts the HTTP API server and blocks until SIGINT or
// SIGTERM.
func executeServe() error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if err := checkRequiredEnv(); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting reelchat", "version", AppVersion)

	if err := db.Migrate(cfg.PostgresURL(), logger); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	pool, err := catalog.NewPool(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	if g == nil {
		return errors.New("initializing genkit")
	}

	pipeline, err := answer.New(answer.Config{
		Genkit:        g,
		Embedder:      googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel),
		Index:         catalog.New(pool, logger),
		Logger:        logger,
		ModelName:     cfg.FullModelName(),
		NumCandidates: cfg.NumCandidates,
		Limit:         cfg.Limit,
	})
	if err != nil {
		return fmt.Errorf("creating answer pipeline: %w", err)
	}

	apiServer := api.NewServer(api.ServerConfig{
		Logger:      logger,
		Flow:        answer.NewFlow(g, pipeline),
		Pool:        pool,
		CORSOrigins: cfg.CORSOrigins,
		TrustProxy:  cfg.TrustProxy,
		RateRPS:     cfg.RateLimitRPS,
		RateBurst:   cfg.RateLimitBurst,
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	logger.Info("HTTP server ready",
		"addr", cfg.ListenAddr,
		"api", "/api/chat",
		"health", "/health, /ready",
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

// executeMigrate applies pending migrations and exits.
func executeMigrate() error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if err := db.Migrate(cfg.PostgresURL(), logger); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("migrations applied")
	return nil
}
