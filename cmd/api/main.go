package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/sproutvoice/backend/internal/auth"
	"github.com/sproutvoice/backend/internal/config"
	"github.com/sproutvoice/backend/internal/handler"
	"github.com/sproutvoice/backend/internal/handler/voice"
	"github.com/sproutvoice/backend/internal/logging"
	"github.com/sproutvoice/backend/internal/model/profile"
	"github.com/sproutvoice/backend/internal/service/ai"
	"github.com/sproutvoice/backend/internal/service/transcribe"
	usageservice "github.com/sproutvoice/backend/internal/service/usage"
	"github.com/sproutvoice/backend/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		logging.Infow("no .env file, using system environment")
	}
	logging.Init()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalw("failed to load configuration", "err", err)
	}
	if cfg.Auth.JWTSecret == "" {
		logging.Fatalw("AUTH_JWT_SECRET must be set; voice channels require authenticated callers")
	}

	turnStore, usageStore, pinger := buildStores(ctx, cfg.Database)

	deps := voice.Deps{
		Accountant:        usageservice.New(usageStore, cfg.Quota.FreeDailyMinutes),
		Turns:             turnStore,
		Profiles:          profile.NewMemoryStore(profile.Seed()),
		TranscribeTimeout: cfg.Transcribe.Timeout,
		RespondTimeout:    cfg.AI.Timeout,
	}

	if cfg.Transcribe.Enabled {
		deps.Transcriber = transcribe.NewClient(transcribe.Config{
			BaseURL: cfg.Transcribe.BaseURL,
			APIKey:  cfg.Transcribe.APIKey,
			Model:   cfg.Transcribe.Model,
			Timeout: cfg.Transcribe.Timeout,
		})
		logging.Infow("transcription client initialized", "base_url", cfg.Transcribe.BaseURL)
	} else {
		logging.Warnw("transcription credentials not configured, utterances will fail")
	}

	if cfg.AI.Enabled() {
		aiService, err := ai.NewService(ctx, cfg.AI)
		if err != nil {
			logging.Warnw("failed to initialize assistant model, continuing without replies", "err", err)
		} else {
			deps.Responder = aiService
			logging.Infow("assistant model initialized", "model", cfg.AI.Model)
		}
	} else {
		logging.Warnw("ark credentials not configured, replies disabled")
	}

	verifier := auth.NewJWTVerifier(cfg.Auth.JWTSecret)
	router := handler.NewRouter(voice.NewHandler(verifier, deps), pinger)

	startServer(ctx, cfg.Server, router)
}

// buildStores selects Postgres when DATABASE_URL is set, running migrations
// first, and falls back to the in-memory store otherwise.
func buildStores(ctx context.Context, cfg config.DatabaseConfig) (store.TurnStore, store.UsageStore, handler.Pinger) {
	if cfg.URL == "" {
		logging.Warnw("DATABASE_URL not set, using in-memory store; turns and usage reset on restart")
		mem := store.NewMemory()
		return mem, mem, nil
	}

	if err := store.Migrate(ctx, cfg.URL); err != nil {
		logging.Fatalw("database migration failed", "err", err)
	}
	pg, err := store.NewPostgres(ctx, cfg.URL)
	if err != nil {
		logging.Fatalw("failed to connect to database", "err", err)
	}
	logging.Infow("connected to postgres")
	return pg, pg, pg
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logging.Infow("sproutvoice backend listening", "addr", serverCfg.Addr)
	if err := runServer(ctx, srv); err != nil {
		logging.Fatalw("server error", "err", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
