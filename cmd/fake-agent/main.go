// ABOUTME: Development backend for agentdesk: scripted SSE agent, conversation API, credentials, extraction
// ABOUTME: Usage: fake-agent [-addr :8000] [-db path] [-secret s] [-delay 80ms]

package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/2389/agentdesk/internal/auth"
	"github.com/2389/agentdesk/internal/config"
	"github.com/2389/agentdesk/internal/logging"
	"github.com/2389/agentdesk/internal/store"
)

func main() {
	addr := flag.String("addr", ":8000", "listen address")
	dbPath := flag.String("db", "", "sqlite path for conversations (default in-memory)")
	secret := flag.String("secret", "", "HS256 secret; when set every /api route requires a bearer JWT")
	delay := flag.Duration("delay", 80*time.Millisecond, "pause between streamed chunks")
	level := flag.String("log-level", "info", "debug, info, warn or error")
	flag.Parse()

	logger := logging.New(config.LoggingConfig{Level: *level, Format: "text"}, os.Stderr, true)
	slog.SetDefault(logger)

	if err := run(*addr, *dbPath, *secret, *delay, logger); err != nil {
		logger.Error("fake-agent failed", "error", err)
		os.Exit(1)
	}
}

func run(addr, dbPath, secret string, delay time.Duration, logger *slog.Logger) error {
	var st store.Store = store.NewMockStore()
	if dbPath != "" {
		s, err := store.NewSQLiteStore(dbPath)
		if err != nil {
			return err
		}
		st = s
	}
	defer st.Close()

	var verifier auth.TokenVerifier
	if secret != "" {
		v := auth.NewJWTVerifier([]byte(secret))
		token, err := v.Generate("agentdesk-dev", 24*time.Hour)
		if err != nil {
			return err
		}
		logger.Info("auth enabled, use this token for 24h", "token", token)
		verifier = v
	}

	srv := &http.Server{
		Addr:        addr,
		Handler:     newRouter(newBackend(delay, logger), st, verifier, logger),
		ReadTimeout: 30 * time.Second,
		// SSE responses stream for as long as the script runs
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("fake-agent listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newRouter(b *backend, st store.Store, verifier auth.TokenVerifier, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))

	r.Group(func(r chi.Router) {
		if verifier != nil {
			r.Use(auth.RequireBearer(verifier))
		}
		b.RegisterRoutes(r)
		store.NewHandler(st, logger).RegisterRoutes(r)
	})
	return r
}
