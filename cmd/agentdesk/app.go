// ABOUTME: Wires config into the running engine: logger, store, recorder, stream client, registry
// ABOUTME: Shared by chat and ask; history and export only open the store

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/2389/agentdesk/internal/auth"
	"github.com/2389/agentdesk/internal/config"
	"github.com/2389/agentdesk/internal/conversation"
	"github.com/2389/agentdesk/internal/credentials"
	"github.com/2389/agentdesk/internal/filectx"
	"github.com/2389/agentdesk/internal/logging"
	"github.com/2389/agentdesk/internal/session"
	"github.com/2389/agentdesk/internal/store"
	"github.com/2389/agentdesk/internal/stream"
)

// shutdownTimeout bounds how long pending conversation writes may take on exit
const shutdownTimeout = 5 * time.Second

type app struct {
	cfg         *config.Config
	logger      *slog.Logger
	tokens      *auth.Source
	store       store.Store
	recorder    *conversation.Recorder
	registry    *session.Registry
	credentials *credentials.Client
	extractor   *filectx.Client
	prompts     *promptRelay

	closers []func() error
}

type appOptions struct {
	logOut    io.Writer
	artifacts session.ArtifactSink
}

// newApp builds the engine described by cfg.
func newApp(cfg *config.Config, opts appOptions) (*app, error) {
	logger, closeLog, err := logging.Open(cfg.Logging, opts.logOut)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	a := &app{
		cfg:     cfg,
		logger:  logger,
		prompts: &promptRelay{},
		closers: []func() error{closeLog},
	}

	a.tokens = auth.NewSource(cfg.Backend.Token, cfg.Backend.TokenFile, logger)

	a.store, err = openStore(cfg, a.tokens)
	if err != nil {
		_ = a.close()
		return nil, err
	}

	var recorder session.Recorder
	if a.store != nil {
		a.closers = append(a.closers, a.store.Close)
		a.recorder = conversation.New(a.store, conversation.Options{
			WriteTimeout: cfg.Persistence.WriteTimeout,
			QueueSize:    cfg.Persistence.QueueSize,
		}, logger)
		recorder = a.recorder
	}

	selected := session.AgentGeneral
	if cfg.Agents.Default != "" {
		selected, err = session.ParseAgent(cfg.Agents.Default)
		if err != nil {
			_ = a.close()
			return nil, fmt.Errorf("agents.default: %w", err)
		}
	}

	client := stream.NewClient(cfg.Backend.URL,
		stream.WithTokenSource(a.tokens),
		stream.WithLogger(logger),
	)
	a.registry = session.NewRegistry(session.Options{
		Opener:      client,
		Recorder:    recorder,
		Credentials: a.prompts,
		Artifacts:   opts.artifacts,
		Language:    cfg.Backend.Language,
		Messages: session.Messages{
			Analyzing:  cfg.Messages.Placeholder,
			NoResponse: cfg.Messages.Fallback,
			Failure:    cfg.Messages.Failure,
		},
		Selected: selected,
		Logger:   logger,
	})

	a.credentials = credentials.NewClient(cfg.Backend.URL, nil, a.tokens, logger)
	a.extractor = filectx.NewClient(cfg.Backend.URL, nil, a.tokens, logger)
	return a, nil
}

// enabledAgents returns the agents offered in the UI, in configured order.
func (a *app) enabledAgents() ([]session.Agent, error) {
	return parseAgents(a.cfg.Agents.Enabled)
}

func parseAgents(names []string) ([]session.Agent, error) {
	if len(names) == 0 {
		return session.Agents, nil
	}
	agents := make([]session.Agent, 0, len(names))
	for _, n := range names {
		agent, err := session.ParseAgent(n)
		if err != nil {
			return nil, fmt.Errorf("agents.enabled: %w", err)
		}
		agents = append(agents, agent)
	}
	return agents, nil
}

// shutdown cancels every stream, drains pending writes and releases resources.
func (a *app) shutdown() error {
	a.registry.CancelAll()
	a.registry.Wait()
	a.registry.Projector().Close()

	if a.recorder != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := a.recorder.Flush(ctx); err != nil {
			a.logger.Warn("pending conversation writes not flushed", "error", err)
		}
		cancel()
		a.recorder.Close()
	}
	return a.close()
}

func (a *app) close() error {
	var errs []error
	// Reverse order: the log file closes last
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// openStore opens the configured conversation store, or nil for "none".
func openStore(cfg *config.Config, tokens store.TokenSource) (store.Store, error) {
	switch cfg.Persistence.Backend {
	case config.PersistenceSQLite:
		s, err := store.NewSQLiteStore(cfg.Persistence.Path)
		if err != nil {
			return nil, fmt.Errorf("opening conversation database: %w", err)
		}
		return s, nil
	case config.PersistenceRemote:
		return store.NewRemoteStore(cfg.Persistence.URL, store.WithRemoteTokenSource(tokens)), nil
	default:
		return nil, nil
	}
}

// defaultLogFile is where chat logs go when logging.file is unset, so log
// lines do not corrupt the screen.
func defaultLogFile() string {
	return filepath.Join(filepath.Dir(config.DefaultDataPath()), "agentdesk.log")
}

// promptRelay forwards credential prompts to a handler installed after the
// registry is built.
type promptRelay struct {
	mu sync.Mutex
	fn func(session.CredentialPrompt)
}

func (r *promptRelay) set(fn func(session.CredentialPrompt)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fn = fn
}

// RequestCredentials implements session.CredentialHandler.
func (r *promptRelay) RequestCredentials(p session.CredentialPrompt) {
	r.mu.Lock()
	fn := r.fn
	r.mu.Unlock()
	if fn != nil {
		fn(p)
	}
}
