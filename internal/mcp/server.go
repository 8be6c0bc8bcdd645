// Package mcp provides an MCP (Model Context Protocol) server that drives a
// cogloop scenario: clients send evidence, advance the scheduler and poll
// the resulting choice.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"sync"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/cogloop/internal/config"
	"github.com/nvandessel/cogloop/internal/pathutil"
	"github.com/nvandessel/cogloop/internal/ratelimit"
	"github.com/nvandessel/cogloop/internal/simulation"
	"github.com/nvandessel/cogloop/internal/trace"
)

// Server wraps the MCP SDK server around one scenario model.
type Server struct {
	server   *sdk.Server
	root     string
	audit    *AuditLogger
	limiters ratelimit.Tools

	// mu serialises access to the model; the scheduler is not safe for
	// concurrent use.
	mu       sync.Mutex
	model    *simulation.Model
	store    *trace.Store
	recorder *trace.Recorder
}

// Config holds server configuration.
type Config struct {
	Name     string // Server name (e.g., "cogloop")
	Version  string // Server version
	Root     string // Project root directory; audit and trace files live under Root/.cogloop
	Scenario simulation.Scenario
	Settings *config.CogloopConfig
	Logger   *slog.Logger
}

// NewServer builds the scenario model and registers the cogloop tools.
func NewServer(cfg *Config) (*Server, error) {
	settings := cfg.Settings
	if settings == nil {
		settings = config.Default()
	}
	model, err := simulation.Build(settings, cfg.Scenario, cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build scenario: %w", err)
	}

	mcpServer := sdk.NewServer(&sdk.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, nil)

	s := &Server{
		server:   mcpServer,
		root:     cfg.Root,
		audit:    NewAuditLogger(cfg.Root),
		limiters: ratelimit.DefaultTools(),
		model:    model,
	}

	if settings.Trace.Enabled {
		if err := s.openTrace(settings); err != nil {
			s.audit.Close()
			return nil, err
		}
	}

	s.registerTools()
	return s, nil
}

func (s *Server) openTrace(settings *config.CogloopConfig) error {
	store, err := trace.Open(pathutil.Resolve(s.root, settings.Trace.Path))
	if err != nil {
		return fmt.Errorf("failed to open trace: %w", err)
	}
	rec, err := store.BeginRun(context.Background(), s.model.Scenario().Name, settings.Scheduler.Seed)
	if err != nil {
		store.Close()
		return fmt.Errorf("failed to begin trace run: %w", err)
	}
	s.model.System().Observe(rec)
	s.store, s.recorder = store, rec
	return nil
}

// Run starts the MCP server over stdio transport.
// This blocks until the client disconnects or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, shutdownSignals...)
	defer stop()

	err := s.server.Run(ctx, &sdk.StdioTransport{})

	if cerr := s.Close(); err == nil {
		err = cerr
	}
	return err
}

// Close finishes the trace run and releases resources.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	if s.recorder != nil {
		firstErr = s.recorder.Finish(context.Background(), nil)
		s.recorder = nil
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		s.store = nil
	}
	if err := s.audit.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
