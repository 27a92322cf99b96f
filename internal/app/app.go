// Package app assembles the capture pipeline and interceptors from a Config.
package app

import (
	"fmt"

	"github.com/bryanchriswhite/capshim/internal/cache"
	"github.com/bryanchriswhite/capshim/internal/capture"
	"github.com/bryanchriswhite/capshim/internal/config"
	"github.com/bryanchriswhite/capshim/internal/idle"
	"github.com/bryanchriswhite/capshim/internal/intercept"
	"github.com/bryanchriswhite/capshim/internal/logger"
	"github.com/bryanchriswhite/capshim/internal/metadata"
	"github.com/bryanchriswhite/capshim/internal/policy"
	"github.com/bryanchriswhite/capshim/internal/proc"
	"github.com/bryanchriswhite/capshim/internal/query"
	"github.com/bryanchriswhite/capshim/internal/session"
	"github.com/bryanchriswhite/capshim/internal/window"
)

// App holds one wired instance of every component
type App struct {
	Queries     *query.Adapter
	Gate        *policy.Gate
	Store       *cache.Store
	State       *session.State
	Capture     *capture.Orchestrator
	Metadata    *metadata.Provider
	Interceptor *intercept.Interceptor
	Idle        idle.Source

	delegate window.Delegate
}

// Options overrides the process-facing collaborators
type Options struct {
	// Runner executes shell commands; nil means os/exec
	Runner proc.Runner
	// Delegate performs genuine window calls; nil connects to X11 when
	// the display is enabled
	Delegate window.Delegate
}

// New wires the components described by cfg
func New(cfg *config.Config, opts Options) (*App, error) {
	log := logger.WithComponent("app")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	runner := opts.Runner
	if runner == nil {
		runner = proc.NewExecRunner()
	}

	queries := query.NewAdapter(runner, cfg.Queries.Shell, cfg.Queries.Timeout, query.Commands{
		Workspace:   cfg.Queries.Workspace,
		WindowTitle: cfg.Queries.WindowTitle,
		WindowPID:   cfg.Queries.WindowPID,
		Cursor:      cfg.Queries.Cursor,
	})

	idleSource, err := idle.NewSource(cfg.Idle.Source, cfg.Idle.Path)
	if err != nil {
		return nil, err
	}

	delegate := opts.Delegate
	if delegate == nil {
		delegate = connectDisplay(cfg.Display)
	}

	state := session.New()
	gate := policy.NewGate(queries, cfg.Policy)
	store := cache.NewStore(cfg.Cache.Path)
	executor := capture.NewExecutor(runner, capture.ExecutorConfig{
		Command:        cfg.Capture.Command,
		CommandEnv:     cfg.Capture.CommandEnv,
		RealDisplayEnv: cfg.Capture.RealDisplayEnv,
		DisplayEnv:     cfg.Capture.DisplayEnv,
		OutputPath:     cfg.Capture.TempPath,
		Timeout:        cfg.Capture.Timeout,
	})
	meta := metadata.NewProvider(queries, state)
	placeholder := cfg.Placeholder

	a := &App{
		Queries:  queries,
		Gate:     gate,
		Store:    store,
		State:    state,
		Capture:  capture.NewOrchestrator(gate, executor, store, queries, state),
		Metadata: meta,
		Idle:     idleSource,
		Interceptor: intercept.New(intercept.Options{
			Delegate:    delegate,
			Metadata:    meta,
			State:       state,
			Idle:        idleSource,
			Cursor:      queries,
			Placeholder: &placeholder,
		}),
		delegate: delegate,
	}

	log.Debug().
		Ints("allowed_workspaces", cfg.Policy.IDs).
		Str("cache", cfg.Cache.Path).
		Str("idle_source", cfg.Idle.Source).
		Msg("Components wired")

	return a, nil
}

// connectDisplay falls back to an unavailable delegate so that the
// interceptors keep their failure-path behavior without an X server
func connectDisplay(cfg config.DisplayConfig) window.Delegate {
	if !cfg.Enabled {
		return window.Unavailable{}
	}
	d, err := window.NewX11Delegate(cfg.Name)
	if err != nil {
		logger.WithComponent("app").Warn().
			Err(err).
			Str("display", cfg.Name).
			Msg("X11 unavailable, genuine window calls will fail")
		return window.Unavailable{}
	}
	return d
}

// Apply picks up the parts of cfg that can change without rewiring
func (a *App) Apply(cfg *config.Config) {
	a.Gate.SetAllowSet(cfg.Policy)
	logger.Init(cfg.LogLevel, cfg.LogPretty)
	logger.WithComponent("app").Info().
		Ints("allowed_workspaces", cfg.Policy.IDs).
		Int("allowed_ranges", len(cfg.Policy.Ranges)).
		Msg("Config applied")
}

// Close releases the display connection
func (a *App) Close() error {
	return a.delegate.Close()
}
