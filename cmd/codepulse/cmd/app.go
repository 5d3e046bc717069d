package cmd

import (
	"context"
	"fmt"

	"github.com/hugo-lorenzo-mato/codepulse/internal/adapters/agents"
	"github.com/hugo-lorenzo-mato/codepulse/internal/adapters/enrich"
	"github.com/hugo-lorenzo-mato/codepulse/internal/adapters/git"
	"github.com/hugo-lorenzo-mato/codepulse/internal/adapters/state"
	"github.com/hugo-lorenzo-mato/codepulse/internal/config"
	"github.com/hugo-lorenzo-mato/codepulse/internal/core"
	"github.com/hugo-lorenzo-mato/codepulse/internal/events"
	"github.com/hugo-lorenzo-mato/codepulse/internal/judge"
	"github.com/hugo-lorenzo-mato/codepulse/internal/logging"
	"github.com/hugo-lorenzo-mato/codepulse/internal/orchestrator"
	"github.com/hugo-lorenzo-mato/codepulse/internal/registry"
	"github.com/hugo-lorenzo-mato/codepulse/internal/snapshot"
)

// stateStore is the persistence surface the CLI needs.
type stateStore interface {
	core.ExecutionStore
	core.ProjectStore
	SaveProject(ctx context.Context, p *core.Project) error
}

// app bundles the wired components behind the CLI commands.
type app struct {
	cfg    *config.Config
	logger *logging.Logger
	store  stateStore
	snaps  snapshot.Store
	bus    *events.EventBus
	orch   *orchestrator.Orchestrator

	watcher *registry.Watcher
	closers []func() error
}

// buildApp wires stores, registry, and orchestrator from config.
func buildApp(cfg *config.Config, logger *logging.Logger) (*app, error) {
	a := &app{
		cfg:    cfg,
		logger: logger,
		bus:    events.New(256),
	}
	a.closers = append(a.closers, func() error { a.bus.Close(); return nil })

	// Storage backend. The sqlite store also serves snapshots and the
	// primary agent registry tier.
	var registryPrimary core.AgentConfigProvider
	switch cfg.Storage.Backend {
	case "sqlite":
		store, err := state.NewSQLiteStore(cfg.Storage.Path)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("opening state store: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		a.store = store
		a.snaps = store
		registryPrimary = store
	case "memory":
		a.store = state.NewMemoryStore()
		a.snaps = snapshot.NewMemoryStore(cfg.Storage.SnapshotCapacity)
	default:
		a.close()
		return nil, core.ErrValidation(core.CodeInvalidConfig,
			fmt.Sprintf("unknown storage backend %q", cfg.Storage.Backend))
	}

	// Agent registry: agents file or store rows first, builtin set as
	// fallback, all behind the TTL cache.
	if cfg.Registry.AgentsFile != "" {
		registryPrimary = registry.NewFileProvider(cfg.Registry.AgentsFile)
	}
	var provider core.AgentConfigProvider = registry.NewStaticProvider()
	if registryPrimary != nil {
		provider = registry.NewTwoTierProvider(registryPrimary, provider, logger)
	}
	reg := registry.New(provider, cfg.Registry.TTL)

	if cfg.Registry.AgentsFile != "" {
		watcher, err := registry.Watch(cfg.Registry.AgentsFile, reg, logger)
		if err != nil {
			logger.Warn("agents file watch unavailable", "error", err)
		} else {
			a.watcher = watcher
			a.closers = append(a.closers, watcher.Close)
		}
	}

	orchOpts := []orchestrator.Option{
		orchestrator.WithStalenessThreshold(cfg.Pipeline.StalenessThreshold),
		orchestrator.WithParallelism(cfg.Pipeline.Parallelism),
		orchestrator.WithAgentDefaults(cfg.Pipeline.AgentTimeout, cfg.Pipeline.MaxRetries),
		orchestrator.WithValidatorPolicy(cfg.Validator.MinConfidence,
			cfg.Validator.RequireEvidence, cfg.Validator.StrictEvidence),
		orchestrator.WithRevisionResolver(git.Resolver{}),
		orchestrator.WithEventBus(a.bus),
	}

	if len(cfg.Pipeline.AICommand) > 0 {
		enricher, err := enrich.NewCommandEnricher(cfg.Pipeline.AICommand, logger)
		if err != nil {
			a.close()
			return nil, err
		}
		orchOpts = append(orchOpts, orchestrator.WithEnricher(enricher))
	}

	a.orch = orchestrator.New(
		a.store, a.store, a.snaps,
		reg, agents.NewRunner(logger),
		judge.New(logger), logger,
		orchOpts...,
	)

	return a, nil
}

// close releases resources in reverse wiring order.
func (a *app) close() {
	if a.orch != nil {
		a.orch.Shutdown()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("closing component", "error", err)
		}
	}
}
