package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/openfroyo/lifecycle/pkg/component"
	"github.com/openfroyo/lifecycle/pkg/config"
	"github.com/openfroyo/lifecycle/pkg/policy"
	"github.com/openfroyo/lifecycle/pkg/stores"
	"github.com/openfroyo/lifecycle/pkg/telemetry"
)

// runtimeOptions selects which optional subsystems a command needs.
type runtimeOptions struct {
	// journalPath overrides the configured journal and enables it.
	journalPath string

	// noJournal disables the journal even when configured.
	noJournal bool

	// noPolicy disables admission policies even when configured.
	noPolicy bool

	// admit installs the policy engine as the registry admitter. Commands
	// that evaluate policies themselves leave it unset.
	admit bool

	// observers are added after telemetry and the journal.
	observers []component.Observer
}

// runtime wires configuration, telemetry, the journal, policies and the
// component registry for one command invocation.
type runtime struct {
	cfg          *config.Config
	tel          *telemetry.Telemetry
	logger       *zerolog.Logger
	store        *stores.SQLiteStore
	policies     *policy.Engine
	registry     *component.Registry
	orchestrator *component.Orchestrator
}

func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("path", configPath).Msg("Loaded configuration")
	return cfg, nil
}

func newRuntime(ctx context.Context, opts runtimeOptions) (*runtime, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}

	tel, err := telemetry.NewTelemetry(cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	rt := &runtime{
		cfg:    cfg,
		tel:    tel,
		logger: tel.Logger.Zerolog(),
	}

	observers := component.MultiObserver{tel.Observer()}

	journalPath := cfg.Journal.Path
	journalEnabled := cfg.Journal.Enabled
	if opts.journalPath != "" {
		journalPath = opts.journalPath
		journalEnabled = true
	}
	if journalEnabled && !opts.noJournal {
		store, err := openStore(ctx, journalPath)
		if err != nil {
			rt.close(ctx)
			return nil, err
		}
		rt.store = store

		if cfg.Journal.Retention > 0 {
			pruned, err := store.PruneBefore(ctx, time.Now().Add(-cfg.Journal.Retention))
			if err != nil {
				rt.close(ctx)
				return nil, fmt.Errorf("failed to prune journal: %w", err)
			}
			rt.logger.Debug().Int64("rows", pruned).Msg("journal pruned")
		}

		observers = append(observers, stores.NewJournal(store, rt.logger))
	}
	observers = append(observers, opts.observers...)

	if cfg.Policy.Enabled && !opts.noPolicy {
		eng, err := policy.NewEngine(ctx, policy.EngineConfig{
			Logger:          rt.logger,
			Events:          tel.Events,
			Inventory:       func() []component.Info { return rt.registry.List() },
			Environment:     cfg.Telemetry.Environment,
			DisableBuiltins: cfg.Policy.DisableBuiltins,
		})
		if err != nil {
			rt.close(ctx)
			return nil, fmt.Errorf("failed to create policy engine: %w", err)
		}
		rt.policies = eng

		if len(cfg.Policy.Paths) > 0 {
			if err := eng.LoadPolicies(ctx, cfg.Policy.Paths); err != nil {
				rt.close(ctx)
				return nil, err
			}
		}
		if cfg.Policy.Watch && len(cfg.Policy.Paths) > 0 {
			if err := eng.Watch(ctx); err != nil {
				rt.logger.Warn().Err(err).Msg("policy watch unavailable")
			}
		}
	}

	regCfg := component.RegistryConfig{
		MaxComponents: cfg.Registry.MaxComponents,
		Logger:        rt.logger,
		Observer:      observers,
	}
	if opts.admit && rt.policies != nil {
		regCfg.Admitter = rt.policies
	}
	rt.registry = component.NewRegistry(regCfg)
	rt.orchestrator = component.NewOrchestrator(rt.registry, component.OrchestratorConfig{
		MaxDependencyDepth: cfg.Registry.MaxDependencyDepth,
		Logger:             rt.logger,
	})

	return rt, nil
}

func openStore(ctx context.Context, path string) (*stores.SQLiteStore, error) {
	store, err := stores.NewSQLiteStore(stores.Config{Path: path})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to migrate journal: %w", err)
	}
	return store, nil
}

// close releases everything the runtime opened. Errors are logged.
func (rt *runtime) close(ctx context.Context) {
	if rt.policies != nil {
		if err := rt.policies.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close policy engine")
		}
	}
	if rt.store != nil {
		if err := rt.store.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close journal")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := rt.tel.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Failed to shut down telemetry")
	}
}

// loadManifest parses every source into one manifest.
func loadManifest(ctx context.Context, sources []string) (*config.Manifest, error) {
	parser := config.NewManifestParser(&log.Logger)
	return parser.Load(ctx, sources...)
}
