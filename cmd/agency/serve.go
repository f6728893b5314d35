package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"golang.org/x/time/rate"

	"agency-ai/internal/adapter/gateway"
	"agency-ai/internal/adapter/llm"
	"agency-ai/internal/adapter/store"
	"agency-ai/internal/domain"
	"agency-ai/internal/infra/config"
	"agency-ai/internal/infra/logger"
	"agency-ai/internal/infra/tracer"
	"agency-ai/internal/usecase"
	"agency-ai/internal/usecase/eventbus"
	"agency-ai/internal/usecase/scheduling"
)

// dataStore is the combined persistence surface the runtime wires in.
// Both store drivers implement it on a single value.
type dataStore interface {
	domain.AgentStore
	domain.UsageStore
}

func runServe() error {
	// 1. Config
	flags := parseFlags()

	var cfg *config.Config
	var err error
	if flags.Provider != "" {
		// Quick start via CLI flags, no config file.
		cfg, err = buildQuickConfig(flags)
	} else {
		cfg, err = config.Load(configPath())
	}
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	// 2. Logger & tracer
	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	ctx := context.Background()
	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer tracerShutdown(ctx)

	// 3. Store
	st, storeCloser, err := initStore(cfg.Store, log)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer storeCloser()

	// 4. Inference providers
	chain, err := llm.BuildChain(cfg.Inference, log)
	if err != nil {
		return fmt.Errorf("inference: %w", err)
	}

	// 5. Event bus
	bus := eventbus.New(log)
	defer bus.Close()

	// 6. Workforce stack
	wf, registry, err := initWorkforce(ctx, cfg, st, chain.Default, bus, log)
	if err != nil {
		return fmt.Errorf("workforce: %w", err)
	}

	// 7. Graceful shutdown
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// 8. Scheduler
	if cfg.Scheduler.Enabled {
		sched, err := initScheduler(cfg, registry, st, log)
		if err != nil {
			return fmt.Errorf("scheduler: %w", err)
		}
		go sched.Start(ctx)
		defer sched.Stop()
	}

	// 9. Gateway
	if cfg.Gateway.Enabled {
		gw := initGateway(cfg, wf, registry, st, bus, log)
		go func() {
			if err := gw.Start(ctx); err != nil {
				log.Error("gateway server error", "error", err)
			}
		}()
	} else {
		log.Warn("gateway disabled, no external API surface")
	}

	log.Info("agency started",
		"version", version,
		"provider", cfg.Inference.DefaultProvider,
		"store", cfg.Store.Driver,
		"agents", registry.Count(),
		"gateway", cfg.Gateway.Enabled,
		"scheduler", cfg.Scheduler.Enabled,
	)

	<-ctx.Done()
	log.Info("shutting down")
	return nil
}

func initStore(cfg config.StoreConfig, log *slog.Logger) (dataStore, func() error, error) {
	switch cfg.Driver {
	case "sqlite", "":
		s, err := store.NewSQLiteStore(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		log.Info("store opened", "driver", "sqlite", "path", cfg.Path)
		return s, s.Close, nil
	case "memory":
		log.Info("store opened", "driver", "memory")
		return store.NewMemoryStore(), func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver: %s", cfg.Driver)
	}
}

// initWorkforce assembles the registry, executor, coordinator, and
// facade, restores persisted agents, and initializes the workforce.
func initWorkforce(
	ctx context.Context,
	cfg *config.Config,
	st dataStore,
	provider domain.InferenceProvider,
	bus domain.EventBus,
	log *slog.Logger,
) (*usecase.Workforce, *usecase.Registry, error) {
	registry := usecase.NewRegistry(st, bus, cfg.Workforce.MaxPerOwner, log)

	executor := usecase.NewExecutor(registry, provider, usecase.ExecutorOptions{
		Ledger:    st,
		Bus:       bus,
		Estimator: llm.NewEstimator(),
		Pricing:   pricingTable(cfg.Inference.Pricing),
		Timeout:   cfg.Workforce.TaskTimeout,
	}, log)

	strategy, err := selectionStrategy(cfg.Workforce.Delegation.Strategy, cfg.Workforce.Lead.Type)
	if err != nil {
		return nil, nil, err
	}

	var limiter *rate.Limiter
	if rpm := cfg.Workforce.Delegation.RatePerMinute; rpm > 0 {
		burst := cfg.Workforce.Delegation.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(rpm/60.0), burst)
	}

	coordinator := usecase.NewCoordinator(registry, executor, strategy, limiter, log)
	templates := usecase.NewTemplateSet(mergeTemplates(cfg.Workforce.Templates))

	extras := make([]domain.AgentDefinition, 0, len(cfg.Workforce.Agents))
	for _, seed := range cfg.Workforce.Agents {
		extras = append(extras, seedDefinition(seed))
	}

	wf := usecase.NewWorkforce(registry, coordinator, templates,
		seedDefinition(cfg.Workforce.Lead), extras, bus, log)
	if _, err := wf.Initialize(ctx); err != nil {
		return nil, nil, err
	}

	return wf, registry, nil
}

// initScheduler wires maintenance actions to the cron scheduler. The
// janitor's windows come straight from config: a zero window disables
// the corresponding sweep even when its task is scheduled.
func initScheduler(cfg *config.Config, registry *usecase.Registry, st dataStore, log *slog.Logger) (*scheduling.Scheduler, error) {
	janitor := usecase.NewJanitor(registry, st, cfg.Workforce.OfflineAfter, cfg.Store.Retention.MaxAge, log)

	sched := scheduling.NewScheduler(log)
	sched.RegisterAction(scheduling.ActionOfflineSweep, janitor.SweepOffline)
	sched.RegisterAction(scheduling.ActionLedgerRetention, janitor.PruneLedger)
	sched.RegisterAction(scheduling.ActionUsageReport, janitor.ReportUsage)

	for _, t := range cfg.Scheduler.Tasks {
		task := scheduling.ScheduledTask{
			Name:     t.Name,
			Schedule: t.Schedule,
			Action:   scheduling.ScheduledAction(t.Action),
			OneShot:  t.OneShot,
		}
		if err := sched.AddTask(task); err != nil {
			return nil, err
		}
	}
	return sched, nil
}

func initGateway(
	cfg *config.Config,
	wf *usecase.Workforce,
	registry *usecase.Registry,
	st dataStore,
	bus domain.EventBus,
	log *slog.Logger,
) *gateway.Server {
	creds := make([]gateway.Credential, 0, len(cfg.Gateway.Auth.Tokens))
	for _, t := range cfg.Gateway.Auth.Tokens {
		creds = append(creds, gateway.Credential{Token: t.Token, Name: t.Name, Roles: t.Roles})
	}
	if len(creds) == 0 {
		log.Warn("gateway has no auth tokens, all requests will be rejected")
	}

	srv := gateway.NewServer(bus, gateway.NewStaticTokenAuth(creds), cfg.Gateway, log)
	deps := gateway.HandlerDeps{
		Workforce: wf,
		Registry:  registry,
		Usage:     st,
		Logger:    log,
		Version:   version,
	}
	gateway.RegisterDefaultHandlers(srv, deps)
	gateway.RegisterRESTHandlers(srv, deps)
	return srv
}

// selectionStrategy maps the config strategy name to an implementation.
// Capability matching falls back to the lead when no tag matches.
func selectionStrategy(name, leadType string) (usecase.SelectionStrategy, error) {
	switch name {
	case "lead", "":
		return usecase.NewLeadStrategy(leadType), nil
	case "capability":
		return usecase.NewCapabilityStrategy(usecase.NewLeadStrategy(leadType)), nil
	case "round_robin":
		return usecase.NewRoundRobinStrategy(""), nil
	default:
		return nil, fmt.Errorf("unknown delegation strategy: %s", name)
	}
}

// mergeTemplates layers config overrides onto the built-in type table.
// Later entries win inside NewTemplateSet, so overrides go last.
func mergeTemplates(overrides []config.TemplateConfig) []domain.AgentTemplate {
	merged := usecase.DefaultTemplates()
	for _, o := range overrides {
		merged = append(merged, domain.AgentTemplate{
			Type:         o.Type,
			Capabilities: o.Capabilities,
			Model:        o.Model,
			Prompt:       o.Prompt,
		})
	}
	return merged
}

func seedDefinition(seed config.AgentSeed) domain.AgentDefinition {
	return domain.AgentDefinition{
		ID:           seed.ID,
		Name:         seed.Name,
		Type:         seed.Type,
		Capabilities: seed.Capabilities,
		Model:        seed.Model,
		Tools:        seed.Tools,
		Prompt:       seed.Prompt,
	}
}

func pricingTable(prices map[string]config.PriceConfig) domain.PricingTable {
	if len(prices) == 0 {
		return nil
	}
	table := make(domain.PricingTable, len(prices))
	for model, p := range prices {
		table[model] = domain.ModelPrice{InputPer1K: p.InputPer1K, OutputPer1K: p.OutputPer1K}
	}
	return table
}
