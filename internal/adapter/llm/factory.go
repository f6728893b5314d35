package llm

import (
	"fmt"
	"log/slog"

	"agency-ai/internal/domain"
	"agency-ai/internal/infra/config"
)

// NewProvider creates an inference provider based on the type field.
func NewProvider(cfg config.ProviderConfig, logger *slog.Logger) (domain.InferenceProvider, error) {
	switch cfg.Type {
	case "template", "":
		return NewTemplateProvider(cfg.Name), nil
	case "mock":
		return NewMockProvider(cfg.Name), nil
	case "openai":
		return NewOpenAIProvider(cfg, logger), nil
	case "anthropic":
		return NewAnthropicProvider(cfg, logger), nil
	case "bedrock":
		return newBedrockFromConfig(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown provider type: %s", cfg.Type)
	}
}

// Chain holds the assembled inference components.
type Chain struct {
	Registry *Registry
	Default  domain.InferenceProvider
}

// BuildChain constructs every configured provider, wraps each with a circuit
// breaker when enabled, registers them, and layers failover around the
// default. The returned Default is what executors should call.
func BuildChain(cfg config.InferenceConfig, logger *slog.Logger) (*Chain, error) {
	registry := NewRegistry()

	cbCfg := cfg.CircuitBreaker
	for _, pc := range cfg.Providers {
		provider, err := NewProvider(pc, logger)
		if err != nil {
			return nil, fmt.Errorf("inference provider %s: %w", pc.Name, err)
		}

		// Breaker wraps each provider individually so one bad backend
		// cannot poison the others' failure counts.
		if cbCfg.Enabled {
			provider = NewCircuitBreakerProvider(provider, cbCfg, logger)
		}

		if err := registry.Register(provider); err != nil {
			return nil, fmt.Errorf("inference provider %s: %w", pc.Name, err)
		}
	}

	if cbCfg.Enabled {
		logger.Info("inference circuit breaker enabled",
			"max_failures", cbCfg.MaxFailures,
			"timeout", cbCfg.Timeout,
			"interval", cbCfg.Interval,
		)
	}

	defaultProvider, err := registry.Get(cfg.DefaultProvider)
	if err != nil {
		return nil, fmt.Errorf("default inference provider: %w", err)
	}

	if cfg.Failover.Enabled && len(cfg.Failover.Fallbacks) > 0 {
		var fallbacks []domain.InferenceProvider
		for _, name := range cfg.Failover.Fallbacks {
			fb, err := registry.Get(name)
			if err != nil {
				return nil, fmt.Errorf("failover provider %s: %w", name, err)
			}
			fallbacks = append(fallbacks, fb)
		}
		defaultProvider = NewFailoverProvider(defaultProvider, fallbacks, logger)
		logger.Info("provider failover enabled", "fallbacks", cfg.Failover.Fallbacks)
	}

	return &Chain{
		Registry: registry,
		Default:  defaultProvider,
	}, nil
}
