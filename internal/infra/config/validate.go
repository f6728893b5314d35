package config

import (
	"fmt"
	"net"
	"strings"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a
// *ValidationError when one or more problems are found, allowing callers
// to inspect all issues at once.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateWorkforce(cfg, ve)
	validateInference(cfg, ve)
	validateStore(cfg, ve)
	validateGateway(cfg, ve)
	validateScheduler(cfg, ve)
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

var validStrategies = map[string]bool{
	"":            true, // defaults to lead
	"lead":        true,
	"capability":  true,
	"round_robin": true,
}

func validateWorkforce(cfg *Config, ve *ValidationError) {
	if cfg.Workforce.Lead.Name == "" {
		ve.Add("workforce.lead.name must not be empty")
	}
	if cfg.Workforce.Lead.Type == "" {
		ve.Add("workforce.lead.type must not be empty")
	}
	if cfg.Workforce.MaxPerOwner < 0 {
		ve.Add("workforce.max_per_owner must be >= 0")
	}
	if cfg.Workforce.TaskTimeout <= 0 {
		ve.Add("workforce.task_timeout must be > 0")
	}
	if cfg.Workforce.OfflineAfter <= 0 {
		ve.Add("workforce.offline_after must be > 0")
	}
	if !validStrategies[cfg.Workforce.Delegation.Strategy] {
		ve.Add("workforce.delegation.strategy %q is invalid (want: lead, capability, round_robin)",
			cfg.Workforce.Delegation.Strategy)
	}
	if cfg.Workforce.Delegation.RatePerMinute < 0 {
		ve.Add("workforce.delegation.rate_per_minute must be >= 0")
	}
	for i, a := range cfg.Workforce.Agents {
		if a.Name == "" {
			ve.Add("workforce.agents[%d].name must not be empty", i)
		}
		if a.Type == "" {
			ve.Add("workforce.agents[%d].type must not be empty", i)
		}
	}
	for i, t := range cfg.Workforce.Templates {
		if t.Type == "" {
			ve.Add("workforce.templates[%d].type must not be empty", i)
		}
	}
}

var validProviderTypes = map[string]bool{
	"template":  true,
	"mock":      true,
	"openai":    true,
	"anthropic": true,
	"bedrock":   true,
}

// keylessProviderTypes run without an API key.
var keylessProviderTypes = map[string]bool{
	"template": true,
	"mock":     true,
	"bedrock":  true, // AWS credential chain
}

func validateInference(cfg *Config, ve *ValidationError) {
	if cfg.Inference.DefaultProvider == "" {
		ve.Add("inference.default_provider must not be empty")
	}

	if len(cfg.Inference.Providers) == 0 {
		return
	}

	seen := make(map[string]bool)
	foundDefault := false
	for i, p := range cfg.Inference.Providers {
		if p.Name == "" {
			ve.Add("inference.providers[%d].name must not be empty", i)
			continue
		}
		if seen[p.Name] {
			ve.Add("inference.providers[%d]: duplicate provider name %q", i, p.Name)
		}
		seen[p.Name] = true

		if p.Type != "" && !validProviderTypes[p.Type] {
			ve.Add("inference.providers[%d].type %q is invalid (want: template, mock, openai, anthropic, bedrock)", i, p.Type)
		}
		if p.APIKey == "" && p.Type != "" && !keylessProviderTypes[p.Type] {
			ve.Add("inference.providers[%d] (%s): api_key is empty (set via AGENCY_PROVIDER_%s_API_KEY)",
				i, p.Name, strings.ToUpper(p.Name))
		}
		if p.Type == "bedrock" && p.Region == "" {
			ve.Add("inference.providers[%d] (%s): region is required for bedrock provider", i, p.Name)
		}
		if p.Name == cfg.Inference.DefaultProvider {
			foundDefault = true
		}
	}

	if !foundDefault && cfg.Inference.DefaultProvider != "" {
		ve.Add("inference.default_provider %q does not match any configured provider", cfg.Inference.DefaultProvider)
	}

	for name := range cfg.Inference.Failover.FallbackSet() {
		if !seen[name] {
			ve.Add("inference.failover.fallbacks: unknown provider %q", name)
		}
	}

	for model, price := range cfg.Inference.Pricing {
		if price.InputPer1K < 0 || price.OutputPer1K < 0 {
			ve.Add("inference.pricing[%s]: prices must be >= 0", model)
		}
	}
}

// FallbackSet returns the configured fallback names as a set.
func (f FailoverConfig) FallbackSet() map[string]bool {
	set := make(map[string]bool, len(f.Fallbacks))
	for _, name := range f.Fallbacks {
		set[name] = true
	}
	return set
}

var validStoreDrivers = map[string]bool{
	"sqlite": true,
	"memory": true,
}

func validateStore(cfg *Config, ve *ValidationError) {
	if !validStoreDrivers[cfg.Store.Driver] {
		ve.Add("store.driver %q is invalid (want: sqlite, memory)", cfg.Store.Driver)
	}
	if cfg.Store.Driver == "sqlite" && cfg.Store.Path == "" {
		ve.Add("store.path is required for the sqlite driver")
	}
	if cfg.Store.Retention.MaxAge < 0 {
		ve.Add("store.retention.max_age must be >= 0")
	}
}

func validateGateway(cfg *Config, ve *ValidationError) {
	if !cfg.Gateway.Enabled {
		return
	}
	if cfg.Gateway.Addr == "" {
		ve.Add("gateway.addr is required when gateway is enabled")
		return
	}
	if _, _, err := net.SplitHostPort(cfg.Gateway.Addr); err != nil {
		ve.Add("gateway.addr %q is not a valid host:port", cfg.Gateway.Addr)
	}
	switch cfg.Gateway.Auth.Type {
	case "", "static":
	default:
		ve.Add("gateway.auth.type %q is invalid (want: static or empty)", cfg.Gateway.Auth.Type)
	}
	if cfg.Gateway.Auth.Type == "static" && len(cfg.Gateway.Auth.Tokens) == 0 {
		ve.Add("gateway.auth.tokens must not be empty when type is static")
	}
	for i, t := range cfg.Gateway.Auth.Tokens {
		if t.Token == "" {
			ve.Add("gateway.auth.tokens[%d].token must not be empty", i)
		}
	}
	if cfg.Gateway.RatePerMinute < 0 {
		ve.Add("gateway.rate_per_minute must be >= 0")
	}
}

func validateScheduler(cfg *Config, ve *ValidationError) {
	if !cfg.Scheduler.Enabled {
		return
	}
	for i, t := range cfg.Scheduler.Tasks {
		if t.Name == "" {
			ve.Add("scheduler.tasks[%d].name is required", i)
		}
		if t.Schedule == "" {
			ve.Add("scheduler.tasks[%d].schedule is required", i)
		}
		if t.Action == "" {
			ve.Add("scheduler.tasks[%d].action is required", i)
		}
	}
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

func validateLogger(cfg *Config, ve *ValidationError) {
	if cfg.Logger.Level != "" && !validLogLevels[strings.ToLower(cfg.Logger.Level)] {
		ve.Add("logger.level %q is invalid (want: debug, info, warn, error)", cfg.Logger.Level)
	}
	switch strings.ToLower(cfg.Logger.Format) {
	case "", "text", "json":
	default:
		ve.Add("logger.format %q is invalid (want: text, json)", cfg.Logger.Format)
	}
}

func validateTracer(cfg *Config, ve *ValidationError) {
	if !cfg.Tracer.Enabled {
		return
	}
	switch cfg.Tracer.Exporter {
	case "", "noop", "stdout":
	default:
		ve.Add("tracer.exporter %q is invalid (want: noop, stdout)", cfg.Tracer.Exporter)
	}
}
