// Package config loads, validates, and defaults the application
// configuration. Sources are merged in order: built-in defaults, the
// YAML file, then AGENCY_* environment overrides. Values prefixed with
// "enc:" are decrypted with the passphrase from AGENCY_CONFIG_KEY.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Workforce WorkforceConfig `yaml:"workforce"`
	Inference InferenceConfig `yaml:"inference"`
	Store     StoreConfig     `yaml:"store"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Logger    LoggerConfig    `yaml:"logger"`
	Tracer    TracerConfig    `yaml:"tracer"`
}

// WorkforceConfig holds agent workforce settings.
type WorkforceConfig struct {
	Lead         AgentSeed        `yaml:"lead"`
	Agents       []AgentSeed      `yaml:"agents,omitempty"`
	Templates    []TemplateConfig `yaml:"templates,omitempty"`
	MaxPerOwner  int              `yaml:"max_per_owner"` // 0 = unlimited
	TaskTimeout  time.Duration    `yaml:"task_timeout"`
	OfflineAfter time.Duration    `yaml:"offline_after"`
	Delegation   DelegationConfig `yaml:"delegation"`
}

// AgentSeed defines an agent registered during workforce initialization.
// The first entry under "lead" becomes the delegation target when no
// other strategy applies.
type AgentSeed struct {
	ID           string   `yaml:"id,omitempty"`
	Name         string   `yaml:"name"`
	Type         string   `yaml:"type"`
	Capabilities []string `yaml:"capabilities,omitempty"`
	Model        string   `yaml:"model,omitempty"`
	Tools        []string `yaml:"tools,omitempty"`
	Prompt       string   `yaml:"prompt,omitempty"`
}

// TemplateConfig overrides the built-in per-type agent template.
type TemplateConfig struct {
	Type         string   `yaml:"type"`
	Capabilities []string `yaml:"capabilities,omitempty"`
	Model        string   `yaml:"model,omitempty"`
	Prompt       string   `yaml:"prompt,omitempty"`
}

// DelegationConfig holds task delegation settings.
type DelegationConfig struct {
	Strategy      string  `yaml:"strategy"`        // "lead", "capability", "round_robin"
	RatePerMinute float64 `yaml:"rate_per_minute"` // 0 = unlimited
	RateBurst     int     `yaml:"rate_burst"`
}

// InferenceConfig holds inference provider settings.
type InferenceConfig struct {
	DefaultProvider string                 `yaml:"default_provider"`
	Providers       []ProviderConfig       `yaml:"providers"`
	Failover        FailoverConfig         `yaml:"failover"`
	CircuitBreaker  CircuitBreakerConfig   `yaml:"circuit_breaker"`
	Pricing         map[string]PriceConfig `yaml:"pricing,omitempty"` // model -> per-1K-token price
}

// PriceConfig is the per-1K-token price for one model.
type PriceConfig struct {
	InputPer1K  float64 `yaml:"input_per_1k"`
	OutputPer1K float64 `yaml:"output_per_1k"`
}

// ProviderConfig holds settings for a single inference provider.
type ProviderConfig struct {
	Name        string        `yaml:"name"`
	Type        string        `yaml:"type"` // "template", "openai", "anthropic", "bedrock", "mock"
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	Region      string        `yaml:"region,omitempty"` // bedrock only
	ConnTimeout time.Duration `yaml:"conn_timeout"`
	RespTimeout time.Duration `yaml:"resp_timeout"`
	Pool        PoolConfig    `yaml:"pool"`
}

// PoolConfig holds HTTP connection pool settings for inference providers.
type PoolConfig struct {
	MaxIdleConns        int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `yaml:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout"`
}

// FailoverConfig holds provider failover settings.
type FailoverConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Fallbacks []string `yaml:"fallbacks"`
}

// CircuitBreakerConfig holds circuit breaker settings for inference providers.
type CircuitBreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// StoreConfig holds persistence settings.
type StoreConfig struct {
	Driver    string          `yaml:"driver"` // "sqlite" or "memory"
	Path      string          `yaml:"path"`   // sqlite database file
	Retention RetentionConfig `yaml:"retention"`
}

// RetentionConfig holds usage ledger retention policy settings.
type RetentionConfig struct {
	MaxAge time.Duration `yaml:"max_age"` // 0 = keep forever
}

// GatewayConfig holds WebSocket gateway settings.
type GatewayConfig struct {
	Enabled       bool       `yaml:"enabled"`
	Addr          string     `yaml:"addr"`
	Auth          AuthConfig `yaml:"auth"`
	RatePerMinute int        `yaml:"rate_per_minute"`
	RateBurst     int        `yaml:"rate_burst"`
}

// AuthConfig holds gateway authentication settings.
type AuthConfig struct {
	Type   string        `yaml:"type"` // "static" or ""
	Tokens []TokenConfig `yaml:"tokens,omitempty"`
}

// TokenConfig holds a single gateway auth token.
type TokenConfig struct {
	Token string   `yaml:"token"`
	Name  string   `yaml:"name"`
	Roles []string `yaml:"roles"`
}

// SchedulerConfig holds cron/scheduler settings.
type SchedulerConfig struct {
	Enabled bool                  `yaml:"enabled"`
	Tasks   []ScheduledTaskConfig `yaml:"tasks"`
}

// ScheduledTaskConfig defines a single scheduled maintenance task.
type ScheduledTaskConfig struct {
	Name     string `yaml:"name"`
	Schedule string `yaml:"schedule"` // cron expression or duration string
	Action   string `yaml:"action"`
	OneShot  bool   `yaml:"one_shot,omitempty"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
	Endpoint string `yaml:"endpoint"`
}

// defaultDataDir returns the persistent data directory under
// $HOME/.agency/data, falling back to "./data" when $HOME is unknown.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".agency", "data")
}

// Defaults returns a Config with sensible defaults. The template
// provider keeps the binary runnable without any API keys.
func Defaults() *Config {
	dataDir := defaultDataDir()
	return &Config{
		Workforce: WorkforceConfig{
			Lead:         AgentSeed{Name: "CEO", Type: "ceo"},
			MaxPerOwner:  0,
			TaskTimeout:  120 * time.Second,
			OfflineAfter: 30 * time.Minute,
			Delegation: DelegationConfig{
				Strategy: "lead",
			},
		},
		Inference: InferenceConfig{
			DefaultProvider: "template",
			Providers: []ProviderConfig{
				{Name: "template", Type: "template"},
			},
		},
		Store: StoreConfig{
			Driver: "sqlite",
			Path:   filepath.Join(dataDir, "agency.db"),
			Retention: RetentionConfig{
				MaxAge: 90 * 24 * time.Hour,
			},
		},
		Gateway: GatewayConfig{
			Enabled:       false,
			Addr:          ":8090",
			RatePerMinute: 300,
			RateBurst:     30,
		},
		Scheduler: SchedulerConfig{
			Enabled: true,
			Tasks: []ScheduledTaskConfig{
				{Name: "offline-sweep", Schedule: "*/10 * * * *", Action: "offline_sweep"},
				{Name: "ledger-retention", Schedule: "@daily", Action: "ledger_retention"},
			},
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
	}
}

// Load reads a YAML config file, applies env var overrides, and
// decrypts secrets. A missing file is not an error: defaults plus env
// overrides are returned.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			ApplyEnvOverrides(cfg)
			if err := Validate(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	if err := validatePermissions(absPath); err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	ApplyEnvOverrides(cfg)

	passphrase := os.Getenv("AGENCY_CONFIG_KEY")
	if passphrase != "" {
		if err := decryptSecrets(cfg, passphrase); err != nil {
			return nil, fmt.Errorf("decrypt secrets: %w", err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyEnvOverrides maps AGENCY_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("AGENCY_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("AGENCY_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("AGENCY_LOGGER_OUTPUT"); v != "" {
		cfg.Logger.Output = v
	}
	if v := os.Getenv("AGENCY_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("AGENCY_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
	if v := os.Getenv("AGENCY_INFERENCE_DEFAULT_PROVIDER"); v != "" {
		cfg.Inference.DefaultProvider = v
	}
	if v := os.Getenv("AGENCY_WORKFORCE_TASK_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Workforce.TaskTimeout = d
		}
	}
	if v := os.Getenv("AGENCY_WORKFORCE_MAX_PER_OWNER"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.Workforce.MaxPerOwner = n
		}
	}
	if v := os.Getenv("AGENCY_WORKFORCE_OFFLINE_AFTER"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Workforce.OfflineAfter = d
		}
	}
	if v := os.Getenv("AGENCY_STORE_DRIVER"); v != "" {
		cfg.Store.Driver = v
	}
	if v := os.Getenv("AGENCY_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("AGENCY_GATEWAY_ENABLED"); v == "true" {
		cfg.Gateway.Enabled = true
	}
	if v := os.Getenv("AGENCY_GATEWAY_ADDR"); v != "" {
		cfg.Gateway.Addr = v
	}
	if v := os.Getenv("AGENCY_GATEWAY_TOKEN"); v != "" {
		cfg.Gateway.Auth.Type = "static"
		cfg.Gateway.Auth.Tokens = append(cfg.Gateway.Auth.Tokens, TokenConfig{
			Token: v,
			Name:  "env",
			Roles: []string{"admin"},
		})
	}
	if v := os.Getenv("AGENCY_SCHEDULER_ENABLED"); v == "true" {
		cfg.Scheduler.Enabled = true
	}
	if v := os.Getenv("AGENCY_SCHEDULER_ENABLED"); v == "false" {
		cfg.Scheduler.Enabled = false
	}

	// Per-provider API key overrides: AGENCY_PROVIDER_<NAME>_API_KEY
	for i := range cfg.Inference.Providers {
		envKey := fmt.Sprintf("AGENCY_PROVIDER_%s_API_KEY",
			strings.ToUpper(cfg.Inference.Providers[i].Name))
		if v := os.Getenv(envKey); v != "" {
			cfg.Inference.Providers[i].APIKey = v
		}
	}
}

// validatePermissions checks the config file has restrictive permissions.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	// Allow 0600 and 0644 (readable by others but not writable)
	if mode&0o077 > 0o044 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}
