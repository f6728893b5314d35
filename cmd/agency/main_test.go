package main

import (
	"os"
	"testing"
)

func withArgs(t *testing.T, args ...string) {
	t.Helper()
	old := os.Args
	os.Args = append([]string{"agency"}, args...)
	t.Cleanup(func() { os.Args = old })
}

func TestParseFlagsSeparateForm(t *testing.T) {
	withArgs(t, "--provider", "openai", "--model", "gpt-4o", "--key", "sk-test")

	flags := parseFlags()
	if flags.Provider != "openai" {
		t.Errorf("Provider = %q, want openai", flags.Provider)
	}
	if flags.Model != "gpt-4o" {
		t.Errorf("Model = %q, want gpt-4o", flags.Model)
	}
	if flags.APIKey != "sk-test" {
		t.Errorf("APIKey = %q, want sk-test", flags.APIKey)
	}
}

func TestParseFlagsEqualsForm(t *testing.T) {
	withArgs(t, "--provider=anthropic", "--model=claude-sonnet-4-5", "--key=sk-ant")

	flags := parseFlags()
	if flags.Provider != "anthropic" {
		t.Errorf("Provider = %q, want anthropic", flags.Provider)
	}
	if flags.Model != "claude-sonnet-4-5" {
		t.Errorf("Model = %q, want claude-sonnet-4-5", flags.Model)
	}
	if flags.APIKey != "sk-ant" {
		t.Errorf("APIKey = %q, want sk-ant", flags.APIKey)
	}
}

func TestParseFlagsEmpty(t *testing.T) {
	withArgs(t)

	flags := parseFlags()
	if flags.Provider != "" || flags.Model != "" || flags.APIKey != "" {
		t.Errorf("expected zero flags, got %+v", flags)
	}
}

func TestBuildQuickConfig(t *testing.T) {
	cfg, err := buildQuickConfig(cliFlags{Provider: "openai", Model: "gpt-4o", APIKey: "sk-test"})
	if err != nil {
		t.Fatalf("buildQuickConfig: %v", err)
	}
	if cfg.Inference.DefaultProvider != "openai" {
		t.Errorf("DefaultProvider = %q", cfg.Inference.DefaultProvider)
	}
	if len(cfg.Inference.Providers) != 1 {
		t.Fatalf("expected 1 provider, got %d", len(cfg.Inference.Providers))
	}
	p := cfg.Inference.Providers[0]
	if p.Type != "openai" || p.Model != "gpt-4o" || p.APIKey != "sk-test" {
		t.Errorf("provider = %+v", p)
	}
	// Defaults must survive the quick path.
	if cfg.Workforce.Lead.Type == "" {
		t.Error("expected default lead type")
	}
}

func TestBuildQuickConfigMissingFlags(t *testing.T) {
	if _, err := buildQuickConfig(cliFlags{Provider: "openai"}); err == nil {
		t.Error("expected error when model and key are missing")
	}
}

func TestBuildQuickConfigUnknownProvider(t *testing.T) {
	if _, err := buildQuickConfig(cliFlags{Provider: "frobnicator", Model: "m", APIKey: "k"}); err == nil {
		t.Error("expected validation error for unknown provider type")
	}
}

func TestConfigPathFlag(t *testing.T) {
	withArgs(t, "--config", "/tmp/agency.yaml")
	if got := configPath(); got != "/tmp/agency.yaml" {
		t.Errorf("configPath() = %q", got)
	}

	withArgs(t, "--config=/etc/agency/config.yaml")
	if got := configPath(); got != "/etc/agency/config.yaml" {
		t.Errorf("configPath() = %q", got)
	}
}

func TestConfigPathEnv(t *testing.T) {
	withArgs(t)
	t.Setenv("AGENCY_CONFIG", "/opt/agency.yaml")
	if got := configPath(); got != "/opt/agency.yaml" {
		t.Errorf("configPath() = %q", got)
	}
}

func TestConfigPathDefault(t *testing.T) {
	withArgs(t)
	t.Setenv("AGENCY_CONFIG", "")
	if got := configPath(); got != "config.yaml" {
		t.Errorf("configPath() = %q", got)
	}
}
