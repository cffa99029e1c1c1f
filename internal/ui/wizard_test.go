package ui

import (
	"testing"

	"github.com/samsaffron/gemchat/internal/config"
)

func TestDetectAvailableProviders(t *testing.T) {
	env := map[string]string{"VITE_API_KEY": "x", "OPENAI_API_KEY": " "}
	providers := detectAvailableProviders(func(k string) string { return env[k] })

	got := map[string]bool{}
	for _, p := range providers {
		got[p.value] = p.available
	}
	want := map[string]bool{"gemini": true, "anthropic": false, "openai": false, "mock": true}
	for name, available := range want {
		if got[name] != available {
			t.Fatalf("%s available=%v, want %v", name, got[name], available)
		}
	}
}

func TestBuildProviderOptionsPutsReadyFirst(t *testing.T) {
	opts := buildProviderOptions([]providerOption{
		{name: "A", value: "a"},
		{name: "B", value: "b", available: true},
	})
	if len(opts) != 2 || opts[0].Value != "b" || opts[1].Value != "a" {
		t.Fatalf("unexpected order: %+v", opts)
	}
}

func TestApplyWizardChoice(t *testing.T) {
	cfg := config.Default()
	applyWizardChoice(cfg, "anthropic", " claude-sonnet-4-5 ", "$ANTHROPIC_API_KEY")
	if cfg.Provider != "anthropic" {
		t.Fatalf("provider=%q", cfg.Provider)
	}
	pc := cfg.Providers["anthropic"]
	if pc.Model != "claude-sonnet-4-5" || pc.APIKey != "$ANTHROPIC_API_KEY" {
		t.Fatalf("unexpected provider config: %+v", pc)
	}

	applyWizardChoice(cfg, "gemini", "", "")
	if cfg.Providers["gemini"].Model != config.DefaultModel {
		t.Fatalf("empty model should keep default, got %q", cfg.Providers["gemini"].Model)
	}
}
