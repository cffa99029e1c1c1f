package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestApplyOverrides(t *testing.T) {
	cfg := &Config{
		Provider: "gemini",
		Providers: map[string]ProviderConfig{
			"gemini":    {Model: "gemini-3-flash-preview"},
			"anthropic": {Model: "claude-sonnet-4-5"},
		},
	}

	cfg.ApplyOverrides("anthropic", "claude-opus-4-1")
	if cfg.Provider != "anthropic" {
		t.Fatalf("provider=%q, want %q", cfg.Provider, "anthropic")
	}
	if cfg.Providers["anthropic"].Model != "claude-opus-4-1" {
		t.Fatalf("anthropic model=%q, want %q", cfg.Providers["anthropic"].Model, "claude-opus-4-1")
	}
	if cfg.Providers["gemini"].Model != "gemini-3-flash-preview" {
		t.Fatalf("gemini model changed unexpectedly: %q", cfg.Providers["gemini"].Model)
	}

	cfg.ApplyOverrides("", "claude-haiku-4-5")
	if cfg.Provider != "anthropic" {
		t.Fatalf("provider changed unexpectedly: %q", cfg.Provider)
	}
	if cfg.Providers["anthropic"].Model != "claude-haiku-4-5" {
		t.Fatalf("anthropic model=%q, want %q", cfg.Providers["anthropic"].Model, "claude-haiku-4-5")
	}
}

func TestParseProviderModel(t *testing.T) {
	tests := []struct {
		input        string
		wantProvider string
		wantModel    string
	}{
		{"gemini", "gemini", ""},
		{"openai:gpt-4o", "openai", "gpt-4o"},
		{" anthropic : claude-sonnet-4-5 ", "anthropic", "claude-sonnet-4-5"},
		{"openrouter:x-ai/grok-code-fast-1", "openrouter", "x-ai/grok-code-fast-1"},
	}
	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			provider, model := ParseProviderModel(tc.input)
			if provider != tc.wantProvider || model != tc.wantModel {
				t.Fatalf("ParseProviderModel(%q) = (%q, %q), want (%q, %q)", tc.input, provider, model, tc.wantProvider, tc.wantModel)
			}
		})
	}
}

func TestInferProviderType(t *testing.T) {
	tests := []struct {
		name     string
		explicit ProviderType
		want     ProviderType
	}{
		{"gemini", "", ProviderTypeGemini},
		{"anthropic", "", ProviderTypeAnthropic},
		{"openai", "", ProviderTypeOpenAI},
		{"mock", "", ProviderTypeMock},
		{"groq", "", ProviderTypeOpenAI},
		{"anthropic", ProviderTypeOpenAI, ProviderTypeOpenAI}, // explicit overrides
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := InferProviderType(tc.name, tc.explicit)
			if got != tc.want {
				t.Errorf("InferProviderType(%q, %q) = %q, want %q", tc.name, tc.explicit, got, tc.want)
			}
		})
	}
}

func TestCredentialEnvFallbackOrder(t *testing.T) {
	cfg := Default()
	env := map[string]string{
		"VITE_API_KEY": "vite-key",
		"API_KEY":      "plain-key",
	}
	getenv := func(k string) string { return env[k] }

	key, err := cfg.Credential("gemini", getenv)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != "vite-key" {
		t.Fatalf("key=%q, want VITE_API_KEY to win over API_KEY", key)
	}

	env["GEMINI_API_KEY"] = "gemini-key"
	key, _ = cfg.Credential("gemini", getenv)
	if key != "gemini-key" {
		t.Fatalf("key=%q, want GEMINI_API_KEY first", key)
	}
}

func TestCredentialPrefersConfiguredKey(t *testing.T) {
	t.Setenv("GEMCHAT_TEST_KEY", "from-env-ref")
	cfg := Default()
	cfg.Providers["gemini"] = ProviderConfig{Model: DefaultModel, APIKey: "${GEMCHAT_TEST_KEY}"}

	key, err := cfg.Credential("gemini", func(string) string { return "ignored" })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != "from-env-ref" {
		t.Fatalf("key=%q, want %q", key, "from-env-ref")
	}
}

func TestCredentialMissing(t *testing.T) {
	cfg := Default()
	key, err := cfg.Credential("anthropic", func(string) string { return "" })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != "" {
		t.Fatalf("key=%q, want empty", key)
	}
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Provider != DefaultProvider {
		t.Fatalf("provider=%q, want %q", cfg.Provider, DefaultProvider)
	}
	if cfg.Providers["gemini"].Model != DefaultModel {
		t.Fatalf("gemini model=%q, want %q", cfg.Providers["gemini"].Model, DefaultModel)
	}
	if cfg.WelcomeMessage != DefaultWelcomeMessage {
		t.Fatalf("welcome=%q", cfg.WelcomeMessage)
	}
	if cfg.Serve.Addr != DefaultServeAddr {
		t.Fatalf("serve addr=%q", cfg.Serve.Addr)
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := Default()
	cfg.Provider = "anthropic"
	cfg.Providers["anthropic"] = ProviderConfig{Model: "claude-sonnet-4-5", APIKey: "$ANTHROPIC_API_KEY"}
	cfg.Serve.Token = "secret"

	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Fatalf("perm=%v, want 0600", info.Mode().Perm())
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Provider != "anthropic" {
		t.Fatalf("provider=%q", loaded.Provider)
	}
	if loaded.Providers["anthropic"].APIKey != "$ANTHROPIC_API_KEY" {
		t.Fatalf("api_key=%q", loaded.Providers["anthropic"].APIKey)
	}
	if loaded.Serve.Token != "secret" {
		t.Fatalf("token=%q", loaded.Serve.Token)
	}
}

func TestLoadExplicitMissingFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestEnvOverridesProvider(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Chdir(t.TempDir())
	t.Setenv("GEMCHAT_PROVIDER", "mock")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Provider != "mock" {
		t.Fatalf("provider=%q, want mock", cfg.Provider)
	}
}

func TestMaskedHidesSecrets(t *testing.T) {
	cfg := Default()
	cfg.Providers["gemini"] = ProviderConfig{Model: DefaultModel, APIKey: "AIzaSyDUMMYDUMMYDUMMY1234"}
	cfg.Providers["openai"] = ProviderConfig{APIKey: "$OPENAI_API_KEY"}
	cfg.Serve.Token = "short"

	masked := cfg.Masked()
	data, err := Marshal(masked)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	out := string(data)
	if strings.Contains(out, "DUMMYDUMMY") {
		t.Fatalf("masked output leaks key:\n%s", out)
	}
	if !strings.Contains(out, "$OPENAI_API_KEY") {
		t.Fatalf("env reference should be shown as-is:\n%s", out)
	}
	if cfg.Providers["gemini"].APIKey != "AIzaSyDUMMYDUMMYDUMMY1234" {
		t.Fatal("Masked must not modify the original config")
	}
}

func TestResolveValue(t *testing.T) {
	t.Setenv("GEMCHAT_RESOLVE", "value-from-env")

	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"literal", "literal"},
		{"$GEMCHAT_RESOLVE", "value-from-env"},
		{"${GEMCHAT_RESOLVE}", "value-from-env"},
		{"$(echo from-command)", "from-command"},
	}
	for _, tc := range tests {
		got, err := ResolveValue(tc.in)
		if err != nil {
			t.Fatalf("ResolveValue(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ResolveValue(%q)=%q, want %q", tc.in, got, tc.want)
		}
	}
}
