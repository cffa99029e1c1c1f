package ui

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/samsaffron/gemchat/internal/config"
)

// providerOption represents a provider choice in the setup wizard
type providerOption struct {
	name      string
	value     string
	available bool
	hint      string // Shows how to enable if not available
}

// detectAvailableProviders checks which providers have credentials in the environment
func detectAvailableProviders(getenv func(string) string) []providerOption {
	describe := func(label string, t config.ProviderType) providerOption {
		envs := config.CredentialEnvVars(string(t), t)
		available := false
		for _, env := range envs {
			if strings.TrimSpace(getenv(env)) != "" {
				available = true
				break
			}
		}
		return providerOption{
			name:      label + " - " + envs[0],
			value:     string(t),
			available: available,
			hint:      "set " + strings.Join(envs, " or "),
		}
	}

	return []providerOption{
		describe("Gemini", config.ProviderTypeGemini),
		describe("Anthropic", config.ProviderTypeAnthropic),
		describe("OpenAI", config.ProviderTypeOpenAI),
		{
			name:      "Mock - canned replies, no key required",
			value:     string(config.ProviderTypeMock),
			available: true,
		},
	}
}

// buildProviderOptions orders ready providers first.
func buildProviderOptions(providers []providerOption) []huh.Option[string] {
	var available, unavailable []huh.Option[string]
	for _, p := range providers {
		if p.available {
			available = append(available, huh.NewOption(p.name+" ✓", p.value))
		} else {
			unavailable = append(unavailable, huh.NewOption(p.name+" (not set)", p.value))
		}
	}
	return append(available, unavailable...)
}

// applyWizardChoice folds the wizard answers into cfg.
func applyWizardChoice(cfg *config.Config, provider, model, apiKey string) {
	cfg.Provider = provider
	pc := cfg.Providers[provider]
	if strings.TrimSpace(model) != "" {
		pc.Model = strings.TrimSpace(model)
	}
	if strings.TrimSpace(apiKey) != "" {
		pc.APIKey = strings.TrimSpace(apiKey)
	}
	cfg.Providers[provider] = pc
}

func getTTY() (*os.File, error) {
	return os.OpenFile("/dev/tty", os.O_RDWR, 0)
}

// RunSetupWizard asks for a provider, model and optional key, starting from base.
func RunSetupWizard(base *config.Config) (*config.Config, error) {
	cfg := base
	if cfg == nil {
		cfg = config.Default()
	}

	// Use /dev/tty for output to bypass redirections
	tty, ttyErr := getTTY()
	if ttyErr == nil {
		defer tty.Close()
		fmt.Fprint(tty, "Welcome to gemchat! Let's get you set up.\n\n")
	} else {
		fmt.Fprint(os.Stderr, "Welcome to gemchat! Let's get you set up.\n\n")
	}

	providers := detectAvailableProviders(os.Getenv)

	provider := cfg.Provider
	var model, apiKey string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Which LLM provider do you want to use?").
				Description("Providers marked ✓ have a key in your environment").
				Options(buildProviderOptions(providers)...).
				Value(&provider),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Model").
				DescriptionFunc(func() string {
					if m := cfg.Providers[provider].Model; m != "" {
						return "Leave empty to keep " + m
					}
					return "Leave empty for the provider default"
				}, &provider).
				Value(&model),
			huh.NewInput().
				Title("API key").
				Description("Optional. Accepts $VAR, $(command) or op:// references. Leave empty to use the environment.").
				EchoMode(huh.EchoModePassword).
				Value(&apiKey),
		).WithHideFunc(func() bool { return provider == string(config.ProviderTypeMock) }),
	)

	if ttyErr == nil {
		form = form.WithInput(tty).WithOutput(tty)
	}

	if err := form.Run(); err != nil {
		return nil, err
	}

	for _, p := range providers {
		if p.value == provider && !p.available && strings.TrimSpace(apiKey) == "" {
			fmt.Fprintf(os.Stderr, "Note: %s is not configured yet (%s).\n", p.name, p.hint)
		}
	}

	applyWizardChoice(cfg, provider, model, apiKey)
	return cfg, nil
}
