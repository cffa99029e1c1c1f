package cmd

import (
	"slices"
	"strings"

	"github.com/samsaffron/gemchat/internal/config"
	"github.com/spf13/cobra"
)

// suggestedModels are offered after "provider:" for the built-in provider types.
var suggestedModels = map[config.ProviderType][]string{
	config.ProviderTypeGemini:    {config.DefaultModel, "gemini-2.5-pro", "gemini-2.5-flash"},
	config.ProviderTypeAnthropic: {"claude-sonnet-4-5", "claude-opus-4-1", "claude-haiku-4-5"},
	config.ProviderTypeOpenAI:    {"gpt-5.2", "gpt-5-mini", "gpt-4.1"},
	config.ProviderTypeMock:      {"mock"},
}

// ProviderFlagCompletion handles --provider flag completion
func ProviderFlagCompletion(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	cfg, err := config.Load(configPath)
	if err != nil {
		cfg = config.Default()
	}
	completions := providerCompletions(cfg, toComplete)

	// If completing provider name (no colon), don't add space so user can type ":"
	if !strings.Contains(toComplete, ":") {
		return completions, cobra.ShellCompDirectiveNoFileComp | cobra.ShellCompDirectiveNoSpace
	}
	return completions, cobra.ShellCompDirectiveNoFileComp
}

func providerCompletions(cfg *config.Config, toComplete string) []string {
	name, partial, hasModel := strings.Cut(toComplete, ":")
	if !hasModel {
		var out []string
		for _, p := range providerNames(cfg) {
			if strings.HasPrefix(p, toComplete) {
				out = append(out, p)
			}
		}
		return out
	}

	pc := cfg.Providers[name]
	models := slices.Clone(suggestedModels[config.InferProviderType(name, pc.Type)])
	if pc.Model != "" && !slices.Contains(models, pc.Model) {
		models = append([]string{pc.Model}, models...)
	}
	var out []string
	for _, m := range models {
		if strings.HasPrefix(m, partial) {
			out = append(out, name+":"+m)
		}
	}
	return out
}

// providerNames lists the built-in provider types followed by configured providers, sorted and deduplicated.
func providerNames(cfg *config.Config) []string {
	names := []string{
		string(config.ProviderTypeGemini),
		string(config.ProviderTypeAnthropic),
		string(config.ProviderTypeOpenAI),
		string(config.ProviderTypeMock),
	}
	for name := range cfg.Providers {
		names = append(names, name)
	}
	slices.Sort(names)
	return slices.Compact(names)
}
