package llm

import (
	"fmt"
	"os"
	"strings"

	"github.com/samsaffron/gemchat/internal/config"
)

const mockFallbackReply = "This is a canned reply from the mock provider. Configure a real provider with `gemchat config init`."

// NewSessionFactory builds the factory for the configured provider and returns it with the model to use.
// A missing API key is not an error here: the factory reports it when the first session is requested.
func NewSessionFactory(cfg *config.Config) (SessionFactory, string, error) {
	name, pc := cfg.ActiveProvider()

	key, err := cfg.Credential(name, os.Getenv)
	if err != nil {
		return nil, "", &ConfigurationError{Provider: name, Err: err}
	}
	baseURL, err := config.ResolveValue(pc.BaseURL)
	if err != nil {
		return nil, "", &ConfigurationError{Provider: name, Err: fmt.Errorf("resolve base_url: %w", err)}
	}

	model := pc.Model
	switch config.InferProviderType(name, pc.Type) {
	case config.ProviderTypeGemini:
		return NewGeminiFactory(key, baseURL), chooseModel(model, config.DefaultModel), nil
	case config.ProviderTypeAnthropic:
		return NewAnthropicFactory(key, baseURL), chooseModel(model, "claude-sonnet-4-5"), nil
	case config.ProviderTypeOpenAI:
		if name != string(config.ProviderTypeOpenAI) && baseURL == "" {
			return nil, "", &ConfigurationError{Provider: name, Err: fmt.Errorf("unknown provider (set providers.%s.base_url for an OpenAI-compatible endpoint)", name)}
		}
		return NewOpenAIFactory(key, baseURL), chooseModel(model, "gpt-5.2"), nil
	case config.ProviderTypeMock:
		return NewMockFactory().WithFallback(mockFallbackReply), chooseModel(model, mockName), nil
	default:
		return nil, "", &ConfigurationError{Provider: name, Err: fmt.Errorf("unsupported provider type %q", pc.Type)}
	}
}

// chooseModel returns the configured model, or fallback when none is set.
func chooseModel(configured, fallback string) string {
	if m := strings.TrimSpace(configured); m != "" {
		return m
	}
	return fallback
}
