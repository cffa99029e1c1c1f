package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	AppName = "Gemini Chat"

	DefaultProvider          = "gemini"
	DefaultModel             = "gemini-3-flash-preview"
	DefaultSystemInstruction = "You are a helpful, witty, and concise AI assistant. You are powered by Google's Gemini 3 Flash model."
	DefaultWelcomeMessage    = "Hello! I am a chatbot powered by Google's Gemini 3 Flash model. How can I assist you today?"
	DefaultServeAddr         = "127.0.0.1:8080"
)

// ProviderType names the wire protocol a provider speaks.
type ProviderType string

const (
	ProviderTypeGemini    ProviderType = "gemini"
	ProviderTypeAnthropic ProviderType = "anthropic"
	ProviderTypeOpenAI    ProviderType = "openai"
	ProviderTypeMock      ProviderType = "mock"
)

type Config struct {
	Provider          string                    `mapstructure:"provider" yaml:"provider"`
	SystemInstruction string                    `mapstructure:"system_instruction" yaml:"system_instruction"`
	WelcomeMessage    string                    `mapstructure:"welcome_message" yaml:"welcome_message"`
	Providers         map[string]ProviderConfig `mapstructure:"providers" yaml:"providers"`
	Serve             ServeConfig               `mapstructure:"serve" yaml:"serve"`
}

type ProviderConfig struct {
	Type    ProviderType `mapstructure:"type" yaml:"type,omitempty"`
	Model   string       `mapstructure:"model" yaml:"model"`
	APIKey  string       `mapstructure:"api_key" yaml:"api_key,omitempty"`
	BaseURL string       `mapstructure:"base_url" yaml:"base_url,omitempty"`
}

type ServeConfig struct {
	Addr  string `mapstructure:"addr" yaml:"addr"`
	Token string `mapstructure:"token" yaml:"token,omitempty"`
}

// credentialEnv lists, per provider type, the environment variables consulted
// when no api_key is configured. Order matters.
var credentialEnv = map[ProviderType][]string{
	ProviderTypeGemini:    {"GEMINI_API_KEY", "GOOGLE_API_KEY", "VITE_API_KEY", "API_KEY"},
	ProviderTypeAnthropic: {"ANTHROPIC_API_KEY"},
	ProviderTypeOpenAI:    {"OPENAI_API_KEY"},
}

// Load reads the config file (optional) and applies defaults and GEMCHAT_* env overrides.
// An explicit path must exist; the default locations may be absent.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		if dir, err := configDir(); err == nil {
			v.AddConfigPath(dir)
		}
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("GEMCHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.fillDefaults()
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("provider", DefaultProvider)
	v.SetDefault("system_instruction", DefaultSystemInstruction)
	v.SetDefault("welcome_message", DefaultWelcomeMessage)
	v.SetDefault("providers.gemini.model", DefaultModel)
	v.SetDefault("providers.anthropic.model", "claude-sonnet-4-5")
	v.SetDefault("providers.openai.model", "gpt-5.2")
	v.SetDefault("serve.addr", DefaultServeAddr)
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	cfg := &Config{}
	cfg.fillDefaults()
	return cfg
}

func (c *Config) fillDefaults() {
	if strings.TrimSpace(c.Provider) == "" {
		c.Provider = DefaultProvider
	}
	if c.SystemInstruction == "" {
		c.SystemInstruction = DefaultSystemInstruction
	}
	if c.WelcomeMessage == "" {
		c.WelcomeMessage = DefaultWelcomeMessage
	}
	if c.Providers == nil {
		c.Providers = map[string]ProviderConfig{}
	}
	if _, ok := c.Providers[DefaultProvider]; !ok {
		c.Providers[DefaultProvider] = ProviderConfig{Model: DefaultModel}
	}
	if c.Serve.Addr == "" {
		c.Serve.Addr = DefaultServeAddr
	}
}

// ActiveProvider returns the selected provider's name and settings.
func (c *Config) ActiveProvider() (string, ProviderConfig) {
	return c.Provider, c.Providers[c.Provider]
}

// ApplyOverrides switches provider and/or model. Empty values leave the current setting.
func (c *Config) ApplyOverrides(provider, model string) {
	if provider != "" {
		c.Provider = provider
	}
	if model == "" {
		return
	}
	if c.Providers == nil {
		c.Providers = map[string]ProviderConfig{}
	}
	pc := c.Providers[c.Provider]
	pc.Model = model
	c.Providers[c.Provider] = pc
}

// ParseProviderModel splits "provider:model" into its parts. The model may be empty.
func ParseProviderModel(s string) (string, string) {
	provider, model, _ := strings.Cut(strings.TrimSpace(s), ":")
	return strings.TrimSpace(provider), strings.TrimSpace(model)
}

// InferProviderType returns explicit when set, the matching built-in type for
// known names, and the OpenAI-compatible protocol otherwise.
func InferProviderType(name string, explicit ProviderType) ProviderType {
	if explicit != "" {
		return explicit
	}
	switch ProviderType(name) {
	case ProviderTypeGemini, ProviderTypeAnthropic, ProviderTypeOpenAI, ProviderTypeMock:
		return ProviderType(name)
	}
	return ProviderTypeOpenAI
}

// Credential resolves the API key for the named provider: the configured
// api_key first (through ResolveValue), then the provider's environment variables.
// An empty result with a nil error means no credential is available.
func (c *Config) Credential(name string, getenv func(string) string) (string, error) {
	pc := c.Providers[name]
	if strings.TrimSpace(pc.APIKey) != "" {
		key, err := ResolveValue(pc.APIKey)
		if err != nil {
			return "", fmt.Errorf("resolve %s api_key: %w", name, err)
		}
		if key != "" {
			return key, nil
		}
	}
	for _, env := range credentialEnv[InferProviderType(name, pc.Type)] {
		if v := strings.TrimSpace(getenv(env)); v != "" {
			return v, nil
		}
	}
	return "", nil
}

// CredentialEnvVars returns the environment variables consulted for a provider.
func CredentialEnvVars(name string, explicit ProviderType) []string {
	return credentialEnv[InferProviderType(name, explicit)]
}

// Masked returns a copy safe for display, with API keys and tokens elided.
func (c *Config) Masked() *Config {
	out := *c
	out.Providers = make(map[string]ProviderConfig, len(c.Providers))
	for name, pc := range c.Providers {
		pc.APIKey = maskSecret(pc.APIKey)
		out.Providers[name] = pc
	}
	out.Serve.Token = maskSecret(c.Serve.Token)
	return &out
}

func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	// References are not secrets themselves
	if strings.HasPrefix(s, "$") || strings.HasPrefix(s, "op://") {
		return s
	}
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

func configDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get config dir: %w", err)
	}
	return filepath.Join(dir, "gemchat"), nil
}

// GetConfigPath returns the path where the config file should be located
func GetConfigPath() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Exists returns true if a config file exists
func Exists() bool {
	path, err := GetConfigPath()
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// Save writes cfg as YAML to path, or to the default location when path is empty.
func Save(cfg *Config, path string) error {
	if path == "" {
		p, err := GetConfigPath()
		if err != nil {
			return err
		}
		path = p
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// Marshal renders cfg as YAML.
func Marshal(cfg *Config) ([]byte, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}
