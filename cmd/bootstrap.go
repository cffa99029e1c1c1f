package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/samsaffron/gemchat/internal/config"
	"github.com/samsaffron/gemchat/internal/conversation"
	"github.com/samsaffron/gemchat/internal/gateway"
	"github.com/samsaffron/gemchat/internal/llm"
	"github.com/samsaffron/gemchat/internal/ui"
	"golang.org/x/term"
)

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// loadConfigWithSetup runs the setup wizard on first use from an interactive
// terminal when no config file exists and the environment has no key.
func loadConfigWithSetup() (*config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if !needsSetup(cfg, configPath, config.Exists(), os.Getenv) || !term.IsTerminal(int(os.Stdin.Fd())) {
		return cfg, nil
	}

	cfg, err = ui.RunSetupWizard(cfg)
	if err != nil {
		return nil, fmt.Errorf("setup cancelled: %w", err)
	}
	if err := config.Save(cfg, ""); err != nil {
		return nil, err
	}
	return cfg, nil
}

func needsSetup(cfg *config.Config, explicitPath string, fileExists bool, getenv func(string) string) bool {
	if explicitPath != "" || fileExists {
		return false
	}
	name, _ := cfg.ActiveProvider()
	key, err := cfg.Credential(name, getenv)
	return err == nil && key == ""
}

func applyProviderOverrides(cfg *config.Config, flag string) {
	if strings.TrimSpace(flag) == "" {
		return
	}
	cfg.ApplyOverrides(config.ParseProviderModel(flag))
}

// chatCore is the store built from the effective config, with the provider and model it talks to.
type chatCore struct {
	Provider string
	Model    string
	Store    *conversation.Store
}

func newChatCore(cfg *config.Config) (*chatCore, error) {
	factory, model, err := llm.NewSessionFactory(cfg)
	if err != nil {
		return nil, err
	}
	name, pc := cfg.ActiveProvider()
	gw := gateway.New(factory, model, cfg.SystemInstruction)
	store := conversation.NewStore(gw, conversation.Options{
		WelcomeMessage: cfg.WelcomeMessage,
		CredentialEnv:  config.CredentialEnvVars(name, pc.Type),
	})
	return &chatCore{Provider: name, Model: gw.Model(), Store: store}, nil
}
