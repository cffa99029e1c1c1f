package cmd

import (
	"fmt"

	"github.com/samsaffron/gemchat/internal/config"
	"github.com/samsaffron/gemchat/internal/ui"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `View or create the gemchat configuration file.

Examples:
  gemchat config init        # interactive provider and key setup
  gemchat config show        # effective configuration, secrets masked
  gemchat config path        # location of the config file`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Run the interactive setup wizard",
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file path",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := resolvedConfigPath()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd, configInitCmd, configPathCmd)
	rootCmd.AddCommand(configCmd)
}

func resolvedConfigPath() (string, error) {
	if configPath != "" {
		return configPath, nil
	}
	return config.GetConfigPath()
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	path, err := resolvedConfigPath()
	if err != nil {
		return err
	}
	data, err := config.Marshal(cfg.Masked())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if configPath != "" || config.Exists() {
		fmt.Fprintf(out, "# %s\n", path)
	} else {
		fmt.Fprintf(out, "# %s (not created, showing defaults)\n", path)
	}
	_, err = out.Write(data)
	return err
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	base, err := loadConfig()
	if err != nil {
		return err
	}
	cfg, err := ui.RunSetupWizard(base)
	if err != nil {
		return fmt.Errorf("setup cancelled: %w", err)
	}
	if err := config.Save(cfg, configPath); err != nil {
		return err
	}
	path, err := resolvedConfigPath()
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Saved %s\n", path)
	return nil
}
