package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"sigs.k8s.io/yaml"

	"github.com/taosdata/tsbackup-core/internal/plugin"
)

var (
	pluginConfigPath   string
	operatorConfigPath string
	outputFormat       string
)

// rootCmd is the backupctl entry point. Every subcommand below calls
// loadConfig once, drives plugin.InitWithConfig/plugin.Cleanup around a
// single operation, and exits through ExitCode — a fresh process per
// invocation, matching how an operator actually runs this tool.
var rootCmd = &cobra.Command{
	Use:           "backupctl",
	Short:         "Operator CLI for the incremental backup change-tracking core",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&pluginConfigPath, "config", "", "path to a TOML plugin config file (plugin_init's native format)")
	flags.StringVar(&operatorConfigPath, "operator-config", "", "path to a YAML operator config file, decoded with sigs.k8s.io/yaml")
	flags.StringVar(&outputFormat, "format", "yaml", "output format for structured results: yaml or json")
	pflag.CommandLine = flags

	rootCmd.AddCommand(dirtyBlocksCmd, streamCmd, estimateSizeCmd, metadataCmd, validateCmd, statsCmd, lastErrorCmd, clearErrorCmd)
}

// loadConfig resolves --config / --operator-config into a plugin.Config,
// preferring whichever the operator actually set; --operator-config wins
// if both are given, since YAML is the human-facing format.
func loadConfig() (plugin.Config, error) {
	if operatorConfigPath != "" {
		data, err := os.ReadFile(operatorConfigPath)
		if err != nil {
			return plugin.Config{}, err
		}
		cfg := plugin.DefaultConfig()
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return plugin.Config{}, err
		}
		return cfg, nil
	}
	if pluginConfigPath != "" {
		data, err := os.ReadFile(pluginConfigPath)
		if err != nil {
			return plugin.Config{}, err
		}
		return plugin.ParseConfig(data)
	}
	return plugin.DefaultConfig(), nil
}

// withPlugin runs fn with the plugin singleton initialized from whichever
// config flag was set, guaranteeing Cleanup runs even if fn fails.
func withPlugin(fn func() error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := plugin.InitWithConfig(cfg); err != nil {
		return err
	}
	defer plugin.Cleanup()
	return fn()
}
