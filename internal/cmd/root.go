package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/finhub/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "finhub",
	Short: "Finance dashboard with role-gated views",
	Long: `finhub shows live cryptocurrency, stock and foreign exchange data.

It runs as an HTTP API that proxies the market data vendors, and as a
terminal dashboard that signs users in, resolves their role and keeps
them on the views that role allows.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var (
	cfgFile  string
	logLevel string
)

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// ExecuteContext runs the root command with ctx available to every
// subcommand.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./finhub.yaml, $HOME/.finhub/finhub.yaml or /etc/finhub/finhub.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (overrides log.level)")
}

// loadConfig reads and validates the configuration, applying global flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, ConfigLoadError(cfgFile, err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
