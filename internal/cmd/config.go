package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/finhub/internal/config"
)

const redacted = "********"

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the effective finhub configuration",
	Long: `Inspect the configuration finhub runs with after merging defaults,
the config file, .env and FINHUB_* environment variables.

Secrets (API keys, signing secrets, DSNs, passwords) are redacted.

Examples:
  # Show the full configuration
  finhub config show

  # Show it as JSON
  finhub config show --format json

  # Get a single value
  finhub config get roles.store

  # Show which config file was used
  finhub config path
`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Display the effective configuration",
	RunE:  runConfigShow,
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a specific configuration value",
	Long:  `Retrieve the value of a configuration key using dot notation (e.g., roles.store).`,
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigGet,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the configuration file in use",
	RunE:  runConfigPath,
}

var configFormat string

func init() {
	configShowCmd.Flags().StringVar(&configFormat, "format", "yaml", "Output format: yaml or json")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configPathCmd)

	rootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return ConfigLoadError(cfgFile, err)
	}
	return writeConfig(cmd.OutOrStdout(), cfg, configFormat)
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return ConfigLoadError(cfgFile, err)
	}

	value, err := configValue(cfg, args[0])
	if err != nil {
		return NewErrorWithSuggestions(err.Error(), nil,
			"Run 'finhub config show' to list the available keys",
		)
	}
	fmt.Fprintln(cmd.OutOrStdout(), value)
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	if cfgFile != "" {
		fmt.Fprintln(cmd.OutOrStdout(), cfgFile)
		return nil
	}

	v := viper.New()
	v.SetConfigName("finhub")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.finhub")
	v.AddConfigPath("/etc/finhub")
	if err := v.ReadInConfig(); err != nil {
		fmt.Fprintln(cmd.OutOrStdout(), "(no config file found; using defaults and environment)")
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), v.ConfigFileUsed())
	return nil
}

// redact returns a copy of cfg with secrets masked.
func redact(cfg *config.Config) *config.Config {
	c := *cfg
	mask := func(s *string) {
		if *s != "" {
			*s = redacted
		}
	}
	mask(&c.Identity.Firebase.APIKey)
	mask(&c.Identity.Memory.SigningSecret)
	mask(&c.Roles.Postgres.DSN)
	mask(&c.Roles.Redis.Password)
	return &c
}

// configTree renders cfg as a generic map keyed by the config file names.
func configTree(cfg *config.Config) (map[string]interface{}, error) {
	data, err := yaml.Marshal(redact(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	tree := map[string]interface{}{}
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return tree, nil
}

func writeConfig(w io.Writer, cfg *config.Config, format string) error {
	switch format {
	case "yaml", "":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(redact(cfg)); err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
		return enc.Close()
	case "json":
		tree, err := configTree(cfg)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(tree)
	default:
		return NewErrorWithSuggestions(fmt.Sprintf("unsupported format %q", format), nil,
			"Use --format yaml or --format json",
		)
	}
}

// configValue looks up a dot-separated key. Sections print as YAML.
func configValue(cfg *config.Config, key string) (string, error) {
	tree, err := configTree(cfg)
	if err != nil {
		return "", err
	}

	var node interface{} = tree
	for _, part := range strings.Split(key, ".") {
		m, ok := node.(map[string]interface{})
		if !ok {
			return "", fmt.Errorf("unknown configuration key: %s", key)
		}
		if node, ok = m[part]; !ok {
			return "", fmt.Errorf("unknown configuration key: %s", key)
		}
	}

	switch v := node.(type) {
	case map[string]interface{}, []interface{}:
		data, err := yaml.Marshal(v)
		if err != nil {
			return "", err
		}
		return strings.TrimRight(string(data), "\n"), nil
	case nil:
		return "", nil
	default:
		return fmt.Sprint(v), nil
	}
}
