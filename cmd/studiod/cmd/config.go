package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/broadcastkit/studiod/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
	Long:  `Commands for managing studiod configuration.`,
}

var configDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Dump the default configuration",
	Long: `Dump the default configuration values in YAML format.

This shows all available configuration options with their default values.
You can redirect this output to a file to create a configuration template:

  studiod config dump > config.yaml

Configuration can be set via:
  - Config file (config.yaml, /etc/studiod/config.yaml, $HOME/.studiod/config.yaml)
  - Environment variables (STUDIOD_DATABASE_DRIVER, STUDIOD_STORAGE_BASE_DIR, etc.)
  - Command-line flags (for some options)

Environment variables use the STUDIOD_ prefix and underscores for nesting.
Example: database.driver -> STUDIOD_DATABASE_DRIVER`,
	RunE: runConfigDump,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configDumpCmd)
}

func runConfigDump(cmd *cobra.Command, args []string) error {
	v := viper.New()
	config.SetDefaults(v)

	out, err := yaml.Marshal(v.AllSettings())
	if err != nil {
		return fmt.Errorf("encoding configuration: %w", err)
	}
	fmt.Print(string(out))
	return nil
}
