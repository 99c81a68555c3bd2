package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// validateCmd validates a config file without starting the relay.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a feedrelay configuration file without starting the relay.

This command loads the env file, parses the YAML, expands environment
variables and validates all fields. No connection is opened.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  feedrelay validate -c config.yaml
  feedrelay validate -c config.yaml --env settings.env`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
	addConfigFlags(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	mqtt := "disabled"
	if cfg.MQTT.Enabled() {
		mqtt = cfg.MQTT.Broker + " -> " + cfg.MQTT.Topic
	}
	server := "disabled"
	if cfg.Server.Port > 0 {
		server = fmt.Sprintf("port %d", cfg.Server.Port)
	}

	fmt.Printf("Config is valid!\n")
	fmt.Printf("  Feed:          %s\n", cfg.Feed.URL)
	fmt.Printf("  Poll interval: %s\n", cfg.PollInterval.Duration())
	fmt.Printf("  Min spacing:   %s\n", cfg.MinSpacing.Duration())
	fmt.Printf("  Database:      %s (table %s)\n", cfg.Database.Driver, cfg.Database.Table)
	fmt.Printf("  CSV:           %s\n", cfg.CSV.Path)
	fmt.Printf("  MQTT:          %s\n", mqtt)
	fmt.Printf("  Server:        %s\n", server)

	return nil
}
