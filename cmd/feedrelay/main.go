// Package main is the entry point for the feedrelay CLI.
//
// feedrelay can be embedded as a library (SDK) or run as a standalone binary
// with YAML configuration. This CLI provides the standalone binary approach.
//
// Usage:
//
//	feedrelay run -c config.yaml      # Start relaying readings
//	feedrelay validate -c config.yaml # Validate configuration
//	feedrelay version                 # Show version info
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information - set by GoReleaser at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd is the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "feedrelay",
	Short: "Relay ThingSpeak readings to a database and a CSV file",
	Long: `feedrelay polls a ThingSpeak channel feed and stores every new reading.

Each reading is inserted into Postgres or Supabase, appended to a CSV file
and optionally published to an MQTT broker. A failing destination is logged
and never stops the others.

Quick start:
  1. Create a config file (feedrelay.yaml)
  2. Put secrets in config/settings.env
  3. Run: feedrelay run -c feedrelay.yaml

Example config:
  feed:
    channel_id: ${THINGSPEAK_CHANNEL_ID}
    api_key: ${THINGSPEAK_API_KEY:-}
  database:
    driver: supabase
    url: ${SUPABASE_URL}
    api_key: ${SUPABASE_API_KEY}
    table: sensor_data
  csv:
    path: ${CSV_FILE_PATH:-data/readings.csv}`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// cobra already printed the error
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this feedrelay binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("feedrelay %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
