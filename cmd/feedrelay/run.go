package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jpalmerr/feedrelay"
	"github.com/jpalmerr/feedrelay/config"
	"github.com/spf13/cobra"
)

const (
	shutdownTimeout = 10 * time.Second
)

// runCmd starts the relay loop.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start relaying readings",
	Long: `Start the feedrelay loop.

The relay will:
  - Load environment variables from the env file, then the YAML config
  - Fetch the latest feed entry every poll interval
  - Store each new reading in the database, the CSV file and MQTT
  - Serve status, SSE and metrics endpoints if server.port is set

The relay runs until interrupted (Ctrl+C) or receives SIGTERM.

Example:
  feedrelay run -c config.yaml
  feedrelay run -c /etc/feedrelay/config.yaml --env /etc/feedrelay/settings.env`,
	RunE: runRelay,
}

func init() {
	rootCmd.AddCommand(runCmd)
	addConfigFlags(runCmd)
}

// addConfigFlags registers the flags shared by commands reading a config.
func addConfigFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("config", "c", "", "path to config file (required)")
	cmd.Flags().String("env", config.DefaultEnvFile, "path to dotenv file loaded before the config")
	_ = cmd.MarkFlagRequired("config")
}

// loadConfig loads the env file, then the config file named by the flags.
// The env file is optional unless --env was given explicitly.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	envFile, _ := cmd.Flags().GetString("env")
	if err := config.LoadEnvFile(envFile, cmd.Flags().Changed("env")); err != nil {
		return nil, err
	}

	configFile, _ := cmd.Flags().GetString("config")
	return config.Load(configFile)
}

// newLogger creates a JSON logger for CLI use, writing to stderr and, when
// file is set, appending to file as well.
func newLogger(level, file string) (*slog.Logger, func(), error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, nil, fmt.Errorf("invalid log level: %w", err)
	}

	var (
		w       io.Writer = os.Stderr
		closeFn           = func() {}
	)
	if file != "" {
		if dir := filepath.Dir(file); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
			}
		}
		f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		w = io.MultiWriter(os.Stderr, f)
		closeFn = func() { _ = f.Close() }
	}

	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: lvl,
	}))
	return logger, closeFn, nil
}

func runRelay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, closeLog, err := newLogger(cfg.Log.Level, cfg.Log.File)
	if err != nil {
		return err
	}
	defer closeLog()

	logger.Info("config loaded",
		"feed", cfg.Feed.URL,
		"database", cfg.Database.Driver,
		"csv", cfg.CSV.Path,
		"mqtt", cfg.MQTT.Enabled(),
	)

	f, err := config.BuildFeed(cfg)
	if err != nil {
		return fmt.Errorf("failed to build feed: %w", err)
	}

	// set up context with signal handling - cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sinks, closeSinks, err := config.BuildSinks(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open sinks: %w", err)
	}
	defer closeSinks()

	opts := append(config.Options(cfg, logger),
		feedrelay.WithFeed(f),
		feedrelay.WithSinks(sinks...),
	)
	relay, err := feedrelay.New(opts...)
	if err != nil {
		return fmt.Errorf("failed to create relay: %w", err)
	}

	logger.Info("starting relay",
		"poll_interval", cfg.PollInterval.Duration().String(),
		"min_spacing", cfg.MinSpacing.Duration().String(),
		"port", cfg.Server.Port,
	)

	// start relay - blocks until context cancelled
	errChan := make(chan error, 1)
	go func() {
		errChan <- relay.Start(ctx)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("relay error: %w", err)
		}
		logger.Info("shutdown complete")
		return nil

	case <-ctx.Done():
		logger.Info("interrupt received, waiting for current iteration")
		// an in-flight fetch or write finishes first, bounded by its timeout
		select {
		case err := <-errChan:
			if err != nil {
				return fmt.Errorf("relay error: %w", err)
			}
			logger.Info("shutdown complete")
			return nil
		case <-time.After(shutdownTimeout):
			logger.Warn("shutdown timed out",
				"timeout", shutdownTimeout.String(),
				"action", "forcing exit",
			)
			return nil
		}
	}
}
