package config

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jpalmerr/feedrelay"
)

// BuildFeed converts the feed section into an SDK Feed.
func BuildFeed(cfg *Config) (feedrelay.Feed, error) {
	opts := []feedrelay.FeedOption{
		feedrelay.WithAPIKey(cfg.Feed.APIKey),
		feedrelay.WithResults(cfg.Feed.Results),
	}
	if cfg.Feed.Timeout != 0 {
		opts = append(opts, feedrelay.WithTimeout(cfg.Feed.Timeout.Duration()))
	}
	return feedrelay.NewFeed(cfg.Feed.URL, opts...)
}

// BuildSinks opens every configured sink in call order: database, CSV, then
// MQTT when enabled.
//
// The returned close function releases database and broker connections and
// must be called once the relay has stopped. On error, sinks opened so far
// are already closed.
func BuildSinks(ctx context.Context, cfg *Config, logger *slog.Logger) ([]feedrelay.Sink, func(), error) {
	var (
		sinks   []feedrelay.Sink
		closers []func()
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	db, dbClose, err := buildDatabaseSink(ctx, cfg.Database, logger)
	if err != nil {
		return nil, nil, err
	}
	sinks = append(sinks, db)
	if dbClose != nil {
		closers = append(closers, dbClose)
	}

	csv, err := feedrelay.NewCSVSink(cfg.CSV.Path, logger)
	if err != nil {
		closeAll()
		return nil, nil, fmt.Errorf("csv: %w", err)
	}
	sinks = append(sinks, csv)

	if cfg.MQTT.Enabled() {
		m, err := feedrelay.DialMQTTSink(feedrelay.MQTTConfig{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Topic:    cfg.MQTT.Topic,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
			Timeout:  cfg.MQTT.Timeout.Duration(),
		}, logger)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("mqtt: %w", err)
		}
		sinks = append(sinks, m)
		closers = append(closers, m.Close)
	}

	return sinks, closeAll, nil
}

func buildDatabaseSink(ctx context.Context, db DatabaseConfig, logger *slog.Logger) (feedrelay.Sink, func(), error) {
	switch db.Driver {
	case DriverPostgres:
		s, err := feedrelay.OpenPostgresSink(ctx, feedrelay.PostgresConfig{
			DSN:        db.DSN,
			Table:      db.Table,
			ViaBouncer: db.ViaBouncer,
			Timeout:    db.Timeout.Duration(),
		}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("database: %w", err)
		}
		return s, s.Close, nil

	case DriverSupabase:
		s, err := feedrelay.NewSupabaseSink(feedrelay.SupabaseConfig{
			URL:     db.URL,
			APIKey:  db.APIKey,
			Table:   db.Table,
			Timeout: db.Timeout.Duration(),
		}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("database: %w", err)
		}
		return s, nil, nil

	default:
		return nil, nil, fmt.Errorf("database: unknown driver %q", db.Driver)
	}
}

// Options returns the relay options derived from cfg, excluding feed and
// sinks.
func Options(cfg *Config, logger *slog.Logger) []feedrelay.Option {
	opts := []feedrelay.Option{
		feedrelay.WithPollingInterval(cfg.PollInterval.Duration()),
		feedrelay.WithMinSpacing(cfg.MinSpacing.Duration()),
		feedrelay.WithPort(cfg.Server.Port),
	}
	if logger != nil {
		opts = append(opts, feedrelay.WithLogger(logger))
	}
	return opts
}
