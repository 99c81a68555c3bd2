package feedrelay

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jpalmerr/feedrelay/internal/sink"
)

// Sink persists one reading.
//
// Persist is called once per accepted reading, from the relay goroutine, in
// the order sinks were configured. A failure is reported through the returned
// error and never prevents the remaining sinks from running. Implementations
// should bound their own work; the relay does not cancel an in-flight write.
type Sink interface {
	Name() string
	Persist(ctx context.Context, r Reading) error
}

// ClosableSink is a [Sink] holding a connection that must be released once
// the relay has stopped.
type ClosableSink interface {
	Sink
	Close()
}

// CSVColumns returns the header row written by [NewCSVSink].
func CSVColumns() []string {
	return append([]string(nil), sink.CSVHeader...)
}

// NewCSVSink returns a sink appending one CSV row per reading to path.
//
// The file and its parent directory are created on first write, and the
// header is written when the file is empty. Field values are written
// as received; missing fields become empty cells.
func NewCSVSink(path string, logger *slog.Logger) (Sink, error) {
	if path == "" {
		return nil, errors.New("csv path cannot be empty")
	}
	return sink.NewFileSink(path, logger), nil
}

// PostgresConfig describes a direct Postgres connection.
type PostgresConfig struct {
	// DSN is a libpq connection string or postgres:// URL.
	DSN string

	// Table is the target table, optionally schema-qualified.
	Table string

	// ViaBouncer disables prepared statements for transaction-pooling
	// bouncers such as PgBouncer or the Supabase pooler.
	ViaBouncer bool

	// Timeout bounds each insert. Defaults to 10 seconds.
	Timeout time.Duration
}

// OpenPostgresSink connects to Postgres and returns a sink inserting one row
// per reading. A write succeeds only if the insert returns the new row.
func OpenPostgresSink(ctx context.Context, cfg PostgresConfig, logger *slog.Logger) (ClosableSink, error) {
	if cfg.DSN == "" {
		return nil, errors.New("postgres dsn cannot be empty")
	}
	s, err := sink.OpenPostgres(ctx, cfg.DSN, cfg.Table, cfg.ViaBouncer, cfg.Timeout, logger)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// SupabaseConfig describes a Supabase (PostgREST) project.
type SupabaseConfig struct {
	// URL is the project URL, e.g. https://<ref>.supabase.co.
	URL string

	// APIKey is the service or anon key.
	APIKey string

	// Table is the target table.
	Table string

	// Timeout bounds each insert. Defaults to 10 seconds.
	Timeout time.Duration
}

// NewSupabaseSink returns a sink inserting one row per reading through the
// Supabase REST API. A write succeeds only if the response echoes the row.
func NewSupabaseSink(cfg SupabaseConfig, logger *slog.Logger) (Sink, error) {
	s, err := sink.NewSupabaseSink(cfg.URL, cfg.APIKey, cfg.Table, cfg.Timeout, logger)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// MQTTConfig describes an MQTT broker connection.
type MQTTConfig struct {
	// Broker is the broker URL, e.g. tcp://localhost:1883.
	Broker string

	// ClientID identifies this relay to the broker.
	ClientID string

	// Topic receives one JSON message per reading.
	Topic string

	Username string
	Password string

	// Timeout bounds connect and each publish. Defaults to 10 seconds.
	Timeout time.Duration
}

// DialMQTTSink connects to the broker and returns a sink publishing each
// reading as JSON with QoS 1.
func DialMQTTSink(cfg MQTTConfig, logger *slog.Logger) (ClosableSink, error) {
	if cfg.Broker == "" {
		return nil, errors.New("mqtt broker cannot be empty")
	}
	if cfg.Topic == "" {
		return nil, errors.New("mqtt topic cannot be empty")
	}
	s, err := sink.DialMQTT(sink.MQTTConfig{
		Broker:   cfg.Broker,
		ClientID: cfg.ClientID,
		Topic:    cfg.Topic,
		Username: cfg.Username,
		Password: cfg.Password,
		Timeout:  cfg.Timeout,
	}, logger)
	if err != nil {
		return nil, err
	}
	return s, nil
}
