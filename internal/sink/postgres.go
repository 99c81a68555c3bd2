package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jpalmerr/feedrelay/internal/feed"
)

// rowQuerier is the subset of *pgxpool.Pool used by [PostgresSink].
type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresSink inserts readings into a Postgres table, one row per reading.
type PostgresSink struct {
	db      rowQuerier
	pool    *pgxpool.Pool
	query   string
	timeout time.Duration
	logger  *slog.Logger
}

// OpenPostgres connects a pool to dsn and returns a sink inserting into table.
//
// table may be schema-qualified ("public.readings"). Set viaBouncer when the
// DSN points at a transaction-mode pooler such as Supabase's port 6543; the
// pool then uses the simple protocol instead of prepared statements.
func OpenPostgres(ctx context.Context, dsn, table string, viaBouncer bool, timeout time.Duration, logger *slog.Logger) (*PostgresSink, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	cfg.MaxConns = 2
	if viaBouncer {
		cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	s, err := newPostgresSink(pool, table, timeout, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	s.pool = pool
	return s, nil
}

func newPostgresSink(db rowQuerier, table string, timeout time.Duration, logger *slog.Logger) (*PostgresSink, error) {
	query, err := insertQuery(table)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresSink{db: db, query: query, timeout: timeout, logger: logger}, nil
}

func insertQuery(table string) (string, error) {
	parts := strings.Split(table, ".")
	if len(parts) > 2 {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	for _, p := range parts {
		if p == "" {
			return "", fmt.Errorf("invalid table name %q", table)
		}
	}

	cols := make([]string, len(columns))
	params := make([]string, len(columns))
	for i, c := range columns {
		cols[i] = pgx.Identifier{c}.Sanitize()
		params[i] = fmt.Sprintf("$%d", i+1)
	}

	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING entry_id",
		pgx.Identifier(parts).Sanitize(),
		strings.Join(cols, ", "),
		strings.Join(params, ", "),
	), nil
}

// Name implements the loop's sink contract.
func (s *PostgresSink) Name() string { return "postgres" }

// Persist inserts r. A missing RETURNING row is reported as [ErrNoAck].
func (s *PostgresSink) Persist(ctx context.Context, r feed.Reading) error {
	err := s.insert(ctx, r)
	if err != nil {
		err = wrap(s.Name(), r.EntryID, err)
		s.logger.Error("failed to send reading to database", "sink", s.Name(), "entry_id", r.EntryID, "error", err.Error())
		return err
	}
	s.logger.Info("reading sent to database", "sink", s.Name(), "entry_id", r.EntryID)
	return nil
}

func (s *PostgresSink) insert(ctx context.Context, r feed.Reading) error {
	row, err := NewRow(r)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var id int64
	if err := s.db.QueryRow(ctx, s.query, row.args()...).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNoAck
		}
		return fmt.Errorf("insert: %w", err)
	}
	return nil
}

// Close releases the connection pool, if the sink owns one.
func (s *PostgresSink) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}
