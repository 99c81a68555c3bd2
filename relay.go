package feedrelay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jpalmerr/feedrelay/internal/feed"
	"github.com/jpalmerr/feedrelay/internal/metrics"
	"github.com/jpalmerr/feedrelay/internal/poller"
	"github.com/jpalmerr/feedrelay/internal/server"
	"github.com/jpalmerr/feedrelay/internal/store"
)

const (
	defaultPollingInterval = poller.DefaultInterval
	defaultMinSpacing      = poller.DefaultMinSpacing
)

// Relay polls a feed and forwards every new reading to its sinks.
//
// Relay is created using [New] with functional options and started with
// [Relay.Start]. The typical lifecycle is:
//
//	relay, err := feedrelay.New(
//	    feedrelay.WithFeed(f),
//	    feedrelay.WithSinks(db, csv),
//	)
//	if err != nil {
//	    slog.Error("failed to create relay", "error", err)
//	    os.Exit(1)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//
//	relay.Start(ctx) // blocks until context cancelled
type Relay struct {
	feed              Feed
	sinks             []Sink
	pollingInterval   time.Duration
	minSpacing        time.Duration
	port              int
	logger            *slog.Logger
	deliveryCallbacks []func(Delivery)
	now               func() time.Time
}

// New creates a [Relay] with the given options.
//
// A feed ([WithFeed]) and at least one sink ([WithSink]) are required. Sink
// names must be unique. Other options default to:
//   - Polling interval: 60 seconds
//   - Minimum spacing: 60 seconds
//   - Port: 0 (status server disabled)
func New(opts ...Option) (*Relay, error) {
	cfg := &relayConfig{
		pollingInterval: defaultPollingInterval,
		minSpacing:      defaultMinSpacing,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.feed == nil {
		return nil, errors.New("a feed is required")
	}
	if len(cfg.sinks) == 0 {
		return nil, errors.New("at least one sink is required")
	}

	// sink names label metrics and status records, so they must be unique
	seen := make(map[string]bool, len(cfg.sinks))
	for _, s := range cfg.sinks {
		name := s.Name()
		if name == "" {
			return nil, errors.New("sink name cannot be empty")
		}
		if seen[name] {
			return nil, fmt.Errorf("duplicate sink name: %q", name)
		}
		seen[name] = true
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Relay{
		feed:              *cfg.feed,
		sinks:             cfg.sinks,
		pollingInterval:   cfg.pollingInterval,
		minSpacing:        cfg.minSpacing,
		port:              cfg.port,
		logger:            logger,
		deliveryCallbacks: cfg.deliveryCallbacks,
		now:               cfg.now,
	}, nil
}

// Start runs the relay loop until ctx is cancelled.
//
// The first fetch happens immediately, then after every polling interval.
// Each new reading is handed to every sink in order; a failing sink is
// logged and never stops the others or the loop. When a port is configured
// the status server runs alongside the loop.
//
// Cancellation is honoured between iterations: a fetch or sink write in
// progress completes first, bounded by its own timeout. Sinks are not
// closed by Start.
//
// Returns nil on graceful shutdown. Returns an error if the status server
// fails to start.
func (rl *Relay) Start(ctx context.Context) error {
	if ctx.Err() != nil {
		return nil
	}

	rl.logger.Info("feedrelay starting",
		"feed", rl.feed.url,
		"sink_count", len(rl.sinks),
	)

	fetcher, err := feed.NewFetcher(feed.Source{
		URL:     rl.feed.url,
		APIKey:  rl.feed.apiKey,
		Results: rl.feed.results,
		Timeout: rl.feed.timeout,
		Headers: rl.feed.Headers(),
	}, rl.logger)
	if err != nil {
		return err
	}
	defer fetcher.Close()

	m := metrics.New()
	statusStore := store.NewMemoryStore()

	if rl.port > 0 {
		httpServer := server.NewServer(statusStore, rl.port, m.Handler(), rl.logger)
		if err := httpServer.Start(ctx); err != nil {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		rl.logger.Info("status available", "url", fmt.Sprintf("http://localhost:%d/api/status", rl.port))
	}

	loop := poller.NewLoop(fetcher, rl.pollerSinks(), poller.Config{
		Interval:   rl.pollingInterval,
		MinSpacing: rl.minSpacing,
		Now:        rl.now,
		Metrics:    m,
		OnDelivery: func(d poller.Delivery) {
			// store update first (callbacks fire after the record is visible)
			statusStore.Update(toStoreRecord(d))

			if len(rl.deliveryCallbacks) > 0 {
				public := toPublicDelivery(d)
				for _, cb := range rl.deliveryCallbacks {
					invokeCallbackSafe(cb, public, rl.logger)
				}
			}
		},
	}, rl.logger)

	return loop.Run(ctx)
}

// Feed returns the configured feed.
func (rl *Relay) Feed() Feed {
	return rl.feed
}

// Sinks returns a copy of the configured sinks, in call order.
func (rl *Relay) Sinks() []Sink {
	cp := make([]Sink, len(rl.sinks))
	copy(cp, rl.sinks)
	return cp
}

// PollingInterval returns the sleep between two iterations.
func (rl *Relay) PollingInterval() time.Duration {
	return rl.pollingInterval
}

// MinSpacing returns the minimum time between two accepted readings.
func (rl *Relay) MinSpacing() time.Duration {
	return rl.minSpacing
}

// Port returns the status server port, 0 when disabled.
func (rl *Relay) Port() int {
	return rl.port
}

func (rl *Relay) pollerSinks() []poller.Sink {
	out := make([]poller.Sink, len(rl.sinks))
	for i, s := range rl.sinks {
		out[i] = s
	}
	return out
}

// toStoreRecord converts a loop delivery to its status-store representation.
func toStoreRecord(d poller.Delivery) store.Record {
	rec := store.Record{
		Outcome:   d.Outcome.String(),
		CheckedAt: d.CheckedAt,
		Error:     errString(d.Err),
	}
	if d.HasReading {
		id := d.Reading.EntryID
		rec.EntryID = &id
		rec.CreatedAt = d.Reading.CreatedAt
		rec.Fields = d.Reading.RawValues()
	}
	for _, s := range d.Sinks {
		rec.Sinks = append(rec.Sinks, store.SinkStatus{
			Name:  s.Sink,
			OK:    s.Err == nil,
			Error: errString(s.Err),
		})
	}
	return rec
}

// toPublicDelivery converts a loop delivery to the public API type.
func toPublicDelivery(d poller.Delivery) Delivery {
	var sinks []SinkResult
	if len(d.Sinks) > 0 {
		sinks = make([]SinkResult, len(d.Sinks))
		for i, s := range d.Sinks {
			sinks[i] = SinkResult{Sink: s.Sink, Err: s.Err}
		}
	}
	return Delivery{
		Outcome:    Outcome(d.Outcome.String()),
		Reading:    d.Reading,
		HasReading: d.HasReading,
		Sinks:      sinks,
		Err:        d.Err,
		CheckedAt:  d.CheckedAt,
	}
}

func errString(err error) *string {
	if err == nil {
		return nil
	}
	s := err.Error()
	return &s
}

// invokeCallbackSafe calls a delivery callback with panic recovery.
// Panics are logged but do not propagate.
func invokeCallbackSafe(cb func(Delivery), d Delivery, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("delivery callback panicked",
				"panic", r,
				"outcome", d.Outcome.String(),
			)
		}
	}()
	cb(d)
}
