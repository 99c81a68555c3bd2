package feedrelay

import (
	"errors"
	"log/slog"
	"time"
)

// relayConfig holds mutable state during Relay construction.
type relayConfig struct {
	feed              *Feed
	sinks             []Sink
	pollingInterval   time.Duration
	minSpacing        time.Duration
	port              int
	logger            *slog.Logger
	deliveryCallbacks []func(Delivery)
	now               func() time.Time
}

// Option is a function that configures a [Relay] during construction.
//
// Options return an error if validation fails.
//
// Built-in options: [WithFeed], [WithSink], [WithSinks],
// [WithPollingInterval], [WithMinSpacing], [WithPort], [WithLogger],
// [WithDeliveryCallback].
type Option func(*relayConfig) error

// WithFeed sets the feed to poll. Required.
func WithFeed(f Feed) Option {
	return func(cfg *relayConfig) error {
		if f.url == "" {
			return errors.New("feed must be created with NewFeed")
		}
		cfg.feed = &f
		return nil
	}
}

// WithSink adds a [Sink]. Sinks are called in the order they are added.
//
// Returns an error if s is nil.
func WithSink(s Sink) Option {
	return func(cfg *relayConfig) error {
		if s == nil {
			return errors.New("sink cannot be nil")
		}
		cfg.sinks = append(cfg.sinks, s)
		return nil
	}
}

// WithSinks adds several sinks at once. Equivalent to calling [WithSink]
// for each.
func WithSinks(sinks ...Sink) Option {
	return func(cfg *relayConfig) error {
		for _, s := range sinks {
			if err := WithSink(s)(cfg); err != nil {
				return err
			}
		}
		return nil
	}
}

// WithPollingInterval sets the sleep between two iterations.
//
// The interval is measured from the end of one iteration to the start of
// the next. Defaults to 60 seconds.
//
// Returns an error if the duration is zero or negative.
func WithPollingInterval(d time.Duration) Option {
	return func(cfg *relayConfig) error {
		if d <= 0 {
			return errors.New("polling interval must be positive")
		}
		cfg.pollingInterval = d
		return nil
	}
}

// WithMinSpacing sets the minimum time between two accepted readings.
//
// A new entry arriving sooner is skipped for that iteration. Defaults to
// 60 seconds.
//
// Returns an error if the duration is zero or negative.
func WithMinSpacing(d time.Duration) Option {
	return func(cfg *relayConfig) error {
		if d <= 0 {
			return errors.New("min spacing must be positive")
		}
		cfg.minSpacing = d
		return nil
	}
}

// WithPort enables the status server on the given port.
//
// The server exposes /api/status, /api/sse, /healthz and /metrics.
// Port 0 disables the server, which is the default.
//
// Returns an error if the port is outside 0..65535.
func WithPort(port int) Option {
	return func(cfg *relayConfig) error {
		if port < 0 || port > 65535 {
			return errors.New("port must be between 0 and 65535")
		}
		cfg.port = port
		return nil
	}
}

// WithLogger sets a custom [slog.Logger] for the relay.
// If not specified, [slog.Default] is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *relayConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithDeliveryCallback registers a function called after every iteration.
//
// Callbacks run synchronously on the relay goroutine, in registration order,
// after the status store has been updated. They must not block: a slow
// callback delays the next fetch. Panics are recovered and logged.
//
// Example:
//
//	relay, err := feedrelay.New(
//	    feedrelay.WithFeed(f),
//	    feedrelay.WithSink(csv),
//	    feedrelay.WithDeliveryCallback(func(d feedrelay.Delivery) {
//	        for _, s := range d.Failed() {
//	            alerts <- s
//	        }
//	    }),
//	)
//
// Nil callbacks are silently ignored.
func WithDeliveryCallback(cb func(Delivery)) Option {
	return func(cfg *relayConfig) error {
		if cb == nil {
			return nil
		}
		cfg.deliveryCallbacks = append(cfg.deliveryCallbacks, cb)
		return nil
	}
}
