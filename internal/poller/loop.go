package poller

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/jpalmerr/feedrelay/internal/feed"
	"github.com/jpalmerr/feedrelay/internal/metrics"
)

// DefaultInterval is the sleep between two loop iterations.
const DefaultInterval = 60 * time.Second

// Fetcher returns the latest reading of the feed.
//
// ok is false when nothing is available; err, when set, explains why.
type Fetcher interface {
	Fetch(ctx context.Context) (r feed.Reading, ok bool, err error)
}

// Sink persists one reading. Implementations report failures through the
// returned error and must not depend on other sinks having succeeded.
type Sink interface {
	Name() string
	Persist(ctx context.Context, r feed.Reading) error
}

// Outcome classifies one loop iteration.
type Outcome int

const (
	OutcomeNoData Outcome = iota
	OutcomeFetchFailed
	OutcomeDuplicate
	OutcomeTooSoon
	OutcomeDelivered
	OutcomePanicked
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNoData:
		return "no_data"
	case OutcomeFetchFailed:
		return "fetch_failed"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeTooSoon:
		return "too_soon"
	case OutcomeDelivered:
		return "delivered"
	case OutcomePanicked:
		return "panicked"
	default:
		return "unknown"
	}
}

// pollResult maps an outcome onto the metrics label set.
func (o Outcome) pollResult() string {
	switch o {
	case OutcomeDelivered:
		return metrics.PollDelivered
	case OutcomeDuplicate, OutcomeTooSoon:
		return metrics.PollSkipped
	case OutcomeNoData:
		return metrics.PollNoData
	default:
		return metrics.PollFailed
	}
}

// SinkResult is the outcome of one sink for one reading.
type SinkResult struct {
	Sink string
	Err  error
}

// Delivery describes one loop iteration.
type Delivery struct {
	// Outcome classifies the iteration.
	Outcome Outcome

	// Reading is set when the feed returned a reading.
	Reading feed.Reading

	// HasReading reports whether Reading is meaningful.
	HasReading bool

	// Sinks holds one result per sink, in call order. Empty unless delivered.
	Sinks []SinkResult

	// Err is the fetch error or the recovered panic, if any.
	Err error

	// CheckedAt is when the iteration finished.
	CheckedAt time.Time
}

// Config holds the optional settings of a [Loop].
type Config struct {
	// Interval is the sleep after each iteration. Defaults to [DefaultInterval].
	Interval time.Duration

	// MinSpacing is passed to [Decide]. Defaults to [DefaultMinSpacing].
	MinSpacing time.Duration

	// Now is the clock used for dedup decisions. Defaults to time.Now.
	Now func() time.Time

	// Metrics records iteration and sink outcomes. May be nil.
	Metrics *metrics.Metrics

	// OnDelivery is called after every iteration from the loop goroutine.
	// Panics are recovered and logged.
	OnDelivery func(Delivery)
}

// Loop drives fetch, decide, persist and sleep until its context ends.
//
// Loop runs on a single goroutine. Sinks are called one after the other in
// the configured order, and every sink is attempted for an accepted reading
// regardless of how the previous ones fared.
type Loop struct {
	fetcher    Fetcher
	sinks      []Sink
	state      *State
	interval   time.Duration
	minSpacing time.Duration
	now        func() time.Time
	metrics    *metrics.Metrics
	onDelivery func(Delivery)
	logger     *slog.Logger
}

// NewLoop creates a [Loop] with an empty [State].
func NewLoop(fetcher Fetcher, sinks []Sink, cfg Config, logger *slog.Logger) *Loop {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.MinSpacing <= 0 {
		cfg.MinSpacing = DefaultMinSpacing
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Loop{
		fetcher:    fetcher,
		sinks:      sinks,
		state:      NewState(),
		interval:   cfg.Interval,
		minSpacing: cfg.MinSpacing,
		now:        cfg.Now,
		metrics:    cfg.Metrics,
		onDelivery: cfg.OnDelivery,
		logger:     logger,
	}
}

// State returns the loop state. Only read it from the loop goroutine or
// after Run has returned.
func (l *Loop) State() *State {
	return l.state
}

// Run executes iterations until ctx is cancelled.
//
// The first iteration starts immediately; afterwards the loop sleeps for
// the configured interval between iterations. Cancellation is honoured only
// between iterations: an iteration in progress runs to completion, bounded
// by the fetch and sink timeouts. Run returns nil once stopped.
func (l *Loop) Run(ctx context.Context) error {
	names := make([]string, len(l.sinks))
	for i, s := range l.sinks {
		names[i] = s.Name()
	}
	l.logger.Info("relay loop starting",
		"interval", l.interval.String(),
		"min_spacing", l.minSpacing.String(),
		"sinks", names,
	)

	iterCtx := context.WithoutCancel(ctx)
	for {
		if ctx.Err() != nil {
			break
		}

		l.RunOnce(iterCtx)

		timer := time.NewTimer(l.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-timer.C:
		}
	}

	l.logger.Info("relay stopped by operator")
	return nil
}

// RunOnce performs a single fetch, decide and persist pass.
//
// A panic anywhere in the pass is recovered, logged with a correlation id
// and reported as [OutcomePanicked].
func (l *Loop) RunOnce(ctx context.Context) (d Delivery) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			l.logger.Error("unexpected error in loop iteration",
				"correlation_id", correlationID,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
			d = Delivery{
				Outcome:   OutcomePanicked,
				Err:       fmt.Errorf("unexpected error (correlation_id: %s)", correlationID),
				CheckedAt: l.now(),
			}
		}
		l.metrics.ObservePoll(d.Outcome.pollResult())
		l.report(d)
	}()

	return l.iterate(ctx)
}

func (l *Loop) iterate(ctx context.Context) Delivery {
	l.logger.Debug("fetching feed")

	start := time.Now()
	r, ok, err := l.fetcher.Fetch(ctx)
	l.metrics.ObserveFetch(time.Since(start))

	if err != nil || !ok {
		outcome := OutcomeNoData
		if err != nil {
			outcome = OutcomeFetchFailed
		}
		l.logger.Debug("no data fetched, waiting for next iteration")
		return Delivery{Outcome: outcome, Err: err, CheckedAt: l.now()}
	}

	now := l.now()
	switch Decide(r, l.state, now, l.minSpacing) {
	case DecisionDuplicate:
		l.logger.Info("no new entry", "entry_id", r.EntryID)
		return Delivery{Outcome: OutcomeDuplicate, Reading: r, HasReading: true, CheckedAt: now}
	case DecisionTooSoon:
		l.logger.Info("waiting for the next interval",
			"entry_id", r.EntryID,
			"since_last", now.Sub(l.state.LastProcessedAt()).Round(time.Millisecond).String(),
		)
		return Delivery{Outcome: OutcomeTooSoon, Reading: r, HasReading: true, CheckedAt: now}
	}

	results := l.persist(ctx, r)
	l.state.Accept(r.EntryID, now)
	l.metrics.ObserveDelivery(r.EntryID)

	failed := 0
	for _, res := range results {
		if res.Err != nil {
			failed++
		}
	}
	if failed > 0 {
		l.logger.Warn("reading processed with sink failures",
			"entry_id", r.EntryID,
			"failed_sinks", failed,
			"total_sinks", len(results),
		)
	} else {
		l.logger.Info("new reading processed", "entry_id", r.EntryID)
	}

	return Delivery{
		Outcome:    OutcomeDelivered,
		Reading:    r,
		HasReading: true,
		Sinks:      results,
		CheckedAt:  l.now(),
	}
}

// persist calls every sink in order; no result short-circuits the rest.
func (l *Loop) persist(ctx context.Context, r feed.Reading) []SinkResult {
	results := make([]SinkResult, 0, len(l.sinks))
	for _, s := range l.sinks {
		err := l.persistSafe(ctx, s, r)
		l.metrics.ObserveSinkWrite(s.Name(), err)
		results = append(results, SinkResult{Sink: s.Name(), Err: err})
	}
	return results
}

// persistSafe calls a sink with panic recovery so the remaining sinks still run.
func (l *Loop) persistSafe(ctx context.Context, s Sink, r feed.Reading) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			correlationID := uuid.NewString()
			l.logger.Error("sink panic",
				"sink", s.Name(),
				"entry_id", r.EntryID,
				"correlation_id", correlationID,
				"panic", fmt.Sprintf("%v", rec),
				"stack", string(debug.Stack()),
			)
			err = fmt.Errorf("%s sink panic (correlation_id: %s)", s.Name(), correlationID)
		}
	}()
	return s.Persist(ctx, r)
}

// report hands d to the delivery callback with panic recovery.
func (l *Loop) report(d Delivery) {
	if l.onDelivery == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("delivery callback panicked", "panic", r, "outcome", d.Outcome.String())
		}
	}()
	l.onDelivery(d)
}
