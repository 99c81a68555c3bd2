package feedrelay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jpalmerr/feedrelay/internal/feed"
	"github.com/jpalmerr/feedrelay/internal/poller"
)

// testLogger returns a logger that discards all output for clean test output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// withClock overrides the clock used for dedup decisions.
func withClock(now func() time.Time) Option {
	return func(cfg *relayConfig) error {
		cfg.now = now
		return nil
	}
}

// recordingSink records every reading it receives and fails when err is set.
type recordingSink struct {
	name string
	err  error

	mu       sync.Mutex
	readings []Reading
}

func newRecordingSink(name string) *recordingSink {
	return &recordingSink{name: name}
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Persist(_ context.Context, r Reading) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readings = append(s.readings, r)
	return s.err
}

func (s *recordingSink) EntryIDs() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int64, len(s.readings))
	for i, r := range s.readings {
		ids[i] = r.EntryID
	}
	return ids
}

// feedServer serves a single-entry feed whose entry id is produced by next.
func feedServer(t *testing.T, next func() int64) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"channel":{"id":1},"feeds":[{"created_at":"2024-01-01T00:00:00Z","entry_id":%d,"field1":"7.1","field2":"8.2","field3":"21.5","field4":"3.3","field5":"probe-1"}]}`, next())
	}))
	t.Cleanup(ts.Close)
	return ts
}

func constantID(id int64) func() int64 {
	return func() int64 { return id }
}

func TestToStoreRecord_Delivered(t *testing.T) {
	d := poller.Delivery{
		Outcome:    poller.OutcomeDelivered,
		Reading:    feed.Reading{EntryID: 12, CreatedAt: "2024-01-01T00:00:00Z"},
		HasReading: true,
		Sinks: []poller.SinkResult{
			{Sink: "postgres", Err: errors.New("connection refused")},
			{Sink: "csv"},
		},
		CheckedAt: time.Date(2024, 1, 1, 0, 0, 5, 0, time.UTC),
	}

	rec := toStoreRecord(d)

	if rec.Outcome != "delivered" {
		t.Errorf("Outcome = %q, want delivered", rec.Outcome)
	}
	if rec.EntryID == nil || *rec.EntryID != 12 {
		t.Errorf("EntryID = %v, want 12", rec.EntryID)
	}
	if len(rec.Fields) != 5 {
		t.Errorf("len(Fields) = %d, want 5", len(rec.Fields))
	}
	if len(rec.Sinks) != 2 {
		t.Fatalf("len(Sinks) = %d, want 2", len(rec.Sinks))
	}
	if rec.Sinks[0].OK || rec.Sinks[0].Error == nil || *rec.Sinks[0].Error != "connection refused" {
		t.Errorf("Sinks[0] = %+v, want failed postgres", rec.Sinks[0])
	}
	if !rec.Sinks[1].OK || rec.Sinks[1].Error != nil {
		t.Errorf("Sinks[1] = %+v, want ok csv", rec.Sinks[1])
	}
	if rec.Error != nil {
		t.Errorf("Error = %v, want nil", *rec.Error)
	}
}

func TestToStoreRecord_NoReading(t *testing.T) {
	rec := toStoreRecord(poller.Delivery{
		Outcome: poller.OutcomeFetchFailed,
		Err:     fmt.Errorf("%w: status 503", feed.ErrTransport),
	})

	if rec.EntryID != nil || rec.Fields != nil || rec.Sinks != nil {
		t.Errorf("record = %+v, want no reading data", rec)
	}
	if rec.Error == nil {
		t.Error("Error = nil, want fetch error")
	}
}

func TestToPublicDelivery(t *testing.T) {
	sinkErr := errors.New("disk full")
	d := toPublicDelivery(poller.Delivery{
		Outcome:    poller.OutcomeDelivered,
		Reading:    feed.Reading{EntryID: 3},
		HasReading: true,
		Sinks:      []poller.SinkResult{{Sink: "csv", Err: sinkErr}, {Sink: "postgres"}},
	})

	if d.Outcome != OutcomeDelivered {
		t.Errorf("Outcome = %v, want delivered", d.Outcome)
	}
	if !d.HasReading || d.Reading.EntryID != 3 {
		t.Errorf("Reading = %+v", d.Reading)
	}
	failed := d.Failed()
	if len(failed) != 1 || failed[0].Sink != "csv" || !errors.Is(failed[0].Err, sinkErr) {
		t.Errorf("Failed() = %+v, want only csv", failed)
	}
}

func TestOutcomeNamesMatchLoop(t *testing.T) {
	pairs := map[poller.Outcome]Outcome{
		poller.OutcomeDelivered:   OutcomeDelivered,
		poller.OutcomeDuplicate:   OutcomeDuplicate,
		poller.OutcomeTooSoon:     OutcomeTooSoon,
		poller.OutcomeNoData:      OutcomeNoData,
		poller.OutcomeFetchFailed: OutcomeFetchFailed,
		poller.OutcomePanicked:    OutcomePanicked,
	}
	for in, want := range pairs {
		if got := toPublicDelivery(poller.Delivery{Outcome: in}).Outcome; got != want {
			t.Errorf("outcome %v converted to %q, want %q", in, got, want)
		}
	}
}

func TestStart_DeliversToEverySink(t *testing.T) {
	ts := feedServer(t, constantID(7))
	f, err := NewFeed(ts.URL)
	if err != nil {
		t.Fatalf("NewFeed() error = %v", err)
	}

	failing := newRecordingSink("postgres")
	failing.err = errors.New("connection refused")
	csv := newRecordingSink("csv")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan Delivery, 1)
	rl, err := New(
		WithFeed(f),
		WithSinks(failing, csv),
		WithLogger(testLogger()),
		WithDeliveryCallback(func(d Delivery) {
			if d.Outcome == OutcomeDelivered {
				got <- d
				cancel()
			}
		}),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- rl.Start(ctx) }()

	var d Delivery
	select {
	case d = <-got:
	case <-time.After(5 * time.Second):
		t.Fatal("no delivery within 5s")
	}

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return after cancellation")
	}

	if ids := csv.EntryIDs(); len(ids) != 1 || ids[0] != 7 {
		t.Errorf("csv sink entry ids = %v, want [7]", ids)
	}
	if ids := failing.EntryIDs(); len(ids) != 1 || ids[0] != 7 {
		t.Errorf("failing sink entry ids = %v, want [7]", ids)
	}
	if len(d.Sinks) != 2 || d.Sinks[0].Sink != "postgres" || d.Sinks[1].Sink != "csv" {
		t.Fatalf("Sinks = %+v, want postgres then csv", d.Sinks)
	}
	if failed := d.Failed(); len(failed) != 1 || failed[0].Sink != "postgres" {
		t.Errorf("Failed() = %+v, want only postgres", failed)
	}
	if v, _ := d.Reading.PH(); v != 7.1 {
		t.Errorf("Reading.PH() = %v, want 7.1", v)
	}
}

func TestStart_SameEntryPersistedOnce(t *testing.T) {
	ts := feedServer(t, constantID(42))
	f, _ := NewFeed(ts.URL)
	sink := newRecordingSink("csv")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var duplicates atomic.Int32
	rl, err := New(
		WithFeed(f),
		WithSink(sink),
		WithPollingInterval(5*time.Millisecond),
		WithLogger(testLogger()),
		WithDeliveryCallback(func(d Delivery) {
			if d.Outcome == OutcomeDuplicate && duplicates.Add(1) == 3 {
				cancel()
			}
		}),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- rl.Start(ctx) }()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not observe three duplicates within 5s")
	}

	if ids := sink.EntryIDs(); len(ids) != 1 || ids[0] != 42 {
		t.Errorf("entry ids = %v, want [42]", ids)
	}
}

func TestStart_NewEntryTooSoon(t *testing.T) {
	var id atomic.Int64
	ts := feedServer(t, func() int64 { return id.Add(1) })
	f, _ := NewFeed(ts.URL)
	sink := newRecordingSink("csv")

	// frozen clock: every new entry after the first arrives within the spacing
	frozen := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var outcomes []Outcome
	rl, err := New(
		WithFeed(f),
		WithSink(sink),
		WithPollingInterval(5*time.Millisecond),
		WithLogger(testLogger()),
		withClock(func() time.Time { return frozen }),
		WithDeliveryCallback(func(d Delivery) {
			mu.Lock()
			defer mu.Unlock()
			outcomes = append(outcomes, d.Outcome)
			if len(outcomes) == 3 {
				cancel()
			}
		}),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- rl.Start(ctx) }()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return within 5s")
	}

	mu.Lock()
	defer mu.Unlock()
	want := []Outcome{OutcomeDelivered, OutcomeTooSoon, OutcomeTooSoon}
	for i := range want {
		if outcomes[i] != want[i] {
			t.Errorf("outcomes = %v, want %v", outcomes, want)
			break
		}
	}
	if ids := sink.EntryIDs(); len(ids) != 1 || ids[0] != 1 {
		t.Errorf("entry ids = %v, want [1]", ids)
	}
}

func TestStart_FetchFailureKeepsLooping(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, `{"feeds":[{"created_at":"2024-01-01T00:00:00Z","entry_id":9,"field1":"7"}]}`)
	}))
	defer ts.Close()

	f, _ := NewFeed(ts.URL)
	sink := newRecordingSink("csv")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := make(chan Delivery, 1)
	rl, err := New(
		WithFeed(f),
		WithSink(sink),
		WithPollingInterval(5*time.Millisecond),
		WithLogger(testLogger()),
		WithDeliveryCallback(func(d Delivery) {
			select {
			case first <- d:
			default:
			}
			if d.Outcome == OutcomeDelivered {
				cancel()
			}
		}),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- rl.Start(ctx) }()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not deliver after a failed fetch")
	}

	d := <-first
	if d.Outcome != OutcomeFetchFailed || !errors.Is(d.Err, ErrTransport) {
		t.Errorf("first delivery = %v / %v, want fetch_failed wrapping ErrTransport", d.Outcome, d.Err)
	}
	if ids := sink.EntryIDs(); len(ids) != 1 || ids[0] != 9 {
		t.Errorf("entry ids = %v, want [9]", ids)
	}
}
