package feedrelay

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestWithDeliveryCallback_InvokedEveryIteration(t *testing.T) {
	ts := feedServer(t, constantID(1))
	f, _ := NewFeed(ts.URL)

	var callCount atomic.Int32
	rl, err := New(
		WithFeed(f),
		WithSink(newRecordingSink("csv")),
		WithPollingInterval(20*time.Millisecond),
		WithLogger(testLogger()),
		WithDeliveryCallback(func(d Delivery) {
			callCount.Add(1)
		}),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_ = rl.Start(ctx)

	// one delivered plus duplicates, one callback per iteration
	if callCount.Load() < 2 {
		t.Errorf("callback invoked %d times, want at least 2", callCount.Load())
	}
}

func TestWithDeliveryCallback_PanicRecovery(t *testing.T) {
	ts := feedServer(t, constantID(1))
	f, _ := NewFeed(ts.URL)

	var normalCalled atomic.Bool

	// capture output to verify the panic was logged
	var logBuf bytes.Buffer
	var logMu sync.Mutex
	logger := slog.New(slog.NewTextHandler(&lockedWriter{w: &logBuf, mu: &logMu}, nil))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rl, err := New(
		WithFeed(f),
		WithSink(newRecordingSink("csv")),
		WithLogger(logger),
		WithDeliveryCallback(func(d Delivery) {
			panic("intentional test panic")
		}),
		WithDeliveryCallback(func(d Delivery) {
			normalCalled.Store(true)
			cancel()
		}),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- rl.Start(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() error = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return")
	}

	if !normalCalled.Load() {
		t.Error("subsequent callbacks should still run after panic")
	}

	logMu.Lock()
	defer logMu.Unlock()
	if !strings.Contains(logBuf.String(), "delivery callback panicked") {
		t.Errorf("panic should have been logged, got: %s", logBuf.String())
	}
}

func TestWithDeliveryCallback_ExecutionOrder(t *testing.T) {
	ts := feedServer(t, constantID(1))
	f, _ := NewFeed(ts.URL)

	var order []int
	var mu sync.Mutex
	record := func(n int) func(Delivery) {
		return func(Delivery) {
			mu.Lock()
			order = append(order, n)
			mu.Unlock()
		}
	}

	rl, err := New(
		WithFeed(f),
		WithSink(newRecordingSink("csv")),
		WithPollingInterval(20*time.Millisecond),
		WithLogger(testLogger()),
		WithDeliveryCallback(record(1)),
		WithDeliveryCallback(record(2)),
		WithDeliveryCallback(record(3)),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	_ = rl.Start(ctx)

	mu.Lock()
	defer mu.Unlock()

	if len(order) < 3 {
		t.Fatalf("expected at least 3 callback invocations, got %d", len(order))
	}

	// verify order is always 1, 2, 3, 1, 2, 3, ...
	for i := 0; i < len(order); i++ {
		expected := (i % 3) + 1
		if order[i] != expected {
			t.Errorf("order[%d] = %d, want %d (callbacks should execute in registration order)", i, order[i], expected)
		}
	}
}

func TestWithDeliveryCallback_NoData(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"channel":{"id":1},"feeds":[]}`))
	}))
	defer ts.Close()
	f, _ := NewFeed(ts.URL)
	sink := newRecordingSink("csv")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan Delivery, 1)
	rl, err := New(
		WithFeed(f),
		WithSink(sink),
		WithLogger(testLogger()),
		WithDeliveryCallback(func(d Delivery) {
			got <- d
			cancel()
		}),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := rl.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	d := <-got
	if d.Outcome != OutcomeNoData || d.HasReading || d.Err != nil {
		t.Errorf("delivery = %+v, want no_data without reading or error", d)
	}
	if ids := sink.EntryIDs(); len(ids) != 0 {
		t.Errorf("sink received %v, want nothing", ids)
	}
}

// lockedWriter serialises writes so the buffer can be read after the relay stops.
type lockedWriter struct {
	w  *bytes.Buffer
	mu *sync.Mutex
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
