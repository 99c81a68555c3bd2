package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jpalmerr/feedrelay/internal/store"
)

const (
	// sseWriteTimeout bounds a single SSE frame write. Must not exceed
	// shutdownTimeout.
	sseWriteTimeout = 5 * time.Second

	// sseKeepalive is well under the default 60s poll interval.
	sseKeepalive = 20 * time.Second

	shutdownTimeout   = 5 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// Server exposes the relay's state over HTTP.
//
// Server provides four endpoints:
//   - GET /api/status: Current snapshot as JSON
//   - GET /api/sse: Server-Sent Events stream of loop iterations,
//     optionally filtered with ?outcome=delivered,too_soon
//   - GET /healthz: Liveness probe
//   - GET /metrics: Prometheus exposition (when a handler is configured)
//
// The server is designed for graceful shutdown via context cancellation.
type Server struct {
	store      store.Store
	port       int
	metrics    http.Handler
	httpServer *http.Server
	logger     *slog.Logger
	keepalive  time.Duration

	mu   sync.Mutex
	addr net.Addr
}

// NewServer creates a new HTTP [Server].
//
// metricsHandler may be nil, in which case /metrics is not registered.
// The server is not started until [Server.Start] is called.
func NewServer(st store.Store, port int, metricsHandler http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		store:     st,
		port:      port,
		metrics:   metricsHandler,
		logger:    logger,
		keepalive: sseKeepalive,
	}
}

// Handler returns the route multiplexer.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/sse", s.handleSSE)
	mux.HandleFunc("/healthz", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics)
	}
	return mux
}

// Start begins serving HTTP requests in a background goroutine.
//
// Start is non-blocking and returns immediately after confirming the server
// is listening. The server will continue running until the context is
// cancelled, at which point it initiates a graceful shutdown with a 5-second
// timeout.
//
// Returns an error if the server fails to bind to the configured port.
func (s *Server) Start(ctx context.Context) error {
	// create listener first to verify port availability synchronously
	addr := fmt.Sprintf(":%d", s.port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind to port %d: %w", s.port, err)
	}

	s.mu.Lock()
	s.addr = ln.Addr()
	s.mu.Unlock()

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		// BaseContext derives all request contexts from the server context.
		// When ctx is cancelled, all request contexts are also cancelled,
		// enabling graceful shutdown of long-running handlers like SSE.
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	s.logger.Info("status server listening", "addr", ln.Addr().String())

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server error", "error", err)
		}
	}()

	// shutdown on context cancellation
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound listener address, nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// handleStatus returns the current snapshot as JSON.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snap := s.store.Snapshot()

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")

	if err := json.NewEncoder(w).Encode(snap); err != nil {
		s.logger.Error("failed to encode status response", "error", err)
	}
}

// handleHealth reports liveness. The relay has no readiness gate: sink
// failures are isolated and never stop the loop.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodGet {
		_, _ = w.Write([]byte("ok\n"))
	}
}

// handleSSE streams loop records as Server-Sent Events.
//
// Each record is sent as an event named after its outcome, with the entry id
// as the event id when the iteration saw a reading. The optional outcome
// query parameter (comma separated) limits the stream to those outcomes.
// A comment line is sent every keepalive interval so idle proxies keep the
// connection open between polls.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	stream, err := newEventStream(w, s.logger)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	want := parseOutcomeFilter(r.URL.Query().Get("outcome"))

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	ch := s.store.Subscribe()
	defer s.store.Unsubscribe(ch)

	// a new client starts from the most recent matching record
	if rec := replayRecord(s.store.Snapshot(), want); rec != nil {
		if err := stream.record(*rec); err != nil {
			return
		}
	}

	keepalive := time.NewTicker(s.keepalive)
	defer keepalive.Stop()

	for {
		select {
		case rec, ok := <-ch:
			if !ok {
				return
			}
			if !want.allows(rec.Outcome) {
				continue
			}
			if err := stream.record(rec); err != nil {
				return
			}

		case <-keepalive.C:
			if err := stream.comment("keepalive"); err != nil {
				return
			}

		// fires on client disconnect and, through BaseContext, on shutdown
		case <-r.Context().Done():
			return
		}
	}
}

// outcomeFilter is the set of outcomes a client asked for; nil allows all.
type outcomeFilter map[string]bool

func parseOutcomeFilter(raw string) outcomeFilter {
	if raw == "" {
		return nil
	}
	f := outcomeFilter{}
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			f[o] = true
		}
	}
	if len(f) == 0 {
		return nil
	}
	return f
}

func (f outcomeFilter) allows(outcome string) bool {
	return f == nil || f[outcome]
}

func replayRecord(snap store.Snapshot, want outcomeFilter) *store.Record {
	if snap.Last != nil && want.allows(snap.Last.Outcome) {
		return snap.Last
	}
	if snap.LastDelivered != nil && want.allows(snap.LastDelivered.Outcome) {
		return snap.LastDelivered
	}
	return nil
}

// eventStream writes SSE frames, each bounded by a write deadline when the
// underlying connection supports one.
type eventStream struct {
	w         http.ResponseWriter
	rc        *http.ResponseController
	deadlines bool
	logger    *slog.Logger
}

func newEventStream(w http.ResponseWriter, logger *slog.Logger) (*eventStream, error) {
	if _, ok := w.(http.Flusher); !ok {
		return nil, errors.New("SSE not supported")
	}
	return &eventStream{
		w:         w,
		rc:        http.NewResponseController(w),
		deadlines: true,
		logger:    logger,
	}, nil
}

func (e *eventStream) record(rec store.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		e.logger.Error("failed to encode sse record", "error", err)
		return nil
	}

	var frame strings.Builder
	fmt.Fprintf(&frame, "event: %s\n", rec.Outcome)
	if rec.EntryID != nil {
		fmt.Fprintf(&frame, "id: %d\n", *rec.EntryID)
	}
	fmt.Fprintf(&frame, "data: %s\n\n", data)
	return e.write(frame.String())
}

func (e *eventStream) comment(text string) error {
	return e.write(": " + text + "\n\n")
}

func (e *eventStream) write(frame string) error {
	if e.deadlines {
		if err := e.rc.SetWriteDeadline(time.Now().Add(sseWriteTimeout)); err != nil {
			e.logger.Warn("sse write deadlines not supported", "error", err)
			e.deadlines = false
		}
	}
	if _, err := io.WriteString(e.w, frame); err != nil {
		return err
	}
	return e.rc.Flush()
}
