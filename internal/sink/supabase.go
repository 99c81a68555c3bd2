package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/supabase-community/postgrest-go"

	"github.com/jpalmerr/feedrelay/internal/feed"
)

// SupabaseSink inserts readings through the PostgREST API of a Supabase project.
type SupabaseSink struct {
	restURL   string
	headers   map[string]string
	table     string
	transport http.RoundTripper
	timeout   time.Duration
	logger    *slog.Logger
}

// NewSupabaseSink returns a sink inserting rows into table through
// <baseURL>/rest/v1.
func NewSupabaseSink(baseURL, apiKey, table string, timeout time.Duration, logger *slog.Logger) (*SupabaseSink, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid supabase url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("supabase url scheme must be http or https, got %q", u.Scheme)
	}
	if table == "" {
		return nil, fmt.Errorf("supabase table is required")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &SupabaseSink{
		restURL: u.JoinPath("rest", "v1").String(),
		headers: map[string]string{
			"apikey":        apiKey,
			"Authorization": "Bearer " + apiKey,
		},
		table:     table,
		transport: http.DefaultTransport,
		timeout:   timeout,
		logger:    logger,
	}, nil
}

// Name implements the loop's sink contract.
func (s *SupabaseSink) Name() string { return "supabase" }

// Persist inserts r. An empty representation in the response is reported as
// [ErrNoAck].
func (s *SupabaseSink) Persist(ctx context.Context, r feed.Reading) error {
	err := s.insert(ctx, r)
	if err != nil {
		err = wrap(s.Name(), r.EntryID, err)
		s.logger.Error("failed to send reading to database", "sink", s.Name(), "entry_id", r.EntryID, "error", err.Error())
		return err
	}
	s.logger.Info("reading sent to database", "sink", s.Name(), "entry_id", r.EntryID)
	return nil
}

func (s *SupabaseSink) insert(ctx context.Context, r feed.Reading) error {
	row, err := NewRow(r)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	// postgrest-go has no context support; a per-call client carries ctx
	// through its transport and reports the response status.
	rt := &callTransport{ctx: ctx, base: s.transport}
	client := postgrest.NewClient(s.restURL, "", s.headers)
	if client.ClientError != nil {
		return fmt.Errorf("create client: %w", client.ClientError)
	}
	client.Transport.Parent = rt

	body, _, err := client.From(s.table).Insert(row, false, "", "representation", "").Execute()
	if err != nil {
		if rt.status != 0 {
			return fmt.Errorf("status %d: %w", rt.status, err)
		}
		return fmt.Errorf("request failed: %w", err)
	}

	var inserted []json.RawMessage
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &inserted); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	if len(inserted) == 0 {
		return ErrNoAck
	}
	return nil
}

// callTransport binds one insert to its context and records the status.
type callTransport struct {
	ctx    context.Context
	base   http.RoundTripper
	status int
}

func (t *callTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req.WithContext(t.ctx))
	if resp != nil {
		t.status = resp.StatusCode
	}
	return resp, err
}
