package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"
)

// DefaultTimeout bounds a single feed request.
const DefaultTimeout = 10 * time.Second

// Source describes the feed endpoint to poll.
type Source struct {
	// URL is the channel feed endpoint, e.g.
	// https://api.thingspeak.com/channels/<id>/feeds.json
	URL string

	// APIKey is sent as the api_key query parameter when non-empty.
	APIKey string

	// Results is the number of entries requested. Defaults to 1.
	Results int

	// Timeout bounds each request. Defaults to [DefaultTimeout].
	Timeout time.Duration

	// Headers are extra request headers.
	Headers map[string]string
}

// Fetcher retrieves the most recent reading from a feed.
type Fetcher struct {
	client  *Client
	url     string
	headers map[string]string
	timeout time.Duration
	logger  *slog.Logger
}

// NewFetcher validates src and returns a [Fetcher] for it.
func NewFetcher(src Source, logger *slog.Logger) (*Fetcher, error) {
	u, err := url.Parse(src.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid feed url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("feed url scheme must be http or https, got %q", u.Scheme)
	}

	results := src.Results
	if results <= 0 {
		results = 1
	}
	timeout := src.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	q := u.Query()
	if src.APIKey != "" {
		q.Set("api_key", src.APIKey)
	}
	q.Set("results", strconv.Itoa(results))
	u.RawQuery = q.Encode()

	return &Fetcher{
		client:  NewClient(),
		url:     u.String(),
		headers: src.Headers,
		timeout: timeout,
		logger:  logger,
	}, nil
}

// Fetch polls the feed once.
//
// ok is false when no reading is available, either because the feed is
// empty or because the request failed; err tells the two apart and wraps
// [ErrTransport] or [ErrMalformedPayload]. Exactly one log line is written
// per call.
func (f *Fetcher) Fetch(ctx context.Context) (r Reading, ok bool, err error) {
	resp := f.client.Get(ctx, f.url, f.headers, f.timeout)
	if resp.Error != nil {
		err = fmt.Errorf("%w: %v", ErrTransport, resp.Error)
	} else if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err = fmt.Errorf("%w: unexpected status %d", ErrTransport, resp.StatusCode)
	} else {
		r, ok, err = Decode(resp.Body)
	}

	switch {
	case err != nil:
		f.logger.Error("feed fetch failed",
			"error", err.Error(),
			"kind", errorKind(err),
			"status_code", resp.StatusCode,
			"latency_ms", resp.Latency.Milliseconds(),
		)
		return Reading{}, false, err
	case !ok:
		f.logger.Warn("no data found in feed", "latency_ms", resp.Latency.Milliseconds())
		return Reading{}, false, nil
	default:
		f.logger.Info("fetched feed entry", append(r.LogAttrs(), "latency_ms", resp.Latency.Milliseconds())...)
		return r, true, nil
	}
}

// Close releases idle connections held by the fetcher.
func (f *Fetcher) Close() {
	f.client.Close()
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrTransport):
		return "transport"
	case errors.Is(err, ErrMalformedPayload):
		return "malformed_payload"
	default:
		return "unexpected"
	}
}
