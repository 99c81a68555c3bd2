package feedrelay

import (
	"errors"
	"net/url"
	"time"
)

const defaultFeedTimeout = 10 * time.Second

// Feed describes the ThingSpeak channel feed to poll.
//
// Feed is immutable after creation via [NewFeed]. Getters return copies of
// mutable data, so a Feed cannot be modified after construction.
type Feed struct {
	url     string
	apiKey  string
	results int
	timeout time.Duration
	headers map[string]string
}

// URL returns the feed URL without query parameters added by the relay.
func (f Feed) URL() string {
	return f.url
}

// APIKey returns the channel read key, or "" for public channels.
func (f Feed) APIKey() string {
	return f.apiKey
}

// Results returns how many entries are requested per fetch.
func (f Feed) Results() int {
	return f.results
}

// Timeout returns the per-fetch timeout.
// Defaults to 10 seconds if not explicitly set via [WithTimeout].
func (f Feed) Timeout() time.Duration {
	return f.timeout
}

// Headers returns a copy of the extra HTTP headers sent with every fetch.
// Returns nil if none are set.
func (f Feed) Headers() map[string]string {
	return copyMap(f.headers)
}

// NewFeed creates a [Feed] for rawURL, typically
// "https://api.thingspeak.com/channels/<id>/feeds.json".
//
// The URL must be absolute with an http or https scheme. Options are applied
// in order; see [WithAPIKey], [WithResults], [WithTimeout] and [WithHeaders].
//
// Example:
//
//	f, err := feedrelay.NewFeed("https://api.thingspeak.com/channels/123/feeds.json",
//	    feedrelay.WithAPIKey(os.Getenv("THINGSPEAK_API_KEY")),
//	    feedrelay.WithTimeout(5 * time.Second),
//	)
func NewFeed(rawURL string, opts ...FeedOption) (Feed, error) {
	if rawURL == "" {
		return Feed{}, errors.New("feed URL cannot be empty")
	}

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return Feed{}, errors.New("invalid URL: " + err.Error())
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return Feed{}, errors.New("URL must have a scheme (http:// or https://)")
	}
	if parsedURL.Host == "" {
		return Feed{}, errors.New("URL must have a host")
	}

	cfg := &feedConfig{
		results: 1,
		timeout: defaultFeedTimeout,
		headers: make(map[string]string),
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return Feed{}, err
		}
	}

	return Feed{
		url:     rawURL,
		apiKey:  cfg.apiKey,
		results: cfg.results,
		timeout: cfg.timeout,
		headers: cfg.headers,
	}, nil
}

// copyMap returns a shallow copy of the map.
func copyMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	cp := make(map[string]string, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}
