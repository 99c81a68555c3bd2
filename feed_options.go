package feedrelay

import (
	"errors"
	"time"
)

// maxResults is the largest page ThingSpeak serves for a channel feed.
const maxResults = 8000

// feedConfig holds mutable state during feed construction.
type feedConfig struct {
	apiKey  string
	results int
	timeout time.Duration
	headers map[string]string
}

// FeedOption is a function that configures a [Feed] during construction.
//
// Options return an error if validation fails.
type FeedOption func(*feedConfig) error

// WithAPIKey sets the channel read key, sent as the api_key query parameter.
//
// An empty key is allowed and reads a public channel.
func WithAPIKey(key string) FeedOption {
	return func(cfg *feedConfig) error {
		cfg.apiKey = key
		return nil
	}
}

// WithResults sets how many entries are requested per fetch.
//
// Only the newest entry is relayed, so the default of 1 is almost always
// right; larger values are useful when a proxy in front of the feed
// caches by query string.
//
// Returns an error if n is outside 1..8000.
func WithResults(n int) FeedOption {
	return func(cfg *feedConfig) error {
		if n < 1 || n > maxResults {
			return errors.New("results must be between 1 and 8000")
		}
		cfg.results = n
		return nil
	}
}

// WithTimeout sets the HTTP timeout for a single fetch.
//
// A fetch that does not complete within this duration counts as a transport
// failure and the iteration yields no reading.
// Defaults to 10 seconds if not specified.
//
// Returns an error if the duration is zero or negative.
func WithTimeout(d time.Duration) FeedOption {
	return func(cfg *feedConfig) error {
		if d <= 0 {
			return errors.New("timeout must be positive")
		}
		cfg.timeout = d
		return nil
	}
}

// WithHeaders adds custom HTTP headers to every fetch.
//
// Accepts variadic key-value pairs. The number of arguments must be even.
//
// Example:
//
//	f, err := feedrelay.NewFeed(url,
//	    feedrelay.WithHeaders("User-Agent", "feedrelay/1.0"),
//	)
func WithHeaders(keyValues ...string) FeedOption {
	return func(cfg *feedConfig) error {
		if len(keyValues)%2 != 0 {
			return errors.New("WithHeaders requires an even number of arguments (key-value pairs)")
		}
		for i := 0; i < len(keyValues); i += 2 {
			cfg.headers[keyValues[i]] = keyValues[i+1]
		}
		return nil
	}
}
