package feedrelay

import (
	"time"

	"github.com/jpalmerr/feedrelay/internal/feed"
	"github.com/jpalmerr/feedrelay/internal/sink"
)

// Reading is one feed entry: its entry id, timestamp and the raw values of
// field1..field5.
type Reading = feed.Reading

// Field is one raw feed field value.
type Field = feed.Field

// SinkError is returned by the built-in sinks when a write fails. Use
// [errors.As] to recover the sink name and entry id.
type SinkError = sink.Error

var (
	// ErrTransport marks a feed fetch that failed before a usable
	// response arrived (network error, timeout or non-2xx status).
	ErrTransport = feed.ErrTransport

	// ErrMalformedPayload marks a feed response that could not be decoded.
	ErrMalformedPayload = feed.ErrMalformedPayload

	// ErrNoAck marks a database write that reported no inserted row.
	ErrNoAck = sink.ErrNoAck
)

// Outcome classifies one relay iteration.
type Outcome string

const (
	// OutcomeDelivered means a new reading was handed to every sink.
	OutcomeDelivered Outcome = "delivered"

	// OutcomeDuplicate means the latest entry id was already processed.
	OutcomeDuplicate Outcome = "duplicate"

	// OutcomeTooSoon means a new entry arrived before the minimum spacing
	// elapsed. It will be picked up by a later iteration if still latest.
	OutcomeTooSoon Outcome = "too_soon"

	// OutcomeNoData means the feed returned no entries.
	OutcomeNoData Outcome = "no_data"

	// OutcomeFetchFailed means the fetch failed; see [Delivery.Err].
	OutcomeFetchFailed Outcome = "fetch_failed"

	// OutcomePanicked means the iteration panicked and was recovered.
	OutcomePanicked Outcome = "panicked"
)

// String returns the string representation of the outcome.
func (o Outcome) String() string {
	return string(o)
}

// SinkResult is the outcome of one sink for a delivered reading.
type SinkResult struct {
	// Sink is the sink name as returned by [Sink.Name].
	Sink string

	// Err is nil when the sink persisted the reading.
	Err error
}

// Delivery describes one relay iteration. It is passed to callbacks
// registered with [WithDeliveryCallback].
type Delivery struct {
	// Outcome classifies the iteration.
	Outcome Outcome

	// Reading is the fetched reading; meaningful only when HasReading is true.
	Reading Reading

	// HasReading reports whether the feed returned a reading.
	HasReading bool

	// Sinks holds one result per configured sink, in configuration order.
	// Empty unless Outcome is [OutcomeDelivered].
	Sinks []SinkResult

	// Err is the fetch error or recovered panic, if any.
	Err error

	// CheckedAt is when the iteration finished.
	CheckedAt time.Time
}

// Failed returns the results of the sinks that did not persist the reading.
func (d Delivery) Failed() []SinkResult {
	var failed []SinkResult
	for _, s := range d.Sinks {
		if s.Err != nil {
			failed = append(failed, s)
		}
	}
	return failed
}
