package store

import "time"

// SinkStatus is the outcome of one sink for a delivered reading.
type SinkStatus struct {
	// Name identifies the sink ("csv", "postgres", ...).
	Name string `json:"name"`

	// OK is true when the sink persisted the reading.
	OK bool `json:"ok"`

	// Error is the failure message, nil on success.
	Error *string `json:"error"`
}

// Record is the storage representation of one loop iteration.
//
// It is decoupled from the poller's internal types and shaped for JSON
// serialization by the REST API and SSE stream.
type Record struct {
	// Outcome is the iteration result (e.g. "delivered", "duplicate").
	Outcome string `json:"outcome"`

	// EntryID is the feed entry id, nil when no reading was fetched.
	EntryID *int64 `json:"entry_id"`

	// CreatedAt is the feed timestamp of the reading.
	CreatedAt string `json:"created_at,omitempty"`

	// Fields are the raw field1..field5 values.
	Fields []string `json:"fields,omitempty"`

	// Sinks holds per-sink outcomes for delivered readings.
	Sinks []SinkStatus `json:"sinks,omitempty"`

	// CheckedAt is when the iteration finished.
	CheckedAt time.Time `json:"checked_at"`

	// Error is the fetch or loop error message, if any.
	Error *string `json:"error"`
}

// Snapshot summarises everything the store has seen.
type Snapshot struct {
	// Last is the most recent iteration, nil before the first one.
	Last *Record `json:"last"`

	// LastDelivered is the most recent iteration that reached the sinks.
	LastDelivered *Record `json:"last_delivered"`

	// Outcomes counts iterations by outcome.
	Outcomes map[string]int64 `json:"outcomes"`

	// SinkFailures counts failed writes by sink name.
	SinkFailures map[string]int64 `json:"sink_failures"`
}

// Store defines storage and subscription for loop records.
//
// Implementations must be safe for concurrent access: the loop writes while
// HTTP handlers read and subscribe.
type Store interface {
	// Update records an iteration and notifies all subscribers.
	Update(rec Record)

	// Snapshot returns a copy of the current summary.
	Snapshot() Snapshot

	// Subscribe returns a buffered channel of new records.
	// Slow consumers may miss updates. Call Unsubscribe when done.
	Subscribe() <-chan Record

	// Unsubscribe removes a subscription and closes the channel.
	// Safe to call with a channel that was already unsubscribed.
	Unsubscribe(ch <-chan Record)
}
