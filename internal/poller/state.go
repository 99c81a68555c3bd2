package poller

import (
	"time"

	"github.com/jpalmerr/feedrelay/internal/feed"
)

// DefaultMinSpacing is the minimum time between two deliveries.
const DefaultMinSpacing = 60 * time.Second

// State tracks what the loop delivered last.
//
// State lives for the lifetime of the process and is not persisted, so a
// restart may deliver the most recent reading again. It is owned by a single
// [Loop] and is not safe for concurrent mutation.
type State struct {
	lastEntryID     int64
	hasEntry        bool
	lastProcessedAt time.Time
}

// NewState returns an empty state: no entry seen and a last-processed time
// of the zero time.
func NewState() *State {
	return &State{}
}

// LastEntryID returns the id of the last delivered reading, if any.
func (s *State) LastEntryID() (int64, bool) {
	return s.lastEntryID, s.hasEntry
}

// LastProcessedAt returns when the last reading was delivered.
func (s *State) LastProcessedAt() time.Time {
	return s.lastProcessedAt
}

// Accept records a delivered reading. Call it only after every sink has
// been attempted.
func (s *State) Accept(entryID int64, at time.Time) {
	s.lastEntryID = entryID
	s.hasEntry = true
	s.lastProcessedAt = at
}

// Decision is the dedup verdict for a fetched reading.
type Decision int

const (
	// DecisionAccept means the reading should be delivered.
	DecisionAccept Decision = iota

	// DecisionDuplicate means the entry id equals the last delivered one.
	DecisionDuplicate

	// DecisionTooSoon means the minimum spacing has not elapsed yet.
	DecisionTooSoon
)

func (d Decision) String() string {
	switch d {
	case DecisionAccept:
		return "accept"
	case DecisionDuplicate:
		return "duplicate"
	case DecisionTooSoon:
		return "too_soon"
	default:
		return "unknown"
	}
}

// Decide applies the dedup rule. A reading is accepted only when its id
// differs from the last delivered id AND at least minSpacing has passed
// since the last delivery; a new id that arrives early is still rejected.
func Decide(r feed.Reading, s *State, now time.Time, minSpacing time.Duration) Decision {
	if s.hasEntry && r.EntryID == s.lastEntryID {
		return DecisionDuplicate
	}
	if now.Sub(s.lastProcessedAt) < minSpacing {
		return DecisionTooSoon
	}
	return DecisionAccept
}

// ShouldProcess reports whether Decide accepts r.
func ShouldProcess(r feed.Reading, s *State, now time.Time, minSpacing time.Duration) bool {
	return Decide(r, s, now, minSpacing) == DecisionAccept
}
