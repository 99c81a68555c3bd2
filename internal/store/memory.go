package store

import (
	"sync"
)

const (
	subscriberBuffer = 100
	outcomeDelivered = "delivered"
)

// MemoryStore is an in-memory implementation of [Store].
//
// Subscribers receive records via buffered channels. Sends are non-blocking;
// when a subscriber's buffer is full the record is dropped for that
// subscriber so the relay loop never waits on an HTTP client.
type MemoryStore struct {
	mu            sync.RWMutex
	last          *Record
	lastDelivered *Record
	outcomes      map[string]int64
	sinkFailures  map[string]int64

	subMu       sync.RWMutex
	subscribers map[chan Record]struct{}
}

// NewMemoryStore creates an empty [MemoryStore].
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		outcomes:     make(map[string]int64),
		sinkFailures: make(map[string]int64),
		subscribers:  make(map[chan Record]struct{}),
	}
}

// Update stores rec as the latest record, updates the counters and
// notifies all subscribers.
func (m *MemoryStore) Update(rec Record) {
	m.mu.Lock()
	r := rec
	m.last = &r
	if rec.Outcome == outcomeDelivered {
		m.lastDelivered = &r
	}
	m.outcomes[rec.Outcome]++
	for _, s := range rec.Sinks {
		if !s.OK {
			m.sinkFailures[s.Name]++
		}
	}
	m.mu.Unlock()

	m.notifySubscribers(rec)
}

// Snapshot returns a copy of the current summary.
func (m *MemoryStore) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := Snapshot{
		Last:          copyRecord(m.last),
		LastDelivered: copyRecord(m.lastDelivered),
		Outcomes:      make(map[string]int64, len(m.outcomes)),
		SinkFailures:  make(map[string]int64, len(m.sinkFailures)),
	}
	for k, v := range m.outcomes {
		snap.Outcomes[k] = v
	}
	for k, v := range m.sinkFailures {
		snap.SinkFailures[k] = v
	}
	return snap
}

// Subscribe creates a subscription with a buffer of 100 records.
//
// Caller must call [MemoryStore.Unsubscribe] when done to prevent leaks.
func (m *MemoryStore) Subscribe() <-chan Record {
	ch := make(chan Record, subscriberBuffer)

	m.subMu.Lock()
	m.subscribers[ch] = struct{}{}
	m.subMu.Unlock()

	return ch
}

// Unsubscribe removes a subscription and closes its channel.
func (m *MemoryStore) Unsubscribe(ch <-chan Record) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	for subCh := range m.subscribers {
		if subCh == ch {
			delete(m.subscribers, subCh)
			close(subCh)
			break
		}
	}
}

func (m *MemoryStore) notifySubscribers(rec Record) {
	m.subMu.RLock()
	defer m.subMu.RUnlock()

	for ch := range m.subscribers {
		select {
		case ch <- rec:
		default:
			// slow subscriber, drop
		}
	}
}

func copyRecord(r *Record) *Record {
	if r == nil {
		return nil
	}
	cp := *r
	if r.Fields != nil {
		cp.Fields = append([]string(nil), r.Fields...)
	}
	if r.Sinks != nil {
		cp.Sinks = append([]SinkStatus(nil), r.Sinks...)
	}
	return &cp
}
