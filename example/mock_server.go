package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"sync"
	"time"
)

// mockChannel tracks the current entry of the simulated channel.
type mockChannel struct {
	mu           sync.Mutex
	entryID      int64
	createdAt    time.Time
	fields       [5]*string
	nextUpdateAt time.Time
}

// StartMockFeedServer runs a mock ThingSpeak channel feed at
// /channels/1/feeds.json. A new entry appears every 20-60 seconds; some
// entries leave the battery field empty.
// Call this in a goroutine before starting the relay.
func StartMockFeedServer(addr string) {
	ch := &mockChannel{}
	ch.advance()

	mux := http.NewServeMux()
	mux.HandleFunc("/channels/1/feeds.json", func(w http.ResponseWriter, r *http.Request) {
		// simulate small latency variance
		time.Sleep(time.Duration(50+rand.Intn(150)) * time.Millisecond)

		ch.mu.Lock()
		if time.Now().After(ch.nextUpdateAt) {
			ch.advance()
			slog.Info("new entry", "entry_id", ch.entryID)
		}
		entry := map[string]any{
			"entry_id":   ch.entryID,
			"created_at": ch.createdAt.UTC().Format(time.RFC3339),
		}
		for i, v := range ch.fields {
			entry[fmt.Sprintf("field%d", i+1)] = v
		}
		ch.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		resp := map[string]any{
			"channel": map[string]any{"id": 1, "name": "Demo pond"},
			"feeds":   []any{entry},
		}
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			slog.Error("failed to write response", "error", err)
		}
	})

	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("mock server error", "error", err)
	}
}

// advance publishes a new random entry. Caller holds mu, except at startup.
func (c *mockChannel) advance() {
	c.entryID++
	c.createdAt = time.Now()
	c.fields = [5]*string{
		ptr(fmt.Sprintf("%.2f", 6.5+rand.Float64())),
		ptr(fmt.Sprintf("%.2f", 6+rand.Float64()*3)),
		ptr(fmt.Sprintf("%.1f", 18+rand.Float64()*6)),
		ptr(fmt.Sprintf("%.2f", 3.3+rand.Float64()*0.9)),
		ptr("probe-1"),
	}
	if rand.Intn(4) == 0 {
		c.fields[3] = nil
	}
	c.nextUpdateAt = time.Now().Add(time.Duration(20+rand.Intn(41)) * time.Second)
}

func ptr(s string) *string { return &s }
