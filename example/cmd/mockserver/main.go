// Standalone mock ThingSpeak and Supabase server for trying the CLI.
//
// Usage:
//
//	go run ./example/cmd/mockserver
//
// Then in another terminal:
//
//	go run ./cmd/feedrelay run -c example/config.yaml
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"time"
)

func main() {
	fmt.Println("Mock server starting on :9999")
	fmt.Println("  feed:     GET  /channels/1/feeds.json (new entry every 20-60s)")
	fmt.Println("  supabase: POST /rest/v1/{table}")
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	var (
		mu      sync.Mutex
		entryID int64
		fields  []string
		created time.Time
		nextAt  time.Time
	)
	advance := func() {
		entryID++
		created = time.Now()
		fields = []string{
			fmt.Sprintf("%.2f", 6.5+rand.Float64()),
			fmt.Sprintf("%.2f", 6+rand.Float64()*3),
			fmt.Sprintf("%.1f", 18+rand.Float64()*6),
			fmt.Sprintf("%.2f", 3.3+rand.Float64()*0.9),
			"probe-1",
		}
		nextAt = time.Now().Add(time.Duration(20+rand.Intn(41)) * time.Second)
	}
	advance()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /channels/1/feeds.json", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Duration(50+rand.Intn(150)) * time.Millisecond)

		mu.Lock()
		if time.Now().After(nextAt) {
			advance()
			slog.Info("new entry", "entry_id", entryID)
		}
		entry := map[string]any{
			"entry_id":   entryID,
			"created_at": created.UTC().Format(time.RFC3339),
		}
		for i, v := range fields {
			entry[fmt.Sprintf("field%d", i+1)] = v
		}
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"feeds": []any{entry}})
	})

	// echoes inserted rows the way PostgREST does with return=representation
	mux.HandleFunc("POST /rest/v1/{table}", func(w http.ResponseWriter, r *http.Request) {
		var row map[string]any
		if err := json.NewDecoder(r.Body).Decode(&row); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		slog.Info("row inserted", "table", r.PathValue("table"), "row", row)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode([]any{row})
	})

	if err := http.ListenAndServe(":9999", mux); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}
