package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/feedrelay"
)

func main() {
	// start mock feed (see mock_server.go)
	go StartMockFeedServer(":9999")
	time.Sleep(100 * time.Millisecond)

	f, err := feedrelay.NewFeed("http://localhost:9999/channels/1/feeds.json",
		feedrelay.WithTimeout(5*time.Second),
	)
	if err != nil {
		slog.Error("failed to create feed", "error", err)
		os.Exit(1)
	}

	csv, err := feedrelay.NewCSVSink("data/demo.csv", nil)
	if err != nil {
		slog.Error("failed to create csv sink", "error", err)
		os.Exit(1)
	}

	relay, err := feedrelay.New(
		feedrelay.WithFeed(f),
		feedrelay.WithSink(csv),
		feedrelay.WithPollingInterval(5*time.Second),
		feedrelay.WithMinSpacing(15*time.Second),
		feedrelay.WithPort(8080),
		feedrelay.WithDeliveryCallback(func(d feedrelay.Delivery) {
			if d.Outcome == feedrelay.OutcomeDelivered {
				fmt.Printf("  stored entry %d at %s\n", d.Reading.EntryID, d.CheckedAt.Format(time.Kitchen))
			}
		}),
	)
	if err != nil {
		slog.Error("failed to create relay", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════════════════╗")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   feedrelay Demo                                      ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   Readings are appended to data/demo.csv              ║")
	fmt.Println("  ║   Status: http://localhost:8080/api/status            ║")
	fmt.Println("  ║   Live:   http://localhost:8080/api/sse               ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   Press Ctrl+C to stop                                ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ╚═══════════════════════════════════════════════════════╝")
	fmt.Println()

	// set up context with signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := relay.Start(ctx); err != nil {
		slog.Error("relay error", "error", err)
		os.Exit(1)
	}
}
