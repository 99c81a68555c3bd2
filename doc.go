// Package feedrelay polls a ThingSpeak channel feed and forwards every new
// reading to a set of sinks.
//
// Each iteration fetches the latest feed entry, skips it when its entry id
// was already processed or when the previous reading was accepted less than
// the minimum spacing ago, and otherwise hands it to every sink in order.
// Sinks fail independently: a database outage still lets the CSV file grow.
//
// # Quick Start
//
//	f, _ := feedrelay.NewFeed("https://api.thingspeak.com/channels/123/feeds.json",
//	    feedrelay.WithAPIKey(key),
//	)
//	csv, _ := feedrelay.NewCSVSink("data/readings.csv", nil)
//	relay, _ := feedrelay.New(feedrelay.WithFeed(f), feedrelay.WithSink(csv))
//
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	relay.Start(ctx) // blocks until context is cancelled
//
// # Sinks
//
// Built-in sinks:
//
//   - [NewCSVSink]: Appends raw field values to a CSV file
//   - [OpenPostgresSink]: Inserts rows through a pgx connection pool
//   - [NewSupabaseSink]: Inserts rows through the Supabase REST API
//   - [DialMQTTSink]: Publishes rows as JSON to an MQTT broker
//
// Any type implementing [Sink] can be added with [WithSink].
//
// # Readings
//
// Fields map to measurements by position: field1 is pH, field2 dissolved
// oxygen, field3 temperature, field4 battery voltage and field5 the sensor
// id. Database sinks store missing measurements as 0 and a missing sensor
// id as "unknown"; the CSV sink keeps the raw values.
//
// # Architecture
//
//   - internal/feed: HTTP client and feed decoding
//   - internal/poller: Dedup rules and the relay loop
//   - internal/sink: CSV, Postgres, Supabase and MQTT sinks
//   - internal/store: In-memory iteration history with pub/sub
//   - internal/server: Optional status API, SSE and Prometheus endpoint
//   - internal/metrics: Prometheus collectors
//
// The internal packages are not part of the public API and may change
// without notice.
package feedrelay
