// Package sink persists accepted readings.
//
// Every sink exposes Name and Persist. Persist never panics on I/O failures;
// it logs the outcome and returns a *[Error] so the caller can move on to the
// next sink. Available sinks:
//
//   - [FileSink]: append-only CSV audit log with raw feed values
//   - [PostgresSink]: direct insert through a pgx pool
//   - [SupabaseSink]: insert through the Supabase REST API
//   - [MQTTSink]: publish to an MQTT topic
package sink
