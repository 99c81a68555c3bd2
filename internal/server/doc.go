// Package server provides the optional HTTP status surface of the relay.
//
//   - REST API: JSON snapshot at "/api/status"
//   - Server-Sent Events: one event per loop iteration at "/api/sse",
//     named after the outcome and carrying the entry id as event id
//   - Health: liveness probe at "/healthz"
//   - Metrics: Prometheus exposition at "/metrics"
//
// The server supports graceful shutdown via context cancellation, with a
// 5-second timeout for in-flight requests. It is started by
// [feedrelay.Relay.Start] when a port is configured.
package server
