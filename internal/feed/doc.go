// Package feed fetches and decodes readings from a channel feed API.
//
// The main components are:
//
//   - [Client]: HTTP client wrapper with per-request timeout and size limit
//   - [Fetcher]: Polls the feed endpoint and returns the latest [Reading]
//   - [Decode]: Parses a feed document into a [Reading]
//
// Failures never escape as panics; they are returned as errors wrapping
// [ErrTransport] or [ErrMalformedPayload] and logged at the fetch boundary.
package feed
