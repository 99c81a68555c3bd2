// Package store keeps the recent history of the relay loop for the status API.
//
// The main components are:
//
//   - [Store]: Interface defining storage and subscription operations
//   - [MemoryStore]: In-memory implementation of Store with pub/sub
//   - [Record]: Storage representation of one loop iteration
//   - [Snapshot]: Latest records plus per-outcome and per-sink counters
//
// Subscribers receive updates via channels with non-blocking sends (slow
// subscribers miss updates rather than block the loop).
package store
