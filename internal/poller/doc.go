// Package poller runs the relay loop: fetch the latest reading, decide
// whether it is new, hand it to every sink, then sleep.
//
// The main components are:
//
//   - [State]: last delivered entry id and time, owned by the loop
//   - [Decide]: the dedup rule (new id AND minimum spacing elapsed)
//   - [Loop]: the iteration driver with per-sink and per-iteration panic recovery
//   - [Delivery]: what happened in one iteration, for observers
//
// Users of the feedrelay library should not need this package directly;
// the loop is started by [feedrelay.Relay.Start].
package poller
