package feed

import (
	"fmt"
	"strconv"
	"strings"
)

// FieldCount is the number of channel fields carried by a feed entry.
const FieldCount = 5

// UnknownSensor is reported by [Reading.SensorID] when field5 is missing.
const UnknownSensor = "unknown"

// Field is one raw channel value as delivered by the feed.
//
// Valid is false when the key was absent or null in the payload. Value keeps
// the source text unchanged so it can be written to the audit log verbatim.
type Field struct {
	Value string
	Valid bool
}

// Raw returns the source text, or "" when the field is missing.
func (f Field) Raw() string {
	if !f.Valid {
		return ""
	}
	return f.Value
}

// Reading is one sensor sample taken from the feed.
//
// A Reading is a value type and is never modified after decoding; sinks only
// read and format it.
type Reading struct {
	// EntryID is the feed-assigned sequence number.
	EntryID int64

	// CreatedAt is the feed timestamp, passed through as received.
	CreatedAt string

	// Fields holds field1..field5 in order.
	Fields [FieldCount]Field
}

// PH returns field1 as a number. Missing values yield 0.
func (r Reading) PH() (float64, error) { return r.measurement(0) }

// DissolvedOxygen returns field2 as a number. Missing values yield 0.
func (r Reading) DissolvedOxygen() (float64, error) { return r.measurement(1) }

// Temperature returns field3 as a number. Missing values yield 0.
func (r Reading) Temperature() (float64, error) { return r.measurement(2) }

// Voltage returns field4 as a number. Missing values yield 0.
func (r Reading) Voltage() (float64, error) { return r.measurement(3) }

// SensorID returns field5, or [UnknownSensor] when it is missing.
func (r Reading) SensorID() string {
	f := r.Fields[4]
	if !f.Valid {
		return UnknownSensor
	}
	return f.Value
}

func (r Reading) measurement(i int) (float64, error) {
	f := r.Fields[i]
	if !f.Valid {
		return 0, nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(f.Value), 64)
	if err != nil {
		return 0, fmt.Errorf("field%d: invalid number %q", i+1, f.Value)
	}
	return v, nil
}

// RawValues returns the field values in feed order, with "" for missing ones.
func (r Reading) RawValues() []string {
	out := make([]string, FieldCount)
	for i, f := range r.Fields {
		out[i] = f.Raw()
	}
	return out
}

// LogAttrs summarises the reading as slog key-value pairs.
func (r Reading) LogAttrs() []any {
	return []any{
		"entry_id", r.EntryID,
		"created_at", r.CreatedAt,
		"fields", r.RawValues(),
	}
}
