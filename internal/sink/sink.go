package sink

import (
	"errors"
	"fmt"
	"time"

	"github.com/jpalmerr/feedrelay/internal/feed"
)

// DefaultTimeout bounds a single remote write.
const DefaultTimeout = 10 * time.Second

// ErrNoAck is returned when a database accepted the request but reported no
// inserted row.
var ErrNoAck = errors.New("no acknowledgement from sink")

// Error is a failed write at a sink boundary.
type Error struct {
	// Sink is the name of the sink that failed.
	Sink string

	// EntryID identifies the reading that was not persisted.
	EntryID int64

	// Err is the underlying cause.
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s sink: entry %d: %v", e.Sink, e.EntryID, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func wrap(sink string, entryID int64, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Sink: sink, EntryID: entryID, Err: err}
}

// Row is the database representation of a reading.
//
// Measurement columns use the short names of the target table; missing
// measurements are stored as 0 and a missing sensor id as "unknown".
type Row struct {
	EntryID   int64   `json:"entry_id"`
	CreatedAt string  `json:"created_at"`
	PH        float64 `json:"ph"`
	DO        float64 `json:"do"`
	T         float64 `json:"t"`
	V         float64 `json:"v"`
	SensorID  string  `json:"sensor_id"`
}

// NewRow converts a reading into a [Row].
//
// A field that is present but not numeric is an error; the row is not
// written with a guessed value.
func NewRow(r feed.Reading) (Row, error) {
	row := Row{
		EntryID:   r.EntryID,
		CreatedAt: r.CreatedAt,
		SensorID:  r.SensorID(),
	}

	var err error
	if row.PH, err = r.PH(); err != nil {
		return Row{}, err
	}
	if row.DO, err = r.DissolvedOxygen(); err != nil {
		return Row{}, err
	}
	if row.T, err = r.Temperature(); err != nil {
		return Row{}, err
	}
	if row.V, err = r.Voltage(); err != nil {
		return Row{}, err
	}
	return row, nil
}

// args returns the row values in column order.
func (r Row) args() []any {
	return []any{r.EntryID, r.CreatedAt, r.PH, r.DO, r.T, r.V, r.SensorID}
}

// columns lists the database columns in the order of [Row.args].
var columns = []string{"entry_id", "created_at", "ph", "do", "t", "v", "sensor_id"}
