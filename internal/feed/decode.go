package feed

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrTransport covers network failures, timeouts and non-2xx responses.
	ErrTransport = errors.New("feed transport error")

	// ErrMalformedPayload means the body did not have the expected shape.
	ErrMalformedPayload = errors.New("malformed feed payload")
)

// payload mirrors the channel feed document. Channel metadata is ignored.
type payload struct {
	Feeds *[]entry `json:"feeds"`
}

type entry struct {
	EntryID   *int64      `json:"entry_id"`
	CreatedAt string      `json:"created_at"`
	Field1    *fieldValue `json:"field1"`
	Field2    *fieldValue `json:"field2"`
	Field3    *fieldValue `json:"field3"`
	Field4    *fieldValue `json:"field4"`
	Field5    *fieldValue `json:"field5"`
}

// fieldValue accepts the string form the feed normally uses as well as bare
// JSON numbers, keeping the literal text in both cases.
type fieldValue string

func (v *fieldValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = fieldValue(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("field must be a string or number, got %s", data)
	}
	*v = fieldValue(n.String())
	return nil
}

func (e entry) reading() Reading {
	r := Reading{
		EntryID:   *e.EntryID,
		CreatedAt: e.CreatedAt,
	}
	for i, fv := range []*fieldValue{e.Field1, e.Field2, e.Field3, e.Field4, e.Field5} {
		if fv != nil {
			r.Fields[i] = Field{Value: string(*fv), Valid: true}
		}
	}
	return r
}

// Decode parses a feed document and returns its most recent entry.
//
// The feed lists entries oldest first, so the last element is returned.
// ok is false when the entry list is empty. Any structural problem is
// reported as [ErrMalformedPayload].
func Decode(body []byte) (r Reading, ok bool, err error) {
	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		return Reading{}, false, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if p.Feeds == nil {
		return Reading{}, false, fmt.Errorf("%w: missing \"feeds\"", ErrMalformedPayload)
	}

	feeds := *p.Feeds
	if len(feeds) == 0 {
		return Reading{}, false, nil
	}

	latest := feeds[len(feeds)-1]
	if latest.EntryID == nil {
		return Reading{}, false, fmt.Errorf("%w: latest entry has no entry_id", ErrMalformedPayload)
	}
	return latest.reading(), true, nil
}
