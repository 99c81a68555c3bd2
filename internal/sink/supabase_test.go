package sink

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jpalmerr/feedrelay/internal/feed"
)

func TestSupabaseSink_Persist(t *testing.T) {
	var (
		gotPath   string
		gotHeader http.Header
		gotRow    map[string]any
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotHeader = r.Header.Clone()
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotRow)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`[{"id":1,"entry_id":5}]`))
	}))
	defer server.Close()

	s, err := NewSupabaseSink(server.URL+"/", "service-key", "sensor_data", 0, testLogger())
	require.NoError(t, err)

	require.NoError(t, s.Persist(context.Background(), sampleReading()))

	assert.Equal(t, "/rest/v1/sensor_data", gotPath)
	assert.Equal(t, "service-key", gotHeader.Get("apikey"))
	assert.Equal(t, "Bearer service-key", gotHeader.Get("Authorization"))
	assert.Equal(t, "return=representation", gotHeader.Get("Prefer"))
	assert.Equal(t, "application/json", gotHeader.Get("Content-Type"))

	assert.Equal(t, map[string]any{
		"entry_id":   5.0,
		"created_at": "2024-01-01T00:00:00Z",
		"ph":         7.1,
		"do":         6.0,
		"t":          25.3,
		"v":          3.3,
		"sensor_id":  "probe-A",
	}, gotRow)
}

func TestSupabaseSink_EmptyAck(t *testing.T) {
	for _, body := range []string{`[]`, ``} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(body))
		}))

		s, err := NewSupabaseSink(server.URL, "k", "sensor_data", 0, testLogger())
		require.NoError(t, err)

		err = s.Persist(context.Background(), sampleReading())
		assert.True(t, errors.Is(err, ErrNoAck), "body %q: got %v", body, err)
		server.Close()
	}
}

func TestSupabaseSink_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"code":"23505","message":"duplicate key value"}`))
	}))
	defer server.Close()

	s, err := NewSupabaseSink(server.URL, "k", "sensor_data", 0, testLogger())
	require.NoError(t, err)

	err = s.Persist(context.Background(), sampleReading())
	var sinkErr *Error
	require.True(t, errors.As(err, &sinkErr))
	assert.Equal(t, "supabase", sinkErr.Sink)
	assert.ErrorContains(t, err, "409")
	assert.ErrorContains(t, err, "duplicate key")
}

func TestSupabaseSink_ErrorStatusPlainBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer server.Close()

	s, err := NewSupabaseSink(server.URL, "k", "sensor_data", 0, testLogger())
	require.NoError(t, err)

	err = s.Persist(context.Background(), sampleReading())
	var sinkErr *Error
	require.True(t, errors.As(err, &sinkErr))
	assert.ErrorContains(t, err, "502")
}

func TestSupabaseSink_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	s, err := NewSupabaseSink(server.URL, "k", "sensor_data", 50*time.Millisecond, testLogger())
	require.NoError(t, err)

	start := time.Now()
	err = s.Persist(context.Background(), sampleReading())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestSupabaseSink_NonNumericField(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`[{}]`))
	}))
	defer server.Close()

	s, err := NewSupabaseSink(server.URL, "k", "sensor_data", 0, testLogger())
	require.NoError(t, err)

	r := sampleReading()
	r.Fields[0] = feed.Field{Value: "n/a", Valid: true}

	err = s.Persist(context.Background(), r)
	require.Error(t, err)
	assert.Zero(t, calls, "no request is sent for an unmappable reading")
}

func TestNewSupabaseSink_Validation(t *testing.T) {
	_, err := NewSupabaseSink("project.supabase.co", "k", "t", 0, nil)
	assert.ErrorContains(t, err, "scheme")

	_, err = NewSupabaseSink("https://project.supabase.co", "k", "", 0, nil)
	assert.ErrorContains(t, err, "table")
}
