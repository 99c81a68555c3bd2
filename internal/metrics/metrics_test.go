package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.ObservePoll(PollDelivered)
	m.ObservePoll(PollSkipped)
	m.ObservePoll(PollSkipped)
	m.ObserveDelivery(42)
	m.ObserveSinkWrite("csv", nil)
	m.ObserveSinkWrite("postgres", errors.New("boom"))
	m.ObserveFetch(120 * time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.polls.WithLabelValues(PollDelivered)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.polls.WithLabelValues(PollSkipped)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.deliveries))
	assert.Equal(t, 42.0, testutil.ToFloat64(m.lastEntryID))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sinkWrites.WithLabelValues("csv", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sinkWrites.WithLabelValues("postgres", "error")))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics

	m.ObservePoll(PollFailed)
	m.ObserveFetch(time.Second)
	m.ObserveDelivery(1)
	m.ObserveSinkWrite("csv", nil)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.ObserveDelivery(7)

	server := httptest.NewServer(m.Handler())
	defer server.Close()

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "feedrelay_deliveries_total 1")
	assert.Contains(t, string(body), "feedrelay_last_entry_id 7")
}
