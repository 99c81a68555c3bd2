// Package metrics exposes Prometheus collectors for the relay loop.
//
// All methods are safe on a nil *Metrics, so callers that run without a
// metrics endpoint can pass nil.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Poll results used as the "result" label of feedrelay_polls_total.
const (
	PollDelivered = "delivered"
	PollSkipped   = "skipped"
	PollNoData    = "no_data"
	PollFailed    = "failed"
)

// Metrics holds the relay collectors on a private registry.
type Metrics struct {
	registry      *prometheus.Registry
	polls         *prometheus.CounterVec
	deliveries    prometheus.Counter
	sinkWrites    *prometheus.CounterVec
	fetchDuration prometheus.Histogram
	lastEntryID   prometheus.Gauge
}

// New creates and registers the relay collectors plus the Go runtime and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feedrelay_polls_total",
			Help: "Loop iterations by result.",
		}, []string{"result"}),
		deliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feedrelay_deliveries_total",
			Help: "Readings handed to the sinks.",
		}),
		sinkWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feedrelay_sink_writes_total",
			Help: "Sink write attempts by sink and result.",
		}, []string{"sink", "result"}),
		fetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "feedrelay_fetch_duration_seconds",
			Help:    "Duration of feed fetches.",
			Buckets: prometheus.DefBuckets,
		}),
		lastEntryID: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "feedrelay_last_entry_id",
			Help: "Entry id of the last delivered reading.",
		}),
	}

	m.registry.MustRegister(
		m.polls,
		m.deliveries,
		m.sinkWrites,
		m.fetchDuration,
		m.lastEntryID,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObservePoll records the result of one loop iteration.
func (m *Metrics) ObservePoll(result string) {
	if m == nil {
		return
	}
	m.polls.WithLabelValues(result).Inc()
}

// ObserveFetch records how long a feed fetch took.
func (m *Metrics) ObserveFetch(d time.Duration) {
	if m == nil {
		return
	}
	m.fetchDuration.Observe(d.Seconds())
}

// ObserveDelivery records a reading handed to the sinks.
func (m *Metrics) ObserveDelivery(entryID int64) {
	if m == nil {
		return
	}
	m.deliveries.Inc()
	m.lastEntryID.Set(float64(entryID))
}

// ObserveSinkWrite records one sink attempt.
func (m *Metrics) ObserveSinkWrite(sink string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.sinkWrites.WithLabelValues(sink, result).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
