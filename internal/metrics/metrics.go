package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	ResultStored    = "stored"
	ResultUnchanged = "unchanged"
	ResultSkipped   = "skipped"
	ResultNoData    = "no_data"
	ResultError     = "error"
)

// Metrics holds the Prometheus collectors of the poller and the query API.
type Metrics struct {
	registry *prometheus.Registry

	PollsTotal       *prometheus.CounterVec   // labels: profile, result
	ChangesTotal     *prometheus.CounterVec   // labels: profile
	FetchDuration    prometheus.Histogram
	QueryDuration    *prometheus.HistogramVec // labels: op
	LastPollUnixTime prometheus.Gauge
}

// New creates the collectors on a dedicated registry that also carries the
// Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		PollsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "poswatch_polls_total",
			Help: "Profile polls by result",
		}, []string{"profile", "result"}),
		ChangesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "poswatch_changes_total",
			Help: "Structural position changes recorded",
		}, []string{"profile"}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "poswatch_fetch_duration_seconds",
			Help:    "Snapshot feed request latency",
			Buckets: prometheus.DefBuckets,
		}),
		QueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "poswatch_query_duration_seconds",
			Help:    "History query latency by operation",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"op"}),
		LastPollUnixTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "poswatch_last_poll_timestamp_seconds",
			Help: "Unix time of the last completed poll round",
		}),
	}

	m.registry.MustRegister(
		m.PollsTotal,
		m.ChangesTotal,
		m.FetchDuration,
		m.QueryDuration,
		m.LastPollUnixTime,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)

	return m
}

func (m *Metrics) Poll(profile, result string) {
	if m == nil {
		return
	}
	m.PollsTotal.WithLabelValues(profile, result).Inc()
}

func (m *Metrics) Change(profile string) {
	if m == nil {
		return
	}
	m.ChangesTotal.WithLabelValues(profile).Inc()
}

func (m *Metrics) ObserveFetch(d time.Duration) {
	if m == nil {
		return
	}
	m.FetchDuration.Observe(d.Seconds())
}

func (m *Metrics) RoundDone(t time.Time) {
	if m == nil {
		return
	}
	m.LastPollUnixTime.Set(float64(t.Unix()))
}

// TimeQuery returns a func that records the elapsed time of op when called.
func (m *Metrics) TimeQuery(op string) func() {
	if m == nil {
		return func() {}
	}
	start := time.Now()
	return func() {
		m.QueryDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
