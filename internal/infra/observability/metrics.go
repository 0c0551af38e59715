package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the ledger client and ledgerd.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the ledgerd /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	transportErrors *prometheus.CounterVec
	requestsTotal   *prometheus.CounterVec
	staleDrops      prometheus.Counter
	cacheHits       *prometheus.CounterVec
	cacheMisses     *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ledgerview_request_duration_seconds",
				Help:    "Duration of ledger API requests by operation.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		transportErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledgerview_transport_errors_total",
				Help: "Total classified transport failures.",
			},
			[]string{"class"},
		),
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledgerview_requests_total",
				Help: "Total ledger API requests by outcome.",
			},
			[]string{"status"},
		),
		staleDrops: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "ledgerview_stale_refresh_drops_total",
				Help: "Refresh cycles discarded because a newer one was issued.",
			},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledgerview_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledgerview_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
	}
}

// RecordRequestDuration records the duration of an API operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrTransportError increments the failure counter for an error class.
func (m *Metrics) IncrTransportError(class string) {
	m.transportErrors.WithLabelValues(class).Inc()
}

// IncrRequest increments the request counter with a status label.
func (m *Metrics) IncrRequest(status string) {
	m.requestsTotal.WithLabelValues(status).Inc()
}

// IncrStaleDrop counts a refresh cycle whose result was suppressed.
func (m *Metrics) IncrStaleDrop() {
	m.staleDrops.Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// RunSnapshot summarizes one CLI run for the debug exit log.
type RunSnapshot struct {
	Requests   float64
	Errors     float64
	StaleDrops float64
}

// Snapshot gathers cumulative counter values for the current process.
func (m *Metrics) Snapshot() RunSnapshot {
	success := getCounterValue(m.requestsTotal.WithLabelValues("success"))
	failure := getCounterValue(m.requestsTotal.WithLabelValues("error"))
	return RunSnapshot{
		Requests:   success + failure,
		Errors:     failure,
		StaleDrops: getCounterValue(m.staleDrops),
	}
}

// getCounterValue extracts the current float64 value from a prometheus counter.
func getCounterValue(c prometheus.Counter) float64 {
	metric := &dto.Metric{}
	if err := c.Write(metric); err != nil {
		return 0
	}
	if metric.Counter != nil && metric.Counter.Value != nil {
		return *metric.Counter.Value
	}
	return 0
}
