// Package metrics exposes Prometheus counters and histograms for score entry, approval and
// competition recomputation. Every method is safe on a nil *Metrics, so tests and tools
// that do not care about metrics can pass nil.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the club API's collectors.
type Metrics struct {
	EndsSaved         prometheus.Counter
	SessionsFinalized prometheus.Counter
	AccessDenied      *prometheus.CounterVec
	RecomputeLatency  prometheus.Histogram
	CacheRequests     *prometheus.CounterVec
}

// New registers the collectors with reg. Pass prometheus.DefaultRegisterer in the server
// and a fresh prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		EndsSaved: f.NewCounter(prometheus.CounterOpts{
			Name: "archery_ends_saved_total",
			Help: "Ends written by archers or recorders",
		}),
		SessionsFinalized: f.NewCounter(prometheus.CounterOpts{
			Name: "archery_sessions_finalized_total",
			Help: "Sessions approved from Preliminary to Final",
		}),
		AccessDenied: f.NewCounterVec(prometheus.CounterOpts{
			Name: "archery_access_denied_total",
			Help: "Operations rejected by the access gate, by operation",
		}, []string{"operation"}),
		RecomputeLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "archery_competition_recompute_seconds",
			Help:    "Time to recompute the cached entries and ranks of a competition",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
		CacheRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "archery_cache_requests_total",
			Help: "Read-through cache lookups by result (hit or miss)",
		}, []string{"result"}),
	}
}

func (m *Metrics) EndSaved() {
	if m != nil {
		m.EndsSaved.Inc()
	}
}

func (m *Metrics) SessionFinalized() {
	if m != nil {
		m.SessionsFinalized.Inc()
	}
}

func (m *Metrics) Denied(operation string) {
	if m != nil {
		m.AccessDenied.WithLabelValues(operation).Inc()
	}
}

func (m *Metrics) ObserveRecompute(d time.Duration) {
	if m != nil {
		m.RecomputeLatency.Observe(d.Seconds())
	}
}

func (m *Metrics) CacheResult(result string) {
	if m != nil {
		m.CacheRequests.WithLabelValues(result).Inc()
	}
}
