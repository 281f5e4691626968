package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.EndSaved()
	m.EndSaved()
	m.SessionFinalized()
	m.Denied("write_scores")
	m.CacheResult("hit")
	m.ObserveRecompute(20 * time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.EndsSaved))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsFinalized))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AccessDenied.WithLabelValues("write_scores")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheRequests.WithLabelValues("hit")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.RecomputeLatency))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.EndSaved()
		m.SessionFinalized()
		m.Denied("approve_session")
		m.ObserveRecompute(time.Second)
		m.CacheResult("miss")
	})
}
