package telemetry

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pointsByName(points []MetricPoint) map[string]MetricPoint {
	byName := make(map[string]MetricPoint, len(points))
	for _, p := range points {
		byName[p.Name] = p
	}
	return byName
}

func TestExportJSONCountersAndGauges(t *testing.T) {
	m := NewMetrics()
	m.CacheHits.Inc()
	m.CacheHits.Inc()
	m.ActiveSessions.Set(7)

	points, err := m.ExportJSON()
	require.NoError(t, err)

	byName := pointsByName(points)
	assert.Equal(t, 2.0, byName["router_decision_cache_hits_total"].Value)
	assert.Equal(t, 7.0, byName["router_active_sessions"].Value)
	assert.Equal(t, 0.0, byName["router_key_exchanges_total"].Value)
}

func TestExportJSONLabeledCounters(t *testing.T) {
	m := NewMetrics()
	m.RoutingDecisions.WithLabelValues("privacy").Inc()

	points, err := m.ExportJSON()
	require.NoError(t, err)

	point, ok := pointsByName(points)["router_routing_decisions_total"]
	require.True(t, ok)
	assert.Equal(t, "privacy", point.Labels["priority"])
	assert.Equal(t, 1.0, point.Value)
}

func TestExportJSONHistogramSumAndCount(t *testing.T) {
	m := NewMetrics()
	m.RequestDurationMs.WithLabelValues("/api/health").Observe(12)
	m.RequestDurationMs.WithLabelValues("/api/health").Observe(30)

	points, err := m.ExportJSON()
	require.NoError(t, err)

	byName := pointsByName(points)
	assert.Equal(t, 2.0, byName["router_http_request_duration_ms_count"].Value)
	assert.Equal(t, 42.0, byName["router_http_request_duration_ms_sum"].Value)
}

func TestPrometheusHandlerServesRegistry(t *testing.T) {
	m := NewMetrics()
	m.CacheMisses.Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "router_decision_cache_misses_total 1")
}

func TestSeparateRegistriesDoNotCollide(t *testing.T) {
	first := NewMetrics()
	second := NewMetrics()
	first.CacheHits.Inc()

	points, err := second.ExportJSON()
	require.NoError(t, err)
	assert.Equal(t, 0.0, pointsByName(points)["router_decision_cache_hits_total"].Value)
}
