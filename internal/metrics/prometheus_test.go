package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tenant-gateway/middleware/ratelimit/domain"
	"tenant-gateway/middleware/route"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatsStore_RecordsOutcomes(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	s := NewStatsStore(m)
	ctx := context.Background()

	events := []domain.StatsEvent{
		{Tenant: "acme", Stage: domain.StageRateLimit, Allowed: true},
		{Tenant: "acme", Stage: domain.StageRateLimit, Allowed: true},
		{Tenant: "acme", Stage: domain.StageRateLimit, Allowed: false},
		{Tenant: "acme", Stage: domain.StageFeatureGate, Allowed: false, Degraded: true},
		{Tenant: "acme", Stage: domain.StageFeatureGate, Allowed: true, Degraded: true},
	}
	for _, ev := range events {
		require.NoError(t, s.Record(ctx, ev))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.gateDecisions.WithLabelValues(domain.StageRateLimit, OutcomeAllowed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.gateDecisions.WithLabelValues(domain.StageRateLimit, OutcomeDenied)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.gateDecisions.WithLabelValues(domain.StageFeatureGate, OutcomeFailedClosed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.gateDecisions.WithLabelValues(domain.StageFeatureGate, OutcomeFailedOpen)))
}

func TestMiddleware_UsesRouteName(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/sales/42", nil)
	req = req.WithContext(route.WithRequirement(req.Context(), route.Requirement{Name: "sales.get"}))
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.requestsTotal.WithLabelValues(http.MethodGet, "sales.get", "429")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.requestsInFlight))
}

func TestObserveLookup(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.ObserveLookup("feature", "ok", 3*time.Millisecond)

	n, err := testutil.GatherAndCount(reg, "gateway_tier_lookup_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
