package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"tenant-gateway/internal/config"
	"tenant-gateway/internal/metrics"
	"tenant-gateway/internal/pipeline"
	"tenant-gateway/internal/scheduler"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const catalog = `
default_plan: free
plans:
  - name: free
    rate_limits: {default: 2}
  - name: pro
    rate_limits: {default: 50}
    features: [reports]
tenants:
  acme: pro
`

func testConfig(t *testing.T, upstream string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	catalogPath := filepath.Join(dir, "tiers.yaml")
	require.NoError(t, os.WriteFile(catalogPath, []byte(catalog), 0o600))

	cfgPath := filepath.Join(dir, "gateway.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
upstream:
  url: `+upstream+`
tier:
  catalog_path: `+catalogPath+`
metrics:
  enabled: false
routes:
  - name: reports
    method: GET
    path: /api/reports
    feature: reports
  - name: backend
    path_prefix: /api
`), 0o600))

	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	return cfg
}

func TestGatewayWiring_EndToEnd(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get(pipeline.RequestIDHeader), "request id forwarded upstream")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("from backend"))
	}))
	defer backend.Close()

	cfg := testConfig(t, backend.URL)
	logger := zap.NewNop()
	m := metrics.NewMetrics(prometheus.NewRegistry())

	deps, err := wire(context.Background(), cfg, m, logger)
	require.NoError(t, err)
	defer deps.Close()

	p := pipeline.New(pipeline.Options{
		Logger:      logger,
		Metrics:     m,
		Concurrency: concurrencyOptions(cfg),
		Tenant:      tenantOptions(cfg),
		Auth:        authenticator(cfg, logger),
		Tiers:       deps.tiers,
		RateLimit: pipeline.RateLimitOptions{
			Enabled: true, Store: deps.counters, Window: cfg.RateLimit.Window, RetryAfter: cfg.RateLimit.RetryAfter,
		},
		Stats:    deps.stats,
		FailOpen: cfg.FailOpen(),
	})
	proxy, err := newProxy(cfg.Upstream.URL, logger)
	require.NoError(t, err)
	rt, err := buildRouter(cfg, p, proxy, deps, logger)
	require.NoError(t, err)

	srv := httptest.NewServer(rt)
	defer srv.Close()

	do := func(path, tenantID string) *http.Response {
		req, err := http.NewRequest(http.MethodGet, srv.URL+path, nil)
		require.NoError(t, err)
		req.Header.Set("X-Tenant-Id", tenantID)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		_ = resp.Body.Close()
		return resp
	}

	assert.Equal(t, http.StatusOK, do("/api/reports", "acme").StatusCode)
	assert.Equal(t, http.StatusForbidden, do("/api/reports", "someone").StatusCode)

	assert.Equal(t, http.StatusOK, do("/api/sales", "someone").StatusCode)
	assert.Equal(t, http.StatusOK, do("/api/sales", "someone").StatusCode)
	resp := do("/api/sales", "someone")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "60", resp.Header.Get("Retry-After"))

	assert.Equal(t, http.StatusOK, do("/healthz", "").StatusCode)
	assert.Equal(t, http.StatusNotFound, do("/elsewhere", "acme").StatusCode)

	usage := deps.memStats.ByTenant()["someone"]
	assert.EqualValues(t, 2, usage.Allowed)
	assert.EqualValues(t, 2, usage.Denied, "one feature denial and one rate limit rejection")
}

func TestBuildScheduler_RegistersBuiltInJobs(t *testing.T) {
	cfg := testConfig(t, "http://backend:3000")
	deps, err := wire(context.Background(), cfg, metrics.NewMetrics(prometheus.NewRegistry()), zap.NewNop())
	require.NoError(t, err)
	defer deps.Close()

	s, err := buildScheduler(cfg, deps, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, []string{scheduler.JobWindowSweep, scheduler.JobTierCachePurge, scheduler.JobUsageReport}, s.Jobs())

	_, err = deps.counters.Increment(context.Background(), "acme", time.Now().Add(-2*time.Minute), time.Minute)
	require.NoError(t, err)
	require.NoError(t, s.RunNow(scheduler.JobWindowSweep))
	assert.Equal(t, 0, deps.memWindows.Len())
}
