package scheduler

import (
	"context"
	"testing"
	"time"

	"tenant-gateway/middleware/ratelimit/domain"
	"tenant-gateway/middleware/ratelimit/infra"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestWindowSweepJob(t *testing.T) {
	mock := clock.NewMock()
	store := infra.NewWindowStore()
	ctx := context.Background()

	_, err := store.Increment(ctx, "acme", mock.Now(), time.Minute)
	require.NoError(t, err)
	mock.Add(30 * time.Second)
	_, err = store.Increment(ctx, "globex", mock.Now(), time.Minute)
	require.NoError(t, err)

	s := New(nil)
	require.NoError(t, s.Register(WindowSweepJob("@every 1m", store, mock, zap.NewNop())))

	mock.Add(30 * time.Second)
	require.NoError(t, s.RunNow(JobWindowSweep))
	assert.Equal(t, 1, store.Len())

	mock.Add(30 * time.Second)
	require.NoError(t, s.RunNow(JobWindowSweep))
	assert.Equal(t, 0, store.Len())
}

func TestWindowSweepJob_WarnsOnEviction(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	mock := clock.NewMock()
	store := infra.NewWindowStore(infra.WithMaxKeys(1))
	ctx := context.Background()

	s := New(nil)
	require.NoError(t, s.Register(WindowSweepJob("@every 1m", store, mock, zap.New(core))))

	_, _ = store.Increment(ctx, "acme", mock.Now(), time.Minute)
	_, _ = store.Increment(ctx, "globex", mock.Now(), time.Minute)

	require.NoError(t, s.RunNow(JobWindowSweep))
	require.Equal(t, 1, logs.Len())
	assert.EqualValues(t, 1, logs.All()[0].ContextMap()["evicted"])

	require.NoError(t, s.RunNow(JobWindowSweep))
	assert.Equal(t, 1, logs.Len(), "no new evictions, no new warning")
}

type sweepCounter struct{ calls int }

func (s *sweepCounter) Sweep() int { s.calls++; return 0 }

func TestTierCachePurgeJob(t *testing.T) {
	c := &sweepCounter{}
	s := New(nil)
	require.NoError(t, s.Register(TierCachePurgeJob("@every 1m", c, zap.NewNop())))

	require.NoError(t, s.RunNow(JobTierCachePurge))
	assert.Equal(t, 1, c.calls)
}

func TestUsageReportJob(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	stats := infra.NewMemoryStatsStore(infra.WithTrackTenants(true))
	ctx := context.Background()

	require.NoError(t, stats.Record(ctx, domain.StatsEvent{Tenant: "acme", Stage: domain.StageRateLimit, Allowed: true}))
	require.NoError(t, stats.Record(ctx, domain.StatsEvent{Tenant: "acme", Stage: domain.StageRateLimit, Allowed: false}))
	require.NoError(t, stats.Record(ctx, domain.StatsEvent{Tenant: "globex", Stage: domain.StageRateLimit, Allowed: true}))

	s := New(nil)
	require.NoError(t, s.Register(UsageReportJob("@every 5m", stats, zap.New(core))))
	require.NoError(t, s.RunNow(JobUsageReport))

	entries := logs.FilterMessage("tenant usage").All()
	require.Len(t, entries, 2)
	acme := entries[0].ContextMap()
	assert.Equal(t, "acme", acme["tenant_id"])
	assert.EqualValues(t, 1, acme["allowed"])
	assert.EqualValues(t, 1, acme["denied"])

	require.NoError(t, s.RunNow(JobUsageReport))
	assert.Len(t, logs.FilterMessage("tenant usage").All(), 2, "counters reset after each report")
}
