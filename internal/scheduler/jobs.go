package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"tenant-gateway/middleware/ratelimit/infra"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// Nomes dos jobs embutidos.
const (
	JobWindowSweep    = "ratelimit-window-sweep"
	JobTierCachePurge = "tier-cache-purge"
	JobUsageReport    = "usage-report"
)

type WindowSweeper interface {
	Sweep(now time.Time) int
	Len() int
	// Evicted é o total acumulado de janelas ativas descartadas pelo limite de chaves.
	Evicted() int64
}

type ProfileSweeper interface {
	Sweep() int
}

type UsageDrainer interface {
	Drain() []infra.TenantUsage
}

// WindowSweepJob remove do store as janelas já expiradas.
func WindowSweepJob(spec string, store WindowSweeper, clk clock.Clock, logger *zap.Logger) Job {
	if clk == nil {
		clk = clock.New()
	}
	var lastEvicted atomic.Int64
	return Job{
		Name: JobWindowSweep,
		Spec: spec,
		Run: func(context.Context) error {
			removed := store.Sweep(clk.Now())
			logger.Debug("rate limit windows swept",
				zap.Int("removed", removed),
				zap.Int("remaining", store.Len()))

			total := store.Evicted()
			if delta := total - lastEvicted.Swap(total); delta > 0 {
				logger.Warn("active rate limit windows evicted, raise rate_limit.max_tenants",
					zap.Int64("evicted", delta),
					zap.Int("windows", store.Len()))
			}
			return nil
		},
	}
}

func TierCachePurgeJob(spec string, cache ProfileSweeper, logger *zap.Logger) Job {
	return Job{
		Name: JobTierCachePurge,
		Spec: spec,
		Run: func(context.Context) error {
			logger.Debug("tier profiles expired", zap.Int("removed", cache.Sweep()))
			return nil
		},
	}
}

// UsageReportJob registra o total permitido/negado por tenant desde o último
// relatório.
func UsageReportJob(spec string, stats UsageDrainer, logger *zap.Logger) Job {
	return Job{
		Name: JobUsageReport,
		Spec: spec,
		Run: func(context.Context) error {
			for _, u := range stats.Drain() {
				logger.Info("tenant usage",
					zap.String("tenant_id", string(u.Tenant)),
					zap.Int64("allowed", u.Allowed),
					zap.Int64("denied", u.Denied),
					zap.Int64("degraded", u.Degraded))
			}
			return nil
		},
	}
}
