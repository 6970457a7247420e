// Package featuregate nega acesso a endpoints cuja feature declarada não está
// habilitada no plano (tier) do tenant.
//
// Features são strings planas com match exato: sem wildcard nem grupos.
// Rota sem feature declarada é pass-through, independente do tier.
package featuregate

import (
	"context"
	"net/http"

	"tenant-gateway/middleware/ratelimit/domain"
	"tenant-gateway/middleware/respond"
	"tenant-gateway/middleware/route"
	"tenant-gateway/middleware/tenant"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// Checker é a parte do serviço de tiers consumida pelo gate.
type Checker interface {
	HasFeature(ctx context.Context, tenantID, feature string) (bool, error)
}

type Options struct {
	Checker Checker
	Stats   domain.StatsStore
	// FeatureFn extrai a feature exigida pela rota; padrão: route.Feature.
	FeatureFn func(r *http.Request) string
	TenantFn  func(r *http.Request) string
	// FailOpen deixa passar quando o Checker falha. Padrão: fail-closed (503).
	FailOpen bool
	Logger   *zap.Logger
	// Clock carimba os eventos de stats; o mesmo do rate limit.
	Clock clock.Clock
}

func defaultTenant(r *http.Request) string {
	if id := tenant.FromContext(r.Context()); id != "" {
		return id
	}
	return tenant.DefaultTenant
}

func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.FeatureFn == nil {
		opts.FeatureFn = route.Feature
	}
	if opts.TenantFn == nil {
		opts.TenantFn = defaultTenant
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			feature := opts.FeatureFn(r)
			if feature == "" || opts.Checker == nil {
				next.ServeHTTP(w, r)
				return
			}

			tenantID := opts.TenantFn(r)
			enabled, err := opts.Checker.HasFeature(r.Context(), tenantID, feature)
			allowed := enabled
			if err != nil {
				allowed = opts.FailOpen
			}
			record(r, opts, tenantID, allowed, err != nil)

			switch {
			case err != nil:
				opts.Logger.Error("feature lookup failed",
					zap.String("tenant_id", tenantID),
					zap.String("feature", feature),
					zap.Bool("fail_open", opts.FailOpen),
					zap.String("request_id", r.Header.Get("X-Request-ID")),
					zap.Error(err),
				)
				if !allowed {
					respond.Error(w, http.StatusServiceUnavailable, respond.MsgLookupUnavailable)
					return
				}
			case !enabled:
				opts.Logger.Warn("feature not entitled",
					zap.String("tenant_id", tenantID),
					zap.String("feature", feature),
					zap.String("path", r.URL.Path),
					zap.String("request_id", r.Header.Get("X-Request-ID")),
				)
				respond.Error(w, http.StatusForbidden, respond.MsgFeatureUnavailable)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func record(r *http.Request, opts Options, tenantID string, allowed, degraded bool) {
	if opts.Stats == nil {
		return
	}
	err := opts.Stats.Record(r.Context(), domain.StatsEvent{
		Tenant:   domain.TenantID(tenantID),
		Stage:    domain.StageFeatureGate,
		Allowed:  allowed,
		Degraded: degraded,
		Method:   r.Method,
		Path:     r.URL.Path,
		At:       opts.Clock.Now(),
	})
	if err != nil {
		opts.Logger.Debug("feature gate stats record failed", zap.Error(err))
	}
}
