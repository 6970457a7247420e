package ratelimit

import (
	"net/http"
	"time"

	"tenant-gateway/middleware/ratelimit/application"
	"tenant-gateway/middleware/ratelimit/domain"
	"tenant-gateway/middleware/respond"
	"tenant-gateway/middleware/route"
	"tenant-gateway/middleware/tenant"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

type TenantFunc func(r *http.Request) string

type CategoryFunc func(r *http.Request) string

type Options struct {
	Store      domain.CounterStore
	Limits     domain.LimitSource
	Stats      domain.StatsStore
	TenantFn   TenantFunc
	CategoryFn CategoryFunc

	Window       time.Duration
	RetryAfter   time.Duration
	RejectStatus int
	// FailOpen deixa passar quando o lookup do tier ou o contador falham.
	// Padrão (false): fail-closed, 503.
	FailOpen            bool
	AddRateLimitHeaders bool

	Clock  clock.Clock
	Logger *zap.Logger
}

// DefaultTenantFunc lê o tenant resolvido pelo middleware do pacote tenant.
func DefaultTenantFunc(r *http.Request) string {
	if id := tenant.FromContext(r.Context()); id != "" {
		return id
	}
	return tenant.DefaultTenant
}

// DefaultCategoryFunc usa a categoria declarada na rota (ou a padrão).
func DefaultCategoryFunc(r *http.Request) string {
	if c := route.Category(r); c != "" {
		return c
	}
	return domain.DefaultCategory
}

func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusTooManyRequests
	}
	if opts.RetryAfter == 0 {
		opts.RetryAfter = application.DefaultRetryAfter
	}
	if opts.Window == 0 {
		opts.Window = domain.DefaultWindow
	}
	if opts.TenantFn == nil {
		opts.TenantFn = DefaultTenantFunc
	}
	if opts.CategoryFn == nil {
		opts.CategoryFn = DefaultCategoryFunc
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	svc := application.Service{
		Store:      opts.Store,
		Limits:     opts.Limits,
		Window:     opts.Window,
		RetryAfter: opts.RetryAfter,
		FailOpen:   opts.FailOpen,
		Clock:      opts.Clock,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenantID := domain.TenantID(opts.TenantFn(r))
			category := opts.CategoryFn(r)

			dec := svc.Decide(r.Context(), tenantID, category)
			if opts.Stats != nil {
				if err := opts.Stats.Record(r.Context(), domain.StatsEvent{
					Tenant:   tenantID,
					Stage:    domain.StageRateLimit,
					Allowed:  dec.Allowed,
					Degraded: dec.Err != nil,
					Method:   r.Method,
					Path:     r.URL.Path,
					At:       opts.Clock.Now(),
				}); err != nil {
					opts.Logger.Debug("rate limit stats record failed", zap.Error(err))
				}
			}

			if dec.Err != nil {
				opts.Logger.Error("rate limit degraded",
					zap.String("tenant_id", string(tenantID)),
					zap.String("category", category),
					zap.Bool("fail_open", opts.FailOpen),
					zap.String("request_id", r.Header.Get("X-Request-ID")),
					zap.Error(dec.Err),
				)
				if !dec.Allowed {
					respond.Error(w, http.StatusServiceUnavailable, respond.MsgLookupUnavailable)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			if opts.AddRateLimitHeaders {
				w.Header().Set("X-RateLimit-Limit", formatInt(dec.Limit))
				w.Header().Set("X-RateLimit-Remaining", formatInt(dec.Remaining()))
				w.Header().Set("X-RateLimit-Reset", formatUnix(dec.WindowEnd))
			}

			if !dec.Allowed {
				opts.Logger.Warn("rate limit exceeded",
					zap.String("tenant_id", string(tenantID)),
					zap.String("category", category),
					zap.Int("limit", dec.Limit),
					zap.Int64("count", dec.Count),
					zap.String("path", r.URL.Path),
					zap.String("request_id", r.Header.Get("X-Request-ID")),
				)
				w.Header().Set("Retry-After", formatSeconds(dec.RetryAfter))
				respond.Error(w, opts.RejectStatus, respond.MsgRateLimited)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
