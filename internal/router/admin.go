package router

import (
	"net/http"
	"time"

	"tenant-gateway/internal/tier"
	"tenant-gateway/middleware/ratelimit/domain"
	"tenant-gateway/middleware/respond"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Healthz é o liveness; não passa pelo gating.
func Healthz() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		respond.JSON(w, http.StatusOK, map[string]any{"success": true, "status": "ok"})
	})
}

type Usage struct {
	Success     bool       `json:"success"`
	Tenant      string     `json:"tenant"`
	Category    string     `json:"category"`
	Limit       int        `json:"limit"`
	Count       int64      `json:"count"`
	Remaining   int        `json:"remaining"`
	WindowStart *time.Time `json:"window_start,omitempty"`
	WindowEnd   *time.Time `json:"window_end,omitempty"`
}

type UsageOptions struct {
	Windows domain.WindowReader
	Tiers   tier.Service
	Window  time.Duration
	Clock   clock.Clock
	Logger  *zap.Logger
}

// UsageHandler expõe a janela corrente de um tenant:
// GET /admin/usage/{tenant}?category=...
// Lê o contador sem incrementar.
func UsageHandler(opts UsageOptions) http.Handler {
	if opts.Window <= 0 {
		opts.Window = domain.DefaultWindow
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID := mux.Vars(r)["tenant"]
		category := r.URL.Query().Get("category")
		if category == "" {
			category = domain.DefaultCategory
		}

		limit, err := opts.Tiers.GetRateLimit(r.Context(), tenantID, category)
		if err != nil {
			opts.Logger.Error("usage lookup failed", zap.String("tenant_id", tenantID), zap.Error(err))
			respond.Error(w, http.StatusServiceUnavailable, respond.MsgLookupUnavailable)
			return
		}

		now := opts.Clock.Now()
		win, ok, err := opts.Windows.Peek(r.Context(), domain.KeyFor(domain.TenantID(tenantID), category), now, opts.Window)
		if err != nil {
			opts.Logger.Error("usage window read failed", zap.String("tenant_id", tenantID), zap.Error(err))
			respond.Error(w, http.StatusServiceUnavailable, respond.MsgLookupUnavailable)
			return
		}

		u := Usage{Success: true, Tenant: tenantID, Category: category, Limit: limit, Remaining: limit}
		if ok {
			d := domain.Decision{Limit: limit, Count: win.Count}
			u.Count = win.Count
			u.Remaining = d.Remaining()
			start, end := win.Start, win.Start.Add(opts.Window)
			u.WindowStart = &start
			u.WindowEnd = &end
		}
		respond.JSON(w, http.StatusOK, u)
	})
}
