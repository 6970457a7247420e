// Package pipeline monta a cadeia de estágios aplicada a cada request, na ordem:
//
//	Recovery -> RequestID -> métricas -> access log -> limite de concorrência ->
//	tenant -> autenticação -> autorização -> feature gate -> rate limit -> handler
//
// Os middlewares são construídos uma vez em New; Wrap só os aplica, então o
// pool de concorrência e os contadores são compartilhados por todas as rotas.
package pipeline

import (
	"net/http"
	"time"

	"tenant-gateway/internal/metrics"
	"tenant-gateway/internal/tier"
	"tenant-gateway/middleware/auth"
	"tenant-gateway/middleware/featuregate"
	"tenant-gateway/middleware/ratelimit"
	"tenant-gateway/middleware/ratelimit/domain"
	"tenant-gateway/middleware/tenant"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

type RateLimitOptions struct {
	Enabled    bool
	Store      domain.CounterStore
	Window     time.Duration
	RetryAfter time.Duration
	AddHeaders bool
}

type Options struct {
	Logger  *zap.Logger
	Metrics *metrics.Metrics

	Concurrency ratelimit.ConcurrencyOptions
	Tenant      tenant.Options
	// Auth nil ou sem segredo desliga autenticação e autorização.
	Auth *auth.Authenticator

	Tiers     tier.Service
	RateLimit RateLimitOptions
	Stats     domain.StatsStore
	// FailOpen vale para feature gate e rate limit quando o lookup falha.
	FailOpen bool

	Clock clock.Clock
}

type Pipeline struct {
	observe func(http.Handler) http.Handler
	gate    func(http.Handler) http.Handler
}

func New(opts Options) *Pipeline {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	logger := opts.Logger

	observe := []func(http.Handler) http.Handler{Recovery(logger), RequestID}
	if opts.Metrics != nil {
		observe = append(observe, opts.Metrics.Middleware)
	}
	observe = append(observe, AccessLog(logger))

	if opts.Concurrency.Logger == nil {
		opts.Concurrency.Logger = logger
	}
	if opts.Tenant.Logger == nil {
		opts.Tenant.Logger = logger
	}

	gate := []func(http.Handler) http.Handler{
		ratelimit.ConcurrencyMiddleware(opts.Concurrency),
		tenant.Middleware(opts.Tenant),
	}
	if opts.Auth != nil && opts.Auth.Enabled() {
		gate = append(gate, opts.Auth.Middleware, auth.Authorize(logger))
	}
	gate = append(gate, featuregate.Middleware(featuregate.Options{
		Checker:  opts.Tiers,
		Stats:    opts.Stats,
		FailOpen: opts.FailOpen,
		Logger:   logger,
		Clock:    opts.Clock,
	}))
	if opts.RateLimit.Enabled {
		gate = append(gate, ratelimit.Middleware(ratelimit.Options{
			Store:               opts.RateLimit.Store,
			Limits:              opts.Tiers,
			Stats:               opts.Stats,
			Window:              opts.RateLimit.Window,
			RetryAfter:          opts.RateLimit.RetryAfter,
			FailOpen:            opts.FailOpen,
			AddRateLimitHeaders: opts.RateLimit.AddHeaders,
			Clock:               opts.Clock,
			Logger:              logger,
		}))
	}

	return &Pipeline{observe: Chain(observe...), gate: Chain(gate...)}
}

// Wrap aplica a cadeia completa ao handler de uma rota.
func (p *Pipeline) Wrap(h http.Handler) http.Handler {
	return p.observe(p.gate(h))
}

// Observe aplica só recovery, request id, métricas e access log. Usado em
// endpoints fora do gating (healthz, 404/405).
func (p *Pipeline) Observe(h http.Handler) http.Handler {
	return p.observe(h)
}
