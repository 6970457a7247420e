package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"tenant-gateway/internal/config"
	"tenant-gateway/internal/metrics"
	"tenant-gateway/internal/pipeline"
	"tenant-gateway/internal/router"
	"tenant-gateway/internal/scheduler"
	"tenant-gateway/internal/tier"
	"tenant-gateway/middleware/auth"
	"tenant-gateway/middleware/ratelimit"
	"tenant-gateway/middleware/ratelimit/domain"
	"tenant-gateway/middleware/ratelimit/infra"
	"tenant-gateway/middleware/respond"
	"tenant-gateway/middleware/tenant"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// dependencies agrupa os componentes com estado criados a partir da config.
type dependencies struct {
	tiers    tier.Service
	cache    *tier.Cached
	counters domain.CounterStore
	windows  domain.WindowReader
	// memWindows é nil quando o backend é Redis (a expiração fica com o PEXPIRE).
	memWindows *infra.WindowStore
	memStats   *infra.MemoryStatsStore
	stats      domain.StatsStore

	closers []func()
}

func (d *dependencies) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

func wire(ctx context.Context, cfg *config.Config, m *metrics.Metrics, logger *zap.Logger) (*dependencies, error) {
	d := &dependencies{}

	var rdb redis.UniversalClient
	if len(cfg.Redis.Addrs) > 0 {
		rdb = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    cfg.Redis.Addrs,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		d.closers = append(d.closers, func() { _ = rdb.Close() })

		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
	}

	src, err := profileSource(ctx, cfg, d, logger)
	if err != nil {
		d.Close()
		return nil, err
	}
	d.cache, err = tier.NewCached(src, cfg.Tier.CacheTTL, cfg.Tier.CacheSize, tier.WithLoadTimeout(cfg.Tier.Timeout))
	if err != nil {
		d.Close()
		return nil, err
	}
	d.tiers = tier.NewLookup(d.cache, tier.WithObserver(m), tier.WithLookupLogger(logger))

	switch cfg.RateLimit.Backend {
	case config.BackendRedis:
		s := infra.NewRedisWindowStore(rdb, infra.WithWindowPrefix(cfg.RateLimit.RedisPrefix))
		d.counters, d.windows = s, s
	default:
		s := infra.NewWindowStore(infra.WithMaxKeys(cfg.RateLimit.MaxTenants))
		d.counters, d.windows, d.memWindows = s, s, s
	}

	stores := []domain.StatsStore{metrics.NewStatsStore(m)}
	if cfg.Stats.Memory {
		d.memStats = infra.NewMemoryStatsStore(infra.WithTrackTenants(cfg.Stats.TrackTenants))
		stores = append(stores, d.memStats)
	}
	if cfg.Stats.Redis {
		stores = append(stores, infra.NewRedisStatsStore(rdb,
			infra.WithStatsPrefix(cfg.Stats.RedisPrefix),
			infra.WithStatsTTL(cfg.Stats.TTL),
			infra.WithStatsBucket(cfg.Stats.Bucket),
			infra.WithStatsTrackTenants(cfg.Stats.TrackTenants),
		))
	}
	d.stats = infra.FanOut(stores...)

	return d, nil
}

func profileSource(ctx context.Context, cfg *config.Config, d *dependencies, logger *zap.Logger) (tier.ProfileSource, error) {
	if cfg.Tier.Source == config.SourceHTTP {
		client, err := tier.NewHTTPClient(cfg.Tier.ServiceURL,
			tier.WithHTTPTimeout(cfg.Tier.Timeout),
			tier.WithCallRate(cfg.Tier.CallRate, cfg.Tier.CallBurst),
			tier.WithBearerToken(cfg.Tier.ServiceToken),
		)
		if err != nil {
			return nil, err
		}
		return client, nil
	}

	catalog, err := tier.LoadCatalog(cfg.Tier.CatalogPath)
	if err != nil {
		return nil, err
	}
	logger.Info("tier catalog loaded",
		zap.String("path", cfg.Tier.CatalogPath),
		zap.Strings("plans", catalog.Plans()),
		zap.String("default_plan", catalog.DefaultPlan()))

	if cfg.Tier.PostgresDSN == "" {
		return catalog, nil
	}
	pg, err := tier.NewPostgresAssignments(ctx, cfg.Tier.PostgresDSN, cfg.Tier.PostgresMaxConns, logger)
	if err != nil {
		return nil, err
	}
	d.closers = append(d.closers, pg.Close)
	return catalog.WithAssignments(pg), nil
}

func concurrencyOptions(cfg *config.Config) ratelimit.ConcurrencyOptions {
	return ratelimit.ConcurrencyOptions{
		Max:            cfg.Concurrency.Max,
		AcquireTimeout: cfg.Concurrency.AcquireTimeout,
	}
}

func tenantOptions(cfg *config.Config) tenant.Options {
	return tenant.Options{
		Resolver: tenant.Resolver{
			Header:     cfg.Tenant.Header,
			QueryParam: cfg.Tenant.QueryParam,
			Default:    cfg.Tenant.Default,
		},
		RequireExplicit: cfg.Tenant.RequireExplicit,
		EchoHeader:      cfg.Tenant.EchoHeader,
	}
}

func authenticator(cfg *config.Config, logger *zap.Logger) *auth.Authenticator {
	if cfg.Auth.JWTSecret == "" {
		logger.Warn("auth.jwt_secret not set, authentication disabled")
	}
	return auth.NewAuthenticator(cfg.Auth.JWTSecret,
		auth.WithIssuer(cfg.Auth.Issuer),
		auth.WithLeeway(cfg.Auth.Leeway),
		auth.WithLogger(logger),
	)
}

func newProxy(upstream string, logger *zap.Logger) (http.Handler, error) {
	target, err := url.Parse(upstream)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream url: %w", err)
	}
	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Error("proxy error",
			zap.String("path", r.URL.Path),
			zap.String("request_id", r.Header.Get(pipeline.RequestIDHeader)),
			zap.Error(err))
		respond.Error(w, http.StatusBadGateway, respond.MsgBadGateway)
	}
	return proxy, nil
}

// buildRouter registra healthz, admin e as rotas da config. Sem rotas
// configuradas, tudo vai para o upstream sem feature e na categoria padrão.
func buildRouter(cfg *config.Config, p *pipeline.Pipeline, upstream http.Handler, d *dependencies, logger *zap.Logger) (*router.Router, error) {
	rt := router.New(p)

	if err := rt.HandleUngated(router.Route{
		Name: "healthz", Method: http.MethodGet, Path: "/healthz", Handler: router.Healthz(),
	}); err != nil {
		return nil, err
	}
	if err := rt.Handle(router.Route{
		Name: "admin.usage", Method: http.MethodGet, Path: "/admin/usage/{tenant}", Roles: []string{"admin"},
		Handler: router.UsageHandler(router.UsageOptions{
			Windows: d.windows,
			Tiers:   d.tiers,
			Window:  cfg.RateLimit.Window,
			Logger:  logger,
		}),
	}); err != nil {
		return nil, err
	}

	routes := cfg.Routes
	if len(routes) == 0 {
		routes = []config.RouteConfig{{Name: "upstream", PathPrefix: "/"}}
	}
	for _, rc := range routes {
		if err := rt.Handle(router.Route{
			Name:       rc.Name,
			Method:     rc.Method,
			Path:       rc.Path,
			PathPrefix: rc.PathPrefix,
			Feature:    rc.Feature,
			Category:   rc.Category,
			Roles:      rc.Roles,
			Handler:    upstream,
		}); err != nil {
			return nil, err
		}
	}
	return rt, nil
}

func buildScheduler(cfg *config.Config, d *dependencies, logger *zap.Logger) (*scheduler.Scheduler, error) {
	s := scheduler.New(logger)
	if !cfg.Scheduler.Enabled {
		return s, nil
	}

	var jobs []scheduler.Job
	if d.memWindows != nil && cfg.Scheduler.WindowSweep != "" {
		jobs = append(jobs, scheduler.WindowSweepJob(cfg.Scheduler.WindowSweep, d.memWindows, nil, logger))
	}
	if cfg.Scheduler.TierCachePurge != "" {
		jobs = append(jobs, scheduler.TierCachePurgeJob(cfg.Scheduler.TierCachePurge, d.cache, logger))
	}
	if d.memStats != nil && cfg.Scheduler.UsageReport != "" {
		jobs = append(jobs, scheduler.UsageReportJob(cfg.Scheduler.UsageReport, d.memStats, logger))
	}
	for _, j := range jobs {
		if err := s.Register(j); err != nil {
			return nil, err
		}
	}
	return s, nil
}
