// Command example-server mostra o pipeline embutido direto no webserver, sem
// proxy: as rotas locais de uma farmácia passam pelos mesmos estágios do gateway.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tenant-gateway/internal/logging"
	"tenant-gateway/internal/pipeline"
	"tenant-gateway/internal/router"
	"tenant-gateway/internal/scheduler"
	"tenant-gateway/internal/tier"
	"tenant-gateway/middleware/auth"
	"tenant-gateway/middleware/ratelimit"
	"tenant-gateway/middleware/ratelimit/infra"
	"tenant-gateway/middleware/respond"
	"tenant-gateway/middleware/tenant"

	"go.uber.org/zap"
)

// Catálogo de demonstração: "basic" não tem relatórios nem receitas.
const demoCatalog = `
default_plan: basic
plans:
  - name: basic
    rate_limits:
      default: 30
      reports: 5
    features: []
  - name: premium
    rate_limits:
      default: 300
      reports: 30
    features: [reports, prescriptions]
tenants:
  farmacia-centro: premium
  demo: basic
`

func main() {
	logger, err := logging.New("debug", "console")
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	catalog, err := tier.ParseCatalog([]byte(demoCatalog))
	if err != nil {
		logger.Fatal("invalid demo catalog", zap.Error(err))
	}
	cache, err := tier.NewCached(catalog, 30*time.Second, 1000)
	if err != nil {
		logger.Fatal("failed to build tier cache", zap.Error(err))
	}
	tiers := tier.NewLookup(cache, tier.WithLookupLogger(logger))

	store := infra.NewWindowStore(infra.WithMaxKeys(1000))
	stats := infra.NewMemoryStatsStore(infra.WithTrackTenants(true))

	// Exemplo: JWT_SECRET vazio deixa a autenticação desligada.
	authn := auth.NewAuthenticator(os.Getenv("JWT_SECRET"), auth.WithLogger(logger))

	p := pipeline.New(pipeline.Options{
		Logger:      logger,
		Concurrency: ratelimit.ConcurrencyOptions{Max: 50},
		Tenant:      tenant.Options{EchoHeader: true},
		Auth:        authn,
		Tiers:       tiers,
		RateLimit:   pipeline.RateLimitOptions{Enabled: true, Store: store, AddHeaders: true},
		Stats:       stats,
	})

	rt := router.New(p)
	routes := []router.Route{
		{Name: "inventory.list", Method: http.MethodGet, Path: "/api/inventory", Handler: reply("inventory")},
		{Name: "sales.create", Method: http.MethodPost, Path: "/api/sales", Roles: []string{"cashier", "admin"}, Handler: reply("sale registered")},
		{Name: "reports.get", Method: http.MethodGet, Path: "/api/reports/{kind}", Feature: "reports", Category: "reports", Handler: reply("report")},
		{Name: "prescriptions.list", Method: http.MethodGet, Path: "/api/prescriptions", Feature: "prescriptions", Handler: reply("prescriptions")},
		{Name: "admin.usage", Method: http.MethodGet, Path: "/admin/usage/{tenant}", Roles: []string{"admin"},
			Handler: router.UsageHandler(router.UsageOptions{Windows: store, Tiers: tiers, Logger: logger})},
	}
	for _, r := range routes {
		if err := rt.Handle(r); err != nil {
			logger.Fatal("failed to register route", zap.String("route", r.Name), zap.Error(err))
		}
	}
	if err := rt.HandleUngated(router.Route{Name: "healthz", Method: http.MethodGet, Path: "/healthz", Handler: router.Healthz()}); err != nil {
		logger.Fatal("failed to register healthz", zap.Error(err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sched := scheduler.New(logger)
	for _, j := range []scheduler.Job{
		scheduler.WindowSweepJob("@every 1m", store, nil, logger),
		scheduler.TierCachePurgeJob("@every 5m", cache, logger),
		scheduler.UsageReportJob("@every 1m", stats, logger),
	} {
		if err := sched.Register(j); err != nil {
			logger.Fatal("failed to register job", zap.Error(err))
		}
	}
	if err := sched.Start(ctx); err != nil {
		logger.Fatal("failed to start scheduler", zap.Error(err))
	}
	defer sched.Stop()

	addr := ":8081"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           rt,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("example server listening", zap.String("addr", addr), zap.Bool("auth", authn.Enabled()))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", zap.Error(err))
	}
}

func reply(what string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respond.JSON(w, http.StatusOK, map[string]any{
			"success": true,
			"tenant":  tenant.FromContext(r.Context()),
			"data":    what,
		})
	})
}
