// Command gateway é o reverse proxy multi-tenant na frente do backend: resolve o
// tenant, autentica, aplica feature gate e rate limit por tier e encaminha.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"tenant-gateway/internal/config"
	"tenant-gateway/internal/logging"
	"tenant-gateway/internal/metrics"
	"tenant-gateway/internal/pipeline"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("gateway stopped with error", zap.Error(err))
	}
	logger.Info("gateway shutdown complete")
}

func run(cfg *config.Config, logger *zap.Logger) error {
	if cfg.Upstream.URL == "" {
		return errors.New("upstream url is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(reg)

	deps, err := wire(ctx, cfg, m, logger)
	if err != nil {
		return err
	}
	defer deps.Close()

	p := pipeline.New(pipeline.Options{
		Logger:      logger,
		Metrics:     m,
		Concurrency: concurrencyOptions(cfg),
		Tenant:      tenantOptions(cfg),
		Auth:        authenticator(cfg, logger),
		Tiers:       deps.tiers,
		RateLimit: pipeline.RateLimitOptions{
			Enabled:    cfg.RateLimit.Enabled,
			Store:      deps.counters,
			Window:     cfg.RateLimit.Window,
			RetryAfter: cfg.RateLimit.RetryAfter,
			AddHeaders: cfg.RateLimit.AddHeaders,
		},
		Stats:    deps.stats,
		FailOpen: cfg.FailOpen(),
	})

	proxy, err := newProxy(cfg.Upstream.URL, logger)
	if err != nil {
		return err
	}
	rt, err := buildRouter(cfg, p, proxy, deps, logger)
	if err != nil {
		return err
	}

	sched, err := buildScheduler(cfg, deps, logger)
	if err != nil {
		return err
	}
	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer sched.Stop()

	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           rt,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("gateway listening",
			zap.String("addr", cfg.Server.ListenAddr),
			zap.String("upstream", cfg.Upstream.URL),
			zap.String("rate_limit_backend", cfg.RateLimit.Backend),
			zap.String("tier_source", cfg.Tier.Source),
			zap.Bool("fail_open", cfg.FailOpen()),
			zap.Int("routes", len(cfg.Routes)),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	var ms *metrics.Server
	if cfg.Metrics.Enabled {
		ms = metrics.NewServer(cfg.Metrics.ListenAddr, cfg.Metrics.Path, reg, logger)
		g.Go(ms.Start)
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("initiating graceful shutdown")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http server shutdown: %w", err))
		}
		if ms != nil {
			if err := ms.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("metrics server shutdown: %w", err))
			}
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}
