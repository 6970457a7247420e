// Package metrics provides Prometheus metrics for the gateway.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"tenant-gateway/middleware/ratelimit/domain"
	"tenant-gateway/middleware/route"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Outcomes de uma decisão de gating.
const (
	OutcomeAllowed      = "allowed"
	OutcomeDenied       = "denied"
	OutcomeFailedOpen   = "failed_open"
	OutcomeFailedClosed = "failed_closed"
)

var latencyBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// Metrics holds all Prometheus metrics.
type Metrics struct {
	gateDecisions      *prometheus.CounterVec
	tierLookupDuration *prometheus.HistogramVec
	requestsTotal      *prometheus.CounterVec
	requestDuration    *prometheus.HistogramVec
	requestsInFlight   prometheus.Gauge
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		gateDecisions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_gate_decisions_total",
				Help: "Gating decisions by stage and outcome",
			},
			[]string{"stage", "outcome"},
		),
		tierLookupDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_tier_lookup_duration_seconds",
				Help:    "Tier lookup duration in seconds",
				Buckets: latencyBuckets,
			},
			[]string{"op", "result"},
		),
		requestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		requestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: latencyBuckets,
			},
			[]string{"method", "route"},
		),
		requestsInFlight: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "gateway_http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
		),
	}
}

// RecordDecision conta uma decisão de um estágio.
func (m *Metrics) RecordDecision(stage, outcome string) {
	m.gateDecisions.WithLabelValues(stage, outcome).Inc()
}

// ObserveLookup implementa tier.Observer.
func (m *Metrics) ObserveLookup(op, result string, d time.Duration) {
	m.tierLookupDuration.WithLabelValues(op, result).Observe(d.Seconds())
}

// RecordHTTPRequest records metrics for an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, routeName string, statusCode int, d time.Duration) {
	m.requestsTotal.WithLabelValues(method, routeName, strconv.Itoa(statusCode)).Inc()
	m.requestDuration.WithLabelValues(method, routeName).Observe(d.Seconds())
}

// Middleware registra as métricas HTTP usando o nome da rota como label.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.requestsInFlight.Inc()
		defer m.requestsInFlight.Dec()

		start := time.Now()
		rw := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		m.RecordHTTPRequest(r.Method, route.Name(r), rw.statusCode, time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *statusRecorder) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// StatsStore publica os eventos de gating como contadores Prometheus.
// Tenant e path ficam de fora dos labels.
type StatsStore struct {
	m *Metrics
}

func NewStatsStore(m *Metrics) *StatsStore { return &StatsStore{m: m} }

func (s *StatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	s.m.RecordDecision(ev.Stage, Outcome(ev.Allowed, ev.Degraded))
	return nil
}

func Outcome(allowed, degraded bool) string {
	switch {
	case degraded && allowed:
		return OutcomeFailedOpen
	case degraded:
		return OutcomeFailedClosed
	case allowed:
		return OutcomeAllowed
	default:
		return OutcomeDenied
	}
}

// Server provides a separate HTTP server for Prometheus metrics.
type Server struct {
	server *http.Server
	logger *zap.Logger
}

func NewServer(addr, path string, g prometheus.Gatherer, logger *zap.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(g, promhttp.HandlerOpts{}))

	return &Server{
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Start bloqueia até o Shutdown; retorna nil quando encerrado normalmente.
func (s *Server) Start() error {
	s.logger.Info("starting metrics server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
