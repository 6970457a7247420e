package tier

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Resultados reportados ao Observer.
const (
	ResultHit      = "ok"
	ResultNotFound = "not_found"
	ResultError    = "error"
)

// Observer recebe a latência de cada lookup (ex.: métricas Prometheus).
type Observer interface {
	ObserveLookup(op, result string, d time.Duration)
}

// Lookup adapta um ProfileSource para Service.
type Lookup struct {
	src      ProfileSource
	observer Observer
	logger   *zap.Logger
}

type LookupOption func(*Lookup)

func WithObserver(o Observer) LookupOption {
	return func(l *Lookup) { l.observer = o }
}

func WithLookupLogger(logger *zap.Logger) LookupOption {
	return func(l *Lookup) { l.logger = logger }
}

func NewLookup(src ProfileSource, opts ...LookupOption) *Lookup {
	l := &Lookup{src: src, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

var _ Service = (*Lookup)(nil)

// GetRateLimit responde limite 0 para tenant desconhecido ou categoria sem
// limite no plano. Só indisponibilidade da fonte volta como erro, e apenas ela
// passa pela política de falha dos estágios.
func (l *Lookup) GetRateLimit(ctx context.Context, tenantID, category string) (int, error) {
	p, err := l.profile(ctx, "rate_limit", tenantID)
	if errors.Is(err, ErrTenantNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n, ok := p.Limit(category)
	if !ok {
		l.logger.Warn("no rate limit for category, denying",
			zap.String("tenant_id", tenantID),
			zap.String("plan", p.Plan),
			zap.String("category", category))
		return 0, nil
	}
	return n, nil
}

// HasFeature responde false para tenant desconhecido.
func (l *Lookup) HasFeature(ctx context.Context, tenantID, feature string) (bool, error) {
	p, err := l.profile(ctx, "feature", tenantID)
	if errors.Is(err, ErrTenantNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return p.Has(feature), nil
}

func (l *Lookup) profile(ctx context.Context, op, tenantID string) (Profile, error) {
	start := time.Now()
	p, err := l.src.Profile(ctx, tenantID)

	result := ResultHit
	switch {
	case errors.Is(err, ErrTenantNotFound):
		result = ResultNotFound
	case err != nil:
		result = ResultError
	}
	if l.observer != nil {
		l.observer.ObserveLookup(op, result, time.Since(start))
	}
	switch {
	case result == ResultNotFound:
		l.logger.Warn("unknown tenant, applying empty plan",
			zap.String("tenant_id", tenantID),
			zap.String("op", op))
	case err != nil:
		l.logger.Debug("tier lookup failed",
			zap.String("tenant_id", tenantID),
			zap.String("op", op),
			zap.Error(err))
	}
	return p, err
}
