package domain

import (
	"context"
	"time"
)

// Estágios do pipeline que geram eventos de decisão.
const (
	StageRateLimit   = "ratelimit"
	StageFeatureGate = "featuregate"
)

// StatsEvent representa uma decisão de um estágio de gating.
//
// Method/Path são strings genéricas (agnósticas de HTTP). Cuidado com
// cardinalidade ao persistir Tenant/Path em Redis/Prometheus.
type StatsEvent struct {
	Tenant  TenantID
	Stage   string
	Allowed bool
	// Degraded marca decisões tomadas pela política de falha (lookup indisponível).
	Degraded bool

	Method string
	Path   string

	At time.Time
}

// StatsStore é a estratégia de persistência para estatísticas de gating.
//
// O middleware trata erro como best-effort (não derruba o request).
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}
