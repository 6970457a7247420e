package infra

import (
	"context"
	"sort"
	"sync"

	"tenant-gateway/middleware/ratelimit/domain"
)

type Counters struct {
	Allowed  int64
	Denied   int64
	Degraded int64
}

func (c *Counters) add(ev domain.StatsEvent) {
	if ev.Allowed {
		c.Allowed++
	} else {
		c.Denied++
	}
	if ev.Degraded {
		c.Degraded++
	}
}

// MemoryStatsStore é uma implementação simples em memória.
// Útil para testes, desenvolvimento e para o relatório periódico de uso.
//
// Não faz expiração; Reset zera tudo (usado após cada relatório).
type MemoryStatsStore struct {
	mu       sync.Mutex
	total    Counters
	byStage  map[string]Counters
	byTenant map[domain.TenantID]Counters

	trackTenants bool
}

type MemoryStatsOption func(*MemoryStatsStore)

func WithTrackTenants(track bool) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.trackTenants = track }
}

func NewMemoryStatsStore(opts ...MemoryStatsOption) *MemoryStatsStore {
	s := &MemoryStatsStore{
		byStage:  make(map[string]Counters),
		byTenant: make(map[domain.TenantID]Counters),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total.add(ev)

	c := s.byStage[ev.Stage]
	c.add(ev)
	s.byStage[ev.Stage] = c

	if s.trackTenants {
		k := s.byTenant[ev.Tenant]
		k.add(ev)
		s.byTenant[ev.Tenant] = k
	}
	return nil
}

func (s *MemoryStatsStore) Total() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

func (s *MemoryStatsStore) ByStage() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Counters, len(s.byStage))
	for k, v := range s.byStage {
		out[k] = v
	}
	return out
}

func (s *MemoryStatsStore) ByTenant() map[domain.TenantID]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[domain.TenantID]Counters, len(s.byTenant))
	for k, v := range s.byTenant {
		out[k] = v
	}
	return out
}

// TenantUsage é uma linha do relatório de uso, ordenada por tenant.
type TenantUsage struct {
	Tenant domain.TenantID
	Counters
}

// Drain retorna o uso por tenant acumulado desde o último Drain e zera os contadores.
func (s *MemoryStatsStore) Drain() []TenantUsage {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]TenantUsage, 0, len(s.byTenant))
	for k, v := range s.byTenant {
		out = append(out, TenantUsage{Tenant: k, Counters: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tenant < out[j].Tenant })

	s.total = Counters{}
	s.byStage = make(map[string]Counters)
	s.byTenant = make(map[domain.TenantID]Counters)
	return out
}
