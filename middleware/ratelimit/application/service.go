package application

import (
	"context"
	"fmt"
	"time"

	"tenant-gateway/middleware/ratelimit/domain"

	"github.com/benbjohnson/clock"
)

// DefaultRetryAfter é a dica fixa de retry; não é o tempo restante real da janela.
const DefaultRetryAfter = 60 * time.Second

// Service concentra a regra de aplicação do rate limit.
//
// Ele não sabe nada sobre HTTP (headers/status), apenas retorna uma decisão.
// Lookup de limite e incremento do contador são operações independentes,
// compostas em sequência; nenhum lock é mantido durante o lookup.
type Service struct {
	Store      domain.CounterStore
	Limits     domain.LimitSource
	Window     time.Duration
	RetryAfter time.Duration
	// FailOpen permite o request quando o limite ou o contador falham.
	FailOpen bool
	Clock    clock.Clock
}

func (s Service) Decide(ctx context.Context, tenant domain.TenantID, category string) domain.Decision {
	if s.Store == nil || s.Limits == nil {
		return domain.Decision{Allowed: true}
	}
	if s.Window <= 0 {
		s.Window = domain.DefaultWindow
	}
	if s.RetryAfter <= 0 {
		s.RetryAfter = DefaultRetryAfter
	}
	if s.Clock == nil {
		s.Clock = clock.New()
	}
	if category == "" {
		category = domain.DefaultCategory
	}

	limit, err := s.Limits.GetRateLimit(ctx, string(tenant), category)
	if err != nil {
		return s.degraded(fmt.Errorf("rate limit lookup for tenant %q: %w", tenant, err))
	}

	now := s.Clock.Now()
	w, err := s.Store.Increment(ctx, domain.KeyFor(tenant, category), now, s.Window)
	if err != nil {
		return s.degraded(fmt.Errorf("window increment for tenant %q: %w", tenant, err))
	}

	dec := domain.Decision{
		Allowed:   w.Count <= int64(limit),
		Limit:     limit,
		Count:     w.Count,
		WindowEnd: w.Start.Add(s.Window),
	}
	if !dec.Allowed {
		dec.RetryAfter = s.RetryAfter
	}
	return dec
}

func (s Service) degraded(err error) domain.Decision {
	dec := domain.Decision{Allowed: s.FailOpen, Err: err}
	if !dec.Allowed {
		dec.RetryAfter = s.RetryAfter
	}
	return dec
}
