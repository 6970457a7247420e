package application

import (
	"context"
	"sync"
	"time"

	"tenant-gateway/middleware/ratelimit/domain"
)

// ConcurrencyService concentra a regra de aquisição/liberação de vagas em voo,
// sem saber nada sobre HTTP.
type ConcurrencyService struct {
	Pool domain.SlotPool
	// AcquireTimeout:
	//   < 0  não espera (falha imediata se não há vaga)
	//   = 0  espera até o ctx do request encerrar
	//   > 0  espera até o timeout
	AcquireTimeout time.Duration
}

// Acquire retorna (release, ok). Se ok=false, nenhuma vaga foi adquirida.
// O release retornado é idempotente.
func (s ConcurrencyService) Acquire(ctx context.Context) (func(), bool) {
	if s.Pool == nil {
		return func() {}, true
	}

	var (
		release func()
		ok      bool
	)
	switch {
	case s.AcquireTimeout < 0:
		tryCtx, cancel := context.WithCancel(ctx)
		cancel()
		release, ok = s.Pool.Acquire(tryCtx)
	case s.AcquireTimeout == 0:
		release, ok = s.Pool.Acquire(ctx)
	default:
		acqCtx, cancel := context.WithTimeout(ctx, s.AcquireTimeout)
		release, ok = s.Pool.Acquire(acqCtx)
		cancel()
	}
	if !ok {
		return nil, false
	}

	var once sync.Once
	return func() { once.Do(release) }, true
}
