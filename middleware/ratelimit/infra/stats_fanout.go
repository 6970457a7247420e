package infra

import (
	"context"
	"errors"

	"tenant-gateway/middleware/ratelimit/domain"
)

type fanOut []domain.StatsStore

// FanOut grava o mesmo evento em vários StatsStore. Stores nil são ignorados;
// sem stores válidos retorna nil.
func FanOut(stores ...domain.StatsStore) domain.StatsStore {
	out := make(fanOut, 0, len(stores))
	for _, s := range stores {
		if s != nil {
			out = append(out, s)
		}
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	}
	return out
}

func (f fanOut) Record(ctx context.Context, ev domain.StatsEvent) error {
	var errs []error
	for _, s := range f {
		if err := s.Record(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
