package domain

import "context"

// SlotPool limita requests em voo no processo inteiro.
//
// Acquire bloqueia até conseguir uma vaga ou até o ctx encerrar. A função de
// release retornada deve ser chamada exatamente uma vez.
type SlotPool interface {
	Acquire(ctx context.Context) (release func(), ok bool)
	Capacity() int
}
