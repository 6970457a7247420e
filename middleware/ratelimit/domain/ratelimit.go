package domain

// Camada de domínio do rate limit.
//
// Algoritmo: janela fixa por chave (tenant + categoria). Rajadas na borda da
// janela são uma limitação aceita.

import (
	"context"
	"time"
)

type TenantID string

// Key identifica um contador de janela.
type Key string

// DefaultCategory é a categoria de limite usada quando a rota não declara uma.
const DefaultCategory = "default"

// DefaultWindow é o comprimento fixo da janela.
const DefaultWindow = time.Minute

// KeyFor monta a chave do contador. Na categoria padrão a chave é o próprio
// tenant, então um deployment com uma só categoria conta apenas por tenant.
func KeyFor(tenant TenantID, category string) Key {
	if category == "" || category == DefaultCategory {
		return Key(tenant)
	}
	return Key(string(tenant) + "|" + category)
}

// Window é o estado de um contador após um incremento.
type Window struct {
	Start time.Time
	Count int64
}

// Expired informa se now já está fora da janela iniciada em w.Start.
func (w Window) Expired(now time.Time, length time.Duration) bool {
	return now.Sub(w.Start) >= length
}

// CounterStore guarda uma janela por chave.
//
// Increment é um único read-modify-write atômico: se não há janela para a chave,
// ou a janela existente expirou (now - start >= length), inicia uma nova com
// count = 1; caso contrário incrementa. Nenhum incremento pode ser perdido sob
// concorrência.
type CounterStore interface {
	Increment(ctx context.Context, key Key, now time.Time, length time.Duration) (Window, error)
}

// WindowReader lê a janela ativa sem incrementar (introspecção/admin).
// ok == false quando não há janela ou ela já expirou.
type WindowReader interface {
	Peek(ctx context.Context, key Key, now time.Time, length time.Duration) (w Window, ok bool, err error)
}

// LimitSource fornece o limite numérico do tier do tenant para uma categoria.
// A latência é opaca para o core; a implementação pode usar cache.
type LimitSource interface {
	GetRateLimit(ctx context.Context, tenantID, category string) (int, error)
}

type Decision struct {
	Allowed bool
	// RetryAfter é o valor a ser retornado em Retry-After quando bloquear.
	// Se 0, não há recomendação.
	RetryAfter time.Duration

	Limit     int
	Count     int64
	WindowEnd time.Time

	// Err é preenchido quando o limite ou o contador não puderam ser obtidos.
	// Nesse caso Allowed reflete a política de falha (open/closed).
	Err error
}

func (d Decision) Remaining() int {
	if d.Count >= int64(d.Limit) {
		return 0
	}
	return d.Limit - int(d.Count)
}
