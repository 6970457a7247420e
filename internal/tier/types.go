// Package tier resolve o plano (tier) de um tenant: limites de requisição por
// categoria e features habilitadas.
//
// As fontes (catálogo YAML, assinaturas no Postgres, serviço de billing remoto)
// implementam ProfileSource; Lookup adapta qualquer uma delas para a interface
// Service consumida pelos estágios de gating.
package tier

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
)

var (
	// ErrTenantNotFound indica que a fonte não conhece o tenant e não há plano padrão.
	ErrTenantNotFound = errors.New("tenant not found")
	// ErrUnavailable indica falha da fonte (rede, banco, catálogo inconsistente).
	ErrUnavailable = errors.New("tier lookup unavailable")
)

// DefaultCategory é a categoria usada quando a rota não declara uma.
const DefaultCategory = "default"

// Profile descreve o plano de um tenant. É somente leitura durante o request.
type Profile struct {
	Plan       string         `json:"plan"`
	RateLimits map[string]int `json:"rate_limits"`
	Features   []string       `json:"features"`
}

// Limit retorna o limite por minuto da categoria, caindo para a categoria
// "default" do plano quando a categoria não é declarada.
func (p Profile) Limit(category string) (int, bool) {
	if category == "" {
		category = DefaultCategory
	}
	if n, ok := p.RateLimits[category]; ok {
		return n, true
	}
	n, ok := p.RateLimits[DefaultCategory]
	return n, ok
}

// Has faz match exato do nome da feature.
func (p Profile) Has(feature string) bool {
	return slices.Contains(p.Features, feature)
}

// Service é o contrato usado pelo rate limit e pelo feature gate.
type Service interface {
	GetRateLimit(ctx context.Context, tenantID, category string) (int, error)
	HasFeature(ctx context.Context, tenantID, feature string) (bool, error)
}

type ProfileSource interface {
	Profile(ctx context.Context, tenantID string) (Profile, error)
}

// FailurePolicy define o que os estágios fazem quando o lookup falha.
// A política é aplicada pelo estágio, nunca pela fonte.
type FailurePolicy string

const (
	PolicyClosed FailurePolicy = "closed"
	PolicyOpen   FailurePolicy = "open"
)

func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch FailurePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyClosed:
		return PolicyClosed, nil
	case PolicyOpen:
		return PolicyOpen, nil
	default:
		return "", fmt.Errorf("invalid failure policy %q (want %q or %q)", s, PolicyClosed, PolicyOpen)
	}
}

func (p FailurePolicy) FailOpen() bool { return p == PolicyOpen }
