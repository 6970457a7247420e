// Package route carrega no context os requisitos declarados por um endpoint
// (feature exigida, categoria de rate limit, papéis permitidos).
//
// O requisito é preenchido no registro da rota (tabela de rotas), sem reflexão
// em runtime. Os estágios do pipeline (auth, featuregate, ratelimit) apenas leem.
package route

import (
	"context"
	"net/http"
)

type ctxKey struct{}

// Requirement é imutável depois do registro da rota.
type Requirement struct {
	Name     string
	Feature  string
	Category string
	Roles    []string
}

func WithRequirement(ctx context.Context, req Requirement) context.Context {
	return context.WithValue(ctx, ctxKey{}, req)
}

func FromContext(ctx context.Context) (Requirement, bool) {
	req, ok := ctx.Value(ctxKey{}).(Requirement)
	return req, ok
}

// Feature retorna a feature exigida pela rota ("" quando não há requisito).
func Feature(r *http.Request) string {
	req, _ := FromContext(r.Context())
	return req.Feature
}

func Category(r *http.Request) string {
	req, _ := FromContext(r.Context())
	return req.Category
}

func Roles(r *http.Request) []string {
	req, _ := FromContext(r.Context())
	return req.Roles
}

// Name é usado como label de métricas/logs (evita cardinalidade por path).
func Name(r *http.Request) string {
	req, ok := FromContext(r.Context())
	if !ok || req.Name == "" {
		return "unmatched"
	}
	return req.Name
}
