// Package router registra a tabela de rotas do gateway sobre gorilla/mux.
//
// Cada rota declara explicitamente feature, categoria de rate limit e papéis;
// o requisito vai no context do request antes de qualquer estágio rodar.
package router

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"tenant-gateway/internal/pipeline"
	"tenant-gateway/middleware/respond"
	"tenant-gateway/middleware/route"

	"github.com/gorilla/mux"
)

// Nomes das rotas internas.
const (
	RouteNotFound         = "not_found"
	RouteMethodNotAllowed = "method_not_allowed"
)

type Route struct {
	Name string
	// Method vazio aceita qualquer método.
	Method string
	// Exatamente um entre Path (template do mux, ex.: /api/sales/{id}) e PathPrefix.
	Path       string
	PathPrefix string

	Feature  string
	Category string
	Roles    []string

	Handler http.Handler
}

func (r Route) requirement() route.Requirement {
	return route.Requirement{Name: r.Name, Feature: r.Feature, Category: r.Category, Roles: r.Roles}
}

func (r Route) validate() error {
	if r.Name == "" {
		return errors.New("route name is required")
	}
	if (r.Path == "") == (r.PathPrefix == "") {
		return fmt.Errorf("route %q must set exactly one of Path or PathPrefix", r.Name)
	}
	if r.Handler == nil {
		return fmt.Errorf("route %q has no handler", r.Name)
	}
	return nil
}

type Router struct {
	mux      *mux.Router
	pipeline *pipeline.Pipeline
	names    map[string]bool
}

func New(p *pipeline.Pipeline) *Router {
	m := mux.NewRouter()
	m.NotFoundHandler = withRequirement(route.Requirement{Name: RouteNotFound},
		p.Observe(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			respond.Error(w, http.StatusNotFound, respond.MsgNotFound)
		})))
	m.MethodNotAllowedHandler = withRequirement(route.Requirement{Name: RouteMethodNotAllowed},
		p.Observe(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			respond.Error(w, http.StatusMethodNotAllowed, respond.MsgMethodNotAllowed)
		})))

	return &Router{mux: m, pipeline: p, names: make(map[string]bool)}
}

// Handle registra uma rota atrás do pipeline completo.
func (rt *Router) Handle(r Route) error {
	if err := r.validate(); err != nil {
		return err
	}
	return rt.register(r, rt.pipeline.Wrap(r.Handler))
}

// HandleUngated registra uma rota só com os middlewares de observabilidade
// (ex.: /healthz).
func (rt *Router) HandleUngated(r Route) error {
	if err := r.validate(); err != nil {
		return err
	}
	return rt.register(r, rt.pipeline.Observe(r.Handler))
}

func (rt *Router) register(r Route, h http.Handler) error {
	if rt.names[r.Name] {
		return fmt.Errorf("duplicate route name %q", r.Name)
	}
	rt.names[r.Name] = true

	mr := rt.mux.NewRoute().Name(r.Name)
	if r.Path != "" {
		mr = mr.Path(r.Path)
	} else {
		mr = mr.PathPrefix(r.PathPrefix)
	}
	if m := strings.TrimSpace(r.Method); m != "" && m != "*" {
		mr = mr.Methods(strings.ToUpper(m))
	}
	if err := mr.GetError(); err != nil {
		return fmt.Errorf("route %q: %w", r.Name, err)
	}
	mr.Handler(withRequirement(r.requirement(), h))
	return nil
}

func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rt.mux.ServeHTTP(w, r)
}

func withRequirement(req route.Requirement, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(route.WithRequirement(r.Context(), req)))
	})
}
