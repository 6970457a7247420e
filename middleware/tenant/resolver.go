package tenant

import (
	"context"
	"net/http"
	"strings"

	"tenant-gateway/middleware/respond"

	"go.uber.org/zap"
)

const (
	DefaultHeader     = "X-Tenant-Id"
	DefaultQueryParam = "tenantId"
	DefaultTenant     = "default"
)

// Source indica de onde o tenant foi extraído.
type Source string

const (
	SourceHeader  Source = "header"
	SourceQuery   Source = "query"
	SourceDefault Source = "default"
)

type Resolver struct {
	Header     string
	QueryParam string
	Default    string
}

func NewResolver() Resolver {
	return Resolver{Header: DefaultHeader, QueryParam: DefaultQueryParam, Default: DefaultTenant}
}

func (res Resolver) withDefaults() Resolver {
	if res.Header == "" {
		res.Header = DefaultHeader
	}
	if res.QueryParam == "" {
		res.QueryParam = DefaultQueryParam
	}
	if res.Default == "" {
		res.Default = DefaultTenant
	}
	return res
}

// Resolve nunca falha: sem header nem query, retorna o tenant padrão.
func (res Resolver) Resolve(r *http.Request) (string, Source) {
	res = res.withDefaults()

	if v := strings.TrimSpace(r.Header.Get(res.Header)); v != "" {
		return v, SourceHeader
	}
	if r.URL != nil {
		if v := strings.TrimSpace(r.URL.Query().Get(res.QueryParam)); v != "" {
			return v, SourceQuery
		}
	}
	return res.Default, SourceDefault
}

type ctxKey struct{}

func WithTenant(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext retorna o tenant resolvido; vazio se o middleware não rodou.
func FromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

type Options struct {
	Resolver Resolver
	// RequireExplicit rejeita (400) requests sem header/query de tenant em vez
	// de usar o tenant padrão.
	RequireExplicit bool
	// EchoHeader devolve o tenant resolvido no header de resposta.
	EchoHeader bool
	Logger     *zap.Logger
}

func Middleware(opts Options) func(next http.Handler) http.Handler {
	res := opts.Resolver.withDefaults()
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, src := res.Resolve(r)
			if src == SourceDefault {
				if opts.RequireExplicit {
					logger.Warn("request without tenant rejected",
						zap.String("path", r.URL.Path),
						zap.String("request_id", r.Header.Get("X-Request-ID")),
					)
					respond.Error(w, http.StatusBadRequest, respond.MsgTenantRequired)
					return
				}
				logger.Debug("request without tenant, using default bucket",
					zap.String("tenant_id", id),
					zap.String("path", r.URL.Path),
				)
			}

			if opts.EchoHeader {
				w.Header().Set(res.Header, id)
			}
			next.ServeHTTP(w, r.WithContext(WithTenant(r.Context(), id)))
		})
	}
}
