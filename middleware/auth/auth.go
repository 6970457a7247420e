// Package auth valida bearer tokens (JWT HS256) e aplica os papéis declarados
// pela rota.
//
// Sem segredo configurado o Authenticator é pass-through (ambiente de dev).
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"tenant-gateway/middleware/respond"
	"tenant-gateway/middleware/route"
	"tenant-gateway/middleware/tenant"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid bearer token")
)

// Claims carregadas pelo token emitido pelo serviço de identidade.
type Claims struct {
	TenantID string   `json:"tenant_id,omitempty"`
	Roles    []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

type Principal struct {
	Subject  string
	TenantID string
	Roles    []string
}

func (p Principal) HasAnyRole(roles ...string) bool {
	for _, r := range roles {
		if slices.Contains(p.Roles, r) {
			return true
		}
	}
	return false
}

type ctxKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(Principal)
	return p, ok
}

type Authenticator struct {
	secret []byte
	issuer string
	leeway time.Duration
	logger *zap.Logger
}

type Option func(*Authenticator)

func WithIssuer(iss string) Option { return func(a *Authenticator) { a.issuer = iss } }

func WithLeeway(d time.Duration) Option { return func(a *Authenticator) { a.leeway = d } }

func WithLogger(l *zap.Logger) Option { return func(a *Authenticator) { a.logger = l } }

func NewAuthenticator(secret string, opts ...Option) *Authenticator {
	a := &Authenticator{secret: []byte(secret), logger: zap.NewNop()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Authenticator) Enabled() bool { return len(a.secret) > 0 }

// Parse valida o token e devolve o principal.
func (a *Authenticator) Parse(raw string) (Principal, error) {
	if raw == "" {
		return Principal{}, ErrMissingToken
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if a.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(a.issuer))
	}
	if a.leeway > 0 {
		parserOpts = append(parserOpts, jwt.WithLeeway(a.leeway))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, parserOpts...)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid {
		return Principal{}, ErrInvalidToken
	}

	return Principal{
		Subject:  claims.Subject,
		TenantID: claims.TenantID,
		Roles:    claims.Roles,
	}, nil
}

// Sign emite um token para o principal; usado por ferramentas de dev e testes.
func (a *Authenticator) Sign(p Principal, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		TenantID: p.TenantID,
		Roles:    p.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.Subject,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func bearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) < 7 || !strings.EqualFold(h[:7], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

// Middleware autentica o request. Um token com tenant_id diferente do tenant
// resolvido é rejeitado (403).
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		p, err := a.Parse(bearerToken(r))
		if err != nil {
			a.logger.Warn("authentication failed",
				zap.String("path", r.URL.Path),
				zap.String("request_id", r.Header.Get("X-Request-ID")),
				zap.Error(err),
			)
			w.Header().Set("WWW-Authenticate", `Bearer realm="gateway"`)
			respond.Error(w, http.StatusUnauthorized, respond.MsgUnauthorized)
			return
		}

		if resolved := tenant.FromContext(r.Context()); p.TenantID != "" && resolved != "" && p.TenantID != resolved {
			a.logger.Warn("token tenant mismatch",
				zap.String("tenant_id", resolved),
				zap.String("token_tenant_id", p.TenantID),
				zap.String("subject", p.Subject),
			)
			respond.Error(w, http.StatusForbidden, respond.MsgTenantMismatch)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

// Authorize exige que o principal tenha um dos papéis declarados na rota.
// Rota sem papéis aceita qualquer chamador autenticado; sem principal no
// context (autenticação desligada) não há o que checar.
func Authorize(logger *zap.Logger) func(next http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			roles := route.Roles(r)
			p, ok := PrincipalFromContext(r.Context())
			if len(roles) == 0 || !ok {
				next.ServeHTTP(w, r)
				return
			}
			if !p.HasAnyRole(roles...) {
				logger.Warn("authorization denied",
					zap.String("subject", p.Subject),
					zap.Strings("required_roles", roles),
					zap.String("route", route.Name(r)),
				)
				respond.Error(w, http.StatusForbidden, respond.MsgForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
