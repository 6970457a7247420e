package tenant

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestResolve_PrefersHeaderWhenSet(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "http://example/?tenantId=from-query", nil)
	r.Header.Set("X-Tenant-Id", " acme ")

	id, src := NewResolver().Resolve(r)
	if id != "acme" || src != SourceHeader {
		t.Fatalf("expected header tenant, got %q (%s)", id, src)
	}
}

func TestResolve_BlankHeaderFallsBackToQuery(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "http://example/?tenantId=globex", nil)
	r.Header.Set("X-Tenant-Id", "   ")

	id, src := NewResolver().Resolve(r)
	if id != "globex" || src != SourceQuery {
		t.Fatalf("expected query tenant, got %q (%s)", id, src)
	}
}

func TestResolve_NoSignalUsesDefaultTenant(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)

	id, src := Resolver{}.Resolve(r)
	if id != DefaultTenant || src != SourceDefault {
		t.Fatalf("expected default tenant, got %q (%s)", id, src)
	}
}

func TestResolve_CustomNames(t *testing.T) {
	res := Resolver{Header: "X-Org", QueryParam: "org", Default: "shared"}

	r := httptest.NewRequest(http.MethodGet, "http://example/?org=o1", nil)
	if id, _ := res.Resolve(r); id != "o1" {
		t.Fatalf("expected o1, got %q", id)
	}

	r = httptest.NewRequest(http.MethodGet, "http://example/", nil)
	if id, _ := res.Resolve(r); id != "shared" {
		t.Fatalf("expected shared, got %q", id)
	}
}

func TestMiddleware_StoresTenantInContext(t *testing.T) {
	var got string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	h := Middleware(Options{EchoHeader: true})(next)

	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	r.Header.Set("X-Tenant-Id", "acme")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got != "acme" {
		t.Fatalf("expected acme in context, got %q", got)
	}
	if echo := w.Header().Get("X-Tenant-Id"); echo != "acme" {
		t.Fatalf("expected echoed tenant header, got %q", echo)
	}
}

func TestMiddleware_RequireExplicitRejectsDefault(t *testing.T) {
	calls := 0
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { calls++ })

	h := Middleware(Options{RequireExplicit: true})(next)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "http://example/", nil))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if calls != 0 {
		t.Fatalf("expected next not to be called")
	}
}
