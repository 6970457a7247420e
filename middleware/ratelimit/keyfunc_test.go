package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"tenant-gateway/middleware/ratelimit/domain"
	"tenant-gateway/middleware/route"
	"tenant-gateway/middleware/tenant"
)

func TestDefaultTenantFunc_ReadsResolvedTenant(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	r = r.WithContext(tenant.WithTenant(r.Context(), "acme"))

	if got := DefaultTenantFunc(r); got != "acme" {
		t.Fatalf("expected acme, got %q", got)
	}
}

func TestDefaultTenantFunc_FallbacksToDefaultTenant(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)

	if got := DefaultTenantFunc(r); got != tenant.DefaultTenant {
		t.Fatalf("expected default tenant, got %q", got)
	}
}

func TestDefaultCategoryFunc_UsesRouteCategory(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	if got := DefaultCategoryFunc(r); got != domain.DefaultCategory {
		t.Fatalf("expected default category, got %q", got)
	}

	r = r.WithContext(route.WithRequirement(r.Context(), route.Requirement{Category: "reports"}))
	if got := DefaultCategoryFunc(r); got != "reports" {
		t.Fatalf("expected reports, got %q", got)
	}
}
