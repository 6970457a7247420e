package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"tenant-gateway/middleware/ratelimit/domain"
	"tenant-gateway/middleware/ratelimit/infra"
	"tenant-gateway/middleware/respond"
	"tenant-gateway/middleware/tenant"

	"github.com/benbjohnson/clock"
)

// tierLimits devolve o limite por tenant; tenants ausentes usam def.
type tierLimits struct {
	byTenant map[string]int
	def      int
	err      error
}

func (l tierLimits) GetRateLimit(_ context.Context, tenantID, _ string) (int, error) {
	if l.err != nil {
		return 0, l.err
	}
	if v, ok := l.byTenant[tenantID]; ok {
		return v, nil
	}
	return l.def, nil
}

func okHandler(calls *int64) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(calls, 1)
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "ok")
	})
}

// withTenant monta o pipeline mínimo: resolver de tenant + rate limit.
func withTenant(h http.Handler) http.Handler {
	return tenant.Middleware(tenant.Options{})(h)
}

func newRequest(tenantID string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "http://example/api/inventory", nil)
	if tenantID != "" {
		r.Header.Set("X-Tenant-Id", tenantID)
	}
	return r
}

func TestMiddleware_AllowsUpToTierLimitThenRejects(t *testing.T) {
	clk := clock.NewMock()
	var calls int64

	h := withTenant(Middleware(Options{
		Store:  infra.NewWindowStore(),
		Limits: tierLimits{byTenant: map[string]int{"acme": 3}},
		Clock:  clk,
	})(okHandler(&calls)))

	// 4 requests em 10 segundos: allow, allow, allow, reject
	codes := make([]int, 0, 4)
	var last *httptest.ResponseRecorder
	for i := 0; i < 4; i++ {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, newRequest("acme"))
		codes = append(codes, w.Code)
		last = w
		clk.Add(3 * time.Second)
	}

	want := []int{http.StatusOK, http.StatusOK, http.StatusOK, http.StatusTooManyRequests}
	for i := range want {
		if codes[i] != want[i] {
			t.Fatalf("request %d: expected %d, got %d", i+1, want[i], codes[i])
		}
	}
	if got := last.Header().Get("Retry-After"); got != "60" {
		t.Fatalf("expected Retry-After=60, got %q", got)
	}

	var body respond.Body
	if err := json.Unmarshal(last.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Success || body.Message != "Rate limit exceeded for tier" {
		t.Fatalf("unexpected body %+v", body)
	}
	if calls != 3 {
		t.Fatalf("expected next handler to be called 3 times, got %d", calls)
	}
}

func TestMiddleware_WindowResetsAfterOneMinute(t *testing.T) {
	clk := clock.NewMock()
	var calls int64

	h := withTenant(Middleware(Options{
		Store:  infra.NewWindowStore(),
		Limits: tierLimits{byTenant: map[string]int{"acme": 1}},
		Clock:  clk,
	})(okHandler(&calls)))

	w1 := httptest.NewRecorder()
	h.ServeHTTP(w1, newRequest("acme"))
	if w1.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w1.Code)
	}

	clk.Add(61 * time.Second)

	w2 := httptest.NewRecorder()
	h.ServeHTTP(w2, newRequest("acme"))
	if w2.Code != http.StatusOK {
		t.Fatalf("expected 200 after window reset, got %d", w2.Code)
	}
}

func TestMiddleware_NoTenantSignalUsesDefaultBucket(t *testing.T) {
	clk := clock.NewMock()
	store := infra.NewWindowStore()
	var calls int64

	h := withTenant(Middleware(Options{
		Store:  store,
		Limits: tierLimits{def: 1},
		Clock:  clk,
	})(okHandler(&calls)))

	w1 := httptest.NewRecorder()
	h.ServeHTTP(w1, newRequest(""))
	w2 := httptest.NewRecorder()
	h.ServeHTTP(w2, newRequest(""))

	if w1.Code != http.StatusOK || w2.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 200 then 429 on default bucket, got %d and %d", w1.Code, w2.Code)
	}
	win, ok := store.Count(domain.Key(tenant.DefaultTenant), clk.Now())
	if !ok || win.Count != 2 {
		t.Fatalf("expected default bucket count 2, got %+v (ok=%v)", win, ok)
	}
}

func TestMiddleware_TenantsHaveSeparateWindows(t *testing.T) {
	var calls int64
	h := withTenant(Middleware(Options{
		Store:  infra.NewWindowStore(),
		Limits: tierLimits{def: 1},
		Clock:  clock.NewMock(),
	})(okHandler(&calls)))

	for _, id := range []string{"acme", "globex"} {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, newRequest(id))
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200 for %s, got %d", id, w.Code)
		}
	}
}

func TestMiddleware_ConcurrentRequestsCountedExactly(t *testing.T) {
	clk := clock.NewMock()
	store := infra.NewWindowStore()
	var calls int64
	const k = 200

	h := withTenant(Middleware(Options{
		Store:  store,
		Limits: tierLimits{def: k},
		Clock:  clk,
	})(okHandler(&calls)))

	var wg sync.WaitGroup
	wg.Add(k)
	for i := 0; i < k; i++ {
		go func() {
			defer wg.Done()
			w := httptest.NewRecorder()
			h.ServeHTTP(w, newRequest("acme"))
			if w.Code != http.StatusOK {
				t.Errorf("expected 200, got %d", w.Code)
			}
		}()
	}
	wg.Wait()

	win, ok := store.Count("acme", clk.Now())
	if !ok || win.Count != k {
		t.Fatalf("expected final count %d, got %+v", k, win)
	}
	if calls != k {
		t.Fatalf("expected %d calls, got %d", k, calls)
	}
}

func TestMiddleware_LookupFailureFailClosed(t *testing.T) {
	var calls int64
	h := withTenant(Middleware(Options{
		Store:  infra.NewWindowStore(),
		Limits: tierLimits{err: errors.New("billing unreachable")},
		Clock:  clock.NewMock(),
	})(okHandler(&calls)))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, newRequest("acme"))

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	if calls != 0 {
		t.Fatalf("expected next not to be called")
	}
}

func TestMiddleware_LookupFailureFailOpen(t *testing.T) {
	var calls int64
	stats := infra.NewMemoryStatsStore()
	h := withTenant(Middleware(Options{
		Store:    infra.NewWindowStore(),
		Limits:   tierLimits{err: errors.New("billing unreachable")},
		Stats:    stats,
		FailOpen: true,
		Clock:    clock.NewMock(),
	})(okHandler(&calls)))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, newRequest("acme"))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got := stats.Total(); got.Allowed != 1 || got.Degraded != 1 {
		t.Fatalf("expected degraded allow in stats, got %+v", got)
	}
}

func TestMiddleware_AddsRateLimitHeaders(t *testing.T) {
	var calls int64
	h := withTenant(Middleware(Options{
		Store:               infra.NewWindowStore(),
		Limits:              tierLimits{def: 5},
		AddRateLimitHeaders: true,
		Clock:               clock.NewMock(),
	})(okHandler(&calls)))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, newRequest("acme"))

	if got := w.Header().Get("X-RateLimit-Limit"); got != "5" {
		t.Fatalf("expected X-RateLimit-Limit=5, got %q", got)
	}
	if got := w.Header().Get("X-RateLimit-Remaining"); got != "4" {
		t.Fatalf("expected X-RateLimit-Remaining=4, got %q", got)
	}
	if got := w.Header().Get("X-RateLimit-Reset"); got == "" {
		t.Fatalf("expected X-RateLimit-Reset header to be set")
	}
}

func TestMiddleware_RetryAfterUsesSeconds(t *testing.T) {
	var calls int64
	h := withTenant(Middleware(Options{
		Store:      infra.NewWindowStore(),
		Limits:     tierLimits{def: 0},
		RetryAfter: 2500 * time.Millisecond,
		Clock:      clock.NewMock(),
	})(okHandler(&calls)))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, newRequest("acme"))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "2" {
		// int(2.5s.Seconds()) == 2
		t.Fatalf("expected Retry-After=2, got %q", got)
	}
}
