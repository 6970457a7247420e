package tier

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	mu      sync.Mutex
	results []string
}

func (o *recordingObserver) ObserveLookup(op, result string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.results = append(o.results, op+":"+result)
}

func TestLookup(t *testing.T) {
	c, err := ParseCatalog([]byte(`
plans:
  - name: pro
    rate_limits: {default: 600, reports: 30}
    features: [reports]
tenants:
  acme: pro
`))
	require.NoError(t, err)

	obs := &recordingObserver{}
	l := NewLookup(c, WithObserver(obs))
	ctx := context.Background()

	n, err := l.GetRateLimit(ctx, "acme", "")
	require.NoError(t, err)
	assert.Equal(t, 600, n)

	n, err = l.GetRateLimit(ctx, "acme", "reports")
	require.NoError(t, err)
	assert.Equal(t, 30, n)

	ok, err := l.HasFeature(ctx, "acme", "reports")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.HasFeature(ctx, "acme", "nfe-emission")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = l.HasFeature(ctx, "ghost", "reports")
	require.NoError(t, err)
	assert.False(t, ok, "unknown tenant has no features")

	n, err = l.GetRateLimit(ctx, "ghost", "")
	require.NoError(t, err)
	assert.Zero(t, n, "unknown tenant has no quota")

	assert.Equal(t, []string{
		"rate_limit:ok", "rate_limit:ok", "feature:ok", "feature:ok", "feature:not_found", "rate_limit:not_found",
	}, obs.results)
}

type staticSource Profile

func (s staticSource) Profile(context.Context, string) (Profile, error) { return Profile(s), nil }

func TestLookup_NoLimitForCategory(t *testing.T) {
	l := NewLookup(staticSource{Plan: "odd", RateLimits: map[string]int{"reports": 1}})

	n, err := l.GetRateLimit(context.Background(), "acme", "sales")
	require.NoError(t, err)
	assert.Zero(t, n)
}

type brokenSource struct{}

func (brokenSource) Profile(context.Context, string) (Profile, error) {
	return Profile{}, ErrUnavailable
}

func TestLookup_UnavailableIsStillAnError(t *testing.T) {
	l := NewLookup(brokenSource{})

	_, err := l.GetRateLimit(context.Background(), "acme", "")
	assert.ErrorIs(t, err, ErrUnavailable)
	_, err = l.HasFeature(context.Background(), "acme", "reports")
	assert.ErrorIs(t, err, ErrUnavailable)
}
