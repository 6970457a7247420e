package tier

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultCacheTTL    = 30 * time.Second
	DefaultCacheSize   = 10000
	DefaultLoadTimeout = 5 * time.Second
)

type cachedProfile struct {
	profile Profile
	expires time.Time
}

// Cached guarda o Profile de cada tenant por ttl, limitado a size tenants (LRU).
// Misses concorrentes para o mesmo tenant viram uma única chamada à fonte.
// Erros da fonte não são cacheados.
//
// A chamada compartilhada não herda o cancelamento de nenhum request: vale só
// o loadTimeout. Quem desiste antes recebe ctx.Err() sem derrubar os demais.
type Cached struct {
	src         ProfileSource
	ttl         time.Duration
	loadTimeout time.Duration
	clock       clock.Clock
	entries     *lru.Cache
	group       singleflight.Group
}

type CacheOption func(*Cached)

func WithCacheClock(c clock.Clock) CacheOption {
	return func(cc *Cached) { cc.clock = c }
}

// WithLoadTimeout limita cada chamada à fonte.
func WithLoadTimeout(d time.Duration) CacheOption {
	return func(cc *Cached) {
		if d > 0 {
			cc.loadTimeout = d
		}
	}
}

func NewCached(src ProfileSource, ttl time.Duration, size int, opts ...CacheOption) (*Cached, error) {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if size <= 0 {
		size = DefaultCacheSize
	}
	entries, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("failed to create profile cache: %w", err)
	}

	c := &Cached{src: src, ttl: ttl, loadTimeout: DefaultLoadTimeout, clock: clock.New(), entries: entries}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Cached) Profile(ctx context.Context, tenantID string) (Profile, error) {
	if v, ok := c.entries.Get(tenantID); ok {
		e := v.(cachedProfile)
		if c.clock.Now().Before(e.expires) {
			return e.profile, nil
		}
	}

	ch := c.group.DoChan(tenantID, func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.loadTimeout)
		defer cancel()

		p, err := c.src.Profile(loadCtx, tenantID)
		if err != nil {
			return Profile{}, err
		}
		c.entries.Add(tenantID, cachedProfile{profile: p, expires: c.clock.Now().Add(c.ttl)})
		return p, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return Profile{}, res.Err
		}
		return res.Val.(Profile), nil
	case <-ctx.Done():
		return Profile{}, ctx.Err()
	}
}

// Purge descarta todos os profiles.
func (c *Cached) Purge() {
	c.entries.Purge()
}

// Sweep remove os profiles expirados e retorna quantos saíram.
func (c *Cached) Sweep() int {
	now := c.clock.Now()
	removed := 0
	for _, k := range c.entries.Keys() {
		v, ok := c.entries.Peek(k)
		if !ok {
			continue
		}
		if !now.Before(v.(cachedProfile).expires) {
			if c.entries.Remove(k) {
				removed++
			}
		}
	}
	return removed
}

func (c *Cached) Len() int { return c.entries.Len() }
