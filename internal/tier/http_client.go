package tier

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const defaultHTTPTimeout = 2 * time.Second

// HTTPClient consulta o serviço de billing: GET {base}/tenants/{id}/tier.
//
// As chamadas passam por um limiter local para não derrubar o billing quando
// o cache esvazia de uma vez.
type HTTPClient struct {
	base    string
	client  *http.Client
	limiter *rate.Limiter
	token   string
}

type HTTPClientOption func(*HTTPClient)

func WithHTTPTimeout(d time.Duration) HTTPClientOption {
	return func(c *HTTPClient) { c.client.Timeout = d }
}

// WithCallRate limita as chamadas ao billing (rps <= 0 desliga o limite).
func WithCallRate(rps float64, burst int) HTTPClientOption {
	return func(c *HTTPClient) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

func WithBearerToken(token string) HTTPClientOption {
	return func(c *HTTPClient) { c.token = token }
}

func WithHTTPDoer(hc *http.Client) HTTPClientOption {
	return func(c *HTTPClient) {
		if hc != nil {
			c.client = hc
		}
	}
}

func NewHTTPClient(baseURL string, opts ...HTTPClientOption) (*HTTPClient, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid tier service url %q", baseURL)
	}

	c := &HTTPClient{
		base:    strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: defaultHTTPTimeout},
		limiter: rate.NewLimiter(rate.Inf, 0),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *HTTPClient) Profile(ctx context.Context, tenantID string) (Profile, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Profile{}, fmt.Errorf("%w: throttled: %w", ErrUnavailable, err)
	}

	endpoint := c.base + "/tenants/" + url.PathEscape(tenantID) + "/tier"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Profile{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return Profile{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Profile{}, fmt.Errorf("tenant %q: %w", tenantID, ErrTenantNotFound)
	case resp.StatusCode != http.StatusOK:
		_, _ = io.Copy(io.Discard, resp.Body)
		return Profile{}, fmt.Errorf("%w: tier service returned %d", ErrUnavailable, resp.StatusCode)
	}

	var p Profile
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&p); err != nil {
		return Profile{}, fmt.Errorf("%w: decode profile: %w", ErrUnavailable, err)
	}
	return p, nil
}
