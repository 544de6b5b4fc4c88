package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/uzstroy/marketintel/internal/config"
	"github.com/uzstroy/marketintel/internal/resilience"
)

// HTTPOptions configures the HTTP client. MaxAttempts is the total number of
// tries per request, including the first one.
type HTTPOptions struct {
	UserAgent   string
	Timeout     time.Duration
	MaxAttempts int
	BaseDelay   time.Duration
	// RateLimiters maps host to limiter. Hosts without an entry share a
	// default limiter created on first use.
	RateLimiters map[string]*rate.Limiter
}

// FromConfig builds HTTPOptions from the shared HTTP config section.
func FromConfig(cfg config.HTTPConfig) HTTPOptions {
	return HTTPOptions{
		UserAgent:   cfg.UserAgent,
		Timeout:     cfg.Timeout,
		MaxAttempts: cfg.MaxAttempts,
	}
}

// HTTPClient implements Client using net/http with retry and per-host rate limiting.
type HTTPClient struct {
	client   *http.Client
	opts     HTTPOptions
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewHTTPClient creates an HTTPClient with the given options.
func NewHTTPClient(opts HTTPOptions) *HTTPClient {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = 3
	}
	if opts.BaseDelay == 0 {
		opts.BaseDelay = time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "Mozilla/5.0 (compatible; MarketIntel/1.0)"
	}
	limiters := make(map[string]*rate.Limiter)
	for k, v := range opts.RateLimiters {
		limiters[k] = v
	}
	transport := &http.Transport{
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     20,
		IdleConnTimeout:     90 * time.Second,
	}
	return &HTTPClient{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		opts:     opts,
		limiters: limiters,
	}
}

func (c *HTTPClient) limiterFor(host string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	lim, ok := c.limiters[host]
	if !ok {
		lim = rate.NewLimiter(10, 10)
		c.limiters[host] = lim
	}
	return lim
}

// GetJSON performs a GET with query params and decodes the JSON response into out.
func (c *HTTPClient) GetJSON(ctx context.Context, rawURL string, params map[string]string, headers map[string]string, out any) error {
	target := rawURL
	if len(params) > 0 {
		q := url.Values{}
		for k, v := range params {
			q.Set(k, v)
		}
		target = rawURL + "?" + q.Encode()
	}
	return c.doJSON(ctx, http.MethodGet, target, nil, headers, out)
}

// PostJSON performs a POST with a JSON body and decodes the JSON response into out.
func (c *HTTPClient) PostJSON(ctx context.Context, rawURL string, body any, headers map[string]string, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return eris.Wrap(err, "fetcher: marshal request body")
	}
	return c.doJSON(ctx, http.MethodPost, rawURL, payload, headers, out)
}

// doJSON executes the request under the retry policy. Each attempt builds a
// fresh request so no body or header state leaks between attempts.
func (c *HTTPClient) doJSON(ctx context.Context, method, target string, payload []byte, headers map[string]string, out any) error {
	u, err := url.Parse(target)
	if err != nil {
		return eris.Wrapf(err, "fetcher: parse url %s", target)
	}
	lim := c.limiterFor(u.Host)

	retryCfg := resilience.RetryConfig{
		MaxAttempts: c.opts.MaxAttempts,
		BaseDelay:   c.opts.BaseDelay,
		OnRetry:     resilience.RetryLogger(u.Host, method),
	}

	return resilience.Do(ctx, retryCfg, func(ctx context.Context) error {
		if err := lim.Wait(ctx); err != nil {
			return eris.Wrap(err, "fetcher: rate limiter wait")
		}

		var bodyReader io.Reader
		if payload != nil {
			bodyReader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
		if err != nil {
			return eris.Wrap(err, "fetcher: create request")
		}
		req.Header.Set("User-Agent", c.opts.UserAgent)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			// Connection failures and timeouts are retryable.
			return resilience.NewTransientError(err, 0)
		}
		defer resp.Body.Close() //nolint:errcheck

		if resp.StatusCode != http.StatusOK {
			_, _ = io.Copy(io.Discard, resp.Body)
			statusErr := eris.Errorf("http %d from %s", resp.StatusCode, target)
			if resilience.IsTransientHTTPStatus(resp.StatusCode) {
				zap.L().Warn("transient upstream status",
					zap.String("url", target),
					zap.Int("status", resp.StatusCode),
				)
				return resilience.NewTransientError(statusErr, resp.StatusCode)
			}
			return statusErr
		}

		if out == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return eris.Wrapf(err, "fetcher: decode response from %s", target)
		}
		return nil
	})
}
