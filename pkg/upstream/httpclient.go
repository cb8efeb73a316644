package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/1satmarket/marketapi/pkg/utils"
	"golang.org/x/time/rate"
)

// HTTPClient is a GET-only JSON client with a shared rate limiter and a
// per-host circuit breaker.
type HTTPClient struct {
	client  *http.Client
	limiter *rate.Limiter

	mu       sync.Mutex
	failures map[string]int
	opened   map[string]time.Time

	breakerThreshold int
	breakerCooldown  time.Duration
}

// Opts is the set of options for a new HTTPClient.
type Opts struct {
	Timeout         time.Duration
	RPS             int
	Burst           int
	BreakerFailures int
	BreakerCooldown time.Duration
	HTTPClient      *http.Client
}

// NewHTTPWithOpts creates a new HTTPClient with the given options.
func NewHTTPWithOpts(o Opts) *HTTPClient {
	if o.RPS <= 0 {
		o.RPS = 20
	}
	if o.Burst <= 0 {
		o.Burst = 40
	}
	if o.Timeout <= 0 {
		o.Timeout = 15 * time.Second
	}
	if o.BreakerFailures <= 0 {
		o.BreakerFailures = 5
	}
	if o.BreakerCooldown <= 0 {
		o.BreakerCooldown = 10 * time.Second
	}

	client := o.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: o.Timeout}
	} else if client.Timeout == 0 {
		client.Timeout = o.Timeout
	}

	return &HTTPClient{
		client:           client,
		limiter:          rate.NewLimiter(rate.Limit(o.RPS), o.Burst),
		failures:         map[string]int{},
		opened:           map[string]time.Time{},
		breakerThreshold: o.BreakerFailures,
		breakerCooldown:  o.BreakerCooldown,
	}
}

// isOpen reports whether the breaker for host is open.
func (c *HTTPClient) isOpen(host string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	until, ok := c.opened[host]
	if !ok {
		return false
	}
	if time.Now().After(until) {
		delete(c.opened, host)
		c.failures[host] = 0
		return false
	}
	return true
}

func (c *HTTPClient) noteFailure(host string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[host]++
	if c.failures[host] >= c.breakerThreshold {
		c.opened[host] = time.Now().Add(c.breakerCooldown)
	}
}

func (c *HTTPClient) noteSuccess(host string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[host] = 0
}

// getJSON issues a GET to rawURL and decodes the body into out.
// Transport errors and 5xx responses count towards the host's breaker.
func (c *HTTPClient) getJSON(ctx context.Context, rawURL string, out any) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	host := u.Host
	if c.isOpen(host) {
		return fmt.Errorf("circuit open for %s", host)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.noteFailure(host)
		return err
	}
	defer func() { _ = utils.DrainAndClose(resp.Body) }()

	if resp.StatusCode >= 500 {
		c.noteFailure(host)
		return fmt.Errorf("server %d", resp.StatusCode)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("http %d", resp.StatusCode)
	}
	c.noteSuccess(host)

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}
