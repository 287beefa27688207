// Package github is a minimal read-only GitHub REST client with retry,
// exponential backoff, and rate-limit awareness.
//
// The client owns the last observed rate-limit state. Every response, success
// or not, refreshes that state so later calls can wait for the quota window
// proactively instead of burning requests into a 403. Rate-limit exhaustion
// is reported through Response.IsRateLimited, never as an error: callers
// decide whether to pause, not the transport.
package github

import (
	"context"
	"fmt"
	"io"
	"log"
	"math"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"time"
)

const (
	defaultBaseURL = "https://api.github.com"

	maxRetries   = 3
	baseDelay    = 1 * time.Second
	maxDelay     = 30 * time.Second
	jitterFactor = 0.25
)

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Response is the outcome of one Get call after all internal retries.
//
// A zero StatusCode means the request never got an HTTP response; Err then
// carries the last transport error. IsRateLimited set means the caller
// should stop issuing requests until RateLimit.ResetAt.
type Response struct {
	StatusCode    int
	Body          []byte
	RateLimit     *RateLimit
	IsRateLimited bool
	Err           error
}

// OK reports whether the response carries a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Options configures a Client.
type Options struct {
	// Token is an optional GitHub API token. Unauthenticated requests get a
	// much smaller quota but everything still works.
	Token string

	// Repo is the "owner/name" repository all high-level calls target.
	Repo string

	// BaseURL overrides the GitHub API root, for tests.
	BaseURL string

	// HTTPClient overrides the default 30s-timeout client.
	HTTPClient *http.Client

	// Clock overrides real time, for tests.
	Clock Clock

	// Logger for retry/backoff activity. Nil means a stderr default.
	Logger *log.Logger
}

// Client fetches content from the GitHub REST API.
//
// The zero value is not usable; construct with New. Safe for use from a
// single goroutine at a time, which is all the sync engine needs.
type Client struct {
	http    *http.Client
	token   string
	repo    string
	baseURL string
	clock   Clock
	logger  *log.Logger

	mu        sync.Mutex
	rateLimit *RateLimit
}

// New creates a Client from opts, applying defaults for anything unset.
func New(opts Options) *Client {
	c := &Client{
		http:    opts.HTTPClient,
		token:   opts.Token,
		repo:    opts.Repo,
		baseURL: opts.BaseURL,
		clock:   opts.Clock,
		logger:  opts.Logger,
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 30 * time.Second}
	}
	if c.baseURL == "" {
		c.baseURL = defaultBaseURL
	}
	if c.clock == nil {
		c.clock = realClock{}
	}
	if c.logger == nil {
		c.logger = log.New(os.Stderr, "[github] ", log.LstdFlags)
	}
	return c
}

// RateLimit returns the last observed rate-limit state, or nil if no
// response has carried usable headers yet.
func (c *Client) RateLimit() *RateLimit {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rateLimit
}

func (c *Client) setRateLimit(rl *RateLimit) {
	c.mu.Lock()
	c.rateLimit = rl
	c.mu.Unlock()
}

// backoffDelay computes the sleep before retry attempt+1.
//
// When the quota is known to be exhausted the delay targets the reset time
// (capped at maxDelay); otherwise it is exponential with up to 25% jitter.
func (c *Client) backoffDelay(attempt int, rl *RateLimit) time.Duration {
	if rl != nil && rl.Remaining == 0 {
		wait := rl.WaitUntilReset(c.clock.Now())
		if wait > maxDelay {
			c.logger.Printf("Rate limit resets in %s (at %s), capping wait at %s", wait.Round(time.Second), rl.ResetAt.Format(time.RFC3339), maxDelay)
			return maxDelay
		}
		return wait
	}

	delay := time.Duration(float64(baseDelay) * math.Pow(2, float64(attempt)))
	if delay > maxDelay {
		delay = maxDelay
	}
	jitter := time.Duration(float64(delay) * jitterFactor * rand.Float64())
	return delay + jitter
}

// Get issues a GET against url with retry and backoff.
//
// The returned error is non-nil only when ctx is cancelled mid-flight; every
// other outcome, including exhausted retries, is encoded in the Response.
func (c *Client) Get(ctx context.Context, url string) (*Response, error) {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		// Proactive wait when the cached state says the quota is gone.
		cached := c.RateLimit()
		if cached != nil && cached.Remaining == 0 {
			wait := cached.WaitUntilReset(c.clock.Now())
			if wait > maxDelay {
				c.logger.Printf("Rate limit reset too far out (%s), reporting rate limited", wait.Round(time.Second))
				return &Response{StatusCode: http.StatusForbidden, RateLimit: cached, IsRateLimited: true}, nil
			}
			if wait > 0 {
				c.logger.Printf("Pre-emptive rate limit wait: %s", wait.Round(time.Millisecond))
				if err := c.clock.Sleep(ctx, wait); err != nil {
					return nil, err
				}
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Accept", "application/vnd.github.v3+json")
		if c.token != "" {
			req.Header.Set("Authorization", "token "+c.token)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			if attempt < maxRetries {
				delay := c.backoffDelay(attempt, nil)
				c.logger.Printf("Request error: %v. Attempt %d/%d, retrying in %s", err, attempt+1, maxRetries+1, delay.Round(time.Millisecond))
				if err := c.clock.Sleep(ctx, delay); err != nil {
					return nil, err
				}
			}
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		// Refresh cached quota state on every response, 2xx or not.
		rl := parseRateLimit(resp.Header, c.clock.Now())
		if rl != nil {
			c.setRateLimit(rl)
		}

		if readErr != nil {
			lastErr = readErr
			if attempt < maxRetries {
				delay := c.backoffDelay(attempt, nil)
				c.logger.Printf("Body read error: %v. Attempt %d/%d, retrying in %s", readErr, attempt+1, maxRetries+1, delay.Round(time.Millisecond))
				if err := c.clock.Sleep(ctx, delay); err != nil {
					return nil, err
				}
			}
			continue
		}

		rateLimited := resp.StatusCode == http.StatusTooManyRequests ||
			(resp.StatusCode == http.StatusForbidden && rl != nil && rl.Remaining == 0)

		if rateLimited {
			if attempt < maxRetries {
				delay := c.backoffDelay(attempt, rl)
				c.logger.Printf("Rate limited (%d). Attempt %d/%d, retrying in %s", resp.StatusCode, attempt+1, maxRetries+1, delay.Round(time.Millisecond))
				if err := c.clock.Sleep(ctx, delay); err != nil {
					return nil, err
				}
				continue
			}
			return &Response{StatusCode: resp.StatusCode, RateLimit: rl, IsRateLimited: true}, nil
		}

		if resp.StatusCode >= 500 {
			if attempt < maxRetries {
				delay := c.backoffDelay(attempt, nil)
				c.logger.Printf("Server error (%d). Attempt %d/%d, retrying in %s", resp.StatusCode, attempt+1, maxRetries+1, delay.Round(time.Millisecond))
				if err := c.clock.Sleep(ctx, delay); err != nil {
					return nil, err
				}
				continue
			}
		}

		return &Response{StatusCode: resp.StatusCode, Body: body, RateLimit: rl}, nil
	}

	c.logger.Printf("All retries exhausted: %v", lastErr)
	return &Response{StatusCode: 0, RateLimit: c.RateLimit(), Err: lastErr}, nil
}
