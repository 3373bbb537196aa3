package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/pders01/lensbot/internal/validation"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "lensbot/1.0"
	maxBodyBytes     = 8 << 20
)

// ClientOptions configures a provider HTTP client.
type ClientOptions struct {
	Timeout   time.Duration
	UserAgent string
	// RequestsPerHour feeds the local token bucket. Zero disables it.
	RequestsPerHour int
	// RateLimitStatus lists the HTTP codes that mean "back off".
	RateLimitStatus []int
	HTTPClient      *http.Client
}

// Client performs provider requests with a local quota and classifies
// responses into Results.
type Client struct {
	http        *http.Client
	userAgent   string
	limiter     *rate.Limiter
	rateLimited map[int]bool
	assets      *validation.EndpointValidator
}

func NewClient(opts ClientOptions) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}

	c := &Client{
		http:        httpClient,
		userAgent:   opts.UserAgent,
		rateLimited: make(map[int]bool, len(opts.RateLimitStatus)),
		assets:      validation.NewEndpointValidator(),
	}
	for _, code := range opts.RateLimitStatus {
		c.rateLimited[code] = true
	}
	if opts.RequestsPerHour > 0 {
		burst := opts.RequestsPerHour / 60
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(float64(opts.RequestsPerHour)/3600.0), burst)
	}
	return c
}

// do sends a GET. On a non-OK result the response is nil.
func (c *Client) do(ctx context.Context, rawURL string, header http.Header) (*http.Response, Result) {
	if c.limiter != nil && !c.limiter.Allow() {
		return nil, Result{Failure: FailureThrottled, Err: fmt.Errorf("local quota exhausted")}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, transient(fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("User-Agent", c.userAgent)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, transient(fmt.Errorf("requesting %s: %w", req.URL.Path, err))
	}

	if c.rateLimited[resp.StatusCode] {
		resp.Body.Close()
		return nil, Result{
			Failure:    FailureRateLimited,
			Err:        fmt.Errorf("rate limited: HTTP %d", resp.StatusCode),
			RetryAfter: retryAfter(resp),
		}
	}
	if resp.StatusCode >= 400 {
		resp.Body.Close()
		return nil, transient(fmt.Errorf("HTTP error: %d", resp.StatusCode))
	}
	return resp, Result{}
}

// getJSON decodes a JSON response body into out.
func (c *Client) getJSON(ctx context.Context, rawURL string, header http.Header, out any) Result {
	resp, res := c.do(ctx, rawURL, header)
	if !res.OK() {
		return res
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(out); err != nil {
		return transient(fmt.Errorf("decoding response: %w", err))
	}
	return Result{}
}

// getBody returns the response body, bounded in size. Callers close it.
func (c *Client) getBody(ctx context.Context, rawURL string, header http.Header) (io.ReadCloser, Result) {
	resp, res := c.do(ctx, rawURL, header)
	if !res.OK() {
		return nil, res
	}
	return struct {
		io.Reader
		io.Closer
	}{io.LimitReader(resp.Body, maxBodyBytes), resp.Body}, Result{}
}

// keepValid drops candidates whose asset URL cannot be handed to the backend.
func (c *Client) keepValid(cs []Candidate) []Candidate {
	out := cs[:0]
	for _, cand := range cs {
		if cand.ID == "" || c.assets.ValidateAssetURL(cand.URL) != nil {
			continue
		}
		out = append(out, cand)
	}
	return out
}

// retryAfter reads a Retry-After header given in seconds.
func retryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return 0
}
