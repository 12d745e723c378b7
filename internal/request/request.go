package request

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/ratelimit"
)

// Client wraps http.Client with rate limiting and bounded retries so callers
// can issue requests against flaky provider APIs without per-call boilerplate.
type Client struct {
	client          *http.Client
	headers         map[string]string
	rateLimiter     ratelimit.Limiter
	logger          zerolog.Logger
	maxRetries      int
	retryDelay      time.Duration
	retryableStatus map[int]struct{}
}

type Option func(*Client)

func WithHeaders(headers map[string]string) Option {
	return func(c *Client) {
		c.headers = headers
	}
}

func WithRateLimiter(rl ratelimit.Limiter) Option {
	return func(c *Client) {
		c.rateLimiter = rl
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func WithMaxRetries(retries int) Option {
	return func(c *Client) {
		c.maxRetries = retries
	}
}

func WithRetryDelay(delay time.Duration) Option {
	return func(c *Client) {
		c.retryDelay = delay
	}
}

func WithRetryableStatus(statusCodes ...int) Option {
	return func(c *Client) {
		for _, code := range statusCodes {
			c.retryableStatus[code] = struct{}{}
		}
	}
}

// WithTimeout sets the total request timeout. Zero means no timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.client.Timeout = timeout
	}
}

func WithTransport(transport http.RoundTripper) Option {
	return func(c *Client) {
		c.client.Transport = transport
	}
}

func WithRedirectPolicy(policy func(req *http.Request, via []*http.Request) error) Option {
	return func(c *Client) {
		c.client.CheckRedirect = policy
	}
}

func New(options ...Option) *Client {
	c := &Client{
		client:          &http.Client{Timeout: 60 * time.Second},
		maxRetries:      1,
		retryDelay:      1 * time.Second,
		retryableStatus: make(map[int]struct{}),
		logger:          zerolog.Nop(),
	}
	for _, option := range options {
		option(c)
	}
	return c
}

// Do sends the request, applying default headers, the rate limiter, and
// retries for transport errors and retryable status codes. The request body
// is replayed via GetBody, so callers building requests with byte or string
// readers retry transparently.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	for key, value := range c.headers {
		if req.Header.Get(key) == "" {
			req.Header.Set(key, value)
		}
	}

	var resp *http.Response
	var err error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if req.GetBody != nil {
				body, bodyErr := req.GetBody()
				if bodyErr != nil {
					return nil, bodyErr
				}
				req.Body = body
			}
			time.Sleep(c.retryDelay)
		}
		if c.rateLimiter != nil {
			c.rateLimiter.Take()
		}
		resp, err = c.client.Do(req)
		if err != nil {
			c.logger.Debug().Err(err).Msgf("Request to %s failed (attempt %d)", req.URL, attempt+1)
			continue
		}
		if _, retryable := c.retryableStatus[resp.StatusCode]; retryable && attempt < c.maxRetries {
			c.logger.Debug().Msgf("Request to %s returned %d, retrying", req.URL, resp.StatusCode)
			resp.Body.Close()
			continue
		}
		return resp, nil
	}
	return resp, err
}

// MakeRequest performs the request and returns the response body. Non-2xx
// responses are returned as errors carrying the status and body text.
func (c *Client) MakeRequest(req *http.Request) ([]byte, error) {
	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("request to %s failed with status %d: %s", req.URL, resp.StatusCode, string(body))
	}
	return body, nil
}

// JoinURL joins a base URL with path segments, preserving the base's own path.
func JoinURL(base string, paths ...string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	joined := path.Join(append([]string{u.Path}, paths...)...)
	if joined != "" && !strings.HasPrefix(joined, "/") {
		joined = "/" + joined
	}
	u.Path = joined
	return u.String(), nil
}

// ParseRateLimit parses strings like "250/minute" or "5/second" into a
// limiter. Empty or malformed values yield nil, meaning unlimited.
func ParseRateLimit(rateStr string) ratelimit.Limiter {
	if rateStr == "" {
		return nil
	}
	parts := strings.SplitN(rateStr, "/", 2)
	if len(parts) != 2 {
		return nil
	}
	count, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || count <= 0 {
		return nil
	}
	switch strings.ToLower(strings.TrimSpace(parts[1])) {
	case "second", "sec", "s":
		return ratelimit.New(count)
	case "minute", "min", "m":
		return ratelimit.New(count, ratelimit.Per(time.Minute))
	case "hour", "hr", "h":
		return ratelimit.New(count, ratelimit.Per(time.Hour))
	default:
		return nil
	}
}
