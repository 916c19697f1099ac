package request

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/ratelimit"
	"golang.org/x/net/proxy"
)

// Client wraps http.Client with rate limiting, default headers and
// status-based retries.
type Client struct {
	client     *http.Client
	headers    map[string]string
	limiter    ratelimit.Limiter
	logger     zerolog.Logger
	maxRetries int
	retryDelay time.Duration
	retryable  map[int]struct{}
}

type Option func(*Client)

func WithRateLimiter(limiter ratelimit.Limiter) Option {
	return func(c *Client) {
		c.limiter = limiter
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func WithHeaders(headers map[string]string) Option {
	return func(c *Client) {
		c.headers = headers
	}
}

func WithMaxRetries(n int) Option {
	return func(c *Client) {
		c.maxRetries = n
	}
}

func WithRetryableStatus(codes ...int) Option {
	return func(c *Client) {
		for _, code := range codes {
			c.retryable[code] = struct{}{}
		}
	}
}

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

// WithProxy routes requests through an http(s) or socks5 proxy. Invalid
// proxy URLs are ignored.
func WithProxy(proxyURL string) Option {
	return func(c *Client) {
		if proxyURL == "" {
			return
		}
		u, err := url.Parse(proxyURL)
		if err != nil {
			c.logger.Warn().Err(err).Str("proxy", proxyURL).Msg("Invalid proxy URL")
			return
		}
		transport := &http.Transport{}
		switch u.Scheme {
		case "socks5":
			var auth *proxy.Auth
			if u.User != nil {
				password, _ := u.User.Password()
				auth = &proxy.Auth{User: u.User.Username(), Password: password}
			}
			dialer, err := proxy.SOCKS5("tcp", u.Host, auth, &net.Dialer{Timeout: 30 * time.Second})
			if err != nil {
				c.logger.Warn().Err(err).Str("proxy", proxyURL).Msg("Failed to create socks5 dialer")
				return
			}
			transport.Dial = dialer.Dial
		default:
			transport.Proxy = http.ProxyURL(u)
		}
		c.client.Transport = transport
	}
}

func New(opts ...Option) *Client {
	c := &Client{
		client:     &http.Client{Timeout: 60 * time.Second},
		logger:     zerolog.Nop(),
		retryDelay: time.Second,
		retryable:  make(map[int]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var (
	defaultOnce   sync.Once
	defaultClient *Client
)

// Default returns a shared client with no rate limiting or retries.
func Default() *Client {
	defaultOnce.Do(func() {
		defaultClient = New()
	})
	return defaultClient
}

// Do sends the request, applying default headers, the rate limiter and the
// retry policy. The response body is the caller's to close.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	for k, v := range c.headers {
		if req.Header.Get(k) == "" {
			req.Header.Set(k, v)
		}
	}

	var resp *http.Response
	var err error
	for attempt := 0; ; attempt++ {
		if c.limiter != nil {
			c.limiter.Take()
		}
		resp, err = c.client.Do(req)
		if err != nil {
			return nil, err
		}
		if _, retry := c.retryable[resp.StatusCode]; !retry || attempt >= c.maxRetries {
			return resp, nil
		}
		// Retrying: requests with a consumed body can't be replayed.
		if req.Body != nil && req.GetBody == nil {
			return resp, nil
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		c.logger.Debug().Int("status", resp.StatusCode).Int("attempt", attempt+1).Msgf("Retrying %s", req.URL)
		time.Sleep(c.retryDelay * time.Duration(1<<uint(attempt)))
		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, err
			}
			req.Body = body
		}
	}
}

// MakeRequest sends the request and returns the response body, treating any
// status >= 400 as an error.
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
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return body, nil
}

// ParseRateLimit converts strings like "10/second" or "200/minute" into a
// limiter. Empty strings yield a nil limiter (unlimited).
func ParseRateLimit(s string) (ratelimit.Limiter, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid rate limit: %s", s)
	}
	n, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || n <= 0 {
		return nil, fmt.Errorf("invalid rate limit: %s", s)
	}
	var per time.Duration
	switch strings.TrimSpace(strings.ToLower(parts[1])) {
	case "second", "sec", "s":
		per = time.Second
	case "minute", "min", "m":
		per = time.Minute
	case "hour", "hr", "h":
		per = time.Hour
	default:
		return nil, fmt.Errorf("invalid rate limit unit: %s", parts[1])
	}
	return ratelimit.New(n, ratelimit.Per(per)), nil
}

// JoinURL joins a base URL with additional path segments.
func JoinURL(base string, paths ...string) (string, error) {
	return url.JoinPath(base, paths...)
}
