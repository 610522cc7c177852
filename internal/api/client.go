package api

import (
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"time"

	"golang.org/x/time/rate"
)

// Paths holds the endpoint paths relative to the base URL.
type Paths struct {
	Session  string
	Login    string
	Register string
	Logout   string
	Verify   string
}

// DefaultPaths returns the server's standard endpoint layout.
func DefaultPaths() Paths {
	return Paths{
		Session:  "/auth/session-status",
		Login:    "/api/v1/auth/login",
		Register: "/api/v1/auth/register",
		Logout:   "/api/v1/auth/logout",
		Verify:   "/api/v1/auth/me",
	}
}

// Client provides access to the trading server's REST API.
type Client struct {
	baseURL    string
	paths      Paths
	httpClient *http.Client
	logger     *slog.Logger
	limiter    *rate.Limiter

	maxRetries   int
	retryBackoff time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a new REST API client with its own cookie jar.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	jar, _ := cookiejar.New(nil) // only fails on a bad PublicSuffixList

	c := &Client{
		baseURL: baseURL,
		paths:   DefaultPaths(),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
			Jar:     jar,
		},
		logger:       slog.Default(),
		maxRetries:   3,
		retryBackoff: time.Second,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithRetries sets the retry configuration.
func WithRetries(max int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		c.maxRetries = max
		c.retryBackoff = backoff
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient sets a custom HTTP client. A client without a jar gets one.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc.Jar == nil {
			hc.Jar = c.httpClient.Jar
		}
		c.httpClient = hc
	}
}

// WithPaths overrides endpoint paths. Empty fields keep their defaults.
func WithPaths(p Paths) ClientOption {
	return func(c *Client) {
		if p.Session != "" {
			c.paths.Session = p.Session
		}
		if p.Login != "" {
			c.paths.Login = p.Login
		}
		if p.Register != "" {
			c.paths.Register = p.Register
		}
		if p.Logout != "" {
			c.paths.Logout = p.Logout
		}
		if p.Verify != "" {
			c.paths.Verify = p.Verify
		}
	}
}

// WithRateLimit caps outgoing requests at rps with the given burst.
// rps <= 0 disables limiting.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// Jar returns the cookie jar shared with the WebSocket dialer.
func (c *Client) Jar() http.CookieJar {
	return c.httpClient.Jar
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}
