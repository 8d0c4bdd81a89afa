package session

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Client provides access to the backend session endpoints.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	header     http.Header

	authStatusPath string
	logoutPath     string

	maxRetries   int
	retryBackoff time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a new session REST client.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger:         slog.Default(),
		header:         http.Header{},
		authStatusPath: "/api/auth/status",
		logoutPath:     "/api/logout",
		maxRetries:     3,
		retryBackoff:   time.Second,
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
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithPaths overrides the endpoint paths. Empty values keep the default.
func WithPaths(authStatus, logout string) ClientOption {
	return func(c *Client) {
		if authStatus != "" {
			c.authStatusPath = authStatus
		}
		if logout != "" {
			c.logoutPath = logout
		}
	}
}

// WithHeader adds a header to every request.
func WithHeader(key, value string) ClientOption {
	return func(c *Client) {
		c.header.Add(key, value)
	}
}

// AuthStatus fetches the current authentication status.
func (c *Client) AuthStatus(ctx context.Context) (AuthStatus, error) {
	var st AuthStatus
	if err := c.get(ctx, c.authStatusPath, &st); err != nil {
		return AuthStatus{}, err
	}
	return st, nil
}

// Logout ends the backend session. The backend notifies the stream before
// it drops it.
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.doWithRetry(ctx, http.MethodPost, c.logoutPath)
	return err
}
