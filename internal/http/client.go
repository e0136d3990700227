// Package http sends virtual user requests over net/http.
package http

import (
	"context"
	"crypto/tls"
	"net/http"
	"time"

	"github.com/wesleyorama2/hive/internal/swarm"
)

// Config contains HTTP client configuration.
type Config struct {
	// Timeout for HTTP requests when the request carries none
	Timeout time.Duration

	// MaxIdleConns controls the maximum number of idle connections
	MaxIdleConns int

	// MaxIdleConnsPerHost controls the maximum idle connections per host
	MaxIdleConnsPerHost int

	// MaxConnsPerHost limits the total connections per host
	MaxConnsPerHost int

	// IdleConnTimeout is how long idle connections are kept alive
	IdleConnTimeout time.Duration

	// DisableKeepAlives disables HTTP keep-alives
	DisableKeepAlives bool

	// DisableCompression disables automatic decompression
	DisableCompression bool

	// InsecureSkipVerify skips TLS certificate verification
	InsecureSkipVerify bool

	// MaxBodyBytes caps the response body kept for checks; the rest is
	// read and discarded
	MaxBodyBytes int64

	// FollowRedirects makes the client follow 3xx responses
	FollowRedirects bool
}

// DefaultConfig returns sensible defaults for load testing.
func DefaultConfig() Config {
	return Config{
		Timeout:             30 * time.Second,
		MaxIdleConns:        1000,
		MaxIdleConnsPerHost: 100,
		MaxConnsPerHost:     0, // Unlimited
		IdleConnTimeout:     90 * time.Second,
		MaxBodyBytes:        DefaultMaxBodyBytes,
		FollowRedirects:     true,
	}
}

// Client sends requests for every virtual user over one shared, pooled
// transport. It implements swarm.Requester.
type Client struct {
	httpClient *http.Client
	baseURL    string
	headers    map[string]string
	config     Config
}

// ClientOption is a function that configures a Client
type ClientOption func(*Client)

// NewClient creates a new HTTP client with the given options
func NewClient(options ...ClientOption) *Client {
	client := &Client{
		headers: make(map[string]string),
		config:  DefaultConfig(),
	}

	for _, option := range options {
		option(client)
	}

	client.httpClient = newHTTPClient(client.config)
	return client
}

// WithBaseURL sets the base URL for the client
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithTimeout sets the default request timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.config.Timeout = timeout
	}
}

// WithHeader adds a header to every request
func WithHeader(key, value string) ClientOption {
	return func(c *Client) {
		c.headers[key] = value
	}
}

// WithConfig replaces the transport configuration
func WithConfig(cfg Config) ClientOption {
	return func(c *Client) {
		c.config = cfg
	}
}

func newHTTPClient(cfg Config) *http.Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		DisableKeepAlives:   cfg.DisableKeepAlives,
		DisableCompression:  cfg.DisableCompression,
		ForceAttemptHTTP2:   true,
	}
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in for test targets
	}

	client := &http.Client{Transport: transport}
	if !cfg.FollowRedirects {
		client.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	return client
}

// BaseURL returns the URL request paths are resolved against.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Do sends req and reads the whole response. Latency covers the exchange
// up to the last body byte. Transport failures, including timeouts, are
// returned in Result.Err and never as a status code.
func (c *Client) Do(ctx context.Context, req *swarm.Request) swarm.Result {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.config.Timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	httpReq, err := buildRequest(c.baseURL, req)
	if err != nil {
		return swarm.Result{Err: err}
	}
	for key, value := range c.headers {
		if httpReq.Header.Get(key) == "" {
			httpReq.Header.Set(key, value)
		}
	}
	httpReq = httpReq.WithContext(ctx)

	start := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return swarm.Result{Latency: time.Since(start), Err: err}
	}

	body, n, err := readBody(httpResp, c.config.MaxBodyBytes)
	result := swarm.Result{
		StatusCode: httpResp.StatusCode,
		Latency:    time.Since(start),
		Bytes:      n,
		Body:       body,
		Headers:    httpResp.Header,
	}
	if err != nil {
		result.Err = err
	}
	return result
}

// CloseIdleConnections closes any idle keep-alive connections.
func (c *Client) CloseIdleConnections() {
	c.httpClient.CloseIdleConnections()
}
