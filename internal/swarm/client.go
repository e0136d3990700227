package swarm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/wesleyorama2/hive/internal/swarm/metrics"
)

// Check validates a response. A non-nil error turns the outcome into a
// failure.
type Check func(res *Result) error

// DefaultCheck accepts 2xx and 3xx responses.
func DefaultCheck(res *Result) error {
	if res.StatusCode >= 200 && res.StatusCode < 400 {
		return nil
	}
	return fmt.Errorf("HTTP %d", res.StatusCode)
}

// ExpectStatus accepts only the given status codes.
func ExpectStatus(codes ...int) Check {
	return func(res *Result) error {
		for _, code := range codes {
			if res.StatusCode == code {
				return nil
			}
		}
		return fmt.Errorf("HTTP %d, expected one of %v", res.StatusCode, codes)
	}
}

// AllChecks runs checks in order and returns the first failure.
func AllChecks(checks ...Check) Check {
	return func(res *Result) error {
		for _, check := range checks {
			if check == nil {
				continue
			}
			if err := check(res); err != nil {
				return err
			}
		}
		return nil
	}
}

// RequestOptions tunes a single request. The zero value is usable.
type RequestOptions struct {
	// Name is the stats key (default: the path without query string)
	Name    string
	Params  url.Values
	Headers map[string]string
	Body    []byte
	// Timeout overrides the run's request timeout
	Timeout time.Duration
	// Check overrides DefaultCheck
	Check Check
}

// Client issues requests for one virtual user and records every outcome.
type Client struct {
	requester Requester
	stats     *metrics.Collector
	timeout   time.Duration
	headers   map[string]string
}

// NewClient binds a requester to a collector. headers are sent with every
// request unless overridden per request.
func NewClient(requester Requester, stats *metrics.Collector, timeout time.Duration, headers map[string]string) *Client {
	return &Client{
		requester: requester,
		stats:     stats,
		timeout:   timeout,
		headers:   headers,
	}
}

// Get issues a GET request.
func (c *Client) Get(ctx context.Context, path string, opts *RequestOptions) (Result, error) {
	return c.Request(ctx, http.MethodGet, path, opts)
}

// Post issues a POST request with body.
func (c *Client) Post(ctx context.Context, path string, body []byte, opts *RequestOptions) (Result, error) {
	if opts == nil {
		opts = &RequestOptions{}
	}
	o := *opts
	o.Body = body
	return c.Request(ctx, http.MethodPost, path, &o)
}

// Request sends one request, classifies the response and records it.
//
// The returned error is nil on success, a *RequestError when no response
// arrived, or the check error when the response was rejected. Either way the
// outcome has already been recorded; callers only need the error to decide
// what the task does next.
func (c *Client) Request(ctx context.Context, method, path string, opts *RequestOptions) (Result, error) {
	if opts == nil {
		opts = &RequestOptions{}
	}

	req := &Request{
		Method:  method,
		Path:    path,
		Params:  opts.Params,
		Headers: c.mergeHeaders(opts.Headers),
		Body:    opts.Body,
		Timeout: c.timeout,
	}
	if opts.Timeout > 0 {
		req.Timeout = opts.Timeout
	}

	reqCtx := ctx
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	start := time.Now()
	res := c.requester.Do(reqCtx, req)
	if res.Latency <= 0 {
		res.Latency = time.Since(start)
	}

	outcome := metrics.RequestOutcome{
		Endpoint:   endpointName(path, opts.Name),
		Method:     method,
		Start:      start,
		Duration:   res.Latency,
		StatusCode: res.StatusCode,
		Bytes:      res.Bytes,
	}

	var err error
	switch {
	case res.Err != nil:
		outcome.Status = metrics.StatusError
		outcome.Err = errorMessage(res.Err)
		err = &RequestError{Method: method, Path: path, Err: res.Err}
		res.Err = err
	default:
		check := opts.Check
		if check == nil {
			check = DefaultCheck
		}
		if err = check(&res); err != nil {
			outcome.Status = metrics.StatusFailure
			outcome.Err = err.Error()
		} else {
			outcome.Status = metrics.StatusSuccess
		}
	}

	if c.stats != nil {
		c.stats.Record(outcome)
	}
	return res, err
}

func (c *Client) mergeHeaders(extra map[string]string) map[string]string {
	if len(c.headers) == 0 {
		return extra
	}
	out := make(map[string]string, len(c.headers)+len(extra))
	for k, v := range c.headers {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func endpointName(path, name string) string {
	if name != "" {
		return name
	}
	if u, err := url.Parse(path); err == nil && u.Path != "" {
		return u.Path
	}
	return path
}

// errorMessage keeps stats keys short and stable across requests.
func errorMessage(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err.Error()
	}
	return err.Error()
}
