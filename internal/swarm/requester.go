package swarm

import (
	"context"
	"net/url"
	"time"
)

// Request is what a virtual user asks the transport to send.
type Request struct {
	Method  string
	Path    string
	Params  url.Values
	Headers map[string]string
	Body    []byte
	Timeout time.Duration
}

// Result is what the transport hands back. Err is set when no response
// arrived; StatusCode is then zero.
type Result struct {
	StatusCode int
	Latency    time.Duration
	Bytes      int64
	Body       []byte
	Headers    map[string][]string
	Err        error
}

// Requester sends requests on behalf of virtual users. Implementations must
// be safe for concurrent use and must honour both ctx and Request.Timeout.
type Requester interface {
	Do(ctx context.Context, req *Request) Result
}

// RequesterFunc adapts a function to the Requester interface.
type RequesterFunc func(ctx context.Context, req *Request) Result

// Do calls f(ctx, req).
func (f RequesterFunc) Do(ctx context.Context, req *Request) Result {
	return f(ctx, req)
}
