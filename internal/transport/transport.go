// Package transport is the request/response primitive virtual users send
// operations through. The engine only sees status codes, latency and
// bodies; connection handling stays behind the Transport interface.
package transport

import (
	"context"
	"time"
)

// Request is one outbound call.
type Request struct {
	Method  string
	Path    string
	Body    []byte
	Headers map[string]string
}

// Timing breaks a request's latency into phases. Phases that did not
// happen (a reused connection skips DNS and connect) stay zero.
type Timing struct {
	DNSLookup       time.Duration `json:"dnsLookup"`
	TCPConnect      time.Duration `json:"tcpConnect"`
	TLSHandshake    time.Duration `json:"tlsHandshake"`
	TimeToFirstByte time.Duration `json:"timeToFirstByte"`
	ContentTransfer time.Duration `json:"contentTransfer"`
}

// Result is the outcome of Send. Err is set for transport failures
// (connection refused, timeout); StatusCode is then zero.
type Result struct {
	StatusCode int
	Latency    time.Duration
	Body       []byte
	Timing     Timing
	Err        error
}

// Failed reports whether the call never produced an HTTP status.
func (r *Result) Failed() bool {
	return r.Err != nil
}

// Transport sends requests. Implementations must be safe for concurrent
// use by every VU and must never return a nil Result.
type Transport interface {
	Send(ctx context.Context, req *Request) *Result
}

// Func adapts a function to the Transport interface.
type Func func(ctx context.Context, req *Request) *Result

// Send calls f.
func (f Func) Send(ctx context.Context, req *Request) *Result {
	return f(ctx, req)
}
