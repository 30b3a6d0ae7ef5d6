package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/http/httptrace"
	"net/url"
	"strings"
	"time"
)

// HTTPConfig contains HTTP client settings.
type HTTPConfig struct {
	// Timeout for a whole request, including reading the body
	Timeout time.Duration

	// MaxIdleConns controls the maximum number of idle connections
	MaxIdleConns int

	// MaxIdleConnsPerHost controls the maximum idle connections per host
	MaxIdleConnsPerHost int

	// MaxConnsPerHost limits the total connections per host (0 = unlimited)
	MaxConnsPerHost int

	// IdleConnTimeout is how long idle connections are kept alive
	IdleConnTimeout time.Duration

	// DisableKeepAlives disables HTTP keep-alives
	DisableKeepAlives bool

	// InsecureSkipVerify skips TLS certificate verification
	InsecureSkipVerify bool

	// Headers are added to every request
	Headers map[string]string
}

// DefaultHTTPConfig returns defaults sized for load generation.
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		Timeout:             30 * time.Second,
		MaxIdleConns:        1000,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
	}
}

// HTTPTransport sends requests to a base URL over a shared, pooled client.
// HTTPTransport is safe for concurrent use by multiple goroutines.
type HTTPTransport struct {
	client  *http.Client
	baseURL *url.URL
	headers map[string]string
}

// NewHTTPTransport creates a transport rooted at baseURL.
func NewHTTPTransport(baseURL string, cfg HTTPConfig) (*HTTPTransport, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid base URL %q: scheme must be http or https", baseURL)
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		DisableKeepAlives:   cfg.DisableKeepAlives,
	}
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	headers := make(map[string]string, len(cfg.Headers))
	for k, v := range cfg.Headers {
		headers[k] = v
	}

	return &HTTPTransport{
		client:  &http.Client{Transport: transport, Timeout: cfg.Timeout},
		baseURL: u,
		headers: headers,
	}, nil
}

// Send executes req and returns status, latency and body. Latency covers
// everything from dispatch until the body has been read.
func (t *HTTPTransport) Send(ctx context.Context, req *Request) *Result {
	httpReq, err := t.build(ctx, req)
	if err != nil {
		return &Result{Err: fmt.Errorf("failed to build request: %w", err)}
	}

	var (
		timing       Timing
		start        = time.Now()
		lastPhaseEnd = start
		dnsStart     time.Time
		connectStart time.Time
		tlsStart     time.Time
	)

	trace := &httptrace.ClientTrace{
		DNSStart: func(httptrace.DNSStartInfo) {
			dnsStart = time.Now()
		},
		DNSDone: func(httptrace.DNSDoneInfo) {
			lastPhaseEnd = time.Now()
			timing.DNSLookup = lastPhaseEnd.Sub(dnsStart)
		},
		ConnectStart: func(string, string) {
			connectStart = time.Now()
		},
		ConnectDone: func(_, _ string, err error) {
			if err == nil {
				lastPhaseEnd = time.Now()
				timing.TCPConnect = lastPhaseEnd.Sub(connectStart)
			}
		},
		TLSHandshakeStart: func() {
			tlsStart = time.Now()
		},
		TLSHandshakeDone: func(_ tls.ConnectionState, err error) {
			if err == nil {
				lastPhaseEnd = time.Now()
				timing.TLSHandshake = lastPhaseEnd.Sub(tlsStart)
			}
		},
		GotFirstResponseByte: func() {
			timing.TimeToFirstByte = time.Since(lastPhaseEnd)
		},
	}
	httpReq = httpReq.WithContext(httptrace.WithClientTrace(httpReq.Context(), trace))

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return &Result{Latency: time.Since(start), Timing: timing, Err: err}
	}
	defer resp.Body.Close()

	transferStart := time.Now()
	body, err := io.ReadAll(resp.Body)
	timing.ContentTransfer = time.Since(transferStart)

	result := &Result{
		StatusCode: resp.StatusCode,
		Latency:    time.Since(start),
		Body:       body,
		Timing:     timing,
	}
	if err != nil {
		result.Err = fmt.Errorf("failed to read response body: %w", err)
	}
	return result
}

// build joins the request path onto the base URL and applies headers.
func (t *HTTPTransport) build(ctx context.Context, req *Request) (*http.Request, error) {
	u := *t.baseURL
	if u.Path == "" {
		u.Path = req.Path
	} else {
		u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(req.Path, "/")
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u.String(), body)
	if err != nil {
		return nil, err
	}

	for k, v := range t.headers {
		httpReq.Header.Set(k, v)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if req.Body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	return httpReq, nil
}

// Close releases idle connections.
func (t *HTTPTransport) Close() {
	t.client.CloseIdleConnections()
}

var _ Transport = (*HTTPTransport)(nil)
