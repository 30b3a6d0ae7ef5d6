package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPTransport_Send(t *testing.T) {
	var got *http.Request
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"committed"}`))
	}))
	defer server.Close()

	cfg := DefaultHTTPConfig()
	cfg.Headers = map[string]string{"User-Agent": "walletprobe-test"}
	tr, err := NewHTTPTransport(server.URL+"/", cfg)
	require.NoError(t, err)
	defer tr.Close()

	res := tr.Send(context.Background(), &Request{
		Method: http.MethodPost,
		Path:   "/v1/transfers",
		Body:   []byte(`{"amount":"0.50"}`),
		Headers: map[string]string{
			"Authorization":   "Bearer abc",
			"Idempotency-Key": "base-1-0",
		},
	})

	require.NoError(t, res.Err)
	assert.False(t, res.Failed())
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.JSONEq(t, `{"status":"committed"}`, string(res.Body))
	assert.Greater(t, res.Latency, time.Duration(0))

	require.NotNil(t, got)
	assert.Equal(t, "/v1/transfers", got.URL.Path)
	assert.Equal(t, "Bearer abc", got.Header.Get("Authorization"))
	assert.Equal(t, "base-1-0", got.Header.Get("Idempotency-Key"))
	assert.Equal(t, "application/json", got.Header.Get("Content-Type"))
	assert.Equal(t, "walletprobe-test", got.Header.Get("User-Agent"))
	assert.Equal(t, `{"amount":"0.50"}`, string(gotBody))
}

func TestHTTPTransport_BasePath(t *testing.T) {
	var path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	tr, err := NewHTTPTransport(server.URL+"/wallet-api", DefaultHTTPConfig())
	require.NoError(t, err)

	res := tr.Send(context.Background(), &Request{Method: http.MethodGet, Path: "/v1/wallets/x/balance"})
	require.NoError(t, res.Err)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, "/wallet-api/v1/wallets/x/balance", path)
}

func TestHTTPTransport_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	tr, err := NewHTTPTransport(url, DefaultHTTPConfig())
	require.NoError(t, err)

	res := tr.Send(context.Background(), &Request{Method: http.MethodGet, Path: "/"})
	assert.True(t, res.Failed())
	assert.Zero(t, res.StatusCode)
}

func TestHTTPTransport_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	cfg := DefaultHTTPConfig()
	cfg.Timeout = 20 * time.Millisecond
	tr, err := NewHTTPTransport(server.URL, cfg)
	require.NoError(t, err)

	res := tr.Send(context.Background(), &Request{Method: http.MethodGet, Path: "/"})
	assert.True(t, res.Failed())
}

func TestNewHTTPTransport_InvalidURL(t *testing.T) {
	_, err := NewHTTPTransport("localhost:8080", DefaultHTTPConfig())
	assert.Error(t, err)

	_, err = NewHTTPTransport("://bad", DefaultHTTPConfig())
	assert.Error(t, err)
}

func TestFunc(t *testing.T) {
	var tr Transport = Func(func(ctx context.Context, req *Request) *Result {
		return &Result{StatusCode: 503}
	})
	assert.Equal(t, 503, tr.Send(context.Background(), &Request{}).StatusCode)
}
