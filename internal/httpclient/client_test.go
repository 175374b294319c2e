package httpclient_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NovaUNL/Supernova-sub000/internal/httpclient"
)

// newTestServer creates a test server with keep-alives disabled, closed when the test ends.
// Parallel tests share the default transport, so a closed keep-alive connection could leak
// into another test.
func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	server.Config.SetKeepAlivesEnabled(false)
	t.Cleanup(server.Close)
	return server
}

func TestNewDefaultClient(t *testing.T) {
	t.Parallel()

	assert.NotNil(t, httpclient.NewDefaultClient(5*time.Second))
	assert.NotNil(t, httpclient.NewDefaultClient(0))
}

func TestDefaultClient_Get(t *testing.T) {
	t.Parallel()

	var userAgent, accept string
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		userAgent = r.Header.Get("User-Agent")
		accept = r.Header.Get("Accept")
		_, _ = w.Write([]byte(`[{"id":1,"name":"Informatics"}]`))
	})

	data, err := httpclient.NewDefaultClient(time.Second).Get(context.Background(), server.URL+"/departments/")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":1,"name":"Informatics"}]`, string(data))
	assert.Equal(t, httpclient.UserAgent, userAgent)
	assert.Equal(t, "application/json", accept)
}

func TestDefaultClient_Get_HTTPErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		statusCode int
	}{
		{name: "not found", statusCode: http.StatusNotFound},
		{name: "server error", statusCode: http.StatusInternalServerError},
		{name: "bad gateway", statusCode: http.StatusBadGateway},
		{name: "unavailable", statusCode: http.StatusServiceUnavailable},
		{name: "rate limited", statusCode: http.StatusTooManyRequests},
		{name: "not modified", statusCode: http.StatusNotModified},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			server := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.statusCode)
			})

			_, err := httpclient.NewDefaultClient(time.Second).Get(context.Background(), server.URL)
			require.Error(t, err)
			assert.Equal(t, tt.statusCode, httpclient.StatusCode(err))
			assert.Contains(t, err.Error(), fmt.Sprintf("GET %s: status %d", server.URL, tt.statusCode))
		})
	}
}

func TestDefaultClient_Get_RequestErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		url           string
		errorContains string
	}{
		{name: "invalid URL scheme", url: "://invalid-url", errorContains: "failed to create request"},
		{name: "unreachable host", url: "http://invalid-host-does-not-exist.invalid:9999", errorContains: "failed to execute request"},
		{name: "empty URL", url: "", errorContains: "failed to execute request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := httpclient.NewDefaultClient(time.Second).Get(context.Background(), tt.url)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorContains)
			assert.Zero(t, httpclient.StatusCode(err))
		})
	}
}

func TestDefaultClient_Get_Timeouts(t *testing.T) {
	t.Parallel()

	slow := func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
			w.WriteHeader(http.StatusOK)
		case <-r.Context().Done():
		}
	}

	t.Run("client timeout", func(t *testing.T) {
		t.Parallel()
		server := newTestServer(t, slow)

		_, err := httpclient.NewDefaultClient(100*time.Millisecond).Get(context.Background(), server.URL)
		require.Error(t, err)
	})

	t.Run("cancelled context", func(t *testing.T) {
		t.Parallel()
		server := newTestServer(t, slow)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := httpclient.NewDefaultClient(time.Minute).Get(ctx, server.URL)
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestDefaultClient_Get_SizeLimit(t *testing.T) {
	t.Parallel()

	t.Run("content length over the limit", func(t *testing.T) {
		t.Parallel()
		server := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Length", fmt.Sprintf("%d", httpclient.MaxResponseSize+1))
			w.WriteHeader(http.StatusOK)
		})

		_, err := httpclient.NewDefaultClient(time.Second).Get(context.Background(), server.URL)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "exceeds maximum allowed size")
		assert.Contains(t, err.Error(), "100.00 MB")
	})

	t.Run("streamed body over the limit", func(t *testing.T) {
		t.Parallel()
		server := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			chunk := make([]byte, 1024*1024)
			for range 101 {
				if _, err := w.Write(chunk); err != nil {
					return
				}
			}
		})

		_, err := httpclient.NewDefaultClient(10*time.Second).Get(context.Background(), server.URL)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "exceeds maximum allowed size")
	})
}

func TestDefaultClient_WithMaxResponseSize(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/students/" {
			_, _ = w.Write([]byte(`[{"id":1},{"id":2},{"id":3}]`))
			return
		}
		_, _ = w.Write([]byte(`[{"id":1}]`))
	})
	client := httpclient.NewDefaultClient(time.Second, httpclient.WithMaxResponseSize(10))

	data, err := client.Get(context.Background(), server.URL+"/teachers/")
	require.NoError(t, err, "a body of exactly the limit fits")
	assert.Len(t, data, 10)

	_, err = client.Get(context.Background(), server.URL+"/students/")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds maximum allowed size of 10 bytes")
}
