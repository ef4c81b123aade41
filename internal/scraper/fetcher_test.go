package scraper

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestFetcher() *HTTPFetcher {
	return NewHTTPFetcher(nil, FetcherConfig{UserAgent: "TestAgent/1.0", DefaultTimeout: 5 * time.Second}, zap.NewNop())
}

func TestFetchRetriesUntilSuccess(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("<html>ok</html>"))
	}))
	defer srv.Close()

	body, err := newTestFetcher().Fetch(context.Background(), Request{URL: srv.URL, Retries: 3, Delay: time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, "<html>ok</html>", body)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestFetchReturnsLastErrorWithStatus(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := newTestFetcher().Fetch(context.Background(), Request{URL: srv.URL, Retries: 2, Delay: time.Millisecond})
	require.Error(t, err)

	var fetchErr *FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, http.StatusNotFound, fetchErr.StatusCode)
	assert.Equal(t, "Not Found", fetchErr.Status)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestFetchZeroRetriesIsOneAttempt(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newTestFetcher().Fetch(context.Background(), Request{URL: srv.URL})
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestFetchSendsBrowserHeaders(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	_, err := newTestFetcher().Fetch(context.Background(), Request{
		URL:     srv.URL,
		Headers: map[string]string{"Referer": "https://example.org/"},
	})
	require.NoError(t, err)
	assert.Equal(t, "TestAgent/1.0", got.Get("User-Agent"))
	assert.Contains(t, got.Get("Accept"), "text/html")
	assert.NotEmpty(t, got.Get("Accept-Language"))
	assert.Equal(t, "https://example.org/", got.Get("Referer"))
}

func TestFetchTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	start := time.Now()
	_, err := newTestFetcher().Fetch(context.Background(), Request{URL: srv.URL, Timeout: 50 * time.Millisecond})
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)

	var fetchErr *FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Zero(t, fetchErr.StatusCode)
}

func TestHealthCheck(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr bool
	}{
		{"ok", http.StatusOK, false},
		{"no content", http.StatusNoContent, false},
		{"head not allowed", http.StatusMethodNotAllowed, false},
		{"head not implemented", http.StatusNotImplemented, false},
		{"forbidden", http.StatusForbidden, true},
		{"unavailable", http.StatusServiceUnavailable, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodHead, r.Method)
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			err := newTestFetcher().HealthCheck(context.Background(), srv.URL, nil, time.Second)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestHealthCheckUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	err := newTestFetcher().HealthCheck(context.Background(), url, nil, time.Second)
	assert.Error(t, err)
}
