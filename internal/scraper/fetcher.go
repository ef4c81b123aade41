package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	defaultMaxBodyBytes = 5 << 20
	defaultAccept       = "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8"
	defaultAcceptLang   = "en-US,en;q=0.9"
)

// FetchError is returned when a page cannot be retrieved. StatusCode is
// zero for transport failures.
type FetchError struct {
	URL        string
	StatusCode int
	Status     string
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: HTTP %d %s", e.URL, e.StatusCode, e.Status)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Request describes one page fetch
type Request struct {
	URL     string
	Headers map[string]string
	Timeout time.Duration
	// Retries is the total number of attempts; values below 1 mean one.
	Retries int
	// Delay is the backoff unit: attempt n waits Delay*n before retrying.
	Delay time.Duration
}

// PageFetcher retrieves raw HTML
type PageFetcher interface {
	Fetch(ctx context.Context, req Request) (string, error)
}

// FetcherConfig configures the HTTP fetcher
type FetcherConfig struct {
	UserAgent      string
	DefaultTimeout time.Duration
	MaxBodyBytes   int64
}

// HTTPFetcher fetches pages with browser-like headers, per-request
// timeouts and linear-backoff retries.
type HTTPFetcher struct {
	client *http.Client
	config FetcherConfig
	logger *zap.Logger
}

// NewHTTPFetcher creates a fetcher. client may be nil.
func NewHTTPFetcher(client *http.Client, config FetcherConfig, logger *zap.Logger) *HTTPFetcher {
	if client == nil {
		client = &http.Client{}
	}
	if config.DefaultTimeout <= 0 {
		config.DefaultTimeout = 30 * time.Second
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = defaultMaxBodyBytes
	}
	return &HTTPFetcher{client: client, config: config, logger: logger}
}

// Fetch performs GET with retries. The last attempt's error is returned.
func (f *HTTPFetcher) Fetch(ctx context.Context, req Request) (string, error) {
	attempts := req.Retries
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		body, err := f.fetchOnce(ctx, req)
		if err == nil {
			return body, nil
		}
		lastErr = err

		if attempt == attempts || ctx.Err() != nil {
			break
		}

		wait := req.Delay * time.Duration(attempt)
		f.logger.Warn("Fetch attempt failed, retrying",
			zap.String("url", req.URL),
			zap.Int("attempt", attempt),
			zap.Int("attempts", attempts),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
		if err := sleep(ctx, wait); err != nil {
			break
		}
	}
	return "", lastErr
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context, req Request) (string, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = f.config.DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return "", &FetchError{URL: req.URL, Err: err}
	}
	f.setHeaders(httpReq, req.Headers)

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return "", &FetchError{URL: req.URL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return "", &FetchError{
			URL:        req.URL,
			StatusCode: resp.StatusCode,
			Status:     http.StatusText(resp.StatusCode),
			Err:        errors.New(resp.Status),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.config.MaxBodyBytes))
	if err != nil {
		return "", &FetchError{URL: req.URL, Err: fmt.Errorf("read body: %w", err)}
	}
	return string(body), nil
}

// HealthCheck sends a HEAD request to url. Servers that answer 405 or 501
// are reachable but reject HEAD, so they pass.
func (f *HTTPFetcher) HealthCheck(ctx context.Context, url string, headers map[string]string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = f.config.DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return &FetchError{URL: url, Err: err}
	}
	f.setHeaders(httpReq, headers)

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return &FetchError{URL: url, Err: err}
	}
	resp.Body.Close()

	switch {
	case resp.StatusCode < 400:
		return nil
	case resp.StatusCode == http.StatusMethodNotAllowed, resp.StatusCode == http.StatusNotImplemented:
		return nil
	default:
		return &FetchError{
			URL:        url,
			StatusCode: resp.StatusCode,
			Status:     http.StatusText(resp.StatusCode),
			Err:        errors.New(resp.Status),
		}
	}
}

func (f *HTTPFetcher) setHeaders(req *http.Request, headers map[string]string) {
	req.Header.Set("User-Agent", f.config.UserAgent)
	req.Header.Set("Accept", defaultAccept)
	req.Header.Set("Accept-Language", defaultAcceptLang)
	req.Header.Set("Cache-Control", "no-cache")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
