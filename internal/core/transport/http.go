package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultUserAgent = "repochain"

// HTTPFetcher reads resources from HTTP repositories.
type HTTPFetcher struct {
	Client    *http.Client
	Limiter   *RateLimiter
	Username  string
	Password  string
	UserAgent string
}

func (f *HTTPFetcher) Fetch(ctx context.Context, location string) (io.ReadCloser, error) {
	resp, err := f.do(ctx, http.MethodGet, location)
	if err != nil {
		return nil, err
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return resp.Body, nil
	case http.StatusNotFound, http.StatusGone:
		_ = resp.Body.Close()
		return nil, notFound(location)
	default:
		_ = resp.Body.Close()
		return nil, f.statusError(ctx, resp, location)
	}
}

func (f *HTTPFetcher) Exists(ctx context.Context, location string) (bool, error) {
	resp, err := f.do(ctx, http.MethodHead, location)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup on HTTP response body

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound, http.StatusGone:
		return false, nil
	default:
		return false, f.statusError(ctx, resp, location)
	}
}

func (f *HTTPFetcher) do(ctx context.Context, method, location string) (*http.Response, error) {
	if f == nil {
		return nil, errors.New("http fetcher is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	parsed, err := url.Parse(strings.TrimSpace(location))
	if err != nil {
		return nil, fmt.Errorf("invalid location %q: %w", location, err)
	}
	endpoint := parsed.Hostname()

	if f.Limiter != nil && endpoint != "" {
		allowed, wait, err := f.Limiter.Allow(ctx, endpoint)
		if err != nil {
			return nil, err
		}
		if !allowed {
			return nil, &RateLimitedError{Endpoint: endpoint, Wait: wait}
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, parsed.String(), nil)
	if err != nil {
		return nil, err
	}
	userAgent := f.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	req.Header.Set("User-Agent", userAgent)
	if f.Username != "" {
		req.SetBasicAuth(f.Username, f.Password)
	}

	client := f.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	if f.Limiter != nil && endpoint != "" {
		if err := f.Limiter.Record(ctx, endpoint); err != nil {
			return nil, err
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, parsed.Redacted(), err)
	}
	return resp, nil
}

func (f *HTTPFetcher) statusError(ctx context.Context, resp *http.Response, location string) error {
	if resp.StatusCode == http.StatusTooManyRequests {
		wait := retryAfter(resp)
		endpoint := resp.Request.URL.Hostname()
		if f.Limiter != nil && endpoint != "" && wait > 0 {
			_ = f.Limiter.Record429(ctx, endpoint, wait)
		}
		return &RateLimitedError{Endpoint: endpoint, Wait: wait}
	}
	return &StatusError{Location: location, StatusCode: resp.StatusCode}
}

func retryAfter(resp *http.Response) time.Duration {
	if resp == nil || resp.Header == nil {
		return 0
	}

	retry := resp.Header.Get("Retry-After")
	if retry == "" {
		return 0
	}
	if seconds, err := time.ParseDuration(retry + "s"); err == nil {
		return seconds
	}
	if parsed, err := http.ParseTime(retry); err == nil {
		return time.Until(parsed)
	}
	return 0
}
