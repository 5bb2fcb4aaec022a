// Package transport fetches repository resources from local files and HTTP
// servers. Every reader returned by Fetch must be closed by the caller.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"
)

// ErrNotFound reports that a location holds no resource.
var ErrNotFound = errors.New("resource not found")

// Fetcher retrieves resources by location.
type Fetcher interface {
	Fetch(ctx context.Context, location string) (io.ReadCloser, error)
	Exists(ctx context.Context, location string) (bool, error)
}

// StatusError is returned for unexpected HTTP responses.
type StatusError struct {
	Location   string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d fetching %s", e.StatusCode, e.Location)
}

// RateLimitedError is returned when a host's request window is exhausted.
type RateLimitedError struct {
	Endpoint string
	Wait     time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited by %s, retry in %s", e.Endpoint, e.Wait.Round(time.Second))
}

func notFound(location string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, location)
}

// SchemeFetcher dispatches file locations and http(s) locations to different fetchers.
type SchemeFetcher struct {
	File Fetcher
	HTTP Fetcher
}

func (f *SchemeFetcher) Fetch(ctx context.Context, location string) (io.ReadCloser, error) {
	next, err := f.pick(location)
	if err != nil {
		return nil, err
	}
	return next.Fetch(ctx, location)
}

func (f *SchemeFetcher) Exists(ctx context.Context, location string) (bool, error) {
	next, err := f.pick(location)
	if err != nil {
		return false, err
	}
	return next.Exists(ctx, location)
}

func (f *SchemeFetcher) pick(location string) (Fetcher, error) {
	if f == nil {
		return nil, errors.New("fetcher is not configured")
	}
	if IsHTTP(location) {
		if f.HTTP == nil {
			return nil, fmt.Errorf("no http fetcher configured for %s", location)
		}
		return f.HTTP, nil
	}
	if f.File == nil {
		return &FileFetcher{}, nil
	}
	return f.File, nil
}

// IsHTTP reports whether location uses the http or https scheme.
func IsHTTP(location string) bool {
	parsed, err := url.Parse(strings.TrimSpace(location))
	if err != nil {
		return false
	}
	return parsed.Scheme == "http" || parsed.Scheme == "https"
}

// Join appends slash-separated path elements to a base location.
func Join(base string, elems ...string) string {
	out := strings.TrimRight(base, "/")
	for _, elem := range elems {
		elem = strings.Trim(elem, "/")
		if elem == "" {
			continue
		}
		out += "/" + elem
	}
	return out
}
