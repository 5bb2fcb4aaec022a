package transport

import (
	"bytes"
	"context"
	"crypto/sha1" // #nosec G505 -- cache key derivation, not a security boundary
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"
)

// maxCachedResourceBytes bounds metadata documents held in the resource cache.
const maxCachedResourceBytes = 4 << 20

// ResourceCache stores fetched metadata documents keyed by location hash.
type ResourceCache interface {
	GetResource(ctx context.Context, key string) ([]byte, error)
	PutResource(ctx context.Context, key, location string, data []byte, ttl time.Duration) error
}

// CachingFetcher serves documents from a ResourceCache before asking Next.
// Only successful fetches are cached; misses and failures always reach Next.
type CachingFetcher struct {
	Next  Fetcher
	Cache ResourceCache
	TTL   time.Duration
	// Refresh skips cache reads but still writes fresh documents.
	Refresh bool
	Logger  *logging.Logger
}

// CacheKey derives the cache key for a location.
func CacheKey(location string) string {
	sum := sha1.Sum([]byte(location)) // #nosec G401 -- cache key derivation
	return hex.EncodeToString(sum[:])
}

func (f *CachingFetcher) Fetch(ctx context.Context, location string) (io.ReadCloser, error) {
	if f == nil || f.Next == nil {
		return nil, errors.New("caching fetcher is not configured")
	}
	if f.Cache == nil || f.TTL <= 0 {
		return f.Next.Fetch(ctx, location)
	}

	key := CacheKey(location)
	if !f.Refresh {
		if data, err := f.Cache.GetResource(ctx, key); err == nil && data != nil {
			return io.NopCloser(bytes.NewReader(data)), nil
		}
	}

	body, err := f.Next.Fetch(ctx, location)
	if err != nil {
		return nil, err
	}
	defer body.Close() // nolint:errcheck // best-effort cleanup on fetched resource

	data, err := io.ReadAll(io.LimitReader(body, maxCachedResourceBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", location, err)
	}
	if len(data) > maxCachedResourceBytes {
		return nil, fmt.Errorf("resource %s exceeds %d bytes", location, maxCachedResourceBytes)
	}

	if err := f.Cache.PutResource(ctx, key, location, data, f.TTL); err != nil && f.Logger != nil {
		f.Logger.Debug("resource cache write failed", zap.String("location", location), zap.Error(err))
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *CachingFetcher) Exists(ctx context.Context, location string) (bool, error) {
	if f == nil || f.Next == nil {
		return false, errors.New("caching fetcher is not configured")
	}
	return f.Next.Exists(ctx, location)
}
