package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// FileFetcher reads resources from the local filesystem. Locations may be
// plain paths or file:// URLs.
type FileFetcher struct{}

func (f *FileFetcher) Fetch(ctx context.Context, location string) (io.ReadCloser, error) {
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	path, err := LocalPath(location)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path) // #nosec G304 -- repository paths come from operator configuration
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, notFound(location)
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		_ = file.Close()
		return nil, notFound(location)
	}

	return file, nil
}

func (f *FileFetcher) Exists(ctx context.Context, location string) (bool, error) {
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return false, err
		}
	}

	path, err := LocalPath(location)
	if err != nil {
		return false, err
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
	return !info.IsDir(), nil
}

// LocalPath converts a file:// URL or plain path into a filesystem path.
func LocalPath(location string) (string, error) {
	value := strings.TrimSpace(location)
	if value == "" {
		return "", errors.New("location is required")
	}
	if !strings.HasPrefix(value, "file:") {
		return filepath.FromSlash(value), nil
	}

	parsed, err := url.Parse(value)
	if err != nil {
		return "", fmt.Errorf("invalid file location %q: %w", location, err)
	}
	path := parsed.Path
	if path == "" {
		path = parsed.Opaque
	}
	if path == "" {
		return "", fmt.Errorf("invalid file location %q", location)
	}
	return filepath.FromSlash(path), nil
}
