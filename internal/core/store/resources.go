package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// GetResource returns a cached metadata document, or nil when absent or expired.
func (s *Store) GetResource(ctx context.Context, key string) ([]byte, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var body string
	row := s.DB.QueryRowContext(ctx, `
		SELECT body FROM resource_cache
		WHERE cache_key = ? AND expires_at > ?
	`, strings.TrimSpace(key), s.now().Unix())
	if err := row.Scan(&body); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch cached resource: %w", err)
	}
	return []byte(body), nil
}

// PutResource stores a metadata document for ttl.
func (s *Store) PutResource(ctx context.Context, key, location string, data []byte, ttl time.Duration) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if ttl <= 0 {
		return nil
	}

	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("cache key is required")
	}

	now := s.now()
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO resource_cache (cache_key, location, body, cached_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET
			location = excluded.location,
			body = excluded.body,
			cached_at = excluded.cached_at,
			expires_at = excluded.expires_at
	`, key, location, string(data), now.Unix(), now.Add(ttl).Unix())
	if err != nil {
		return fmt.Errorf("store cached resource: %w", err)
	}
	return nil
}

// CountResources returns the number of cached documents.
func (s *Store) CountResources(ctx context.Context) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var count int64
	if err := s.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM resource_cache").Scan(&count); err != nil {
		return 0, fmt.Errorf("count cached resources: %w", err)
	}
	return count, nil
}

// PurgeResources deletes cached documents; expiredOnly keeps live ones.
func (s *Store) PurgeResources(ctx context.Context, expiredOnly bool) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	stmt, args := "DELETE FROM resource_cache", []any{}
	if expiredOnly {
		stmt += " WHERE expires_at <= ?"
		args = append(args, s.now().Unix())
	}
	result, err := s.DB.ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("purge cached resources: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge cached resources: %w", err)
	}
	return affected, nil
}
