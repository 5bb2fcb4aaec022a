package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/repochain/repochain/internal/core"
)

// ModuleEntry is a module cache row as shown by the cache admin commands.
type ModuleEntry struct {
	core.CachedModule
	ToolVersion string `json:"tool_version,omitempty"`
}

// ModuleQuery selects module cache rows.
type ModuleQuery struct {
	All        bool
	Repository string
	Group      string
	Name       string
	// Expired limits the selection to rows past their TTL.
	Expired bool
}

func (q ModuleQuery) whereClause(now time.Time) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if repo := strings.TrimSpace(q.Repository); repo != "" {
		clauses = append(clauses, "repository = ?")
		args = append(args, repo)
	}
	if group := strings.TrimSpace(q.Group); group != "" {
		clauses = append(clauses, "group_id = ?")
		args = append(args, group)
	}
	if name := strings.TrimSpace(q.Name); name != "" {
		clauses = append(clauses, "name = ?")
		args = append(args, name)
	}
	if q.Expired {
		clauses = append(clauses, "expires_at <= ?")
		args = append(args, now.Unix())
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

func (q ModuleQuery) empty() bool {
	return !q.All && !q.Expired &&
		strings.TrimSpace(q.Repository) == "" &&
		strings.TrimSpace(q.Group) == "" &&
		strings.TrimSpace(q.Name) == ""
}

// GetModule returns an unexpired module cache entry, or nil when none exists.
func (s *Store) GetModule(ctx context.Context, repository string, coord core.ModuleCoordinate) (*core.CachedModule, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	repository = strings.TrimSpace(repository)
	if repository == "" {
		return nil, errors.New("repository name is required")
	}

	var (
		missing      int
		metadataJSON sql.NullString
		cachedAt     int64
		expiresAt    int64
	)

	row := s.DB.QueryRowContext(ctx, `
		SELECT missing, metadata_json, cached_at, expires_at
		FROM module_cache
		WHERE repository = ? AND group_id = ? AND name = ? AND version = ? AND expires_at > ?
	`, repository, coord.Group, coord.Name, coord.Version, s.now().Unix())

	if err := row.Scan(&missing, &metadataJSON, &cachedAt, &expiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch cached module: %w", err)
	}

	entry := &core.CachedModule{
		Repository: repository,
		Coordinate: coord,
		Missing:    missing != 0,
		CachedAt:   time.Unix(cachedAt, 0).UTC(),
		ExpiresAt:  time.Unix(expiresAt, 0).UTC(),
	}
	if !entry.Missing {
		md, err := decodeMetadata(metadataJSON)
		if err != nil {
			return nil, err
		}
		entry.Metadata = md
	}
	return entry, nil
}

// PutModule records a module answer for ttl. Nil metadata records a miss.
func (s *Store) PutModule(ctx context.Context, repository string, coord core.ModuleCoordinate, md *core.ComponentMetadata, ttl time.Duration) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if ttl <= 0 {
		return nil
	}

	repository = strings.TrimSpace(repository)
	if repository == "" {
		return errors.New("repository name is required")
	}

	var (
		missing      = 1
		metadataJSON sql.NullString
	)
	if md != nil {
		missing = 0
		data, err := json.Marshal(md)
		if err != nil {
			return fmt.Errorf("encode cached module: %w", err)
		}
		metadataJSON = sql.NullString{String: string(data), Valid: true}
	}

	now := s.now()
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO module_cache (repository, group_id, name, version, missing, metadata_json, cached_at, expires_at, tool_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(repository, group_id, name, version) DO UPDATE SET
			missing = excluded.missing,
			metadata_json = excluded.metadata_json,
			cached_at = excluded.cached_at,
			expires_at = excluded.expires_at,
			tool_version = excluded.tool_version
	`, repository, coord.Group, coord.Name, coord.Version, missing, metadataJSON, now.Unix(), now.Add(ttl).Unix(), s.ToolVersion)
	if err != nil {
		return fmt.Errorf("store cached module: %w", err)
	}
	return nil
}

// ListModules returns module cache rows, expired ones included.
func (s *Store) ListModules(ctx context.Context, q ModuleQuery) ([]ModuleEntry, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	where, args := q.whereClause(s.now())
	rows, err := s.DB.QueryContext(ctx, fmt.Sprintf(`
		SELECT repository, group_id, name, version, missing, metadata_json, cached_at, expires_at, tool_version
		FROM module_cache
		%s
		ORDER BY group_id, name, version, repository
	`, where), args...)
	if err != nil {
		return nil, fmt.Errorf("list cached modules: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	entries := []ModuleEntry{}
	for rows.Next() {
		var (
			entry        ModuleEntry
			missing      int
			metadataJSON sql.NullString
			cachedAt     int64
			expiresAt    int64
			toolVersion  sql.NullString
		)
		if err := rows.Scan(&entry.Repository, &entry.Coordinate.Group, &entry.Coordinate.Name, &entry.Coordinate.Version,
			&missing, &metadataJSON, &cachedAt, &expiresAt, &toolVersion); err != nil {
			return nil, fmt.Errorf("scan cached modules: %w", err)
		}
		entry.Missing = missing != 0
		entry.CachedAt = time.Unix(cachedAt, 0).UTC()
		entry.ExpiresAt = time.Unix(expiresAt, 0).UTC()
		entry.ToolVersion = toolVersion.String
		if !entry.Missing {
			md, err := decodeMetadata(metadataJSON)
			if err != nil {
				return nil, err
			}
			entry.Metadata = md
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list cached modules: %w", err)
	}
	return entries, nil
}

// PurgeModules deletes the selected module cache rows.
func (s *Store) PurgeModules(ctx context.Context, q ModuleQuery) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if q.empty() {
		return 0, errors.New("must specify --all, --expired, --repository, --group, or --name")
	}

	where, args := q.whereClause(s.now())
	result, err := s.DB.ExecContext(ctx, "DELETE FROM module_cache "+where, args...)
	if err != nil {
		return 0, fmt.Errorf("purge cached modules: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge cached modules: %w", err)
	}
	return affected, nil
}

func decodeMetadata(value sql.NullString) (*core.ComponentMetadata, error) {
	if !value.Valid || value.String == "" {
		return nil, errors.New("cached module has no metadata")
	}
	var md core.ComponentMetadata
	if err := json.Unmarshal([]byte(value.String), &md); err != nil {
		return nil, fmt.Errorf("decode cached module: %w", err)
	}
	return &md, nil
}
