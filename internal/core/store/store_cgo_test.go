//go:build cgo

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/repochain/repochain/internal/config"
	"github.com/repochain/repochain/internal/core"
)

func openMemoryStore(t *testing.T, now *time.Time) *Store {
	t.Helper()
	store, err := Open(context.Background(), config.StoreConfig{Driver: "libsql", Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(context.Background()))
	store.ToolVersion = "0.1.0-test"
	store.Clock = func() time.Time { return *now }
	return store
}

func TestOpenMemoryStore(t *testing.T) {
	ctx := context.Background()
	cfg := config.StoreConfig{
		Driver: "libsql",
		Path:   ":memory:",
	}

	store, err := Open(ctx, cfg)
	require.NoError(t, err)
	require.NotNil(t, store)
	require.Equal(t, "libsql", store.Driver())
	require.NoError(t, store.Close())
}

func TestModuleCache(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store := openMemoryStore(t, &now)

	coord := core.ModuleCoordinate{Group: "org.example", Name: "lib", Version: "1.0-SNAPSHOT"}
	md := &core.ComponentMetadata{
		ID:       coord,
		Changing: true,
		Maven:    &core.MavenSnapshotInfo{Packaging: "jar", SnapshotTimestamp: "20240102.093000"},
	}

	entry, err := store.GetModule(ctx, "central", coord)
	require.NoError(t, err)
	require.Nil(t, entry)

	require.NoError(t, store.PutModule(ctx, "central", coord, md, time.Hour))
	entry, err = store.GetModule(ctx, "central", coord)
	require.NoError(t, err)
	require.NotNil(t, entry)
	require.False(t, entry.Missing)
	require.Equal(t, md, entry.Metadata)
	require.Equal(t, now, entry.CachedAt)
	require.Equal(t, now.Add(time.Hour), entry.ExpiresAt)

	missing := coord.WithVersion("2.0")
	require.NoError(t, store.PutModule(ctx, "central", missing, nil, time.Minute))
	entry, err = store.GetModule(ctx, "central", missing)
	require.NoError(t, err)
	require.True(t, entry.Missing)
	require.Nil(t, entry.Metadata)

	now = now.Add(2 * time.Minute)
	entry, err = store.GetModule(ctx, "central", missing)
	require.NoError(t, err)
	require.Nil(t, entry, "expired rows are not served")

	entries, err := store.ListModules(ctx, ModuleQuery{All: true})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "0.1.0-test", entries[0].ToolVersion)

	_, err = store.PurgeModules(ctx, ModuleQuery{})
	require.Error(t, err)

	purged, err := store.PurgeModules(ctx, ModuleQuery{Expired: true})
	require.NoError(t, err)
	require.Equal(t, int64(1), purged)

	entries, err = store.ListModules(ctx, ModuleQuery{Group: "org.example"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "1.0-SNAPSHOT", entries[0].Coordinate.Version)
}

func TestResourceCache(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store := openMemoryStore(t, &now)

	data, err := store.GetResource(ctx, "abc")
	require.NoError(t, err)
	require.Nil(t, data)

	require.NoError(t, store.PutResource(ctx, "abc", "https://repo.example/maven-metadata.xml", []byte("<metadata/>"), time.Minute))
	require.NoError(t, store.PutResource(ctx, "def", "https://repo.example/other.xml", []byte("<metadata/>"), time.Hour))

	data, err = store.GetResource(ctx, "abc")
	require.NoError(t, err)
	require.Equal(t, "<metadata/>", string(data))

	count, err := store.CountResources(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), count)

	now = now.Add(5 * time.Minute)
	data, err = store.GetResource(ctx, "abc")
	require.NoError(t, err)
	require.Nil(t, data)

	purged, err := store.PurgeResources(ctx, true)
	require.NoError(t, err)
	require.Equal(t, int64(1), purged)

	purged, err = store.PurgeResources(ctx, false)
	require.NoError(t, err)
	require.Equal(t, int64(1), purged)
}

func TestRateLimitPersistence(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store := openMemoryStore(t, &now)

	backoff := now.Add(30 * time.Second)
	require.NoError(t, store.UpdateRateLimit(ctx, "repo.example", &core.RateLimitState{
		RequestCount: 3,
		WindowStart:  now,
		BackoffUntil: &backoff,
	}))
	require.NoError(t, store.UpdateRateLimit(ctx, "repo1.maven.org", &core.RateLimitState{RequestCount: 1, WindowStart: now}))

	state, err := store.GetRateLimit(ctx, "repo.example")
	require.NoError(t, err)
	require.Equal(t, 3, state.RequestCount)
	require.Equal(t, backoff, *state.BackoffUntil)
	require.Nil(t, state.Last429At)

	entries, err := store.ListRateLimits(ctx, RateLimitQuery{Prefix: "repo."})
	require.NoError(t, err)
	require.Len(t, entries, 1)

	removed, err := store.ResetRateLimits(ctx, RateLimitQuery{All: true})
	require.NoError(t, err)
	require.Equal(t, int64(2), removed)

	state, err = store.GetRateLimit(ctx, "repo.example")
	require.NoError(t, err)
	require.Nil(t, state)
}
