package repository

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/repochain/repochain/internal/core"
	"github.com/repochain/repochain/internal/core/transport"
)

type memoryModuleCache struct {
	mu      sync.Mutex
	entries map[string]*core.CachedModule
}

func (m *memoryModuleCache) GetModule(ctx context.Context, repository string, coord core.ModuleCoordinate) (*core.CachedModule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[repository+"|"+coord.String()], nil
}

func (m *memoryModuleCache) PutModule(ctx context.Context, repository string, coord core.ModuleCoordinate, md *core.ComponentMetadata, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entries == nil {
		m.entries = map[string]*core.CachedModule{}
	}
	m.entries[repository+"|"+coord.String()] = &core.CachedModule{
		Repository: repository,
		Coordinate: coord,
		Metadata:   md,
		Missing:    md == nil,
	}
	return nil
}

func mavenServer(t *testing.T, files map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/x/boom/maven-metadata.xml" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		body, ok := files[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

const pomJar = `<project><groupId>org.example</groupId><artifactId>lib</artifactId><version>1.0</version></project>`

func remoteRepo(srv *httptest.Server, cache ModuleCache) *MavenRepository {
	return &MavenRepository{
		Name:     "remote",
		URL:      srv.URL,
		Fetcher:  &transport.HTTPFetcher{Client: srv.Client()},
		Cache:    cache,
		UseCache: true,
	}
}

func TestMavenRepositoryResolvesUniqueSnapshot(t *testing.T) {
	srv := mavenServer(t, map[string]string{
		"/org/example/lib/1.0-SNAPSHOT/maven-metadata.xml": `<metadata><versioning><snapshot><timestamp>20240101.120000</timestamp><buildNumber>3</buildNumber></snapshot></versioning></metadata>`,
		"/org/example/lib/1.0-SNAPSHOT/lib-1.0-20240101.120000-3.pom": pomJar,
	})
	repo := remoteRepo(srv, nil)
	coord := core.ModuleCoordinate{Group: "org.example", Name: "lib", Version: "1.0-SNAPSHOT"}

	answer, err := repo.Remote().QueryMetadata(context.Background(), coord, core.Override{})
	require.NoError(t, err)
	require.Equal(t, core.StateResolved, answer.Outcome.State())

	md := answer.Outcome.Metadata()
	require.True(t, md.Changing)
	require.False(t, md.Generated)
	require.Equal(t, "jar", md.Packaging())
	require.Equal(t, "20240101.120000", md.Maven.SnapshotTimestamp)
	require.Equal(t, "3", md.Maven.BuildNumber)
	require.Equal(t, "1.0-20240101.120000-3", md.Maven.UniqueVersion)
}

func TestMavenRepositoryDynamicSelector(t *testing.T) {
	srv := mavenServer(t, map[string]string{
		"/org/example/lib/maven-metadata.xml": `<metadata><versioning><versions><version>1.0</version><version>1.1</version><version>2.0</version></versions></versioning></metadata>`,
		"/org/example/lib/1.1/lib-1.1.pom":    pomJar,
	})
	repo := remoteRepo(srv, nil)

	answer, err := repo.Remote().QueryMetadata(context.Background(), core.ModuleCoordinate{Group: "org.example", Name: "lib", Version: "1.+"}, core.Override{})
	require.NoError(t, err)
	require.Equal(t, core.StateResolved, answer.Outcome.State())
	require.Equal(t, "1.1", answer.Outcome.Metadata().ID.Version)
	require.False(t, answer.Outcome.Metadata().Changing)

	answer, err = repo.Remote().QueryMetadata(context.Background(), core.ModuleCoordinate{Group: "org.example", Name: "lib", Version: "[3.0,)"}, core.Override{})
	require.NoError(t, err)
	require.Equal(t, core.StateMissing, answer.Outcome.State())
	require.True(t, answer.Authoritative)
}

func TestMavenRepositoryGeneratedMetadata(t *testing.T) {
	srv := mavenServer(t, map[string]string{
		"/org/example/bare/1.0/bare-1.0.jar": "binary",
	})
	repo := remoteRepo(srv, nil)
	coord := core.ModuleCoordinate{Group: "org.example", Name: "bare", Version: "1.0"}

	answer, err := repo.Remote().QueryMetadata(context.Background(), coord, core.Override{})
	require.NoError(t, err)
	require.Equal(t, core.StateMissing, answer.Outcome.State())

	repo.AllowGenerated = true
	answer, err = repo.Remote().QueryMetadata(context.Background(), coord, core.Override{Changing: true})
	require.NoError(t, err)
	require.Equal(t, core.StateResolved, answer.Outcome.State())
	require.True(t, answer.Outcome.Metadata().Generated)
	require.True(t, answer.Outcome.Metadata().Changing)
}

func TestMavenRepositoryCacheTier(t *testing.T) {
	srv := mavenServer(t, map[string]string{
		"/org/example/lib/1.0/lib-1.0.pom": pomJar,
	})
	cache := &memoryModuleCache{}
	repo := remoteRepo(srv, cache)
	ctx := context.Background()
	coord := core.ModuleCoordinate{Group: "org.example", Name: "lib", Version: "1.0"}
	absent := core.ModuleCoordinate{Group: "org.example", Name: "absent", Version: "1.0"}

	answer, err := repo.Local().QueryMetadata(ctx, coord, core.Override{})
	require.NoError(t, err)
	require.True(t, answer.Unknown)

	_, err = repo.Remote().QueryMetadata(ctx, coord, core.Override{})
	require.NoError(t, err)
	_, err = repo.Remote().QueryMetadata(ctx, absent, core.Override{})
	require.NoError(t, err)

	answer, err = repo.Local().QueryMetadata(ctx, coord, core.Override{Changing: true})
	require.NoError(t, err)
	require.False(t, answer.Unknown)
	require.Equal(t, core.StateResolved, answer.Outcome.State())
	require.True(t, answer.Outcome.FromCache())
	require.True(t, answer.Outcome.Metadata().Changing)

	answer, err = repo.Local().QueryMetadata(ctx, absent, core.Override{})
	require.NoError(t, err)
	require.Equal(t, core.StateMissing, answer.Outcome.State())
	require.False(t, answer.Authoritative)

	repo.AuthoritativeMissing = true
	answer, err = repo.Local().QueryMetadata(ctx, absent, core.Override{})
	require.NoError(t, err)
	require.True(t, answer.Authoritative)

	repo.UseCache = false
	answer, err = repo.Local().QueryMetadata(ctx, coord, core.Override{})
	require.NoError(t, err)
	require.True(t, answer.Unknown)
}

func TestMavenRepositoryServerError(t *testing.T) {
	srv := mavenServer(t, nil)
	repo := remoteRepo(srv, nil)

	_, err := repo.Remote().QueryMetadata(context.Background(), core.ModuleCoordinate{Group: "x", Name: "boom", Version: "latest"}, core.Override{})
	require.Error(t, err)
}

func writeLocal(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestMavenLocalRepositoryOrphanedPOM(t *testing.T) {
	root := t.TempDir()
	writeLocal(t, root, "org/example/webapp/1.0/webapp-1.0.pom", `<project><groupId>org.example</groupId><artifactId>webapp</artifactId><version>1.0</version><packaging>war</packaging></project>`)
	repo := &MavenLocalRepository{Name: "m2", Path: root}

	answer, err := repo.Local().QueryMetadata(context.Background(), core.ModuleCoordinate{Group: "org.example", Name: "webapp", Version: "1.0"}, core.Override{})
	require.NoError(t, err)
	require.Equal(t, core.StateMissing, answer.Outcome.State())
	require.Nil(t, repo.Remote())

	writeLocal(t, root, "org/example/webapp/1.0/webapp-1.0.war", "binary")
	answer, err = repo.Local().QueryMetadata(context.Background(), core.ModuleCoordinate{Group: "org.example", Name: "webapp", Version: "1.0"}, core.Override{})
	require.NoError(t, err)
	require.Equal(t, core.StateResolved, answer.Outcome.State())
	require.Equal(t, "war", answer.Outcome.Metadata().Packaging())
}

func TestMavenLocalRepositorySnapshotTimestamp(t *testing.T) {
	root := t.TempDir()
	dir := "org/example/lib/1.0-SNAPSHOT/"
	writeLocal(t, root, dir+"lib-1.0-SNAPSHOT.pom", pomJar)
	writeLocal(t, root, dir+"lib-1.0-SNAPSHOT.jar", "binary")
	writeLocal(t, root, dir+"maven-metadata-local.xml", `<metadata><versioning><lastUpdated>20240101120000</lastUpdated></versioning></metadata>`)
	writeLocal(t, root, dir+"maven-metadata-snapshots.xml", `<metadata><versioning><snapshot><timestamp>20240102.093000</timestamp></snapshot></versioning></metadata>`)
	repo := &MavenLocalRepository{Name: "m2", Path: root}

	answer, err := repo.Local().QueryMetadata(context.Background(), core.ModuleCoordinate{Group: "org.example", Name: "lib", Version: "1.0-SNAPSHOT"}, core.Override{})
	require.NoError(t, err)
	require.Equal(t, core.StateResolved, answer.Outcome.State())
	ts, ok := answer.Outcome.Metadata().SnapshotTimestamp()
	require.True(t, ok)
	require.Equal(t, "20240102.093000", ts)
}

func TestMavenLocalRepositoryDynamicSelector(t *testing.T) {
	root := t.TempDir()
	writeLocal(t, root, "org/example/lib/maven-metadata-local.xml", `<metadata><versioning><versions><version>1.0</version><version>1.2</version></versions></versioning></metadata>`)
	writeLocal(t, root, "org/example/lib/1.2/lib-1.2.pom", pomJar)
	writeLocal(t, root, "org/example/lib/1.2/lib-1.2.jar", "binary")
	repo := &MavenLocalRepository{Name: "m2", Path: root}

	answer, err := repo.Local().QueryMetadata(context.Background(), core.ModuleCoordinate{Group: "org.example", Name: "lib", Version: "latest"}, core.Override{})
	require.NoError(t, err)
	require.Equal(t, "1.2", answer.Outcome.Metadata().ID.Version)
}

func TestNewRepository(t *testing.T) {
	repo, err := New(Spec{Name: "central", URL: "https://repo.maven.apache.org/maven2"}, Deps{})
	require.NoError(t, err)
	require.Equal(t, core.RepositoryKindMavenRemote, repo.Handle().Kind)
	require.NotNil(t, repo.Remote())

	repo, err = New(Spec{Name: "m2", Kind: core.RepositoryKindMavenLocal, Path: "/srv/m2/../m2"}, Deps{})
	require.NoError(t, err)
	require.Equal(t, "/srv/m2", repo.Handle().Location)

	_, err = New(Spec{Name: "bad", Kind: "ivy"}, Deps{})
	require.ErrorContains(t, err, "unsupported kind")

	_, err = New(Spec{Name: "nourl"}, Deps{})
	require.Error(t, err)

	_, err = New(Spec{URL: "https://repo.example"}, Deps{})
	require.Error(t, err)
}

func TestCachePolicyTTL(t *testing.T) {
	policy := CachePolicy{ModuleTTL: time.Hour}
	require.Equal(t, time.Hour, policy.TTLFor(&core.ComponentMetadata{}))
	require.Equal(t, 10*time.Minute, policy.TTLFor(&core.ComponentMetadata{Changing: true}))
	require.Equal(t, 10*time.Minute, policy.TTLFor(nil))
}
