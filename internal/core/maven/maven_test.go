package maven

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repochain/repochain/internal/core"
	"github.com/repochain/repochain/internal/core/transport"
)

func TestParseTimestampFormats(t *testing.T) {
	instant := time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)

	snapshot, ok := ParseTimestamp(FormatSnapshotTimestamp(instant))
	require.True(t, ok)
	local, ok := ParseTimestamp(FormatLocalTimestamp(instant))
	require.True(t, ok)

	require.Equal(t, "20240102.093000", FormatSnapshotTimestamp(instant))
	require.Equal(t, "20240102093000", FormatLocalTimestamp(instant))
	require.True(t, snapshot.Equal(local))
	require.True(t, snapshot.Equal(instant))
}

func TestParseTimestampUnknown(t *testing.T) {
	for _, value := range []string{"", "   ", "2024-01-02", "20240102.0930", "2024010209300", "20241302.093000", "not.a.time"} {
		_, ok := ParseTimestamp(value)
		assert.False(t, ok, value)
	}

	parsed, ok := ParseTimestamp(" 20240101120000\n")
	require.True(t, ok)
	require.Equal(t, time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC), parsed)
}

func TestLater(t *testing.T) {
	require.True(t, Later("20240102.090000", "20240101.120000"))
	require.False(t, Later("20240101.120000", "20240102.090000"))
	require.False(t, Later("20240101.120000", "20240101.120000"))
	require.False(t, Later("garbage", "20240101.120000"))
	require.False(t, Later("20240102.090000", ""))
	require.True(t, Later("20240102.090000", "20240101120000"))
}

const remoteMetadata = `<?xml version="1.0" encoding="UTF-8"?>
<metadata modelVersion="1.1.0">
  <groupId>org.example</groupId>
  <artifactId>lib</artifactId>
  <versioning>
    <lastUpdated>20240101130000</lastUpdated>
    <snapshot>
      <timestamp>20240101.120000</timestamp>
      <buildNumber>7</buildNumber>
    </snapshot>
    <versions>
      <version> 1.0 </version>
      <version></version>
      <version>1.1</version>
    </versions>
  </versioning>
</metadata>`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestMetadataLoaders(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, MetadataFile)
	writeFile(t, path, remoteMetadata)
	ctx := context.Background()

	remote, err := (&RemoteMetadataLoader{Fetcher: &transport.FileFetcher{}}).Load(ctx, path)
	require.NoError(t, err)
	require.Equal(t, &SideMetadata{Timestamp: "20240101.120000", BuildNumber: "7", Versions: []string{"1.0", "1.1"}}, remote)

	snapshots, err := (&SnapshotsMetadataLoader{}).Load(ctx, path)
	require.NoError(t, err)
	require.Equal(t, "20240101.120000", snapshots.Timestamp)

	local, err := (&LocalMetadataLoader{}).Load(ctx, path)
	require.NoError(t, err)
	require.Equal(t, "20240101130000", local.Timestamp)
	require.Equal(t, "7", local.BuildNumber)
}

func TestMetadataLoaderErrors(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	_, err := (&LocalMetadataLoader{}).Load(ctx, filepath.Join(dir, LocalMetadataFile))
	var missing *MissingResourceError
	require.True(t, errors.As(err, &missing))
	require.ErrorIs(t, err, transport.ErrNotFound)

	broken := filepath.Join(dir, SnapshotsMetadataFile)
	writeFile(t, broken, "<metadata><versioning>")
	_, err = (&SnapshotsMetadataLoader{}).Load(ctx, broken)
	var failure *LoadFailureError
	require.True(t, errors.As(err, &failure))
	require.Contains(t, err.Error(), "unable to load maven metadata from")
	require.False(t, errors.Is(err, transport.ErrNotFound))

	wrongRoot := filepath.Join(dir, "other.xml")
	writeFile(t, wrongRoot, "<project/>")
	_, err = (&SnapshotsMetadataLoader{}).Load(ctx, wrongRoot)
	require.True(t, errors.As(err, &failure))
}

type trackingBody struct {
	io.Reader
	closed bool
}

func (b *trackingBody) Close() error {
	b.closed = true
	return nil
}

type trackingFetcher struct {
	body *trackingBody
	err  error
}

func (f *trackingFetcher) Fetch(ctx context.Context, location string) (io.ReadCloser, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.body, nil
}

func (f *trackingFetcher) Exists(ctx context.Context, location string) (bool, error) {
	return f.body != nil, nil
}

func TestMetadataLoaderClosesStream(t *testing.T) {
	ctx := context.Background()

	ok := &trackingFetcher{body: &trackingBody{Reader: strings.NewReader(remoteMetadata)}}
	_, err := (&RemoteMetadataLoader{Fetcher: ok}).Load(ctx, "https://repo.example/maven-metadata.xml")
	require.NoError(t, err)
	require.True(t, ok.body.closed)

	bad := &trackingFetcher{body: &trackingBody{Reader: strings.NewReader("not xml")}}
	_, err = (&RemoteMetadataLoader{Fetcher: bad}).Load(ctx, "https://repo.example/maven-metadata.xml")
	require.Error(t, err)
	require.True(t, bad.body.closed)

	failing := &trackingFetcher{err: errors.New("connection reset")}
	_, err = (&RemoteMetadataLoader{Fetcher: failing}).Load(ctx, "https://repo.example/maven-metadata.xml")
	var failure *LoadFailureError
	require.True(t, errors.As(err, &failure))
}

func localSideFile(timestamp string) string {
	return "<metadata><versioning><lastUpdated>" + timestamp + "</lastUpdated></versioning></metadata>"
}

func snapshotsSideFile(timestamp string) string {
	return "<metadata><versioning><snapshot><timestamp>" + timestamp + "</timestamp><buildNumber>1</buildNumber></snapshot></versioning></metadata>"
}

func TestSnapshotTimestampResolverMergesSideFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, LocalMetadataFile), localSideFile("20240101120000"))
	writeFile(t, filepath.Join(dir, SnapshotsMetadataFile), snapshotsSideFile("20240102.093000"))

	resolver := NewSnapshotTimestampResolver(nil, nil)
	timestamp, ok := resolver.Resolve(context.Background(), dir)
	require.True(t, ok)

	parsed, ok := ParseTimestamp(timestamp)
	require.True(t, ok)
	require.Equal(t, time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC), parsed)
}

func TestSnapshotTimestampResolverLocalNewer(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, LocalMetadataFile), localSideFile("20240103000000"))
	writeFile(t, filepath.Join(dir, SnapshotsMetadataFile), snapshotsSideFile("20240102.093000"))

	timestamp, ok := NewSnapshotTimestampResolver(nil, nil).Resolve(context.Background(), dir)
	require.True(t, ok)
	require.Equal(t, "20240103000000", timestamp)
}

func TestSnapshotTimestampResolverSingleAndAbsent(t *testing.T) {
	ctx := context.Background()
	resolver := NewSnapshotTimestampResolver(nil, nil)

	onlyLocal := t.TempDir()
	writeFile(t, filepath.Join(onlyLocal, LocalMetadataFile), localSideFile("20240101120000"))
	timestamp, ok := resolver.Resolve(ctx, onlyLocal)
	require.True(t, ok)
	require.Equal(t, "20240101120000", timestamp)

	brokenLocal := t.TempDir()
	writeFile(t, filepath.Join(brokenLocal, LocalMetadataFile), "<metadata>")
	writeFile(t, filepath.Join(brokenLocal, SnapshotsMetadataFile), snapshotsSideFile("20240102.093000"))
	timestamp, ok = resolver.Resolve(ctx, brokenLocal)
	require.True(t, ok)
	require.Equal(t, "20240102.093000", timestamp)

	_, ok = resolver.Resolve(ctx, t.TempDir())
	require.False(t, ok)
}

func TestSnapshotTimestampResolverUnparsableAbandonsMerge(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, LocalMetadataFile), localSideFile("yesterday"))
	writeFile(t, filepath.Join(dir, SnapshotsMetadataFile), snapshotsSideFile("20240102.093000"))

	_, ok := NewSnapshotTimestampResolver(nil, nil).Resolve(context.Background(), dir)
	require.False(t, ok)
}

func TestSnapshotTimestampResolverApply(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, SnapshotsMetadataFile), snapshotsSideFile("20240102.093000"))
	resolver := NewSnapshotTimestampResolver(nil, nil)
	ctx := context.Background()
	coord := core.ModuleCoordinate{Group: "org.example", Name: "lib", Version: "1.0-SNAPSHOT"}

	md := &core.ComponentMetadata{ID: coord, Changing: true, Maven: &core.MavenSnapshotInfo{Packaging: "jar"}}
	applied := resolver.Apply(ctx, md, dir)
	ts, ok := applied.SnapshotTimestamp()
	require.True(t, ok)
	require.Equal(t, "20240102.093000", ts)
	_, ok = md.SnapshotTimestamp()
	require.False(t, ok, "input metadata must not be mutated")

	stable := &core.ComponentMetadata{ID: coord, Maven: &core.MavenSnapshotInfo{Packaging: "jar"}}
	require.Same(t, stable, resolver.Apply(ctx, stable, dir))

	stamped := md.WithSnapshotTimestamp("20230101.000000")
	require.Same(t, stamped, resolver.Apply(ctx, stamped, dir))

	nonMaven := &core.ComponentMetadata{ID: coord, Changing: true}
	require.Same(t, nonMaven, resolver.Apply(ctx, nonMaven, dir))
}

type probeRecorder struct {
	present map[string]bool
	probed  []core.ArtifactCoordinate
}

func (p *probeRecorder) Exists(ctx context.Context, artifact core.ArtifactCoordinate) (bool, error) {
	p.probed = append(p.probed, artifact)
	return p.present[artifact.Type], nil
}

func TestOrphanFilterRejectsWarWithoutArtifact(t *testing.T) {
	coord := core.ModuleCoordinate{Group: "org.example", Name: "webapp", Version: "1.0"}
	probe := &probeRecorder{present: map[string]bool{"pom": true}}
	filter := &OrphanFilter{Probe: probe}

	md := &core.ComponentMetadata{ID: coord, Maven: &core.MavenSnapshotInfo{Packaging: "war"}}
	out, err := filter.Filter(context.Background(), "local", md)
	require.NoError(t, err)
	require.Nil(t, out)
	require.Len(t, probe.probed, 1)
	require.Equal(t, "war", probe.probed[0].Type)
}

func TestOrphanFilterJarFamily(t *testing.T) {
	coord := core.ModuleCoordinate{Group: "org.example", Name: "plugin", Version: "1.0"}
	probe := &probeRecorder{present: map[string]bool{"jar": true}}
	filter := &OrphanFilter{Probe: probe}

	for _, packaging := range []string{"jar", "ejb", "bundle", "maven-plugin", "eclipse-plugin"} {
		md := &core.ComponentMetadata{ID: coord, Maven: &core.MavenSnapshotInfo{Packaging: packaging}}
		out, err := filter.Filter(context.Background(), "local", md)
		require.NoError(t, err)
		require.Same(t, md, out, packaging)
	}
	for _, artifact := range probe.probed {
		require.Equal(t, "jar", artifact.Type)
	}
}

func TestOrphanFilterPomPackaging(t *testing.T) {
	probe := &probeRecorder{}
	filter := &OrphanFilter{Probe: probe}
	md := &core.ComponentMetadata{
		ID:    core.ModuleCoordinate{Group: "org.example", Name: "parent", Version: "1.0"},
		Maven: &core.MavenSnapshotInfo{Packaging: "pom"},
	}
	out, err := filter.Filter(context.Background(), "local", md)
	require.NoError(t, err)
	require.Same(t, md, out)
	require.Empty(t, probe.probed)
}

func TestOrphanFilterProbeError(t *testing.T) {
	filter := &OrphanFilter{Probe: ArtifactProbeFunc(func(ctx context.Context, artifact core.ArtifactCoordinate) (bool, error) {
		return false, errors.New("permission denied")
	})}
	md := &core.ComponentMetadata{
		ID:    core.ModuleCoordinate{Group: "org.example", Name: "lib", Version: "1.0"},
		Maven: &core.MavenSnapshotInfo{Packaging: "jar"},
	}
	_, err := filter.Filter(context.Background(), "local", md)
	require.ErrorContains(t, err, "permission denied")
}

func TestLayout(t *testing.T) {
	layout := Layout{Root: "https://repo.example/maven2/"}
	coord := core.ModuleCoordinate{Group: "org.example.tools", Name: "lib", Version: "1.0-SNAPSHOT"}

	require.Equal(t, "https://repo.example/maven2/org/example/tools/lib/maven-metadata.xml", layout.ModuleMetadata(coord))
	require.Equal(t, "https://repo.example/maven2/org/example/tools/lib/1.0-SNAPSHOT/maven-metadata.xml", layout.VersionMetadata(coord, MetadataFile))

	unique := UniqueSnapshotVersion(coord.Version, "20240101.120000", "3")
	require.Equal(t, "1.0-20240101.120000-3", unique)
	require.Equal(t, "https://repo.example/maven2/org/example/tools/lib/1.0-SNAPSHOT/lib-1.0-20240101.120000-3.pom", layout.POM(coord, unique))

	sources := core.ArtifactCoordinate{Module: coord, Type: "jar", Classifier: "sources"}
	require.Equal(t, "lib-1.0-SNAPSHOT-sources.jar", ArtifactFileName(sources, ""))

	require.Equal(t, "1.0", UniqueSnapshotVersion("1.0", "20240101.120000", "3"))
	require.Equal(t, "1.0-SNAPSHOT", UniqueSnapshotVersion("1.0-SNAPSHOT", "", "3"))
}

func TestParsePOM(t *testing.T) {
	pom, err := ParsePOM(strings.NewReader(`<project xmlns="http://maven.apache.org/POM/4.0.0">
  <parent><groupId>org.example</groupId><artifactId>parent</artifactId><version>2.0</version></parent>
  <artifactId>webapp</artifactId>
  <packaging>war</packaging>
</project>`))
	require.NoError(t, err)
	require.Equal(t, &POM{GroupID: "org.example", ArtifactID: "webapp", Version: "2.0", Packaging: "war"}, pom)

	pom, err = ParsePOM(strings.NewReader(`<project><groupId>g</groupId><artifactId>a</artifactId><version>1</version></project>`))
	require.NoError(t, err)
	require.Equal(t, DefaultPackaging, pom.Packaging)

	md := pom.Metadata(core.ModuleCoordinate{Group: "g", Name: "a", Version: "1"}, true)
	require.True(t, md.Changing)
	require.Equal(t, "jar", md.Packaging())

	_, err = ParsePOM(strings.NewReader(`<project><groupId>g</groupId></project>`))
	require.Error(t, err)
}

func TestSelectVersion(t *testing.T) {
	versions := []string{"1.0", "1.2", "1.10", "2.0", "2.1-SNAPSHOT"}

	cases := []struct {
		selector string
		want     string
	}{
		{selector: "latest", want: "2.1-SNAPSHOT"},
		{selector: "latest.integration", want: "2.1-SNAPSHOT"},
		{selector: "latest.release", want: "2.0"},
		{selector: "1.+", want: "1.10"},
		{selector: "[1.0,2.0)", want: "1.10"},
		{selector: "[1.0,2.0]", want: "2.0"},
		{selector: "(1.0,1.10)", want: "1.2"},
		{selector: "[1.2]", want: "1.2"},
		{selector: ">=1.1, <1.5", want: "1.2"},
	}
	for _, tc := range cases {
		t.Run(tc.selector, func(t *testing.T) {
			got, err := SelectVersion(tc.selector, versions)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}

	_, err := SelectVersion("[3.0,)", versions)
	require.Error(t, err)
	_, err = SelectVersion("latest", nil)
	require.Error(t, err)
}

func TestIsDynamic(t *testing.T) {
	for _, v := range []string{"latest", "latest.release", "1.+", "[1.0,2.0)", ">=1.0"} {
		assert.True(t, IsDynamic(v), v)
	}
	for _, v := range []string{"1.0", "1.0-SNAPSHOT", "2.3.4-M1", ""} {
		assert.False(t, IsDynamic(v), v)
	}
}

func TestSelectVersionNoMatch(t *testing.T) {
	_, err := SelectVersion("latest.release", []string{"1.0-SNAPSHOT"})
	require.ErrorIs(t, err, ErrNoMatchingVersion)

	_, err = SelectVersion("[2.0,)", []string{"1.0"})
	require.ErrorIs(t, err, ErrNoMatchingVersion)

	_, err = SelectVersion(">>1", []string{"1.0"})
	require.Error(t, err)
	require.False(t, errors.Is(err, ErrNoMatchingVersion))
}
