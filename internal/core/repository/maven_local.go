package repository

import (
	"context"

	"github.com/fulmenhq/gofulmen/logging"

	"github.com/repochain/repochain/internal/core"
	"github.com/repochain/repochain/internal/core/maven"
	"github.com/repochain/repochain/internal/core/transport"
)

// MavenLocalRepository reads a local Maven repository such as ~/.m2/repository.
// It has a single tier: a miss here is final.
type MavenLocalRepository struct {
	Name    string
	Path    string
	Fetcher transport.Fetcher
	Logger  *logging.Logger
}

func (r *MavenLocalRepository) Handle() core.RepositoryHandle {
	return core.RepositoryHandle{Name: r.Name, Kind: core.RepositoryKindMavenLocal, Location: r.Path}
}

func (r *MavenLocalRepository) Local() Access {
	return AccessFunc(r.query)
}

func (r *MavenLocalRepository) Remote() Access {
	return nil
}

func (r *MavenLocalRepository) query(ctx context.Context, coord core.ModuleCoordinate, override core.Override) (Answer, error) {
	fetcher := r.fetcher()
	reader := moduleReader{
		layout:   maven.Layout{Root: r.Path},
		fetcher:  fetcher,
		metadata: &maven.LocalMetadataLoader{Fetcher: fetcher},
	}

	resolved, found, err := reader.selectVersion(ctx, coord, transport.Join(reader.layout.ModuleDir(coord), maven.LocalMetadataFile))
	if err != nil {
		return Answer{}, err
	}
	if !found {
		return Known(core.Missing(), true), nil
	}

	pom, err := reader.readPOM(ctx, resolved, "")
	if err != nil {
		return Answer{}, err
	}
	if pom == nil {
		return Known(core.Missing(), true), nil
	}

	filter := &maven.OrphanFilter{
		Probe: maven.ArtifactProbeFunc(func(ctx context.Context, artifact core.ArtifactCoordinate) (bool, error) {
			return reader.artifactExists(ctx, artifact, "")
		}),
		Logger: r.Logger,
	}
	md, err := filter.Filter(ctx, r.Name, pom.Metadata(resolved, isChanging(resolved, override)))
	if err != nil {
		return Answer{}, err
	}
	if md == nil {
		return Known(core.Missing(), true), nil
	}

	snapshots := maven.NewSnapshotTimestampResolver(fetcher, r.Logger)
	md = snapshots.Apply(ctx, md, reader.layout.VersionDir(resolved))
	return Known(core.Resolved(md), true), nil
}

func (r *MavenLocalRepository) fetcher() transport.Fetcher {
	if r.Fetcher == nil {
		return &transport.FileFetcher{}
	}
	return r.Fetcher
}
