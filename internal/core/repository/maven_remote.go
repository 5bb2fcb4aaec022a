package repository

import (
	"context"
	"fmt"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/repochain/repochain/internal/core"
	"github.com/repochain/repochain/internal/core/maven"
	"github.com/repochain/repochain/internal/core/transport"
)

// MavenRepository is a remote Maven repository. Its local tier is the
// module cache; its remote tier reads the repository over the transport.
type MavenRepository struct {
	Name    string
	URL     string
	Fetcher transport.Fetcher

	Cache       ModuleCache
	CachePolicy CachePolicy
	UseCache    bool

	// AllowGenerated synthesizes metadata for a jar published without a POM.
	AllowGenerated bool
	// AuthoritativeMissing makes cached misses final, skipping the remote tier.
	AuthoritativeMissing bool

	Logger *logging.Logger
}

func (r *MavenRepository) Handle() core.RepositoryHandle {
	return core.RepositoryHandle{Name: r.Name, Kind: core.RepositoryKindMavenRemote, Location: r.URL}
}

func (r *MavenRepository) Local() Access {
	return AccessFunc(r.queryCache)
}

func (r *MavenRepository) Remote() Access {
	return AccessFunc(r.queryRemote)
}

func (r *MavenRepository) queryCache(ctx context.Context, coord core.ModuleCoordinate, override core.Override) (Answer, error) {
	if !r.UseCache || r.Cache == nil {
		return NoAnswer(), nil
	}

	entry, err := r.Cache.GetModule(ctx, r.Name, coord)
	if err != nil {
		r.debug("module cache read failed", zap.String("module", coord.String()), zap.Error(err))
		return NoAnswer(), nil
	}
	if entry == nil {
		return NoAnswer(), nil
	}
	if entry.Missing || entry.Metadata == nil {
		return Known(core.Missing().Cached(), r.AuthoritativeMissing), nil
	}
	return Known(core.Resolved(withOverride(entry.Metadata, override)).Cached(), true), nil
}

func (r *MavenRepository) queryRemote(ctx context.Context, coord core.ModuleCoordinate, override core.Override) (Answer, error) {
	if r.Fetcher == nil {
		return Answer{}, fmt.Errorf("maven repository %s has no fetcher", r.Name)
	}

	reader := r.reader()
	resolved, found, err := reader.selectVersion(ctx, coord, reader.layout.ModuleMetadata(coord))
	if err != nil {
		return Answer{}, err
	}
	if !found {
		r.remember(ctx, coord, nil)
		return Known(core.Missing(), true), nil
	}

	md, err := r.readModule(ctx, reader, resolved, override)
	if err != nil {
		return Answer{}, err
	}
	r.remember(ctx, coord, md)
	return Known(core.Resolved(md), true), nil
}

func (r *MavenRepository) readModule(ctx context.Context, reader moduleReader, coord core.ModuleCoordinate, override core.Override) (*core.ComponentMetadata, error) {
	info := core.MavenSnapshotInfo{}
	fileVersion := ""

	if maven.IsSnapshotVersion(coord.Version) {
		side, err := reader.metadata.Load(ctx, reader.layout.VersionMetadata(coord, maven.MetadataFile))
		switch {
		case err == nil:
			info.SnapshotTimestamp = side.Timestamp
			info.BuildNumber = side.BuildNumber
			if unique := maven.UniqueSnapshotVersion(coord.Version, side.Timestamp, side.BuildNumber); unique != coord.Version {
				info.UniqueVersion = unique
				fileVersion = unique
			}
		case isMissing(err):
			r.debug("no snapshot metadata, using non-unique snapshot", zap.String("module", coord.String()))
		default:
			return nil, err
		}
	}

	changing := isChanging(coord, override)
	pom, err := reader.readPOM(ctx, coord, fileVersion)
	if err != nil {
		return nil, err
	}
	if pom != nil {
		md := pom.Metadata(coord, changing)
		info.Packaging = md.Packaging()
		md.Maven = &info
		return md, nil
	}

	if !r.AllowGenerated {
		return nil, nil
	}
	exists, err := reader.artifactExists(ctx, maven.PrimaryArtifact(coord, maven.DefaultPackaging), fileVersion)
	if err != nil || !exists {
		return nil, err
	}
	info.Packaging = maven.DefaultPackaging
	return &core.ComponentMetadata{ID: coord, Changing: changing, Generated: true, Maven: &info}, nil
}

func (r *MavenRepository) reader() moduleReader {
	return moduleReader{
		layout:   maven.Layout{Root: r.URL},
		fetcher:  r.Fetcher,
		metadata: &maven.RemoteMetadataLoader{Fetcher: r.Fetcher},
	}
}

func (r *MavenRepository) remember(ctx context.Context, coord core.ModuleCoordinate, md *core.ComponentMetadata) {
	if r.Cache == nil {
		return
	}
	if err := r.Cache.PutModule(ctx, r.Name, coord, md, r.CachePolicy.TTLFor(md)); err != nil {
		r.debug("module cache write failed", zap.String("module", coord.String()), zap.Error(err))
	}
}

func (r *MavenRepository) debug(msg string, fields ...zap.Field) {
	if r.Logger == nil {
		return
	}
	r.Logger.Debug(msg, append(fields, zap.String("repository", r.Name))...)
}
