package repository

import (
	"context"
	"errors"

	"github.com/repochain/repochain/internal/core"
	"github.com/repochain/repochain/internal/core/maven"
	"github.com/repochain/repochain/internal/core/transport"
)

// moduleReader reads Maven descriptors below one layout root.
type moduleReader struct {
	layout   maven.Layout
	fetcher  transport.Fetcher
	metadata maven.MetadataLoader
}

func isMissing(err error) bool {
	return errors.Is(err, transport.ErrNotFound)
}

// selectVersion resolves a dynamic selector against the version list at
// location. The returned bool is false when nothing matches.
func (m moduleReader) selectVersion(ctx context.Context, coord core.ModuleCoordinate, location string) (core.ModuleCoordinate, bool, error) {
	if !maven.IsDynamic(coord.Version) {
		return coord, true, nil
	}

	meta, err := m.metadata.Load(ctx, location)
	if err != nil {
		if isMissing(err) {
			return coord, false, nil
		}
		return coord, false, err
	}

	version, err := maven.SelectVersion(coord.Version, meta.Versions)
	if err != nil {
		if errors.Is(err, maven.ErrNoMatchingVersion) {
			return coord, false, nil
		}
		return coord, false, err
	}
	return coord.WithVersion(version), true, nil
}

// readPOM fetches and parses the descriptor. A missing descriptor yields nil.
func (m moduleReader) readPOM(ctx context.Context, coord core.ModuleCoordinate, fileVersion string) (*maven.POM, error) {
	body, err := m.fetcher.Fetch(ctx, m.layout.POM(coord, fileVersion))
	if err != nil {
		if isMissing(err) {
			return nil, nil
		}
		return nil, err
	}
	defer body.Close() // nolint:errcheck // read-only stream

	return maven.ParsePOM(body)
}

// artifactExists probes an artifact of the resolved version.
func (m moduleReader) artifactExists(ctx context.Context, artifact core.ArtifactCoordinate, fileVersion string) (bool, error) {
	return m.fetcher.Exists(ctx, m.layout.Artifact(artifact, fileVersion))
}

func isChanging(coord core.ModuleCoordinate, override core.Override) bool {
	return override.Changing || maven.IsSnapshotVersion(coord.Version)
}

// withOverride applies caller overrides to cached metadata.
func withOverride(md *core.ComponentMetadata, override core.Override) *core.ComponentMetadata {
	if md == nil || !override.Changing || md.Changing {
		return md
	}
	clone := *md
	clone.Changing = true
	return &clone
}
