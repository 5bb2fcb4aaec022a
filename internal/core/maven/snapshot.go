package maven

import (
	"context"
	"errors"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/repochain/repochain/internal/core"
	"github.com/repochain/repochain/internal/core/transport"
)

// SnapshotTimestampResolver recovers a snapshot timestamp for locally
// installed changing modules from maven-metadata-local.xml and
// maven-metadata-snapshots.xml.
type SnapshotTimestampResolver struct {
	Local     MetadataLoader
	Snapshots MetadataLoader
	Logger    *logging.Logger
}

// NewSnapshotTimestampResolver wires the local-file loaders through fetcher.
func NewSnapshotTimestampResolver(fetcher transport.Fetcher, logger *logging.Logger) *SnapshotTimestampResolver {
	return &SnapshotTimestampResolver{
		Local:     &LocalMetadataLoader{Fetcher: fetcher},
		Snapshots: &SnapshotsMetadataLoader{Fetcher: fetcher},
		Logger:    logger,
	}
}

// Resolve derives the effective timestamp for a version directory. When both
// side-files carry a timestamp the later one wins; if either cannot be parsed
// no timestamp is returned.
func (r *SnapshotTimestampResolver) Resolve(ctx context.Context, versionDir string) (string, bool) {
	local := r.timestamp(ctx, r.Local, transport.Join(versionDir, LocalMetadataFile))
	snapshots := r.timestamp(ctx, r.Snapshots, transport.Join(versionDir, SnapshotsMetadataFile))

	switch {
	case local == "" && snapshots == "":
		return "", false
	case local == "":
		return snapshots, true
	case snapshots == "":
		return local, true
	}

	localTime, ok := ParseTimestamp(local)
	if !ok {
		r.debug("unparsable timestamp in local metadata", zap.String("timestamp", local), zap.String("dir", versionDir))
		return "", false
	}
	snapshotsTime, ok := ParseTimestamp(snapshots)
	if !ok {
		r.debug("unparsable timestamp in snapshots metadata", zap.String("timestamp", snapshots), zap.String("dir", versionDir))
		return "", false
	}
	if localTime.After(snapshotsTime) {
		return local, true
	}
	return snapshots, true
}

// Apply returns md with a recovered snapshot timestamp when md is a changing
// Maven module without one. Otherwise md is returned unchanged.
func (r *SnapshotTimestampResolver) Apply(ctx context.Context, md *core.ComponentMetadata, versionDir string) *core.ComponentMetadata {
	if r == nil || md == nil || md.Maven == nil || !md.Changing {
		return md
	}
	if _, ok := md.SnapshotTimestamp(); ok {
		return md
	}
	timestamp, ok := r.Resolve(ctx, versionDir)
	if !ok {
		return md
	}
	return md.WithSnapshotTimestamp(timestamp)
}

func (r *SnapshotTimestampResolver) timestamp(ctx context.Context, loader MetadataLoader, location string) string {
	if loader == nil {
		return ""
	}
	meta, err := loader.Load(ctx, location)
	if err != nil {
		var missing *MissingResourceError
		if errors.As(err, &missing) {
			r.debug("maven metadata not present", zap.String("location", location))
		} else {
			r.debug("failed to load maven metadata", zap.String("location", location), zap.Error(err))
		}
		return ""
	}
	if meta == nil {
		return ""
	}
	return meta.Timestamp
}

func (r *SnapshotTimestampResolver) debug(msg string, fields ...zap.Field) {
	if r == nil || r.Logger == nil {
		return
	}
	r.Logger.Debug(msg, fields...)
}
