package maven

import (
	"context"
	"fmt"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/repochain/repochain/internal/core"
)

// ArtifactProbe checks whether an artifact exists in a repository.
type ArtifactProbe interface {
	Exists(ctx context.Context, artifact core.ArtifactCoordinate) (bool, error)
}

// ArtifactProbeFunc adapts a function to ArtifactProbe.
type ArtifactProbeFunc func(ctx context.Context, artifact core.ArtifactCoordinate) (bool, error)

func (f ArtifactProbeFunc) Exists(ctx context.Context, artifact core.ArtifactCoordinate) (bool, error) {
	return f(ctx, artifact)
}

// Packaging types whose primary artifact is a jar.
var jarPackagings = map[string]bool{
	"jar":            true,
	"ejb":            true,
	"bundle":         true,
	"maven-plugin":   true,
	"eclipse-plugin": true,
}

// OrphanFilter drops metadata whose POM is present without the primary artifact.
type OrphanFilter struct {
	Probe  ArtifactProbe
	Logger *logging.Logger
}

// PrimaryArtifact returns the artifact a module with the given packaging is
// expected to publish.
func PrimaryArtifact(coord core.ModuleCoordinate, packaging string) core.ArtifactCoordinate {
	if packaging == "" || jarPackagings[packaging] {
		return core.ArtifactCoordinate{Module: coord, Type: "jar", Extension: "jar"}
	}
	return core.ArtifactCoordinate{Module: coord, Type: packaging, Extension: packaging}
}

// Filter returns md when its primary artifact exists in repository, nil when
// the POM is orphaned. pom packaging is always accepted.
func (f *OrphanFilter) Filter(ctx context.Context, repository string, md *core.ComponentMetadata) (*core.ComponentMetadata, error) {
	if md == nil {
		return nil, nil
	}
	packaging := md.Packaging()
	if packaging == "pom" {
		return md, nil
	}
	if f == nil || f.Probe == nil {
		return nil, fmt.Errorf("no artifact probe configured for repository %s", repository)
	}

	artifact := PrimaryArtifact(md.ID, packaging)
	exists, err := f.Probe.Exists(ctx, artifact)
	if err != nil {
		return nil, fmt.Errorf("probe %s artifact for %s: %w", artifact.Type, md.ID, err)
	}
	if exists {
		return md, nil
	}

	if f.Logger != nil {
		f.Logger.Debug(fmt.Sprintf("POM file found for module '%s' in repository '%s' but no artifact found. Ignoring.", md.ID, repository),
			zap.String("artifact_type", artifact.Type))
	}
	return nil, nil
}
