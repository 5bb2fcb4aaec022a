package maven

import (
	"strings"

	"github.com/repochain/repochain/internal/core"
	"github.com/repochain/repochain/internal/core/transport"
)

const snapshotSuffix = "-SNAPSHOT"

// Layout maps coordinates onto the standard Maven directory layout below Root.
type Layout struct {
	Root string
}

// GroupPath converts a dotted group into a slash-separated path.
func GroupPath(group string) string {
	return strings.ReplaceAll(strings.TrimSpace(group), ".", "/")
}

// ModuleDir is the directory holding every version of a module.
func (l Layout) ModuleDir(coord core.ModuleCoordinate) string {
	return transport.Join(l.Root, GroupPath(coord.Group), coord.Name)
}

// VersionDir is the directory holding one version of a module.
func (l Layout) VersionDir(coord core.ModuleCoordinate) string {
	return transport.Join(l.ModuleDir(coord), coord.Version)
}

// ModuleMetadata is the module-level maven-metadata.xml listing versions.
func (l Layout) ModuleMetadata(coord core.ModuleCoordinate) string {
	return transport.Join(l.ModuleDir(coord), MetadataFile)
}

// VersionMetadata returns the location of a side-file in the version directory.
func (l Layout) VersionMetadata(coord core.ModuleCoordinate, file string) string {
	return transport.Join(l.VersionDir(coord), file)
}

// Artifact locates an artifact file. fileVersion replaces the version in the
// file name when non-empty, which is how unique snapshot builds are addressed.
func (l Layout) Artifact(artifact core.ArtifactCoordinate, fileVersion string) string {
	return transport.Join(l.VersionDir(artifact.Module), ArtifactFileName(artifact, fileVersion))
}

// POM locates the module descriptor.
func (l Layout) POM(coord core.ModuleCoordinate, fileVersion string) string {
	return l.Artifact(core.ArtifactCoordinate{Module: coord, Type: "pom", Extension: "pom"}, fileVersion)
}

// ArtifactFileName renders name-version[-classifier].ext.
func ArtifactFileName(artifact core.ArtifactCoordinate, fileVersion string) string {
	version := artifact.Module.Version
	if fileVersion != "" {
		version = fileVersion
	}
	ext := artifact.Extension
	if ext == "" {
		ext = artifact.Type
	}
	if ext == "" {
		ext = "jar"
	}

	var b strings.Builder
	b.WriteString(artifact.Module.Name)
	b.WriteString("-")
	b.WriteString(version)
	if artifact.Classifier != "" {
		b.WriteString("-")
		b.WriteString(artifact.Classifier)
	}
	b.WriteString(".")
	b.WriteString(ext)
	return b.String()
}

// IsSnapshotVersion reports whether version carries the -SNAPSHOT suffix.
func IsSnapshotVersion(version string) bool {
	return strings.HasSuffix(version, snapshotSuffix)
}

// UniqueSnapshotVersion expands 1.0-SNAPSHOT into 1.0-<timestamp>-<build>.
// Non-snapshot versions and incomplete snapshot info return version unchanged.
func UniqueSnapshotVersion(version, timestamp, buildNumber string) string {
	if !IsSnapshotVersion(version) || timestamp == "" || buildNumber == "" {
		return version
	}
	return strings.TrimSuffix(version, snapshotSuffix) + "-" + timestamp + "-" + buildNumber
}
