package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidCoordinate matches every coordinate parse or validation error.
var ErrInvalidCoordinate = errors.New("invalid coordinate")

// ModuleCoordinate identifies a module by group, name and version selector.
type ModuleCoordinate struct {
	Group   string `json:"group"`
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ParseCoordinate parses "group:name:version" text.
func ParseCoordinate(value string) (ModuleCoordinate, error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) != 3 {
		return ModuleCoordinate{}, fmt.Errorf("%w %q: expected group:name:version", ErrInvalidCoordinate, value)
	}

	coord := ModuleCoordinate{
		Group:   strings.TrimSpace(parts[0]),
		Name:    strings.TrimSpace(parts[1]),
		Version: strings.TrimSpace(parts[2]),
	}
	if err := coord.Validate(); err != nil {
		return ModuleCoordinate{}, err
	}
	return coord, nil
}

// Validate reports missing coordinate parts.
func (c ModuleCoordinate) Validate() error {
	switch {
	case c.Group == "":
		return fmt.Errorf("%w: group is required", ErrInvalidCoordinate)
	case c.Name == "":
		return fmt.Errorf("%w: name is required", ErrInvalidCoordinate)
	case c.Version == "":
		return fmt.Errorf("%w: version is required", ErrInvalidCoordinate)
	}
	return nil
}

// String renders the coordinate as group:name:version.
func (c ModuleCoordinate) String() string {
	return c.Group + ":" + c.Name + ":" + c.Version
}

// Module renders the version-less group:name key.
func (c ModuleCoordinate) Module() string {
	return c.Group + ":" + c.Name
}

// WithVersion returns a copy pinned to version.
func (c ModuleCoordinate) WithVersion(version string) ModuleCoordinate {
	c.Version = version
	return c
}

// IsSnapshot reports whether the version is a Maven snapshot label.
func (c ModuleCoordinate) IsSnapshot() bool {
	return strings.HasSuffix(c.Version, "-SNAPSHOT")
}

// RepositoryKind names a repository implementation.
type RepositoryKind string

const (
	RepositoryKindMavenRemote RepositoryKind = "maven-remote"
	RepositoryKindMavenLocal  RepositoryKind = "maven-local"
)

// RepositoryHandle is a named entry in the repository chain.
type RepositoryHandle struct {
	Name     string         `json:"name"`
	Kind     RepositoryKind `json:"kind"`
	Location string         `json:"location"`
}

// ArtifactCoordinate addresses one file of a module inside a repository.
type ArtifactCoordinate struct {
	Module     ModuleCoordinate
	Type       string
	Extension  string
	Classifier string
}

// MavenSnapshotInfo is present only on metadata read from Maven-layout repositories.
type MavenSnapshotInfo struct {
	Packaging         string `json:"packaging"`
	SnapshotTimestamp string `json:"snapshot_timestamp,omitempty"`
	BuildNumber       string `json:"build_number,omitempty"`
	UniqueVersion     string `json:"unique_version,omitempty"`
}

// ComponentMetadata is the result of a successful repository resolve.
type ComponentMetadata struct {
	ID        ModuleCoordinate   `json:"id"`
	Changing  bool               `json:"changing"`
	Generated bool               `json:"generated"`
	Maven     *MavenSnapshotInfo `json:"maven,omitempty"`
}

// SnapshotTimestamp returns the Maven snapshot timestamp, if any.
func (m *ComponentMetadata) SnapshotTimestamp() (string, bool) {
	if m == nil || m.Maven == nil {
		return "", false
	}
	value := strings.TrimSpace(m.Maven.SnapshotTimestamp)
	return value, value != ""
}

// Packaging returns the declared Maven packaging, or "" for non-Maven metadata.
func (m *ComponentMetadata) Packaging() string {
	if m == nil || m.Maven == nil {
		return ""
	}
	return m.Maven.Packaging
}

// WithSnapshotTimestamp returns a copy carrying timestamp.
func (m *ComponentMetadata) WithSnapshotTimestamp(timestamp string) *ComponentMetadata {
	if m == nil {
		return nil
	}
	clone := *m
	maven := MavenSnapshotInfo{}
	if m.Maven != nil {
		maven = *m.Maven
	}
	maven.SnapshotTimestamp = timestamp
	clone.Maven = &maven
	return &clone
}

// Override carries caller-supplied adjustments for one resolution.
type Override struct {
	// Changing forces the module to be treated as changing.
	Changing bool `json:"changing,omitempty"`
	// SearchLatestChanging overrides the resolver default when set.
	SearchLatestChanging *bool `json:"search_latest_changing,omitempty"`
}

// Provenance records how a resolution was produced.
type Provenance struct {
	ResolutionID string    `json:"resolution_id"`
	RequestedAt  time.Time `json:"requested_at"`
	ResolvedAt   time.Time `json:"resolved_at"`
	Phase        int       `json:"phase"`
	FromCache    bool      `json:"from_cache"`
	ToolVersion  string    `json:"tool_version,omitempty"`
}

// ChainResolution pairs metadata with the repository that supplied it.
type ChainResolution struct {
	Metadata   *ComponentMetadata `json:"metadata"`
	Repository RepositoryHandle   `json:"repository"`
	Provenance Provenance         `json:"provenance"`
}

// CachedModule is a module-cache entry. Missing entries have nil Metadata.
type CachedModule struct {
	Repository string             `json:"repository"`
	Coordinate ModuleCoordinate   `json:"coordinate"`
	Metadata   *ComponentMetadata `json:"metadata,omitempty"`
	Missing    bool               `json:"missing"`
	CachedAt   time.Time          `json:"cached_at"`
	ExpiresAt  time.Time          `json:"expires_at"`
}
