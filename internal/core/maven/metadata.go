package maven

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/repochain/repochain/internal/core/transport"
)

// Side-file names inside a Maven version or module directory.
const (
	MetadataFile          = "maven-metadata.xml"
	LocalMetadataFile     = "maven-metadata-local.xml"
	SnapshotsMetadataFile = "maven-metadata-snapshots.xml"
)

// SideMetadata holds the fields read from a Maven metadata document.
type SideMetadata struct {
	Timestamp   string   `json:"timestamp,omitempty"`
	BuildNumber string   `json:"build_number,omitempty"`
	Versions    []string `json:"versions,omitempty"`
}

// MetadataLoader loads a metadata document from a location.
type MetadataLoader interface {
	Load(ctx context.Context, location string) (*SideMetadata, error)
}

// MissingResourceError reports that a metadata document does not exist.
type MissingResourceError struct {
	Location string
	Err      error
}

func (e *MissingResourceError) Error() string {
	return fmt.Sprintf("maven metadata not available: %s", e.Location)
}

func (e *MissingResourceError) Unwrap() error { return e.Err }

// LoadFailureError reports a document that exists but could not be read or parsed.
type LoadFailureError struct {
	Location string
	Err      error
}

func (e *LoadFailureError) Error() string {
	return fmt.Sprintf("unable to load maven metadata from %s: %v", e.Location, e.Err)
}

func (e *LoadFailureError) Unwrap() error { return e.Err }

type metadataDocument struct {
	XMLName    xml.Name `xml:"metadata"`
	Versioning struct {
		LastUpdated string `xml:"lastUpdated"`
		Snapshot    struct {
			Timestamp   string `xml:"timestamp"`
			BuildNumber string `xml:"buildNumber"`
		} `xml:"snapshot"`
		Versions struct {
			Version []string `xml:"version"`
		} `xml:"versions"`
	} `xml:"versioning"`
}

type timestampField int

const (
	snapshotTimestamp timestampField = iota
	lastUpdatedTimestamp
)

// RemoteMetadataLoader reads the shared maven-metadata.xml of a repository.
// Fetcher is usually a transport.CachingFetcher.
type RemoteMetadataLoader struct {
	Fetcher transport.Fetcher
}

func (l *RemoteMetadataLoader) Load(ctx context.Context, location string) (*SideMetadata, error) {
	if l == nil || l.Fetcher == nil {
		return nil, errors.New("remote metadata loader is not configured")
	}
	return load(ctx, l.Fetcher, location, snapshotTimestamp)
}

// LocalMetadataLoader reads maven-metadata-local.xml. Its lastUpdated value
// becomes the Timestamp.
type LocalMetadataLoader struct {
	Fetcher transport.Fetcher
}

func (l *LocalMetadataLoader) Load(ctx context.Context, location string) (*SideMetadata, error) {
	var f transport.Fetcher
	if l != nil {
		f = l.Fetcher
	}
	return load(ctx, fileFetcher(f), location, lastUpdatedTimestamp)
}

// SnapshotsMetadataLoader reads maven-metadata-snapshots.xml.
type SnapshotsMetadataLoader struct {
	Fetcher transport.Fetcher
}

func (l *SnapshotsMetadataLoader) Load(ctx context.Context, location string) (*SideMetadata, error) {
	var f transport.Fetcher
	if l != nil {
		f = l.Fetcher
	}
	return load(ctx, fileFetcher(f), location, snapshotTimestamp)
}

func fileFetcher(f transport.Fetcher) transport.Fetcher {
	if f == nil {
		return &transport.FileFetcher{}
	}
	return f
}

func load(ctx context.Context, fetcher transport.Fetcher, location string, field timestampField) (*SideMetadata, error) {
	body, err := fetcher.Fetch(ctx, location)
	if err != nil {
		if errors.Is(err, transport.ErrNotFound) {
			return nil, &MissingResourceError{Location: location, Err: err}
		}
		return nil, &LoadFailureError{Location: location, Err: err}
	}
	defer body.Close() // nolint:errcheck // read-only stream

	meta, err := ParseMetadata(body, field == lastUpdatedTimestamp)
	if err != nil {
		return nil, &LoadFailureError{Location: location, Err: err}
	}
	return meta, nil
}

// ParseMetadata decodes a Maven metadata document. When lastUpdated is true
// the versioning/lastUpdated element populates Timestamp, otherwise
// versioning/snapshot/timestamp does.
func ParseMetadata(r io.Reader, lastUpdated bool) (*SideMetadata, error) {
	var doc metadataDocument
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}

	meta := &SideMetadata{
		Timestamp:   strings.TrimSpace(doc.Versioning.Snapshot.Timestamp),
		BuildNumber: strings.TrimSpace(doc.Versioning.Snapshot.BuildNumber),
	}
	if lastUpdated {
		meta.Timestamp = strings.TrimSpace(doc.Versioning.LastUpdated)
	}
	for _, version := range doc.Versioning.Versions.Version {
		version = strings.TrimSpace(version)
		if version == "" {
			continue
		}
		meta.Versions = append(meta.Versions, version)
	}
	return meta, nil
}
