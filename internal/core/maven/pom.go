package maven

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/repochain/repochain/internal/core"
)

// DefaultPackaging applies when a POM declares none.
const DefaultPackaging = "jar"

// POM holds the descriptor fields needed for resolution.
type POM struct {
	GroupID    string
	ArtifactID string
	Version    string
	Packaging  string
}

type pomDocument struct {
	XMLName    xml.Name `xml:"project"`
	GroupID    string   `xml:"groupId"`
	ArtifactID string   `xml:"artifactId"`
	Version    string   `xml:"version"`
	Packaging  string   `xml:"packaging"`
	Parent     struct {
		GroupID string `xml:"groupId"`
		Version string `xml:"version"`
	} `xml:"parent"`
}

// ParsePOM decodes a POM, inheriting groupId and version from the parent
// element when the project omits them.
func ParsePOM(r io.Reader) (*POM, error) {
	var doc pomDocument
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode pom: %w", err)
	}

	pom := &POM{
		GroupID:    strings.TrimSpace(doc.GroupID),
		ArtifactID: strings.TrimSpace(doc.ArtifactID),
		Version:    strings.TrimSpace(doc.Version),
		Packaging:  strings.TrimSpace(doc.Packaging),
	}
	if pom.GroupID == "" {
		pom.GroupID = strings.TrimSpace(doc.Parent.GroupID)
	}
	if pom.Version == "" {
		pom.Version = strings.TrimSpace(doc.Parent.Version)
	}
	if pom.Packaging == "" {
		pom.Packaging = DefaultPackaging
	}
	if pom.ArtifactID == "" {
		return nil, errors.New("pom has no artifactId")
	}
	return pom, nil
}

// Metadata builds component metadata for coord from the descriptor. The
// requested coordinate wins over the POM's own values, which may use
// properties that are not interpolated here.
func (p *POM) Metadata(coord core.ModuleCoordinate, changing bool) *core.ComponentMetadata {
	packaging := DefaultPackaging
	if p != nil && p.Packaging != "" {
		packaging = p.Packaging
	}
	return &core.ComponentMetadata{
		ID:       coord,
		Changing: changing,
		Maven:    &core.MavenSnapshotInfo{Packaging: packaging},
	}
}
