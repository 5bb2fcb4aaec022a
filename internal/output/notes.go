package output

import (
	"fmt"
	"strings"

	"github.com/repochain/repochain/internal/core"
)

func moduleLabel(r *Result) string {
	if r == nil {
		return ""
	}
	if r.Resolution != nil && r.Resolution.Metadata != nil {
		return r.Resolution.Metadata.ID.String()
	}
	return r.Request
}

func repositoryLabel(r *Result) string {
	if r == nil || r.Resolution == nil {
		return "-"
	}
	return r.Resolution.Repository.Name
}

func statusLabel(r *Result) string {
	if r == nil {
		return ""
	}
	switch r.Status {
	case StatusResolved:
		if r.Resolution != nil && r.Resolution.Provenance.FromCache {
			return "resolved (cached)"
		}
		return "resolved"
	case StatusNotFound:
		return "not found"
	default:
		return r.Status
	}
}

// formatNotes summarizes the metadata, or why there is none.
func formatNotes(r *Result) string {
	if r == nil {
		return ""
	}
	if r.Status != StatusResolved {
		if len(r.Diagnostics) > 0 {
			parts := make([]string, 0, len(r.Diagnostics))
			for _, d := range r.Diagnostics {
				parts = append(parts, fmt.Sprintf("%s: %s", d.Repository, d.Reason))
			}
			return strings.Join(parts, "; ")
		}
		return r.Error
	}
	if r.Resolution == nil {
		return ""
	}
	return metadataNotes(r.Resolution.Metadata, r.Resolution.Provenance.Phase)
}

func metadataNotes(md *core.ComponentMetadata, phase int) string {
	if md == nil {
		return ""
	}

	notes := make([]string, 0, 5)
	if packaging := md.Packaging(); packaging != "" {
		notes = append(notes, "packaging="+packaging)
	}
	if md.Changing {
		notes = append(notes, "changing")
	}
	if md.Generated {
		notes = append(notes, "generated")
	}
	if ts, ok := md.SnapshotTimestamp(); ok {
		notes = append(notes, "timestamp="+ts)
	}
	if md.Maven != nil && md.Maven.BuildNumber != "" {
		notes = append(notes, "build="+md.Maven.BuildNumber)
	}
	if phase > 1 {
		notes = append(notes, fmt.Sprintf("phase %d", phase))
	}
	return strings.Join(notes, ", ")
}
