package maven

import (
	"strings"
	"time"
)

const (
	// SnapshotTimestampLayout is used by maven-metadata.xml and maven-metadata-snapshots.xml.
	SnapshotTimestampLayout = "20060102.150405"
	// LocalTimestampLayout is used by the lastUpdated field of maven-metadata-local.xml.
	LocalTimestampLayout = "20060102150405"
)

// ParseTimestamp parses a snapshot timestamp in either layout. Strings
// containing a '.' use SnapshotTimestampLayout, all others LocalTimestampLayout.
// The second return value is false when the value cannot be compared.
func ParseTimestamp(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}

	layout := LocalTimestampLayout
	if strings.Contains(value, ".") {
		layout = SnapshotTimestampLayout
	}

	parsed, err := time.ParseInLocation(layout, value, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return parsed, true
}

// FormatSnapshotTimestamp renders t in SnapshotTimestampLayout.
func FormatSnapshotTimestamp(t time.Time) string {
	return t.UTC().Format(SnapshotTimestampLayout)
}

// FormatLocalTimestamp renders t in LocalTimestampLayout.
func FormatLocalTimestamp(t time.Time) string {
	return t.UTC().Format(LocalTimestampLayout)
}

// Later reports whether candidate is strictly later than current. Either
// value being unparsable yields false.
func Later(candidate, current string) bool {
	c, ok := ParseTimestamp(candidate)
	if !ok {
		return false
	}
	b, ok := ParseTimestamp(current)
	if !ok {
		return false
	}
	return c.After(b)
}
