package maven

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Selector names accepted besides concrete versions and ranges.
const (
	SelectorLatest            = "latest"
	SelectorLatestRelease     = "latest.release"
	SelectorLatestIntegration = "latest.integration"
)

// ErrNoMatchingVersion reports that no published version satisfies a selector.
var ErrNoMatchingVersion = errors.New("no matching version")

// IsDynamic reports whether version is a selector that must be matched
// against the published version list.
func IsDynamic(version string) bool {
	version = strings.TrimSpace(version)
	switch {
	case version == "":
		return false
	case strings.HasPrefix(version, "latest"):
		return true
	case strings.HasSuffix(version, "+"):
		return true
	case strings.HasPrefix(version, "[") || strings.HasPrefix(version, "("):
		return true
	}
	return strings.ContainsAny(version, "<>=~^*, ")
}

// SelectVersion picks the highest version in versions matching selector.
// Versions are expected in the order maven-metadata.xml lists them.
func SelectVersion(selector string, versions []string) (string, error) {
	selector = strings.TrimSpace(selector)
	if len(versions) == 0 {
		return "", fmt.Errorf("%w: nothing published for selector %q", ErrNoMatchingVersion, selector)
	}

	switch selector {
	case SelectorLatest, SelectorLatestIntegration:
		return highest(versions, func(string) bool { return true })
	case SelectorLatestRelease:
		return highest(versions, func(v string) bool { return !IsSnapshotVersion(v) })
	}

	if strings.HasSuffix(selector, "+") {
		prefix := strings.TrimSuffix(selector, "+")
		return highest(versions, func(v string) bool { return strings.HasPrefix(v, prefix) })
	}

	constraint, err := semver.NewConstraint(rangeToConstraint(selector))
	if err != nil {
		return "", fmt.Errorf("invalid version selector %q: %w", selector, err)
	}

	var matched semver.Collection
	for _, version := range versions {
		v, err := semver.NewVersion(version)
		if err != nil {
			continue
		}
		if constraint.Check(v) {
			matched = append(matched, v)
		}
	}
	if len(matched) == 0 {
		return "", fmt.Errorf("%w for selector %q", ErrNoMatchingVersion, selector)
	}
	sort.Sort(matched)
	return matched[len(matched)-1].Original(), nil
}

// highest returns the greatest accepted version. Versions that are not
// semver-parsable rank by list position, so the last listed one wins among them.
func highest(versions []string, accept func(string) bool) (string, error) {
	var (
		best       *semver.Version
		lastListed string
	)
	for _, version := range versions {
		if !accept(version) {
			continue
		}
		lastListed = version
		v, err := semver.NewVersion(version)
		if err != nil {
			continue
		}
		if best == nil || v.GreaterThan(best) {
			best = v
		}
	}
	switch {
	case best != nil:
		return best.Original(), nil
	case lastListed != "":
		return lastListed, nil
	}
	return "", fmt.Errorf("%w among %d published", ErrNoMatchingVersion, len(versions))
}

// rangeToConstraint converts Maven range syntax such as [1.0,2.0) into a
// semver constraint. Other selectors pass through unchanged.
func rangeToConstraint(selector string) string {
	if len(selector) < 2 {
		return selector
	}
	first, last := selector[0], selector[len(selector)-1]
	if (first != '[' && first != '(') || (last != ']' && last != ')') {
		return selector
	}

	body := selector[1 : len(selector)-1]
	lower, upper, hasComma := strings.Cut(body, ",")
	lower = strings.TrimSpace(lower)
	upper = strings.TrimSpace(upper)
	if !hasComma {
		return "=" + lower
	}

	var parts []string
	if lower != "" {
		op := ">="
		if first == '(' {
			op = ">"
		}
		parts = append(parts, op+lower)
	}
	if upper != "" {
		op := "<="
		if last == ')' {
			op = "<"
		}
		parts = append(parts, op+upper)
	}
	if len(parts) == 0 {
		return "*"
	}
	return strings.Join(parts, ", ")
}
