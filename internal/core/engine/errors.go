package engine

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/multierr"

	"github.com/repochain/repochain/internal/core"
)

// ErrNotFound matches every NotFoundError.
var ErrNotFound = errors.New("module not found")

// RepositoryDiagnostic explains one repository's part in a failed search.
type RepositoryDiagnostic struct {
	Repository string `json:"repository"`
	Location   string `json:"location,omitempty"`
	Attempts   int    `json:"attempts"`
	Reason     string `json:"reason"`
}

// NotFoundError is returned when no repository holds the module and none failed.
type NotFoundError struct {
	Coordinate  core.ModuleCoordinate
	Diagnostics []RepositoryDiagnostic
}

func (e *NotFoundError) Error() string {
	if len(e.Diagnostics) == 0 {
		return fmt.Sprintf("could not find %s: no repositories configured", e.Coordinate)
	}
	searched := make([]string, 0, len(e.Diagnostics))
	for _, d := range e.Diagnostics {
		searched = append(searched, fmt.Sprintf("%s (%s)", d.Repository, d.Reason))
	}
	return fmt.Sprintf("could not find %s. Searched in: %s", e.Coordinate, strings.Join(searched, ", "))
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// ResolutionFailedError carries every failure of a resolution that produced
// no module.
type ResolutionFailedError struct {
	Coordinate core.ModuleCoordinate
	Causes     []error
}

func (e *ResolutionFailedError) Error() string {
	return fmt.Sprintf("could not resolve %s: %v", e.Coordinate, multierr.Combine(e.Causes...))
}

func (e *ResolutionFailedError) Unwrap() []error {
	return e.Causes
}

// RepositoryError is a failure raised while querying one repository.
type RepositoryError struct {
	Repository string
	Err        error
}

func (e *RepositoryError) Error() string {
	return fmt.Sprintf("repository %s: %v", e.Repository, e.Err)
}

func (e *RepositoryError) Unwrap() error { return e.Err }
