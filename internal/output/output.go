package output

import (
	"errors"
	"fmt"
	"strings"

	"github.com/repochain/repochain/internal/core"
	"github.com/repochain/repochain/internal/core/engine"
)

// Format represents an output format.
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// Result statuses.
const (
	StatusResolved = "resolved"
	StatusNotFound = "not_found"
	StatusFailed   = "failed"
	StatusInvalid  = "invalid"
)

// Result is the rendered answer for one requested coordinate.
type Result struct {
	Request     string                        `json:"request"`
	Status      string                        `json:"status"`
	Resolution  *core.ChainResolution         `json:"resolution,omitempty"`
	Error       string                        `json:"error,omitempty"`
	Diagnostics []engine.RepositoryDiagnostic `json:"diagnostics,omitempty"`
}

// NewResult classifies a resolver answer.
func NewResult(request string, resolution *core.ChainResolution, err error) *Result {
	result := &Result{Request: request, Resolution: resolution}
	if err == nil && resolution != nil {
		result.Status = StatusResolved
		return result
	}

	var notFound *engine.NotFoundError
	switch {
	case err == nil:
		result.Status = StatusNotFound
	case errors.As(err, &notFound):
		result.Status = StatusNotFound
		result.Diagnostics = notFound.Diagnostics
	case errors.Is(err, core.ErrInvalidCoordinate):
		result.Status = StatusInvalid
	default:
		result.Status = StatusFailed
	}
	if err != nil {
		result.Error = err.Error()
	}
	return result
}

// Formatter renders resolution results.
type Formatter interface {
	FormatResults(results []*Result) (string, error)
}

// ParseFormat validates and normalizes a format string.
func ParseFormat(value string) (Format, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "", string(FormatTable):
		return FormatTable, nil
	case string(FormatJSON):
		return FormatJSON, nil
	case string(FormatMarkdown), "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", value)
	}
}

// NewFormatter returns a formatter for the requested format.
func NewFormatter(format Format) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Indent: true}
	case FormatMarkdown:
		return &MarkdownFormatter{}
	default:
		return &TableFormatter{}
	}
}

// Summary counts results per status.
type Summary struct {
	Resolved int `json:"resolved"`
	NotFound int `json:"not_found"`
	Failed   int `json:"failed"`
	Invalid  int `json:"invalid"`
}

// Summarize counts results per status.
func Summarize(results []*Result) Summary {
	var s Summary
	for _, r := range results {
		if r == nil {
			continue
		}
		switch r.Status {
		case StatusResolved:
			s.Resolved++
		case StatusNotFound:
			s.NotFound++
		case StatusFailed:
			s.Failed++
		case StatusInvalid:
			s.Invalid++
		}
	}
	return s
}

func (s Summary) String() string {
	line := fmt.Sprintf("%d resolved", s.Resolved)
	if s.NotFound > 0 {
		line += fmt.Sprintf(", %d not found", s.NotFound)
	}
	if s.Failed > 0 {
		line += fmt.Sprintf(", %d failed", s.Failed)
	}
	if s.Invalid > 0 {
		line += fmt.Sprintf(", %d invalid", s.Invalid)
	}
	return line
}
