package output

import (
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/repochain/repochain/internal/core"
)

// TableFormatter renders results as an ASCII table.
type TableFormatter struct{}

// FormatResults renders results as a table with a summary footer.
func (f *TableFormatter) FormatResults(results []*Result) (string, error) {
	if len(results) == 0 {
		return "", nil
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Module", "Repository", "Status", "Notes"})

	for _, r := range results {
		if r == nil {
			continue
		}
		t.AppendRow(table.Row{
			moduleLabel(r),
			repositoryLabel(r),
			statusLabel(r),
			formatNotes(r),
		})
	}

	if len(results) > 1 {
		t.AppendFooter(table.Row{"", "", Summarize(results).String(), ""})
	}

	return t.Render(), nil
}

// FormatRepositories renders the configured chain in order.
func FormatRepositories(handles []core.RepositoryHandle) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"#", "Name", "Kind", "Location"})
	for i, h := range handles {
		t.AppendRow(table.Row{i + 1, h.Name, string(h.Kind), h.Location})
	}
	return t.Render()
}

// FormatCachedModules renders module cache entries. Entries past their
// expiry relative to now are marked expired.
func FormatCachedModules(entries []core.CachedModule, now time.Time) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Repository", "Module", "Entry", "Expires"})
	for _, e := range entries {
		entry := "missing"
		if !e.Missing && e.Metadata != nil {
			entry = "resolved"
			if e.Metadata.Changing {
				entry = "resolved (changing)"
			}
		}
		expires := e.ExpiresAt.UTC().Format(time.RFC3339)
		if !e.ExpiresAt.After(now) {
			expires += " (expired)"
		}
		t.AppendRow(table.Row{e.Repository, e.Coordinate.String(), entry, expires})
	}
	return t.Render()
}
