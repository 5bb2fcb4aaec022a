package output

import (
	"fmt"
	"strings"
)

// MarkdownFormatter renders results as a markdown table.
type MarkdownFormatter struct{}

// FormatResults renders results as Markdown.
func (f *MarkdownFormatter) FormatResults(results []*Result) (string, error) {
	if len(results) == 0 {
		return "", nil
	}

	var sb strings.Builder
	sb.WriteString("## Module resolution\n\n")
	sb.WriteString("| Module | Repository | Status | Notes |\n")
	sb.WriteString("|--------|------------|--------|-------|\n")

	for _, r := range results {
		if r == nil {
			continue
		}
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n",
			escapeMarkdownCell(moduleLabel(r)),
			escapeMarkdownCell(repositoryLabel(r)),
			escapeMarkdownCell(statusLabel(r)),
			escapeMarkdownCell(formatNotes(r)),
		))
	}

	sb.WriteString(fmt.Sprintf("\n**Summary**: %s\n", Summarize(results)))
	return sb.String(), nil
}

func escapeMarkdownCell(value string) string {
	return strings.ReplaceAll(value, "|", "\\|")
}
