package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ppiankov/rulesift/internal/pipeline"
)

// MarkdownFormatter formats a run report as Markdown.
type MarkdownFormatter struct{}

// NewMarkdown creates a Markdown formatter.
func NewMarkdown() *MarkdownFormatter {
	return &MarkdownFormatter{}
}

// Format writes the report as Markdown to w.
func (f *MarkdownFormatter) Format(w io.Writer, result *pipeline.Result) error {
	fmt.Fprintf(w, "# rulesift report\n\n")
	fmt.Fprintf(w, "%d posts processed, %d matches\n\n", result.TotalProcessed, len(result.Matches))

	if len(result.Matches) == 0 {
		fmt.Fprintln(w, "No matching posts.")
		return nil
	}

	for _, m := range result.Matches {
		title := m.Post.Title
		if m.Post.URL != "" {
			title = fmt.Sprintf("[%s](%s)", m.Post.Title, m.Post.URL)
		}
		fmt.Fprintf(w, "- **%s** — %s\n", title, m.Reason)
		fmt.Fprintf(w, "  - published %s\n", m.Post.Published.UTC().Format(time.RFC3339))
		if len(m.Post.Tags) > 0 {
			fmt.Fprintf(w, "  - tags: %s\n", strings.Join(m.Post.Tags, ", "))
		}
		targets := make([]string, 0, len(m.Targets))
		for _, t := range m.Targets {
			targets = append(targets, t.Description())
		}
		fmt.Fprintf(w, "  - notified: %s\n", strings.Join(targets, "; "))
	}

	return nil
}
