package report

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"

	"github.com/ppiankov/rulesift/internal/pipeline"
)

// TerminalFormatter formats a run report for terminal output.
type TerminalFormatter struct {
	color bool
}

// NewTerminal creates a terminal formatter. Set color=true for ANSI colors.
func NewTerminal(color bool) *TerminalFormatter {
	return &TerminalFormatter{color: color}
}

// Format writes the report to w, one block per matched post.
func (f *TerminalFormatter) Format(w io.Writer, result *pipeline.Result) error {
	header := fmt.Sprintf("rulesift — %d posts processed, %d matches", result.TotalProcessed, len(result.Matches))
	fmt.Fprintln(w, f.bold(header))
	if result.LastCreated != nil {
		fmt.Fprintf(w, "newest post: %s\n", humanize.Time(*result.LastCreated))
	}
	fmt.Fprintln(w)

	if len(result.Matches) == 0 {
		fmt.Fprintln(w, "No matching posts.")
		return nil
	}

	for _, m := range result.Matches {
		fmt.Fprintf(w, "%s %s\n", f.green("✓"), f.bold(m.Post.Title))
		fmt.Fprintf(w, "  matched: %s\n", m.Reason)
		fmt.Fprintf(w, "  published %s", humanize.Time(m.Post.Published))
		if m.Post.URL != "" {
			fmt.Fprintf(w, "  %s", f.dim(m.Post.URL))
		}
		fmt.Fprintln(w)
		for _, t := range m.Targets {
			fmt.Fprintf(w, "  → %s\n", t.Description())
		}
		fmt.Fprintln(w)
	}

	return nil
}

func (f *TerminalFormatter) bold(s string) string {
	if !f.color {
		return s
	}
	return "\033[1m" + s + "\033[0m"
}

func (f *TerminalFormatter) green(s string) string {
	if !f.color {
		return s
	}
	return "\033[32m" + s + "\033[0m"
}

func (f *TerminalFormatter) dim(s string) string {
	if !f.color {
		return s
	}
	return "\033[2m" + s + "\033[0m"
}
