package report

import (
	"encoding/json"
	"io"
	"time"

	"github.com/ppiankov/rulesift/internal/pipeline"
)

// jsonReport is the machine-readable output contract: the LastCreated
// field is the cursor an external scheduler persists for the next run.
type jsonReport struct {
	TotalProcessed int        `json:"TotalProcessed"`
	LastCreated    *time.Time `json:"LastCreated,omitempty"`
	MatchingPosts  []jsonPost `json:"MatchingPosts"`
}

type jsonPost struct {
	Created             time.Time `json:"Created"`
	Title               string    `json:"Title"`
	Tags                []string  `json:"Tags"`
	Url                 string    `json:"Url"`
	MatchReason         string    `json:"MatchReason"`
	NotificationTargets []string  `json:"NotificationTargets"`
}

// JSONFormatter formats a run report as JSON.
type JSONFormatter struct{}

// NewJSON creates a JSON formatter.
func NewJSON() *JSONFormatter {
	return &JSONFormatter{}
}

// Format writes the report as indented JSON to w.
func (f *JSONFormatter) Format(w io.Writer, result *pipeline.Result) error {
	out := jsonReport{
		TotalProcessed: result.TotalProcessed,
		LastCreated:    result.LastCreated,
		MatchingPosts:  make([]jsonPost, 0, len(result.Matches)),
	}

	for _, m := range result.Matches {
		targets := make([]string, 0, len(m.Targets))
		for _, t := range m.Targets {
			targets = append(targets, t.Description())
		}
		tags := m.Post.Tags
		if tags == nil {
			tags = []string{}
		}
		out.MatchingPosts = append(out.MatchingPosts, jsonPost{
			Created:             m.Post.Published.UTC(),
			Title:               m.Post.Title,
			Tags:                tags,
			Url:                 m.Post.URL,
			MatchReason:         m.Reason,
			NotificationTargets: targets,
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
