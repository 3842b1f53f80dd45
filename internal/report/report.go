// Package report renders one run's result for humans and machines.
package report

import (
	"io"

	"github.com/ppiankov/rulesift/internal/pipeline"
)

// Formatter writes a formatted run report to w.
type Formatter interface {
	Format(w io.Writer, result *pipeline.Result) error
}
