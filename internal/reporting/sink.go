// Package reporting writes evaluation outcomes to durable formats: JSONL
// (optionally zstd-compressed) and JUnit XML.
package reporting

import (
	"github.com/gavelhq/gavel/internal/models"
	"github.com/gavelhq/gavel/internal/statistics"
)

// Sink persists one completed run. The repeat report is nil when the run was
// not repeated.
type Sink interface {
	Write(outcome *models.EvalOutcome, repeats *statistics.Report) error
}
