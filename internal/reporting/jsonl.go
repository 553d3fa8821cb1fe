package reporting

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/gavelhq/gavel/internal/models"
	"github.com/gavelhq/gavel/internal/statistics"
	"github.com/klauspost/compress/zstd"
)

// JSONLSink writes one JSON line per item result, preceded by a run header
// line and followed by an optional repeat-stats line. Paths ending in ".zst"
// are zstd-compressed.
type JSONLSink struct {
	Path string
}

var _ Sink = (*JSONLSink)(nil)

// jsonlHeader is the first line of every results file.
type jsonlHeader struct {
	Kind        string               `json:"kind"`
	RunID       string               `json:"run_id"`
	Description string               `json:"description,omitempty"`
	Timestamp   string               `json:"timestamp"`
	Digest      models.OutcomeDigest `json:"summary"`
}

type jsonlResultLine struct {
	Kind string `json:"kind"`
	models.ItemResult
}

type jsonlRepeatLine struct {
	Kind    string             `json:"kind"`
	Repeats *statistics.Report `json:"repeats"`
}

// Write implements Sink.
func (s *JSONLSink) Write(outcome *models.EvalOutcome, repeats *statistics.Report) error {
	f, err := os.Create(s.Path)
	if err != nil {
		return fmt.Errorf("creating results file: %w", err)
	}
	defer f.Close()

	var w io.Writer = f
	var enc *zstd.Encoder
	if strings.HasSuffix(s.Path, ".zst") {
		enc, err = zstd.NewWriter(f)
		if err != nil {
			return fmt.Errorf("creating zstd writer: %w", err)
		}
		w = enc
	}

	if err := s.writeLines(w, outcome, repeats); err != nil {
		return err
	}

	if enc != nil {
		if err := enc.Close(); err != nil {
			return fmt.Errorf("flushing zstd stream: %w", err)
		}
	}
	return nil
}

func (s *JSONLSink) writeLines(w io.Writer, outcome *models.EvalOutcome, repeats *statistics.Report) error {
	out := json.NewEncoder(w)

	header := jsonlHeader{
		Kind:        "run",
		RunID:       outcome.RunID,
		Description: outcome.Description,
		Timestamp:   outcome.Timestamp.UTC().Format(time.RFC3339),
		Digest:      outcome.Digest,
	}
	if err := out.Encode(header); err != nil {
		return fmt.Errorf("writing run header: %w", err)
	}

	for i := range outcome.Results {
		r := &outcome.Results[i]
		if r.Status == "" {
			// Slot never scheduled.
			continue
		}
		if err := out.Encode(jsonlResultLine{Kind: "result", ItemResult: *r}); err != nil {
			return fmt.Errorf("writing result line: %w", err)
		}
	}

	if repeats != nil && len(repeats.Groups) > 0 {
		if err := out.Encode(jsonlRepeatLine{Kind: "repeats", Repeats: repeats}); err != nil {
			return fmt.Errorf("writing repeat stats: %w", err)
		}
	}
	return nil
}
