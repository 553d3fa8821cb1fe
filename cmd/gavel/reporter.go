package main

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gavelhq/gavel/internal/models"
	"github.com/gavelhq/gavel/internal/orchestration"
	"github.com/gavelhq/gavel/internal/statistics"
	"github.com/mattn/go-runewidth"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const testNameWidth = 32

// consoleReporter renders progress events and the end-of-run summary.
type consoleReporter struct {
	out     io.Writer
	printer *message.Printer
	quiet   bool

	mu sync.Mutex
}

func newConsoleReporter(out io.Writer, quiet bool) *consoleReporter {
	return &consoleReporter{
		out:     out,
		printer: message.NewPrinter(language.English),
		quiet:   quiet,
	}
}

// Listen is a dispatcher progress listener.
func (r *consoleReporter) Listen(event orchestration.ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch event.EventType {
	case orchestration.EventRunStart:
		r.printer.Fprintf(r.out, "Running %d work items\n", event.TotalItems)
	case orchestration.EventItemComplete:
		if r.quiet {
			return
		}
		name := event.TestName
		if name == "" {
			name = event.ProviderID
		}
		fmt.Fprintf(r.out, "  [%d/%d] %s %s %s (%dms)\n",
			event.ItemNum, event.TotalItems,
			statusIcon(event.Status),
			runewidth.FillRight(runewidth.Truncate(name, testNameWidth, "…"), testNameWidth),
			event.ProviderID,
			event.DurationMs)
	case orchestration.EventRunStopped:
		fmt.Fprintln(r.out, "Run stopped; keeping completed results")
	}
}

func statusIcon(status models.Status) string {
	switch status {
	case models.StatusPassed:
		return "✓"
	case models.StatusError:
		return "⚠"
	default:
		return "✗"
	}
}

// PrintSummary renders the digest and, for repeated runs, stability metrics.
func (r *consoleReporter) PrintSummary(outcome *models.EvalOutcome, repeats *statistics.Report) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d := outcome.Digest
	duration := time.Duration(d.DurationMs) * time.Millisecond

	fmt.Fprintln(r.out)
	r.printer.Fprintf(r.out, "Items: %d total, %d passed, %d failed, %d errors\n",
		d.TotalItems, d.Succeeded, d.Failed, d.Errors)
	fmt.Fprintf(r.out, "Success rate: %.1f%%  Avg score: %.3f  Duration: %s\n",
		d.SuccessRate*100, d.AvgScore, formatDuration(duration))

	if repeats == nil || len(repeats.Groups) == 0 {
		return
	}

	fmt.Fprintf(r.out, "\nRepeat stability (%d repeats):\n", repeats.ConfiguredRepeats)
	for _, g := range repeats.Groups {
		label := runewidth.FillRight(
			fmt.Sprintf("%s p%d/t%d", g.ProviderID, g.PromptIndex, g.TestIndex), testNameWidth)
		fmt.Fprintf(r.out, "  %s pass=%.0f%% pass^%d=%.3f flip=%.2f score=%.3f±%.3f\n",
			label, g.PassRate*100, g.Repeats, g.PassN, g.FlipRate, g.Score.Mean, g.Score.StdDev)
	}
	fmt.Fprintf(r.out, "  overall: pass=%.0f%% pass^N=%.3f flip=%.2f score=%.3f\n",
		repeats.PassRate*100, repeats.PassN, repeats.FlipRate, repeats.AvgScore)
}

// formatDuration keeps sub-second durations in milliseconds for stable output.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return d.Round(10 * time.Millisecond).String()
}
