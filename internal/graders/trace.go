package graders

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/gavelhq/gavel/internal/models"
	"github.com/go-viper/mapstructure/v2"
)

// matchSpanName matches a span name against a glob pattern (`*`, `?`),
// case-insensitively.
func matchSpanName(pattern, name string) (bool, error) {
	return path.Match(strings.ToLower(pattern), strings.ToLower(name))
}

func matchingSpans(trace *models.TraceData, pattern string) ([]models.TraceSpan, error) {
	var matched []models.TraceSpan
	for _, span := range trace.Spans {
		ok, err := matchSpanName(pattern, span.Name)
		if err != nil {
			return nil, structuralf("invalid span name pattern %q: %v", pattern, err)
		}
		if ok {
			matched = append(matched, span)
		}
	}
	return matched, nil
}

type spanCountArgs struct {
	Pattern string `mapstructure:"pattern"`
	Min     *int   `mapstructure:"min"`
	Max     *int   `mapstructure:"max"`
}

func handleSpanCount(_ context.Context, _ *Pipeline, a *models.Assertion, rendered any, gctx *Context) (*models.GradingResult, error) {
	var args spanCountArgs
	if err := mapstructure.Decode(rendered, &args); err != nil {
		return nil, structuralf("trace-span-count has an invalid value: %v", err)
	}
	if args.Pattern == "" {
		return nil, structuralf("trace-span-count assertion requires a \"pattern\" field")
	}
	if gctx.Trace == nil {
		return nil, structuralf("no trace data available for trace-span-count assertion")
	}

	matched, err := matchingSpans(gctx.Trace, args.Pattern)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(matched))
	for _, s := range matched {
		names = append(names, s.Name)
	}
	count := len(matched)

	if args.Min != nil && count < *args.Min {
		return &models.GradingResult{
			Pass:  false,
			Score: 0,
			Reason: fmt.Sprintf("Expected at least %d spans matching %q, found %d (matched: %s)",
				*args.Min, args.Pattern, count, joinOrNone(names)),
		}, nil
	}
	if args.Max != nil && count > *args.Max {
		return &models.GradingResult{
			Pass:  false,
			Score: 0,
			Reason: fmt.Sprintf("Expected at most %d spans matching %q, found %d (matched: %s)",
				*args.Max, args.Pattern, count, joinOrNone(names)),
		}, nil
	}

	return &models.GradingResult{
		Pass:  true,
		Score: 1,
		Reason: fmt.Sprintf("Found %d spans matching %q (matched: %s)",
			count, args.Pattern, joinOrNone(names)),
	}, nil
}

func joinOrNone(names []string) string {
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ", ")
}

type spanDurationArgs struct {
	Pattern    string   `mapstructure:"pattern"`
	MaxMs      *float64 `mapstructure:"max"`
	Percentile *float64 `mapstructure:"percentile"`
}

type spanDuration struct {
	name string
	ms   float64
}

func handleSpanDuration(_ context.Context, _ *Pipeline, a *models.Assertion, rendered any, gctx *Context) (*models.GradingResult, error) {
	var args spanDurationArgs
	if err := mapstructure.Decode(rendered, &args); err != nil {
		return nil, structuralf("trace-span-duration has an invalid value: %v", err)
	}
	if args.MaxMs == nil {
		return nil, structuralf("trace-span-duration assertion requires a \"max\" field")
	}
	if gctx.Trace == nil {
		return nil, structuralf("no trace data available for trace-span-duration assertion")
	}

	pattern := args.Pattern
	if pattern == "" {
		pattern = "*"
	}

	matched, err := matchingSpans(gctx.Trace, pattern)
	if err != nil {
		return nil, err
	}

	// Percentiles and bounds only consider spans with complete timing.
	var durations []spanDuration
	for _, span := range matched {
		if span.EndTime == nil {
			continue
		}
		durations = append(durations, spanDuration{
			name: span.Name,
			ms:   float64(*span.EndTime - span.StartTime),
		})
	}

	if len(durations) == 0 {
		return &models.GradingResult{
			Pass:   true,
			Score:  1,
			Reason: fmt.Sprintf("No spans found matching %q with complete timing data", pattern),
		}, nil
	}

	if args.Percentile != nil {
		p := *args.Percentile
		if p <= 0 || p > 100 {
			return nil, structuralf("trace-span-duration percentile must be in (0,100], got %v", p)
		}
		values := make([]float64, len(durations))
		for i, d := range durations {
			values[i] = d.ms
		}
		pv := percentileNearestRank(values, p)
		if pv > *args.MaxMs {
			return &models.GradingResult{
				Pass:  false,
				Score: 0,
				Reason: fmt.Sprintf("p%.0f span duration %.0fms exceeds %.0fms; slowest spans: %s",
					p, pv, *args.MaxMs, slowestSpans(durations, 3)),
			}, nil
		}
		return &models.GradingResult{
			Pass:   true,
			Score:  1,
			Reason: fmt.Sprintf("p%.0f span duration %.0fms is within %.0fms across %d spans", p, pv, *args.MaxMs, len(durations)),
		}, nil
	}

	var offenders []spanDuration
	for _, d := range durations {
		if d.ms > *args.MaxMs {
			offenders = append(offenders, d)
		}
	}
	if len(offenders) > 0 {
		return &models.GradingResult{
			Pass:  false,
			Score: 0,
			Reason: fmt.Sprintf("Found %d spans exceeding %.0fms; slowest spans: %s",
				len(offenders), *args.MaxMs, slowestSpans(offenders, 3)),
		}, nil
	}
	return &models.GradingResult{
		Pass:   true,
		Score:  1,
		Reason: fmt.Sprintf("All %d spans matching %q completed within %.0fms", len(durations), pattern, *args.MaxMs),
	}, nil
}

// slowestSpans formats the top-n slowest spans, slowest first.
func slowestSpans(durations []spanDuration, n int) string {
	sorted := make([]spanDuration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ms > sorted[j].ms })
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	parts := make([]string, len(sorted))
	for i, d := range sorted {
		parts[i] = fmt.Sprintf("%s (%.0fms)", d.name, d.ms)
	}
	return strings.Join(parts, ", ")
}

// percentileNearestRank returns the pth percentile using the nearest-rank
// method.
func percentileNearestRank(values []float64, p float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	rank := int(p/100*float64(len(sorted)) + 0.9999999)
	if rank < 1 {
		rank = 1
	}
	if rank > len(sorted) {
		rank = len(sorted)
	}
	return sorted[rank-1]
}
