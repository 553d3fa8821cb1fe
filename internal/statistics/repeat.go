// Package statistics post-processes a run's results into repeat-run
// stability metrics and bootstrap confidence intervals.
package statistics

import (
	"log/slog"
	"math"
	"sort"

	"github.com/gavelhq/gavel/internal/models"
)

// ScoreStats summarizes the score distribution of one repeat group.
type ScoreStats struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// LatencyStats is only computed when every repeat in a group carries a
// latency value.
type LatencyStats struct {
	MeanMs float64 `json:"mean_ms"`
	P95Ms  float64 `json:"p95_ms"`
	P99Ms  float64 `json:"p99_ms"`
}

// RepeatStats holds stability metrics for one (promptIndex, testIndex) group
// of repeated runs.
type RepeatStats struct {
	ProviderID  string `json:"provider_id"`
	PromptIndex int    `json:"prompt_index"`
	TestIndex   int    `json:"test_index"`
	Repeats     int    `json:"repeats"`

	// PassRate is successes over observed repeats.
	PassRate float64 `json:"pass_rate"`
	// PassN is passRate^N: the probability all N repeats pass, computed from
	// the aggregate rate. The aggregate-rate exponentiation is deliberate
	// and pinned by tests; do not substitute a per-test computation.
	PassN float64 `json:"pass_n"`
	// FlipRate is adjacent pass<->fail transitions over N-1.
	FlipRate float64 `json:"flip_rate"`

	Score   ScoreStats    `json:"score"`
	Latency *LatencyStats `json:"latency,omitempty"`

	// CI is a bootstrap confidence interval over the group's scores,
	// present when the group has at least two scored repeats.
	CI *ConfidenceInterval `json:"ci,omitempty"`
}

// Report aggregates repeat stats for a whole run. Report-level metrics are
// the unweighted average of each group's metric.
type Report struct {
	ConfiguredRepeats int           `json:"configured_repeats"`
	Groups            []RepeatStats `json:"groups"`

	PassRate float64 `json:"pass_rate"`
	PassN    float64 `json:"pass_n"`
	FlipRate float64 `json:"flip_rate"`
	AvgScore float64 `json:"avg_score"`
}

// Aggregate computes repeat statistics over a completed result set. Returns
// an empty report when the configured repeat count is 1 or less.
func Aggregate(results []models.ItemResult, configuredRepeats int) *Report {
	report := &Report{ConfiguredRepeats: configuredRepeats}
	if configuredRepeats <= 1 {
		return report
	}

	type groupKey struct {
		provider    string
		promptIndex int
		testIndex   int
	}

	groups := make(map[groupKey][]models.ItemResult)
	var order []groupKey
	for _, r := range results {
		if r.Status == "" {
			// Slot never scheduled (cancelled run).
			continue
		}
		k := groupKey{r.ProviderID, r.PromptIndex, r.TestIndex}
		if _, seen := groups[k]; !seen {
			order = append(order, k)
		}
		groups[k] = append(groups[k], r)
	}

	for _, k := range order {
		members := groups[k]
		sort.Slice(members, func(i, j int) bool {
			return members[i].RepeatIndex < members[j].RepeatIndex
		})

		if len(members) != configuredRepeats {
			slog.Warn("observed repeat count differs from configured value",
				"provider", k.provider,
				"prompt_index", k.promptIndex,
				"test_index", k.testIndex,
				"observed", len(members),
				"configured", configuredRepeats)
		}

		report.Groups = append(report.Groups, computeGroup(k.provider, k.promptIndex, k.testIndex, members))
	}

	// Unweighted averages across groups.
	if n := float64(len(report.Groups)); n > 0 {
		for _, g := range report.Groups {
			report.PassRate += g.PassRate
			report.PassN += g.PassN
			report.FlipRate += g.FlipRate
			report.AvgScore += g.Score.Mean
		}
		report.PassRate /= n
		report.PassN /= n
		report.FlipRate /= n
		report.AvgScore /= n
	}

	return report
}

func computeGroup(provider string, promptIndex, testIndex int, members []models.ItemResult) RepeatStats {
	n := len(members)
	stats := RepeatStats{
		ProviderID:  provider,
		PromptIndex: promptIndex,
		TestIndex:   testIndex,
		Repeats:     n,
	}

	passed := 0
	flips := 0
	scores := make([]float64, 0, n)
	latencies := make([]float64, 0, n)
	allLatencies := true

	for i, m := range members {
		if m.Passed() {
			passed++
		}
		if i > 0 && members[i-1].Passed() != m.Passed() {
			flips++
		}
		score := 0.0
		if m.Grade != nil {
			score = m.Grade.Score
		}
		scores = append(scores, score)

		if m.LatencyMs > 0 {
			latencies = append(latencies, float64(m.LatencyMs))
		} else {
			allLatencies = false
		}
	}

	stats.PassRate = float64(passed) / float64(n)
	stats.PassN = math.Pow(stats.PassRate, float64(n))
	if n > 1 {
		stats.FlipRate = float64(flips) / float64(n-1)
	}

	stats.Score = ScoreStats{
		Mean:   mean(scores),
		StdDev: models.ComputeStdDev(scores),
		Min:    minOf(scores),
		Max:    maxOf(scores),
	}

	if allLatencies && len(latencies) == n {
		stats.Latency = &LatencyStats{
			MeanMs: mean(latencies),
			P95Ms:  Percentile(latencies, 95),
			P99Ms:  Percentile(latencies, 99),
		}
	}

	if n >= 2 {
		ci := BootstrapCI(scores, 0.95)
		stats.CI = &ci
	}

	return stats
}

// Percentile returns the pth percentile of values using the nearest-rank
// method.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	rank := int(math.Ceil(p / 100 * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	if rank > len(sorted) {
		rank = len(sorted)
	}
	return sorted[rank-1]
}

func minOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func maxOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}
