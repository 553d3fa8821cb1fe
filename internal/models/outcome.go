package models

import (
	"math"
	"time"
)

// ItemResult is the completed result of one work item. Each item owns
// exactly one result slot in the run's result set; slots are write-once.
type ItemResult struct {
	ProviderID  string `json:"provider_id"`
	PromptIndex int    `json:"prompt_index"`
	TestIndex   int    `json:"test_index"`
	RepeatIndex int    `json:"repeat_index"`

	Status    Status            `json:"status"`
	Response  *ProviderResponse `json:"response,omitempty"`
	Grade     *GradingResult    `json:"grade,omitempty"`
	LatencyMs int64             `json:"latency_ms"`
	ErrorMsg  string            `json:"error_msg,omitempty"`
}

// Passed reports whether this item both completed and passed grading.
func (r *ItemResult) Passed() bool {
	return r.Status == StatusPassed
}

// EvalOutcome is the complete result of an evaluation run.
type EvalOutcome struct {
	RunID       string         `json:"run_id"`
	Description string         `json:"description,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
	Digest      OutcomeDigest  `json:"summary"`
	Results     []ItemResult   `json:"results"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// OutcomeDigest summarizes a run.
type OutcomeDigest struct {
	TotalItems  int     `json:"total_items"`
	Succeeded   int     `json:"succeeded"`
	Failed      int     `json:"failed"`
	Errors      int     `json:"errors"`
	SuccessRate float64 `json:"success_rate"`
	AvgScore    float64 `json:"avg_score"`
	DurationMs  int64   `json:"duration_ms"`
}

// BuildDigest computes the digest over a result set. Items the run never
// scheduled (zero-valued slots after cancellation) are excluded.
func BuildDigest(results []ItemResult, duration time.Duration) OutcomeDigest {
	d := OutcomeDigest{DurationMs: duration.Milliseconds()}

	totalScore := 0.0
	scored := 0
	for i := range results {
		r := &results[i]
		switch r.Status {
		case StatusPassed:
			d.Succeeded++
		case StatusFailed:
			d.Failed++
		case StatusError:
			d.Errors++
		default:
			continue
		}
		d.TotalItems++
		if r.Grade != nil {
			totalScore += r.Grade.Score
			scored++
		}
	}

	if d.TotalItems > 0 {
		d.SuccessRate = float64(d.Succeeded) / float64(d.TotalItems)
	}
	if scored > 0 {
		d.AvgScore = totalScore / float64(scored)
	}
	return d
}

// ComputeStdDev returns the population standard deviation of values.
func ComputeStdDev(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}

	sum := 0.0
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(n)

	variance := 0.0
	for _, v := range values {
		diff := v - mean
		variance += diff * diff
	}
	return math.Sqrt(variance / float64(n))
}
