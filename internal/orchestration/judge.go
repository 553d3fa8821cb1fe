package orchestration

import (
	"context"

	"github.com/gavelhq/gavel/internal/graders"
	"golang.org/x/sync/semaphore"
)

const defaultJudgeConcurrency = 2

// limitedJudge bounds concurrent judge calls independently of the provider
// pool, so a burst of judge-delegated assertions cannot starve provider
// throughput or the reverse.
type limitedJudge struct {
	inner graders.Judge
	sem   *semaphore.Weighted
}

var _ graders.Judge = (*limitedJudge)(nil)

// LimitJudge wraps a judge with its own concurrency budget. limit <= 0 uses
// the default.
func LimitJudge(inner graders.Judge, limit int) graders.Judge {
	if limit <= 0 {
		limit = defaultJudgeConcurrency
	}
	return &limitedJudge{inner: inner, sem: semaphore.NewWeighted(int64(limit))}
}

func (j *limitedJudge) Matches(ctx context.Context, kind graders.JudgeKind, expected, output string, threshold float64, cfg map[string]any) (*graders.MatchResult, error) {
	if err := j.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer j.sem.Release(1)
	return j.inner.Matches(ctx, kind, expected, output, threshold, cfg)
}
