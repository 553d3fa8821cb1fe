package graders

import (
	"context"
	"errors"
	"testing"

	"github.com/gavelhq/gavel/internal/models"
	"github.com/stretchr/testify/require"
)

var _ Judge = (*fakeJudge)(nil)

// fakeJudge records the last call and returns a canned verdict.
type fakeJudge struct {
	result   *MatchResult
	err      error
	lastKind JudgeKind
	lastExp  string
	lastOut  string
	lastCfg  map[string]any
}

func (j *fakeJudge) Matches(_ context.Context, kind JudgeKind, expected, output string, _ float64, cfg map[string]any) (*MatchResult, error) {
	j.lastKind = kind
	j.lastExp = expected
	j.lastOut = output
	j.lastCfg = cfg
	return j.result, j.err
}

func floatPtr(v float64) *float64 { return &v }

func TestCombine(t *testing.T) {
	t.Run("empty passes vacuously", func(t *testing.T) {
		r := Combine(nil)
		require.True(t, r.Pass)
		require.Equal(t, 1.0, r.Score)
	})

	t.Run("weighted average score", func(t *testing.T) {
		components := []models.GradingResult{
			{Pass: true, Score: 1, Assertion: &models.Assertion{Type: "contains", Weight: floatPtr(3)}},
			{Pass: true, Score: 0.5, Assertion: &models.Assertion{Type: "similar"}},
		}
		r := Combine(components)
		require.True(t, r.Pass)
		require.InDelta(t, (3*1+1*0.5)/4, r.Score, 1e-9)
		require.Equal(t, "All assertions passed", r.Reason)
	})

	t.Run("any weighted failure fails the composite", func(t *testing.T) {
		components := []models.GradingResult{
			{Pass: true, Score: 1, Reason: "ok", Assertion: &models.Assertion{Type: "contains"}},
			{Pass: false, Score: 0, Reason: "missing thing", Assertion: &models.Assertion{Type: "contains"}},
		}
		r := Combine(components)
		require.False(t, r.Pass)
		require.Equal(t, "missing thing", r.Reason)
	})

	t.Run("zero-weight failure is informational", func(t *testing.T) {
		components := []models.GradingResult{
			{Pass: true, Score: 1, Assertion: &models.Assertion{Type: "contains"}},
			{Pass: false, Score: 0, Reason: "fyi", Assertion: &models.Assertion{Type: "latency", Weight: floatPtr(0)}},
		}
		r := Combine(components)
		require.True(t, r.Pass)
		require.Equal(t, 1.0, r.Score, "zero-weight score excluded from the average")
	})

	t.Run("metric populates named scores", func(t *testing.T) {
		components := []models.GradingResult{
			{Pass: true, Score: 0.8, Assertion: &models.Assertion{Type: "similar", Metric: "fluency"}},
		}
		r := Combine(components)
		require.Equal(t, map[string]float64{"fluency": 0.8}, r.NamedScores)
	})

	t.Run("multiple failure reasons joined", func(t *testing.T) {
		components := []models.GradingResult{
			{Pass: false, Score: 0, Reason: "first", Assertion: &models.Assertion{Type: "contains"}},
			{Pass: false, Score: 0, Reason: "second", Assertion: &models.Assertion{Type: "regex"}},
		}
		r := Combine(components)
		require.Equal(t, "first; second", r.Reason)
	})
}

func TestGradeAll(t *testing.T) {
	t.Run("structural errors become failing components", func(t *testing.T) {
		p := NewPipeline(nil)
		list := []models.Assertion{
			{Type: "contains", Value: "hello"},
			{Type: "regex", Value: "("},
		}
		composite, deferred := p.GradeAll(context.Background(), list, &Context{Output: "hello"})
		require.Empty(t, deferred)
		require.False(t, composite.Pass)
		require.Len(t, composite.ComponentResults, 2)
		require.True(t, composite.ComponentResults[0].Pass)
		require.False(t, composite.ComponentResults[1].Pass)
	})

	t.Run("unknown type becomes a failing component", func(t *testing.T) {
		p := NewPipeline(nil)
		composite, _ := p.GradeAll(context.Background(), []models.Assertion{{Type: "bogus"}}, &Context{})
		require.False(t, composite.Pass)
		require.Contains(t, composite.Reason, `no grading handler for assertion type "bogus"`)
	})

	t.Run("short circuit stops at first failure", func(t *testing.T) {
		p := NewPipeline(nil, WithShortCircuit(true))
		list := []models.Assertion{
			{Type: "contains", Value: "absent"},
			{Type: "contains", Value: "hello"},
		}
		composite, _ := p.GradeAll(context.Background(), list, &Context{Output: "hello"})
		require.False(t, composite.Pass)
		require.Len(t, composite.ComponentResults, 1)
	})

	t.Run("cross-group types are deferred in the primary phase", func(t *testing.T) {
		p := NewPipeline(nil)
		list := []models.Assertion{
			{Type: "contains", Value: "hello"},
			{Type: "counterfactual-equality"},
		}
		composite, deferred := p.GradeAll(context.Background(), list, &Context{Output: "hello"})
		require.True(t, composite.Pass)
		require.Len(t, composite.ComponentResults, 1)
		require.Len(t, deferred, 1)
		require.Equal(t, "counterfactual-equality", deferred[0].Type)
	})

	t.Run("deferred types grade when group outputs are present", func(t *testing.T) {
		p := NewPipeline(nil)
		gctx := &Context{
			Output: "approved",
			Test: &models.TestCase{
				Metadata: map[string]any{CounterfactualGroupKey: "g"},
			},
			GroupOutputs: map[string]string{"a": "approved", "b": "approved"},
		}
		composite, deferred := p.GradeAll(context.Background(), []models.Assertion{{Type: "counterfactual-equality"}}, gctx)
		require.Empty(t, deferred)
		require.True(t, composite.Pass)
	})
}

func TestJudgeDelegation(t *testing.T) {
	t.Run("rubric passes judge reason through verbatim", func(t *testing.T) {
		judge := &fakeJudge{result: &MatchResult{Pass: true, Score: 0.9, Reason: "meets all rubric criteria"}}
		p := NewPipeline(nil, WithJudge(judge))

		a := &models.Assertion{Type: "llm-rubric", Value: "Is the answer polite?"}
		r, err := p.GradeOne(context.Background(), a, &Context{Output: "certainly!"})
		require.NoError(t, err)
		require.True(t, r.Pass)
		require.Equal(t, 0.9, r.Score)
		require.Equal(t, "meets all rubric criteria", r.Reason)
		require.Equal(t, JudgeRubric, judge.lastKind)
		require.Equal(t, "Is the answer polite?", judge.lastExp)
	})

	t.Run("rubricPrompt used when value absent", func(t *testing.T) {
		judge := &fakeJudge{result: &MatchResult{Pass: true, Score: 1}}
		p := NewPipeline(nil, WithJudge(judge))

		a := &models.Assertion{Type: "llm-rubric", RubricPrompt: "grade conciseness"}
		_, err := p.GradeOne(context.Background(), a, &Context{Output: "x"})
		require.NoError(t, err)
		require.Equal(t, "grade conciseness", judge.lastExp)
	})

	t.Run("missing rubric is structural", func(t *testing.T) {
		p := NewPipeline(nil, WithJudge(&fakeJudge{}))
		_, err := p.GradeOne(context.Background(), &models.Assertion{Type: "llm-rubric"}, &Context{})
		var serr *StructuralError
		require.ErrorAs(t, err, &serr)
	})

	t.Run("no judge configured is structural", func(t *testing.T) {
		p := NewPipeline(nil)
		a := &models.Assertion{Type: "llm-rubric", Value: "rubric"}
		_, err := p.GradeOne(context.Background(), a, &Context{})
		var serr *StructuralError
		require.ErrorAs(t, err, &serr)
	})

	t.Run("judge errors propagate as collaborator failures", func(t *testing.T) {
		judge := &fakeJudge{err: errors.New("rate limited")}
		p := NewPipeline(nil, WithJudge(judge))

		a := &models.Assertion{Type: "llm-rubric", Value: "rubric"}
		_, err := p.GradeOne(context.Background(), a, &Context{})
		require.Error(t, err)
		var serr *StructuralError
		require.False(t, errors.As(err, &serr))
	})

	t.Run("judge model and provider overrides reach the config", func(t *testing.T) {
		judge := &fakeJudge{result: &MatchResult{Pass: true, Score: 1}}
		p := NewPipeline(nil, WithJudge(judge), WithJudgeModel("gpt-4o-mini"))

		a := &models.Assertion{
			Type:     "classifier",
			Value:    "positive",
			Provider: "openai:gpt-4o",
			Options:  map[string]any{"temperature": 0.0},
		}
		_, err := p.GradeOne(context.Background(), a, &Context{Output: "great!"})
		require.NoError(t, err)
		require.Equal(t, "gpt-4o-mini", judge.lastCfg["model"])
		require.Equal(t, "openai:gpt-4o", judge.lastCfg["provider"])
		require.Equal(t, 0.0, judge.lastCfg["temperature"])
	})

	t.Run("context faithfulness requires the context var", func(t *testing.T) {
		p := NewPipeline(nil, WithJudge(&fakeJudge{result: &MatchResult{Pass: true, Score: 1}}))
		a := &models.Assertion{Type: "context-faithfulness"}

		_, err := p.GradeOne(context.Background(), a, &Context{Output: "x"})
		var serr *StructuralError
		require.ErrorAs(t, err, &serr)

		r, err := p.GradeOne(context.Background(), a, &Context{
			Output: "x",
			Vars:   map[string]any{"context": "the retrieved passage"},
		})
		require.NoError(t, err)
		require.Equal(t, map[string]any{"context": "the retrieved passage"}, r.Metadata)
	})

	t.Run("context recall grades ground truth against the context", func(t *testing.T) {
		judge := &fakeJudge{result: &MatchResult{Pass: true, Score: 1}}
		p := NewPipeline(nil, WithJudge(judge))

		a := &models.Assertion{Type: "context-recall", Value: "expected fact"}
		_, err := p.GradeOne(context.Background(), a, &Context{
			Output: "model answer",
			Vars:   map[string]any{"context": "retrieved text"},
		})
		require.NoError(t, err)
		require.Equal(t, "retrieved text", judge.lastOut, "recall judges the context, not the model output")
		require.Equal(t, "expected fact", judge.lastExp)
	})

	t.Run("context relevance requires the query var", func(t *testing.T) {
		judge := &fakeJudge{result: &MatchResult{Pass: true, Score: 1}}
		p := NewPipeline(nil, WithJudge(judge))

		a := &models.Assertion{Type: "context-relevance"}
		_, err := p.GradeOne(context.Background(), a, &Context{
			Vars: map[string]any{"context": "retrieved text"},
		})
		var serr *StructuralError
		require.ErrorAs(t, err, &serr)

		_, err = p.GradeOne(context.Background(), a, &Context{
			Vars: map[string]any{"context": "retrieved text", "query": "what is X?"},
		})
		require.NoError(t, err)
		require.Equal(t, JudgeRelevance, judge.lastKind)
		require.Equal(t, "what is X?", judge.lastExp)
	})
}

type failingLoader struct{}

func (failingLoader) Resolve(any) (any, error) {
	return nil, errors.New("no such file")
}

type rewritingLoader struct{ out any }

func (l rewritingLoader) Resolve(any) (any, error) { return l.out, nil }

func TestGradeOne_LoaderIntegration(t *testing.T) {
	t.Run("loader failure is structural", func(t *testing.T) {
		p := NewPipeline(nil, WithLoader(failingLoader{}))
		a := &models.Assertion{Type: "contains", Value: "file://missing.txt"}
		_, err := p.GradeOne(context.Background(), a, &Context{Output: "x"})
		var serr *StructuralError
		require.ErrorAs(t, err, &serr)
	})

	t.Run("handler sees the resolved value", func(t *testing.T) {
		p := NewPipeline(nil, WithLoader(rewritingLoader{out: "resolved"}))
		a := &models.Assertion{Type: "contains", Value: "file://x.txt"}
		r, err := p.GradeOne(context.Background(), a, &Context{Output: "the resolved text"})
		require.NoError(t, err)
		require.True(t, r.Pass)
	})
}
