package graders

import (
	"context"
	"fmt"

	"github.com/gavelhq/gavel/internal/config"
	"github.com/gavelhq/gavel/internal/models"
)

// JudgeKind selects the matcher algorithm a judge collaborator runs.
type JudgeKind string

const (
	JudgeRubric         JudgeKind = "rubric"
	JudgeClassification JudgeKind = "classification"
	JudgeFaithfulness   JudgeKind = "faithfulness"
	JudgeRecall         JudgeKind = "recall"
	JudgeRelevance      JudgeKind = "relevance"
)

// MatchResult is the judge collaborator's verdict for one check.
type MatchResult struct {
	Pass   bool
	Score  float64
	Reason string
}

// Judge is the external judge/matcher collaborator. Implementations invoke a
// model and return a pass/score/reason triple; the engine surfaces the reason
// verbatim.
type Judge interface {
	Matches(ctx context.Context, kind JudgeKind, expected, output string, threshold float64, cfg map[string]any) (*MatchResult, error)
}

// judgeConfig assembles the config map passed to the judge collaborator from
// handler options plus any per-assertion provider/model overrides.
func (p *Pipeline) judgeConfig(a *models.Assertion) map[string]any {
	overrides := map[string]any{}
	if p.judgeModel != "" {
		overrides["model"] = p.judgeModel
	}
	if a.Provider != "" {
		overrides["provider"] = a.Provider
	}
	return config.Merge(a.Options, overrides)
}

func (p *Pipeline) delegate(ctx context.Context, a *models.Assertion, kind JudgeKind, expected string, gctx *Context, metadata map[string]any) (*models.GradingResult, error) {
	if p.judge == nil {
		return nil, structuralf("%s assertion requires a judge provider, but none is configured", a.Type)
	}

	// Default threshold 0: any non-negative pass signal from the judge passes.
	threshold := a.Threshold.Or(0)

	match, err := p.judge.Matches(ctx, kind, expected, gctx.Output, threshold, p.judgeConfig(a))
	if err != nil {
		return nil, fmt.Errorf("judge call for %s failed: %w", a.Type, err)
	}

	return &models.GradingResult{
		Pass:     match.Pass,
		Score:    match.Score,
		Reason:   match.Reason,
		Metadata: metadata,
	}, nil
}

func handleRubric(ctx context.Context, p *Pipeline, a *models.Assertion, rendered any, gctx *Context) (*models.GradingResult, error) {
	rubric := a.RubricPrompt
	if rendered != nil {
		s, err := stringValue(a.Type, rendered)
		if err != nil {
			return nil, err
		}
		rubric = s
	}
	if rubric == "" {
		return nil, structuralf("llm-rubric assertion requires a rubric prompt")
	}
	return p.delegate(ctx, a, JudgeRubric, rubric, gctx, nil)
}

func handleClassifier(ctx context.Context, p *Pipeline, a *models.Assertion, rendered any, gctx *Context) (*models.GradingResult, error) {
	expected, err := stringValue(a.Type, rendered)
	if err != nil {
		return nil, err
	}
	return p.delegate(ctx, a, JudgeClassification, expected, gctx, nil)
}

// resolveContext pulls the retrieval context text from the test variables.
func resolveContext(a *models.Assertion, gctx *Context) (string, error) {
	if gctx.Vars != nil {
		if s, ok := gctx.Vars["context"].(string); ok && s != "" {
			return s, nil
		}
	}
	return "", structuralf("%s assertion requires a 'context' variable on the test", a.Type)
}

func handleContextFaithfulness(ctx context.Context, p *Pipeline, a *models.Assertion, _ any, gctx *Context) (*models.GradingResult, error) {
	contextText, err := resolveContext(a, gctx)
	if err != nil {
		return nil, err
	}
	return p.delegate(ctx, a, JudgeFaithfulness, contextText, gctx, map[string]any{"context": contextText})
}

func handleContextRecall(ctx context.Context, p *Pipeline, a *models.Assertion, rendered any, gctx *Context) (*models.GradingResult, error) {
	expected, err := stringValue(a.Type, rendered)
	if err != nil {
		return nil, err
	}
	contextText, err := resolveContext(a, gctx)
	if err != nil {
		return nil, err
	}

	// Recall grades the ground truth against the retrieved context.
	result, err := p.delegate(ctx, a, JudgeRecall, expected, &Context{
		Output:   contextText,
		Response: gctx.Response,
		Test:     gctx.Test,
		Vars:     gctx.Vars,
	}, map[string]any{"context": contextText})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func handleContextRelevance(ctx context.Context, p *Pipeline, a *models.Assertion, _ any, gctx *Context) (*models.GradingResult, error) {
	query, ok := gctx.Vars["query"].(string)
	if !ok || query == "" {
		return nil, structuralf("context-relevance assertion requires a 'query' variable on the test")
	}
	contextText, err := resolveContext(a, gctx)
	if err != nil {
		return nil, err
	}

	result, err := p.delegate(ctx, a, JudgeRelevance, query, &Context{
		Output:   contextText,
		Response: gctx.Response,
		Test:     gctx.Test,
		Vars:     gctx.Vars,
	}, map[string]any{"context": contextText})
	if err != nil {
		return nil, err
	}
	return result, nil
}
