// Package graders implements the grading pipeline: pure per-assertion
// handlers selected by base type, and the weighted composition of their
// results into one GradingResult per work item.
package graders

import (
	"context"
	"fmt"
	"strings"

	"github.com/gavelhq/gavel/internal/assertions"
	"github.com/gavelhq/gavel/internal/models"
)

// StructuralError marks a configuration-level problem (malformed assertion
// value, a judge handler invoked without a rubric, a required trace missing).
// It aborts only the enclosing assertion evaluation; callers decide whether
// to surface it as a failing result or abort the test.
type StructuralError struct {
	msg string
}

func (e *StructuralError) Error() string { return e.msg }

func structuralf(format string, args ...any) error {
	return &StructuralError{msg: fmt.Sprintf(format, args...)}
}

// Context carries everything a handler may inspect for one work item.
type Context struct {
	// Output is the provider's final output text.
	Output string
	// Response is the full provider response; nil when the provider never
	// produced one.
	Response *models.ProviderResponse
	Test     *models.TestCase
	Vars     map[string]any

	// Trace is optional execution trace data from the trace collaborator.
	Trace *models.TraceData

	// LatencyMs is the measured provider call latency for this item.
	LatencyMs int64

	// GroupOutputs maps variant label to output for tests sharing a
	// counterfactual group. Populated by the dispatcher's deferred grading
	// phase; nil during the primary phase.
	GroupOutputs map[string]string
}

// handlerFunc grades one assertion. rendered is the assertion value after
// file:// / package: resolution.
type handlerFunc func(ctx context.Context, p *Pipeline, a *models.Assertion, rendered any, gctx *Context) (*models.GradingResult, error)

type handlerEntry struct {
	fn handlerFunc
	// selfInverse handlers derive their own pass/reason from the Inverse
	// flag (guardrails has asymmetric messaging); for all others the
	// pipeline flips pass uniformly, never touching the score.
	selfInverse bool
}

var handlers = map[string]handlerEntry{
	"contains":     {fn: handleContains},
	"contains-any": {fn: handleContainsAny},
	"contains-all": {fn: handleContainsAll},
	"equals":       {fn: handleEquals},
	"regex":        {fn: handleRegex},

	"similar": {fn: handleSimilar},
	"bleu":    {fn: handleBLEU},
	"gleu":    {fn: handleGLEU},

	"llm-rubric":           {fn: handleRubric},
	"classifier":           {fn: handleClassifier},
	"context-faithfulness": {fn: handleContextFaithfulness},
	"context-recall":       {fn: handleContextRecall},
	"context-relevance":    {fn: handleContextRelevance},

	"guardrails": {fn: handleGuardrails, selfInverse: true},

	"trace-span-count":    {fn: handleSpanCount},
	"trace-span-duration": {fn: handleSpanDuration},

	"counterfactual-equality": {fn: handleCounterfactual},
	"is-refusal":              {fn: handleRefusal},
	"is-json":                 {fn: handleIsJSON},

	"cost":    {fn: handleCost},
	"latency": {fn: handleLatency},
}

// deferredTypes grade after the whole batch completes, because they compare
// outputs across test cases.
var deferredTypes = map[string]bool{
	"counterfactual-equality": true,
}

// Pipeline validates assertions against the registry, dispatches to grading
// handlers, and composes weighted composite results.
type Pipeline struct {
	registry     *assertions.Registry
	loader       assertions.Loader
	judge        Judge
	shortCircuit bool
	judgeModel   string
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithLoader sets the file://+package: value loader collaborator.
func WithLoader(l assertions.Loader) PipelineOption {
	return func(p *Pipeline) { p.loader = l }
}

// WithJudge sets the judge/matcher collaborator for judge-delegated types.
func WithJudge(j Judge) PipelineOption {
	return func(p *Pipeline) { p.judge = j }
}

// WithJudgeModel overrides the model judge-delegated handlers request.
func WithJudgeModel(model string) PipelineOption {
	return func(p *Pipeline) { p.judgeModel = model }
}

// WithShortCircuit stops grading a test at its first failing assertion.
func WithShortCircuit(enabled bool) PipelineOption {
	return func(p *Pipeline) { p.shortCircuit = enabled }
}

// NewPipeline creates a grading pipeline over the given registry.
func NewPipeline(registry *assertions.Registry, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{registry: registry}
	for _, o := range opts {
		o(p)
	}
	return p
}

// GradeOne grades a single assertion. The returned error is either a
// *StructuralError or a collaborator failure; grading failures are ordinary
// results with Pass=false.
func (p *Pipeline) GradeOne(ctx context.Context, a *models.Assertion, gctx *Context) (*models.GradingResult, error) {
	entry, ok := handlers[a.Type]
	if !ok {
		return nil, structuralf("no grading handler for assertion type %q", a.Type)
	}

	rendered := a.Value
	if p.loader != nil && a.Value != nil {
		resolved, err := p.loader.Resolve(a.Value)
		if err != nil {
			return nil, structuralf("resolving value for %s assertion: %v", a.Type, err)
		}
		rendered = resolved
	}

	if a.Transform != "" {
		transformed, err := applyTransform(a.Transform, gctx.Output)
		if err != nil {
			return nil, err
		}
		// The transform is scoped to this assertion; siblings see the raw
		// output.
		scoped := *gctx
		scoped.Output = transformed
		gctx = &scoped
	}

	result, err := entry.fn(ctx, p, a, rendered, gctx)
	if err != nil {
		return nil, err
	}

	if a.Inverse && !entry.selfInverse {
		result.Pass = !result.Pass
	}
	result.Assertion = a
	return result, nil
}

// GradeAll grades every assertion on a test and composes the results.
// Assertions whose type compares across a test group are returned in
// deferred for the post-batch phase instead of being graded now.
//
// Structural and collaborator errors become failing component results; one
// bad assertion never aborts the test.
func (p *Pipeline) GradeAll(ctx context.Context, list []models.Assertion, gctx *Context) (composite *models.GradingResult, deferred []models.Assertion) {
	var components []models.GradingResult

	for i := range list {
		a := &list[i]
		if deferredTypes[a.Type] && gctx.GroupOutputs == nil {
			deferred = append(deferred, *a)
			continue
		}

		result, err := p.GradeOne(ctx, a, gctx)
		if err != nil {
			result = &models.GradingResult{
				Pass:      false,
				Score:     0,
				Reason:    err.Error(),
				Assertion: a,
			}
		}
		components = append(components, *result)

		if p.shortCircuit && !result.Pass {
			break
		}
	}

	return Combine(components), deferred
}

// Combine merges component results into one composite: score is the weighted
// average, and overall pass requires every non-zero-weight component to pass.
func Combine(components []models.GradingResult) *models.GradingResult {
	if len(components) == 0 {
		return &models.GradingResult{Pass: true, Score: 1, Reason: "No assertions"}
	}

	pass := true
	totalWeight := 0.0
	weightedScore := 0.0
	var failures []string
	namedScores := map[string]float64{}

	for i := range components {
		c := &components[i]
		w := 1.0
		if c.Assertion != nil {
			w = c.Assertion.EffectiveWeight()
			if c.Assertion.Metric != "" {
				namedScores[c.Assertion.Metric] = c.Score
			}
		}
		totalWeight += w
		weightedScore += w * c.Score
		if w > 0 && !c.Pass {
			pass = false
			failures = append(failures, c.Reason)
		}
	}

	score := 0.0
	if totalWeight > 0 {
		score = weightedScore / totalWeight
	}

	reason := "All assertions passed"
	if len(failures) > 0 {
		reason = strings.Join(failures, "; ")
	}

	result := &models.GradingResult{
		Pass:             pass,
		Score:            score,
		Reason:           reason,
		ComponentResults: components,
	}
	if len(namedScores) > 0 {
		result.NamedScores = namedScores
	}
	return result
}

// boolScore coerces a boolean-native check into a {0,1} score.
func boolScore(ok bool) float64 {
	if ok {
		return 1
	}
	return 0
}
