// Package orchestration runs the expanded test matrix against provider
// collaborators under a bounded worker pool.
package orchestration

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gavelhq/gavel/internal/config"
	"github.com/gavelhq/gavel/internal/graders"
	"github.com/gavelhq/gavel/internal/matrix"
	"github.com/gavelhq/gavel/internal/models"
	"github.com/gavelhq/gavel/internal/providers"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// EventType identifies a progress event.
type EventType string

const (
	EventRunStart     EventType = "run_start"
	EventRunComplete  EventType = "run_complete"
	EventItemStart    EventType = "item_start"
	EventItemComplete EventType = "item_complete"
	EventRunStopped   EventType = "run_stopped"
)

// ProgressEvent is a progress update delivered to listeners.
type ProgressEvent struct {
	EventType  EventType
	ProviderID string
	TestName   string
	ItemNum    int
	TotalItems int
	RepeatNum  int
	Status     models.Status
	DurationMs int64
}

// ProgressListener receives progress updates. Listeners run on dispatcher
// goroutines and must not block.
type ProgressListener func(event ProgressEvent)

const defaultMaxConcurrency = 4

// TraceSource supplies execution trace data for a completed work item. The
// dispatcher never constructs or persists trace data itself; a nil return
// means no trace exists for the item.
type TraceSource func(item matrix.WorkItem) *models.TraceData

// Dispatcher expands an eval spec into work items and executes them. Items
// sharing a concurrency key run strictly serialized in ascending repeat
// order; distinct keys interleave freely up to the concurrency limit.
type Dispatcher struct {
	spec        *models.EvalSpec
	registry    *providers.Registry
	pipeline    *graders.Pipeline
	traceSource TraceSource

	progressMu sync.Mutex
	listeners  []ProgressListener
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithTraceSource sets the trace collaborator consulted after each provider
// call. Trace assertions structurally fail without one.
func WithTraceSource(source TraceSource) DispatcherOption {
	return func(d *Dispatcher) { d.traceSource = source }
}

// NewDispatcher creates a dispatcher over resolved collaborators.
func NewDispatcher(spec *models.EvalSpec, registry *providers.Registry, pipeline *graders.Pipeline, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		spec:     spec,
		registry: registry,
		pipeline: pipeline,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// OnProgress registers a progress listener.
func (d *Dispatcher) OnProgress(listener ProgressListener) {
	d.progressMu.Lock()
	defer d.progressMu.Unlock()
	d.listeners = append(d.listeners, listener)
}

func (d *Dispatcher) notifyProgress(event ProgressEvent) {
	d.progressMu.Lock()
	listeners := make([]ProgressListener, len(d.listeners))
	copy(listeners, d.listeners)
	d.progressMu.Unlock()

	for _, listener := range listeners {
		listener(event)
	}
}

// itemState carries the primary-phase grading state an item needs for the
// deferred phase.
type itemState struct {
	item      matrix.WorkItem
	output    string
	completed bool
	deferred  []models.Assertion
}

// Run executes the whole matrix and returns the outcome. Cancellation stops
// scheduling of unstarted items and propagates to in-flight calls; results
// completed before cancellation are retained, and their slots are the only
// non-zero ones.
func (d *Dispatcher) Run(ctx context.Context) (*models.EvalOutcome, error) {
	startTime := time.Now()

	prompts := make([]*models.Prompt, len(d.spec.Prompts))
	for i := range d.spec.Prompts {
		prompts[i] = &d.spec.Prompts[i]
	}
	tests := make([]*models.TestCase, len(d.spec.Tests))
	for i := range d.spec.Tests {
		tests[i] = &d.spec.Tests[i]
	}
	items := matrix.Build(d.spec.Providers, prompts, tests, d.spec.EffectiveRepeat())

	d.notifyProgress(ProgressEvent{
		EventType:  EventRunStart,
		TotalItems: len(items),
	})

	// Every item owns exactly one slot; slots are written once, by the lane
	// goroutine that runs the item.
	results := make([]models.ItemResult, len(items))
	states := make([]itemState, len(items))

	maxConcurrency := d.spec.Options.MaxConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = defaultMaxConcurrency
	}
	sem := semaphore.NewWeighted(int64(maxConcurrency))

	// Group items into per-key lanes. matrix.Build emits repeats in ascending
	// order, so each lane's slice is already ordered.
	laneOrder := make([]matrix.ConcurrencyKey, 0, len(items))
	lanes := make(map[matrix.ConcurrencyKey][]matrix.WorkItem)
	for _, item := range items {
		if _, ok := lanes[item.Key]; !ok {
			laneOrder = append(laneOrder, item.Key)
		}
		lanes[item.Key] = append(lanes[item.Key], item)
	}

	var wg sync.WaitGroup
	for _, key := range laneOrder {
		wg.Add(1)
		go func(lane []matrix.WorkItem) {
			defer wg.Done()
			for _, item := range lane {
				if ctx.Err() != nil {
					// Unstarted items keep their zero-valued slots.
					return
				}
				if err := sem.Acquire(ctx, 1); err != nil {
					return
				}
				d.runItem(ctx, item, results, states, len(items))
				sem.Release(1)

				if delay := d.spec.Options.DelayMs; delay > 0 {
					select {
					case <-ctx.Done():
						return
					case <-time.After(time.Duration(delay) * time.Millisecond):
					}
				}
			}
		}(lanes[key])
	}
	wg.Wait()

	cancelled := ctx.Err() != nil
	if cancelled {
		d.notifyProgress(ProgressEvent{EventType: EventRunStopped})
	} else {
		d.gradeDeferred(results, states)
	}

	outcome := &models.EvalOutcome{
		RunID:       uuid.NewString(),
		Description: d.spec.Description,
		Timestamp:   startTime,
		Digest:      models.BuildDigest(results, time.Since(startTime)),
		Results:     results,
	}

	d.notifyProgress(ProgressEvent{
		EventType:  EventRunComplete,
		DurationMs: time.Since(startTime).Milliseconds(),
	})

	if cancelled {
		return outcome, ctx.Err()
	}
	return outcome, nil
}

// runItem executes one work item and writes its slot. Provider errors and
// provider-reported Error fields both mark the item errored without aborting
// the batch.
func (d *Dispatcher) runItem(ctx context.Context, item matrix.WorkItem, results []models.ItemResult, states []itemState, total int) {
	d.notifyProgress(ProgressEvent{
		EventType:  EventItemStart,
		ProviderID: item.ProviderID,
		TestName:   item.Test.Description,
		ItemNum:    item.Index + 1,
		TotalItems: total,
		RepeatNum:  item.RepeatIndex + 1,
	})

	result := models.ItemResult{
		ProviderID:  item.ProviderID,
		PromptIndex: item.PromptIndex,
		TestIndex:   item.TestIndex,
		RepeatIndex: item.RepeatIndex,
	}
	state := itemState{item: item}

	defer func() {
		results[item.Index] = result
		states[item.Index] = state
		d.notifyProgress(ProgressEvent{
			EventType:  EventItemComplete,
			ProviderID: item.ProviderID,
			TestName:   item.Test.Description,
			ItemNum:    item.Index + 1,
			TotalItems: total,
			RepeatNum:  item.RepeatIndex + 1,
			Status:     result.Status,
			DurationMs: result.LatencyMs,
		})
	}()

	provider, err := d.registry.Resolve(item.ProviderID)
	if err != nil {
		result.Status = models.StatusError
		result.ErrorMsg = err.Error()
		return
	}

	prompt := RenderPrompt(item.Prompt.Text, item.Test.Vars)
	cfg := config.Merge(item.Prompt.Config, item.Test.Options)

	callStart := time.Now()
	resp, err := provider.CallAPI(ctx, prompt, cfg, item.Test.Vars)
	result.LatencyMs = time.Since(callStart).Milliseconds()

	if err != nil {
		result.Status = models.StatusError
		result.ErrorMsg = err.Error()
		slog.Debug("provider call failed",
			"provider", item.ProviderID, "test", item.TestIndex, "error", err)
		return
	}
	result.Response = resp
	if resp.Error != "" {
		result.Status = models.StatusError
		result.ErrorMsg = resp.Error
		return
	}

	var trace *models.TraceData
	if d.traceSource != nil {
		trace = d.traceSource(item)
	}

	gctx := &graders.Context{
		Output:    resp.Output,
		Response:  resp,
		Test:      item.Test,
		Vars:      item.Test.Vars,
		Trace:     trace,
		LatencyMs: result.LatencyMs,
	}
	composite, deferred := d.pipeline.GradeAll(ctx, item.Test.Assertions, gctx)

	result.Grade = composite
	result.Status = models.StatusFailed
	if composite.Pass {
		result.Status = models.StatusPassed
	}

	state.output = resp.Output
	state.completed = true
	state.deferred = deferred
}

// gradeDeferred runs the post-batch phase for assertions that compare outputs
// across a test group. Group outputs only include items that completed; a
// deferred assertion on an item whose group peers errored simply sees a
// smaller group.
func (d *Dispatcher) gradeDeferred(results []models.ItemResult, states []itemState) {
	// variant -> output per group, from the first repeat of each completed item.
	groupOutputs := make(map[string]map[string]string)
	for i := range states {
		s := &states[i]
		if !s.completed || s.item.RepeatIndex != 0 {
			continue
		}
		gid := graders.GroupID(s.item.Test)
		if gid == "" {
			continue
		}
		if groupOutputs[gid] == nil {
			groupOutputs[gid] = make(map[string]string)
		}
		groupOutputs[gid][graders.VariantLabel(s.item.Test)] = s.output
	}

	for i := range states {
		s := &states[i]
		if !s.completed || len(s.deferred) == 0 {
			continue
		}

		gctx := &graders.Context{
			Output:       s.output,
			Response:     results[i].Response,
			Test:         s.item.Test,
			Vars:         s.item.Test.Vars,
			LatencyMs:    results[i].LatencyMs,
			GroupOutputs: groupOutputs[graders.GroupID(s.item.Test)],
		}
		if gctx.GroupOutputs == nil {
			gctx.GroupOutputs = map[string]string{}
		}

		extra, _ := d.pipeline.GradeAll(context.Background(), s.deferred, gctx)

		components := append(results[i].Grade.ComponentResults, extra.ComponentResults...)
		results[i].Grade = graders.Combine(components)
		results[i].Status = models.StatusFailed
		if results[i].Grade.Pass {
			results[i].Status = models.StatusPassed
		}
	}
}
