package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/gavelhq/gavel/internal/assertions"
	"github.com/gavelhq/gavel/internal/graders"
	"github.com/gavelhq/gavel/internal/models"
	"github.com/gavelhq/gavel/internal/orchestration"
	"github.com/gavelhq/gavel/internal/providers"
	"github.com/gavelhq/gavel/internal/reporting"
	"github.com/gavelhq/gavel/internal/statistics"
	"github.com/spf13/cobra"
)

const defaultJudgeModel = "gpt-4o-mini"

type runFlags struct {
	output     string
	junit      string
	mock       bool
	baseURL    string
	judgeModel string
	repeat     int
	quiet      bool
}

func newRunCommand() *cobra.Command {
	flags := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run <eval-file>",
		Short: "Run an evaluation file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEval(cmd, args[0], flags)
		},
	}

	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "Write results as JSONL (a .zst suffix enables compression)")
	cmd.Flags().StringVar(&flags.junit, "junit", "", "Write results as JUnit XML")
	cmd.Flags().BoolVar(&flags.mock, "mock", false, "Use a mock provider that echoes prompts (no API calls)")
	cmd.Flags().StringVar(&flags.baseURL, "base-url", "", "Override the OpenAI-compatible endpoint")
	cmd.Flags().StringVar(&flags.judgeModel, "judge-model", "", "Model for judge-delegated assertions")
	cmd.Flags().IntVar(&flags.repeat, "repeat", 0, "Override the spec's repeat count")
	cmd.Flags().BoolVarP(&flags.quiet, "quiet", "q", false, "Suppress per-item progress output")

	return cmd
}

func runEval(cmd *cobra.Command, evalPath string, flags *runFlags) error {
	spec, err := models.LoadEvalSpec(evalPath)
	if err != nil {
		return fmt.Errorf("loading eval file: %w", err)
	}
	if flags.repeat > 0 {
		spec.Options.Repeat = flags.repeat
	}

	assertions.NormalizeAll(spec.Tests)

	typeRegistry := assertions.NewRegistry()
	typeRegistry.Seal()
	if err := validateSpec(cmd, typeRegistry, spec); err != nil {
		return err
	}

	pipeline, err := buildPipeline(evalPath, typeRegistry, spec, flags)
	if err != nil {
		return err
	}

	providerRegistry, err := buildProviders(spec, flags)
	if err != nil {
		return err
	}

	dispatcher := orchestration.NewDispatcher(spec, providerRegistry, pipeline)

	reporter := newConsoleReporter(cmd.OutOrStdout(), flags.quiet)
	dispatcher.OnProgress(reporter.Listen)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	outcome, runErr := dispatcher.Run(ctx)
	if outcome == nil {
		return runErr
	}

	repeats := statistics.Aggregate(outcome.Results, spec.EffectiveRepeat())
	reporter.PrintSummary(outcome, repeats)

	if flags.output != "" {
		sink := &reporting.JSONLSink{Path: flags.output}
		if err := sink.Write(outcome, repeats); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Results written to %s\n", flags.output)
	}
	if flags.junit != "" {
		sink := &reporting.JUnitSink{Path: flags.junit}
		if err := sink.Write(outcome, repeats); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "JUnit report written to %s\n", flags.junit)
	}

	if runErr != nil {
		return fmt.Errorf("run interrupted: %w", runErr)
	}
	if failed := outcome.Digest.Failed + outcome.Digest.Errors; failed > 0 {
		return &EvalFailureError{
			Message: fmt.Sprintf("%d of %d items failed", failed, outcome.Digest.TotalItems),
		}
	}
	return nil
}

// validateSpec surfaces assertion problems before any provider call is made.
// Warnings print; errors abort the run.
func validateSpec(cmd *cobra.Command, reg *assertions.Registry, spec *models.EvalSpec) error {
	hadErrors := false
	for i := range spec.Tests {
		result := assertions.ValidateAssertions(reg, spec.Tests[i].Assertions)
		for _, w := range result.Warnings {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: test %d: %s\n", i, w)
		}
		for _, e := range result.Errors {
			fmt.Fprintf(cmd.ErrOrStderr(), "error: test %d: %s\n", i, e)
			hadErrors = true
		}
	}
	if hadErrors {
		return fmt.Errorf("eval file has invalid assertions")
	}
	return nil
}

func buildPipeline(evalPath string, reg *assertions.Registry, spec *models.EvalSpec, flags *runFlags) (*graders.Pipeline, error) {
	opts := []graders.PipelineOption{
		graders.WithLoader(&assertions.FileLoader{BaseDir: filepath.Dir(evalPath)}),
		graders.WithShortCircuit(spec.Options.ShortCircuit),
	}

	judgeModel := flags.judgeModel
	if judgeModel == "" {
		judgeModel = spec.Options.JudgeModel
	}
	if judgeModel == "" {
		judgeModel = defaultJudgeModel
	}
	opts = append(opts, graders.WithJudgeModel(judgeModel))

	if !flags.mock {
		apiKey := os.Getenv("OPENAI_API_KEY")
		if apiKey != "" || flags.baseURL != "" {
			judge := providers.NewOpenAIJudge(judgeModel, apiKey, flags.baseURL)
			opts = append(opts, graders.WithJudge(orchestration.LimitJudge(judge, spec.Options.JudgeConcurrency)))
		}
	}

	return graders.NewPipeline(reg, opts...), nil
}

func buildProviders(spec *models.EvalSpec, flags *runFlags) (*providers.Registry, error) {
	registry := providers.NewRegistry()

	if flags.mock {
		for _, ref := range spec.Providers {
			registry.Register(providers.NewMockProvider(ref))
		}
		return registry, nil
	}

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" && flags.baseURL == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is not set (use --mock for a dry run, or --base-url for a local endpoint)")
	}
	for _, ref := range spec.Providers {
		registry.Register(providers.NewOpenAIProvider(ref, apiKey, flags.baseURL))
	}
	return registry, nil
}
