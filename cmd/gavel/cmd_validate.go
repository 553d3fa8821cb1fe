package main

import (
	"fmt"

	"github.com/gavelhq/gavel/internal/assertions"
	"github.com/gavelhq/gavel/internal/models"
	"github.com/spf13/cobra"
)

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <eval-file>",
		Short: "Validate an evaluation file without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateEval(cmd, args[0])
		},
	}
}

func validateEval(cmd *cobra.Command, evalPath string) error {
	spec, err := models.LoadEvalSpec(evalPath)
	if err != nil {
		return fmt.Errorf("loading eval file: %w", err)
	}

	assertions.NormalizeAll(spec.Tests)

	reg := assertions.NewRegistry()
	reg.Seal()

	out := cmd.OutOrStdout()
	assertionCount := 0
	errorCount := 0
	warningCount := 0

	for i := range spec.Tests {
		test := &spec.Tests[i]
		assertionCount += len(test.Assertions)

		result := assertions.ValidateAssertions(reg, test.Assertions)
		for _, w := range result.Warnings {
			fmt.Fprintf(out, "warning: test %d (%s): %s\n", i, testLabel(test), w)
			warningCount++
		}
		for _, e := range result.Errors {
			fmt.Fprintf(out, "error: test %d (%s): %s\n", i, testLabel(test), e)
			errorCount++
		}
	}

	items := len(spec.Providers) * len(spec.Prompts) * len(spec.Tests) * spec.EffectiveRepeat()
	fmt.Fprintf(out, "%s: %d providers, %d prompts, %d tests, %d assertions (%d work items)\n",
		evalPath, len(spec.Providers), len(spec.Prompts), len(spec.Tests), assertionCount, items)

	if errorCount > 0 {
		return fmt.Errorf("validation failed: %d error(s), %d warning(s)", errorCount, warningCount)
	}
	fmt.Fprintf(out, "OK (%d warning(s))\n", warningCount)
	return nil
}

func testLabel(test *models.TestCase) string {
	if test.Description != "" {
		return test.Description
	}
	return "unnamed"
}
