package models

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeSpec(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "eval.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadEvalSpec(t *testing.T) {
	path := writeSpec(t, `
description: sentiment eval
providers:
  - openai:gpt-4o
  - openai:gpt-4o-mini
prompts:
  - label: base
    text: "Classify: {{input}}"
    config:
      temperature: 0.2
tests:
  - description: positive review
    vars:
      input: "loved it"
    options:
      temperature: 0.0
    assert:
      - type: contains
        value: positive
      - type: similar
        value: "the sentiment is positive"
        threshold: 0.7
        weight: 2
options:
  repeat: 3
  max_concurrency: 8
`)

	spec, err := LoadEvalSpec(path)
	require.NoError(t, err)
	require.Equal(t, "sentiment eval", spec.Description)
	require.Len(t, spec.Providers, 2)
	require.Len(t, spec.Prompts, 1)
	require.Equal(t, 0.2, spec.Prompts[0].Config["temperature"])
	require.Equal(t, 3, spec.Options.Repeat)
	require.Equal(t, 8, spec.Options.MaxConcurrency)

	test := spec.Tests[0]
	require.Len(t, test.Assertions, 2)

	similar := test.Assertions[1]
	require.True(t, similar.Threshold.IsSet())
	require.Equal(t, 0.7, similar.Threshold.Value())
	require.NotNil(t, similar.Weight)
	require.Equal(t, 2.0, *similar.Weight)
}

func TestLoadEvalSpec_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"no providers", "prompts: [{text: hi}]\ntests: [{description: t}]", "at least one provider"},
		{"no prompts", "providers: [p]\ntests: [{description: t}]", "at least one prompt"},
		{"no tests", "providers: [p]\nprompts: [{text: hi}]", "at least one test"},
		{
			"negative repeat",
			"providers: [p]\nprompts: [{text: hi}]\ntests: [{description: t}]\noptions: {repeat: -1}",
			"repeat must be >= 0",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadEvalSpec(writeSpec(t, tt.content))
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestEffectiveRepeat(t *testing.T) {
	spec := &EvalSpec{}
	require.Equal(t, 1, spec.EffectiveRepeat())

	spec.Options.Repeat = 5
	require.Equal(t, 5, spec.EffectiveRepeat())
}
