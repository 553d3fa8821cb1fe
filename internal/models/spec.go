package models

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// EvalSpec is a complete evaluation specification loaded from YAML.
type EvalSpec struct {
	Description string     `yaml:"description,omitempty"`
	Providers   []string   `yaml:"providers"`
	Prompts     []Prompt   `yaml:"prompts"`
	Tests       []TestCase `yaml:"tests"`
	Options     RunOptions `yaml:"options,omitempty"`
}

// RunOptions controls execution behavior.
type RunOptions struct {
	// Repeat is the number of times each (provider, prompt, test) runs.
	Repeat int `yaml:"repeat,omitempty"`
	// MaxConcurrency bounds parallel provider calls. Defaults to 4.
	MaxConcurrency int `yaml:"max_concurrency,omitempty"`
	// JudgeConcurrency bounds parallel judge calls, independently of the
	// primary provider budget. Defaults to 2.
	JudgeConcurrency int `yaml:"judge_concurrency,omitempty"`
	// DelayMs is an optional inter-call delay per work item.
	DelayMs int `yaml:"delay_ms,omitempty"`
	// ShortCircuit stops grading a test at its first failing assertion.
	ShortCircuit bool `yaml:"short_circuit,omitempty"`
	// JudgeModel overrides the model used by judge-delegated assertions.
	JudgeModel string `yaml:"judge_model,omitempty"`
}

// LoadEvalSpec loads and validates a spec from a YAML file.
func LoadEvalSpec(path string) (*EvalSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var spec EvalSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, err
	}

	if err := spec.Validate(); err != nil {
		return nil, err
	}

	return &spec, nil
}

// Validate checks that the spec is runnable.
func (s *EvalSpec) Validate() error {
	if len(s.Providers) == 0 {
		return fmt.Errorf("at least one provider is required")
	}
	if len(s.Prompts) == 0 {
		return fmt.Errorf("at least one prompt is required")
	}
	if len(s.Tests) == 0 {
		return fmt.Errorf("at least one test is required")
	}
	if s.Options.Repeat < 0 {
		return fmt.Errorf("repeat must be >= 0, got %d", s.Options.Repeat)
	}
	if s.Options.MaxConcurrency < 0 {
		return fmt.Errorf("max_concurrency must be >= 0, got %d", s.Options.MaxConcurrency)
	}
	return nil
}

// EffectiveRepeat returns the configured repeat count, defaulting to 1.
func (s *EvalSpec) EffectiveRepeat() int {
	if s.Options.Repeat < 1 {
		return 1
	}
	return s.Options.Repeat
}
