package models

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Assertion is a declarative check applied to a provider's output.
//
// Type holds the base type after normalization; the "not-" prefix is stripped
// exactly once at parse time and recorded in Inverse. Downstream code must
// never re-derive inversion from the type string.
type Assertion struct {
	Type    string `yaml:"type" json:"type"`
	Inverse bool   `yaml:"-" json:"inverse,omitempty"`

	// Value is the expected value, shaped per the type's declared value kind
	// (string, number, array, object). String values may use the universal
	// escapes "file://<path>" and "package:<name>".
	Value any `yaml:"value,omitempty" json:"value,omitempty"`

	Threshold Threshold `yaml:"threshold,omitempty" json:"threshold,omitempty"`

	// Weight participates in composite scoring; nil means the default of 1.
	// An explicit 0 makes the assertion informational: its score is ignored
	// and its failure does not fail the composite.
	Weight *float64 `yaml:"weight,omitempty" json:"weight,omitempty"`
	Metric string   `yaml:"metric,omitempty" json:"metric,omitempty"`

	// Transform names a built-in output rewrite (trim, lowercase, uppercase,
	// first-line, last-line) applied before this assertion grades. It is
	// scoped to the assertion; siblings see the raw output.
	Transform string `yaml:"transform,omitempty" json:"transform,omitempty"`

	// Provider overrides the judge provider for judge-delegated types.
	Provider     string `yaml:"provider,omitempty" json:"provider,omitempty"`
	RubricPrompt string `yaml:"rubricPrompt,omitempty" json:"rubricPrompt,omitempty"`

	// Options carries handler-specific tuning (e.g. n-gram bounds).
	Options map[string]any `yaml:"options,omitempty" json:"options,omitempty"`
}

// EffectiveWeight returns the composite weight, defaulting to 1 when unset.
func (a *Assertion) EffectiveWeight() float64 {
	if a.Weight == nil {
		return 1
	}
	if *a.Weight < 0 {
		return 0
	}
	return *a.Weight
}

// Threshold is an optional [0,1] cutoff. The wrapper keeps "threshold unset"
// distinct from "threshold of zero", which matters for judge-delegated types
// whose documented default is 0.
type Threshold struct {
	value float64
	set   bool
}

// NewThreshold returns a set threshold.
func NewThreshold(v float64) Threshold {
	return Threshold{value: v, set: true}
}

// IsSet reports whether a threshold was supplied.
func (t Threshold) IsSet() bool { return t.set }

// Or returns the threshold value, or def when unset.
func (t Threshold) Or(def float64) float64 {
	if t.set {
		return t.value
	}
	return def
}

// Value returns the raw threshold value; only meaningful when IsSet.
func (t Threshold) Value() float64 { return t.value }

// UnmarshalYAML implements yaml.Unmarshaler.
func (t *Threshold) UnmarshalYAML(node *yaml.Node) error {
	var v float64
	if err := node.Decode(&v); err != nil {
		return fmt.Errorf("threshold must be a number: %w", err)
	}
	*t = Threshold{value: v, set: true}
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (t Threshold) MarshalYAML() (any, error) {
	if !t.set {
		return nil, nil
	}
	return t.value, nil
}

// MarshalJSON keeps unset thresholds out of serialized results.
func (t Threshold) MarshalJSON() ([]byte, error) {
	if !t.set {
		return []byte("null"), nil
	}
	return []byte(fmt.Sprintf("%g", t.value)), nil
}
