package models

// Status represents the outcome status of a single work item.
type Status string

const (
	StatusPassed Status = "passed"
	StatusFailed Status = "failed"
	StatusError  Status = "error"
)

// TokenUsage reports token counts for a single provider call.
type TokenUsage struct {
	Prompt     int `json:"prompt"`
	Completion int `json:"completion"`
	Total      int `json:"total"`
}

// GuardrailsResponse is the provider-reported safety flag structure.
// Flagged is a pointer so "not reported" is distinct from "reported false".
type GuardrailsResponse struct {
	Flagged       *bool  `json:"flagged,omitempty" mapstructure:"flagged"`
	FlaggedInput  bool   `json:"flaggedInput,omitempty" mapstructure:"flaggedInput"`
	FlaggedOutput bool   `json:"flaggedOutput,omitempty" mapstructure:"flaggedOutput"`
	Reason        string `json:"reason,omitempty" mapstructure:"reason"`
}

// ProviderResponse is the result of one provider call.
//
// Error is a non-throwing failure signal: the provider completed the call but
// the upstream service reported a problem. The dispatcher treats both Error
// and a returned Go error as item failure.
type ProviderResponse struct {
	Output     string              `json:"output"`
	Error      string              `json:"error,omitempty"`
	TokenUsage *TokenUsage         `json:"tokenUsage,omitempty"`
	Cost       float64             `json:"cost,omitempty"`
	LogProbs   []float64           `json:"logProbs,omitempty"`
	Guardrails *GuardrailsResponse `json:"guardrails,omitempty"`
	Metadata   map[string]any      `json:"metadata,omitempty"`
}

// TraceSpan is one span of an execution trace. EndTime is nil for spans that
// never completed; duration-based checks only consider completed spans.
type TraceSpan struct {
	SpanID    string `json:"spanId"`
	Name      string `json:"name"`
	StartTime int64  `json:"startTime"`
	EndTime   *int64 `json:"endTime,omitempty"`
}

// TraceData is an execution trace attached to the grading context by an
// external trace collaborator. The engine never constructs or persists it.
type TraceData struct {
	TraceID string      `json:"traceId"`
	Spans   []TraceSpan `json:"spans"`
}

// Prompt is one prompt under evaluation.
type Prompt struct {
	// Label identifies the prompt in reports and concurrency keys. Defaults
	// to the raw text when empty.
	Label string `yaml:"label,omitempty" json:"label,omitempty"`
	Text  string `yaml:"text" json:"text"`
	// Config is the prompt's base provider configuration, merged with
	// per-test overrides before each call.
	Config map[string]any `yaml:"config,omitempty" json:"config,omitempty"`
}

// ID returns the prompt's identity for keying purposes.
func (p *Prompt) ID() string {
	if p.Label != "" {
		return p.Label
	}
	return p.Text
}

// TestCase is one declarative test: variables to render into the prompt,
// provider option overrides, and the assertions to grade the output with.
type TestCase struct {
	Description string         `yaml:"description,omitempty" json:"description,omitempty"`
	Vars        map[string]any `yaml:"vars,omitempty" json:"vars,omitempty"`
	Options     map[string]any `yaml:"options,omitempty" json:"options,omitempty"`
	Assertions  []Assertion    `yaml:"assert,omitempty" json:"assert,omitempty"`
	Metadata    map[string]any `yaml:"metadata,omitempty" json:"metadata,omitempty"`
}

// GradingResult is the outcome of applying one assertion (or a composite of
// assertions) to one output.
type GradingResult struct {
	Pass   bool    `json:"pass"`
	Score  float64 `json:"score"`
	Reason string  `json:"reason"`

	NamedScores      map[string]float64 `json:"namedScores,omitempty"`
	ComponentResults []GradingResult    `json:"componentResults,omitempty"`
	Metadata         map[string]any     `json:"metadata,omitempty"`

	// Assertion is the (normalized) assertion that produced this result.
	// Nil on composite results.
	Assertion *Assertion `json:"assertion,omitempty"`
}
