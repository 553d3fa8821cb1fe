package reporting

import (
	"encoding/xml"
	"fmt"
	"os"
	"time"

	"github.com/gavelhq/gavel/internal/models"
	"github.com/gavelhq/gavel/internal/statistics"
)

// JUnit XML schema types

// JUnitTestSuites is the top-level container.
type JUnitTestSuites struct {
	XMLName    xml.Name         `xml:"testsuites"`
	Tests      int              `xml:"tests,attr"`
	Failures   int              `xml:"failures,attr"`
	Errors     int              `xml:"errors,attr"`
	Time       float64          `xml:"time,attr"`
	TestSuites []JUnitTestSuite `xml:"testsuite"`
}

// JUnitTestSuite maps to one provider's slice of the run.
type JUnitTestSuite struct {
	XMLName    xml.Name        `xml:"testsuite"`
	Name       string          `xml:"name,attr"`
	Tests      int             `xml:"tests,attr"`
	Failures   int             `xml:"failures,attr"`
	Errors     int             `xml:"errors,attr"`
	Time       float64         `xml:"time,attr"`
	Timestamp  string          `xml:"timestamp,attr"`
	Properties []JUnitProperty `xml:"properties>property,omitempty"`
	TestCases  []JUnitTestCase `xml:"testcase"`
}

// JUnitTestCase maps to one work item.
type JUnitTestCase struct {
	XMLName   xml.Name      `xml:"testcase"`
	Name      string        `xml:"name,attr"`
	Classname string        `xml:"classname,attr"`
	Time      float64       `xml:"time,attr"`
	Failure   *JUnitFailure `xml:"failure,omitempty"`
	Error     *JUnitError   `xml:"error,omitempty"`
}

// JUnitFailure represents a graded assertion failure.
type JUnitFailure struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
	Body    string `xml:",chardata"`
}

// JUnitError represents a provider or collaborator error.
type JUnitError struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
}

// JUnitProperty is a key-value metadata entry.
type JUnitProperty struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// JUnitSink writes the outcome as JUnit XML, one suite per provider.
type JUnitSink struct {
	Path string
}

var _ Sink = (*JUnitSink)(nil)

// Write implements Sink.
func (s *JUnitSink) Write(outcome *models.EvalOutcome, _ *statistics.Report) error {
	suites := ConvertToJUnit(outcome)

	data, err := xml.MarshalIndent(suites, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JUnit XML: %w", err)
	}
	data = append([]byte(xml.Header), data...)

	if err := os.WriteFile(s.Path, data, 0o644); err != nil {
		return fmt.Errorf("writing JUnit file: %w", err)
	}
	return nil
}

// ConvertToJUnit converts an outcome to the JUnit document model.
func ConvertToJUnit(outcome *models.EvalOutcome) *JUnitTestSuites {
	durationSec := float64(outcome.Digest.DurationMs) / 1000.0

	// Group results by provider, preserving first-seen order.
	var providerOrder []string
	byProvider := map[string][]*models.ItemResult{}
	for i := range outcome.Results {
		r := &outcome.Results[i]
		if r.Status == "" {
			continue
		}
		if _, ok := byProvider[r.ProviderID]; !ok {
			providerOrder = append(providerOrder, r.ProviderID)
		}
		byProvider[r.ProviderID] = append(byProvider[r.ProviderID], r)
	}

	doc := &JUnitTestSuites{
		Tests:    outcome.Digest.TotalItems,
		Failures: outcome.Digest.Failed,
		Errors:   outcome.Digest.Errors,
		Time:     durationSec,
	}

	for _, providerID := range providerOrder {
		results := byProvider[providerID]
		suite := JUnitTestSuite{
			Name:      providerID,
			Tests:     len(results),
			Timestamp: outcome.Timestamp.Format(time.RFC3339),
			Properties: []JUnitProperty{
				{Name: "run_id", Value: outcome.RunID},
				{Name: "score", Value: fmt.Sprintf("%.4f", outcome.Digest.AvgScore)},
			},
		}

		var suiteMs int64
		for _, r := range results {
			suite.TestCases = append(suite.TestCases, convertItem(r))
			suiteMs += r.LatencyMs
			switch r.Status {
			case models.StatusFailed:
				suite.Failures++
			case models.StatusError:
				suite.Errors++
			}
		}
		suite.Time = float64(suiteMs) / 1000.0

		doc.TestSuites = append(doc.TestSuites, suite)
	}

	return doc
}

func convertItem(r *models.ItemResult) JUnitTestCase {
	name := fmt.Sprintf("prompt %d / test %d", r.PromptIndex, r.TestIndex)
	if r.RepeatIndex > 0 {
		name = fmt.Sprintf("%s (repeat %d)", name, r.RepeatIndex)
	}

	tc := JUnitTestCase{
		Name:      name,
		Classname: r.ProviderID,
		Time:      float64(r.LatencyMs) / 1000.0,
	}

	switch r.Status {
	case models.StatusFailed:
		score := 0.0
		reason := ""
		if r.Grade != nil {
			score = r.Grade.Score
			reason = r.Grade.Reason
		}
		tc.Failure = &JUnitFailure{
			Message: fmt.Sprintf("score=%.2f", score),
			Type:    "AssertionFailure",
			Body:    reason,
		}
	case models.StatusError:
		msg := r.ErrorMsg
		if msg == "" {
			msg = "execution error"
		}
		tc.Error = &JUnitError{Message: msg, Type: "ExecutionError"}
	}

	return tc
}
