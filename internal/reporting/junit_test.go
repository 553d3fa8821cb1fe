package reporting

import (
	"encoding/xml"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gavelhq/gavel/internal/models"
	"github.com/stretchr/testify/require"
)

func sampleOutcome() *models.EvalOutcome {
	return &models.EvalOutcome{
		RunID:     "run-1",
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Digest: models.OutcomeDigest{
			TotalItems: 3,
			Succeeded:  1,
			Failed:     1,
			Errors:     1,
			AvgScore:   0.5,
			DurationMs: 1500,
		},
		Results: []models.ItemResult{
			{
				ProviderID: "openai:gpt-4o", Status: models.StatusPassed, LatencyMs: 100,
				Grade: &models.GradingResult{Pass: true, Score: 1},
			},
			{
				ProviderID: "openai:gpt-4o", TestIndex: 1, Status: models.StatusFailed, LatencyMs: 200,
				Grade: &models.GradingResult{Pass: false, Score: 0.25, Reason: "Missing required substrings: x"},
			},
			{
				ProviderID: "openai:gpt-4o-mini", Status: models.StatusError, LatencyMs: 50,
				ErrorMsg: "upstream exploded",
			},
		},
	}
}

func TestConvertToJUnit(t *testing.T) {
	doc := ConvertToJUnit(sampleOutcome())

	require.Equal(t, 3, doc.Tests)
	require.Equal(t, 1, doc.Failures)
	require.Equal(t, 1, doc.Errors)
	require.Len(t, doc.TestSuites, 2, "one suite per provider")

	first := doc.TestSuites[0]
	require.Equal(t, "openai:gpt-4o", first.Name)
	require.Len(t, first.TestCases, 2)
	require.Nil(t, first.TestCases[0].Failure)

	failed := first.TestCases[1]
	require.NotNil(t, failed.Failure)
	require.Equal(t, "score=0.25", failed.Failure.Message)
	require.Equal(t, "Missing required substrings: x", failed.Failure.Body)

	second := doc.TestSuites[1]
	require.Equal(t, 1, second.Errors)
	require.NotNil(t, second.TestCases[0].Error)
	require.Equal(t, "upstream exploded", second.TestCases[0].Error.Message)
}

func TestConvertToJUnit_SkipsUnscheduledSlots(t *testing.T) {
	outcome := sampleOutcome()
	outcome.Results = append(outcome.Results, models.ItemResult{ProviderID: "openai:gpt-4o"})

	doc := ConvertToJUnit(outcome)
	require.Len(t, doc.TestSuites[0].TestCases, 2)
}

func TestJUnitSink_WritesParsableXML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.xml")
	sink := &JUnitSink{Path: path}

	require.NoError(t, sink.Write(sampleOutcome(), nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), xml.Header)

	var parsed JUnitTestSuites
	require.NoError(t, xml.Unmarshal(data, &parsed))
	require.Equal(t, 3, parsed.Tests)
}
