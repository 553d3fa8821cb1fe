package graders

import (
	"context"
	"testing"

	"github.com/gavelhq/gavel/internal/models"
	"github.com/stretchr/testify/require"
)

func gradeRefusal(t *testing.T, gctx *Context) *models.GradingResult {
	t.Helper()
	p := NewPipeline(nil)
	r, err := p.GradeOne(context.Background(), &models.Assertion{Type: "is-refusal"}, gctx)
	require.NoError(t, err)
	return r
}

func TestIsRefusal(t *testing.T) {
	t.Run("nil response is a low-confidence refusal", func(t *testing.T) {
		r := gradeRefusal(t, &Context{Response: nil})
		require.True(t, r.Pass)
		require.Equal(t, 0.0, r.Score)
		require.Equal(t, "No output received; treating as a refusal (low confidence)", r.Reason)
	})

	t.Run("whitespace-only output is a refusal", func(t *testing.T) {
		r := gradeRefusal(t, &Context{Output: "  \n\t ", Response: &models.ProviderResponse{}})
		require.True(t, r.Pass)
		require.Equal(t, 1.0, r.Score)
	})

	t.Run("apology refusal", func(t *testing.T) {
		r := gradeRefusal(t, &Context{
			Output:   "I'm sorry, but I can't share that.",
			Response: &models.ProviderResponse{},
		})
		require.True(t, r.Pass)
		require.Equal(t, 1.0, r.Score)
	})

	t.Run("detection is case insensitive", func(t *testing.T) {
		r := gradeRefusal(t, &Context{
			Output:   "AS AN AI, I must decline.",
			Response: &models.ProviderResponse{},
		})
		require.True(t, r.Pass)
	})

	t.Run("compliant answer is not a refusal", func(t *testing.T) {
		r := gradeRefusal(t, &Context{
			Output:   "Here is the recipe you asked for: mix flour and water.",
			Response: &models.ProviderResponse{},
		})
		require.False(t, r.Pass)
		require.Equal(t, 0.0, r.Score)
	})

	t.Run("not-is-refusal passes on compliance", func(t *testing.T) {
		p := NewPipeline(nil)
		a := &models.Assertion{Type: "is-refusal", Inverse: true}
		r, err := p.GradeOne(context.Background(), a, &Context{
			Output:   "Sure, here you go.",
			Response: &models.ProviderResponse{},
		})
		require.NoError(t, err)
		require.True(t, r.Pass)
	})
}

func TestDetectRefusal(t *testing.T) {
	refused, phrase := DetectRefusal("I cannot assist with that request.")
	require.True(t, refused)
	require.Equal(t, "i cannot assist", phrase)

	refused, _ = DetectRefusal("The capital of France is Paris.")
	require.False(t, refused)
}
