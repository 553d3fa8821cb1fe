package graders

import (
	"context"
	"testing"

	"github.com/gavelhq/gavel/internal/models"
	"github.com/stretchr/testify/require"
)

func TestApplyTransform(t *testing.T) {
	tests := []struct {
		name      string
		transform string
		output    string
		want      string
	}{
		{"trim", "trim", "  padded  \n", "padded"},
		{"lowercase", "lowercase", "YES Indeed", "yes indeed"},
		{"uppercase", "uppercase", "quiet", "QUIET"},
		{"first line", "first-line", "Answer: 42\nExplanation follows.", "Answer: 42"},
		{"first line of single line", "first-line", "only line", "only line"},
		{"last line", "last-line", "Reasoning...\nFinal answer: yes\n", "Final answer: yes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := applyTransform(tt.transform, tt.output)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}

	t.Run("unknown transform is structural", func(t *testing.T) {
		_, err := applyTransform("reverse", "abc")
		var serr *StructuralError
		require.ErrorAs(t, err, &serr)
		require.Contains(t, err.Error(), `unknown transform "reverse"`)
	})
}

func TestGradeOne_AppliesTransform(t *testing.T) {
	t.Run("lowercase before matching", func(t *testing.T) {
		a := models.Assertion{Type: "contains", Value: "yes", Transform: "lowercase"}
		r := gradeString(t, a, "YES, absolutely")
		require.True(t, r.Pass)
	})

	t.Run("first-line scopes equals to the answer line", func(t *testing.T) {
		a := models.Assertion{Type: "equals", Value: "42", Transform: "first-line"}
		r := gradeString(t, a, "42\nbecause six times seven")
		require.True(t, r.Pass)
	})

	t.Run("transform is scoped to one assertion", func(t *testing.T) {
		p := NewPipeline(nil)
		gctx := &Context{Output: "MiXeD case"}
		list := []models.Assertion{
			{Type: "equals", Value: "mixed case", Transform: "lowercase"},
			{Type: "contains", Value: "MiXeD"},
		}

		composite, deferred := p.GradeAll(context.Background(), list, gctx)
		require.Empty(t, deferred)
		require.True(t, composite.Pass, composite.Reason)
		require.Equal(t, "MiXeD case", gctx.Output, "caller's context is never mutated")
	})

	t.Run("unknown transform fails the assertion structurally", func(t *testing.T) {
		p := NewPipeline(nil)
		a := models.Assertion{Type: "contains", Value: "x", Transform: "rot13"}
		_, err := p.GradeOne(context.Background(), &a, &Context{Output: "x"})
		var serr *StructuralError
		require.ErrorAs(t, err, &serr)
	})
}
