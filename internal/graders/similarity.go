package graders

import (
	"context"
	"fmt"
	"strings"

	"github.com/gavelhq/gavel/internal/models"
	"github.com/go-viper/mapstructure/v2"
)

const defaultSimilarityThreshold = 0.5

func handleSimilar(_ context.Context, _ *Pipeline, a *models.Assertion, rendered any, gctx *Context) (*models.GradingResult, error) {
	references, err := stringListValue(a.Type, rendered)
	if err != nil {
		return nil, err
	}

	// Best score across references.
	best := 0.0
	for _, ref := range references {
		if s := levenshteinRatio(gctx.Output, ref); s > best {
			best = s
		}
	}

	threshold := a.Threshold.Or(defaultSimilarityThreshold)
	pass := best >= threshold
	relation := "greater than or equal to"
	if !pass {
		relation = "less than"
	}
	return &models.GradingResult{
		Pass:   pass,
		Score:  best,
		Reason: fmt.Sprintf("Similarity %.4f is %s threshold %.4f", best, relation, threshold),
	}, nil
}

// levenshteinRatio returns 1 - editDistance/maxLen, a similarity in [0,1].
func levenshteinRatio(a, b string) float64 {
	if a == b {
		return 1
	}
	ra, rb := []rune(a), []rune(b)
	maxLen := len(ra)
	if len(rb) > maxLen {
		maxLen = len(rb)
	}
	if maxLen == 0 {
		return 1
	}
	return 1 - float64(levenshtein(ra, rb))/float64(maxLen)
}

func levenshtein(a, b []rune) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}

// ngramOptions tunes the n-gram range for overlap metrics.
type ngramOptions struct {
	MinN int `mapstructure:"minN"`
	MaxN int `mapstructure:"maxN"`
}

func decodeNgramOptions(a *models.Assertion) (ngramOptions, error) {
	opts := ngramOptions{MinN: 1, MaxN: 4}
	if a.Options != nil {
		if err := mapstructure.Decode(a.Options, &opts); err != nil {
			return opts, structuralf("%s has invalid options: %v", a.Type, err)
		}
	}
	if opts.MinN < 1 || opts.MaxN < opts.MinN {
		return opts, structuralf("%s requires 1 <= minN <= maxN, got [%d,%d]", a.Type, opts.MinN, opts.MaxN)
	}
	return opts, nil
}

func handleBLEU(_ context.Context, _ *Pipeline, a *models.Assertion, rendered any, gctx *Context) (*models.GradingResult, error) {
	return gradeNgramOverlap(a, rendered, gctx, bleuScore)
}

func handleGLEU(_ context.Context, _ *Pipeline, a *models.Assertion, rendered any, gctx *Context) (*models.GradingResult, error) {
	return gradeNgramOverlap(a, rendered, gctx, gleuScore)
}

func gradeNgramOverlap(a *models.Assertion, rendered any, gctx *Context, scoreFn func(candidate, reference []string, minN, maxN int) float64) (*models.GradingResult, error) {
	references, err := stringListValue(a.Type, rendered)
	if err != nil {
		return nil, err
	}
	opts, err := decodeNgramOptions(a)
	if err != nil {
		return nil, err
	}

	candidate := tokenize(gctx.Output)

	// Maximum score across references.
	best := 0.0
	for _, ref := range references {
		if s := scoreFn(candidate, tokenize(ref), opts.MinN, opts.MaxN); s > best {
			best = s
		}
	}

	threshold := a.Threshold.Or(defaultSimilarityThreshold)
	pass := best >= threshold
	relation := "greater than or equal to"
	if !pass {
		relation = "less than"
	}
	return &models.GradingResult{
		Pass:   pass,
		Score:  best,
		Reason: fmt.Sprintf("%s score %.4f is %s threshold %.4f", strings.ToUpper(a.Type), best, relation, threshold),
	}, nil
}

func tokenize(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

func ngramCounts(tokens []string, n int) map[string]int {
	counts := make(map[string]int)
	for i := 0; i+n <= len(tokens); i++ {
		counts[strings.Join(tokens[i:i+n], " ")]++
	}
	return counts
}

// overlapCounts sums matched and total n-gram counts across the whole
// [minN,maxN] range before any ratio is taken. Ratios are never averaged
// per n.
func overlapCounts(candidate, reference []string, minN, maxN int) (matched, totalCandidate, totalReference int) {
	for n := minN; n <= maxN; n++ {
		candCounts := ngramCounts(candidate, n)
		refCounts := ngramCounts(reference, n)
		for gram, c := range candCounts {
			totalCandidate += c
			if r, ok := refCounts[gram]; ok {
				if c < r {
					matched += c
				} else {
					matched += r
				}
			}
		}
		for _, r := range refCounts {
			totalReference += r
		}
	}
	return matched, totalCandidate, totalReference
}

// bleuScore is clipped n-gram precision over the summed counts.
func bleuScore(candidate, reference []string, minN, maxN int) float64 {
	matched, totalCand, _ := overlapCounts(candidate, reference, minN, maxN)
	if totalCand == 0 {
		return 0
	}
	return float64(matched) / float64(totalCand)
}

// gleuScore divides by the larger of candidate and reference totals, which
// penalizes both spurious and missing n-grams.
func gleuScore(candidate, reference []string, minN, maxN int) float64 {
	matched, totalCand, totalRef := overlapCounts(candidate, reference, minN, maxN)
	denom := totalCand
	if totalRef > denom {
		denom = totalRef
	}
	if denom == 0 {
		return 0
	}
	return float64(matched) / float64(denom)
}
