package statistics

import (
	"math"
	"math/rand"
	"sort"
)

// ConfidenceInterval is a percentile-method bootstrap interval over a group's
// scores.
type ConfidenceInterval struct {
	Lower           float64 `json:"lower"`
	Upper           float64 `json:"upper"`
	Mean            float64 `json:"mean"`
	ConfidenceLevel float64 `json:"confidence_level"`
	Resamples       int     `json:"resamples"`
}

// DefaultResamples is the number of bootstrap resamples. Repeat groups are
// small, so resampling dominates the cost and 10k keeps the interval stable
// to about two decimal places.
const DefaultResamples = 10000

// BootstrapCI resamples scores with replacement and returns the percentile
// confidence interval of the resampled means. confidenceLevel is in (0,1),
// e.g. 0.95. Fewer than two scores yields a degenerate interval at the mean.
func BootstrapCI(scores []float64, confidenceLevel float64) ConfidenceInterval {
	return BootstrapCISeeded(scores, confidenceLevel, -1)
}

// BootstrapCISeeded is BootstrapCI with a fixed seed for reproducible
// intervals. A negative seed uses a non-deterministic source.
func BootstrapCISeeded(scores []float64, confidenceLevel float64, seed int64) ConfidenceInterval {
	n := len(scores)
	if n < 2 {
		m := mean(scores)
		return ConfidenceInterval{
			Lower:           m,
			Upper:           m,
			Mean:            m,
			ConfidenceLevel: confidenceLevel,
		}
	}

	if seed < 0 {
		seed = rand.Int63()
	}
	rng := rand.New(rand.NewSource(seed))

	resampleMeans := make([]float64, DefaultResamples)
	sample := make([]float64, n)
	for i := range resampleMeans {
		for j := range sample {
			sample[j] = scores[rng.Intn(n)]
		}
		resampleMeans[i] = mean(sample)
	}
	sort.Float64s(resampleMeans)

	alpha := 1 - confidenceLevel
	loIdx := int(math.Floor(alpha / 2 * DefaultResamples))
	hiIdx := int(math.Floor((1 - alpha/2) * DefaultResamples))
	if hiIdx >= DefaultResamples {
		hiIdx = DefaultResamples - 1
	}

	return ConfidenceInterval{
		Lower:           resampleMeans[loIdx],
		Upper:           resampleMeans[hiIdx],
		Mean:            mean(scores),
		ConfidenceLevel: confidenceLevel,
		Resamples:       DefaultResamples,
	}
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
