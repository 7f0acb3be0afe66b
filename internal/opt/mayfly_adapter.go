package opt

import (
	"log/slog"
	"math/rand"

	"github.com/cwbudde/mayfly"
)

// MayflyAdapter wraps the external Mayfly library to conform to our Optimizer interface
type MayflyAdapter struct {
	maxIters int
	popSize  int
	seed     int64
}

// NewMayfly creates a new Mayfly optimizer adapter. The library needs a
// population of at least 20.
func NewMayfly(maxIters, popSize int, seed int64) Optimizer {
	if popSize < 20 {
		popSize = 20
	}
	return &MayflyAdapter{
		maxIters: maxIters,
		popSize:  popSize,
		seed:     seed,
	}
}

// Run executes the Mayfly optimization using the external library. The library only
// takes scalar bounds, so the search runs in the unit cube and every position is
// mapped onto [lower[i], upper[i]] before it is evaluated.
func (m *MayflyAdapter) Run(eval func([]float64) float64, lower, upper []float64, dim int) ([]float64, float64) {
	scaled := make([]float64, dim)
	toBox := func(unit []float64) []float64 {
		for i := 0; i < dim; i++ {
			u := unit[i]
			if u < 0 {
				u = 0
			} else if u > 1 {
				u = 1
			}
			scaled[i] = lower[i] + u*(upper[i]-lower[i])
		}
		return scaled
	}

	config := mayfly.NewDefaultConfig()
	config.ObjectiveFunc = func(unit []float64) float64 { return eval(toBox(unit)) }
	config.ProblemSize = dim
	config.MaxIterations = m.maxIters
	config.NPop = m.popSize
	config.LowerBound = 0
	config.UpperBound = 1
	config.Rand = rand.New(rand.NewSource(m.seed))

	result, err := mayfly.Optimize(config)
	if err != nil {
		// Fall back to the centre of the box
		slog.Warn("Mayfly optimization failed", "error", err)
		centre := make([]float64, dim)
		for i := range centre {
			centre[i] = (lower[i] + upper[i]) / 2
		}
		return centre, eval(centre)
	}

	best := append([]float64(nil), toBox(result.GlobalBest.Position)...)
	return best, result.GlobalBest.Cost
}
