package explore

import (
	"fmt"
	"log/slog"
	"math/big"

	"github.com/cwbudde/msetgen/internal/opt"
)

// ZoomOptions configure Zoom.
type ZoomOptions struct {
	// Rounds caps the number of searches. Default 6.
	Rounds int

	// Factor shrinks the region around the best centre after each round. Default 4.
	Factor float64

	Convergence ConvergenceConfig
}

// Zoom repeats FindBoundary, shrinking the region around each round's best centre,
// until the cost stops improving or Rounds is reached. It returns every round's
// result, the last being the deepest.
func Zoom(region Region, o Options, z ZoomOptions) ([]*Result, error) {
	if z.Rounds <= 0 {
		z.Rounds = 6
	}
	if z.Factor <= 1 {
		z.Factor = 4
	}
	if z.Convergence.Patience <= 0 {
		z.Convergence = DefaultConvergenceConfig()
	}

	tracker := NewConvergenceTracker(z.Convergence)
	var results []*Result
	delta := o.Delta
	for round := 0; round < z.Rounds; round++ {
		ro := o
		if o.Optimizer == nil {
			iters := o.Iterations
			if iters <= 0 {
				iters = 30
			}
			ro.Optimizer = opt.NewMayfly(iters, 20, o.Seed+int64(round))
		}
		ro.Delta = delta

		res, err := FindBoundary(region, ro)
		if err != nil {
			return results, fmt.Errorf("zoom round %d: %w", round, err)
		}
		results = append(results, res)
		slog.Info("Zoom round finished", "round", round, "cost", res.Cost, "width", region.MaxX-region.MinX)

		if tracker.Update(res.Cost) {
			break
		}

		cx, _ := res.CentreX.Float64()
		cy, _ := res.CentreY.Float64()
		hw := (region.MaxX - region.MinX) / (2 * z.Factor)
		hh := (region.MaxY - region.MinY) / (2 * z.Factor)
		region = Region{MinX: cx - hw, MaxX: cx + hw, MinY: cy - hh, MaxY: cy + hh}
		if delta != nil {
			delta = new(big.Rat).Quo(delta, new(big.Rat).SetFloat64(z.Factor))
		}
	}
	return results, nil
}
