package explore

import (
	"math"
	"testing"
)

func TestConvergenceTracker(t *testing.T) {
	tracker := NewConvergenceTracker(ConvergenceConfig{Patience: 2, Threshold: 0.1})

	steps := []struct {
		cost float64
		want bool
	}{
		{0.4, false},  // first round
		{0.2, false},  // 50% better
		{0.19, false}, // stale 1
		{0.1, false},  // better than 0.2 by 50%, resets
		{0.099, false},
		{0.098, true}, // stale 2
	}
	for i, s := range steps {
		if got := tracker.Update(s.cost); got != s.want {
			t.Errorf("Step %d (cost %.3f): expected converged=%v, got %v", i, s.cost, s.want, got)
		}
	}
	if tracker.BestCost() != 0.098 {
		t.Errorf("Expected best cost 0.098, got %f", tracker.BestCost())
	}
	if len(tracker.History()) != len(steps) {
		t.Errorf("Expected %d history entries, got %d", len(steps), len(tracker.History()))
	}
}

func TestConvergenceTracker_ZeroCost(t *testing.T) {
	tracker := NewConvergenceTracker(DefaultConvergenceConfig())
	if !tracker.Update(0) {
		t.Error("A zero cost should converge immediately")
	}
}

func TestZoom_ShrinksRegion(t *testing.T) {
	region := Region{MinX: -2, MaxX: 0.5, MinY: -1.25, MaxY: 1.25}
	grid := &gridOptimizer{n: 4}

	results, err := Zoom(region, Options{
		ProbeSize:        8,
		TargetIterations: 60,
		LimbCount:        2,
		Optimizer:        grid,
	}, ZoomOptions{Rounds: 3, Factor: 4})
	if err != nil {
		t.Fatalf("Zoom failed: %v", err)
	}
	if len(results) == 0 || len(results) > 3 {
		t.Fatalf("Expected 1 to 3 rounds, got %d", len(results))
	}
	if grid.calls != 16*len(results) {
		t.Errorf("Expected %d evaluations, got %d", 16*len(results), grid.calls)
	}

	for i := 1; i < len(results); i++ {
		prev, _ := results[i-1].Request.Delta.Rat().Float64()
		cur, _ := results[i].Request.Delta.Rat().Float64()
		if ratio := prev / cur; math.Abs(ratio-4) > 0.01 {
			t.Errorf("Round %d: expected delta to shrink by 4, got ratio %f", i, ratio)
		}

		// Each round searches around the previous centre.
		px, _ := results[i-1].CentreX.Float64()
		cx, _ := results[i].CentreX.Float64()
		if hw := (region.MaxX - region.MinX) / 2; math.Abs(cx-px) > hw {
			t.Errorf("Round %d: centre %f strayed from %f", i, cx, px)
		}
	}
}
