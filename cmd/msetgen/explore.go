package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/cwbudde/msetgen/internal/explore"
	"github.com/spf13/cobra"
)

var (
	exploreRegion  explore.Region
	exploreOpts    explore.Options
	explorePreview string
	exploreZoom    explore.ZoomOptions
)

var exploreCmd = &cobra.Command{
	Use:   "explore",
	Short: "Search a region for a tile on the set boundary",
	Long: `Runs the mayfly optimizer over tile centres in a region, scoring each by how far
its probe's escaped fraction is from one half. With --zoom the search repeats in a
shrinking region around each best centre until the cost stops improving. The best
centre is printed with the generate flags that reproduce it.`,
	RunE: runExplore,
}

func init() {
	f := exploreCmd.Flags()
	f.Float64Var(&exploreRegion.MinX, "min-x", -2, "Region left edge")
	f.Float64Var(&exploreRegion.MaxX, "max-x", 0.5, "Region right edge")
	f.Float64Var(&exploreRegion.MinY, "min-y", -1.25, "Region bottom edge")
	f.Float64Var(&exploreRegion.MaxY, "max-y", 1.25, "Region top edge")
	f.IntVar(&exploreOpts.ProbeSize, "probe", 16, "Probe width and height in samples")
	f.Uint32Var(&exploreOpts.TargetIterations, "target", 200, "Probe target iteration count")
	f.IntVar(&exploreOpts.LimbCount, "limbs", 2, "Limbs per fixed-point value")
	f.StringVar(&exploreOpts.Backend, "backend", "auto", "Lane backend (auto, generic, swar, avx2)")
	f.IntVar(&exploreOpts.Iterations, "iters", 30, "Optimizer iterations")
	f.Int64Var(&exploreOpts.Seed, "seed", 42, "Random seed")
	f.IntVar(&exploreZoom.Rounds, "zoom", 1, "Zoom rounds (1 = single search)")
	f.Float64Var(&exploreZoom.Factor, "zoom-factor", 4, "Region shrink factor per zoom round")
	f.StringVar(&explorePreview, "preview", "", "Write the winning probe as a preview (.png, .bmp, .tiff)")

	rootCmd.AddCommand(exploreCmd)
}

func runExplore(cmd *cobra.Command, args []string) error {
	slog.Info("Starting boundary search", "region", exploreRegion, "iters", exploreOpts.Iterations)

	start := time.Now()
	var rounds []*explore.Result
	var err error
	if exploreZoom.Rounds > 1 {
		rounds, err = explore.Zoom(exploreRegion, exploreOpts, exploreZoom)
	} else {
		var res *explore.Result
		res, err = explore.FindBoundary(exploreRegion, exploreOpts)
		rounds = []*explore.Result{res}
	}
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	w := cmd.OutOrStdout()
	evaluations := 0
	for i, r := range rounds {
		evaluations += r.Evaluations
		if len(rounds) > 1 {
			fmt.Fprintf(w, "Round %d: %s, %s (fraction %.3f, delta %s)\n", i,
				r.CentreX.FloatString(12), r.CentreY.FloatString(12), r.EscapedFraction, r.Request.Delta.Rat().FloatString(12))
		}
	}
	res := rounds[len(rounds)-1]
	slog.Info("Boundary search complete", "elapsed", elapsed, "rounds", len(rounds), "evaluations", evaluations, "cost", res.Cost)

	req := res.Request
	fmt.Fprintf(w, "Centre: %s, %s\n", res.CentreX.FloatString(12), res.CentreY.FloatString(12))
	fmt.Fprintf(w, "Escaped fraction: %.3f (cost %.4f)\n", res.EscapedFraction, res.Cost)
	printer.Fprintf(w, "Evaluations: %d in %v\n", evaluations, elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "Reproduce with: msetgen generate --x %s --y %s --delta %s --width %d --height %d --target %d --limbs %d\n",
		req.PositionX.Rat().RatString(), req.PositionY.Rat().RatString(), req.Delta.Rat().RatString(),
		req.Width, req.Height, req.TargetIterations, req.LimbCount)

	if explorePreview != "" {
		if err := writePreview(explorePreview, req, res.Buffers); err != nil {
			return err
		}
		fmt.Fprintf(w, "Wrote %s\n", explorePreview)
	}
	return nil
}
