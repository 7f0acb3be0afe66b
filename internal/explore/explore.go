// Package explore searches the plane for detailed tiles.
package explore

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/big"

	"github.com/cwbudde/msetgen/internal/engine"
	"github.com/cwbudde/msetgen/internal/fixed"
	"github.com/cwbudde/msetgen/internal/opt"
)

// Region is the rectangle tile centres are drawn from.
type Region struct {
	MinX float64 `json:"minX"`
	MaxX float64 `json:"maxX"`
	MinY float64 `json:"minY"`
	MaxY float64 `json:"maxY"`
}

// Options configure FindBoundary. Zero values take the defaults below.
type Options struct {
	// ProbeSize is the width and height of the probe section.
	ProbeSize int

	// Delta is the sample spacing of the probe. Default: a probe spans a sixteenth of
	// the region's width.
	Delta *big.Rat

	TargetIterations uint32
	LimbCount        int
	Backend          string

	// Optimizer drives the search; default is Mayfly with Iterations and Seed.
	Optimizer  opt.Optimizer
	Iterations int
	Seed       int64
}

func (o *Options) applyDefaults(r Region) {
	if o.ProbeSize <= 0 {
		o.ProbeSize = 16
	}
	if o.Delta == nil {
		o.Delta = new(big.Rat).SetFloat64((r.MaxX - r.MinX) / float64(16*o.ProbeSize))
	}
	if o.TargetIterations == 0 {
		o.TargetIterations = 200
	}
	if o.LimbCount <= 0 {
		o.LimbCount = 2
	}
	if o.Iterations <= 0 {
		o.Iterations = 30
	}
	if o.Optimizer == nil {
		o.Optimizer = opt.NewMayfly(o.Iterations, 20, o.Seed)
	}
}

// Result is the best tile found.
type Result struct {
	CentreX         *big.Rat
	CentreY         *big.Rat
	EscapedFraction float64
	Cost            float64
	Evaluations     int

	// Request reproduces the winning probe and Buffers holds its output.
	Request *engine.Request
	Buffers *engine.Buffers
}

// Prober generates probe sections around candidate centres.
type Prober struct {
	gen    engine.Generator
	format fixed.Format
	size   int
	delta  *big.Rat
	step   fixed.RValue
	target uint32
	out    *engine.Buffers
}

// NewProber builds a breadth-first generator for size x size probes.
func NewProber(size int, delta *big.Rat, target uint32, limbs int, backend string) (*Prober, error) {
	if delta == nil || delta.Sign() <= 0 {
		return nil, errors.New("probe delta must be positive")
	}
	f, err := fixed.NewFormat(fixed.DefaultBitsBeforeBP, limbs)
	if err != nil {
		return nil, err
	}
	step := fixed.RValueFromRat(delta, f.FractionalBits(), 0)
	if step.Value.Sign() <= 0 {
		return nil, fmt.Errorf("probe delta %s is zero at %d fractional bits", delta.RatString(), f.FractionalBits())
	}
	gen, err := engine.New(engine.BreadthFirst, f, size, engine.WithBackend(backend))
	if err != nil {
		return nil, err
	}
	return &Prober{
		gen:    gen,
		format: f,
		size:   size,
		delta:  new(big.Rat).Set(delta),
		step:   step,
		target: target,
		out:    engine.NewBuffers(size, size),
	}, nil
}

// Request returns the probe request centred on (cx, cy).
func (p *Prober) Request(cx, cy *big.Rat) *engine.Request {
	half := new(big.Rat).Mul(p.delta, big.NewRat(int64(p.size), 2))
	bits := p.format.FractionalBits()
	return &engine.Request{
		BlockPosition:    engine.NewBlockPosition(0, 0),
		PositionX:        fixed.RValueFromRat(new(big.Rat).Sub(cx, half), bits, 0),
		PositionY:        fixed.RValueFromRat(new(big.Rat).Sub(cy, half), bits, 0),
		Delta:            p.step,
		Width:            p.size,
		Height:           p.size,
		TargetIterations: p.target,
		Threshold:        4,
		LimbCount:        p.format.LimbCount,
	}
}

// Generate runs the probe at (cx, cy). The returned buffers are reused by the next
// probe.
func (p *Prober) Generate(cx, cy *big.Rat) (*engine.Buffers, error) {
	p.out.Reset()
	if _, err := p.gen.GenerateSection(p.Request(cx, cy), p.out); err != nil {
		return nil, err
	}
	return p.out, nil
}

// EscapedFraction generates the probe at (cx, cy) and returns the share of escaped
// points.
func (p *Prober) EscapedFraction(cx, cy *big.Rat) (float64, error) {
	out, err := p.Generate(cx, cy)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range out.HasEscaped {
		if e {
			n++
		}
	}
	return float64(n) / float64(len(out.HasEscaped)), nil
}

// FindBoundary searches region for a tile centre whose probe is half escaped, the
// signature of a tile straddling the set's boundary.
func FindBoundary(region Region, o Options) (*Result, error) {
	if !(region.MaxX > region.MinX) || !(region.MaxY > region.MinY) {
		return nil, fmt.Errorf("empty region %+v", region)
	}
	o.applyDefaults(region)

	prober, err := NewProber(o.ProbeSize, o.Delta, o.TargetIterations, o.LimbCount, o.Backend)
	if err != nil {
		return nil, fmt.Errorf("failed to create prober: %w", err)
	}

	var evalErr error
	evaluations := 0
	cost := func(x []float64) float64 {
		evaluations++
		if evalErr != nil {
			return math.Inf(1)
		}
		frac, err := prober.EscapedFraction(new(big.Rat).SetFloat64(x[0]), new(big.Rat).SetFloat64(x[1]))
		if err != nil {
			evalErr = err
			return math.Inf(1)
		}
		return math.Abs(frac - 0.5)
	}

	lower := []float64{region.MinX, region.MinY}
	upper := []float64{region.MaxX, region.MaxY}
	best, bestCost := o.Optimizer.Run(cost, lower, upper, 2)
	if evalErr != nil {
		return nil, fmt.Errorf("probe failed: %w", evalErr)
	}

	cx, cy := new(big.Rat).SetFloat64(best[0]), new(big.Rat).SetFloat64(best[1])
	frac, err := prober.EscapedFraction(cx, cy)
	if err != nil {
		return nil, fmt.Errorf("probe failed: %w", err)
	}

	slog.Debug("Boundary search finished", "evaluations", evaluations, "cost", bestCost, "x", best[0], "y", best[1])
	return &Result{
		CentreX:         cx,
		CentreY:         cy,
		EscapedFraction: frac,
		Cost:            bestCost,
		Evaluations:     evaluations,
		Request:         prober.Request(cx, cy),
		Buffers:         prober.out,
	}, nil
}
