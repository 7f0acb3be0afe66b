package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cwbudde/msetgen/internal/fixed"
	"github.com/cwbudde/msetgen/internal/kernel"
	"github.com/cwbudde/msetgen/internal/lanes"
)

// Generator fills the output buffers of one tile. Implementations keep scratch sized
// for one (limb count, width) pair and are not safe for concurrent use.
type Generator interface {
	GenerateSection(req *Request, out *Buffers) (*Response, error)
	Format() fixed.Format
	Width() int
}

// Variant names a generator implementation.
type Variant string

const (
	BreadthFirst Variant = "breadth-first"
	DepthFirst   Variant = "depth-first"
)

// ErrResumeNotSupported is returned when z state is handed to a generator that
// cannot resume from it.
var ErrResumeNotSupported = errors.New("generator cannot resume from z values")

// RowObserver is told, after every outer step of a row, how many lane groups are
// still in play. The step is the iteration for breadth-first generation and the index
// of the finished group for depth-first generation.
type RowObserver func(row, iteration, inPlay int)

type options struct {
	backend  string
	skip     SkipPolicy
	cache    *SamplePointCache
	observer RowObserver
}

// Option configures a generator.
type Option func(*options)

// WithBackend selects a lane backend by name.
func WithBackend(name string) Option {
	return func(o *options) { o.backend = name }
}

// WithSkipPolicy sets the tile skip policy.
func WithSkipPolicy(p SkipPolicy) Option {
	return func(o *options) { o.skip = p }
}

// WithSamplePointCache shares an offset cache between generators.
func WithSamplePointCache(c *SamplePointCache) Option {
	return func(o *options) { o.cache = c }
}

// WithRowObserver installs a progress hook.
func WithRowObserver(fn RowObserver) Option {
	return func(o *options) { o.observer = fn }
}

// New returns a generator of the given variant.
func New(variant Variant, f fixed.Format, width int, opts ...Option) (Generator, error) {
	switch variant {
	case BreadthFirst, "":
		return NewBreadthFirstGenerator(f, width, opts...)
	case DepthFirst:
		return NewDepthFirstGenerator(f, width, opts...)
	default:
		return nil, fmt.Errorf("unknown generator variant: %q", variant)
	}
}

// base holds what both generators share: kernels, iterator, row state and the
// coordinate pipeline.
type base struct {
	format fixed.Format
	width  int
	opts   options

	vm         *kernel.VecMath
	scalar     *fixed.ScalarMath
	it         *Iterator
	state      *RowState
	velocities *velocityBatch
}

func newBase(f fixed.Format, width int, opts []Option) (*base, error) {
	o := options{skip: SkipNone}
	for _, opt := range opts {
		opt(&o)
	}
	if o.cache == nil {
		o.cache = NewSamplePointCache()
	}
	if width < 1 {
		return nil, fmt.Errorf("width must be positive, got %d", width)
	}

	vm, err := kernel.New(f, width, 0, o.backend)
	if err != nil {
		return nil, fmt.Errorf("failed to create vector kernel: %w", err)
	}
	scalar, err := fixed.NewScalarMath(f, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to create scalar kernel: %w", err)
	}

	return &base{
		format:     f,
		width:      width,
		opts:       o,
		vm:         vm,
		scalar:     scalar,
		it:         NewIterator(vm),
		state:      NewRowState(width),
		velocities: newVelocityBatch(vm.VectorCount()*lanes.Width, f.LimbCount),
	}, nil
}

func (b *base) Format() fixed.Format { return b.format }
func (b *base) Width() int           { return b.width }

// coords is a request translated into the generator's format.
type coords struct {
	cx, cy, delta fixed.Value
	xs, ys        []fixed.Value
}

func (b *base) coordinates(req *Request) (*coords, error) {
	cx, err := fixed.FromRValue(req.PositionX, b.format)
	if err != nil {
		return nil, fmt.Errorf("failed to convert x position: %w", err)
	}
	cy, err := fixed.FromRValue(req.PositionY, b.format)
	if err != nil {
		return nil, fmt.Errorf("failed to convert y position: %w", err)
	}
	delta, err := fixed.FromRValue(req.Delta, b.format)
	if err != nil {
		return nil, fmt.Errorf("failed to convert delta: %w", err)
	}
	return &coords{cx: cx, cy: cy, delta: delta}, nil
}

func (b *base) samplePoints(req *Request, c *coords) error {
	offX, err := b.opts.cache.Offsets(c.delta, req.Width, b.scalar)
	if err != nil {
		return err
	}
	offY, err := b.opts.cache.Offsets(c.delta, req.Height, b.scalar)
	if err != nil {
		return err
	}
	if c.xs, err = BuildSamplePoints(c.cx, offX, b.scalar); err != nil {
		return err
	}
	if c.ys, err = BuildSamplePoints(c.cy, offY, b.scalar); err != nil {
		return err
	}

	b.it.Crs.Clear()
	for i, x := range c.xs {
		if err := b.it.Crs.SetValue(i, x); err != nil {
			return fmt.Errorf("failed to load sample point %d: %w", i, err)
		}
	}
	return nil
}

// prepare validates req, converts its coordinates and applies the skip policy. A
// nil coords with a nil error means the section was skipped.
func (b *base) prepare(req *Request, out *Buffers) (*coords, error) {
	if err := req.Validate(b.format, b.width); err != nil {
		return nil, err
	}
	if err := out.check(req.Width * req.Height); err != nil {
		return nil, err
	}
	if err := b.vm.SetThreshold(req.Threshold); err != nil {
		return nil, fmt.Errorf("invalid threshold: %w", err)
	}

	c, err := b.coordinates(req)
	if err != nil {
		return nil, err
	}
	if b.opts.skip.ShouldSkip(req.BlockPosition, c.cx, c.cy) {
		slog.Debug("Skipping section", "block", req.BlockPosition.String(), "policy", b.opts.skip.String())
		return nil, nil
	}

	if err := b.samplePoints(req, c); err != nil {
		return nil, err
	}

	b.vm.Counts.Reset()
	b.scalar.Counts.Reset()
	b.state.UsedCalcs, b.state.UnusedCalcs = 0, 0
	return c, nil
}

func (b *base) skipped(start time.Time) *Response {
	return &Response{
		Skipped:       true,
		RowHasEscaped: []bool{false},
		Backend:       b.vm.Backend(),
		Elapsed:       time.Since(start),
	}
}

func (b *base) finish(resp *Response, rowHasEscaped []bool, start time.Time) *Response {
	all := true
	for _, e := range rowHasEscaped {
		all = all && e
	}

	counts := b.vm.Counts
	counts.Add(b.scalar.Counts)
	counts.UsedCalcs = b.state.UsedCalcs
	counts.UnusedCalcs = b.state.UnusedCalcs

	resp.RequestCompleted = true
	resp.AllRowsHaveEscaped = all
	resp.RowHasEscaped = CompressFlags(rowHasEscaped)
	resp.OpCounts = counts
	resp.Backend = b.vm.Backend()
	resp.Elapsed = time.Since(start)
	return resp
}

func (b *base) observe(row, iteration int) {
	if b.opts.observer != nil {
		b.opts.observer(row, iteration, len(b.state.InPlay))
	}
}

// BreadthFirstGenerator iterates every in-play lane group of a row once per outer
// iteration, dropping groups as they finish.
type BreadthFirstGenerator struct {
	*base
}

// NewBreadthFirstGenerator returns a breadth-first generator for tiles of width
// points in format f.
func NewBreadthFirstGenerator(f fixed.Format, width int, opts ...Option) (*BreadthFirstGenerator, error) {
	b, err := newBase(f, width, opts)
	if err != nil {
		return nil, err
	}
	return &BreadthFirstGenerator{base: b}, nil
}

// GenerateSection fills out for req.
func (g *BreadthFirstGenerator) GenerateSection(req *Request, out *Buffers) (*Response, error) {
	start := time.Now()
	if req.ZValues != nil {
		return nil, ErrResumeNotSupported
	}

	c, err := g.prepare(req, out)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return g.skipped(start), nil
	}

	rowHasEscaped := make([]bool, req.Height)
	for row := 0; row < req.Height; row++ {
		if err := g.generateRow(req, c, row); err != nil {
			return nil, fmt.Errorf("failed to generate row %d: %w", row, err)
		}
		g.state.CopyTo(out, row*req.Width)
		rowHasEscaped[row] = g.state.AllEscaped()
	}

	resp := g.finish(&Response{}, rowHasEscaped, start)
	slog.Debug("Generated section",
		"variant", BreadthFirst,
		"block", req.BlockPosition.String(),
		"target", req.TargetIterations,
		"elapsed", resp.Elapsed,
		"unused_calcs", resp.OpCounts.UnusedCalcs,
	)
	return resp, nil
}

func (g *BreadthFirstGenerator) generateRow(req *Request, c *coords, row int) error {
	s := g.state
	s.Reset()
	if err := g.it.Cis.Fill(c.ys[row]); err != nil {
		return err
	}
	g.it.ResetZ()

	for iteration := 0; len(s.InPlay) > 0; iteration++ {
		escaped, err := g.it.Iterate(s.InPlay, s.Narrow)
		if err != nil {
			return err
		}

		s.Update(s.InPlay, escaped, req.TargetIterations)
		for _, grp := range s.InPlay {
			g.velocities.collect(grp, s.NewlyDone(grp)&escaped[grp], g.it.Zrs, g.it.Zis)
		}
		g.velocities.flush(s.EscapeVelocities)

		s.Compact()
		g.observe(row, iteration)
	}
	return nil
}
