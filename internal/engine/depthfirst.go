package engine

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/cwbudde/msetgen/internal/fixed"
	"github.com/cwbudde/msetgen/internal/lanes"
)

// DepthFirstGenerator iterates one lane group to completion before moving to the
// next. It records the z of every point at the moment it finished, so a section can
// later be deepened to a higher target without starting over.
type DepthFirstGenerator struct {
	*base
	groups []int
	single []int
	narrow []int
}

// NewDepthFirstGenerator returns a depth-first generator for tiles of width points
// in format f.
func NewDepthFirstGenerator(f fixed.Format, width int, opts ...Option) (*DepthFirstGenerator, error) {
	b, err := newBase(f, width, opts)
	if err != nil {
		return nil, err
	}
	vc := b.vm.VectorCount()
	return &DepthFirstGenerator{
		base:   b,
		groups: make([]int, 0, vc),
		single: make([]int, 1),
		narrow: make([]int, 2),
	}, nil
}

// GenerateSection fills out for req. When req.ZValues is set, out must hold the
// counts, escape flags and velocities of the run that produced them; points that
// escaped or reached the new target are left untouched and the rest continue from
// their stored z.
func (g *DepthFirstGenerator) GenerateSection(req *Request, out *Buffers) (*Response, error) {
	start := time.Now()

	c, err := g.prepare(req, out)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return g.skipped(start), nil
	}

	var zv *ZValues
	if req.ZValues != nil {
		zv = req.ZValues.Clone()
	} else {
		zv = NewZValues(g.format.LimbCount, req.Width, req.Height)
	}

	rowHasEscaped := make([]bool, req.Height)
	for row := 0; row < req.Height; row++ {
		offset := row * req.Width
		if err := g.generateRow(req, c, row, zv, out); err != nil {
			return nil, fmt.Errorf("failed to generate row %d: %w", row, err)
		}
		g.state.CopyTo(out, offset)
		rowHasEscaped[row] = g.state.AllEscaped()
	}

	resp := g.finish(&Response{ZValues: zv}, rowHasEscaped, start)
	slog.Debug("Generated section",
		"variant", DepthFirst,
		"block", req.BlockPosition.String(),
		"target", req.TargetIterations,
		"resumed", req.ZValues != nil,
		"elapsed", resp.Elapsed,
	)
	return resp, nil
}

func (g *DepthFirstGenerator) generateRow(req *Request, c *coords, row int, zv *ZValues, out *Buffers) error {
	s := g.state
	offset := row * req.Width
	resuming := req.ZValues != nil

	if resuming {
		s.Load(out.Counts[offset:], out.HasEscaped[offset:], out.EscapeVelocities[offset:], req.TargetIterations)
	} else {
		s.Reset()
	}
	if err := g.it.Cis.Fill(c.ys[row]); err != nil {
		return err
	}
	g.it.ResetZ()
	if resuming {
		g.loadZ(zv, offset, req.Width)
	}

	g.groups = append(g.groups[:0], s.InPlay...)
	for _, grp := range g.groups {
		g.single[0] = grp
		g.narrow[0], g.narrow[1] = 2*grp, 2*grp+1

		if resuming {
			g.it.ResumeZ()
		} else {
			g.it.ZValuesAreZero = true
		}

		for iteration := 0; !s.GroupDone(grp); iteration++ {
			escaped, err := g.it.Iterate(g.single, g.narrow)
			if err != nil {
				return err
			}
			s.Update(g.single, escaped, req.TargetIterations)

			done := s.NewlyDone(grp)
			g.velocities.collect(grp, done&escaped[grp], g.it.Zrs, g.it.Zis)
			g.storeZ(zv, offset, req.Width, grp, done)
		}
		g.velocities.flush(s.EscapeVelocities)

		s.Compact()
		g.observe(row, len(g.groups)-len(s.InPlay))
	}
	return nil
}

// loadZ copies one row of stored z into the iterator.
func (g *DepthFirstGenerator) loadZ(zv *ZValues, offset, width int) {
	for col := 0; col < width; col++ {
		re, im := zv.Point(offset + col)
		for l := range re {
			g.it.Zrs.Row(l)[col] = re[l]
			g.it.Zis.Row(l)[col] = im[l]
		}
	}
}

// storeZ saves the z of the lanes of grp in mask.
func (g *DepthFirstGenerator) storeZ(zv *ZValues, offset, width, grp int, mask lanes.Mask) {
	if mask == 0 {
		return
	}
	for lane := 0; lane < lanes.Width; lane++ {
		col := grp*lanes.Width + lane
		if !mask.Lane(lane) || col >= width {
			continue
		}
		re, im := zv.Point(offset + col)
		g.it.Zrs.LimbsAt(col, re)
		g.it.Zis.LimbsAt(col, im)
	}
}

// Resume builds a request that deepens a previous depth-first result to target.
func Resume(prev *Request, zv *ZValues, target uint32) (*Request, error) {
	if target < prev.TargetIterations {
		return nil, fmt.Errorf("target %d is below the previous target %d", target, prev.TargetIterations)
	}
	if zv == nil {
		return nil, fmt.Errorf("no z values to resume from")
	}
	next := *prev
	next.TargetIterations = target
	next.ZValues = zv
	return &next, nil
}
