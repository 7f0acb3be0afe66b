package engine

import (
	"math"

	vecmath "github.com/cwbudde/algo-vecmath"

	"github.com/cwbudde/msetgen/internal/fixed"
	"github.com/cwbudde/msetgen/internal/lanes"
)

// VelocityScale is the fixed-point scale of stored escape velocities.
const VelocityScale = 10000

// EscapeVelocity returns the smooth-iteration fraction 1 - log2(log2(|z|^2)/2) for
// a point that escaped with squared magnitude sumSq, clamped to [0, 1) and scaled by
// VelocityScale.
func EscapeVelocity(sumSq float64) uint32 {
	if !(sumSq > 1) {
		return 0
	}
	frac := 1 - math.Log2(math.Log2(sumSq)/2)
	switch {
	case math.IsNaN(frac), frac < 0:
		return 0
	case frac >= 1:
		return VelocityScale - 1
	}
	return uint32(frac * VelocityScale)
}

// velocityBatch collects the frozen z of points that just escaped so their squared
// magnitudes can be computed in one vector pass.
type velocityBatch struct {
	index []int
	re    []float64
	im    []float64
	power []float64
	limbs []uint32
}

func newVelocityBatch(capacity, limbCount int) *velocityBatch {
	return &velocityBatch{
		index: make([]int, 0, capacity),
		re:    make([]float64, 0, capacity),
		im:    make([]float64, 0, capacity),
		power: make([]float64, capacity),
		limbs: make([]uint32, limbCount),
	}
}

// collect queues the lanes of group g in mask, reading z from zrs and zis.
func (b *velocityBatch) collect(g int, mask lanes.Mask, zrs, zis *fixed.Deck) {
	if mask == 0 {
		return
	}
	exp := zrs.Format().TargetExponent()
	for lane := 0; lane < lanes.Width; lane++ {
		if !mask.Lane(lane) {
			continue
		}
		i := g*lanes.Width + lane
		zrs.LimbsAt(i, b.limbs)
		re := fixed.LimbsFloat64(b.limbs, exp)
		zis.LimbsAt(i, b.limbs)
		im := fixed.LimbsFloat64(b.limbs, exp)

		b.index = append(b.index, i)
		b.re = append(b.re, re)
		b.im = append(b.im, im)
	}
}

// flush writes the velocities of every queued point into out and empties the batch.
func (b *velocityBatch) flush(out []uint32) {
	n := len(b.index)
	if n == 0 {
		return
	}
	if cap(b.power) < n {
		b.power = make([]float64, n)
	}
	power := b.power[:n]
	vecmath.Power(power, b.re, b.im)

	for k, i := range b.index {
		out[i] = EscapeVelocity(power[k])
	}
	b.index = b.index[:0]
	b.re = b.re[:0]
	b.im = b.im[:0]
}
