package engine

import (
	"fmt"
	"strings"
	"sync"

	"github.com/cwbudde/msetgen/internal/fixed"
)

// BuildSamplePointOffsets returns {0, d, 2d, ...} with extent entries, each formed by
// adding delta to its predecessor.
func BuildSamplePointOffsets(delta fixed.Value, extent int, m *fixed.ScalarMath) ([]fixed.Value, error) {
	if extent < 1 {
		return nil, fmt.Errorf("extent must be positive, got %d", extent)
	}

	offsets := make([]fixed.Value, extent)
	offsets[0] = fixed.Zero(m.Format(), delta.Precision)
	for i := 1; i < extent; i++ {
		next, err := m.Add(offsets[i-1], delta)
		if err != nil {
			return nil, fmt.Errorf("failed to build sample offset %d: %w", i, err)
		}
		offsets[i] = next
	}
	return offsets, nil
}

// BuildSamplePoints adds start to every offset.
func BuildSamplePoints(start fixed.Value, offsets []fixed.Value, m *fixed.ScalarMath) ([]fixed.Value, error) {
	points := make([]fixed.Value, len(offsets))
	for i, off := range offsets {
		p, err := m.Add(start, off)
		if err != nil {
			return nil, fmt.Errorf("failed to build sample point %d: %w", i, err)
		}
		points[i] = p
	}
	return points, nil
}

// SamplePointCache memoizes offset tables. Tiles at one zoom level share a delta, so
// the same table is requested over and over. It is safe for concurrent use.
type SamplePointCache struct {
	offsets sync.Map
}

// NewSamplePointCache returns an empty cache.
func NewSamplePointCache() *SamplePointCache {
	return &SamplePointCache{}
}

func offsetKey(delta fixed.Value, extent int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d/%d/%d", delta.BitsBeforeBP, delta.Exponent, extent)
	for _, l := range delta.Limbs {
		fmt.Fprintf(&b, ":%x", l)
	}
	return b.String()
}

// Offsets returns the offset table for delta and extent, building it on first use.
// Callers must not modify the returned values.
func (c *SamplePointCache) Offsets(delta fixed.Value, extent int, m *fixed.ScalarMath) ([]fixed.Value, error) {
	key := offsetKey(delta, extent)
	if v, ok := c.offsets.Load(key); ok {
		return v.([]fixed.Value), nil
	}

	offsets, err := BuildSamplePointOffsets(delta, extent, m)
	if err != nil {
		return nil, err
	}
	v, _ := c.offsets.LoadOrStore(key, offsets)
	return v.([]fixed.Value), nil
}

// Len returns the number of cached tables.
func (c *SamplePointCache) Len() int {
	n := 0
	c.offsets.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
