// Package kernel is the lane-group arithmetic kernel. It applies the fixed-point
// algorithms of package fixed to whole decks, eight values at a time, skipping every
// group that is not listed as in play. Results are bit-identical to fixed.ScalarMath.
package kernel

import (
	"fmt"

	"github.com/cwbudde/msetgen/internal/fixed"
	"github.com/cwbudde/msetgen/internal/lanes"
)

// VecMath holds per-format scratch space and the selected lane backend. A VecMath is
// not safe for concurrent use; each worker owns one.
type VecMath struct {
	format       fixed.Format
	valueCount   int
	vectorCount  int
	backend      string
	ops          lanes.Ops
	threshold    uint32
	thresholdMsl uint32

	magA    []lanes.Group
	magB    []lanes.Group
	scratch []lanes.Group
	wideA   []lanes.Wide
	wideB   []lanes.Wide
	bins    []lanes.Wide
	limb    lanes.Wide
	result  []lanes.Group
	maxMag  []lanes.Group
	signA   lanes.Mask
	signB   lanes.Mask

	Counts fixed.OpCounts
}

// New returns a kernel for decks of valueCount values in format f. backend names a
// registered lane backend; "" or "auto" picks the best one for this CPU.
func New(f fixed.Format, valueCount int, threshold uint32, backend string) (*VecMath, error) {
	entry, err := lanes.Resolve(backend)
	if err != nil {
		return nil, err
	}
	msl, err := fixed.ThresholdMsl(f, threshold)
	if err != nil {
		return nil, err
	}
	if valueCount < 1 {
		return nil, fmt.Errorf("value count must be positive, got %d", valueCount)
	}

	n := f.LimbCount
	maxMag := make([]lanes.Group, n)
	for l := range maxMag {
		for i := range maxMag[l] {
			maxMag[l][i] = lanes.LimbMask
		}
	}
	for i := range maxMag[n-1] {
		maxMag[n-1][i] = lanes.MagnitudeMask
	}

	return &VecMath{
		format:       f,
		valueCount:   valueCount,
		vectorCount:  (valueCount + lanes.Width - 1) / lanes.Width,
		backend:      entry.Name,
		ops:          entry.Ops,
		threshold:    threshold,
		thresholdMsl: msl,
		magA:         make([]lanes.Group, n),
		magB:         make([]lanes.Group, n),
		scratch:      make([]lanes.Group, n),
		wideA:        make([]lanes.Wide, n),
		wideB:        make([]lanes.Wide, n),
		bins:         make([]lanes.Wide, 2*n),
		result:       make([]lanes.Group, n),
		maxMag:       maxMag,
	}, nil
}

// Format returns the kernel's format.
func (m *VecMath) Format() fixed.Format { return m.format }

// ValueCount returns the number of values per deck.
func (m *VecMath) ValueCount() int { return m.valueCount }

// VectorCount returns the number of lane groups per deck.
func (m *VecMath) VectorCount() int { return m.vectorCount }

// Backend returns the name of the lane backend in use.
func (m *VecMath) Backend() string { return m.backend }

// Threshold returns the escape threshold.
func (m *VecMath) Threshold() uint32 { return m.threshold }

// SetThreshold changes the escape threshold.
func (m *VecMath) SetThreshold(threshold uint32) error {
	if threshold == m.threshold {
		return nil
	}
	msl, err := fixed.ThresholdMsl(m.format, threshold)
	if err != nil {
		return err
	}
	m.threshold = threshold
	m.thresholdMsl = msl
	return nil
}

// NewDeck returns a zeroed deck shaped for this kernel.
func (m *VecMath) NewDeck() *fixed.Deck {
	return fixed.NewDeck(m.format, m.valueCount, 0)
}

func (m *VecMath) check(op string, decks ...*fixed.Deck) error {
	for _, d := range decks {
		if d.Format() != m.format {
			return &fixed.FormatMismatchError{Op: op, Field: "limb count", Expected: m.format.LimbCount, Actual: d.Format().LimbCount}
		}
		if d.VectorCount() != m.vectorCount {
			return &fixed.FormatMismatchError{Op: op, Field: "vector count", Expected: m.vectorCount, Actual: d.VectorCount()}
		}
	}
	return nil
}

// Add sets c = a + b for the groups in inPlay.
func (m *VecMath) Add(a, b, c *fixed.Deck, inPlay []int) error {
	if err := m.check("add", a, b, c); err != nil {
		return err
	}

	var carry lanes.Group
	for _, g := range inPlay {
		carry = lanes.Group{}
		for l := 0; l < m.format.LimbCount; l++ {
			m.ops.AddCarry(c.Group(l, g), a.Group(l, g), b.Group(l, g), &carry)
		}
		m.Counts.Additions += int64(m.format.LimbCount)
	}
	c.IsZero = false
	return nil
}

// Sub sets c = a - b for the groups in inPlay.
func (m *VecMath) Sub(a, b, c *fixed.Deck, inPlay []int) error {
	if err := m.check("sub", a, b, c); err != nil {
		return err
	}

	if b.IsZero {
		for _, g := range inPlay {
			for l := 0; l < m.format.LimbCount; l++ {
				*c.Group(l, g) = *a.Group(l, g)
			}
		}
		c.IsZero = a.IsZero
		return nil
	}

	var carry lanes.Group
	for _, g := range inPlay {
		m.negateGroup(m.scratch, b, g)

		carry = lanes.Group{}
		for l := 0; l < m.format.LimbCount; l++ {
			m.ops.AddCarry(c.Group(l, g), a.Group(l, g), &m.scratch[l], &carry)
		}
		m.Counts.Additions += int64(m.format.LimbCount)
	}
	c.IsZero = false
	return nil
}

// Negate sets c = -a for the groups in inPlay.
func (m *VecMath) Negate(a, c *fixed.Deck, inPlay []int) error {
	if err := m.check("negate", a, c); err != nil {
		return err
	}

	for _, g := range inPlay {
		m.negateGroup(m.scratch, a, g)
		for l := 0; l < m.format.LimbCount; l++ {
			*c.Group(l, g) = m.scratch[l]
		}
	}
	c.IsZero = a.IsZero
	return nil
}

// negateGroup writes the two's-complement negation of group g of src into dst.
func (m *VecMath) negateGroup(dst []lanes.Group, src *fixed.Deck, g int) {
	carry := lanes.Group{1, 1, 1, 1, 1, 1, 1, 1}
	for l := 0; l < m.format.LimbCount; l++ {
		m.ops.Complement(&dst[l], src.Group(l, g))
		m.ops.IncrementCarry(&dst[l], &dst[l], &carry)
	}
	m.Counts.Negations++
}

// magnitude loads group g of src into dst as magnitudes and returns the lanes that
// were negative.
func (m *VecMath) magnitude(dst []lanes.Group, src []lanes.Group) lanes.Mask {
	top := m.format.LimbCount - 1
	sign := m.ops.SignMask(&src[top])
	if sign == 0 {
		copy(dst, src)
		return 0
	}

	carry := lanes.Group{1, 1, 1, 1, 1, 1, 1, 1}
	var neg lanes.Group
	for l := range src {
		m.ops.Complement(&neg, &src[l])
		m.ops.IncrementCarry(&neg, &neg, &carry)
		m.ops.Blend(&dst[l], &src[l], &neg, sign)
	}
	m.Counts.Conversions++
	return sign
}

// loadGroup copies group g of d into dst.
func (m *VecMath) loadGroup(dst []lanes.Group, d *fixed.Deck, g int) {
	for l := range dst {
		dst[l] = *d.Group(l, g)
	}
}

// Multiply sets c = a * b for the half groups in narrowInPlay, saturating on
// overflow the same way as fixed.ScalarMath.
func (m *VecMath) Multiply(a, b, c *fixed.Deck, narrowInPlay []int) error {
	if err := m.check("multiply", a, b, c); err != nil {
		return err
	}

	loaded := -1
	for _, hg := range narrowInPlay {
		g, h := hg/2, hg%2
		if g != loaded {
			m.loadGroup(m.scratch, a, g)
			m.signA = m.magnitude(m.magA, m.scratch)
			m.loadGroup(m.scratch, b, g)
			m.signB = m.magnitude(m.magB, m.scratch)
			loaded = g
		}

		m.widen(m.wideA, m.magA, h)
		m.widen(m.wideB, m.magB, h)
		m.productBins(m.wideA, m.wideB)
		m.finishHalf(c, g, h, (m.signA ^ m.signB).Half(h))
	}
	c.IsZero = false
	return nil
}

// Square sets c = a * a for the half groups in narrowInPlay.
func (m *VecMath) Square(a, c *fixed.Deck, narrowInPlay []int) error {
	if err := m.check("square", a, c); err != nil {
		return err
	}

	loaded := -1
	for _, hg := range narrowInPlay {
		g, h := hg/2, hg%2
		if g != loaded {
			m.loadGroup(m.scratch, a, g)
			m.magnitude(m.magA, m.scratch)
			loaded = g
		}
		m.squareHalf(c, g, h)
	}
	c.IsZero = a.IsZero
	return nil
}

// AddThenSquare sets c = (a + b)^2 for the half groups in narrowInPlay.
func (m *VecMath) AddThenSquare(a, b, c *fixed.Deck, narrowInPlay []int) error {
	if err := m.check("add then square", a, b, c); err != nil {
		return err
	}

	loaded := -1
	var carry lanes.Group
	for _, hg := range narrowInPlay {
		g, h := hg/2, hg%2
		if g != loaded {
			carry = lanes.Group{}
			for l := 0; l < m.format.LimbCount; l++ {
				m.ops.AddCarry(&m.scratch[l], a.Group(l, g), b.Group(l, g), &carry)
			}
			m.Counts.Additions += int64(m.format.LimbCount)
			m.magnitude(m.magA, m.scratch)
			loaded = g
		}
		m.squareHalf(c, g, h)
	}
	c.IsZero = false
	return nil
}

func (m *VecMath) squareHalf(c *fixed.Deck, g, h int) {
	m.widen(m.wideA, m.magA, h)

	clear(m.bins)
	n := m.format.LimbCount
	for j := 0; j < n; j++ {
		for i := j; i < n; i++ {
			m.ops.MulAccumulate(&m.bins[i+j], &m.bins[i+j+1], &m.wideA[i], &m.wideA[j], i > j)
		}
	}
	m.Counts.Multiplications += int64(n * (n + 1) / 2)
	m.Counts.Splits += int64(n * (n + 1) / 2)

	m.finishHalf(c, g, h, 0)
}

func (m *VecMath) widen(dst []lanes.Wide, src []lanes.Group, h int) {
	for l := range src {
		m.ops.Widen(&dst[l], &src[l], h)
	}
}

func (m *VecMath) productBins(a, b []lanes.Wide) {
	clear(m.bins)
	n := m.format.LimbCount
	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			m.ops.MulAccumulate(&m.bins[i+j], &m.bins[i+j+1], &a[j], &b[i], false)
		}
	}
	m.Counts.Multiplications += int64(n * n)
	m.Counts.Splits += int64(n * n)
}

// finishHalf sums the partial products, renormalizes them into half h of group g of
// c, saturates overflowed lanes and negates the lanes in negative (a half-local mask).
func (m *VecMath) finishHalf(c *fixed.Deck, g, h int, negative lanes.Mask) {
	var carry lanes.Wide
	for k := range m.bins {
		m.ops.Propagate(&m.bins[k], &carry)
	}
	m.Counts.Additions += int64(len(m.bins))

	n := m.format.LimbCount
	shift := uint(m.format.BitsBeforeBP)
	top := len(m.bins) - n
	m.loadGroup(m.result, c, g)
	for i := 0; i < n; i++ {
		m.ops.ShiftCombine(&m.limb, &m.bins[top+i], &m.bins[top+i-1], shift)
		m.ops.Narrow(&m.result[i], &m.limb, h)
	}

	// Lane masks of the half, shifted to their place in the group.
	base := uint(h * lanes.HalfWidth)
	half := lanes.Mask(0x0F) << base
	overflow := m.ops.Overflow(&carry, &m.bins[len(m.bins)-1], shift)<<base |
		m.ops.SignMask(&m.result[n-1])&half
	if overflow != 0 {
		for i := 0; i < n; i++ {
			m.ops.Blend(&m.result[i], &m.result[i], &m.maxMag[i], overflow)
		}
	}

	if neg := negative << base; neg != 0 {
		carry := lanes.Group{1, 1, 1, 1, 1, 1, 1, 1}
		for i := 0; i < n; i++ {
			m.ops.Complement(&m.scratch[i], &m.result[i])
			m.ops.IncrementCarry(&m.scratch[i], &m.scratch[i], &carry)
			m.ops.Blend(&m.result[i], &m.result[i], &m.scratch[i], neg)
		}
		m.Counts.Negations += int64(neg.Count())
	}

	for i := 0; i < n; i++ {
		*c.Group(i, g) = m.result[i]
	}
}

// IsGreaterOrEqThanThreshold writes, for each group in inPlay, the lanes of a that
// reached the escape threshold into escaped[g].
func (m *VecMath) IsGreaterOrEqThanThreshold(a *fixed.Deck, inPlay []int, escaped []lanes.Mask) error {
	if err := m.check("compare", a); err != nil {
		return err
	}
	if len(escaped) < m.vectorCount {
		return fmt.Errorf("escaped mask slice has %d entries, need %d", len(escaped), m.vectorCount)
	}

	top := m.format.LimbCount - 1
	for _, g := range inPlay {
		escaped[g] = m.ops.CompareGE(a.Group(top, g), m.thresholdMsl)
	}
	m.Counts.Comparisons += int64(len(inPlay))
	return nil
}

// BuildNarrowInPlayList maps each group g of inPlay to its half groups 2g and 2g+1,
// appending to dst.
func BuildNarrowInPlayList(inPlay []int, dst []int) []int {
	dst = dst[:0]
	for _, g := range inPlay {
		dst = append(dst, 2*g, 2*g+1)
	}
	return dst
}
