package fixed

import (
	"fmt"
	"math/bits"

	"github.com/cwbudde/msetgen/internal/lanes"
)

// ScalarMath is the one-value-at-a-time kernel. It is the reference the vector
// kernel must match bit for bit, and is used to build sample point tables.
//
// A ScalarMath keeps scratch bins and is not safe for concurrent use.
type ScalarMath struct {
	format       Format
	threshold    uint32
	thresholdMsl uint32
	bins         []uint64

	Counts OpCounts
}

// NewScalarMath returns a kernel for format f comparing against threshold.
func NewScalarMath(f Format, threshold uint32) (*ScalarMath, error) {
	msl, err := ThresholdMsl(f, threshold)
	if err != nil {
		return nil, err
	}
	return &ScalarMath{
		format:       f,
		threshold:    threshold,
		thresholdMsl: msl,
		bins:         make([]uint64, 2*f.LimbCount),
	}, nil
}

// ThresholdMsl returns the most significant limb of threshold in format f, the value
// escape comparisons are made against.
func ThresholdMsl(f Format, threshold uint32) (uint32, error) {
	if threshold > f.MaxIntegerValue() {
		return 0, fmt.Errorf("%w: threshold %d exceeds %d", ErrValueTooLarge, threshold, f.MaxIntegerValue())
	}
	v, err := FromInt(f, int64(threshold))
	if err != nil {
		return 0, err
	}
	return v.Limbs[f.LimbCount-1], nil
}

// Format returns the kernel's format.
func (m *ScalarMath) Format() Format {
	return m.format
}

// Threshold returns the escape threshold.
func (m *ScalarMath) Threshold() uint32 {
	return m.threshold
}

func (m *ScalarMath) check(op string, vals ...Value) error {
	for _, v := range vals {
		if len(v.Limbs) != m.format.LimbCount {
			return &FormatMismatchError{Op: op, Field: "limb count", Expected: m.format.LimbCount, Actual: len(v.Limbs)}
		}
		if v.Exponent != m.format.TargetExponent() {
			return &FormatMismatchError{Op: op, Field: "exponent", Expected: m.format.TargetExponent(), Actual: v.Exponent}
		}
	}
	return nil
}

func (m *ScalarMath) result(a Value) Value {
	r := a
	r.Limbs = make([]uint32, m.format.LimbCount)
	r.BitsBeforeBP = m.format.BitsBeforeBP
	return r
}

// Add returns a + b. Both operands are in two's complement; the carry out of the
// top limb is dropped.
func (m *ScalarMath) Add(a, b Value) (Value, error) {
	if err := m.check("add", a, b); err != nil {
		return Value{}, err
	}

	r := m.result(a)
	var carry uint32
	for i := range r.Limbs {
		sum := a.Limbs[i] + b.Limbs[i] + carry
		r.Limbs[i] = sum & LimbMask
		carry = sum >> BitsPerLimb
		m.Counts.Additions++
	}
	return r, nil
}

// Sub returns a - b.
func (m *ScalarMath) Sub(a, b Value) (Value, error) {
	if err := m.check("sub", a, b); err != nil {
		return Value{}, err
	}
	if b.IsZero() {
		return a.Clone(), nil
	}

	nb, err := m.Negate(b)
	if err != nil {
		return Value{}, err
	}
	return m.Add(a, nb)
}

// Negate returns -a.
func (m *ScalarMath) Negate(a Value) (Value, error) {
	if err := m.check("negate", a); err != nil {
		return Value{}, err
	}

	r := m.result(a)
	negateLimbs(r.Limbs, a.Limbs)
	m.Counts.Negations++
	return r, nil
}

// Multiply returns a * b, saturating to the format's largest magnitude (with the
// product's sign) on overflow.
func (m *ScalarMath) Multiply(a, b Value) (Value, error) {
	if err := m.check("multiply", a, b); err != nil {
		return Value{}, err
	}

	magA, posA := FromTwosComplement(a.Limbs)
	magB, posB := FromTwosComplement(b.Limbs)
	m.Counts.Conversions += 2

	clear(m.bins)
	for j := range magA {
		for i := range magB {
			p := uint64(magA[j]) * uint64(magB[i])
			m.bins[i+j] += p & uint64(LimbMask)
			m.bins[i+j+1] += p >> BitsPerLimb
			m.Counts.Multiplications++
			m.Counts.Splits++
		}
	}

	r := m.result(a)
	m.finishProduct(r.Limbs, posA != posB)
	return r, nil
}

// Square returns a * a. The result is never negative.
func (m *ScalarMath) Square(a Value) (Value, error) {
	if err := m.check("square", a); err != nil {
		return Value{}, err
	}

	mag, _ := FromTwosComplement(a.Limbs)
	m.Counts.Conversions++

	clear(m.bins)
	for j := range mag {
		for i := j; i < len(mag); i++ {
			p := uint64(mag[i]) * uint64(mag[j])
			if i > j {
				// Cross terms appear twice.
				p <<= 1
			}
			m.bins[i+j] += p & uint64(LimbMask)
			m.bins[i+j+1] += p >> BitsPerLimb
			m.Counts.Multiplications++
			m.Counts.Splits++
		}
	}

	r := m.result(a)
	m.finishProduct(r.Limbs, false)
	return r, nil
}

// finishProduct normalizes m.bins into dst and applies the overflow and sign policy.
func (m *ScalarMath) finishProduct(dst []uint32, negative bool) {
	carry := m.SumThePartials(m.bins)
	overflow := m.ShiftAndTrim(dst, m.bins) || carry != 0

	if overflow {
		fillMax(dst)
	}
	if negative {
		negateLimbs(dst, dst)
		m.Counts.Negations++
	}
}

// SumThePartials propagates the carries of raw product bins so every bin holds 31
// bits. It returns the carry out of the most significant bin; non-zero means the
// product overflowed.
func (m *ScalarMath) SumThePartials(bins []uint64) uint64 {
	var carry uint64
	for i := range bins {
		v := bins[i] + carry
		bins[i] = v & uint64(LimbMask)
		carry = v >> BitsPerLimb
		m.Counts.Additions++
	}
	return carry
}

// ShiftAndTrim renormalizes a double-width product in bins back to the operating
// format: the top BitsBeforeBP bits are discarded and LimbCount limbs are kept. It
// reports whether the discarded bits or the result's sign bit were set.
func (m *ScalarMath) ShiftAndTrim(dst []uint32, bins []uint64) bool {
	return shiftAndTrim(dst, bins, m.format)
}

func shiftAndTrim(dst []uint32, bins []uint64, f Format) bool {
	shift := uint(f.BitsBeforeBP)
	n := f.LimbCount
	top := len(bins) - n

	for i := 0; i < n; i++ {
		src := top + i
		hi := (bins[src] << shift) & uint64(LimbMask)
		var lo uint64
		if src > 0 {
			lo = (bins[src-1] & uint64(LimbMask)) >> (BitsPerLimb - shift)
		}
		dst[i] = uint32(hi | lo)
	}

	discarded := bins[len(bins)-1] >> (BitsPerLimb - shift)
	return discarded != 0 || dst[n-1]&SignBit != 0
}

// MultiplyByInt returns a * k for a small non-negative integer k, in a single carry
// pass over the two's-complement limbs.
func (m *ScalarMath) MultiplyByInt(a Value, k uint32) (Value, error) {
	if err := m.check("multiply by int", a); err != nil {
		return Value{}, err
	}
	if bits.LeadingZeros32(k) < 32-int(m.format.BitsBeforeBP) {
		return Value{}, fmt.Errorf("%w: %d with %d bits before the binary point", ErrMultiplierTooLarge, k, m.format.BitsBeforeBP)
	}

	r := m.result(a)
	var carry uint64
	for i := range a.Limbs {
		p := uint64(a.Limbs[i])*uint64(k) + carry
		r.Limbs[i] = uint32(p & uint64(LimbMask))
		carry = p >> BitsPerLimb
		m.Counts.Multiplications++
	}
	return r, nil
}

// IsGreaterOrEqThanThreshold compares a non-negative sum of squares against the
// threshold using only its most significant limb, sign bit masked off. A set sign
// bit means the sum overflowed and counts as escaped.
func (m *ScalarMath) IsGreaterOrEqThanThreshold(a Value) bool {
	m.Counts.Comparisons++
	top := a.Limbs[len(a.Limbs)-1]
	return top&SignBit != 0 || top&lanes.MagnitudeMask >= m.thresholdMsl
}
