// Package lanes defines the 8-lane integer primitives that the fixed-point carry
// and renormalization algorithms are written against.
//
// A Group is one lane group: eight 32-bit limbs taken from the same limb position of
// eight different values. Each limb carries 31 significant bits; bit 31 is reserved
// as carry headroom and is clear on every input and output of the primitives below.
// Multiplication works on Wide halves: four lanes widened to 64 bits, which is why the
// kernel keeps a second, "narrow" in-play list indexed by half groups.
//
// Backends (generic per-lane loops, SWAR packing, AVX2 on amd64) register themselves
// in Global and the best supported one is picked once by Active.
package lanes

import "math/bits"

const (
	// Width is the number of lanes in a Group.
	Width = 8

	// HalfWidth is the number of lanes in a Wide half group.
	HalfWidth = Width / 2

	// BitsPerLimb is the number of significant bits in each limb.
	BitsPerLimb = 31

	// LimbMask selects the 31 significant bits of a limb.
	LimbMask uint32 = 0x7FFFFFFF

	// SignBit is the two's-complement sign bit of a most significant limb.
	SignBit uint32 = 0x40000000

	// MagnitudeMask clears both the reserved bit and the sign bit.
	MagnitudeMask uint32 = 0x3FFFFFFF

	wideLimbMask uint64 = 0x7FFFFFFF
)

// Group is one lane group of limbs.
type Group = [Width]uint32

// Wide is one half of a Group widened to 64 bits per lane.
type Wide = [HalfWidth]uint64

// Mask has one bit per lane, bit i for lane i.
type Mask uint8

// AllLanes has every lane set.
const AllLanes Mask = 0xFF

// MaskOf returns a mask with the lowest n lanes set.
func MaskOf(n int) Mask {
	if n >= Width {
		return AllLanes
	}
	if n <= 0 {
		return 0
	}
	return Mask(1<<uint(n)) - 1
}

// Lane reports whether lane i is set.
func (m Mask) Lane(i int) bool {
	return m&(1<<uint(i)) != 0
}

// All reports whether every lane is set.
func (m Mask) All() bool {
	return m == AllLanes
}

// Count returns the number of set lanes.
func (m Mask) Count() int {
	return bits.OnesCount8(uint8(m))
}

// Half returns the four lanes of half h (0 or 1) in the low bits.
func (m Mask) Half(h int) Mask {
	return (m >> uint(h*HalfWidth)) & 0x0F
}

// Ops is the set of lane primitives a backend provides. Destination arguments may
// alias source arguments.
type Ops struct {
	// AddCarry sets dst = (a + b + carry) & LimbMask per lane and leaves the carry
	// out (0 or 1) in carry.
	AddCarry func(dst, a, b, carry *Group)

	// IncrementCarry sets dst = (src + carry) & LimbMask and updates carry.
	IncrementCarry func(dst, src, carry *Group)

	// Complement sets dst = src ^ LimbMask.
	Complement func(dst, src *Group)

	// SignMask returns the lanes whose SignBit is set.
	SignMask func(src *Group) Mask

	// Blend sets dst to b in the lanes of m and to a elsewhere.
	Blend func(dst, a, b *Group, m Mask)

	// CompareGE returns the lanes where the sign-masked limb is >= threshold, or
	// where the sign bit is set. The sign bit of a sum of squares can only be set by
	// overflow, which is always past any representable threshold.
	CompareGE func(src *Group, threshold uint32) Mask

	// Widen copies half h of src into dst as 64-bit lanes.
	Widen func(dst *Wide, src *Group, h int)

	// MulAccumulate forms p = a*b per lane (2*a*b when double is set) and adds
	// p & LimbMask to lo and p >> 31 to hi.
	MulAccumulate func(lo, hi *Wide, a, b *Wide, double bool)

	// Propagate adds carry into bin, keeps the low 31 bits in bin and leaves the
	// remainder in carry.
	Propagate func(bin, carry *Wide)

	// ShiftCombine sets dst = ((hi << shift) | (lo >> (31 - shift))) & LimbMask,
	// the limb that straddles two renormalized bins. shift is at most 31.
	ShiftCombine func(dst, hi, lo *Wide, shift uint)

	// Narrow writes src into half h of dst and leaves the other half untouched.
	Narrow func(dst *Group, src *Wide, h int)

	// Overflow returns, in the low four bits, the lanes where carry is non-zero or
	// top has a bit at or above position 31 - shift.
	Overflow func(carry, top *Wide, shift uint) Mask
}
