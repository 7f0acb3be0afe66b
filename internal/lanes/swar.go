package lanes

import "github.com/cwbudde/algo-vecmath/cpu"

// The SWAR backend packs two lanes into one uint64, lane 2i in the low word and lane
// 2i+1 in the high word. Limbs keep bit 31 clear, so a 31-bit sum plus a carry never
// spills into the neighbouring word.

func init() {
	Global.Register(OpEntry{
		Name:      "swar",
		SIMDLevel: cpu.SIMDNone,
		Priority:  10,
		Ops:       swarOps,
	})
}

const (
	pairs = Width / 2

	pairLimbMask      uint64 = 0x7FFFFFFF7FFFFFFF
	pairCarryMask     uint64 = 0x0000000100000001
	pairSignMask      uint64 = 0x4000000040000000
	pairMagnitudeMask uint64 = 0x3FFFFFFF3FFFFFFF
	pairGuardBits     uint64 = 0x8000000080000000
)

var swarOps = Ops{
	AddCarry:       addCarrySWAR,
	IncrementCarry: incrementCarrySWAR,
	Complement:     complementSWAR,
	SignMask:       signMaskSWAR,
	Blend:          blendSWAR,
	CompareGE:      compareGESWAR,
	Widen:          widenGeneric,
	MulAccumulate:  mulAccumulateGeneric,
	Propagate:      propagateGeneric,
	ShiftCombine:   shiftCombineGeneric,
	Narrow:         narrowGeneric,
	Overflow:       overflowGeneric,
}

func pack(g *Group, i int) uint64 {
	return uint64(g[2*i]) | uint64(g[2*i+1])<<32
}

func unpack(g *Group, i int, v uint64) {
	g[2*i] = uint32(v)
	g[2*i+1] = uint32(v >> 32)
}

func addCarrySWAR(dst, a, b, carry *Group) {
	for i := 0; i < pairs; i++ {
		sum := pack(a, i) + pack(b, i) + pack(carry, i)
		unpack(dst, i, sum&pairLimbMask)
		unpack(carry, i, (sum>>BitsPerLimb)&pairCarryMask)
	}
}

func incrementCarrySWAR(dst, src, carry *Group) {
	for i := 0; i < pairs; i++ {
		sum := pack(src, i) + pack(carry, i)
		unpack(dst, i, sum&pairLimbMask)
		unpack(carry, i, (sum>>BitsPerLimb)&pairCarryMask)
	}
}

func complementSWAR(dst, src *Group) {
	for i := 0; i < pairs; i++ {
		unpack(dst, i, pack(src, i)^pairLimbMask)
	}
}

// pairMask turns a packed word whose per-word flag sits at bit 30 (or 31 when
// shift is 31) into two lane bits.
func pairMask(v uint64, i int, shift uint) Mask {
	lo := Mask((v >> shift) & 1)
	hi := Mask((v >> (32 + shift)) & 1)
	return (lo | hi<<1) << uint(2*i)
}

func signMaskSWAR(src *Group) Mask {
	var m Mask
	for i := 0; i < pairs; i++ {
		m |= pairMask(pack(src, i)&pairSignMask, i, 30)
	}
	return m
}

func blendSWAR(dst, a, b *Group, m Mask) {
	for i := 0; i < pairs; i++ {
		var sel uint64
		if m.Lane(2 * i) {
			sel |= 0x00000000FFFFFFFF
		}
		if m.Lane(2*i + 1) {
			sel |= 0xFFFFFFFF00000000
		}
		unpack(dst, i, pack(a, i)&^sel|pack(b, i)&sel)
	}
}

func compareGESWAR(src *Group, threshold uint32) Mask {
	// Each word gets a guard bit above the 30 magnitude bits; subtracting the
	// threshold leaves the guard set exactly when magnitude >= threshold. The
	// guard is larger than any threshold, so no borrow crosses words.
	t := uint64(threshold&MagnitudeMask) | uint64(threshold&MagnitudeMask)<<32
	var m Mask
	for i := 0; i < pairs; i++ {
		p := pack(src, i)
		d := (p&pairMagnitudeMask | pairGuardBits) - t
		m |= pairMask(d&pairGuardBits, i, 31)
		m |= pairMask(p&pairSignMask, i, 30)
	}
	return m
}
