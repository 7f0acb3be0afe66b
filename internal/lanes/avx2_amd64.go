//go:build amd64 && !purego

package lanes

import "github.com/cwbudde/algo-vecmath/cpu"

// The AVX2 backend keeps a whole group in one YMM register. The wide half-group
// primitives stay on the generic code.
func init() {
	Global.Register(OpEntry{
		Name:      "avx2",
		SIMDLevel: cpu.SIMDAVX2,
		Priority:  20,
		Ops:       avx2Ops,
	})
}

var avx2Ops = Ops{
	AddCarry:       addCarryAVX2,
	IncrementCarry: incrementCarryAVX2,
	Complement:     complementAVX2,
	SignMask:       signMaskAVX2,
	Blend:          blendAVX2,
	CompareGE:      compareGEAVX2,
	Widen:          widenGeneric,
	MulAccumulate:  mulAccumulateGeneric,
	Propagate:      propagateGeneric,
	ShiftCombine:   shiftCombineGeneric,
	Narrow:         narrowGeneric,
	Overflow:       overflowGeneric,
}

// compareGEAVX2 uses a signed compare against threshold-1, which only holds
// while the threshold fits the magnitude bits.
func compareGEAVX2(src *Group, threshold uint32) Mask {
	if threshold > MagnitudeMask {
		return signMaskAVX2(src)
	}
	return compareGTAVX2(src, threshold)
}

//go:noescape
func addCarryAVX2(dst, a, b, carry *Group)

//go:noescape
func incrementCarryAVX2(dst, src, carry *Group)

//go:noescape
func complementAVX2(dst, src *Group)

//go:noescape
func signMaskAVX2(src *Group) Mask

//go:noescape
func blendAVX2(dst, a, b *Group, m Mask)

//go:noescape
func compareGTAVX2(src *Group, threshold uint32) Mask
