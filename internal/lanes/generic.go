package lanes

import "github.com/cwbudde/algo-vecmath/cpu"

func init() {
	Global.Register(OpEntry{
		Name:      "generic",
		SIMDLevel: cpu.SIMDNone,
		Priority:  0,
		Baseline:  true,
		Ops:       genericOps,
	})
}

var genericOps = Ops{
	AddCarry:       addCarryGeneric,
	IncrementCarry: incrementCarryGeneric,
	Complement:     complementGeneric,
	SignMask:       signMaskGeneric,
	Blend:          blendGeneric,
	CompareGE:      compareGEGeneric,
	Widen:          widenGeneric,
	MulAccumulate:  mulAccumulateGeneric,
	Propagate:      propagateGeneric,
	ShiftCombine:   shiftCombineGeneric,
	Narrow:         narrowGeneric,
	Overflow:       overflowGeneric,
}

func addCarryGeneric(dst, a, b, carry *Group) {
	for i := 0; i < Width; i++ {
		sum := a[i] + b[i] + carry[i]
		dst[i] = sum & LimbMask
		carry[i] = sum >> BitsPerLimb
	}
}

func incrementCarryGeneric(dst, src, carry *Group) {
	for i := 0; i < Width; i++ {
		sum := src[i] + carry[i]
		dst[i] = sum & LimbMask
		carry[i] = sum >> BitsPerLimb
	}
}

func complementGeneric(dst, src *Group) {
	for i := 0; i < Width; i++ {
		dst[i] = src[i] ^ LimbMask
	}
}

func signMaskGeneric(src *Group) Mask {
	var m Mask
	for i := 0; i < Width; i++ {
		if src[i]&SignBit != 0 {
			m |= 1 << uint(i)
		}
	}
	return m
}

func blendGeneric(dst, a, b *Group, m Mask) {
	for i := 0; i < Width; i++ {
		if m.Lane(i) {
			dst[i] = b[i]
		} else {
			dst[i] = a[i]
		}
	}
}

func compareGEGeneric(src *Group, threshold uint32) Mask {
	var m Mask
	for i := 0; i < Width; i++ {
		if src[i]&SignBit != 0 || src[i]&MagnitudeMask >= threshold {
			m |= 1 << uint(i)
		}
	}
	return m
}

func widenGeneric(dst *Wide, src *Group, h int) {
	base := h * HalfWidth
	for i := 0; i < HalfWidth; i++ {
		dst[i] = uint64(src[base+i])
	}
}

func mulAccumulateGeneric(lo, hi *Wide, a, b *Wide, double bool) {
	for i := 0; i < HalfWidth; i++ {
		p := a[i] * b[i]
		if double {
			p <<= 1
		}
		lo[i] += p & wideLimbMask
		hi[i] += p >> BitsPerLimb
	}
}

func propagateGeneric(bin, carry *Wide) {
	for i := 0; i < HalfWidth; i++ {
		v := bin[i] + carry[i]
		bin[i] = v & wideLimbMask
		carry[i] = v >> BitsPerLimb
	}
}

func shiftCombineGeneric(dst, hi, lo *Wide, shift uint) {
	for i := 0; i < HalfWidth; i++ {
		dst[i] = (hi[i]<<shift | (lo[i]&wideLimbMask)>>(BitsPerLimb-shift)) & wideLimbMask
	}
}

func narrowGeneric(dst *Group, src *Wide, h int) {
	base := h * HalfWidth
	for i := 0; i < HalfWidth; i++ {
		dst[base+i] = uint32(src[i])
	}
}

func overflowGeneric(carry, top *Wide, shift uint) Mask {
	var m Mask
	for i := 0; i < HalfWidth; i++ {
		if carry[i] != 0 || top[i]>>(BitsPerLimb-shift) != 0 {
			m |= 1 << uint(i)
		}
	}
	return m
}
