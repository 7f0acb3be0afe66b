// Package fixed implements the limb-based fixed-point numbers used by the escape-time
// engine: the format descriptor, single values, structure-of-arrays decks and the
// scalar arithmetic kernel.
//
// Every limb is a uint32 holding 31 significant bits. Bit 31 is reserved as carry
// headroom and is clear in every stored limb. Negative values use a two's-complement
// encoding across the whole limb sequence, so the sign is bit 30 of the most
// significant limb. All operands of one computation share a Format and therefore a
// single exponent.
package fixed

import (
	"fmt"

	"github.com/cwbudde/msetgen/internal/lanes"
)

const (
	// BitsPerLimb is the number of significant bits in a limb.
	BitsPerLimb = lanes.BitsPerLimb

	// LimbMask selects the significant bits of a limb.
	LimbMask = lanes.LimbMask

	// SignBit is the sign bit of the most significant limb.
	SignBit = lanes.SignBit

	// DefaultBitsBeforeBP leaves room for the sign and values up to 127.
	DefaultBitsBeforeBP uint8 = 8
)

// Format fixes the shape of every value in one computation.
type Format struct {
	// BitsBeforeBP is the number of bits before the binary point, sign included.
	BitsBeforeBP uint8 `json:"bitsBeforeBP"`

	// LimbCount is the number of 31-bit limbs per value.
	LimbCount int `json:"limbCount"`
}

// NewFormat validates and returns a Format.
func NewFormat(bitsBeforeBP uint8, limbCount int) (Format, error) {
	if bitsBeforeBP < 1 || bitsBeforeBP > BitsPerLimb {
		return Format{}, fmt.Errorf("bits before binary point must be in [1, %d], got %d", BitsPerLimb, bitsBeforeBP)
	}
	if limbCount < 1 {
		return Format{}, fmt.Errorf("limb count must be positive, got %d", limbCount)
	}
	return Format{BitsBeforeBP: bitsBeforeBP, LimbCount: limbCount}, nil
}

// FormatForPrecision returns the smallest format with at least minFractionalBits
// bits after the binary point.
func FormatForPrecision(bitsBeforeBP uint8, minFractionalBits int) (Format, error) {
	if minFractionalBits < 0 {
		minFractionalBits = 0
	}
	total := int(bitsBeforeBP) + minFractionalBits
	limbs := (total + BitsPerLimb - 1) / BitsPerLimb
	if limbs < 1 {
		limbs = 1
	}
	return NewFormat(bitsBeforeBP, limbs)
}

// TotalBits is the number of usable bits across all limbs.
func (f Format) TotalBits() int {
	return f.LimbCount * BitsPerLimb
}

// FractionalBits is the number of bits after the binary point.
func (f Format) FractionalBits() int {
	return f.TotalBits() - int(f.BitsBeforeBP)
}

// TargetExponent is the power-of-two exponent shared by every value in this format.
func (f Format) TargetExponent() int {
	return -f.FractionalBits()
}

// MaxIntegerValue is the largest integer part a non-negative value can hold.
func (f Format) MaxIntegerValue() uint32 {
	return uint32(1)<<(f.BitsBeforeBP-1) - 1
}

func (f Format) String() string {
	return fmt.Sprintf("%d:%d", f.BitsBeforeBP, f.FractionalBits())
}
