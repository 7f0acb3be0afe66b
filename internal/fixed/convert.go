package fixed

import (
	"fmt"
	"math/big"
)

// RValue is an arbitrary-precision rational Value * 2^Exponent, the form in which
// coordinates and deltas arrive with a request.
type RValue struct {
	Value     *big.Int `json:"value"`
	Exponent  int      `json:"exponent"`
	Precision int      `json:"precision"`
}

// NewRValue returns value * 2^exponent.
func NewRValue(value *big.Int, exponent, precision int) RValue {
	return RValue{Value: new(big.Int).Set(value), Exponent: exponent, Precision: precision}
}

// RValueFromRat approximates r with fractionalBits bits after the binary point,
// truncating toward zero.
func RValueFromRat(r *big.Rat, fractionalBits, precision int) RValue {
	num := new(big.Int).Lsh(new(big.Int).Abs(r.Num()), uint(fractionalBits))
	q := num.Quo(num, r.Denom())
	if r.Sign() < 0 {
		q.Neg(q)
	}
	return RValue{Value: q, Exponent: -fractionalBits, Precision: precision}
}

// ParseRValue parses a decimal or fraction string ("-0.75", "3/8").
func ParseRValue(s string, fractionalBits, precision int) (RValue, error) {
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return RValue{}, fmt.Errorf("invalid number: %q", s)
	}
	return RValueFromRat(r, fractionalBits, precision), nil
}

// Rat returns the exact rational.
func (rv RValue) Rat() *big.Rat {
	if rv.Value == nil {
		return new(big.Rat)
	}
	r := new(big.Rat).SetInt(rv.Value)
	scale := new(big.Rat).SetInt(new(big.Int).Lsh(big.NewInt(1), uint(absInt(rv.Exponent))))
	if rv.Exponent < 0 {
		return r.Quo(r, scale)
	}
	return r.Mul(r, scale)
}

func (rv RValue) String() string {
	return rv.Rat().RatString()
}

// FromRValue converts rv to format f, truncating toward zero.
func FromRValue(rv RValue, f Format) (Value, error) {
	if rv.Value == nil {
		return Zero(f, rv.Precision), nil
	}

	mag := new(big.Int).Abs(rv.Value)
	shift := rv.Exponent - f.TargetExponent()
	if shift >= 0 {
		mag.Lsh(mag, uint(shift))
	} else {
		mag.Rsh(mag, uint(-shift))
	}

	return fromMagnitude(mag, rv.Value.Sign() < 0, f, rv.Precision)
}

// FromRat converts r to format f, truncating toward zero.
func FromRat(r *big.Rat, f Format, precision int) (Value, error) {
	num := new(big.Int).Lsh(new(big.Int).Abs(r.Num()), uint(f.FractionalBits()))
	mag := num.Quo(num, r.Denom())
	return fromMagnitude(mag, r.Sign() < 0, f, precision)
}

func fromMagnitude(mag *big.Int, negative bool, f Format, precision int) (Value, error) {
	if mag.BitLen() > f.TotalBits()-1 {
		return Value{}, fmt.Errorf("%w: integer part exceeds %d", ErrValueTooLarge, f.MaxIntegerValue())
	}

	v := Zero(f, precision)
	m := new(big.Int).Set(mag)
	mask := big.NewInt(int64(LimbMask))
	word := new(big.Int)
	for i := 0; i < f.LimbCount; i++ {
		word.And(m, mask)
		v.Limbs[i] = uint32(word.Uint64())
		m.Rsh(m, BitsPerLimb)
	}

	if negative && !v.IsZero() {
		negateLimbs(v.Limbs, v.Limbs)
	}
	return v, nil
}

// ToTwosComplement returns the two's-complement limbs of a magnitude.
func ToTwosComplement(mag []uint32, negative bool) []uint32 {
	out := append([]uint32(nil), mag...)
	if negative {
		negateLimbs(out, out)
	}
	return out
}

// FromTwosComplement returns the magnitude of limbs and whether they were
// non-negative.
func FromTwosComplement(limbs []uint32) ([]uint32, bool) {
	out := append([]uint32(nil), limbs...)
	if len(out) == 0 || out[len(out)-1]&SignBit == 0 {
		return out, true
	}
	negateLimbs(out, out)
	return out, false
}

// negateLimbs complements every limb and adds one through the carry chain. The
// carry out of the top limb is dropped.
func negateLimbs(dst, src []uint32) {
	carry := uint32(1)
	for i := range src {
		sum := (src[i] ^ LimbMask) + carry
		dst[i] = sum & LimbMask
		carry = sum >> BitsPerLimb
	}
}
