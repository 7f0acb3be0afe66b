package fixed

import (
	"math"
	"math/big"
)

// Value is a single fixed-point number: value = sum(Limbs[i] * 2^(31*i)) * 2^Exponent,
// with Limbs in two's complement across the whole sequence.
type Value struct {
	Limbs        []uint32 `json:"limbs"`
	Exponent     int      `json:"exponent"`
	BitsBeforeBP uint8    `json:"bitsBeforeBP"`

	// Precision is the significant-digit budget the value was created for. It is
	// advisory and never changes a result.
	Precision int `json:"precision"`
}

// Zero returns the zero value of a format.
func Zero(f Format, precision int) Value {
	return Value{
		Limbs:        make([]uint32, f.LimbCount),
		Exponent:     f.TargetExponent(),
		BitsBeforeBP: f.BitsBeforeBP,
		Precision:    precision,
	}
}

// MaxValue returns the largest representable non-negative value of a format.
func MaxValue(f Format, precision int) Value {
	v := Zero(f, precision)
	fillMax(v.Limbs)
	return v
}

func fillMax(limbs []uint32) {
	for i := range limbs {
		limbs[i] = LimbMask
	}
	limbs[len(limbs)-1] = LimbMask &^ SignBit
}

// FromInt returns n as a value of format f.
func FromInt(f Format, n int64) (Value, error) {
	return FromRat(new(big.Rat).SetInt64(n), f, 0)
}

// Format returns the format the value was built for.
func (v Value) Format() Format {
	return Format{BitsBeforeBP: v.BitsBeforeBP, LimbCount: len(v.Limbs)}
}

// LimbCount returns the number of limbs.
func (v Value) LimbCount() int {
	return len(v.Limbs)
}

// IsZero reports whether every limb is zero.
func (v Value) IsZero() bool {
	for _, l := range v.Limbs {
		if l != 0 {
			return false
		}
	}
	return true
}

// Sign reports whether the value is non-negative.
func (v Value) Sign() bool {
	if len(v.Limbs) == 0 {
		return true
	}
	return v.Limbs[len(v.Limbs)-1]&SignBit == 0
}

// Clone returns a deep copy.
func (v Value) Clone() Value {
	c := v
	c.Limbs = append([]uint32(nil), v.Limbs...)
	return c
}

// Equal reports whether two values have identical limbs and exponent.
func (v Value) Equal(o Value) bool {
	if v.Exponent != o.Exponent || len(v.Limbs) != len(o.Limbs) {
		return false
	}
	for i := range v.Limbs {
		if v.Limbs[i] != o.Limbs[i] {
			return false
		}
	}
	return true
}

// Rat returns the exact value.
func (v Value) Rat() *big.Rat {
	mag, nonNegative := FromTwosComplement(v.Limbs)
	n := limbsToInt(mag)
	if !nonNegative {
		n.Neg(n)
	}

	r := new(big.Rat).SetInt(n)
	scale := new(big.Rat).SetInt(new(big.Int).Lsh(big.NewInt(1), uint(absInt(v.Exponent))))
	if v.Exponent < 0 {
		return r.Quo(r, scale)
	}
	return r.Mul(r, scale)
}

// Float64 returns the value rounded to float64.
func (v Value) Float64() float64 {
	return LimbsFloat64(v.Limbs, v.Exponent)
}

// String returns the value in decimal.
func (v Value) String() string {
	digits := (-v.Exponent)*30103/100000 + 1
	if digits > 40 {
		digits = 40
	}
	if digits < 1 {
		digits = 1
	}
	return v.Rat().FloatString(digits)
}

// LimbsFloat64 converts two's-complement limbs to float64 without allocating. Only
// the three most significant limbs contribute; the rest are below float64 precision.
func LimbsFloat64(limbs []uint32, exponent int) float64 {
	n := len(limbs)
	if n == 0 {
		return 0
	}
	negative := limbs[n-1]&SignBit != 0

	var f float64
	lowest := n - 3
	if lowest < 0 {
		lowest = 0
	}
	for i := n - 1; i >= lowest; i-- {
		l := limbs[i]
		if negative {
			l ^= LimbMask
		}
		f += math.Ldexp(float64(l), BitsPerLimb*i)
	}
	if negative {
		// Complement plus one; the one only matters when all limbs are kept.
		if lowest == 0 {
			f++
		}
		f = -f
	}
	return math.Ldexp(f, exponent)
}

func limbsToInt(limbs []uint32) *big.Int {
	n := new(big.Int)
	for i := len(limbs) - 1; i >= 0; i-- {
		n.Lsh(n, BitsPerLimb)
		n.Or(n, big.NewInt(int64(limbs[i])))
	}
	return n
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
