package fixed

import (
	"fmt"

	"github.com/cwbudde/msetgen/internal/lanes"
)

// Deck stores many values of one format limb-major: all limb-0 words, then all
// limb-1 words, and so on. Each limb row is padded to a multiple of the lane width so
// lane groups can be addressed without bounds juggling.
type Deck struct {
	format     Format
	valueCount int
	stride     int
	precision  int

	// Limbs holds LimbCount rows of stride words each.
	Limbs []uint32

	// IsZero is an advisory hint that every value is zero.
	IsZero bool
}

// NewDeck returns a deck of valueCount zero values.
func NewDeck(f Format, valueCount int, precision int) *Deck {
	groups := (valueCount + lanes.Width - 1) / lanes.Width
	stride := groups * lanes.Width
	return &Deck{
		format:     f,
		valueCount: valueCount,
		stride:     stride,
		precision:  precision,
		Limbs:      make([]uint32, stride*f.LimbCount),
		IsZero:     true,
	}
}

// DeckFromValues returns a deck holding vals, which must all share format f.
func DeckFromValues(f Format, vals []Value) (*Deck, error) {
	precision := 0
	if len(vals) > 0 {
		precision = vals[0].Precision
	}
	d := NewDeck(f, len(vals), precision)
	for i, v := range vals {
		if err := d.SetValue(i, v); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Format returns the deck's format.
func (d *Deck) Format() Format {
	return d.format
}

// ValueCount returns the number of values, excluding padding.
func (d *Deck) ValueCount() int {
	return d.valueCount
}

// VectorCount returns the number of lane groups per limb row.
func (d *Deck) VectorCount() int {
	return d.stride / lanes.Width
}

// Stride returns the padded length of a limb row.
func (d *Deck) Stride() int {
	return d.stride
}

// Row returns the words of one limb position, padding included.
func (d *Deck) Row(limb int) []uint32 {
	return d.Limbs[limb*d.stride : (limb+1)*d.stride]
}

// Group returns lane group g of limb position limb. The group aliases the deck.
func (d *Deck) Group(limb, g int) *lanes.Group {
	off := limb*d.stride + g*lanes.Width
	return (*lanes.Group)(d.Limbs[off : off+lanes.Width])
}

// Value returns value i as a fresh Value.
func (d *Deck) Value(i int) Value {
	v := Zero(d.format, d.precision)
	for l := 0; l < d.format.LimbCount; l++ {
		v.Limbs[l] = d.Limbs[l*d.stride+i]
	}
	return v
}

// LimbsAt copies value i's limbs into dst without allocating. dst must have
// LimbCount elements.
func (d *Deck) LimbsAt(i int, dst []uint32) {
	for l := range dst {
		dst[l] = d.Limbs[l*d.stride+i]
	}
}

// SetValue stores v at index i.
func (d *Deck) SetValue(i int, v Value) error {
	if len(v.Limbs) != d.format.LimbCount {
		return &FormatMismatchError{Op: "set value", Field: "limb count", Expected: d.format.LimbCount, Actual: len(v.Limbs)}
	}
	if v.Exponent != d.format.TargetExponent() {
		return &FormatMismatchError{Op: "set value", Field: "exponent", Expected: d.format.TargetExponent(), Actual: v.Exponent}
	}
	if i < 0 || i >= d.valueCount {
		return fmt.Errorf("value index %d out of range [0, %d)", i, d.valueCount)
	}
	for l, limb := range v.Limbs {
		d.Limbs[l*d.stride+i] = limb
	}
	if !v.IsZero() {
		d.IsZero = false
	}
	return nil
}

// Fill sets every value, padding included, to v.
func (d *Deck) Fill(v Value) error {
	if len(v.Limbs) != d.format.LimbCount {
		return &FormatMismatchError{Op: "fill", Field: "limb count", Expected: d.format.LimbCount, Actual: len(v.Limbs)}
	}
	for l, limb := range v.Limbs {
		row := d.Row(l)
		for i := range row {
			row[i] = limb
		}
	}
	d.IsZero = v.IsZero()
	return nil
}

// UpdateFrom copies the contents of src, which must have the same shape.
func (d *Deck) UpdateFrom(src *Deck) error {
	if src.format != d.format || src.stride != d.stride {
		return &FormatMismatchError{Op: "update deck", Field: "shape", Expected: d.stride * d.format.LimbCount, Actual: src.stride * src.format.LimbCount}
	}
	copy(d.Limbs, src.Limbs)
	d.IsZero = src.IsZero
	return nil
}

// Clone returns a deep copy.
func (d *Deck) Clone() *Deck {
	c := *d
	c.Limbs = append([]uint32(nil), d.Limbs...)
	return &c
}

// Clear sets every value to zero.
func (d *Deck) Clear() {
	clear(d.Limbs)
	d.IsZero = true
}

// Values returns every value, padding excluded.
func (d *Deck) Values() []Value {
	out := make([]Value, d.valueCount)
	for i := range out {
		out[i] = d.Value(i)
	}
	return out
}
