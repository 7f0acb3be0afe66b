package engine

import (
	"fmt"

	"github.com/cwbudde/msetgen/internal/fixed"
	"github.com/cwbudde/msetgen/internal/kernel"
	"github.com/cwbudde/msetgen/internal/lanes"
)

// Iterator runs z = z^2 + c over the in-play lane groups of one row.
type Iterator struct {
	vm *kernel.VecMath

	Crs *fixed.Deck
	Cis *fixed.Deck
	Zrs *fixed.Deck
	Zis *fixed.Deck

	zrSq  *fixed.Deck
	ziSq  *fixed.Deck
	sumSq *fixed.Deck
	tmp   *fixed.Deck

	// ZValuesAreZero makes the next Iterate set z = c instead of running the
	// recurrence.
	ZValuesAreZero bool

	squaresValid bool
	escaped      []lanes.Mask
}

// NewIterator allocates decks shaped for vm.
func NewIterator(vm *kernel.VecMath) *Iterator {
	return &Iterator{
		vm:             vm,
		Crs:            vm.NewDeck(),
		Cis:            vm.NewDeck(),
		Zrs:            vm.NewDeck(),
		Zis:            vm.NewDeck(),
		zrSq:           vm.NewDeck(),
		ziSq:           vm.NewDeck(),
		sumSq:          vm.NewDeck(),
		tmp:            vm.NewDeck(),
		ZValuesAreZero: true,
		escaped:        make([]lanes.Mask, vm.VectorCount()),
	}
}

// ResetZ zeroes z for a new row.
func (it *Iterator) ResetZ() {
	it.Zrs.Clear()
	it.Zis.Clear()
	it.ZValuesAreZero = true
	it.squaresValid = false
}

// ResumeZ marks z as loaded from a previous run; the next Iterate recomputes its
// squares before stepping.
func (it *Iterator) ResumeZ() {
	it.Zrs.IsZero = false
	it.Zis.IsZero = false
	it.ZValuesAreZero = false
	it.squaresValid = false
}

// Iterate advances every group in inPlay by one step and returns, per group, the
// lanes whose |z|^2 reached the threshold. narrow must be the half-group twin of
// inPlay. The returned slice is reused by the next call.
func (it *Iterator) Iterate(inPlay, narrow []int) ([]lanes.Mask, error) {
	if it.ZValuesAreZero {
		for _, g := range inPlay {
			for l := 0; l < it.vm.Format().LimbCount; l++ {
				*it.Zrs.Group(l, g) = *it.Crs.Group(l, g)
				*it.Zis.Group(l, g) = *it.Cis.Group(l, g)
			}
		}
		it.Zrs.IsZero = it.Crs.IsZero
		it.Zis.IsZero = it.Cis.IsZero
		it.ZValuesAreZero = false
	} else {
		if !it.squaresValid {
			if err := it.squares(narrow); err != nil {
				return nil, err
			}
		}
		if err := it.step(inPlay, narrow); err != nil {
			return nil, err
		}
	}

	if err := it.squares(narrow); err != nil {
		return nil, err
	}
	it.squaresValid = true

	if err := it.vm.Add(it.zrSq, it.ziSq, it.sumSq, inPlay); err != nil {
		return nil, fmt.Errorf("failed to sum squares: %w", err)
	}
	if err := it.vm.IsGreaterOrEqThanThreshold(it.sumSq, inPlay, it.escaped); err != nil {
		return nil, fmt.Errorf("failed to compare against threshold: %w", err)
	}
	return it.escaped, nil
}

// step computes z' from z and the squares of z:
//
//	zi' = (zr + zi)^2 - zr^2 - zi^2 + ci
//	zr' = zr^2 - zi^2 + cr
func (it *Iterator) step(inPlay, narrow []int) error {
	vm := it.vm
	if err := vm.AddThenSquare(it.Zrs, it.Zis, it.tmp, narrow); err != nil {
		return err
	}
	if err := vm.Sub(it.tmp, it.zrSq, it.tmp, inPlay); err != nil {
		return err
	}
	if err := vm.Sub(it.tmp, it.ziSq, it.tmp, inPlay); err != nil {
		return err
	}
	if err := vm.Add(it.tmp, it.Cis, it.Zis, inPlay); err != nil {
		return err
	}

	if err := vm.Sub(it.zrSq, it.ziSq, it.tmp, inPlay); err != nil {
		return err
	}
	return vm.Add(it.tmp, it.Crs, it.Zrs, inPlay)
}

func (it *Iterator) squares(narrow []int) error {
	if err := it.vm.Square(it.Zrs, it.zrSq, narrow); err != nil {
		return fmt.Errorf("failed to square real part: %w", err)
	}
	if err := it.vm.Square(it.Zis, it.ziSq, narrow); err != nil {
		return fmt.Errorf("failed to square imaginary part: %w", err)
	}
	return nil
}
