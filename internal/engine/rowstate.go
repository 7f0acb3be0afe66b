package engine

import "github.com/cwbudde/msetgen/internal/lanes"

// RowState is the per-point bookkeeping for the row being iterated. Arrays are padded
// to whole lane groups; padding lanes start done.
type RowState struct {
	width       int
	vectorCount int

	Counts           []uint32
	EscapeVelocities []uint32
	HasEscaped       []bool
	Done             []bool

	// InPlay lists the lane groups with at least one point not done. It only shrinks
	// while a row is iterated.
	InPlay []int

	// Narrow lists the half groups of InPlay.
	Narrow []int

	doneMask    []lanes.Mask
	escapedMask []lanes.Mask
	newlyDone   []lanes.Mask

	UsedCalcs   int64
	UnusedCalcs int64
}

// NewRowState returns state for rows of width points.
func NewRowState(width int) *RowState {
	vc := (width + lanes.Width - 1) / lanes.Width
	n := vc * lanes.Width
	return &RowState{
		width:            width,
		vectorCount:      vc,
		Counts:           make([]uint32, n),
		EscapeVelocities: make([]uint32, n),
		HasEscaped:       make([]bool, n),
		Done:             make([]bool, n),
		InPlay:           make([]int, 0, vc),
		Narrow:           make([]int, 0, 2*vc),
		doneMask:         make([]lanes.Mask, vc),
		escapedMask:      make([]lanes.Mask, vc),
		newlyDone:        make([]lanes.Mask, vc),
	}
}

// Reset starts a fresh row: nothing counted, every group in play.
func (s *RowState) Reset() {
	clear(s.Counts)
	clear(s.EscapeVelocities)
	clear(s.HasEscaped)
	clear(s.Done)
	clear(s.escapedMask)
	clear(s.newlyDone)
	clear(s.doneMask)
	s.markPadding()
	s.rebuildInPlay()
}

// Load starts a row from a previous run's results. Points that escaped or already
// reached target are done.
func (s *RowState) Load(counts []uint32, hasEscaped []bool, velocities []uint32, target uint32) {
	s.Reset()
	for i := 0; i < s.width; i++ {
		s.Counts[i] = counts[i]
		s.HasEscaped[i] = hasEscaped[i]
		s.EscapeVelocities[i] = velocities[i]

		g, lane := i/lanes.Width, uint(i%lanes.Width)
		if hasEscaped[i] {
			s.escapedMask[g] |= 1 << lane
		}
		if hasEscaped[i] || counts[i] >= target {
			s.Done[i] = true
			s.doneMask[g] |= 1 << lane
		}
	}
	s.rebuildInPlay()
}

func (s *RowState) markPadding() {
	for i := s.width; i < len(s.Done); i++ {
		s.Done[i] = true
		s.doneMask[i/lanes.Width] |= 1 << uint(i%lanes.Width)
	}
}

func (s *RowState) rebuildInPlay() {
	s.InPlay = s.InPlay[:0]
	for g, m := range s.doneMask {
		if !m.All() {
			s.InPlay = append(s.InPlay, g)
		}
	}
	s.rebuildNarrow()
}

func (s *RowState) rebuildNarrow() {
	s.Narrow = s.Narrow[:0]
	for _, g := range s.InPlay {
		s.Narrow = append(s.Narrow, 2*g, 2*g+1)
	}
}

// Update applies one iteration's escape masks to groups. Points not yet done get
// their count incremented and their escape flag set; points already done are frozen
// and count as unused calculations. A point becomes done when it has escaped or its
// count reached target.
func (s *RowState) Update(groups []int, escaped []lanes.Mask, target uint32) {
	for _, g := range groups {
		done := s.doneMask[g]
		s.newlyDone[g] = 0
		s.UnusedCalcs += int64(done.Count())

		active := ^done
		s.escapedMask[g] |= escaped[g] & active

		base := g * lanes.Width
		for lane := 0; lane < lanes.Width; lane++ {
			if !active.Lane(lane) {
				continue
			}
			i := base + lane
			s.Counts[i]++
			s.UsedCalcs++
			if escaped[g].Lane(lane) {
				s.HasEscaped[i] = true
			}
			if s.HasEscaped[i] || s.Counts[i] >= target {
				s.Done[i] = true
				s.newlyDone[g] |= 1 << uint(lane)
			}
		}
		s.doneMask[g] |= s.newlyDone[g]
	}
}

// Compact drops fully done groups from InPlay, swapping the last entry into the gap.
func (s *RowState) Compact() {
	removed := false
	for k := len(s.InPlay) - 1; k >= 0; k-- {
		if s.doneMask[s.InPlay[k]].All() {
			last := len(s.InPlay) - 1
			s.InPlay[k] = s.InPlay[last]
			s.InPlay = s.InPlay[:last]
			removed = true
		}
	}
	if removed {
		s.rebuildNarrow()
	}
}

// GroupDone reports whether every point of group g is done.
func (s *RowState) GroupDone(g int) bool {
	return s.doneMask[g].All()
}

// NewlyDone returns the lanes of g that became done in the last Update.
func (s *RowState) NewlyDone(g int) lanes.Mask {
	return s.newlyDone[g]
}

// EscapedLanes returns the lanes of g that have escaped.
func (s *RowState) EscapedLanes(g int) lanes.Mask {
	return s.escapedMask[g]
}

// AllEscaped reports whether every point of the row escaped.
func (s *RowState) AllEscaped() bool {
	for i := 0; i < s.width; i++ {
		if !s.HasEscaped[i] {
			return false
		}
	}
	return true
}

// CopyTo writes the row's results into the output buffers at offset.
func (s *RowState) CopyTo(out *Buffers, offset int) {
	copy(out.Counts[offset:offset+s.width], s.Counts[:s.width])
	copy(out.EscapeVelocities[offset:offset+s.width], s.EscapeVelocities[:s.width])
	copy(out.HasEscaped[offset:offset+s.width], s.HasEscaped[:s.width])
}
