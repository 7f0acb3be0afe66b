// Package engine turns tile requests into escape-time counts. It owns the sample point
// tables, the lane-group iteration state machine and the breadth-first and
// depth-first section generators built on the vector kernel.
package engine

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/cwbudde/msetgen/internal/fixed"
)

// BlockPosition locates a tile in block-size units.
type BlockPosition struct {
	X *big.Int `json:"x"`
	Y *big.Int `json:"y"`
}

// NewBlockPosition returns the block at (x, y).
func NewBlockPosition(x, y int64) BlockPosition {
	return BlockPosition{X: big.NewInt(x), Y: big.NewInt(y)}
}

func (b BlockPosition) String() string {
	return fmt.Sprintf("(%s, %s)", intString(b.X), intString(b.Y))
}

func intString(n *big.Int) string {
	if n == nil {
		return "0"
	}
	return n.String()
}

// Request describes one tile.
type Request struct {
	BlockPosition BlockPosition `json:"blockPosition"`

	// PositionX and PositionY are the map coordinates of the tile's first sample.
	PositionX fixed.RValue `json:"positionX"`
	PositionY fixed.RValue `json:"positionY"`

	// Delta is the distance between neighbouring samples on both axes.
	Delta fixed.RValue `json:"delta"`

	Width            int    `json:"width"`
	Height           int    `json:"height"`
	TargetIterations uint32 `json:"targetIterations"`
	Threshold        uint32 `json:"threshold"`
	LimbCount        int    `json:"limbCount"`
	Precision        int    `json:"precision"`

	// ZValues, when set, resumes every point from a previous run. The output buffers
	// must then hold that run's counts and escape flags.
	ZValues *ZValues `json:"-"`
}

// Validate checks the request against a generator's format and width.
func (r *Request) Validate(f fixed.Format, width int) error {
	if r.LimbCount != f.LimbCount {
		return &fixed.FormatMismatchError{Op: "generate section", Field: "limb count", Expected: f.LimbCount, Actual: r.LimbCount}
	}
	if r.Width != width {
		return &fixed.FormatMismatchError{Op: "generate section", Field: "width", Expected: width, Actual: r.Width}
	}
	if r.Height < 1 {
		return fmt.Errorf("height must be positive, got %d", r.Height)
	}
	if r.TargetIterations < 1 {
		return fmt.Errorf("target iterations must be positive, got %d", r.TargetIterations)
	}
	if r.Threshold < 1 {
		return fmt.Errorf("threshold must be positive, got %d", r.Threshold)
	}
	if r.ZValues != nil {
		if err := r.ZValues.check(f, r.Width, r.Height); err != nil {
			return err
		}
	}
	return nil
}

// Buffers are the caller-owned outputs of one section, in row-major order.
type Buffers struct {
	Counts           []uint32 `json:"counts"`
	EscapeVelocities []uint32 `json:"escapeVelocities"`
	HasEscaped       []bool   `json:"hasEscaped"`
}

// NewBuffers allocates buffers for a width x height tile.
func NewBuffers(width, height int) *Buffers {
	n := width * height
	return &Buffers{
		Counts:           make([]uint32, n),
		EscapeVelocities: make([]uint32, n),
		HasEscaped:       make([]bool, n),
	}
}

// Reset zeroes every buffer.
func (b *Buffers) Reset() {
	clear(b.Counts)
	clear(b.EscapeVelocities)
	clear(b.HasEscaped)
}

func (b *Buffers) check(n int) error {
	if len(b.Counts) < n || len(b.EscapeVelocities) < n || len(b.HasEscaped) < n {
		return fmt.Errorf("output buffers hold fewer than %d points", n)
	}
	return nil
}

// ZValues is the per-point z state of a tile, limbs stored point by point.
type ZValues struct {
	LimbCount int      `json:"limbCount"`
	Width     int      `json:"width"`
	Height    int      `json:"height"`
	Re        []uint32 `json:"re"`
	Im        []uint32 `json:"im"`
}

// NewZValues allocates zeroed z state.
func NewZValues(limbCount, width, height int) *ZValues {
	n := limbCount * width * height
	return &ZValues{
		LimbCount: limbCount,
		Width:     width,
		Height:    height,
		Re:        make([]uint32, n),
		Im:        make([]uint32, n),
	}
}

// Point returns the limbs of point i.
func (z *ZValues) Point(i int) (re, im []uint32) {
	off := i * z.LimbCount
	return z.Re[off : off+z.LimbCount], z.Im[off : off+z.LimbCount]
}

// Clone returns a deep copy.
func (z *ZValues) Clone() *ZValues {
	c := *z
	c.Re = append([]uint32(nil), z.Re...)
	c.Im = append([]uint32(nil), z.Im...)
	return &c
}

func (z *ZValues) check(f fixed.Format, width, height int) error {
	if z.LimbCount != f.LimbCount {
		return &fixed.FormatMismatchError{Op: "resume", Field: "limb count", Expected: f.LimbCount, Actual: z.LimbCount}
	}
	if z.Width != width || z.Height != height {
		return fmt.Errorf("z values are %dx%d, tile is %dx%d", z.Width, z.Height, width, height)
	}
	n := z.LimbCount * width * height
	if len(z.Re) != n || len(z.Im) != n {
		return fmt.Errorf("z values hold %d limbs, need %d", len(z.Re), n)
	}
	return nil
}

// Response summarizes one generated section.
type Response struct {
	// RequestCompleted is false for skipped sections.
	RequestCompleted bool `json:"requestCompleted"`
	Skipped          bool `json:"skipped"`

	AllRowsHaveEscaped bool `json:"allRowsHaveEscaped"`

	// RowHasEscaped is compressed with CompressFlags.
	RowHasEscaped []bool `json:"rowHasEscaped"`

	// ZValues is the updated z state; only the depth-first generator fills it.
	ZValues *ZValues `json:"-"`

	OpCounts fixed.OpCounts `json:"opCounts"`
	Backend  string         `json:"backend"`
	Elapsed  time.Duration  `json:"elapsed"`
}

// CompressFlags returns [true] when every flag is set, [false] when none is, and
// flags otherwise.
func CompressFlags(flags []bool) []bool {
	if len(flags) == 0 {
		return []bool{false}
	}
	first := flags[0]
	for _, f := range flags[1:] {
		if f != first {
			return flags
		}
	}
	return []bool{first}
}

// ExpandFlags reverses CompressFlags for n rows.
func ExpandFlags(flags []bool, n int) []bool {
	if len(flags) == n {
		return flags
	}
	out := make([]bool, n)
	if len(flags) == 1 && flags[0] {
		for i := range out {
			out[i] = true
		}
	}
	return out
}

// SkipPolicy decides whether a tile is generated at all.
type SkipPolicy int

const (
	// SkipNone generates every tile.
	SkipNone SkipPolicy = iota

	// SkipPositiveBlocks skips tiles whose first sample has non-negative real and
	// imaginary parts.
	SkipPositiveBlocks

	// SkipLowDetailBlocks skips tiles more than one block from the real axis or
	// three blocks from the imaginary axis.
	SkipLowDetailBlocks
)

var skipPolicyNames = map[SkipPolicy]string{
	SkipNone:            "none",
	SkipPositiveBlocks:  "positive",
	SkipLowDetailBlocks: "low-detail",
}

func (p SkipPolicy) String() string {
	if s, ok := skipPolicyNames[p]; ok {
		return s
	}
	return fmt.Sprintf("SkipPolicy(%d)", int(p))
}

// ParseSkipPolicy parses "none", "positive" or "low-detail".
func ParseSkipPolicy(s string) (SkipPolicy, error) {
	for p, name := range skipPolicyNames {
		if strings.EqualFold(s, name) {
			return p, nil
		}
	}
	return SkipNone, fmt.Errorf("unknown skip policy: %q", s)
}

// ShouldSkip reports whether a tile at block with first sample (cx, cy) is skipped.
func (p SkipPolicy) ShouldSkip(block BlockPosition, cx, cy fixed.Value) bool {
	switch p {
	case SkipPositiveBlocks:
		return cx.Sign() && cy.Sign()
	case SkipLowDetailBlocks:
		one, three := big.NewInt(1), big.NewInt(3)
		return absCmp(block.Y, one) > 0 || absCmp(block.X, three) > 0
	default:
		return false
	}
}

func absCmp(n, limit *big.Int) int {
	if n == nil {
		return -1
	}
	return n.CmpAbs(limit)
}
