package store

import (
	"fmt"
	"time"

	"github.com/cwbudde/msetgen/internal/engine"
	"github.com/cwbudde/msetgen/internal/fixed"
)

// SectionRecord is a generated section as persisted: the request that produced it,
// its output buffers and the response summary. The z state is stored separately.
type SectionRecord struct {
	// ID is the unique identifier of the section
	ID string `json:"id"`

	// Variant is the generator that produced the section
	Variant engine.Variant `json:"variant"`

	// Request is needed to deepen the section and to check compatibility
	Request engine.Request `json:"request"`

	Counts           []uint32 `json:"counts"`
	EscapeVelocities []uint32 `json:"escapeVelocities"`
	HasEscaped       []bool   `json:"hasEscaped"`

	Skipped            bool           `json:"skipped"`
	RowHasEscaped      []bool         `json:"rowHasEscaped"`
	AllRowsHaveEscaped bool           `json:"allRowsHaveEscaped"`
	OpCounts           fixed.OpCounts `json:"opCounts"`
	Backend            string         `json:"backend"`
	Elapsed            time.Duration  `json:"elapsed"`

	// HasZValues is set when zvalues.bin was saved with the record
	HasZValues bool `json:"hasZValues"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SectionInfo contains metadata about a section without its buffers.
// Used for listing sections without loading every count.
type SectionInfo struct {
	ID               string         `json:"id"`
	Variant          engine.Variant `json:"variant"`
	Block            string         `json:"block"`
	Width            int            `json:"width"`
	Height           int            `json:"height"`
	TargetIterations uint32         `json:"targetIterations"`
	LimbCount        int            `json:"limbCount"`
	Skipped          bool           `json:"skipped"`
	EscapedFraction  float64        `json:"escapedFraction"`
	HasZValues       bool           `json:"hasZValues"`
	UpdatedAt        time.Time      `json:"updatedAt"`
}

// NewSectionRecord creates a record from a finished generation.
func NewSectionRecord(id string, variant engine.Variant, req *engine.Request, out *engine.Buffers, resp *engine.Response) *SectionRecord {
	now := time.Now()
	r := *req
	r.ZValues = nil

	rec := &SectionRecord{
		ID:                 id,
		Variant:            variant,
		Request:            r,
		Skipped:            resp.Skipped,
		RowHasEscaped:      resp.RowHasEscaped,
		AllRowsHaveEscaped: resp.AllRowsHaveEscaped,
		OpCounts:           resp.OpCounts,
		Backend:            resp.Backend,
		Elapsed:            resp.Elapsed,
		HasZValues:         resp.ZValues != nil,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if !resp.Skipped {
		n := req.Width * req.Height
		rec.Counts = append([]uint32(nil), out.Counts[:n]...)
		rec.EscapeVelocities = append([]uint32(nil), out.EscapeVelocities[:n]...)
		rec.HasEscaped = append([]bool(nil), out.HasEscaped[:n]...)
	}
	return rec
}

// Buffers returns a copy of the stored output buffers.
func (r *SectionRecord) Buffers() *engine.Buffers {
	out := engine.NewBuffers(r.Request.Width, r.Request.Height)
	copy(out.Counts, r.Counts)
	copy(out.EscapeVelocities, r.EscapeVelocities)
	copy(out.HasEscaped, r.HasEscaped)
	return out
}

// EscapedFraction returns the share of points that escaped.
func (r *SectionRecord) EscapedFraction() float64 {
	if len(r.HasEscaped) == 0 {
		return 0
	}
	n := 0
	for _, e := range r.HasEscaped {
		if e {
			n++
		}
	}
	return float64(n) / float64(len(r.HasEscaped))
}

// ToInfo converts a full SectionRecord to SectionInfo (metadata only).
func (r *SectionRecord) ToInfo() SectionInfo {
	return SectionInfo{
		ID:               r.ID,
		Variant:          r.Variant,
		Block:            r.Request.BlockPosition.String(),
		Width:            r.Request.Width,
		Height:           r.Request.Height,
		TargetIterations: r.Request.TargetIterations,
		LimbCount:        r.Request.LimbCount,
		Skipped:          r.Skipped,
		EscapedFraction:  r.EscapedFraction(),
		HasZValues:       r.HasZValues,
		UpdatedAt:        r.UpdatedAt,
	}
}

// Validate checks if the record has valid data.
// Returns an error if any required field is missing or invalid.
func (r *SectionRecord) Validate() error {
	if r.ID == "" {
		return &ValidationError{Field: "ID", Reason: "cannot be empty"}
	}
	if r.Request.Width <= 0 {
		return &ValidationError{Field: "Request.Width", Reason: "must be positive"}
	}
	if r.Request.Height <= 0 {
		return &ValidationError{Field: "Request.Height", Reason: "must be positive"}
	}
	if r.Request.LimbCount <= 0 {
		return &ValidationError{Field: "Request.LimbCount", Reason: "must be positive"}
	}
	if r.Request.TargetIterations == 0 {
		return &ValidationError{Field: "Request.TargetIterations", Reason: "must be positive"}
	}
	if r.UpdatedAt.IsZero() {
		return &ValidationError{Field: "UpdatedAt", Reason: "cannot be zero"}
	}
	if r.Skipped {
		return nil
	}

	n := r.Request.Width * r.Request.Height
	if len(r.Counts) != n {
		return &ValidationError{
			Field:  "Counts",
			Reason: fmt.Sprintf("length mismatch: expected %d for a %dx%d section", n, r.Request.Width, r.Request.Height),
		}
	}
	if len(r.EscapeVelocities) != n {
		return &ValidationError{Field: "EscapeVelocities", Reason: fmt.Sprintf("length mismatch: expected %d", n)}
	}
	if len(r.HasEscaped) != n {
		return &ValidationError{Field: "HasEscaped", Reason: fmt.Sprintf("length mismatch: expected %d", n)}
	}
	return nil
}

// ValidationError represents a section validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}

// IsCompatible checks if this section can be deepened with req: everything but the
// target iteration count must match, and the target must not go down.
func (r *SectionRecord) IsCompatible(req *engine.Request) error {
	prev := &r.Request
	checks := []struct {
		field            string
		expected, actual string
	}{
		{"BlockPosition", prev.BlockPosition.String(), req.BlockPosition.String()},
		{"PositionX", prev.PositionX.String(), req.PositionX.String()},
		{"PositionY", prev.PositionY.String(), req.PositionY.String()},
		{"Delta", prev.Delta.String(), req.Delta.String()},
		{"Width", fmt.Sprintf("%d", prev.Width), fmt.Sprintf("%d", req.Width)},
		{"Height", fmt.Sprintf("%d", prev.Height), fmt.Sprintf("%d", req.Height)},
		{"LimbCount", fmt.Sprintf("%d", prev.LimbCount), fmt.Sprintf("%d", req.LimbCount)},
		{"Threshold", fmt.Sprintf("%d", prev.Threshold), fmt.Sprintf("%d", req.Threshold)},
	}
	for _, c := range checks {
		if c.expected != c.actual {
			return &CompatibilityError{Field: c.field, Expected: c.expected, Actual: c.actual}
		}
	}
	if req.TargetIterations < prev.TargetIterations {
		return &CompatibilityError{
			Field:    "TargetIterations",
			Expected: fmt.Sprintf(">= %d", prev.TargetIterations),
			Actual:   fmt.Sprintf("%d", req.TargetIterations),
		}
	}
	return nil
}

// CompatibilityError represents a section compatibility error.
type CompatibilityError struct {
	Field    string
	Expected string
	Actual   string
}

func (e *CompatibilityError) Error() string {
	return "compatibility error: " + e.Field + " mismatch (expected " + e.Expected + ", got " + e.Actual + ")"
}
