package store

import "github.com/cwbudde/msetgen/internal/engine"

// Store defines the interface for section persistence operations.
// Implementations must be thread-safe and handle concurrent access gracefully.
//
// Error handling conventions:
//   - Return nil error on success
//   - Return ErrNotFound if the section doesn't exist (for Load/Delete)
//   - Return descriptive errors for I/O, serialization, or validation failures
//   - Wrap underlying errors with context using fmt.Errorf("context: %w", err)
type Store interface {
	// SaveSection atomically saves a generated section. zv may be nil; when set it
	// is stored next to the record so the section can be deepened later. An existing
	// section with the same ID is overwritten.
	SaveSection(record *SectionRecord, zv *engine.ZValues) error

	// LoadSection retrieves the record of a section.
	// Returns ErrNotFound if no section exists for this ID.
	LoadSection(id string) (*SectionRecord, error)

	// LoadZValues retrieves the z state saved with a section.
	// Returns ErrNotFound if the section has no z state.
	LoadZValues(id string) (*engine.ZValues, error)

	// ListSections returns metadata for all stored sections.
	// The returned slice may be empty if no sections exist.
	ListSections() ([]SectionInfo, error)

	// DeleteSection removes the section and all associated artifacts:
	//   - section.json
	//   - zvalues.bin
	//   - trace.jsonl
	//
	// Returns ErrNotFound if no section exists for this ID.
	DeleteSection(id string) error
}

// ErrNotFound is returned when a requested section does not exist.
// Use errors.Is(err, ErrNotFound) to check for this error.
var ErrNotFound = &NotFoundError{}

// NotFoundError represents a missing section error.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return "section not found: " + e.ID
	}
	return "section not found"
}

func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}
