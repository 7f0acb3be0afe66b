package store

import (
	"fmt"

	"github.com/cwbudde/msetgen/internal/engine"
)

// PrepareDeepen loads section id and builds the request that continues it to target.
// Only depth-first sections saved with their z values can be deepened.
func PrepareDeepen(s Store, id string, target uint32) (*SectionRecord, *engine.Request, error) {
	prev, err := s.LoadSection(id)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load section %s: %w", id, err)
	}
	if prev.Variant != engine.DepthFirst || !prev.HasZValues {
		return nil, nil, fmt.Errorf("section %s cannot be deepened: %w", prev.ID, engine.ErrResumeNotSupported)
	}

	zv, err := s.LoadZValues(prev.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load z values: %w", err)
	}
	req, err := engine.Resume(&prev.Request, zv, target)
	if err != nil {
		return nil, nil, err
	}
	if err := prev.IsCompatible(req); err != nil {
		return nil, nil, err
	}
	return prev, req, nil
}
