package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/cwbudde/msetgen/internal/engine"
)

// FSStore implements the Store interface using filesystem-based persistence.
// Sections are stored in a directory structure: <baseDir>/sections/<id>/
//
// Thread-safety: This implementation uses atomic file operations (rename)
// and does not require locks. Multiple goroutines can safely call methods
// concurrently.
type FSStore struct {
	baseDir string // Root directory for all section data (e.g., "./data")
}

// NewFSStore creates a new filesystem-based store.
// The baseDir will be created if it doesn't exist.
func NewFSStore(baseDir string) (*FSStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &FSStore{
		baseDir: baseDir,
	}, nil
}

// BaseDir returns the root directory of the store.
func (fs *FSStore) BaseDir() string {
	return fs.baseDir
}

func (fs *FSStore) sectionDir(id string) string {
	return filepath.Join(fs.baseDir, "sections", id)
}

func (fs *FSStore) recordPath(id string) string {
	return filepath.Join(fs.sectionDir(id), "section.json")
}

func (fs *FSStore) zValuesPath(id string) string {
	return filepath.Join(fs.sectionDir(id), "zvalues.bin")
}

// writeAtomic writes data to path through a temp file and a rename.
func writeAtomic(path string, data []byte) error {
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// SaveSection atomically saves a section and, when given, its z state.
// The z state is written first so a record never points at missing z values.
func (fs *FSStore) SaveSection(record *SectionRecord, zv *engine.ZValues) error {
	if record == nil {
		return fmt.Errorf("section record cannot be nil")
	}
	if err := record.Validate(); err != nil {
		return fmt.Errorf("invalid section record: %w", err)
	}

	dir := fs.sectionDir(record.ID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create section directory: %w", err)
	}

	if zv != nil {
		data, err := EncodeZValues(zv)
		if err != nil {
			return fmt.Errorf("failed to encode z values: %w", err)
		}
		if err := writeAtomic(fs.zValuesPath(record.ID), data); err != nil {
			return fmt.Errorf("failed to save z values: %w", err)
		}
		record.HasZValues = true
	} else {
		if err := os.Remove(fs.zValuesPath(record.ID)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove stale z values: %w", err)
		}
		record.HasZValues = false
	}

	record.UpdatedAt = time.Now()
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize section: %w", err)
	}
	if err := writeAtomic(fs.recordPath(record.ID), data); err != nil {
		return fmt.Errorf("failed to save section: %w", err)
	}

	slog.Debug("Section saved", "id", record.ID, "path", dir, "zvalues", zv != nil)
	return nil
}

// LoadSection retrieves the record of a section.
func (fs *FSStore) LoadSection(id string) (*SectionRecord, error) {
	if id == "" {
		return nil, fmt.Errorf("section id cannot be empty")
	}

	path := fs.recordPath(id)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, &NotFoundError{ID: id}
	} else if err != nil {
		return nil, fmt.Errorf("failed to read section file: %w", err)
	}

	var record SectionRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to deserialize section: %w", err)
	}

	slog.Debug("Section loaded", "id", id, "path", path)
	return &record, nil
}

// LoadZValues retrieves the z state saved with a section.
func (fs *FSStore) LoadZValues(id string) (*engine.ZValues, error) {
	if id == "" {
		return nil, fmt.Errorf("section id cannot be empty")
	}

	data, err := os.ReadFile(fs.zValuesPath(id))
	if os.IsNotExist(err) {
		return nil, &NotFoundError{ID: id}
	} else if err != nil {
		return nil, fmt.Errorf("failed to read z values: %w", err)
	}

	zv, err := DecodeZValues(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode z values for %s: %w", id, err)
	}
	return zv, nil
}

// ListSections returns metadata for all stored sections, most recent first.
func (fs *FSStore) ListSections() ([]SectionInfo, error) {
	sectionsDir := filepath.Join(fs.baseDir, "sections")

	entries, err := os.ReadDir(sectionsDir)
	if os.IsNotExist(err) {
		return []SectionInfo{}, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to read sections directory: %w", err)
	}

	infos := []SectionInfo{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		id := entry.Name()
		if _, err := os.Stat(fs.recordPath(id)); os.IsNotExist(err) {
			continue
		}

		record, err := fs.LoadSection(id)
		if err != nil {
			slog.Warn("Failed to load section for listing", "id", id, "error", err)
			continue
		}
		infos = append(infos, record.ToInfo())
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].UpdatedAt.After(infos[j].UpdatedAt)
	})

	slog.Debug("Listed sections", "count", len(infos))
	return infos, nil
}

// DeleteSection removes the section and all associated artifacts.
func (fs *FSStore) DeleteSection(id string) error {
	if id == "" {
		return fmt.Errorf("section id cannot be empty")
	}

	dir := fs.sectionDir(id)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return &NotFoundError{ID: id}
	} else if err != nil {
		return fmt.Errorf("failed to stat section directory: %w", err)
	}

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove section directory: %w", err)
	}

	slog.Debug("Section deleted", "id", id, "path", dir)
	return nil
}
