package store

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cwbudde/msetgen/internal/engine"
	"github.com/cwbudde/msetgen/internal/fixed"
)

// setupTestStore creates a temporary directory and returns an FSStore for testing.
func setupTestStore(t *testing.T) (*FSStore, string) {
	t.Helper()

	tempDir := t.TempDir()
	store, err := NewFSStore(tempDir)
	if err != nil {
		t.Fatalf("Failed to create test store: %v", err)
	}

	return store, tempDir
}

func testRequest(width, height int, target uint32) *engine.Request {
	return &engine.Request{
		BlockPosition:    engine.NewBlockPosition(-1, 0),
		PositionX:        fixed.NewRValue(big.NewInt(-3), -1, 0),
		PositionY:        fixed.NewRValue(big.NewInt(-1), -2, 0),
		Delta:            fixed.NewRValue(big.NewInt(1), -6, 0),
		Width:            width,
		Height:           height,
		TargetIterations: target,
		Threshold:        4,
		LimbCount:        2,
	}
}

// createTestSection creates a section record with test data.
func createTestSection(id string) *SectionRecord {
	req := testRequest(4, 2, 100)
	out := engine.NewBuffers(req.Width, req.Height)
	for i := range out.Counts {
		out.Counts[i] = uint32(10 * i)
		out.HasEscaped[i] = i%2 == 1
		if out.HasEscaped[i] {
			out.EscapeVelocities[i] = 5000
		}
	}
	resp := &engine.Response{
		RequestCompleted: true,
		RowHasEscaped:    []bool{true, true},
		OpCounts:         fixed.OpCounts{Multiplications: 42, UsedCalcs: 8},
		Backend:          "generic",
		Elapsed:          3 * time.Millisecond,
	}
	return NewSectionRecord(id, engine.DepthFirst, req, out, resp)
}

func createTestZValues(limbs, width, height int) *engine.ZValues {
	zv := engine.NewZValues(limbs, width, height)
	for i := range zv.Re {
		zv.Re[i] = uint32(i) * 0x01010101 & fixed.LimbMask
		zv.Im[i] = fixed.LimbMask - uint32(i)
	}
	return zv
}

func TestNewFSStore(t *testing.T) {
	tempDir := filepath.Join(t.TempDir(), "nested", "data")

	store, err := NewFSStore(tempDir)
	if err != nil {
		t.Fatalf("NewFSStore failed: %v", err)
	}
	if store.BaseDir() != tempDir {
		t.Errorf("Expected base dir %s, got %s", tempDir, store.BaseDir())
	}
	if _, err := os.Stat(tempDir); os.IsNotExist(err) {
		t.Fatal("Base directory was not created")
	}
}

func TestSaveAndLoadSection(t *testing.T) {
	store, tempDir := setupTestStore(t)

	original := createTestSection("section-1")
	if err := store.SaveSection(original, nil); err != nil {
		t.Fatalf("SaveSection failed: %v", err)
	}

	path := filepath.Join(tempDir, "sections", "section-1", "section.json")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Fatalf("Section file not created at %s", path)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("Temp file left behind after save")
	}

	loaded, err := store.LoadSection("section-1")
	if err != nil {
		t.Fatalf("LoadSection failed: %v", err)
	}

	if loaded.ID != original.ID || loaded.Variant != original.Variant {
		t.Errorf("Identity mismatch: got %s/%s", loaded.ID, loaded.Variant)
	}
	if loaded.Request.Delta.Rat().Cmp(original.Request.Delta.Rat()) != 0 {
		t.Errorf("Delta mismatch: expected %s, got %s", original.Request.Delta, loaded.Request.Delta)
	}
	if loaded.Request.BlockPosition.String() != "(-1, 0)" {
		t.Errorf("Block mismatch: got %s", loaded.Request.BlockPosition)
	}
	for i := range original.Counts {
		if loaded.Counts[i] != original.Counts[i] {
			t.Errorf("Counts[%d]: expected %d, got %d", i, original.Counts[i], loaded.Counts[i])
		}
		if loaded.HasEscaped[i] != original.HasEscaped[i] {
			t.Errorf("HasEscaped[%d] mismatch", i)
		}
	}
	if loaded.OpCounts != original.OpCounts {
		t.Errorf("OpCounts mismatch: expected %+v, got %+v", original.OpCounts, loaded.OpCounts)
	}
	if loaded.HasZValues {
		t.Error("Expected HasZValues false when saved without z values")
	}
}

func TestSaveSectionWithZValues(t *testing.T) {
	store, _ := setupTestStore(t)

	rec := createTestSection("with-z")
	zv := createTestZValues(2, 4, 2)
	if err := store.SaveSection(rec, zv); err != nil {
		t.Fatalf("SaveSection failed: %v", err)
	}

	loaded, err := store.LoadSection("with-z")
	if err != nil {
		t.Fatalf("LoadSection failed: %v", err)
	}
	if !loaded.HasZValues {
		t.Error("Expected HasZValues true")
	}

	got, err := store.LoadZValues("with-z")
	if err != nil {
		t.Fatalf("LoadZValues failed: %v", err)
	}
	if got.LimbCount != 2 || got.Width != 4 || got.Height != 2 {
		t.Fatalf("Unexpected shape %dx%dx%d", got.LimbCount, got.Width, got.Height)
	}
	for i := range zv.Re {
		if got.Re[i] != zv.Re[i] || got.Im[i] != zv.Im[i] {
			t.Fatalf("Limb %d mismatch", i)
		}
	}

	// Saving again without z state drops the stale file.
	if err := store.SaveSection(rec, nil); err != nil {
		t.Fatalf("SaveSection failed: %v", err)
	}
	if _, err := store.LoadZValues("with-z"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for dropped z values, got %v", err)
	}
}

func TestSaveSection_Invalid(t *testing.T) {
	store, _ := setupTestStore(t)

	if err := store.SaveSection(nil, nil); err == nil {
		t.Error("Expected error for nil record")
	}

	rec := createTestSection("bad")
	rec.Counts = rec.Counts[:3]
	err := store.SaveSection(rec, nil)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Expected ValidationError, got %v", err)
	}
	if verr.Field != "Counts" {
		t.Errorf("Expected Counts field, got %s", verr.Field)
	}
}

func TestLoadSection_NotFound(t *testing.T) {
	store, _ := setupTestStore(t)

	_, err := store.LoadSection("nonexistent")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	var nf *NotFoundError
	if errors.As(err, &nf) && nf.ID != "nonexistent" {
		t.Errorf("Expected ID in error, got %q", nf.ID)
	}

	if _, err := store.LoadSection(""); err == nil {
		t.Error("Expected error for empty id")
	}
}

func TestLoadSection_Corrupted(t *testing.T) {
	store, tempDir := setupTestStore(t)

	dir := filepath.Join(tempDir, "sections", "corrupt")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("Failed to create dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "section.json"), []byte("{not json"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	if _, err := store.LoadSection("corrupt"); err == nil {
		t.Error("Expected error for corrupted section")
	}

	// Corrupt entries are skipped when listing.
	infos, err := store.ListSections()
	if err != nil {
		t.Fatalf("ListSections failed: %v", err)
	}
	if len(infos) != 0 {
		t.Errorf("Expected 0 sections, got %d", len(infos))
	}
}

func TestListSections(t *testing.T) {
	store, _ := setupTestStore(t)

	infos, err := store.ListSections()
	if err != nil {
		t.Fatalf("ListSections failed on empty store: %v", err)
	}
	if len(infos) != 0 {
		t.Fatalf("Expected empty list, got %d", len(infos))
	}

	for i := 0; i < 3; i++ {
		if err := store.SaveSection(createTestSection(fmt.Sprintf("section-%d", i)), nil); err != nil {
			t.Fatalf("SaveSection failed: %v", err)
		}
		time.Sleep(2 * time.Millisecond)
	}

	infos, err = store.ListSections()
	if err != nil {
		t.Fatalf("ListSections failed: %v", err)
	}
	if len(infos) != 3 {
		t.Fatalf("Expected 3 sections, got %d", len(infos))
	}
	if infos[0].ID != "section-2" {
		t.Errorf("Expected most recent first, got %s", infos[0].ID)
	}
	if infos[0].Block != "(-1, 0)" || infos[0].Width != 4 || infos[0].TargetIterations != 100 {
		t.Errorf("Unexpected info: %+v", infos[0])
	}
	if infos[0].EscapedFraction != 0.5 {
		t.Errorf("Expected escaped fraction 0.5, got %f", infos[0].EscapedFraction)
	}
}

func TestDeleteSection(t *testing.T) {
	store, tempDir := setupTestStore(t)

	if err := store.SaveSection(createTestSection("doomed"), createTestZValues(2, 4, 2)); err != nil {
		t.Fatalf("SaveSection failed: %v", err)
	}
	writer, err := NewTraceWriter(tempDir, "doomed", false)
	if err != nil {
		t.Fatalf("Failed to create trace writer: %v", err)
	}
	writer.Write(TraceEntry{Row: 0})
	writer.Close()

	if err := store.DeleteSection("doomed"); err != nil {
		t.Fatalf("DeleteSection failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(tempDir, "sections", "doomed")); !os.IsNotExist(err) {
		t.Error("Section directory still exists")
	}
	if err := store.DeleteSection("doomed"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound on second delete, got %v", err)
	}
}

func TestDecodeZValues_Corrupt(t *testing.T) {
	good, err := EncodeZValues(createTestZValues(1, 2, 2))
	if err != nil {
		t.Fatalf("EncodeZValues failed: %v", err)
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"bad magic", append([]byte("XXXX"), good[4:]...)},
		{"truncated", good[:len(good)-4]},
		{"trailing", append(append([]byte(nil), good...), 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeZValues(tt.data); !errors.Is(err, ErrCorruptZValues) {
				t.Errorf("Expected ErrCorruptZValues, got %v", err)
			}
		})
	}
}

func TestEncodeZValues_ShapeMismatch(t *testing.T) {
	zv := createTestZValues(2, 2, 2)
	zv.Im = zv.Im[:1]
	if _, err := EncodeZValues(zv); err == nil {
		t.Error("Expected error for mismatched limb slices")
	}
}
