package store

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestTraceWriter_WriteAndRead(t *testing.T) {
	tmpDir := t.TempDir()
	id := "test-section-123"

	writer, err := NewTraceWriter(tmpDir, id, false)
	if err != nil {
		t.Fatalf("Failed to create trace writer: %v", err)
	}

	entries := []TraceEntry{
		{Row: 0, Iteration: 0, InPlay: 8, Timestamp: time.Now()},
		{Row: 0, Iteration: 1, InPlay: 5, Timestamp: time.Now()},
		{Row: 0, Iteration: 2, InPlay: 0, Timestamp: time.Now()},
		{Row: 1, Iteration: 0, InPlay: 8, Timestamp: time.Now()},
	}
	for _, entry := range entries {
		if err := writer.Write(entry); err != nil {
			t.Fatalf("Failed to write entry: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Failed to close writer: %v", err)
	}

	path := filepath.Join(tmpDir, "sections", id, "trace.jsonl")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Fatalf("Trace file not created: %s", path)
	}
	if writer.Path() != path {
		t.Errorf("Expected path %s, got %s", path, writer.Path())
	}

	reader, err := NewTraceReader(tmpDir, id)
	if err != nil {
		t.Fatalf("Failed to create trace reader: %v", err)
	}
	defer reader.Close()

	readEntries, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("Failed to read entries: %v", err)
	}
	if len(readEntries) != len(entries) {
		t.Fatalf("Expected %d entries, got %d", len(entries), len(readEntries))
	}
	for i, entry := range readEntries {
		if entry.Row != entries[i].Row || entry.Iteration != entries[i].Iteration || entry.InPlay != entries[i].InPlay {
			t.Errorf("Entry %d: expected %+v, got %+v", i, entries[i], entry)
		}
	}
}

func TestTraceWriter_Append(t *testing.T) {
	tmpDir := t.TempDir()
	id := "append-section"

	for pass := 0; pass < 2; pass++ {
		writer, err := NewTraceWriter(tmpDir, id, pass > 0)
		if err != nil {
			t.Fatalf("Failed to create trace writer: %v", err)
		}
		if err := writer.Write(TraceEntry{Row: pass, Timestamp: time.Now()}); err != nil {
			t.Fatalf("Failed to write entry: %v", err)
		}
		if err := writer.Close(); err != nil {
			t.Fatalf("Failed to close writer: %v", err)
		}
	}

	reader, err := NewTraceReader(tmpDir, id)
	if err != nil {
		t.Fatalf("Failed to create trace reader: %v", err)
	}
	defer reader.Close()

	entries, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("Failed to read entries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries after append, got %d", len(entries))
	}
	if entries[1].Row != 1 {
		t.Errorf("Expected appended row 1, got %d", entries[1].Row)
	}
}

func TestTraceWriter_Truncate(t *testing.T) {
	tmpDir := t.TempDir()
	id := "truncate-section"

	for pass := 0; pass < 2; pass++ {
		writer, err := NewTraceWriter(tmpDir, id, false)
		if err != nil {
			t.Fatalf("Failed to create trace writer: %v", err)
		}
		writer.Write(TraceEntry{Row: pass})
		writer.Close()
	}

	reader, err := NewTraceReader(tmpDir, id)
	if err != nil {
		t.Fatalf("Failed to create trace reader: %v", err)
	}
	defer reader.Close()

	entries, _ := reader.ReadAll()
	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry after truncation, got %d", len(entries))
	}
}

func TestTraceWriter_Observer(t *testing.T) {
	tmpDir := t.TempDir()
	id := "observer-section"

	writer, err := NewTraceWriter(tmpDir, id, false)
	if err != nil {
		t.Fatalf("Failed to create trace writer: %v", err)
	}

	observe := writer.Observer()
	observe(3, 7, 2)
	observe(3, 8, 0)

	if err := writer.Flush(); err != nil {
		t.Fatalf("Failed to flush: %v", err)
	}

	reader, err := NewTraceReader(tmpDir, id)
	if err != nil {
		t.Fatalf("Failed to create trace reader: %v", err)
	}
	defer reader.Close()

	first, err := reader.Read()
	if err != nil {
		t.Fatalf("Failed to read first entry: %v", err)
	}
	if first.Row != 3 || first.Iteration != 7 || first.InPlay != 2 {
		t.Errorf("Unexpected first entry: %+v", first)
	}
	if first.Timestamp.IsZero() {
		t.Error("Expected observer to stamp entries")
	}
	if _, err := reader.Read(); err != nil {
		t.Fatalf("Failed to read second entry: %v", err)
	}
	if _, err := reader.Read(); err != io.EOF {
		t.Errorf("Expected io.EOF after last entry, got %v", err)
	}

	if err := writer.Close(); err != nil {
		t.Fatalf("Failed to close writer: %v", err)
	}
	if writer.Errors() != 0 {
		t.Errorf("Expected no observer errors, got %d", writer.Errors())
	}
}

func TestTraceReader_NotFound(t *testing.T) {
	_, err := NewTraceReader(t.TempDir(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}

func TestDeleteTrace(t *testing.T) {
	tmpDir := t.TempDir()
	id := "delete-section"

	writer, err := NewTraceWriter(tmpDir, id, false)
	if err != nil {
		t.Fatalf("Failed to create trace writer: %v", err)
	}
	writer.Write(TraceEntry{Row: 1})
	writer.Close()

	if err := DeleteTrace(tmpDir, id); err != nil {
		t.Fatalf("Failed to delete trace: %v", err)
	}
	if _, err := os.Stat(writer.Path()); !os.IsNotExist(err) {
		t.Error("Trace file still exists after delete")
	}

	// Deleting again is not an error.
	if err := DeleteTrace(tmpDir, id); err != nil {
		t.Errorf("Expected nil error for missing trace, got %v", err)
	}
}

func TestTraceWriter_ConcurrentWrites(t *testing.T) {
	tmpDir := t.TempDir()
	id := "concurrent-section"

	writer, err := NewTraceWriter(tmpDir, id, false)
	if err != nil {
		t.Fatalf("Failed to create trace writer: %v", err)
	}

	const goroutines, perGoroutine = 8, 50
	observe := writer.Observer()
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(row int) {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				observe(row, i, perGoroutine-i)
			}
		}(g)
	}
	wg.Wait()

	if err := writer.Close(); err != nil {
		t.Fatalf("Failed to close writer: %v", err)
	}

	reader, err := NewTraceReader(tmpDir, id)
	if err != nil {
		t.Fatalf("Failed to create trace reader: %v", err)
	}
	defer reader.Close()

	entries, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("Failed to read entries: %v", err)
	}
	if len(entries) != goroutines*perGoroutine {
		t.Errorf("Expected %d entries, got %d", goroutines*perGoroutine, len(entries))
	}
}
