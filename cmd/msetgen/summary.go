package main

import (
	"fmt"
	"io"
	"os"

	"github.com/cwbudde/msetgen/internal/engine"
	"github.com/cwbudde/msetgen/internal/preview"
	"github.com/cwbudde/msetgen/internal/store"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// printer formats counts with digit grouping.
var printer = message.NewPrinter(language.English)

// printSummary writes a human-readable report of one generated section.
func printSummary(w io.Writer, req *engine.Request, out *engine.Buffers, resp *engine.Response) {
	printer.Fprintf(w, "Block %s: %dx%d at target %d, %d limbs\n",
		req.BlockPosition, req.Width, req.Height, req.TargetIterations, req.LimbCount)
	if resp.Skipped {
		printer.Fprintf(w, "  Skipped by policy\n")
		return
	}

	escaped := 0
	for _, e := range out.HasEscaped {
		if e {
			escaped++
		}
	}
	total := len(out.HasEscaped)
	printer.Fprintf(w, "  Escaped: %d of %d points (%.1f%%)\n", escaped, total, 100*float64(escaped)/float64(max(total, 1)))
	printer.Fprintf(w, "  All rows escaped: %v\n", resp.AllRowsHaveEscaped)
	printer.Fprintf(w, "  Backend: %s, elapsed %v\n", resp.Backend, resp.Elapsed)

	c := resp.OpCounts
	printer.Fprintf(w, "  Multiplications: %d\n", c.Multiplications)
	printer.Fprintf(w, "  Additions: %d\n", c.Additions)
	printer.Fprintf(w, "  Negations: %d\n", c.Negations)
	printer.Fprintf(w, "  Conversions: %d\n", c.Conversions)
	printer.Fprintf(w, "  Splits: %d\n", c.Splits)
	printer.Fprintf(w, "  Comparisons: %d\n", c.Comparisons)
	if used := c.UsedCalcs + c.UnusedCalcs; used > 0 {
		printer.Fprintf(w, "  Lane utilisation: %d used, %d unused (%.1f%%)\n",
			c.UsedCalcs, c.UnusedCalcs, 100*float64(c.UsedCalcs)/float64(used))
	}
}

// writePreview renders out and encodes it in the format named by path's extension.
func writePreview(path string, req *engine.Request, out *engine.Buffers) error {
	format, err := preview.FormatFromPath(path)
	if err != nil {
		return err
	}
	img, err := preview.Render(out, req.Width, req.Height, req.TargetIterations)
	if err != nil {
		return fmt.Errorf("failed to render preview: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create preview: %w", err)
	}
	defer f.Close()

	if err := preview.Encode(f, img, format); err != nil {
		return fmt.Errorf("failed to encode preview: %w", err)
	}
	return nil
}

// saveSection persists a finished section. A deepened section keeps prev's
// creation time.
func saveSection(s store.Store, id string, variant engine.Variant, req *engine.Request, out *engine.Buffers, resp *engine.Response, prev *store.SectionRecord) error {
	record := store.NewSectionRecord(id, variant, req, out, resp)
	if prev != nil {
		record.CreatedAt = prev.CreatedAt
	}
	if err := s.SaveSection(record, resp.ZValues); err != nil {
		return fmt.Errorf("failed to save section: %w", err)
	}
	return nil
}
