package main

import (
	"fmt"
	"log/slog"

	"github.com/cwbudde/msetgen/internal/engine"
	"github.com/cwbudde/msetgen/internal/fixed"
	"github.com/cwbudde/msetgen/internal/store"
	"github.com/spf13/cobra"
)

var (
	deepenDataDir string
	deepenTarget  uint32
	deepenBackend string
	deepenPreview string
)

var deepenCmd = &cobra.Command{
	Use:   "deepen [section-id]",
	Short: "Continue a saved section to a higher target",
	Long: `Loads a depth-first section saved with its z values and iterates every point
that had not escaped up to the new target. The result is identical to generating
the section at the new target directly, and replaces the saved section.`,
	Args: cobra.ExactArgs(1),
	RunE: runDeepen,
}

func init() {
	deepenCmd.Flags().StringVar(&deepenDataDir, "data-dir", "./data", "Base directory for section storage")
	deepenCmd.Flags().Uint32Var(&deepenTarget, "target", 0, "New target iteration count (required)")
	deepenCmd.Flags().StringVar(&deepenBackend, "backend", "auto", "Lane backend (auto, generic, swar, avx2)")
	deepenCmd.Flags().StringVar(&deepenPreview, "preview", "", "Write a grayscale preview (.png, .bmp, .tiff)")

	deepenCmd.MarkFlagRequired("target")
	rootCmd.AddCommand(deepenCmd)
}

func runDeepen(cmd *cobra.Command, args []string) error {
	fs, err := store.NewFSStore(deepenDataDir)
	if err != nil {
		return fmt.Errorf("failed to create section store: %w", err)
	}

	prev, req, err := store.PrepareDeepen(fs, args[0], deepenTarget)
	if err != nil {
		return err
	}

	f, err := fixed.NewFormat(fixed.DefaultBitsBeforeBP, req.LimbCount)
	if err != nil {
		return err
	}
	g, err := engine.NewDepthFirstGenerator(f, req.Width, engine.WithBackend(deepenBackend))
	if err != nil {
		return fmt.Errorf("failed to create generator: %w", err)
	}

	slog.Info("Deepening section", "id", prev.ID, "from", prev.Request.TargetIterations, "to", req.TargetIterations)
	out := prev.Buffers()
	resp, err := g.GenerateSection(req, out)
	if err != nil {
		return fmt.Errorf("failed to deepen section: %w", err)
	}

	printSummary(cmd.OutOrStdout(), req, out, resp)

	if err := saveSection(fs, prev.ID, engine.DepthFirst, req, out, resp, prev); err != nil {
		return err
	}
	if deepenPreview != "" {
		if err := writePreview(deepenPreview, req, out); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", deepenPreview)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Saved section %s\n", prev.ID)
	return nil
}
