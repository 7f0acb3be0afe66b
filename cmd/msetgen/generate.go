package main

import (
	"fmt"
	"log/slog"

	"github.com/cwbudde/msetgen/internal/engine"
	"github.com/cwbudde/msetgen/internal/server"
	"github.com/cwbudde/msetgen/internal/store"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	genConfig    server.JobConfig
	genVariant   string
	genSkip      string
	genBackend   string
	genPreview   string
	genDataDir   string
	genSectionID string
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate one section",
	Long: `Generates escape-time counts for one tile and prints a summary.
Coordinates accept decimals or fractions ("-0.75", "1/256") and keep full precision.
With --data-dir the section is saved and, for the depth-first variant, can later be
deepened with the deepen command.`,
	RunE: runGenerate,
}

func init() {
	f := generateCmd.Flags()
	f.Int64Var(&genConfig.BlockX, "block-x", 0, "Block column")
	f.Int64Var(&genConfig.BlockY, "block-y", 0, "Block row")
	f.StringVar(&genConfig.PositionX, "x", "-2", "Real coordinate of the first sample")
	f.StringVar(&genConfig.PositionY, "y", "-1.25", "Imaginary coordinate of the first sample")
	f.StringVar(&genConfig.Delta, "delta", "", "Sample spacing (default 2.5/width)")
	f.IntVar(&genConfig.Width, "width", 64, "Samples per row")
	f.IntVar(&genConfig.Height, "height", 64, "Rows")
	f.Uint32Var(&genConfig.TargetIterations, "target", 400, "Target iteration count")
	f.Uint32Var(&genConfig.Threshold, "threshold", 4, "Escape threshold on |z|^2")
	f.IntVar(&genConfig.LimbCount, "limbs", 2, "Limbs per fixed-point value")
	f.IntVar(&genConfig.Precision, "precision", 0, "Precision hint recorded with the coordinates; advisory, never truncates")
	f.StringVar(&genVariant, "variant", string(engine.BreadthFirst), "Generator variant (breadth-first, depth-first)")
	f.StringVar(&genSkip, "skip", "none", "Skip policy (none, positive, low-detail)")
	f.StringVar(&genBackend, "backend", "auto", "Lane backend (auto, generic, swar, avx2)")
	f.StringVar(&genPreview, "preview", "", "Write a grayscale preview (.png, .bmp, .tiff)")
	f.StringVar(&genDataDir, "data-dir", "", "Save the section under this directory")
	f.StringVar(&genSectionID, "id", "", "Section ID when saving (default: random UUID)")

	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	cfg := genConfig
	cfg.Variant = engine.Variant(genVariant)
	cfg.ApplyDefaults()

	skip, err := engine.ParseSkipPolicy(genSkip)
	if err != nil {
		return err
	}
	req, err := cfg.Request()
	if err != nil {
		return err
	}
	f, err := cfg.Format()
	if err != nil {
		return err
	}

	g, err := engine.New(cfg.Variant, f, cfg.Width, engine.WithBackend(genBackend), engine.WithSkipPolicy(skip))
	if err != nil {
		return fmt.Errorf("failed to create generator: %w", err)
	}

	slog.Info("Generating section", "block", req.BlockPosition.String(), "variant", cfg.Variant, "format", f.String(), "target", req.TargetIterations)
	out := engine.NewBuffers(cfg.Width, cfg.Height)
	resp, err := g.GenerateSection(req, out)
	if err != nil {
		return fmt.Errorf("failed to generate section: %w", err)
	}
	slog.Info("Section generated", "elapsed", resp.Elapsed, "skipped", resp.Skipped, "backend", resp.Backend)

	printSummary(cmd.OutOrStdout(), req, out, resp)

	if genPreview != "" && !resp.Skipped {
		if err := writePreview(genPreview, req, out); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", genPreview)
	}

	if genDataDir != "" {
		fs, err := store.NewFSStore(genDataDir)
		if err != nil {
			return fmt.Errorf("failed to create section store: %w", err)
		}
		id := genSectionID
		if id == "" {
			id = uuid.New().String()
		}
		if err := saveSection(fs, id, cfg.Variant, req, out, resp, nil); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Saved section %s\n", id)
	}

	return nil
}
