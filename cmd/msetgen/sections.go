package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/cwbudde/msetgen/internal/store"
	"github.com/spf13/cobra"
)

var (
	sectionDataDir string
	keepLast       int
	olderThanDays  int
	forceClean     bool
)

var sectionsCmd = &cobra.Command{
	Use:   "sections",
	Short: "Manage saved sections",
	Long: `Manage saved sections including listing, inspecting and cleaning old ones.
Depth-first sections saved with their z values can be deepened later.`,
}

var listSectionsCmd = &cobra.Command{
	Use:   "list",
	Short: "List all saved sections",
	Long:  `Display all sections with metadata including ID, block, size, target, escaped fraction and size on disk.`,
	RunE:  runListSections,
}

var showSectionCmd = &cobra.Command{
	Use:   "show [section-id]",
	Short: "Show a saved section",
	Args:  cobra.ExactArgs(1),
	RunE:  runShowSection,
}

var cleanSectionsCmd = &cobra.Command{
	Use:   "clean",
	Short: "Clean old sections",
	Long: `Delete old sections based on retention policy.
You can specify how many sections to keep or delete sections older than N days.`,
	RunE: runCleanSections,
}

func init() {
	rootCmd.AddCommand(sectionsCmd)

	sectionsCmd.AddCommand(listSectionsCmd)
	sectionsCmd.AddCommand(showSectionCmd)
	sectionsCmd.AddCommand(cleanSectionsCmd)

	sectionsCmd.PersistentFlags().StringVar(&sectionDataDir, "data-dir", "./data", "Base directory for section storage")

	cleanSectionsCmd.Flags().IntVar(&keepLast, "keep-last", 0, "Keep only the N most recently updated sections (0 = keep all)")
	cleanSectionsCmd.Flags().IntVar(&olderThanDays, "older-than", 0, "Delete sections older than N days (0 = no age limit)")
	cleanSectionsCmd.Flags().BoolVarP(&forceClean, "force", "f", false, "Skip confirmation prompt")
}

func runListSections(cmd *cobra.Command, args []string) error {
	sectionStore, err := store.NewFSStore(sectionDataDir)
	if err != nil {
		return fmt.Errorf("failed to create section store: %w", err)
	}

	infos, err := sectionStore.ListSections()
	if err != nil {
		return fmt.Errorf("failed to list sections: %w", err)
	}

	if len(infos) == 0 {
		fmt.Println("No sections found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUPDATED\tBLOCK\tSIZE\tTARGET\tESCAPED\tDEEPEN\tDISK")
	fmt.Fprintln(w, "--\t-------\t-----\t----\t------\t-------\t------\t----")

	for _, info := range infos {
		size, err := getDirSize(sectionDir(info.ID))
		sizeStr := "unknown"
		if err == nil {
			sizeStr = formatBytes(size)
		}

		escaped := fmt.Sprintf("%.1f%%", 100*info.EscapedFraction)
		if info.Skipped {
			escaped = "skipped"
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%dx%d\t%d\t%s\t%s\t%s\n",
			displayID(info.ID),
			info.UpdatedAt.Format("2006-01-02 15:04:05"),
			info.Block,
			info.Width, info.Height,
			info.TargetIterations,
			escaped,
			yesNo(info.HasZValues),
			sizeStr,
		)
	}

	w.Flush()

	fmt.Printf("\nTotal sections: %d\n", len(infos))
	return nil
}

func runShowSection(cmd *cobra.Command, args []string) error {
	sectionStore, err := store.NewFSStore(sectionDataDir)
	if err != nil {
		return fmt.Errorf("failed to create section store: %w", err)
	}

	record, err := sectionStore.LoadSection(args[0])
	if err != nil {
		return err
	}
	showSection(cmd.OutOrStdout(), record)
	return nil
}

func showSection(w io.Writer, r *store.SectionRecord) {
	req := &r.Request
	fmt.Fprintf(w, "Section: %s\n", r.ID)
	fmt.Fprintf(w, "Variant: %s\n", r.Variant)
	fmt.Fprintf(w, "Created: %s\n", r.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "Updated: %s\n", r.UpdatedAt.Format(time.RFC3339))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Request:")
	fmt.Fprintf(w, "  Block: %s\n", req.BlockPosition)
	fmt.Fprintf(w, "  Position: %s, %s\n", req.PositionX.Rat().FloatString(12), req.PositionY.Rat().FloatString(12))
	fmt.Fprintf(w, "  Delta: %s\n", req.Delta.Rat().RatString())
	fmt.Fprintf(w, "  Size: %dx%d\n", req.Width, req.Height)
	fmt.Fprintf(w, "  Target: %d\n", req.TargetIterations)
	fmt.Fprintf(w, "  Threshold: %d\n", req.Threshold)
	fmt.Fprintf(w, "  Limbs: %d\n", req.LimbCount)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Result:")
	if r.Skipped {
		fmt.Fprintln(w, "  Skipped by policy")
		return
	}
	fmt.Fprintf(w, "  Escaped: %.1f%%\n", 100*r.EscapedFraction())
	fmt.Fprintf(w, "  All rows escaped: %v\n", r.AllRowsHaveEscaped)
	fmt.Fprintf(w, "  Backend: %s, elapsed %v\n", r.Backend, r.Elapsed)
	printer.Fprintf(w, "  Multiplications: %d\n", r.OpCounts.Multiplications)
	fmt.Fprintf(w, "  Can deepen: %s\n", yesNo(r.HasZValues))
}

func runCleanSections(cmd *cobra.Command, args []string) error {
	if keepLast == 0 && olderThanDays == 0 {
		return fmt.Errorf("must specify either --keep-last or --older-than")
	}

	sectionStore, err := store.NewFSStore(sectionDataDir)
	if err != nil {
		return fmt.Errorf("failed to create section store: %w", err)
	}

	infos, err := sectionStore.ListSections()
	if err != nil {
		return fmt.Errorf("failed to list sections: %w", err)
	}

	if len(infos) == 0 {
		fmt.Println("No sections to clean.")
		return nil
	}

	toDelete := selectSectionsForDeletion(infos, keepLast, olderThanDays)

	if len(toDelete) == 0 {
		fmt.Println("No sections match deletion criteria.")
		return nil
	}

	fmt.Printf("Found %d section(s) to delete:\n", len(toDelete))
	for _, info := range toDelete {
		fmt.Printf("  - %s (block %s, target %d, %s)\n",
			displayID(info.ID),
			info.Block,
			info.TargetIterations,
			info.UpdatedAt.Format("2006-01-02 15:04:05"),
		)
	}

	if !forceClean {
		fmt.Print("\nProceed with deletion? [y/N]: ")
		var response string
		fmt.Scanln(&response)
		if response != "y" && response != "Y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	deleted := 0
	failed := 0
	for _, info := range toDelete {
		if err := sectionStore.DeleteSection(info.ID); err != nil {
			slog.Error("Failed to delete section", "id", info.ID, "error", err)
			failed++
		} else {
			slog.Info("Deleted section", "id", info.ID)
			deleted++
		}
	}

	fmt.Printf("\nDeleted %d section(s), %d failed.\n", deleted, failed)
	return nil
}

// selectSectionsForDeletion determines which sections should be deleted based on retention policy
func selectSectionsForDeletion(infos []store.SectionInfo, keepLast int, olderThanDays int) []store.SectionInfo {
	var toDelete []store.SectionInfo
	selected := make(map[string]bool)

	if olderThanDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -olderThanDays)
		for _, info := range infos {
			if info.UpdatedAt.Before(cutoff) {
				toDelete = append(toDelete, info)
				selected[info.ID] = true
			}
		}
	}

	if keepLast > 0 && len(infos) > keepLast {
		sorted := make([]store.SectionInfo, len(infos))
		copy(sorted, infos)
		sort.Slice(sorted, func(i, j int) bool {
			return sorted[i].UpdatedAt.After(sorted[j].UpdatedAt)
		})

		for _, info := range sorted[keepLast:] {
			if !selected[info.ID] {
				toDelete = append(toDelete, info)
				selected[info.ID] = true
			}
		}
	}

	return toDelete
}

func sectionDir(id string) string {
	return filepath.Join(sectionDataDir, "sections", id)
}

func displayID(id string) string {
	if len(id) > 12 {
		return id[:12] + "..."
	}
	return id
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// getDirSize calculates the total size of a directory
func getDirSize(path string) (int64, error) {
	var size int64
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}

// formatBytes formats bytes as human-readable string
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
