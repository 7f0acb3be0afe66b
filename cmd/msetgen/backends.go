package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/cwbudde/msetgen/internal/lanes"
	"github.com/spf13/cobra"
)

var backendsCmd = &cobra.Command{
	Use:   "backends",
	Short: "List lane backends and CPU features",
	RunE: func(cmd *cobra.Command, args []string) error {
		info := lanes.DescribeCPU()
		fmt.Printf("Architecture: %s (SSE2 %s, AVX2 %s, BMI2 %s, ASIMD %s)\n\n",
			info.Architecture, yesNo(info.HasSSE2), yesNo(info.HasAVX2), yesNo(info.HasBMI2), yesNo(info.HasASIMD))

		active := lanes.Active()
		runnable := map[string]bool{}
		for _, e := range lanes.Runnable() {
			runnable[e.Name] = true
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tSIMD\tPRIORITY\tBASELINE\tRUNNABLE\tACTIVE")
		for _, e := range lanes.Global.ListEntries() {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n", e.Name, e.SIMDLevel, e.Priority, yesNo(e.Baseline),
				yesNo(runnable[e.Name]), yesNo(e.Name == active.Name))
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(backendsCmd)
}
