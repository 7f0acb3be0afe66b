package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverURL string
)

var statusCmd = &cobra.Command{
	Use:   "status [job-id]",
	Short: "Query server status or specific job",
	Long: `Queries the server for job status information.
If no job-id is provided, lists all jobs.
If job-id is provided, shows detailed status for that job.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	rootCmd.AddCommand(statusCmd)
}

// jobSummary is the subset of a job the status command prints.
type jobSummary struct {
	ID     string `json:"id"`
	State  string `json:"state"`
	Config struct {
		BlockX           int64  `json:"blockX"`
		BlockY           int64  `json:"blockY"`
		PositionX        string `json:"positionX"`
		PositionY        string `json:"positionY"`
		Delta            string `json:"delta"`
		Width            int    `json:"width"`
		Height           int    `json:"height"`
		TargetIterations uint32 `json:"targetIterations"`
		LimbCount        int    `json:"limbCount"`
		Variant          string `json:"variant"`
		DeepenFrom       string `json:"deepenFrom"`
	} `json:"config"`
	RowsDone           int     `json:"rowsDone"`
	InPlay             int     `json:"inPlay"`
	AllRowsHaveEscaped bool    `json:"allRowsHaveEscaped"`
	EscapedFraction    float64 `json:"escapedFraction"`
	OpCounts           struct {
		Multiplications int64 `json:"multiplications"`
		UsedCalcs       int64 `json:"usedCalcs"`
		UnusedCalcs     int64 `json:"unusedCalcs"`
	} `json:"opCounts"`
	Backend   string  `json:"backend"`
	SectionID string  `json:"sectionId"`
	Elapsed   float64 `json:"elapsed"`
	Error     string  `json:"error"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return listJobs(cmd.OutOrStdout(), fmt.Sprintf("%s/api/v1/jobs", serverURL))
	}
	jobID := args[0]
	return getJobStatus(cmd.OutOrStdout(), fmt.Sprintf("%s/api/v1/jobs/%s/status", serverURL, jobID), jobID)
}

func fetchJSON(url string, v interface{}) (int, error) {
	resp, err := http.Get(url)
	if err != nil {
		return 0, fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, fmt.Errorf("server returned error: %s", string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
	}
	return resp.StatusCode, nil
}

func listJobs(w io.Writer, url string) error {
	var jobs []jobSummary
	if _, err := fetchJSON(url, &jobs); err != nil {
		return err
	}

	if len(jobs) == 0 {
		fmt.Fprintln(w, "No jobs found")
		return nil
	}

	fmt.Fprintf(w, "Found %d job(s):\n\n", len(jobs))
	for _, job := range jobs {
		fmt.Fprintf(w, "Job ID: %s\n", job.ID)
		fmt.Fprintf(w, "  State: %s\n", job.State)
		fmt.Fprintf(w, "  Block: (%d, %d), %dx%d, target %d\n",
			job.Config.BlockX, job.Config.BlockY, job.Config.Width, job.Config.Height, job.Config.TargetIterations)
		fmt.Fprintf(w, "  Rows: %d/%d\n", job.RowsDone, job.Config.Height)
		fmt.Fprintln(w)
	}

	return nil
}

func getJobStatus(w io.Writer, url, jobID string) error {
	var status jobSummary
	code, err := fetchJSON(url, &status)
	if code == http.StatusNotFound {
		return fmt.Errorf("job not found: %s", jobID)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Job: %s\n", status.ID)
	fmt.Fprintf(w, "State: %s\n", status.State)
	fmt.Fprintln(w)

	c := status.Config
	fmt.Fprintln(w, "Configuration:")
	if c.DeepenFrom != "" {
		fmt.Fprintf(w, "  Deepening: %s\n", c.DeepenFrom)
	}
	fmt.Fprintf(w, "  Block: (%d, %d)\n", c.BlockX, c.BlockY)
	fmt.Fprintf(w, "  Position: %s, %s\n", c.PositionX, c.PositionY)
	fmt.Fprintf(w, "  Delta: %s\n", c.Delta)
	fmt.Fprintf(w, "  Size: %dx%d\n", c.Width, c.Height)
	fmt.Fprintf(w, "  Target: %d\n", c.TargetIterations)
	fmt.Fprintf(w, "  Limbs: %d\n", c.LimbCount)
	fmt.Fprintf(w, "  Variant: %s\n", c.Variant)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Progress:")
	fmt.Fprintf(w, "  Rows: %d/%d (in play: %d)\n", status.RowsDone, c.Height, status.InPlay)
	fmt.Fprintf(w, "  Escaped: %.1f%%\n", 100*status.EscapedFraction)
	if status.OpCounts.Multiplications > 0 {
		printer.Fprintf(w, "  Multiplications: %d\n", status.OpCounts.Multiplications)
	}
	if status.Backend != "" {
		fmt.Fprintf(w, "  Backend: %s\n", status.Backend)
	}
	elapsed := time.Duration(status.Elapsed * float64(time.Second))
	fmt.Fprintf(w, "  Elapsed: %s\n", elapsed.Round(time.Millisecond))
	if status.SectionID != "" {
		fmt.Fprintf(w, "  Saved as: %s\n", status.SectionID)
	}

	if status.Error != "" {
		fmt.Fprintf(w, "\nError: %s\n", status.Error)
	}

	return nil
}
