// Package ui holds the templ components of the dashboard.
package ui

import (
	"fmt"

	"github.com/a-h/templ"
)

// JobListItem is the dashboard view of one job.
type JobListItem struct {
	ID              string
	State           string
	Error           string
	BlockX          int64
	BlockY          int64
	Width           int
	Height          int
	Target          uint32
	Limbs           int
	RowsDone        int
	EscapedFraction float64
	HasPreview      bool
}

// ShortID returns the first eight characters of the job ID.
func (j JobListItem) ShortID() string {
	if len(j.ID) > 8 {
		return j.ID[:8]
	}
	return j.ID
}

func (j JobListItem) Block() string { return fmt.Sprintf("(%d, %d)", j.BlockX, j.BlockY) }

func (j JobListItem) Size() string { return fmt.Sprintf("%dx%d", j.Width, j.Height) }

func (j JobListItem) TargetText() string { return fmt.Sprint(j.Target) }

func (j JobListItem) LimbsText() string { return fmt.Sprint(j.Limbs) }

func (j JobListItem) Rows() string { return fmt.Sprintf("%d/%d", j.RowsDone, j.Height) }

func (j JobListItem) Escaped() string { return fmt.Sprintf("%.1f%%", 100*j.EscapedFraction) }

func jobURL(id string) templ.SafeURL {
	return templ.URL("/api/v1/jobs/" + id)
}

func previewURL(id string) templ.SafeURL {
	return templ.URL("/api/v1/jobs/" + id + "/preview.png")
}
