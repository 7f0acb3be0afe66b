package server

import (
	"net/http"

	"github.com/a-h/templ"
	"github.com/cwbudde/msetgen/internal/ui"
)

// jobListItems converts jobs into dashboard rows.
func jobListItems(jobs []*Job) []ui.JobListItem {
	items := make([]ui.JobListItem, len(jobs))
	for i, job := range jobs {
		c := job.Config
		items[i] = ui.JobListItem{
			ID:              job.ID,
			State:           string(job.State),
			Error:           job.Error,
			BlockX:          c.BlockX,
			BlockY:          c.BlockY,
			Width:           c.Width,
			Height:          c.Height,
			Target:          c.TargetIterations,
			Limbs:           c.LimbCount,
			RowsDone:        job.RowsDone,
			EscapedFraction: job.EscapedFraction,
			HasPreview:      job.State == StateCompleted,
		}
	}
	return items
}

// handleIndex handles GET /
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	// Only handle exact root path
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	templ.Handler(ui.JobList(jobListItems(s.jobManager.ListJobs()))).ServeHTTP(w, r)
}
