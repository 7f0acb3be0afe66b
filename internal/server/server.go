package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cwbudde/msetgen/internal/engine"
	"github.com/cwbudde/msetgen/internal/preview"
	"github.com/cwbudde/msetgen/internal/store"
)

// Config configures the HTTP server and its worker pool.
type Config struct {
	Addr string
	Pool PoolConfig
}

// Server represents the HTTP server
type Server struct {
	jobManager *JobManager
	pool       *WorkerPool
	store      store.Store
	addr       string
	server     *http.Server
	cancel     context.CancelFunc
}

// NewServer creates a new HTTP server
func NewServer(cfg Config) *Server {
	jm := NewJobManager()
	return &Server{
		jobManager: jm,
		pool:       NewWorkerPool(jm, cfg.Pool),
		store:      cfg.Pool.Store,
		addr:       cfg.Addr,
	}
}

// Handler returns the routed and wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Register UI routes
	mux.HandleFunc("/", s.handleIndex)

	// Register API routes
	mux.HandleFunc("/api/v1/jobs", s.handleJobs)
	mux.HandleFunc("/api/v1/jobs/", s.handleJobsWithID)
	mux.HandleFunc("/api/v1/sections", s.handleSections)

	return s.loggingMiddleware(s.corsMiddleware(mux))
}

// StartWorkers launches the worker pool without serving HTTP.
func (s *Server) StartWorkers(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.pool.Start(ctx)
}

// Start starts the workers and the HTTP server
func (s *Server) Start() error {
	s.StartWorkers(context.Background())

	s.server = &http.Server{
		Addr:    s.addr,
		Handler: s.Handler(),
	}

	slog.Info("Starting HTTP server", "addr", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server and drains the worker pool
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down HTTP server")
	var err error
	if s.server != nil {
		err = s.server.Shutdown(ctx)
	}

	drained := make(chan struct{})
	go func() {
		s.pool.Stop()
		close(drained)
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		if s.cancel != nil {
			s.cancel()
		}
	}
	return err
}

// handleJobs handles /api/v1/jobs
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateJob(w, r)
	case http.MethodGet:
		s.handleListJobs(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleJobsWithID handles /api/v1/jobs/:id/*
func (s *Server) handleJobsWithID(w http.ResponseWriter, r *http.Request) {
	jobID, sub, ok := splitJobPath(r.URL.Path)
	if !ok {
		http.Error(w, "Job ID required", http.StatusBadRequest)
		return
	}

	switch sub {
	case "", "status":
		s.handleGetJobStatus(w, r, jobID)
	case "counts":
		s.handleGetCounts(w, r, jobID)
	case "preview.png", "preview.bmp", "preview.tiff":
		s.handleGetPreview(w, r, jobID, strings.TrimPrefix(sub, "preview."))
	case "stream":
		s.handleJobStream(w, r, jobID)
	case "cancel":
		s.handleCancelJob(w, r, jobID)
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

// handleCreateJob handles POST /api/v1/jobs
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var config JobConfig
	if err := json.NewDecoder(r.Body).Decode(&config); err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}

	config.ApplyDefaults()
	if config.DeepenFrom == "" {
		if _, err := config.Request(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	} else if s.store == nil {
		http.Error(w, "deepening requires a section store", http.StatusBadRequest)
		return
	}
	if s.store == nil {
		config.Persist = false
	}

	job := s.jobManager.CreateJob(config)
	if err := s.pool.Submit(job.ID); err != nil {
		markJobFailed(s.jobManager, job.ID, err)
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, http.StatusCreated, job)
}

// handleListJobs handles GET /api/v1/jobs
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.jobManager.ListJobs())
}

// handleGetJobStatus handles GET /api/v1/jobs/:id/status
func (s *Server) handleGetJobStatus(w http.ResponseWriter, r *http.Request, jobID string) {
	job, exists := s.jobManager.GetJob(jobID)
	if !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}

	var elapsed time.Duration
	if job.EndTime != nil {
		elapsed = job.EndTime.Sub(job.StartTime)
	} else {
		elapsed = time.Since(job.StartTime)
	}

	response := map[string]interface{}{
		"id":                 job.ID,
		"state":              job.State,
		"config":             job.Config,
		"rowsDone":           job.RowsDone,
		"inPlay":             job.InPlay,
		"allRowsHaveEscaped": job.AllRowsHaveEscaped,
		"escapedFraction":    job.EscapedFraction,
		"opCounts":           job.OpCounts,
		"backend":            job.Backend,
		"sectionId":          job.SectionID,
		"elapsed":            elapsed.Seconds(),
		"startTime":          job.StartTime,
		"endTime":            job.EndTime,
		"error":              job.Error,
	}

	writeJSON(w, http.StatusOK, response)
}

// handleGetCounts handles GET /api/v1/jobs/:id/counts
func (s *Server) handleGetCounts(w http.ResponseWriter, r *http.Request, jobID string) {
	job, out, status := s.finishedJob(jobID)
	if status != http.StatusOK {
		http.Error(w, http.StatusText(status), status)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":               job.ID,
		"width":            job.Config.Width,
		"height":           job.Config.Height,
		"targetIterations": job.Config.TargetIterations,
		"counts":           out.Counts,
		"escapeVelocities": out.EscapeVelocities,
		"hasEscaped":       out.HasEscaped,
	})
}

// handleGetPreview handles GET /api/v1/jobs/:id/preview.{png,bmp,tiff}
func (s *Server) handleGetPreview(w http.ResponseWriter, r *http.Request, jobID, format string) {
	job, out, status := s.finishedJob(jobID)
	if status != http.StatusOK {
		http.Error(w, http.StatusText(status), status)
		return
	}

	img, err := preview.Render(out, job.Config.Width, job.Config.Height, job.Config.TargetIterations)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to render preview: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", preview.ContentType(format))
	w.Header().Set("Cache-Control", "no-cache")
	if err := preview.Encode(w, img, format); err != nil {
		slog.Error("Failed to encode preview", "job_id", jobID, "format", format, "error", err)
	}
}

// handleCancelJob handles POST /api/v1/jobs/:id/cancel
func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request, jobID string) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if _, exists := s.jobManager.GetJob(jobID); !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}

	state, err := s.jobManager.CancelJob(jobID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	if state == StateCancelled {
		s.jobManager.broadcaster.Broadcast(ProgressEvent{JobID: jobID, State: state, Timestamp: time.Now()})
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{"id": jobID, "state": state})
}

// handleSections handles GET /api/v1/sections
func (s *Server) handleSections(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.store == nil {
		writeJSON(w, http.StatusOK, []store.SectionInfo{})
		return
	}

	infos, err := s.store.ListSections()
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to list sections: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, infos)
}

// finishedJob looks up a job whose buffers are available, returning the HTTP status
// to report otherwise.
func (s *Server) finishedJob(jobID string) (*Job, *engine.Buffers, int) {
	job, exists := s.jobManager.GetJob(jobID)
	if !exists {
		return nil, nil, http.StatusNotFound
	}
	out, ok := s.jobManager.Buffers(jobID)
	if !ok {
		if job.State.Terminal() {
			return nil, nil, http.StatusGone
		}
		return nil, nil, http.StatusConflict
	}
	return job, out, http.StatusOK
}

// corsMiddleware adds CORS headers
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("HTTP request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
