package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cwbudde/msetgen/internal/engine"
	"github.com/cwbudde/msetgen/internal/store"
)

// ErrQueueFull is returned by Submit when every queue slot is taken.
var ErrQueueFull = errors.New("job queue is full")

// PoolConfig configures the worker pool.
type PoolConfig struct {
	Workers   int
	QueueSize int

	// Backend names the lane backend; empty picks the best available.
	Backend string
	Skip    engine.SkipPolicy

	// Store persists sections of jobs that ask for it. May be nil.
	Store store.Store

	// DataDir is where row traces are written next to stored sections. Empty
	// disables tracing.
	DataDir string

	// ProgressInterval throttles progress broadcasts.
	ProgressInterval time.Duration
}

// WorkerPool runs jobs on a fixed number of workers. Generators are not safe for
// concurrent use, so each worker owns the ones it has built.
type WorkerPool struct {
	jm    *JobManager
	cfg   PoolConfig
	queue chan string
	cache *engine.SamplePointCache
	wg    sync.WaitGroup
	once  sync.Once
}

// NewWorkerPool creates a pool; call Start to launch the workers.
func NewWorkerPool(jm *JobManager, cfg PoolConfig) *WorkerPool {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = 250 * time.Millisecond
	}
	return &WorkerPool{
		jm:    jm,
		cfg:   cfg,
		queue: make(chan string, cfg.QueueSize),
		cache: engine.NewSamplePointCache(),
	}
}

// Start launches the workers. They exit when ctx is done or Stop is called.
func (p *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < p.cfg.Workers; i++ {
		w := p.newWorker(i)
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			w.loop(ctx, p.queue)
		}()
	}
	slog.Info("Worker pool started", "workers", p.cfg.Workers, "queue", p.cfg.QueueSize)
}

// Submit queues a job without blocking.
func (p *WorkerPool) Submit(jobID string) error {
	select {
	case p.queue <- jobID:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop stops accepting jobs and waits for the queued ones to finish.
func (p *WorkerPool) Stop() {
	p.once.Do(func() { close(p.queue) })
	p.wg.Wait()
}

func (p *WorkerPool) newWorker(id int) *Worker {
	return &Worker{
		id:         id,
		jm:         p.jm,
		cfg:        p.cfg,
		cache:      p.cache,
		generators: make(map[generatorKey]engine.Generator),
	}
}

type generatorKey struct {
	variant engine.Variant
	limbs   int
	width   int
}

// Worker generates one section at a time.
type Worker struct {
	id         int
	jm         *JobManager
	cfg        PoolConfig
	cache      *engine.SamplePointCache
	generators map[generatorKey]engine.Generator

	// progress of the section being generated
	current       string
	trace         *store.TraceWriter
	traceRow      engine.RowObserver
	lastBroadcast time.Time
}

func (w *Worker) loop(ctx context.Context, queue <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case jobID, ok := <-queue:
			if !ok {
				return
			}
			if err := w.runJob(ctx, jobID); err != nil {
				slog.Debug("Job ended with error", "worker", w.id, "job_id", jobID, "error", err)
			}
		}
	}
}

func (w *Worker) generator(cfg *JobConfig) (engine.Generator, error) {
	key := generatorKey{variant: cfg.Variant, limbs: cfg.LimbCount, width: cfg.Width}
	if g, ok := w.generators[key]; ok {
		return g, nil
	}

	f, err := cfg.Format()
	if err != nil {
		return nil, err
	}
	g, err := engine.New(cfg.Variant, f, cfg.Width,
		engine.WithBackend(w.cfg.Backend),
		engine.WithSkipPolicy(w.cfg.Skip),
		engine.WithSamplePointCache(w.cache),
		engine.WithRowObserver(w.observe),
	)
	if err != nil {
		return nil, err
	}
	w.generators[key] = g
	slog.Debug("Generator created", "worker", w.id, "variant", cfg.Variant, "limbs", cfg.LimbCount, "width", cfg.Width)
	return g, nil
}

// observe records row progress of the current job.
func (w *Worker) observe(row, iteration, inPlay int) {
	if w.traceRow != nil {
		w.traceRow(row, iteration, inPlay)
	}

	rowDone := inPlay == 0
	w.jm.UpdateJob(w.current, func(j *Job) {
		j.InPlay = inPlay
		if rowDone {
			j.RowsDone = row + 1
		}
	})

	if !rowDone && time.Since(w.lastBroadcast) < w.cfg.ProgressInterval {
		return
	}
	w.lastBroadcast = time.Now()
	w.jm.broadcaster.Broadcast(ProgressEvent{
		JobID:     w.current,
		State:     StateRunning,
		Row:       row,
		Iteration: iteration,
		InPlay:    inPlay,
		Timestamp: w.lastBroadcast,
	})
}

// runJob generates the section of one job.
func (w *Worker) runJob(ctx context.Context, jobID string) error {
	job, exists := w.jm.GetJob(jobID)
	if !exists {
		return fmt.Errorf("job not found: %s", jobID)
	}
	if job.State != StatePending {
		// cancelled while queued
		return nil
	}

	select {
	case <-ctx.Done():
		markJobCancelled(w.jm, jobID)
		return ctx.Err()
	default:
	}

	err := w.jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateRunning
		j.StartTime = time.Now()
	})
	if err != nil {
		return err
	}

	cfg := job.Config
	w.current = jobID
	slog.Info("Starting job", "job_id", jobID, "worker", w.id, "block", fmt.Sprintf("(%d, %d)", cfg.BlockX, cfg.BlockY), "variant", cfg.Variant)

	var req *engine.Request
	out := engine.NewBuffers(cfg.Width, cfg.Height)
	sectionID := jobID
	createdAt := time.Time{}
	if cfg.DeepenFrom != "" {
		prev, next, err := w.loadForDeepening(&cfg)
		if err != nil {
			markJobFailed(w.jm, jobID, err)
			return err
		}
		req = next
		out = prev.Buffers()
		sectionID = prev.ID
		createdAt = prev.CreatedAt
	} else if req, err = cfg.Request(); err != nil {
		markJobFailed(w.jm, jobID, fmt.Errorf("invalid job config: %w", err))
		return err
	}

	gen, err := w.generator(&cfg)
	if err != nil {
		markJobFailed(w.jm, jobID, fmt.Errorf("failed to create generator: %w", err))
		return err
	}

	persist := (cfg.Persist || cfg.DeepenFrom != "") && w.cfg.Store != nil
	if persist && w.cfg.DataDir != "" {
		w.trace, err = store.NewTraceWriter(w.cfg.DataDir, sectionID, cfg.DeepenFrom != "")
		if err != nil {
			slog.Warn("Failed to open trace", "job_id", jobID, "error", err)
		} else {
			w.traceRow = w.trace.Observer()
		}
	}

	w.lastBroadcast = time.Time{}
	resp, err := gen.GenerateSection(req, out)
	w.closeTrace(jobID)
	if err != nil {
		markJobFailed(w.jm, jobID, fmt.Errorf("failed to generate section: %w", err))
		return err
	}

	if current, _ := w.jm.GetJob(jobID); current != nil && current.CancelRequested {
		markJobCancelled(w.jm, jobID)
		return nil
	}

	state := StateCompleted
	if resp.Skipped {
		state = StateSkipped
	}

	savedID := ""
	if persist && !resp.Skipped {
		record := store.NewSectionRecord(sectionID, cfg.Variant, req, out, resp)
		if !createdAt.IsZero() {
			record.CreatedAt = createdAt
		}
		if err := w.cfg.Store.SaveSection(record, resp.ZValues); err != nil {
			markJobFailed(w.jm, jobID, fmt.Errorf("failed to save section: %w", err))
			return err
		}
		savedID = sectionID
	}

	endTime := time.Now()
	escaped := escapedFraction(out.HasEscaped[:cfg.Width*cfg.Height])
	err = w.jm.UpdateJob(jobID, func(j *Job) {
		j.State = state
		j.EndTime = &endTime
		j.InPlay = 0
		j.AllRowsHaveEscaped = resp.AllRowsHaveEscaped
		j.OpCounts = resp.OpCounts
		j.Backend = resp.Backend
		j.SectionID = savedID
		if !resp.Skipped {
			j.RowsDone = cfg.Height
			j.EscapedFraction = escaped
			j.buffers = out
		}
	})
	if err != nil {
		return err
	}

	slog.Info("Job completed",
		"job_id", jobID,
		"state", state,
		"elapsed", resp.Elapsed,
		"escaped_fraction", escaped,
		"multiplications", resp.OpCounts.Multiplications,
		"backend", resp.Backend,
	)

	w.jm.broadcaster.Broadcast(ProgressEvent{
		JobID:     jobID,
		State:     state,
		Row:       cfg.Height - 1,
		RowsDone:  cfg.Height,
		Timestamp: time.Now(),
	})
	return nil
}

// loadForDeepening loads a stored section and builds the request that continues it
// to cfg's target. The section's geometry replaces cfg's.
func (w *Worker) loadForDeepening(cfg *JobConfig) (*store.SectionRecord, *engine.Request, error) {
	if w.cfg.Store == nil {
		return nil, nil, fmt.Errorf("deepening requires a section store")
	}
	prev, req, err := store.PrepareDeepen(w.cfg.Store, cfg.DeepenFrom, cfg.TargetIterations)
	if err != nil {
		return nil, nil, err
	}

	cfg.Width, cfg.Height, cfg.LimbCount = req.Width, req.Height, req.LimbCount
	cfg.Variant = engine.DepthFirst
	w.jm.UpdateJob(w.current, func(j *Job) { j.Config = *cfg })
	return prev, req, nil
}

func (w *Worker) closeTrace(jobID string) {
	if w.trace == nil {
		return
	}
	if n := w.trace.Errors(); n > 0 {
		slog.Warn("Trace writes failed", "job_id", jobID, "count", n)
	}
	if err := w.trace.Close(); err != nil {
		slog.Warn("Failed to close trace", "job_id", jobID, "error", err)
	}
	w.trace, w.traceRow = nil, nil
}

func escapedFraction(flags []bool) float64 {
	if len(flags) == 0 {
		return 0
	}
	n := 0
	for _, e := range flags {
		if e {
			n++
		}
	}
	return float64(n) / float64(len(flags))
}

// markJobFailed marks a job as failed with an error message
func markJobFailed(jm *JobManager, jobID string, err error) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateFailed
		j.Error = err.Error()
		j.EndTime = &endTime
	})
	jm.broadcaster.Broadcast(ProgressEvent{JobID: jobID, State: StateFailed, Timestamp: endTime})
	slog.Error("Job failed", "job_id", jobID, "error", err)
}

// markJobCancelled marks a job as cancelled
func markJobCancelled(jm *JobManager, jobID string) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCancelled
		j.EndTime = &endTime
	})
	jm.broadcaster.Broadcast(ProgressEvent{JobID: jobID, State: StateCancelled, Timestamp: endTime})
	slog.Info("Job cancelled", "job_id", jobID)
}
