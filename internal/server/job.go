package server

import (
	"fmt"
	"sync"
	"time"

	"github.com/cwbudde/msetgen/internal/engine"
	"github.com/cwbudde/msetgen/internal/fixed"
	"github.com/google/uuid"
)

// JobState represents the current state of a job
type JobState string

const (
	StatePending   JobState = "pending"
	StateRunning   JobState = "running"
	StateCompleted JobState = "completed"
	StateFailed    JobState = "failed"
	StateCancelled JobState = "cancelled"
	StateSkipped   JobState = "skipped"
)

// Terminal reports whether the state is final.
func (s JobState) Terminal() bool {
	return s != StatePending && s != StateRunning
}

// JobConfig describes one tile to generate. Coordinates are decimal or fraction
// strings ("-0.75", "1/256") so they keep full precision through JSON.
type JobConfig struct {
	BlockX           int64          `json:"blockX"`
	BlockY           int64          `json:"blockY"`
	PositionX        string         `json:"positionX"`
	PositionY        string         `json:"positionY"`
	Delta            string         `json:"delta"`
	Width            int            `json:"width"`
	Height           int            `json:"height"`
	TargetIterations uint32         `json:"targetIterations"`
	Threshold        uint32         `json:"threshold"`
	LimbCount        int            `json:"limbCount"`
	Precision        int            `json:"precision,omitempty"`
	Variant          engine.Variant `json:"variant"`

	// Persist saves the finished section to the server's store.
	Persist bool `json:"persist,omitempty"`

	// DeepenFrom resumes a stored depth-first section with a higher target.
	DeepenFrom string `json:"deepenFrom,omitempty"`
}

// ApplyDefaults fills unset fields.
func (c *JobConfig) ApplyDefaults() {
	if c.Width <= 0 {
		c.Width = 64
	}
	if c.Height <= 0 {
		c.Height = c.Width
	}
	if c.TargetIterations == 0 {
		c.TargetIterations = 400
	}
	if c.Threshold == 0 {
		c.Threshold = 4
	}
	if c.LimbCount <= 0 {
		c.LimbCount = 2
	}
	if c.Variant == "" {
		c.Variant = engine.BreadthFirst
	}
	if c.DeepenFrom != "" {
		c.Variant = engine.DepthFirst
	}
	if c.PositionX == "" {
		c.PositionX = "-2"
	}
	if c.PositionY == "" {
		c.PositionY = "-1.25"
	}
	if c.Delta == "" {
		c.Delta = fmt.Sprintf("%d/%d", 5, 2*c.Width)
	}
}

// Format returns the fixed-point format the job runs at.
func (c *JobConfig) Format() (fixed.Format, error) {
	return fixed.NewFormat(fixed.DefaultBitsBeforeBP, c.LimbCount)
}

// Request translates the config into an engine request.
func (c *JobConfig) Request() (*engine.Request, error) {
	f, err := c.Format()
	if err != nil {
		return nil, fmt.Errorf("invalid limb count: %w", err)
	}

	bits := f.FractionalBits()
	parse := func(name, s string) (fixed.RValue, error) {
		v, err := fixed.ParseRValue(s, bits, c.Precision)
		if err != nil {
			return fixed.RValue{}, fmt.Errorf("invalid %s: %w", name, err)
		}
		return v, nil
	}

	x, err := parse("positionX", c.PositionX)
	if err != nil {
		return nil, err
	}
	y, err := parse("positionY", c.PositionY)
	if err != nil {
		return nil, err
	}
	delta, err := parse("delta", c.Delta)
	if err != nil {
		return nil, err
	}
	if delta.Value.Sign() <= 0 {
		return nil, fmt.Errorf("delta must be positive at %d fractional bits", bits)
	}

	req := &engine.Request{
		BlockPosition:    engine.NewBlockPosition(c.BlockX, c.BlockY),
		PositionX:        x,
		PositionY:        y,
		Delta:            delta,
		Width:            c.Width,
		Height:           c.Height,
		TargetIterations: c.TargetIterations,
		Threshold:        c.Threshold,
		LimbCount:        c.LimbCount,
		Precision:        c.Precision,
	}
	if err := req.Validate(f, c.Width); err != nil {
		return nil, err
	}
	return req, nil
}

// Job represents a section generation job
type Job struct {
	ID                 string         `json:"id"`
	State              JobState       `json:"state"`
	Config             JobConfig      `json:"config"`
	RowsDone           int            `json:"rowsDone"`
	InPlay             int            `json:"inPlay"`
	AllRowsHaveEscaped bool           `json:"allRowsHaveEscaped"`
	EscapedFraction    float64        `json:"escapedFraction"`
	OpCounts           fixed.OpCounts `json:"opCounts"`
	Backend            string         `json:"backend,omitempty"`
	SectionID          string         `json:"sectionId,omitempty"`
	StartTime          time.Time      `json:"startTime"`
	EndTime            *time.Time     `json:"endTime,omitempty"`
	Error              string         `json:"error,omitempty"`

	// CancelRequested is set when a running job is cancelled; its result is discarded.
	CancelRequested bool `json:"cancelRequested,omitempty"`

	buffers *engine.Buffers
}

// JobManager manages the lifecycle of jobs
type JobManager struct {
	mu          sync.RWMutex
	jobs        map[string]*Job
	order       []string
	broadcaster *EventBroadcaster
}

// NewJobManager creates a new JobManager
func NewJobManager() *JobManager {
	return &JobManager{
		jobs:        make(map[string]*Job),
		broadcaster: NewEventBroadcaster(),
	}
}

// CreateJob creates a new job with the given configuration
func (jm *JobManager) CreateJob(config JobConfig) *Job {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job := &Job{
		ID:        uuid.New().String(),
		State:     StatePending,
		Config:    config,
		StartTime: time.Now(),
	}

	jm.jobs[job.ID] = job
	jm.order = append(jm.order, job.ID)
	cp := *job
	return &cp
}

// GetJob returns a snapshot of the job.
func (jm *JobManager) GetJob(id string) (*Job, bool) {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	job, exists := jm.jobs[id]
	if !exists {
		return nil, false
	}
	cp := *job
	return &cp, true
}

// ListJobs returns snapshots of all jobs in creation order
func (jm *JobManager) ListJobs() []*Job {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	jobs := make([]*Job, 0, len(jm.order))
	for _, id := range jm.order {
		cp := *jm.jobs[id]
		jobs = append(jobs, &cp)
	}
	return jobs
}

// UpdateJob atomically updates a job using the provided function
func (jm *JobManager) UpdateJob(id string, updateFn func(*Job)) error {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job, exists := jm.jobs[id]
	if !exists {
		return fmt.Errorf("job not found: %s", id)
	}

	updateFn(job)
	return nil
}

// GetRunningJobs returns all jobs currently in the running state
func (jm *JobManager) GetRunningJobs() []*Job {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	runningJobs := make([]*Job, 0)
	for _, id := range jm.order {
		if job := jm.jobs[id]; job.State == StateRunning {
			cp := *job
			runningJobs = append(runningJobs, &cp)
		}
	}
	return runningJobs
}

// Buffers returns the output buffers of a completed job.
func (jm *JobManager) Buffers(id string) (*engine.Buffers, bool) {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	job, exists := jm.jobs[id]
	if !exists || job.buffers == nil {
		return nil, false
	}
	return job.buffers, true
}

// CancelJob cancels a pending job outright. A running section cannot be
// interrupted, so its result is discarded when it finishes.
func (jm *JobManager) CancelJob(id string) (JobState, error) {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job, exists := jm.jobs[id]
	if !exists {
		return "", fmt.Errorf("job not found: %s", id)
	}

	switch job.State {
	case StatePending:
		endTime := time.Now()
		job.State = StateCancelled
		job.EndTime = &endTime
	case StateRunning:
		job.CancelRequested = true
	default:
		return job.State, fmt.Errorf("job %s already %s", id, job.State)
	}
	return job.State, nil
}
