package server

import (
	"testing"
	"time"

	"github.com/cwbudde/msetgen/internal/engine"
)

func TestJobManager_CreateJob(t *testing.T) {
	jm := NewJobManager()

	config := JobConfig{
		PositionX:        "-2",
		PositionY:        "-1",
		Delta:            "1/16",
		Width:            16,
		Height:           8,
		TargetIterations: 100,
		LimbCount:        2,
	}

	job := jm.CreateJob(config)

	if job.ID == "" {
		t.Error("Job ID should not be empty")
	}
	if job.State != StatePending {
		t.Errorf("Initial state should be pending, got %s", job.State)
	}
	if job.Config.Delta != "1/16" {
		t.Errorf("Config not set correctly")
	}
}

func TestJobManager_GetJob(t *testing.T) {
	jm := NewJobManager()

	job := jm.CreateJob(JobConfig{Width: 8})

	retrieved, exists := jm.GetJob(job.ID)
	if !exists {
		t.Fatal("Job should exist")
	}
	if retrieved.ID != job.ID {
		t.Error("Retrieved wrong job")
	}

	// Snapshots do not alias the managed job.
	retrieved.State = StateFailed
	again, _ := jm.GetJob(job.ID)
	if again.State != StatePending {
		t.Error("Modifying a snapshot changed the managed job")
	}

	_, exists = jm.GetJob("nonexistent")
	if exists {
		t.Error("Should not find nonexistent job")
	}
}

func TestJobManager_ListJobs(t *testing.T) {
	jm := NewJobManager()

	if len(jm.ListJobs()) != 0 {
		t.Error("Should start with no jobs")
	}

	first := jm.CreateJob(JobConfig{Width: 8})
	jm.CreateJob(JobConfig{Width: 16})

	jobs := jm.ListJobs()
	if len(jobs) != 2 {
		t.Fatalf("Expected 2 jobs, got %d", len(jobs))
	}
	if jobs[0].ID != first.ID {
		t.Error("Jobs should be listed in creation order")
	}
}

func TestJobManager_UpdateJob(t *testing.T) {
	jm := NewJobManager()

	job := jm.CreateJob(JobConfig{Width: 8})

	err := jm.UpdateJob(job.ID, func(j *Job) {
		j.State = StateRunning
		j.RowsDone = 3
		j.InPlay = 1
	})
	if err != nil {
		t.Errorf("Update should succeed: %v", err)
	}

	updated, _ := jm.GetJob(job.ID)
	if updated.State != StateRunning {
		t.Error("State should be updated")
	}
	if updated.RowsDone != 3 || updated.InPlay != 1 {
		t.Error("Progress should be updated")
	}
	if len(jm.GetRunningJobs()) != 1 {
		t.Error("Expected one running job")
	}

	err = jm.UpdateJob("nonexistent", func(j *Job) {})
	if err == nil {
		t.Error("Update of nonexistent job should fail")
	}
}

func TestJobManager_CancelJob(t *testing.T) {
	jm := NewJobManager()

	pending := jm.CreateJob(JobConfig{Width: 8})
	state, err := jm.CancelJob(pending.ID)
	if err != nil || state != StateCancelled {
		t.Errorf("Pending job should cancel immediately, got %s, %v", state, err)
	}
	if _, err := jm.CancelJob(pending.ID); err == nil {
		t.Error("Cancelling a cancelled job should fail")
	}

	running := jm.CreateJob(JobConfig{Width: 8})
	jm.UpdateJob(running.ID, func(j *Job) { j.State = StateRunning })
	state, err = jm.CancelJob(running.ID)
	if err != nil || state != StateRunning {
		t.Errorf("Running job should stay running, got %s, %v", state, err)
	}
	updated, _ := jm.GetJob(running.ID)
	if !updated.CancelRequested {
		t.Error("Expected cancel request on running job")
	}

	if _, err := jm.CancelJob("nonexistent"); err == nil {
		t.Error("Cancelling a nonexistent job should fail")
	}
}

func TestJobManager_ThreadSafety(t *testing.T) {
	jm := NewJobManager()

	job := jm.CreateJob(JobConfig{Width: 8})

	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func(row int) {
			jm.UpdateJob(job.ID, func(j *Job) {
				j.RowsDone = row
				time.Sleep(1 * time.Millisecond)
			})
			jm.GetJob(job.ID)
			jm.ListJobs()
			done <- true
		}(i)
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	_, exists := jm.GetJob(job.ID)
	if !exists {
		t.Error("Job should still exist after concurrent updates")
	}
}

func TestJobConfig_Defaults(t *testing.T) {
	var cfg JobConfig
	cfg.ApplyDefaults()

	if cfg.Width != 64 || cfg.Height != 64 {
		t.Errorf("Expected 64x64 default, got %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.TargetIterations != 400 || cfg.Threshold != 4 || cfg.LimbCount != 2 {
		t.Errorf("Unexpected defaults: %+v", cfg)
	}
	if cfg.Variant != engine.BreadthFirst {
		t.Errorf("Expected breadth-first default, got %s", cfg.Variant)
	}

	req, err := cfg.Request()
	if err != nil {
		t.Fatalf("Default config should be valid: %v", err)
	}
	if req.Delta.String() != "5/128" {
		t.Errorf("Expected default delta 5/128, got %s", req.Delta)
	}

	deepen := JobConfig{DeepenFrom: "abc", Variant: engine.BreadthFirst}
	deepen.ApplyDefaults()
	if deepen.Variant != engine.DepthFirst {
		t.Error("Deepening should force the depth-first variant")
	}
}

func TestJobConfig_Request_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*JobConfig)
	}{
		{"bad position", func(c *JobConfig) { c.PositionX = "left" }},
		{"bad delta", func(c *JobConfig) { c.Delta = "x" }},
		{"zero delta", func(c *JobConfig) { c.Delta = "0" }},
		{"negative delta", func(c *JobConfig) { c.Delta = "-1/8" }},
		{"negative limbs", func(c *JobConfig) { c.LimbCount = -1 }},
		{"zero threshold", func(c *JobConfig) { c.Threshold = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cfg JobConfig
			cfg.ApplyDefaults()
			tt.modify(&cfg)
			if _, err := cfg.Request(); err == nil {
				t.Error("Expected error")
			}
		})
	}
}

func TestJobState_Terminal(t *testing.T) {
	for _, s := range []JobState{StateCompleted, StateFailed, StateCancelled, StateSkipped} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []JobState{StatePending, StateRunning} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}
