package backfill

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"rankscan/internal/models"
)

// Start outcomes reported to callers.
const (
	OutcomeStarted = "started"
	OutcomeResumed = "resumed"
	OutcomeNoop    = "noop"
)

// StartResult is the structured outcome of a Start call; the engine
// launch is fire-and-forget and never reaches the caller.
type StartResult struct {
	Job     *models.BackfillJob `json:"job"`
	Outcome string              `json:"outcome"`
	Message string              `json:"message"`
}

// PauseResult is the structured outcome of a Pause call. Rejections
// (job not RUNNING) are reported here, not as errors.
type PauseResult struct {
	Paused  bool             `json:"paused"`
	Status  models.JobStatus `json:"status"`
	Message string           `json:"message"`
}

// Controller is the public entry point in front of the engine: start
// (idempotent, resume-aware), pause (cooperative) and status reads.
type Controller struct {
	jobs   JobStore
	engine *Engine

	// runCtx bounds all engine runs; cancelled on shutdown.
	runCtx context.Context

	mu      sync.Mutex
	running map[string]bool
	wg      sync.WaitGroup
}

func NewController(runCtx context.Context, jobs JobStore, engine *Engine) *Controller {
	return &Controller{
		jobs:    jobs,
		engine:  engine,
		runCtx:  runCtx,
		running: make(map[string]bool),
	}
}

// Start creates or resumes the backfill job for a window. Duplicate
// requests for the same (rangeStart, rangeEnd, tokenScope) return the
// existing job; a COMPLETE or already RUNNING/QUEUED window is a no-op.
func (c *Controller) Start(ctx context.Context, rangeStart, rangeEnd time.Time, tokenScope int) (*StartResult, error) {
	rangeStart = models.Day(rangeStart)
	rangeEnd = models.Day(rangeEnd)
	if rangeEnd.Before(rangeStart) {
		return nil, fmt.Errorf("invalid window: end %s before start %s",
			rangeEnd.Format("2006-01-02"), rangeStart.Format("2006-01-02"))
	}
	if tokenScope <= 0 {
		return nil, fmt.Errorf("invalid token scope %d", tokenScope)
	}

	job, err := c.jobs.FindJobByWindow(ctx, rangeStart, rangeEnd, tokenScope)
	if err != nil {
		return nil, fmt.Errorf("lookup window: %w", err)
	}
	if job != nil {
		switch job.Status {
		case models.JobComplete:
			return &StartResult{Job: job, Outcome: OutcomeNoop, Message: "job already complete"}, nil
		case models.JobRunning, models.JobQueued:
			return &StartResult{Job: job, Outcome: OutcomeNoop, Message: fmt.Sprintf("job already %s", job.Status)}, nil
		case models.JobPaused, models.JobFailed:
			if err := c.jobs.SetJobStatus(ctx, job.ID, models.JobQueued, models.JobPaused, models.JobFailed); err != nil {
				return nil, fmt.Errorf("requeue job %s: %w", job.ID, err)
			}
			job.Status = models.JobQueued
			c.launch(job.ID)
			return &StartResult{Job: job, Outcome: OutcomeResumed, Message: "job resumed"}, nil
		}
	}

	job, err = c.jobs.CreateJob(ctx, rangeStart, rangeEnd, tokenScope)
	if err != nil {
		// A concurrent Start for the same window can win the insert race;
		// the uniqueness constraint makes the second create fail. Fall
		// back to the existing record.
		if existing, lookupErr := c.jobs.FindJobByWindow(ctx, rangeStart, rangeEnd, tokenScope); lookupErr == nil && existing != nil {
			return &StartResult{Job: existing, Outcome: OutcomeNoop, Message: fmt.Sprintf("job already %s", existing.Status)}, nil
		}
		return nil, fmt.Errorf("create job: %w", err)
	}

	c.launch(job.ID)
	return &StartResult{Job: job, Outcome: OutcomeStarted, Message: "job started"}, nil
}

// Pause requests a cooperative stop. The engine observes the flag at
// the next token boundary; an in-flight quote call is never interrupted.
func (c *Controller) Pause(ctx context.Context, jobID string) (*PauseResult, error) {
	job, err := c.jobs.FindJobByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != models.JobRunning {
		return &PauseResult{
			Paused:  false,
			Status:  job.Status,
			Message: fmt.Sprintf("job is %s; only RUNNING jobs can be paused", job.Status),
		}, nil
	}
	if err := c.jobs.SetJobStatus(ctx, jobID, models.JobPaused, models.JobRunning); err != nil {
		// The run may have finished between the read and the write.
		if current, readErr := c.jobs.FindJobByID(ctx, jobID); readErr == nil {
			return &PauseResult{
				Paused:  false,
				Status:  current.Status,
				Message: fmt.Sprintf("job is %s; only RUNNING jobs can be paused", current.Status),
			}, nil
		}
		return nil, err
	}
	return &PauseResult{
		Paused:  true,
		Status:  models.JobPaused,
		Message: "pause requested; the run will stop after the current token",
	}, nil
}

// Status is a pure read of the job record.
func (c *Controller) Status(ctx context.Context, jobID string) (*models.BackfillJob, error) {
	return c.jobs.FindJobByID(ctx, jobID)
}

func (c *Controller) List(ctx context.Context, limit int) ([]models.BackfillJob, error) {
	return c.jobs.ListJobs(ctx, limit)
}

// launch starts the engine asynchronously, at most one run per job id
// per process. Errors stay inside the goroutine's boundary: they are
// written into job state and logged, never propagated to the caller.
func (c *Controller) launch(jobID string) {
	c.mu.Lock()
	if c.running[jobID] {
		c.mu.Unlock()
		return
	}
	c.running[jobID] = true
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				log.Printf("[backfill] Job %s: run panicked: %v", jobID, rec)
			}
			c.mu.Lock()
			delete(c.running, jobID)
			c.mu.Unlock()
		}()

		res := c.engine.Run(c.runCtx, jobID)
		if res.Err != nil {
			log.Printf("[backfill] Job %s: run ended with error: %v", jobID, res.Err)
		}
	}()
}

// Wait blocks until all launched runs have returned. Used on shutdown.
func (c *Controller) Wait() {
	c.wg.Wait()
}
