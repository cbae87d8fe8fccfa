// Package orchestrator drives episode generation jobs through the
// pipeline stages and owns their durable state.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"

	"github.com/apresai/newsroom/internal/observability"
	"github.com/apresai/newsroom/internal/profile"
	"github.com/apresai/newsroom/internal/progress"
	"github.com/apresai/newsroom/internal/script"
	"github.com/apresai/newsroom/internal/store"
)

var tracer = otel.Tracer("github.com/apresai/newsroom/internal/orchestrator")

// allStages is the fixed, totally ordered stage set a new job starts
// with (initializing, persisting, and done are bookkeeping, not worker
// stages).
var allStages = []string{
	string(progress.StageAggregation),
	string(progress.StageClustering),
	string(progress.StageResearch),
	string(progress.StageScripting),
	string(progress.StageReview),
	string(progress.StageAudio),
}

// Pipeline runs the content stages for one job. Implementations are
// built per job by the Factory so each run sees the profile and options
// frozen at creation.
type Pipeline interface {
	// Produce runs aggregation through scripting and returns the script.
	Produce(ctx context.Context, job *store.Job, emit progress.Callback) (*script.Script, error)
	// Finish renders audio (when enabled) and persists the episode.
	Finish(ctx context.Context, job *store.Job, sc *script.Script, emit progress.Callback) (episodeID string, err error)
	// LoadScript re-reads a script written by Produce, for resume.
	LoadScript(episodeID string) (*script.Script, error)
	// SaveScript writes an edited script back before resume.
	SaveScript(sc *script.Script) error
}

// Factory builds a Pipeline for a profile with frozen options.
type Factory interface {
	New(ctx context.Context, p *profile.Profile, opts store.Options) (Pipeline, error)
}

// Orchestrator is the job state machine and worker registry.
type Orchestrator struct {
	store   *store.Store
	factory Factory
	log     *slog.Logger
	baseCtx context.Context // cancelled on SIGTERM for graceful shutdown

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	maxJobs int
	running int
}

// New creates an orchestrator. baseCtx should be cancelled on SIGTERM so
// worker goroutines can clean up.
func New(st *store.Store, factory Factory, maxJobs int, logger *slog.Logger, baseCtx context.Context) *Orchestrator {
	if maxJobs <= 0 {
		maxJobs = 5
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store:   st,
		factory: factory,
		log:     logger,
		baseCtx: baseCtx,
		cancels: make(map[string]context.CancelFunc),
		maxJobs: maxJobs,
	}
}

// Start validates the profile, creates a pending job, and enqueues the
// worker. It returns the job ID immediately.
func (o *Orchestrator) Start(ctx context.Context, profileID string, opts store.Options) (string, error) {
	p, err := o.store.GetProfile(ctx, profileID)
	if err != nil {
		return "", fmt.Errorf("load profile: %w", err)
	}
	if p == nil {
		return "", fmt.Errorf("profile %s not found", profileID)
	}

	o.mu.Lock()
	if o.running >= o.maxJobs {
		o.mu.Unlock()
		return "", fmt.Errorf("max concurrent jobs reached (%d)", o.maxJobs)
	}
	o.running++

	id := ulid.Make().String()
	// Derive the worker context from baseCtx (cancelled on SIGTERM)
	// rather than the request context (cancelled when the response is
	// sent), carrying the request's trace span for linking.
	jobCtx := observability.DetachTraceContextFrom(ctx, o.baseCtx)
	jobCtx, cancel := context.WithCancel(jobCtx)
	o.cancels[id] = cancel
	o.mu.Unlock()

	job := &store.Job{
		ID:            id,
		ProfileID:     profileID,
		State:         store.StatePending,
		Stage:         string(progress.StageInitializing),
		Progress:      progress.StageInitializing.Percent(),
		StagesPending: append([]string(nil), allStages...),
		Options:       opts,
	}
	if err := o.store.CreateJob(ctx, job); err != nil {
		cancel()
		o.release(id)
		return "", fmt.Errorf("create job: %w", err)
	}

	go o.runJob(jobCtx, job, p)
	return id, nil
}

// Status returns the durable job record.
func (o *Orchestrator) Status(ctx context.Context, jobID string) (*store.Job, error) {
	return o.store.GetJob(ctx, jobID)
}

// Cancel requests cancellation. Valid from pending, running, and
// waiting-for-review; it returns false for jobs in any other state.
func (o *Orchestrator) Cancel(ctx context.Context, jobID string) (bool, error) {
	ok, err := o.store.TransitionJob(ctx, jobID, store.StateCancelled,
		store.StatePending, store.StateRunning, store.StateWaitingForReview)
	if err != nil || !ok {
		return false, err
	}

	job, err := o.store.GetJob(ctx, jobID)
	if err == nil && job != nil {
		job.Error = "Cancelled by user"
		now := time.Now().UTC()
		job.CompletedAt = &now
		job.Log(job.Stage, "Cancelled by user")
		if uerr := o.store.UpdateJob(ctx, job); uerr != nil {
			o.log.WarnContext(ctx, "Persist cancellation detail failed", "job", jobID, "error", uerr)
		}
	}

	o.mu.Lock()
	if cancel, ok := o.cancels[jobID]; ok {
		cancel()
	}
	o.mu.Unlock()
	return true, nil
}

// Approve resumes a job paused for review. When editedScript is non-nil
// it replaces the stored script before audio rendering. Valid only from
// waiting-for-review.
func (o *Orchestrator) Approve(ctx context.Context, jobID string, editedScript *script.Script) error {
	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return fmt.Errorf("job %s not found", jobID)
	}
	if job.State != store.StateWaitingForReview {
		return fmt.Errorf("job %s is %s, not waiting-for-review", jobID, job.State)
	}

	p, err := o.store.GetProfile(ctx, job.ProfileID)
	if err != nil {
		return fmt.Errorf("load profile: %w", err)
	}
	if p == nil {
		return fmt.Errorf("profile %s not found", job.ProfileID)
	}

	// Rebuild collaborators from the options frozen on the job row.
	pipe, err := o.factory.New(ctx, p, job.Options)
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}

	if editedScript != nil {
		editedScript.EpisodeID = job.EpisodeID
		if err := pipe.SaveScript(editedScript); err != nil {
			return fmt.Errorf("save edited script: %w", err)
		}
	}
	sc, err := pipe.LoadScript(job.EpisodeID)
	if err != nil {
		return fmt.Errorf("load script for resume: %w", err)
	}

	ok, err := o.store.TransitionJob(ctx, jobID, store.StateResumed, store.StateWaitingForReview)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("job %s left waiting-for-review concurrently", jobID)
	}

	job.State = store.StateResumed
	job.MarkStageDone(string(progress.StageReview))
	job.Log(string(progress.StageReview), "Script approved")
	if err := o.store.UpdateJob(ctx, job); err != nil {
		return err
	}

	o.mu.Lock()
	if o.running >= o.maxJobs {
		o.mu.Unlock()
		return fmt.Errorf("max concurrent jobs reached (%d)", o.maxJobs)
	}
	o.running++
	jobCtx := observability.DetachTraceContextFrom(ctx, o.baseCtx)
	jobCtx, cancel := context.WithCancel(jobCtx)
	o.cancels[jobID] = cancel
	o.mu.Unlock()

	go o.resumeJob(jobCtx, job, pipe, sc)
	return nil
}

// RecoverOrphans marks jobs left pending or running by a previous
// process as failed. Jobs waiting for review survive restart unchanged.
func (o *Orchestrator) RecoverOrphans(ctx context.Context) error {
	orphans, err := o.store.JobsInStates(ctx, store.StatePending, store.StateRunning, store.StateResumed)
	if err != nil {
		return err
	}
	for _, job := range orphans {
		job.State = store.StateFailed
		job.Error = "interrupted by restart"
		now := time.Now().UTC()
		job.CompletedAt = &now
		job.Log(job.Stage, "interrupted by restart")
		if err := o.store.UpdateJob(ctx, job); err != nil {
			return err
		}
		o.log.InfoContext(ctx, "Marked orphaned job as failed", "job", job.ID, "stage", job.Stage)
	}
	return nil
}

// Shutdown cancels every running worker.
func (o *Orchestrator) Shutdown() {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, cancel := range o.cancels {
		cancel()
	}
}

func (o *Orchestrator) release(id string) {
	o.mu.Lock()
	delete(o.cancels, id)
	o.running--
	o.mu.Unlock()
}
