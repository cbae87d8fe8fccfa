package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/apresai/newsroom/internal/profile"
	"github.com/apresai/newsroom/internal/progress"
	"github.com/apresai/newsroom/internal/script"
	"github.com/apresai/newsroom/internal/store"
)

// runJob drives a fresh job from pending to its terminal state.
func (o *Orchestrator) runJob(ctx context.Context, job *store.Job, p *profile.Profile) {
	ctx, span := tracer.Start(ctx, "job.run",
		trace.WithAttributes(
			attribute.String("job_id", job.ID),
			attribute.String("profile_id", job.ProfileID),
		),
	)
	defer span.End()
	defer o.release(job.ID)
	defer o.failOnShutdown(ctx, job.ID)

	log := o.log.With("job", job.ID, "profile", job.ProfileID)

	now := time.Now().UTC()
	job.State = store.StateRunning
	job.StartedAt = &now
	if err := o.store.UpdateJob(ctx, job); err != nil {
		if errors.Is(err, store.ErrJobStale) {
			log.InfoContext(ctx, "Job reached a terminal state before starting")
		} else {
			log.ErrorContext(ctx, "Mark job running failed", "error", err)
		}
		return
	}

	pipe, err := o.factory.New(ctx, p, job.Options)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "build pipeline failed")
		o.failJob(ctx, job, err)
		return
	}

	emit := o.progressWriter(ctx, job, span)

	sc, err := pipe.Produce(ctx, job, emit)
	if err != nil {
		if o.jobWasCancelled(ctx, job.ID) {
			log.InfoContext(ctx, "Job cancelled during production")
			return
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "produce failed")
		o.failJob(ctx, job, err)
		return
	}
	if o.checkCancelled(ctx, job, log) {
		return
	}

	job.EpisodeID = sc.EpisodeID

	// Pause for human review at the scripting -> audio boundary. The
	// script is already on disk; the worker terminates and a later
	// approve call re-enters at the audio stage. Scripting is done by
	// this point, and the resume worker's progress writer starts with
	// no prior stage, so it must be marked here.
	if job.Options.EditorialReview {
		job.MarkStageDone(string(progress.StageScripting))
		job.State = store.StateWaitingForReview
		job.Stage = string(progress.StageReview)
		job.Progress = progress.StageReview.Percent()
		job.Log(string(progress.StageReview), "Waiting for review: "+sc.EpisodeID)
		if err := o.store.UpdateJob(ctx, job); err != nil {
			log.ErrorContext(ctx, "Persist review pause failed", "error", err)
		}
		span.AddEvent("paused_for_review")
		log.InfoContext(ctx, "Paused for review", "episode", sc.EpisodeID)
		return
	}
	job.MarkStageDone(string(progress.StageReview))

	o.finishJob(ctx, job, pipe, sc, emit, span)
}

// resumeJob re-enters the pipeline at the audio stage after approval.
func (o *Orchestrator) resumeJob(ctx context.Context, job *store.Job, pipe Pipeline, sc *script.Script) {
	ctx, span := tracer.Start(ctx, "job.resume",
		trace.WithAttributes(
			attribute.String("job_id", job.ID),
			attribute.String("episode_id", job.EpisodeID),
		),
	)
	defer span.End()
	defer o.release(job.ID)
	defer o.failOnShutdown(ctx, job.ID)

	job.State = store.StateRunning
	if err := o.store.UpdateJob(ctx, job); err != nil {
		if errors.Is(err, store.ErrJobStale) {
			o.log.InfoContext(ctx, "Job reached a terminal state before resuming", "job", job.ID)
		} else {
			o.log.ErrorContext(ctx, "Mark job running failed", "job", job.ID, "error", err)
		}
		return
	}

	emit := o.progressWriter(ctx, job, span)
	o.finishJob(ctx, job, pipe, sc, emit, span)
}

// finishJob runs audio and persistence and records the terminal state.
func (o *Orchestrator) finishJob(ctx context.Context, job *store.Job, pipe Pipeline, sc *script.Script, emit progress.Callback, span trace.Span) {
	log := o.log.With("job", job.ID)

	episodeID, err := pipe.Finish(ctx, job, sc, emit)
	if err != nil {
		if o.jobWasCancelled(ctx, job.ID) {
			log.InfoContext(ctx, "Job cancelled during finish")
			return
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "finish failed")
		o.failJob(ctx, job, err)
		return
	}
	if o.checkCancelled(ctx, job, log) {
		return
	}

	now := time.Now().UTC()
	job.State = store.StateCompleted
	job.Stage = string(progress.StageDone)
	job.Progress = progress.StageDone.Percent()
	job.EpisodeID = episodeID
	job.CompletedAt = &now
	job.Log(string(progress.StageDone), "Episode complete: "+episodeID)
	if err := o.store.UpdateJob(ctx, job); err != nil {
		log.ErrorContext(ctx, "Mark job completed failed", "error", err)
		return
	}
	span.SetAttributes(attribute.String("episode_id", episodeID))
	span.SetStatus(codes.Ok, "complete")
	log.InfoContext(ctx, "Job complete", "episode", episodeID)
}

// progressWriter persists stage transitions immediately and throttles
// within-stage updates to one write per two seconds.
func (o *Orchestrator) progressWriter(ctx context.Context, job *store.Job, span trace.Span) progress.Callback {
	var lastWrite time.Time
	var lastStage progress.Stage

	return func(evt progress.Event) {
		now := time.Now()
		stageChanged := evt.Stage != lastStage
		throttled := now.Sub(lastWrite) < 2*time.Second

		if throttled && !stageChanged {
			return
		}
		if stageChanged {
			span.AddEvent("stage_transition",
				trace.WithAttributes(
					attribute.String("stage", string(evt.Stage)),
					attribute.Int("percent", evt.Percent),
				),
			)
			if lastStage != "" {
				job.MarkStageDone(string(lastStage))
			}
		}

		job.Stage = string(evt.Stage)
		job.Progress = evt.Percent
		job.Log(string(evt.Stage), evt.Message)
		if err := o.store.UpdateJob(ctx, job); err != nil && !errors.Is(err, store.ErrJobStale) {
			o.log.WarnContext(ctx, "Update progress failed", "job", job.ID, "error", err)
		}
		lastWrite = now
		lastStage = evt.Stage
	}
}

// checkCancelled polls the stored state at a stage boundary.
func (o *Orchestrator) checkCancelled(ctx context.Context, job *store.Job, log *slog.Logger) bool {
	if o.jobWasCancelled(ctx, job.ID) {
		log.InfoContext(ctx, "Job cancelled, abandoning at stage boundary", "stage", job.Stage)
		return true
	}
	return false
}

func (o *Orchestrator) jobWasCancelled(ctx context.Context, jobID string) bool {
	stored, err := o.store.GetJob(context.WithoutCancel(ctx), jobID)
	if err != nil || stored == nil {
		return false
	}
	return stored.State == store.StateCancelled
}

// failOnShutdown marks a job failed when its context died to SIGTERM so
// it does not appear stuck in a running stage forever.
func (o *Orchestrator) failOnShutdown(ctx context.Context, jobID string) {
	if ctx.Err() == nil {
		return
	}
	failCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	job, err := o.store.GetJob(failCtx, jobID)
	if err != nil || job == nil {
		return
	}
	switch job.State {
	case store.StateCompleted, store.StateFailed, store.StateCancelled, store.StateWaitingForReview:
		return
	}
	job.State = store.StateFailed
	job.Error = "server shutdown during processing"
	now := time.Now().UTC()
	job.CompletedAt = &now
	if err := o.store.UpdateJob(failCtx, job); err == nil {
		o.log.Info("Marked job as failed due to shutdown", "job", jobID)
	}
}

func (o *Orchestrator) failJob(ctx context.Context, job *store.Job, cause error) {
	now := time.Now().UTC()
	job.State = store.StateFailed
	job.Error = cause.Error()
	job.CompletedAt = &now
	job.Log(job.Stage, "Failed: "+cause.Error())
	if err := o.store.UpdateJob(context.WithoutCancel(ctx), job); err != nil {
		if errors.Is(err, store.ErrJobStale) {
			o.log.InfoContext(ctx, "Job already terminal, keeping stored state", "job", job.ID)
			return
		}
		o.log.ErrorContext(ctx, "Mark job failed failed", "job", job.ID, "error", err)
	}
}
