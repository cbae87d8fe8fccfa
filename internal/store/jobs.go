package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Job states.
const (
	StatePending          = "pending"
	StateRunning          = "running"
	StateWaitingForReview = "waiting-for-review"
	StateResumed          = "resumed"
	StateCompleted        = "completed"
	StateFailed           = "failed"
	StateCancelled        = "cancelled"
)

// maxActivityEntries bounds the per-job activity log.
const maxActivityEntries = 200

// ErrJobStale is returned by UpdateJob when the row is missing or has
// already reached a terminal state the caller did not read.
var ErrJobStale = errors.New("job missing or already finished")

// Options freeze the generation parameters at job creation.
type Options struct {
	TopicCount      int    `json:"topicCount,omitempty"`
	DurationMinutes int    `json:"durationMinutes,omitempty"`
	DeepResearch    bool   `json:"deepResearch,omitempty"`
	EditorialReview bool   `json:"editorialReview,omitempty"`
	UseContinuity   *bool  `json:"useContinuity,omitempty"`
	TTSModel        string `json:"ttsModel,omitempty"`
	GenerateAudio   *bool  `json:"generateAudio,omitempty"`
}

// Continuity reports the effective useContinuity value (default true).
func (o Options) Continuity() bool {
	return o.UseContinuity == nil || *o.UseContinuity
}

// Audio reports the effective generateAudio value (default true).
func (o Options) Audio() bool {
	return o.GenerateAudio == nil || *o.GenerateAudio
}

// ActivityEntry is one line in a job's activity log.
type ActivityEntry struct {
	At      time.Time `json:"at"`
	Stage   string    `json:"stage"`
	Message string    `json:"message"`
}

// Job is one generation run.
type Job struct {
	ID              string
	ProfileID       string
	State           string
	Stage           string
	Progress        int
	StagesCompleted []string
	StagesPending   []string
	Options         Options
	Activity        []ActivityEntry
	Error           string
	EpisodeID       string
	CreatedAt       time.Time
	StartedAt       *time.Time
	CompletedAt     *time.Time
	UpdatedAt       time.Time
}

// MarkStageDone moves a stage from pending to completed.
func (j *Job) MarkStageDone(stage string) {
	for i, s := range j.StagesPending {
		if s == stage {
			j.StagesPending = append(j.StagesPending[:i], j.StagesPending[i+1:]...)
			break
		}
	}
	for _, s := range j.StagesCompleted {
		if s == stage {
			return
		}
	}
	j.StagesCompleted = append(j.StagesCompleted, stage)
}

// Log appends one activity entry.
func (j *Job) Log(stage, message string) {
	j.Activity = append(j.Activity, ActivityEntry{At: time.Now().UTC(), Stage: stage, Message: message})
}

// CreateJob inserts a pending job.
func (s *Store) CreateJob(ctx context.Context, job *Job) error {
	opts, err := json.Marshal(job.Options)
	if err != nil {
		return fmt.Errorf("marshal job options: %w", err)
	}
	activity, err := json.Marshal(job.Activity)
	if err != nil {
		return fmt.Errorf("marshal job activity: %w", err)
	}
	completed, _ := json.Marshal(orEmpty(job.StagesCompleted))
	pending, _ := json.Marshal(orEmpty(job.StagesPending))
	now := time.Now().UTC()
	job.CreatedAt, job.UpdatedAt = now, now

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO generation_jobs (id, profile_id, state, stage, progress, stages_completed_json, stages_pending_json, options_json, activity_json, error, episode_id, created_at, started_at, completed_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.ProfileID, job.State, job.Stage, job.Progress,
		string(completed), string(pending),
		string(opts), string(activity), job.Error, nullable(job.EpisodeID),
		now.Format(time.RFC3339), nullableTime(job.StartedAt), nullableTime(job.CompletedAt),
		now.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// GetJob loads one job. Missing jobs return (nil, nil).
func (s *Store) GetJob(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, jobColumns+" FROM generation_jobs WHERE id = ?", id)
	return scanJob(row)
}

// JobsInStates returns jobs in any of the given states, newest first.
func (s *Store) JobsInStates(ctx context.Context, states ...string) ([]*Job, error) {
	if len(states) == 0 {
		return nil, nil
	}
	query := jobColumns + ` FROM generation_jobs WHERE state IN (`
	args := make([]any, len(states))
	for i, st := range states {
		if i > 0 {
			query += ","
		}
		query += "?"
		args[i] = st
	}
	query += ") ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// UpdateJob writes back the mutable fields. The activity log is trimmed
// to the newest entries before persisting. A row already in a terminal
// state is never overwritten unless the caller is re-writing that same
// state (e.g. adding detail to a cancellation); a worker racing a
// concurrent cancel gets ErrJobStale instead of resurrecting the job.
func (s *Store) UpdateJob(ctx context.Context, job *Job) error {
	if len(job.Activity) > maxActivityEntries {
		job.Activity = job.Activity[len(job.Activity)-maxActivityEntries:]
	}
	opts, err := json.Marshal(job.Options)
	if err != nil {
		return fmt.Errorf("marshal job options: %w", err)
	}
	activity, err := json.Marshal(job.Activity)
	if err != nil {
		return fmt.Errorf("marshal job activity: %w", err)
	}
	completed, _ := json.Marshal(orEmpty(job.StagesCompleted))
	pending, _ := json.Marshal(orEmpty(job.StagesPending))
	job.UpdatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx, `
		UPDATE generation_jobs
		SET state = ?, stage = ?, progress = ?, stages_completed_json = ?, stages_pending_json = ?, options_json = ?, activity_json = ?, error = ?, episode_id = ?, started_at = ?, completed_at = ?, updated_at = ?
		WHERE id = ? AND (state = ? OR state NOT IN (?, ?, ?))`,
		job.State, job.Stage, job.Progress, string(completed), string(pending),
		string(opts), string(activity), job.Error, nullable(job.EpisodeID),
		nullableTime(job.StartedAt), nullableTime(job.CompletedAt),
		job.UpdatedAt.Format(time.RFC3339), job.ID,
		job.State, StateCompleted, StateFailed, StateCancelled)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update job %s: %w", job.ID, ErrJobStale)
	}
	return nil
}

// TransitionJob atomically moves a job from one of the allowed states to
// next. It returns false without error when the job is not in an allowed
// state.
func (s *Store) TransitionJob(ctx context.Context, id, next string, allowed ...string) (bool, error) {
	query := `UPDATE generation_jobs SET state = ?, updated_at = ? WHERE id = ? AND state IN (`
	args := []any{next, time.Now().UTC().Format(time.RFC3339), id}
	for i, st := range allowed {
		if i > 0 {
			query += ","
		}
		query += "?"
		args = append(args, st)
	}
	query += ")"

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("transition job: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

const jobColumns = `SELECT id, profile_id, state, stage, progress, stages_completed_json, stages_pending_json, options_json, activity_json, error, episode_id, created_at, started_at, completed_at, updated_at`

func scanJob(row rowScanner) (*Job, error) {
	var job Job
	var completedJSON, pendingJSON, optsJSON, activityJSON, createdAt, updatedAt string
	var episodeID, startedAt, completedAt sql.NullString
	err := row.Scan(&job.ID, &job.ProfileID, &job.State, &job.Stage, &job.Progress,
		&completedJSON, &pendingJSON, &optsJSON, &activityJSON, &job.Error, &episodeID,
		&createdAt, &startedAt, &completedAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan job: %w", err)
	}
	if err := json.Unmarshal([]byte(optsJSON), &job.Options); err != nil {
		return nil, fmt.Errorf("parse job options: %w", err)
	}
	if err := json.Unmarshal([]byte(activityJSON), &job.Activity); err != nil {
		return nil, fmt.Errorf("parse job activity: %w", err)
	}
	if err := json.Unmarshal([]byte(completedJSON), &job.StagesCompleted); err != nil {
		return nil, fmt.Errorf("parse completed stages: %w", err)
	}
	if err := json.Unmarshal([]byte(pendingJSON), &job.StagesPending); err != nil {
		return nil, fmt.Errorf("parse pending stages: %w", err)
	}
	job.EpisodeID = episodeID.String
	job.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	job.StartedAt = parseNullTime(startedAt)
	job.CompletedAt = parseNullTime(completedAt)
	job.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &job, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil
	}
	return &t
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
