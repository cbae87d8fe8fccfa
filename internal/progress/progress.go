// Package progress carries stage transitions from the pipeline to its
// observers: the job store, the CLI renderer, and trace spans.
package progress

import "time"

// Stage identifies which pipeline stage is active.
type Stage string

const (
	StageInitializing Stage = "initializing"
	StageAggregation  Stage = "aggregation"
	StageClustering   Stage = "clustering"
	StageResearch     Stage = "research"
	StageScripting    Stage = "scripting"
	StageReview       Stage = "review"
	StageAudio        Stage = "audio"
	StagePersisting   Stage = "persisting"
	StageDone         Stage = "done"
)

// Percent maps each stage onto the overall completion percentage
// reported when the stage begins.
func (s Stage) Percent() int {
	switch s {
	case StageInitializing:
		return 5
	case StageAggregation:
		return 20
	case StageClustering:
		return 35
	case StageResearch:
		return 50
	case StageScripting:
		return 60
	case StageReview:
		return 60
	case StageAudio:
		return 75
	case StagePersisting:
		return 95
	case StageDone:
		return 100
	}
	return 0
}

// Event carries progress information from the pipeline to observers.
type Event struct {
	Stage   Stage
	Message string
	Percent int // 0-100
	Elapsed time.Duration
	Error   error
}

// Callback is the function signature for progress event handlers.
type Callback func(Event)

// NopCallback is a no-op progress callback for tests and silent mode.
func NopCallback(Event) {}

// NewEvent creates an Event at the stage's canonical percentage.
func NewEvent(stage Stage, msg string, start time.Time) Event {
	return Event{
		Stage:   stage,
		Message: msg,
		Percent: stage.Percent(),
		Elapsed: time.Since(start),
	}
}
