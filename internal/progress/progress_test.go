package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStagePercent(t *testing.T) {
	tests := []struct {
		stage Stage
		want  int
	}{
		{StageInitializing, 5},
		{StageAggregation, 20},
		{StageClustering, 35},
		{StageResearch, 50},
		{StageScripting, 60},
		{StageReview, 60},
		{StageAudio, 75},
		{StagePersisting, 95},
		{StageDone, 100},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.stage.Percent(), string(tt.stage))
	}

	// Percent is monotonic along the stage order.
	order := []Stage{StageInitializing, StageAggregation, StageClustering,
		StageResearch, StageScripting, StageReview, StageAudio, StagePersisting, StageDone}
	for i := 1; i < len(order); i++ {
		assert.GreaterOrEqual(t, order[i].Percent(), order[i-1].Percent())
	}
}

func TestNewEvent(t *testing.T) {
	start := time.Now().Add(-3 * time.Second)
	e := NewEvent(StageResearch, "Researching 4 topics", start)

	assert.Equal(t, StageResearch, e.Stage)
	assert.Equal(t, 50, e.Percent)
	assert.Equal(t, "Researching 4 topics", e.Message)
	assert.GreaterOrEqual(t, e.Elapsed, 3*time.Second)
}
