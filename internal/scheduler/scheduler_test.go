package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apresai/newsroom/internal/profile"
)

func TestCronSpec(t *testing.T) {
	spec, err := cronSpec(profile.Schedule{Hour: 6, Minute: 30})
	require.NoError(t, err)
	assert.Equal(t, "30 6 * * *", spec)

	spec, err = cronSpec(profile.Schedule{
		Hour:     7,
		Minute:   0,
		Weekdays: []time.Weekday{time.Monday, time.Wednesday, time.Friday},
	})
	require.NoError(t, err)
	assert.Equal(t, "0 7 * * 1,3,5", spec)

	spec, err = cronSpec(profile.Schedule{Hour: 6, Minute: 0, Timezone: "Europe/Berlin"})
	require.NoError(t, err)
	assert.Equal(t, "CRON_TZ=Europe/Berlin 0 6 * * *", spec)
}

func TestCronSpecRejectsInvalid(t *testing.T) {
	_, err := cronSpec(profile.Schedule{Hour: 25})
	assert.Error(t, err)

	_, err = cronSpec(profile.Schedule{Hour: 6, Minute: 61})
	assert.Error(t, err)

	_, err = cronSpec(profile.Schedule{Hour: 6, Timezone: "Mars/Olympus"})
	assert.Error(t, err)
}
