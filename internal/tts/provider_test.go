package tts

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apresai/newsroom/internal/profile"
)

func TestAvailableVoices(t *testing.T) {
	google, err := AvailableVoices("google")
	require.NoError(t, err)
	assert.NotEmpty(t, google)

	alt, err := AvailableVoices("cloud-tts-alt")
	require.NoError(t, err)
	assert.NotEmpty(t, alt)

	_, err = AvailableVoices("nonexistent")
	assert.Error(t, err)
}

func TestNewProviderRejectsUnknown(t *testing.T) {
	_, err := NewProvider(context.Background(), "espeak", ProviderConfig{})
	assert.Error(t, err)
}

func TestWithRetryStopsOnPermanentError(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), func() error {
		calls++
		return errors.New("permanent")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestWithRetryRetriesRetryable(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), func() error {
		calls++
		if calls < 3 {
			return &RetryableError{StatusCode: 429, Body: "throttled"}
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithRetryGivesUp(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), func() error {
		calls++
		return &RetryableError{StatusCode: 429, Body: "throttled"}
	})
	assert.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithRetryHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := WithRetry(ctx, func() error {
		return &RetryableError{StatusCode: 429, Body: "throttled"}
	})
	assert.ErrorIs(t, err, context.Canceled)
}

type stubProvider struct {
	voices []Voice
}

func (s *stubProvider) Name() string        { return "stub" }
func (s *stubProvider) MaxConcurrency() int { return 1 }
func (s *stubProvider) Close() error        { return nil }

func (s *stubProvider) Synthesize(ctx context.Context, text string, voice Voice) (AudioResult, error) {
	return AudioResult{}, nil
}

func (s *stubProvider) DefaultVoice(hostIndex int) Voice {
	return s.voices[hostIndex%len(s.voices)]
}

func TestAssignVoices(t *testing.T) {
	p := &stubProvider{voices: []Voice{{ID: "d0"}, {ID: "d1"}}}
	hosts := []profile.Host{
		{Name: "Alex"},
		{Name: "Sam", VoiceID: "custom-voice"},
	}

	voices := AssignVoices(p, hosts)
	require.Len(t, voices, 2)

	// First host takes the provider default for slot 0.
	assert.Equal(t, "d0", voices["alex"].ID)
	// Host-level overrides win.
	assert.Equal(t, "custom-voice", voices["sam"].ID)
}
