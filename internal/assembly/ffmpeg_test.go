package assembly

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncodeArgs(t *testing.T) {
	mp3 := encodeArgs("/out/ep.mp3")
	assert.Contains(t, mp3, "-c:a")
	assert.Contains(t, mp3, AudioCodec)
	assert.Contains(t, mp3, "/out/ep.mp3")

	wav := encodeArgs("/out/ep.wav")
	assert.NotContains(t, wav, AudioCodec)
	assert.Contains(t, wav, "/out/ep.wav")
}

func TestResolveOutputKeepsMP3WhenEncoderPresent(t *testing.T) {
	orig := mp3EncoderCheck
	mp3EncoderCheck = func() bool { return true }
	defer func() { mp3EncoderCheck = orig }()

	a := New(DefaultConfig(), nil)
	assert.Equal(t, "/out/ep.mp3", a.resolveOutput("/out/ep.mp3"))
}

func TestResolveOutputFallsBackToWAV(t *testing.T) {
	orig := mp3EncoderCheck
	mp3EncoderCheck = func() bool { return false }
	defer func() { mp3EncoderCheck = orig }()

	a := New(DefaultConfig(), nil)
	assert.Equal(t, "/out/ep.wav", a.resolveOutput("/out/ep.mp3"))
	// Once detected, later calls skip the probe.
	assert.Equal(t, "/out/other.wav", a.resolveOutput("/out/other.mp3"))

	// Non-MP3 targets pass through untouched.
	assert.Equal(t, "/out/raw.wav", a.resolveOutput("/out/raw.wav"))
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Greater(t, cfg.InterSectionPause, cfg.IntraSectionPause)
}
