// Package tts abstracts the speech synthesis backends.
package tts

import (
	"context"
	"fmt"
	"time"
)

// AudioFormat is the encoding a provider returns.
type AudioFormat string

const (
	FormatMP3 AudioFormat = "mp3"
	FormatPCM AudioFormat = "pcm" // raw PCM, needs WAV wrapping
	FormatWAV AudioFormat = "wav"
)

// Voice holds a provider-specific voice identifier.
type Voice struct {
	ID   string
	Name string
}

// AudioResult is the output of a synthesis call.
type AudioResult struct {
	Data       []byte
	Format     AudioFormat
	SampleRate int
}

// Provider synthesizes speech from text.
type Provider interface {
	Name() string
	Synthesize(ctx context.Context, text string, voice Voice) (AudioResult, error)
	// DefaultVoice returns the fallback voice for the nth host of a show.
	DefaultVoice(hostIndex int) Voice
	// MaxConcurrency is how many synthesis calls may run in parallel
	// before the backend starts throttling.
	MaxConcurrency() int
	Close() error
}

// VoiceInfo describes an available voice for display.
type VoiceInfo struct {
	ID          string
	Name        string
	Gender      string
	Description string
}

// AvailableVoices returns the voice catalog for the named provider.
func AvailableVoices(providerName string) ([]VoiceInfo, error) {
	switch providerName {
	case "google":
		return googleAvailableVoices(), nil
	case "cloud-tts-alt":
		return pollyAvailableVoices(), nil
	default:
		return nil, fmt.Errorf("unknown TTS provider %q", providerName)
	}
}

// Retry constants shared by all providers.
const (
	defaultMaxAttempts    = 3
	defaultInitialBackoff = 1 * time.Second
	defaultBackoffMulti   = 2
	defaultMaxBackoff     = 10 * time.Second
)

// RetryableError signals that the operation can be retried.
type RetryableError struct {
	StatusCode int
	Body       string
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Body)
}

// WithRetry executes fn with exponential backoff on RetryableError.
func WithRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	backoff := defaultInitialBackoff

	for attempt := 1; attempt <= defaultMaxAttempts; attempt++ {
		if err := fn(); err == nil {
			return nil
		} else if _, ok := err.(*RetryableError); !ok {
			return err
		} else {
			lastErr = err
		}

		if attempt < defaultMaxAttempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= time.Duration(defaultBackoffMulti)
			if backoff > defaultMaxBackoff {
				backoff = defaultMaxBackoff
			}
		}
	}

	return lastErr
}

// ProviderConfig carries optional tuning shared across backends.
type ProviderConfig struct {
	Speed float64
	Pitch float64
}

// NewProvider creates a TTS provider by name.
func NewProvider(ctx context.Context, name string, cfg ProviderConfig) (Provider, error) {
	switch name {
	case "google", "":
		return NewGoogleProvider(ctx, cfg)
	case "cloud-tts-alt":
		return NewAltProvider(ctx)
	default:
		return nil, fmt.Errorf("unknown TTS provider %q: choose google or cloud-tts-alt", name)
	}
}
