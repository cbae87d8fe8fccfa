// Package assembly stitches synthesized audio into episode files by
// shelling out to ffmpeg.
package assembly

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Audio quality constants for consistent output across all ffmpeg runs.
const (
	AudioBitrate    = "192k"
	AudioSampleRate = "44100"
	AudioChannels   = "2"
	AudioCodec      = "libmp3lame"
	AudioQuality    = "0" // LAME quality, 0 is best
	AudioResampler  = "aresample=resampler=soxr"
)

// Config tunes the pauses and the optional music bed.
type Config struct {
	// IntraSectionPause separates lines within a section.
	IntraSectionPause time.Duration
	// InterSectionPause separates sections.
	InterSectionPause time.Duration
	// MusicPath, when set, is mixed under the intro ducked below speech.
	MusicPath   string
	MusicDuckDB float64
}

// DefaultConfig returns the production pause lengths.
func DefaultConfig() Config {
	return Config{
		IntraSectionPause: 350 * time.Millisecond,
		InterSectionPause: 500 * time.Millisecond,
		MusicDuckDB:       11,
	}
}

// Assembler joins audio files into one episode.
type Assembler struct {
	cfg Config
	log *slog.Logger

	mp3Unavailable bool
}

func New(cfg Config, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{cfg: cfg, log: logger}
}

// JoinSection concatenates the lines of one section with the short
// intra-section pause between them.
func (a *Assembler) JoinSection(ctx context.Context, lineFiles []string, tmpDir, output string) (string, error) {
	return a.join(ctx, lineFiles, tmpDir, output, a.cfg.IntraSectionPause)
}

// JoinEpisode concatenates section files with the longer inter-section
// pause and optionally mixes the music bed under the result. It returns
// the path actually written, which differs from output when the MP3
// encoder fallback kicks in.
func (a *Assembler) JoinEpisode(ctx context.Context, sectionFiles []string, tmpDir, output string) (string, error) {
	if a.cfg.MusicPath == "" {
		return a.join(ctx, sectionFiles, tmpDir, output, a.cfg.InterSectionPause)
	}

	speech := filepath.Join(tmpDir, "speech_full"+filepath.Ext(output))
	if _, err := a.join(ctx, sectionFiles, tmpDir, speech, a.cfg.InterSectionPause); err != nil {
		return "", err
	}
	return a.mixMusic(ctx, speech, output)
}

func (a *Assembler) join(ctx context.Context, files []string, tmpDir, output string, pause time.Duration) (string, error) {
	if len(files) == 0 {
		return "", fmt.Errorf("no audio files to join")
	}

	silencePath := filepath.Join(tmpDir, fmt.Sprintf("silence_%dms.wav", pause.Milliseconds()))
	if err := a.generateSilence(ctx, pause, silencePath); err != nil {
		return "", fmt.Errorf("generate silence: %w", err)
	}

	listPath := filepath.Join(tmpDir, "concat.txt")
	if err := buildConcatList(files, silencePath, listPath); err != nil {
		return "", fmt.Errorf("build concat list: %w", err)
	}

	actual, err := a.runConcat(ctx, listPath, output)
	if err != nil {
		return "", fmt.Errorf("ffmpeg concat: %w", err)
	}
	return actual, nil
}

func (a *Assembler) generateSilence(ctx context.Context, d time.Duration, output string) error {
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-f", "lavfi",
		"-i", fmt.Sprintf("anullsrc=r=%s:cl=stereo", AudioSampleRate),
		"-t", fmt.Sprintf("%.3f", d.Seconds()),
		"-y",
		output,
	)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	cmd.Stdout = nil

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg silence generation failed: %w\n%s", err, stderr.String())
	}
	return nil
}

func buildConcatList(files []string, silencePath string, listPath string) error {
	var lines []string
	for i, f := range files {
		lines = append(lines, fmt.Sprintf("file '%s'", f))
		if i < len(files)-1 {
			lines = append(lines, fmt.Sprintf("file '%s'", silencePath))
		}
	}

	content := strings.Join(lines, "\n") + "\n"
	if err := os.WriteFile(listPath, []byte(content), 0644); err != nil {
		return fmt.Errorf("write concat list: %w", err)
	}
	return nil
}

// mixMusic lays the music bed under the speech, ducked and faded.
func (a *Assembler) mixMusic(ctx context.Context, speech, output string) (string, error) {
	duck := a.cfg.MusicDuckDB
	if duck <= 0 {
		duck = 11
	}
	filter := fmt.Sprintf(
		"[1:a]volume=-%.1fdB,afade=t=in:st=0:d=2,afade=t=out:st=8:d=3[bed];[0:a][bed]amix=inputs=2:duration=first:dropout_transition=2",
		duck,
	)
	actual := a.resolveOutput(output)
	args := append([]string{
		"-i", speech,
		"-i", a.cfg.MusicPath,
		"-filter_complex", filter,
	}, encodeArgs(actual)...)

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	cmd.Stdout = nil

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("ffmpeg music mix failed: %w\n%s", err, stderr.String())
	}
	return actual, nil
}

// ConvertPCM converts raw 16-bit signed little-endian mono PCM to the
// target container. Returns the path actually written.
func (a *Assembler) ConvertPCM(ctx context.Context, input string, sampleRate int, output string) (string, error) {
	if sampleRate <= 0 {
		sampleRate = 24000
	}
	actual := a.resolveOutput(output)
	args := append([]string{
		"-f", "s16le",
		"-ar", fmt.Sprintf("%d", sampleRate),
		"-ac", "1",
		"-i", input,
		"-af", AudioResampler,
	}, encodeArgs(actual)...)

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	cmd.Stdout = nil

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("ffmpeg conversion (pcm -> %s) failed: %w\n%s", filepath.Ext(actual), err, stderr.String())
	}
	return actual, nil
}

func (a *Assembler) runConcat(ctx context.Context, listPath string, output string) (string, error) {
	actual := a.resolveOutput(output)
	args := append([]string{
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-af", AudioResampler,
	}, encodeArgs(actual)...)

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	cmd.Stdout = nil

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("ffmpeg concat failed: %w\n%s", err, stderr.String())
	}

	info, err := os.Stat(actual)
	if err != nil {
		return "", fmt.Errorf("output file not created: %w", err)
	}
	if info.Size() == 0 {
		return "", fmt.Errorf("output file is empty")
	}
	return actual, nil
}

// resolveOutput downgrades an MP3 target to WAV when the local ffmpeg
// build has no MP3 encoder.
func (a *Assembler) resolveOutput(output string) string {
	if !strings.EqualFold(filepath.Ext(output), ".mp3") {
		return output
	}
	if !a.mp3Unavailable && HasMP3Encoder() {
		return output
	}
	if !a.mp3Unavailable {
		a.mp3Unavailable = true
		a.log.Warn("MP3 encoder unavailable, writing WAV instead", "output", output)
	}
	return strings.TrimSuffix(output, filepath.Ext(output)) + ".wav"
}

// encodeArgs picks the encoder flags for the output extension.
func encodeArgs(output string) []string {
	if strings.EqualFold(filepath.Ext(output), ".mp3") {
		return []string{
			"-c:a", AudioCodec,
			"-b:a", AudioBitrate,
			"-q:a", AudioQuality,
			"-ar", AudioSampleRate,
			"-ac", AudioChannels,
			"-y",
			output,
		}
	}
	return []string{
		"-ar", AudioSampleRate,
		"-ac", AudioChannels,
		"-y",
		output,
	}
}

var mp3EncoderCheck func() bool = checkMP3Encoder

// HasMP3Encoder reports whether the local ffmpeg build carries libmp3lame.
func HasMP3Encoder() bool {
	return mp3EncoderCheck()
}

func checkMP3Encoder() bool {
	out, err := exec.Command("ffmpeg", "-hide_banner", "-encoders").Output()
	if err != nil {
		return false
	}
	return strings.Contains(string(out), AudioCodec)
}
