// Package audio renders episode scripts to audio: per-line synthesis,
// section stitching, and final episode assembly.
package audio

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/apresai/newsroom/internal/assembly"
	"github.com/apresai/newsroom/internal/script"
	"github.com/apresai/newsroom/internal/tts"
)

// SegmentTiming locates one segment in the final episode audio. Type is
// intro, topic, or outro; FilePath points at the stitched section file.
type SegmentTiming struct {
	TopicID          string  `json:"topicId"`
	Title            string  `json:"title"`
	Type             string  `json:"type"`
	FilePath         string  `json:"filePath"`
	StartTimeSeconds float64 `json:"startTimeSeconds"`
	DurationSeconds  float64 `json:"durationSeconds"`
}

// Result describes the rendered episode.
type Result struct {
	EpisodeID       string
	AudioPath       string
	DurationSeconds float64
	Segments        []SegmentTiming
	FailedLines     int
}

// Renderer drives synthesis and assembly for one episode at a time.
type Renderer struct {
	provider  tts.Provider
	assembler *assembly.Assembler
	log       *slog.Logger
}

func NewRenderer(provider tts.Provider, assembler *assembly.Assembler, logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{provider: provider, assembler: assembler, log: logger}
}

// section is one stitch unit: the intro, a topic segment, or the outro.
type section struct {
	name    string
	topicID string
	title   string
	lines   []script.DialogueLine
}

func sectionsOf(sc *script.Script) []section {
	out := make([]section, 0, len(sc.Segments)+2)
	if len(sc.Intro) > 0 {
		out = append(out, section{name: "intro", title: "Intro", lines: sc.Intro})
	}
	for i, seg := range sc.Segments {
		out = append(out, section{
			name:    fmt.Sprintf("segment%d", i+1),
			topicID: seg.TopicID,
			title:   seg.Title,
			lines:   seg.Lines,
		})
	}
	if len(sc.Outro) > 0 {
		out = append(out, section{name: "outro", title: "Outro", lines: sc.Outro})
	}
	return out
}

// Render synthesizes every line, stitches sections, and assembles the
// episode file under outputRoot. Lines whose synthesis fails after
// retries are skipped and counted; an episode with zero rendered lines
// is an error.
func (r *Renderer) Render(ctx context.Context, sc *script.Script, voices map[string]tts.Voice, outputRoot string) (*Result, error) {
	workDir := filepath.Join(outputRoot, "audio", sc.EpisodeID)
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return nil, fmt.Errorf("create audio dir: %w", err)
	}

	sections := sectionsOf(sc)

	type unit struct {
		section int
		seq     int
		line    script.DialogueLine
	}
	var units []unit
	seq := 0
	for si, sec := range sections {
		for _, line := range sec.lines {
			units = append(units, unit{section: si, seq: seq, line: line})
			seq++
		}
	}
	if len(units) == 0 {
		return nil, fmt.Errorf("script %s has no lines to render", sc.EpisodeID)
	}

	files := make([]string, len(units))
	var mu sync.Mutex
	failed := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.provider.MaxConcurrency())
	for i, u := range units {
		g.Go(func() error {
			sec := sections[u.section]
			voice, ok := voices[u.line.Speaker]
			if !ok {
				voice = r.provider.DefaultVoice(0)
			}

			var res tts.AudioResult
			err := tts.WithRetry(gctx, func() error {
				var serr error
				res, serr = r.provider.Synthesize(gctx, u.line.Text, voice)
				return serr
			})
			if err != nil {
				r.log.WarnContext(gctx, "Line synthesis failed, skipping",
					"episode", sc.EpisodeID, "seq", u.seq, "speaker", u.line.Speaker, "error", err)
				mu.Lock()
				failed++
				mu.Unlock()
				return nil
			}

			path := filepath.Join(workDir, fmt.Sprintf("%03d_%s_%s.wav", u.seq, sec.name, u.line.Speaker))
			if err := writeUnit(path, res); err != nil {
				return err
			}
			files[i] = path
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if failed == len(units) {
		return nil, fmt.Errorf("all %d lines failed to synthesize", len(units))
	}

	// Stitch each section, then the episode.
	var sectionFiles []string
	renderedSections := make([]int, 0, len(sections))
	for si := range sections {
		var lineFiles []string
		for i, u := range units {
			if u.section == si && files[i] != "" {
				lineFiles = append(lineFiles, files[i])
			}
		}
		if len(lineFiles) == 0 {
			continue
		}
		out := filepath.Join(workDir, fmt.Sprintf("section_%s.wav", sections[si].name))
		actual, err := r.assembler.JoinSection(ctx, lineFiles, workDir, out)
		if err != nil {
			return nil, fmt.Errorf("stitch section %s: %w", sections[si].name, err)
		}
		sectionFiles = append(sectionFiles, actual)
		renderedSections = append(renderedSections, si)
	}

	episodeDir := filepath.Join(outputRoot, "episodes")
	if err := os.MkdirAll(episodeDir, 0755); err != nil {
		return nil, fmt.Errorf("create episodes dir: %w", err)
	}
	episodePath, err := r.assembler.JoinEpisode(ctx, sectionFiles, workDir, filepath.Join(episodeDir, sc.EpisodeID+".mp3"))
	if err != nil {
		return nil, fmt.Errorf("assemble episode: %w", err)
	}

	result := &Result{
		EpisodeID:   sc.EpisodeID,
		AudioPath:   episodePath,
		FailedLines: failed,
	}
	timings(result, sections, renderedSections, sectionFiles)
	return result, nil
}

// timings estimates section start offsets from word counts plus the
// inter-section pauses. files holds the stitched section paths, one per
// rendered index.
func timings(res *Result, sections []section, rendered []int, files []string) {
	const pauseSec = 0.5
	cursor := 0.0
	for ri, si := range rendered {
		sec := sections[si]
		dur := sectionDuration(sec.lines)
		if sec.topicID != "" || sec.name == "intro" || sec.name == "outro" {
			var path string
			if ri < len(files) {
				path = files[ri]
			}
			res.Segments = append(res.Segments, SegmentTiming{
				TopicID:          sec.topicID,
				Title:            sec.title,
				Type:             sectionType(sec),
				FilePath:         path,
				StartTimeSeconds: cursor,
				DurationSeconds:  dur,
			})
		}
		cursor += dur + pauseSec
	}
	if cursor > 0 {
		res.DurationSeconds = cursor - pauseSec
	}
}

func sectionType(sec section) string {
	switch sec.name {
	case "intro", "outro":
		return sec.name
	default:
		return "topic"
	}
}

func sectionDuration(lines []script.DialogueLine) float64 {
	words := 0
	for _, l := range lines {
		words += len(strings.Fields(l.Text))
	}
	return float64(words) * 60 / 150
}

// writeUnit persists one synthesis result as WAV, wrapping raw PCM.
func writeUnit(path string, res tts.AudioResult) error {
	switch res.Format {
	case tts.FormatPCM:
		return writeWAV(path, res.Data, res.SampleRate)
	default:
		if err := os.WriteFile(path, res.Data, 0644); err != nil {
			return fmt.Errorf("write audio unit: %w", err)
		}
		return nil
	}
}
