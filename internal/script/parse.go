package script

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/apresai/newsroom/internal/llm"
)

// flatScript is the alternate shape some model outputs collapse into: one
// flat list of lines with optional section markers.
type flatScript struct {
	Title    string `json:"title"`
	Segments []struct {
		Speaker string `json:"speaker"`
		Text    string `json:"text"`
		Emotion string `json:"emotion"`
		Section string `json:"section"`
	} `json:"segments"`
}

// Parse extracts a script from raw model output. It tolerates markdown
// fences and surrounding prose, and remaps the flat single-list schema
// into intro, segments, and outro.
func Parse(raw string) (*Script, error) {
	text := strings.TrimSpace(llm.ExtractJSON(llm.StripFences(raw)))
	if text == "" {
		return nil, fmt.Errorf("no JSON content in response")
	}

	// The flat shape also unmarshals into Script, leaving every segment
	// without lines, so require at least one dialogue line here.
	var sc Script
	if err := json.Unmarshal([]byte(text), &sc); err == nil && hasLines(&sc) {
		return &sc, nil
	}

	// Flat fallback: a single segments list of speaker/text lines.
	var flat flatScript
	if err := json.Unmarshal([]byte(text), &flat); err != nil {
		return nil, fmt.Errorf("invalid script JSON: %w", err)
	}
	if len(flat.Segments) == 0 {
		return nil, fmt.Errorf("script has no segments")
	}
	return fromFlat(flat), nil
}

func hasLines(sc *Script) bool {
	for _, seg := range sc.Segments {
		if len(seg.Lines) > 0 {
			return true
		}
	}
	return false
}

// fromFlat reclassifies a flat line list: leading lines before any topic
// content become the intro, trailing sign-off lines the outro, and the
// middle one segment.
func fromFlat(flat flatScript) *Script {
	lines := make([]DialogueLine, 0, len(flat.Segments))
	for _, s := range flat.Segments {
		if strings.TrimSpace(s.Text) == "" {
			continue
		}
		lines = append(lines, DialogueLine{Speaker: s.Speaker, Text: s.Text, Emotion: s.Emotion})
	}

	sc := &Script{Title: flat.Title}
	introEnd := 0
	for introEnd < len(lines) && introEnd < 2 && looksLikeIntro(lines[introEnd].Text) {
		introEnd++
	}
	outroStart := len(lines)
	for outroStart > introEnd && len(lines)-outroStart < 2 && looksLikeOutro(lines[outroStart-1].Text) {
		outroStart--
	}

	sc.Intro = lines[:introEnd]
	sc.Outro = lines[outroStart:]
	body := lines[introEnd:outroStart]
	if len(body) > 0 {
		sc.Segments = []Segment{{Title: flat.Title, Lines: body}}
	}
	return sc
}

func looksLikeIntro(text string) bool {
	t := strings.ToLower(text)
	return strings.Contains(t, "welcome") || strings.Contains(t, "today we") ||
		strings.Contains(t, "today's episode") || strings.Contains(t, "i'm your host")
}

func looksLikeOutro(text string) bool {
	t := strings.ToLower(text)
	return strings.Contains(t, "thanks for listening") || strings.Contains(t, "that's all") ||
		strings.Contains(t, "see you") || strings.Contains(t, "until next time")
}
