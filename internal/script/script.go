// Package script turns verified research into multi-host episode
// dialogue and persists it for review and audio rendering.
package script

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// wordsPerMinute is the speaking-rate assumption duration estimates use.
const wordsPerMinute = 150

// DialogueLine is one spoken line.
type DialogueLine struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
	Emotion string `json:"emotion,omitempty"`
}

// Segment covers one topic of the episode.
type Segment struct {
	TopicID     string         `json:"topicId"`
	Title       string         `json:"title"`
	DurationSec int            `json:"durationSeconds"`
	Lines       []DialogueLine `json:"lines"`
}

// Script is a complete episode script.
type Script struct {
	EpisodeID string         `json:"episodeId"`
	Title     string         `json:"title"`
	Date      time.Time      `json:"date"`
	Intro     []DialogueLine `json:"intro"`
	Segments  []Segment      `json:"segments"`
	Outro     []DialogueLine `json:"outro"`
}

// WordCount counts the words across every line of the script.
func (s *Script) WordCount() int {
	n := 0
	for _, l := range s.Intro {
		n += len(strings.Fields(l.Text))
	}
	for _, seg := range s.Segments {
		for _, l := range seg.Lines {
			n += len(strings.Fields(l.Text))
		}
	}
	for _, l := range s.Outro {
		n += len(strings.Fields(l.Text))
	}
	return n
}

// EstimatedDuration converts word count to spoken time at the standard
// speaking rate.
func (s *Script) EstimatedDuration() time.Duration {
	sec := s.WordCount() * 60 / wordsPerMinute
	return time.Duration(sec) * time.Second
}

// Speakers returns the distinct speaker names in appearance order.
func (s *Script) Speakers() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(lines []DialogueLine) {
		for _, l := range lines {
			if l.Speaker != "" && !seen[l.Speaker] {
				seen[l.Speaker] = true
				out = append(out, l.Speaker)
			}
		}
	}
	add(s.Intro)
	for _, seg := range s.Segments {
		add(seg.Lines)
	}
	add(s.Outro)
	return out
}

// Validate checks the structural invariants: at least one segment and no
// empty lines.
func (s *Script) Validate() error {
	if len(s.Segments) == 0 {
		return fmt.Errorf("script %s has no segments", s.EpisodeID)
	}
	check := func(where string, lines []DialogueLine) error {
		for i, l := range lines {
			if strings.TrimSpace(l.Text) == "" {
				return fmt.Errorf("script %s: empty line %d in %s", s.EpisodeID, i, where)
			}
			if l.Speaker == "" {
				return fmt.Errorf("script %s: line %d in %s has no speaker", s.EpisodeID, i, where)
			}
		}
		return nil
	}
	if err := check("intro", s.Intro); err != nil {
		return err
	}
	for _, seg := range s.Segments {
		if err := check("segment "+seg.Title, seg.Lines); err != nil {
			return err
		}
	}
	return check("outro", s.Outro)
}

// Path returns the on-disk location of a script under the output root.
func Path(outputRoot, episodeID string) string {
	return filepath.Join(outputRoot, "scripts", episodeID+".json")
}

// Save writes the script as indented JSON, creating the directory.
func Save(s *Script, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create script dir: %w", err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal script: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write script to %s: %w", path, err)
	}
	return nil
}

// Load reads a script back and validates it.
func Load(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script from %s: %w", path, err)
	}
	var s Script
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse script from %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}
