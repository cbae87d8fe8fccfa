package script

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/apresai/newsroom/internal/llm"
	"github.com/apresai/newsroom/internal/profile"
	"github.com/apresai/newsroom/internal/research"
)

// Synthesizer writes episode scripts from verified topics.
type Synthesizer struct {
	completer llm.Completer
	log       *slog.Logger
}

// NewSynthesizer creates a synthesizer.
func NewSynthesizer(completer llm.Completer, logger *slog.Logger) *Synthesizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Synthesizer{completer: completer, log: logger}
}

// Synthesize generates the full episode script. Only approved topics are
// written into segments. When the model output cannot be parsed even
// after normalization, a deterministic fallback script is returned so the
// pipeline can proceed.
func (s *Synthesizer) Synthesize(ctx context.Context, p *profile.Profile, topics []research.VerifiedTopic, date time.Time) (*Script, error) {
	approved := make([]research.VerifiedTopic, 0, len(topics))
	for _, t := range topics {
		if t.Approved {
			approved = append(approved, t)
		}
	}
	if len(approved) == 0 {
		return nil, fmt.Errorf("no approved topics to script")
	}

	resp, err := s.completer.Complete(ctx, llm.Request{
		System:      systemPrompt(p),
		Prompt:      userPrompt(p, approved),
		MaxTokens:   16384,
		Temperature: 0.7,
	})
	if err != nil {
		return nil, fmt.Errorf("synthesize script: %w", err)
	}

	sc, err := Parse(resp)
	if err != nil {
		s.log.WarnContext(ctx, "Script parse failed, using fallback script", "error", err)
		sc = Fallback(p, approved)
	}

	sc.EpisodeID = p.EpisodeID(date)
	sc.Date = date
	if sc.Title == "" {
		sc.Title = fmt.Sprintf("%s: %s - %s", approved[0].Topic.Headline, p.Name, date.Format("January 2, 2006"))
	}
	normalize(sc, p, approved)
	return sc, nil
}

// systemPrompt renders the show identity and host personas into the
// writing instructions.
func systemPrompt(p *profile.Profile) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You write scripts for %q, a podcast for %s. Overall tone: %s.\n\nHOSTS:\n",
		p.Name, p.Audience, p.Tone)
	for _, h := range p.Hosts {
		fmt.Fprintf(&b, "- %s: %s", h.Name, h.Persona)
		if h.Style != "" {
			fmt.Fprintf(&b, " Speaking style: %s.", h.Style)
		}
		if len(h.Expertise) > 0 {
			fmt.Fprintf(&b, " Expertise: %s.", strings.Join(h.Expertise, ", "))
		}
		b.WriteByte('\n')
	}

	b.WriteString(`
RULES:
1. Ground every claim in the supplied research. Do not invent facts.
2. Every host participates in every segment.
3. Cite sources conversationally ("Reuters reported that...") not as URLs.
4. Natural spoken language: contractions, short sentences, real reactions.
5. Disagreement is good. When the research includes counterpoints, let the hosts argue them.
6. Each line is 1-3 sentences of speech, never a paragraph.

OUTPUT FORMAT:
Return ONLY valid JSON, no markdown fences, no text outside the JSON:
{
  "title": "Episode title",
  "intro": [{"speaker": "name", "text": "...", "emotion": "warm"}],
  "segments": [
    {"topicId": "...", "title": "Topic title", "lines": [{"speaker": "name", "text": "...", "emotion": "curious"}]}
  ],
  "outro": [{"speaker": "name", "text": "...", "emotion": "warm"}]
}
Speaker names must exactly match the host names above, lowercase.`)
	return b.String()
}

// userPrompt lays out per-topic research with the time budget each
// segment should fill.
func userPrompt(p *profile.Profile, topics []research.VerifiedTopic) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write today's episode. Target total length: %d minutes of speech (~%d words).\n\n",
		p.TargetDurationMin, p.TargetDurationMin*wordsPerMinute)

	for i, vt := range topics {
		t := vt.Topic
		fmt.Fprintf(&b, "=== TOPIC %d: %s (topicId: %s, tone: %s, target %d seconds, ~%d words) ===\n",
			i+1, t.Headline, vt.Cluster.ID, vt.Tone, vt.DurationSec, vt.DurationSec*wordsPerMinute/60)
		fmt.Fprintf(&b, "Summary: %s\n", t.Summary)
		if t.Background != "" {
			fmt.Fprintf(&b, "Background: %s\n", llm.Truncate(t.Background, 600))
		}
		if t.CurrentSituation != "" {
			fmt.Fprintf(&b, "Current situation: %s\n", llm.Truncate(t.CurrentSituation, 600))
		}
		if t.Implications != "" {
			fmt.Fprintf(&b, "Implications: %s\n", llm.Truncate(t.Implications, 400))
		}
		if len(vt.TalkingPoints) > 0 {
			b.WriteString("Talking points:\n")
			for _, tp := range vt.TalkingPoints {
				fmt.Fprintf(&b, "- %s\n", tp)
			}
		}
		for _, f := range t.Facts {
			fmt.Fprintf(&b, "Fact: %s (%s)\n", f.Claim, f.SourceName)
		}
		for _, o := range t.Opinions {
			fmt.Fprintf(&b, "Opinion [%s]: %q - %s, %s\n", o.Stance, o.Quote, o.Person, o.Role)
		}
		for _, ca := range t.CounterArguments {
			fmt.Fprintf(&b, "Counterpoint: %s\n", llm.Truncate(ca.Text, 300))
		}
		if t.CommunitySentiment != "" {
			fmt.Fprintf(&b, "Community sentiment: %s\n", t.CommunitySentiment)
		}
		b.WriteByte('\n')
	}

	b.WriteString("Open with a short intro naming today's topics, cover each topic as its own segment in the order given, and close with a short outro.")
	return b.String()
}

// Fallback builds a minimal deterministic script straight from the
// research when generation output is unusable.
func Fallback(p *profile.Profile, topics []research.VerifiedTopic) *Script {
	hosts := p.Hosts
	if len(hosts) == 0 {
		hosts = []profile.Host{{Name: "host"}}
	}
	speaker := func(i int) string {
		return strings.ToLower(hosts[i%len(hosts)].Name)
	}

	sc := &Script{
		Intro: []DialogueLine{{
			Speaker: speaker(0),
			Text:    fmt.Sprintf("Welcome to %s. Here's what's happening today.", p.Name),
		}},
		Outro: []DialogueLine{{
			Speaker: speaker(0),
			Text:    "That's all for today. Thanks for listening.",
		}},
	}

	for i, vt := range topics {
		t := vt.Topic
		lines := []DialogueLine{{
			Speaker: speaker(i),
			Text:    fmt.Sprintf("Next up: %s. %s", t.Headline, t.Summary),
		}}
		for j, f := range t.Facts {
			if j >= 3 {
				break
			}
			lines = append(lines, DialogueLine{Speaker: speaker(i + j + 1), Text: f.Claim + "."})
		}
		sc.Segments = append(sc.Segments, Segment{
			TopicID: vt.Cluster.ID,
			Title:   t.Headline,
			Lines:   lines,
		})
	}
	return sc
}

// normalize repairs the model output in place: speakers lowercased and
// snapped to known hosts, segment topic IDs and titles backfilled from
// the approved topics, and per-segment durations computed from word
// count. Running it twice changes nothing.
func normalize(sc *Script, p *profile.Profile, topics []research.VerifiedTopic) {
	known := make(map[string]bool, len(p.Hosts))
	first := ""
	for _, h := range p.Hosts {
		name := strings.ToLower(h.Name)
		known[name] = true
		if first == "" {
			first = name
		}
	}

	fix := func(lines []DialogueLine) {
		for i := range lines {
			lines[i].Speaker = strings.ToLower(strings.TrimSpace(lines[i].Speaker))
			if !known[lines[i].Speaker] && first != "" {
				lines[i].Speaker = first
			}
			lines[i].Text = strings.TrimSpace(lines[i].Text)
		}
	}

	fix(sc.Intro)
	for i := range sc.Segments {
		seg := &sc.Segments[i]
		fix(seg.Lines)
		if seg.TopicID == "" && i < len(topics) {
			seg.TopicID = topics[i].Cluster.ID
		}
		if seg.Title == "" && i < len(topics) {
			seg.Title = topics[i].Topic.Headline
		}
		words := 0
		for _, l := range seg.Lines {
			words += len(strings.Fields(l.Text))
		}
		seg.DurationSec = words * 60 / wordsPerMinute
	}
	fix(sc.Outro)
}
