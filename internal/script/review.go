package script

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/apresai/newsroom/internal/llm"
	"github.com/apresai/newsroom/internal/profile"
)

// ReviewResult holds the outcome of an editorial review pass.
type ReviewResult struct {
	Approved bool
	Issues   []ReviewIssue
	Revised  *Script // nil if Approved or revision failed
}

// ReviewIssue describes a quality problem found in the script.
type ReviewIssue struct {
	Category string // "duration", "balance", "filler", "structure"
	Message  string
	Severity string // "error" or "warning"
}

// Reviewer validates and optionally revises generated scripts.
type Reviewer struct {
	completer llm.Completer
	log       *slog.Logger
}

// NewReviewer creates a reviewer sharing the synthesis model.
func NewReviewer(completer llm.Completer, logger *slog.Logger) *Reviewer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reviewer{completer: completer, log: logger}
}

// Review runs the heuristic checks and, when they find errors, one LLM
// revision pass. A failed revision degrades to returning the issues.
func (r *Reviewer) Review(ctx context.Context, s *Script, p *profile.Profile) (*ReviewResult, error) {
	var issues []ReviewIssue
	issues = append(issues, checkDuration(s, p)...)
	issues = append(issues, checkSpeakerBalance(s, p)...)
	issues = append(issues, checkFillerPhrases(s)...)

	hasErrors := false
	for _, issue := range issues {
		if issue.Severity == "error" {
			hasErrors = true
			break
		}
	}
	if !hasErrors {
		return &ReviewResult{Approved: true, Issues: issues}, nil
	}

	resp, err := r.completer.Complete(ctx, llm.Request{
		System:      systemPrompt(p),
		Prompt:      revisionPrompt(s, issues),
		MaxTokens:   16384,
		Temperature: 0.7,
	})
	if err != nil {
		r.log.WarnContext(ctx, "Script revision failed", "error", err)
		return &ReviewResult{Approved: false, Issues: issues}, nil
	}
	revised, err := Parse(resp)
	if err != nil {
		r.log.WarnContext(ctx, "Revised script unparseable", "error", err)
		return &ReviewResult{Approved: false, Issues: issues}, nil
	}
	revised.EpisodeID = s.EpisodeID
	revised.Date = s.Date
	if revised.Title == "" {
		revised.Title = s.Title
	}
	normalizeRevision(revised, s, p)
	return &ReviewResult{Approved: false, Issues: issues, Revised: revised}, nil
}

// normalizeRevision puts a revised script back into canonical form:
// speakers lowercased and snapped to known hosts, segment topic IDs and
// titles backfilled from the original, durations recomputed.
func normalizeRevision(revised, original *Script, p *profile.Profile) {
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

	fix(revised.Intro)
	for i := range revised.Segments {
		seg := &revised.Segments[i]
		fix(seg.Lines)
		if seg.TopicID == "" && i < len(original.Segments) {
			seg.TopicID = original.Segments[i].TopicID
		}
		if seg.Title == "" && i < len(original.Segments) {
			seg.Title = original.Segments[i].Title
		}
		words := 0
		for _, l := range seg.Lines {
			words += len(strings.Fields(l.Text))
		}
		seg.DurationSec = words * 60 / wordsPerMinute
	}
	fix(revised.Outro)
}

// checkDuration flags scripts more than 25% off the profile's target.
func checkDuration(s *Script, p *profile.Profile) []ReviewIssue {
	if p.TargetDurationMin <= 0 {
		return nil
	}
	target := p.TargetDurationMin * 60
	actual := int(s.EstimatedDuration().Seconds())
	lo, hi := target*3/4, target*5/4
	if actual < lo || actual > hi {
		return []ReviewIssue{{
			Category: "duration",
			Message:  fmt.Sprintf("Estimated %ds of speech, target %ds (allowed %d-%d)", actual, target, lo, hi),
			Severity: "error",
		}}
	}
	return nil
}

// checkSpeakerBalance requires each host a minimum share of lines: 30%
// with two hosts, 20% with three or more.
func checkSpeakerBalance(s *Script, p *profile.Profile) []ReviewIssue {
	if len(p.Hosts) < 2 {
		return nil
	}

	counts := map[string]int{}
	total := 0
	tally := func(lines []DialogueLine) {
		for _, l := range lines {
			counts[l.Speaker]++
			total++
		}
	}
	tally(s.Intro)
	for _, seg := range s.Segments {
		tally(seg.Lines)
	}
	tally(s.Outro)
	if total == 0 {
		return nil
	}

	minPct := 0.30
	if len(p.Hosts) >= 3 {
		minPct = 0.20
	}

	var issues []ReviewIssue
	for _, h := range p.Hosts {
		name := strings.ToLower(h.Name)
		pct := float64(counts[name]) / float64(total)
		if pct < minPct {
			issues = append(issues, ReviewIssue{
				Category: "balance",
				Message:  fmt.Sprintf("%s has only %.0f%% of lines (%d/%d), minimum is %.0f%%", name, pct*100, counts[name], total, minPct*100),
				Severity: "error",
			})
		}
	}
	return issues
}

// bannedPhrases is the filler list scanned for in every line.
var bannedPhrases = []string{
	"that's a great point",
	"absolutely",
	"exactly",
	"that's fascinating",
	"i love that",
	"so true",
	"100 percent",
	"you nailed it",
	"that's so interesting",
	"right, right",
	"great question",
	"that's a really good question",
	"i couldn't agree more",
	"you're so right",
	"that's brilliant",
	"oh wow",
	"amazing point",
	"that's spot on",
	"couldn't have said it better",
	"you hit the nail on the head",
	"that's exactly right",
}

func checkFillerPhrases(s *Script) []ReviewIssue {
	fillerCount := 0
	scan := func(lines []DialogueLine) {
		for _, l := range lines {
			lower := strings.ToLower(l.Text)
			for _, phrase := range bannedPhrases {
				if strings.Contains(lower, phrase) {
					fillerCount++
					break // count once per line at most
				}
			}
		}
	}
	scan(s.Intro)
	for _, seg := range s.Segments {
		scan(seg.Lines)
	}
	scan(s.Outro)

	if fillerCount == 0 {
		return nil
	}
	severity := "warning"
	if fillerCount > 5 {
		severity = "error"
	}
	return []ReviewIssue{{
		Category: "filler",
		Message:  fmt.Sprintf("Found %d lines with banned filler phrases", fillerCount),
		Severity: severity,
	}}
}

func revisionPrompt(s *Script, issues []ReviewIssue) string {
	var issueList strings.Builder
	for _, issue := range issues {
		fmt.Fprintf(&issueList, "- [%s] %s: %s\n", issue.Severity, issue.Category, issue.Message)
	}

	data, _ := json.MarshalIndent(s, "", "  ")
	return fmt.Sprintf(`You are revising a podcast script with quality issues.

ISSUES FOUND:
%s
INSTRUCTIONS:
1. Fix ALL issues listed above.
2. Keep the same topics, facts, and segment order.
3. If duration is off, expand or tighten the discussion, never pad with filler.
4. If speaker balance is off, redistribute lines more evenly.
5. Replace filler phrases with specific, content-relevant reactions.
6. Return the full corrected script in the same JSON structure, raw JSON only.

CURRENT SCRIPT:
%s`, issueList.String(), data)
}
