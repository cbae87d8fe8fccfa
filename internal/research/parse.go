package research

import (
	"regexp"
	"strings"
)

var (
	urlRe      = regexp.MustCompile(`https?://[^\s()]+`)
	opinionRe  = regexp.MustCompile(`"([^"]+)"\s*[-–]\s*([^,]+)(?:,\s*(.+))?`)
	preambleRe = regexp.MustCompile(`^(Okay, I will|Okay, I'll|Sure, I can|Here's a comprehensive|Here is a comprehensive|I'll research|Let me research)`)
)

// parseResearch extracts the structured fields from a markdown-style
// research response. Section headers are matched by keyword so minor
// formatting drift in the model output still parses.
func parseResearch(raw string) *Topic {
	topic := &Topic{}
	text := scrubPreamble(raw)

	section := ""
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		if h, ok := headerKey(trimmed); ok {
			section = h
			continue
		}

		switch section {
		case "summary":
			topic.Summary = joinPara(topic.Summary, trimmed)
		case "background":
			topic.Background = joinPara(topic.Background, trimmed)
		case "current":
			topic.CurrentSituation = joinPara(topic.CurrentSituation, trimmed)
		case "implications":
			topic.Implications = joinPara(topic.Implications, trimmed)
		case "facts":
			if f, ok := parseFact(trimmed); ok {
				topic.Facts = append(topic.Facts, f)
			}
		case "opinions":
			if o, ok := parseOpinion(trimmed); ok {
				topic.Opinions = append(topic.Opinions, o)
			}
		case "sentiment":
			topic.CommunitySentiment = joinPara(topic.CommunitySentiment, trimmed)
		}
	}
	return topic
}

// scrubPreamble strips conversational lead-ins and any title-style header
// before the first recognized section.
func scrubPreamble(raw string) string {
	lines := strings.Split(strings.TrimSpace(raw), "\n")
	start := 0
	for start < len(lines) {
		trimmed := strings.TrimSpace(lines[start])
		if trimmed == "" || preambleRe.MatchString(trimmed) {
			start++
			continue
		}
		// A leading markdown header that is not a known section is a title.
		if strings.HasPrefix(trimmed, "#") {
			if _, ok := headerKey(trimmed); !ok {
				start++
				continue
			}
		}
		break
	}
	return strings.Join(lines[start:], "\n")
}

// headerKey maps a header line onto a canonical section key.
func headerKey(line string) (string, bool) {
	if !strings.HasPrefix(line, "#") && !strings.HasPrefix(line, "**") {
		return "", false
	}
	h := strings.ToLower(strings.Trim(line, "#* :"))
	switch {
	case strings.Contains(h, "summary"):
		return "summary", true
	case strings.Contains(h, "background"):
		return "background", true
	case strings.Contains(h, "current"), strings.Contains(h, "latest"):
		return "current", true
	case strings.Contains(h, "implication"), strings.Contains(h, "outlook"), strings.Contains(h, "consequence"):
		return "implications", true
	case strings.Contains(h, "fact"):
		return "facts", true
	case strings.Contains(h, "opinion"), strings.Contains(h, "expert"):
		return "opinions", true
	case strings.Contains(h, "sentiment"), strings.Contains(h, "community"), strings.Contains(h, "reaction"):
		return "sentiment", true
	}
	return "", false
}

// parseFact turns a bullet line into a fact when it carries sourcing: a
// URL, or an attribution phrase.
func parseFact(line string) (VerifiedFact, bool) {
	text := strings.TrimLeft(line, "-*0123456789. ")
	if text == "" {
		return VerifiedFact{}, false
	}

	f := VerifiedFact{Confidence: 0.5}
	if url := urlRe.FindString(text); url != "" {
		f.SourceURL = strings.TrimRight(url, ".,)")
		f.SourceName = sourceNameFromURL(f.SourceURL)
		f.Confidence = DomainCredibility(f.SourceURL)
		text = strings.TrimSpace(urlRe.ReplaceAllString(text, ""))
		text = strings.TrimRight(text, " (),.")
	} else if !strings.Contains(strings.ToLower(text), "according to") {
		// Unsourced lines are not facts.
		return VerifiedFact{}, false
	}
	f.Claim = text
	return f, true
}

// parseOpinion matches the `"quote" - Person, Role [STANCE]` shape.
func parseOpinion(line string) (ExpertOpinion, bool) {
	text := strings.TrimLeft(line, "-* ")
	stance := "neutral"
	switch {
	case strings.Contains(text, "[PRO]"):
		stance = "pro"
	case strings.Contains(text, "[CON]"):
		stance = "con"
	}
	text = strings.NewReplacer("[PRO]", "", "[CON]", "", "[NEUTRAL]", "").Replace(text)
	text = strings.TrimSpace(text)

	m := opinionRe.FindStringSubmatch(text)
	if m == nil {
		return ExpertOpinion{}, false
	}
	o := ExpertOpinion{
		Quote:  strings.TrimSpace(m[1]),
		Person: strings.TrimSpace(m[2]),
		Stance: stance,
	}
	if len(m) > 3 {
		o.Role = strings.TrimSpace(m[3])
	}
	return o, true
}

func joinPara(existing, line string) string {
	if existing == "" {
		return line
	}
	return existing + " " + line
}

func sourceNameFromURL(url string) string {
	d := strings.TrimPrefix(url, "https://")
	d = strings.TrimPrefix(d, "http://")
	d = strings.TrimPrefix(d, "www.")
	if i := strings.IndexByte(d, '/'); i >= 0 {
		d = d[:i]
	}
	return d
}
