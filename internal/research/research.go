// Package research enriches topic clusters with verified facts, expert
// opinions, and counter-arguments via LLM calls and web search.
package research

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/apresai/newsroom/internal/cluster"
	"github.com/apresai/newsroom/internal/llm"
	"github.com/apresai/newsroom/internal/search"
)

// Depth selects how much work a research pass does.
type Depth string

const (
	DepthQuick    Depth = "quick"
	DepthStandard Depth = "standard"
	DepthDeep     Depth = "deep"
)

// VerifiedFact is one claim with sourcing.
type VerifiedFact struct {
	Claim         string
	SourceURL     string
	SourceName    string
	Confidence    float64
	Corroborating []string
}

// ExpertOpinion is one attributed quote.
type ExpertOpinion struct {
	Quote  string
	Person string
	Role   string
	Stance string // pro, con, neutral
}

// CounterArgument is one dissenting source.
type CounterArgument struct {
	Text        string
	SourceURL   string
	Credibility float64
}

// QualityMetrics summarizes how well-sourced a researched topic is.
type QualityMetrics struct {
	FactDensity     float64
	SourceDiversity int
	Balance         float64
}

// Topic is the enriched form of a cluster.
type Topic struct {
	Headline           string
	Summary            string
	Background         string
	CurrentSituation   string
	Implications       string
	Facts              []VerifiedFact
	Opinions           []ExpertOpinion
	CounterArguments   []CounterArgument
	CommunitySentiment string
	Depth              Depth
	SourcesConsulted   int
	Metrics            QualityMetrics
}

// DepthFor picks the research depth for a cluster. Breaking topics favour
// speed; high-priority topics get the deep treatment.
func DepthFor(t cluster.Topic, deepAll bool) Depth {
	if deepAll {
		return DepthDeep
	}
	if t.IsBreaking {
		return DepthQuick
	}
	if t.Priority >= 8 {
		return DepthDeep
	}
	return DepthStandard
}

// Researcher runs the research passes.
type Researcher struct {
	completer llm.Completer
	searcher  search.Provider
	counter   bool
	maxCtr    int
	log       *slog.Logger
}

// New creates a researcher. searcher may be nil to skip counter-arguments.
func New(completer llm.Completer, searcher search.Provider, logger *slog.Logger) *Researcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Researcher{completer: completer, searcher: searcher, counter: searcher != nil, maxCtr: 5, log: logger}
}

// Research enriches one cluster at the given depth.
func (r *Researcher) Research(ctx context.Context, t cluster.Topic, depth Depth) (*Topic, error) {
	var topic *Topic
	var err error

	switch depth {
	case DepthQuick:
		topic, err = r.quick(ctx, t)
	case DepthDeep:
		topic, err = r.deep(ctx, t)
	default:
		topic, err = r.standard(ctx, t)
	}
	if err != nil {
		return nil, err
	}

	topic.Depth = depth
	if topic.Headline == "" {
		topic.Headline = t.Name
	}
	if topic.Summary == "" {
		topic.Summary = t.Summary
	}

	if r.counter {
		r.collectCounterArguments(ctx, t.Name, topic)
	}
	topic.Metrics = computeMetrics(topic)
	return topic, nil
}

// quick runs one web-grounded call over the topic context and parses the
// response heuristically.
func (r *Researcher) quick(ctx context.Context, t cluster.Topic) (*Topic, error) {
	resp, err := r.completer.Complete(ctx, llm.Request{
		Prompt:    quickPrompt(t),
		MaxTokens: 4096,
		WebSearch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("research %q: %w", t.Name, err)
	}
	topic := parseResearch(resp)
	topic.SourcesConsulted = len(t.Items)
	return topic, nil
}

// standard runs the quick pass plus a development-focused follow-up and
// merges the result lists.
func (r *Researcher) standard(ctx context.Context, t cluster.Topic) (*Topic, error) {
	topic, err := r.quick(ctx, t)
	if err != nil {
		return nil, err
	}

	resp, err := r.completer.Complete(ctx, llm.Request{
		Prompt:    followUpPrompt(t),
		MaxTokens: 4096,
		WebSearch: true,
	})
	if err != nil {
		// The follow-up is additive; its failure degrades, not fails.
		r.log.WarnContext(ctx, "Research follow-up failed", "topic", t.Name, "error", err)
		return topic, nil
	}
	extra := parseResearch(resp)
	mergeTopics(topic, extra)
	topic.SourcesConsulted += 1
	return topic, nil
}

// deep runs a single wide prompt demanding full narrative coverage.
func (r *Researcher) deep(ctx context.Context, t cluster.Topic) (*Topic, error) {
	resp, err := r.completer.Complete(ctx, llm.Request{
		Prompt:    deepPrompt(t),
		MaxTokens: 8192,
		WebSearch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("deep research %q: %w", t.Name, err)
	}
	topic := parseResearch(resp)
	topic.SourcesConsulted = len(t.Items) + 1
	return topic, nil
}

// collectCounterArguments issues up to three dissent queries and keeps
// distinct URLs, scored by domain credibility.
func (r *Researcher) collectCounterArguments(ctx context.Context, name string, topic *Topic) {
	queries := []string{
		fmt.Sprintf("criticism of %s", name),
		fmt.Sprintf("problems with %s", name),
		fmt.Sprintf("alternative to %s", name),
	}
	seen := make(map[string]bool)
	for _, ca := range topic.CounterArguments {
		seen[ca.SourceURL] = true
	}
	for _, q := range queries {
		if len(topic.CounterArguments) >= r.maxCtr {
			break
		}
		results, err := r.searcher.Search(ctx, q, 3)
		if err != nil {
			r.log.WarnContext(ctx, "Counter-argument search failed", "query", q, "error", err)
			continue
		}
		for _, res := range results {
			if len(topic.CounterArguments) >= r.maxCtr {
				break
			}
			if res.URL == "" || seen[res.URL] {
				continue
			}
			seen[res.URL] = true
			text := res.Snippet
			if text == "" {
				text = res.Title
			}
			topic.CounterArguments = append(topic.CounterArguments, CounterArgument{
				Text:        text,
				SourceURL:   res.URL,
				Credibility: DomainCredibility(res.URL),
			})
		}
	}
}

// mergeTopics unions extra's lists into base, de-duplicated by textual
// near-equality, and fills empty narrative sections.
func mergeTopics(base, extra *Topic) {
	if base.Background == "" {
		base.Background = extra.Background
	}
	if base.CurrentSituation == "" {
		base.CurrentSituation = extra.CurrentSituation
	}
	if base.Implications == "" {
		base.Implications = extra.Implications
	}
	for _, f := range extra.Facts {
		if !containsNearEqual(factClaims(base.Facts), f.Claim) {
			base.Facts = append(base.Facts, f)
		}
	}
	for _, o := range extra.Opinions {
		if !containsNearEqual(opinionQuotes(base.Opinions), o.Quote) {
			base.Opinions = append(base.Opinions, o)
		}
	}
}

func factClaims(facts []VerifiedFact) []string {
	out := make([]string, len(facts))
	for i, f := range facts {
		out[i] = f.Claim
	}
	return out
}

func opinionQuotes(ops []ExpertOpinion) []string {
	out := make([]string, len(ops))
	for i, o := range ops {
		out[i] = o.Quote
	}
	return out
}

// containsNearEqual reports whether candidate is a near-duplicate of any
// existing entry: equal after lowercasing and whitespace collapse, or one
// contains the other.
func containsNearEqual(existing []string, candidate string) bool {
	norm := normalizeText(candidate)
	for _, e := range existing {
		en := normalizeText(e)
		if en == norm || strings.Contains(en, norm) || strings.Contains(norm, en) {
			return true
		}
	}
	return false
}

func normalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// computeMetrics derives the quality metrics from the parsed content.
func computeMetrics(t *Topic) QualityMetrics {
	words := len(strings.Fields(t.Summary)) + len(strings.Fields(t.Background))
	var density float64
	if words > 0 {
		density = 100 * float64(len(t.Facts)) / float64(words)
	}

	domains := make(map[string]bool)
	for _, f := range t.Facts {
		if d := search.Domain(f.SourceURL); d != "" {
			domains[d] = true
		}
	}

	pro, con := 0, 0
	for _, o := range t.Opinions {
		switch o.Stance {
		case "pro":
			pro++
		case "con":
			con++
		}
	}
	balance := 0.5
	if pro+con > 0 {
		balance = float64(min(pro, con)) / float64(pro+con)
	}

	return QualityMetrics{
		FactDensity:     density,
		SourceDiversity: len(domains),
		Balance:         balance,
	}
}
