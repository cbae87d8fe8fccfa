package cluster

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/apresai/newsroom/internal/content"
	"github.com/apresai/newsroom/internal/llm"
)

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "that": true,
	"this": true, "from": true, "your": true, "have": true, "has": true,
	"are": true, "was": true, "will": true, "its": true, "into": true,
	"about": true, "after": true, "over": true, "more": true, "than": true,
	"how": true, "why": true, "what": true, "when": true, "not": true,
	"now": true, "new": true, "you": true, "can": true, "out": true,
}

// provisionalName derives a keyword name from the most common non-stopword
// tokens across member titles.
func provisionalName(members []content.Item) string {
	counts := make(map[string]int)
	order := make(map[string]int)
	n := 0
	for _, it := range members {
		for _, word := range strings.Fields(strings.ToLower(it.Title)) {
			word = strings.Trim(word, ".,:;!?\"'()[]")
			if len(word) <= 3 || stopwords[word] {
				continue
			}
			if _, seen := order[word]; !seen {
				order[word] = n
				n++
			}
			counts[word]++
		}
	}

	type wordCount struct {
		word  string
		count int
	}
	var ranked []wordCount
	for w, c := range counts {
		ranked = append(ranked, wordCount{w, c})
	}
	// Stable order: frequency first, then first appearance.
	for i := 0; i < len(ranked); i++ {
		for j := i + 1; j < len(ranked); j++ {
			a, b := ranked[i], ranked[j]
			if b.count > a.count || (b.count == a.count && order[b.word] < order[a.word]) {
				ranked[i], ranked[j] = ranked[j], ranked[i]
			}
		}
	}

	var words []string
	for i, wc := range ranked {
		if i >= 3 {
			break
		}
		words = append(words, capitalize(wc.word))
	}
	if len(words) == 0 {
		if len(members) > 0 {
			return llm.Truncate(members[0].Title, 60)
		}
		return "Untitled Topic"
	}
	return strings.Join(words, " ")
}

// refinedNaming is the JSON shape the naming prompt asks for.
type refinedNaming struct {
	Name     string `json:"name"`
	Summary  string `json:"summary"`
	Category string `json:"category"`
}

const namingSystem = `You name podcast topics. For each topic you receive member headlines.
Respond with ONLY a JSON array, one object per topic in the same order:
[{"name": "short topic name", "summary": "two sentence summary", "category": "one-word category"}]
No markdown fences, no text outside the JSON.`

// nameTopics refines provisional names with the LLM. One batched call for
// all topics; on failure, per-topic calls; on further failure, the
// provisional name stands.
func (c *Clusterer) nameTopics(ctx context.Context, topics []Topic) {
	if c.completer == nil || len(topics) == 0 {
		return
	}

	if c.nameBatch(ctx, topics) {
		return
	}
	c.log.WarnContext(ctx, "Batched topic naming failed, retrying per topic")
	for i := range topics {
		if err := c.nameOne(ctx, &topics[i]); err != nil {
			c.log.WarnContext(ctx, "Topic naming failed, keeping provisional name",
				"topic", topics[i].Name, "error", err)
		}
	}
}

func (c *Clusterer) nameBatch(ctx context.Context, topics []Topic) bool {
	var b strings.Builder
	for i, t := range topics {
		fmt.Fprintf(&b, "Topic %d (provisional name: %s):\n", i+1, t.Name)
		for j, it := range t.Items {
			if j >= 5 {
				break
			}
			fmt.Fprintf(&b, "- %s\n", it.Title)
		}
		b.WriteByte('\n')
	}

	resp, err := c.completer.Complete(ctx, llm.Request{
		System:    namingSystem,
		Prompt:    b.String(),
		MaxTokens: 2048,
	})
	if err != nil {
		return false
	}

	var named []refinedNaming
	text := llm.StripFences(resp)
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &named); err != nil {
		return false
	}
	if len(named) != len(topics) {
		return false
	}
	for i := range topics {
		applyNaming(&topics[i], named[i])
	}
	return true
}

func (c *Clusterer) nameOne(ctx context.Context, t *Topic) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Topic (provisional name: %s):\n", t.Name)
	for j, it := range t.Items {
		if j >= 5 {
			break
		}
		fmt.Fprintf(&b, "- %s\n", it.Title)
	}
	b.WriteString("\nRespond with a single JSON object: {\"name\": ..., \"summary\": ..., \"category\": ...}")

	resp, err := c.completer.Complete(ctx, llm.Request{
		System:    namingSystem,
		Prompt:    b.String(),
		MaxTokens: 512,
	})
	if err != nil {
		return err
	}
	var named refinedNaming
	text := llm.ExtractJSON(llm.StripFences(resp))
	if err := json.Unmarshal([]byte(text), &named); err != nil {
		return fmt.Errorf("parse naming response: %w", err)
	}
	applyNaming(t, named)
	return nil
}

func capitalize(w string) string {
	if w == "" {
		return w
	}
	return strings.ToUpper(w[:1]) + w[1:]
}

func applyNaming(t *Topic, n refinedNaming) {
	if n.Name != "" {
		t.Name = n.Name
	}
	if n.Summary != "" {
		t.Summary = n.Summary
	}
	if n.Category != "" {
		t.Category = strings.ToLower(n.Category)
	}
}
