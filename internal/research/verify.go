package research

import (
	"fmt"
	"sort"
	"strings"

	"github.com/apresai/newsroom/internal/cluster"
)

// VerifiedTopic is a researched topic that passed editorial selection and
// carries the metadata the script writer works from.
type VerifiedTopic struct {
	Topic          *Topic
	Cluster        cluster.Topic
	Rank           int
	Tone           string
	DurationSec    int
	TalkingPoints  []string
	EditorialScore float64
	Approved       bool
}

// Verify scores researched topics editorially, ranks them, and approves
// the top count. Total episode time is split proportionally to priority.
func Verify(pairs []Pair, count, episodeSec int) []VerifiedTopic {
	out := make([]VerifiedTopic, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, VerifiedTopic{
			Topic:          p.Researched,
			Cluster:        p.Cluster,
			Tone:           toneFor(p.Cluster),
			TalkingPoints:  talkingPoints(p.Researched),
			EditorialScore: editorialScore(p.Cluster, p.Researched),
		})
	}

	sort.SliceStable(out, func(a, b int) bool {
		return out[a].EditorialScore > out[b].EditorialScore
	})

	if count > len(out) {
		count = len(out)
	}
	var totalPriority float64
	for i := 0; i < count; i++ {
		totalPriority += out[i].Cluster.Priority
	}
	for i := range out {
		out[i].Rank = i + 1
		if i < count {
			out[i].Approved = true
			share := 1.0 / float64(count)
			if totalPriority > 0 {
				share = out[i].Cluster.Priority / totalPriority
			}
			out[i].DurationSec = int(float64(episodeSec) * share)
		}
	}
	return out
}

// Pair couples a cluster with its research output.
type Pair struct {
	Cluster    cluster.Topic
	Researched *Topic
}

// editorialScore folds research quality into the cluster priority.
// Well-sourced, balanced topics get a small boost; thin ones a penalty.
func editorialScore(c cluster.Topic, t *Topic) float64 {
	score := c.Priority
	if t.Metrics.SourceDiversity >= 3 {
		score += 0.5
	}
	if t.Metrics.Balance >= 0.3 {
		score += 0.5
	}
	if len(t.Facts) == 0 {
		score -= 2
	}
	if score < 0 {
		score = 0
	}
	return score
}

func toneFor(c cluster.Topic) string {
	switch {
	case c.IsBreaking:
		return "urgent"
	case c.IsTrending:
		return "conversational"
	default:
		return "analytical"
	}
}

// talkingPoints condenses the research into the bullets the hosts cover:
// top facts first, then the strongest counter-argument.
func talkingPoints(t *Topic) []string {
	var points []string
	for i, f := range t.Facts {
		if i >= 4 {
			break
		}
		points = append(points, f.Claim)
	}
	for _, o := range t.Opinions {
		if len(points) >= 6 {
			break
		}
		points = append(points, fmt.Sprintf("%s: %q", o.Person, o.Quote))
	}
	if len(t.CounterArguments) > 0 {
		best := t.CounterArguments[0]
		for _, ca := range t.CounterArguments[1:] {
			if ca.Credibility > best.Credibility {
				best = ca
			}
		}
		points = append(points, "Counterpoint: "+strings.TrimSpace(best.Text))
	}
	return points
}
