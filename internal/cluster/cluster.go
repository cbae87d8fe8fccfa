// Package cluster groups raw content items into coherent topics by
// embedding similarity and scores them for selection.
package cluster

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/apresai/newsroom/internal/content"
	"github.com/apresai/newsroom/internal/llm"
)

// Topic is a group of semantically related items plus derived metrics.
type Topic struct {
	ID              string
	Name            string
	Summary         string
	Category        string
	Items           []content.Item
	Centroid        []float64
	Coherence       float64
	Engagement      int
	SourceDiversity int
	TimeSpan        time.Duration
	IsBreaking      bool
	IsTrending      bool
	Priority        float64
}

// Config holds the clustering parameters.
type Config struct {
	MinClusterSize   int
	MinSamples       int
	SelectionEpsilon float64 // max cosine distance to reattach noise to a cluster
	NoiseEngagement  int     // noise items above this become single-member clusters
	MergeThreshold   float64 // centroid similarity above which clusters merge
	BreakingWindow   time.Duration
	BreakingShare    float64
	BreakingMinScore int
	TrendingMinScore int
}

// DefaultConfig returns the production parameter set.
func DefaultConfig() Config {
	return Config{
		MinClusterSize:   2,
		MinSamples:       1,
		SelectionEpsilon: 0.3,
		NoiseEngagement:  50,
		MergeThreshold:   0.85,
		BreakingWindow:   6 * time.Hour,
		BreakingShare:    0.7,
		BreakingMinScore: 500,
		TrendingMinScore: 200,
	}
}

// Clusterer partitions items into topics.
type Clusterer struct {
	embedder  Embedder
	completer llm.Completer
	cfg       Config
	log       *slog.Logger
	now       func() time.Time
}

// New creates a clusterer. completer may be nil to skip LLM name refinement.
func New(embedder Embedder, completer llm.Completer, cfg Config, logger *slog.Logger) *Clusterer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Clusterer{embedder: embedder, completer: completer, cfg: cfg, log: logger, now: time.Now}
}

// Cluster embeds the items, runs density clustering, derives metrics and
// names, merges near-duplicate clusters, and returns topics sorted by
// priority descending.
func (c *Clusterer) Cluster(ctx context.Context, items []content.Item) ([]Topic, error) {
	if len(items) == 0 {
		return []Topic{}, nil
	}

	embedded, err := c.embedAll(ctx, items)
	if err != nil {
		return nil, err
	}
	if len(embedded) == 0 {
		return []Topic{}, nil
	}

	groups := c.assign(embedded)

	topics := make([]Topic, 0, len(groups))
	for _, members := range groups {
		topics = append(topics, c.buildTopic(members))
	}

	c.nameTopics(ctx, topics)
	for i := range topics {
		c.detectTrends(&topics[i])
	}

	topics = MergeSimilar(topics, c.cfg.MergeThreshold)

	for i := range topics {
		topics[i].Priority = priorityScore(topics[i])
	}
	SortByPriority(topics)
	return topics, nil
}

// embedAll computes embeddings with the title weighted by repetition.
// Items whose embedding fails are dropped, not fatal.
func (c *Clusterer) embedAll(ctx context.Context, items []content.Item) ([]content.Item, error) {
	out := make([]content.Item, 0, len(items))
	for _, it := range items {
		body := it.Body
		if len(body) > 500 {
			body = body[:500]
		}
		vec, err := c.embedder.Embed(ctx, it.Title+" "+it.Title+" "+body)
		if err != nil {
			c.log.WarnContext(ctx, "Embedding failed, dropping item", "item", it.ID, "error", err)
			continue
		}
		it.Embedding = vec
		out = append(out, it)
	}
	return out, nil
}

// assign runs HDBSCAN and post-processes noise: reattach points within
// SelectionEpsilon of a centroid, promote high-engagement leftovers to
// single-member clusters, drop the rest.
func (c *Clusterer) assign(items []content.Item) [][]content.Item {
	// Too few items for density clustering: one cluster of everything.
	if len(items) < c.cfg.MinClusterSize {
		return [][]content.Item{items}
	}

	vectors := make([][]float64, len(items))
	for i := range items {
		vectors[i] = items[i].Embedding
	}

	asn, err := runHDBSCAN(vectors, c.cfg.MinClusterSize)
	if err != nil {
		c.log.Error("Density clustering failed, falling back to one cluster", "error", err)
		return [][]content.Item{items}
	}
	if len(asn.clusters) == 0 {
		c.log.Warn("Density clustering left every item as noise, falling back to one cluster",
			"items", len(items))
		return [][]content.Item{items}
	}

	groups := make([][]content.Item, len(asn.clusters))
	centroids := make([][]float64, len(asn.clusters))
	for ci, members := range asn.clusters {
		vecs := make([][]float64, 0, len(members))
		for _, idx := range members {
			groups[ci] = append(groups[ci], items[idx])
			vecs = append(vecs, items[idx].Embedding)
		}
		centroids[ci] = centroid(vecs)
	}

	for _, idx := range asn.noise {
		it := items[idx]
		if ci, dist := nearest(it.Embedding, centroids); ci >= 0 && dist <= c.cfg.SelectionEpsilon {
			groups[ci] = append(groups[ci], it)
			continue
		}
		if it.Engagement() > c.cfg.NoiseEngagement {
			groups = append(groups, []content.Item{it})
		}
	}
	return groups
}

func nearest(vec []float64, centroids [][]float64) (int, float64) {
	best, bestDist := -1, 2.0
	for i, ctr := range centroids {
		if d := cosineDistance(vec, ctr); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best, bestDist
}

// buildTopic derives the per-cluster metrics.
func (c *Clusterer) buildTopic(members []content.Item) Topic {
	vecs := make([][]float64, len(members))
	engagement := 0
	kinds := make(map[content.SourceKind]bool)
	var earliest, latest time.Time
	for i, it := range members {
		vecs[i] = it.Embedding
		engagement += it.Engagement()
		kinds[it.SourceKind] = true
		if earliest.IsZero() || it.PublishedAt.Before(earliest) {
			earliest = it.PublishedAt
		}
		if it.PublishedAt.After(latest) {
			latest = it.PublishedAt
		}
	}

	return Topic{
		ID:              uuid.NewString(),
		Name:            provisionalName(members),
		Items:           members,
		Centroid:        centroid(vecs),
		Coherence:       Coherence(vecs),
		Engagement:      engagement,
		SourceDiversity: len(kinds),
		TimeSpan:        latest.Sub(earliest),
	}
}

// Coherence is the mean pairwise cosine similarity excluding the diagonal.
// A single-member cluster is perfectly coherent.
func Coherence(vecs [][]float64) float64 {
	if len(vecs) <= 1 {
		return 1.0
	}
	var sum float64
	var n int
	for i := 0; i < len(vecs); i++ {
		for j := i + 1; j < len(vecs); j++ {
			sum += CosineSimilarity(vecs[i], vecs[j])
			n++
		}
	}
	return sum / float64(n)
}

// detectTrends marks the breaking and trending flags.
func (c *Clusterer) detectTrends(t *Topic) {
	cutoff := c.now().Add(-c.cfg.BreakingWindow)
	recent := 0
	for _, it := range t.Items {
		if it.PublishedAt.After(cutoff) {
			recent++
		}
	}
	share := float64(recent) / float64(len(t.Items))
	t.IsBreaking = share >= c.cfg.BreakingShare && t.Engagement > c.cfg.BreakingMinScore
	t.IsTrending = t.SourceDiversity >= 2 && t.Engagement > c.cfg.TrendingMinScore
}

// MergeSimilar merges any pair of topics whose centroids are more similar
// than threshold. The left topic keeps its name and summary; members,
// engagement, and flags are unioned. Running it twice is a no-op.
func MergeSimilar(topics []Topic, threshold float64) []Topic {
	out := make([]Topic, 0, len(topics))
	for _, t := range topics {
		merged := false
		for i := range out {
			if CosineSimilarity(out[i].Centroid, t.Centroid) > threshold {
				out[i] = mergeInto(out[i], t)
				merged = true
				break
			}
		}
		if !merged {
			out = append(out, t)
		}
	}
	return out
}

func mergeInto(left, right Topic) Topic {
	seen := make(map[string]bool, len(left.Items))
	for _, it := range left.Items {
		seen[it.ID] = true
	}
	for _, it := range right.Items {
		if !seen[it.ID] {
			left.Items = append(left.Items, it)
			left.Engagement += it.Engagement()
		}
	}

	vecs := make([][]float64, len(left.Items))
	kinds := make(map[content.SourceKind]bool)
	var earliest, latest time.Time
	for i, it := range left.Items {
		vecs[i] = it.Embedding
		kinds[it.SourceKind] = true
		if earliest.IsZero() || it.PublishedAt.Before(earliest) {
			earliest = it.PublishedAt
		}
		if it.PublishedAt.After(latest) {
			latest = it.PublishedAt
		}
	}
	left.Centroid = centroid(vecs)
	left.Coherence = Coherence(vecs)
	left.SourceDiversity = len(kinds)
	left.TimeSpan = latest.Sub(earliest)
	left.IsBreaking = left.IsBreaking || right.IsBreaking
	left.IsTrending = left.IsTrending || right.IsTrending
	return left
}

// priorityScore maps a topic onto the 0-10 priority scale.
func priorityScore(t Topic) float64 {
	score := float64(t.Engagement)/100 + float64(t.SourceDiversity)*2
	if t.IsBreaking {
		score += 5
	}
	if t.IsTrending {
		score += 3
	}
	if score > 10 {
		score = 10
	}
	return score
}

// SortByPriority orders topics by priority descending, breaking ties by
// member count, then by older earliest-member timestamp.
func SortByPriority(topics []Topic) {
	sort.SliceStable(topics, func(a, b int) bool {
		ta, tb := topics[a], topics[b]
		if ta.Priority != tb.Priority {
			return ta.Priority > tb.Priority
		}
		if len(ta.Items) != len(tb.Items) {
			return len(ta.Items) > len(tb.Items)
		}
		return earliestPublished(ta).Before(earliestPublished(tb))
	})
}

func earliestPublished(t Topic) time.Time {
	var earliest time.Time
	for _, it := range t.Items {
		if earliest.IsZero() || it.PublishedAt.Before(earliest) {
			earliest = it.PublishedAt
		}
	}
	return earliest
}

// Validate checks the derived invariants; used by tests and the
// orchestrator's sanity logging.
func (t Topic) Validate() error {
	if t.Priority < 0 || t.Priority > 10 {
		return fmt.Errorf("topic %s: priority %.2f out of [0,10]", t.ID, t.Priority)
	}
	if len(t.Items) == 0 {
		return fmt.Errorf("topic %s: no members", t.ID)
	}
	return nil
}
