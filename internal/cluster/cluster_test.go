package cluster

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/apresai/newsroom/internal/content"
)

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float64{1, 0}, []float64{1, 0}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float64{1, 0}, []float64{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, CosineSimilarity([]float64{1, 0}, []float64{-1, 0}), 1e-9)
	assert.Equal(t, 0.0, CosineSimilarity([]float64{0, 0}, []float64{1, 0}))
	assert.Equal(t, 0.0, CosineSimilarity([]float64{1}, []float64{1, 0}))
}

func TestCoherence(t *testing.T) {
	tight := [][]float64{{1, 0}, {0.99, 0.01}, {0.98, 0.02}}
	loose := [][]float64{{1, 0}, {0, 1}, {-1, 0}}
	assert.Greater(t, Coherence(tight), Coherence(loose))
}

func TestMergeSimilar(t *testing.T) {
	a := Topic{
		ID:       "t1",
		Name:     "GPU shortage",
		Centroid: []float64{1, 0},
		Items:    []content.Item{{ID: "1", Embedding: []float64{1, 0}}},
	}
	b := Topic{
		ID:       "t2",
		Name:     "GPU supply crunch",
		Centroid: []float64{0.99, 0.01},
		Items:    []content.Item{{ID: "2", Embedding: []float64{0.99, 0.01}}},
	}
	c := Topic{
		ID:       "t3",
		Name:     "Election results",
		Centroid: []float64{0, 1},
		Items:    []content.Item{{ID: "3", Embedding: []float64{0, 1}}},
	}

	merged := MergeSimilar([]Topic{a, b, c}, 0.85)
	assert.Len(t, merged, 2)

	var gpu Topic
	for _, m := range merged {
		if m.ID == "t1" {
			gpu = m
		}
	}
	assert.Len(t, gpu.Items, 2)
}

func TestMergeSimilarKeepsDistinct(t *testing.T) {
	a := Topic{ID: "t1", Centroid: []float64{1, 0}, Items: []content.Item{{ID: "1"}}}
	b := Topic{ID: "t2", Centroid: []float64{0, 1}, Items: []content.Item{{ID: "2"}}}
	merged := MergeSimilar([]Topic{a, b}, 0.85)
	assert.Len(t, merged, 2)
}

func TestSortByPriority(t *testing.T) {
	old := time.Now().Add(-24 * time.Hour)
	topics := []Topic{
		{ID: "low", Priority: 2, Items: []content.Item{{PublishedAt: old}}},
		{ID: "high", Priority: 9, Items: []content.Item{{PublishedAt: old}}},
		{ID: "mid", Priority: 5, Items: []content.Item{{PublishedAt: old}}},
	}
	SortByPriority(topics)
	assert.Equal(t, "high", topics[0].ID)
	assert.Equal(t, "mid", topics[1].ID)
	assert.Equal(t, "low", topics[2].ID)
}

func TestPriorityScoreCaps(t *testing.T) {
	t1 := Topic{Engagement: 10000, SourceDiversity: 5, IsBreaking: true, IsTrending: true}
	assert.Equal(t, 10.0, priorityScore(t1))

	t2 := Topic{Engagement: 100, SourceDiversity: 1}
	assert.InDelta(t, 3.0, priorityScore(t2), 0.001)

	t3 := Topic{Engagement: 100, SourceDiversity: 1, IsBreaking: true}
	assert.InDelta(t, 8.0, priorityScore(t3), 0.001)
}

func TestTopicValidate(t *testing.T) {
	ok := Topic{ID: "t", Priority: 5, Items: []content.Item{{}}}
	assert.NoError(t, ok.Validate())

	empty := Topic{ID: "t", Priority: 5}
	assert.Error(t, empty.Validate())

	outOfRange := Topic{ID: "t", Priority: 11, Items: []content.Item{{}}}
	assert.Error(t, outOfRange.Validate())
}
