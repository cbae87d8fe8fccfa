package research

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apresai/newsroom/internal/cluster"
)

func TestDepthFor(t *testing.T) {
	breaking := cluster.Topic{IsBreaking: true, Priority: 9}
	assert.Equal(t, DepthQuick, DepthFor(breaking, false))

	high := cluster.Topic{Priority: 8.5}
	assert.Equal(t, DepthDeep, DepthFor(high, false))

	normal := cluster.Topic{Priority: 4}
	assert.Equal(t, DepthStandard, DepthFor(normal, false))

	// deepResearch overrides everything.
	assert.Equal(t, DepthDeep, DepthFor(breaking, true))
}

func TestDomainCredibility(t *testing.T) {
	assert.Equal(t, 0.95, DomainCredibility("https://www.reuters.com/article/x"))
	assert.Equal(t, 0.9, DomainCredibility("https://cs.stanford.edu/paper"))
	assert.Equal(t, 0.9, DomainCredibility("https://nasa.gov/release"))
	assert.Equal(t, 0.5, DomainCredibility("https://medium.com/@someone/post"))
	assert.Equal(t, 0.6, DomainCredibility("https://randomblog.net/post"))
}

func TestParseResearch(t *testing.T) {
	raw := `Okay, I will research this topic for you.

## Summary
A major model release shook the industry this week.

## Key Facts
- The model scored 92% on the benchmark (https://www.reuters.com/tech/model)
- Training cost an estimated $50M according to company filings
- This line has no source and is dropped

## Expert Opinions
- "This changes everything for small labs" - Jane Doe, ML Researcher [PRO]
- "Benchmarks are not capability" - John Smith, Professor [CON]

## Community Sentiment
Mostly excited, with some skepticism about the benchmark methodology.
`

	topic := parseResearch(raw)
	require.NotNil(t, topic)

	assert.Contains(t, topic.Summary, "major model release")

	require.Len(t, topic.Facts, 2)
	assert.Equal(t, "https://www.reuters.com/tech/model", topic.Facts[0].SourceURL)
	assert.Equal(t, "reuters.com", topic.Facts[0].SourceName)
	assert.Equal(t, 0.95, topic.Facts[0].Confidence)
	assert.Contains(t, topic.Facts[1].Claim, "according to")

	require.Len(t, topic.Opinions, 2)
	assert.Equal(t, "This changes everything for small labs", topic.Opinions[0].Quote)
	assert.Equal(t, "Jane Doe", topic.Opinions[0].Person)
	assert.Equal(t, "ML Researcher", topic.Opinions[0].Role)
	assert.Equal(t, "pro", topic.Opinions[0].Stance)
	assert.Equal(t, "con", topic.Opinions[1].Stance)

	assert.Contains(t, topic.CommunitySentiment, "excited")
}

func TestParseResearchHeaderDrift(t *testing.T) {
	raw := `# The GPU Shortage Story

**Background**
Chip fabrication has been constrained since 2024.

## Latest Developments
Two fabs announced expansions this week.

## Outlook
Prices should ease by next year.
`
	topic := parseResearch(raw)
	assert.Contains(t, topic.Background, "Chip fabrication")
	assert.Contains(t, topic.CurrentSituation, "fabs announced")
	assert.Contains(t, topic.Implications, "Prices should ease")
}

func TestVerifyRankingAndDuration(t *testing.T) {
	strong := Pair{
		Cluster: cluster.Topic{ID: "a", Priority: 8, SourceDiversity: 4},
		Researched: &Topic{
			Headline: "Strong",
			Facts:    []VerifiedFact{{Claim: "x"}, {Claim: "y"}},
			Metrics:  QualityMetrics{SourceDiversity: 4, Balance: 0.5},
		},
	}
	weak := Pair{
		Cluster:    cluster.Topic{ID: "b", Priority: 2},
		Researched: &Topic{Headline: "Weak"},
	}

	verified := Verify([]Pair{weak, strong}, 1, 900)
	require.Len(t, verified, 2)

	assert.Equal(t, "Strong", verified[0].Topic.Headline)
	assert.Equal(t, 1, verified[0].Rank)
	assert.True(t, verified[0].Approved)
	assert.False(t, verified[1].Approved)

	// The single approved topic gets the whole episode.
	assert.Equal(t, 900, verified[0].DurationSec)
	assert.Equal(t, 0, verified[1].DurationSec)
}

func TestVerifySplitsDurationByPriority(t *testing.T) {
	a := Pair{
		Cluster:    cluster.Topic{ID: "a", Priority: 6},
		Researched: &Topic{Headline: "A", Facts: []VerifiedFact{{Claim: "x"}}},
	}
	b := Pair{
		Cluster:    cluster.Topic{ID: "b", Priority: 3},
		Researched: &Topic{Headline: "B", Facts: []VerifiedFact{{Claim: "y"}}},
	}

	verified := Verify([]Pair{a, b}, 2, 900)
	require.Len(t, verified, 2)
	assert.Equal(t, 600, verified[0].DurationSec)
	assert.Equal(t, 300, verified[1].DurationSec)
}

func TestToneFor(t *testing.T) {
	assert.Equal(t, "urgent", toneFor(cluster.Topic{IsBreaking: true}))
	assert.Equal(t, "conversational", toneFor(cluster.Topic{IsTrending: true}))
	assert.Equal(t, "analytical", toneFor(cluster.Topic{}))
}

func TestComputeMetrics(t *testing.T) {
	topic := &Topic{
		Summary:    "Ten words of summary text for the metric math here.",
		Background: "",
		Facts: []VerifiedFact{
			{Claim: "a", SourceURL: "https://reuters.com/1"},
			{Claim: "b", SourceURL: "https://bbc.com/2"},
		},
		Opinions: []ExpertOpinion{
			{Stance: "pro"}, {Stance: "con"}, {Stance: "con"},
		},
	}

	m := computeMetrics(topic)
	assert.Equal(t, 2, m.SourceDiversity)
	assert.InDelta(t, 20.0, m.FactDensity, 0.001)
	assert.InDelta(t, 1.0/3.0, m.Balance, 0.001)
}

func TestMergeTopicsDeduplicates(t *testing.T) {
	base := &Topic{
		Summary: "Base summary",
		Facts:   []VerifiedFact{{Claim: "The launch happened on Monday"}},
	}
	extra := &Topic{
		Background: "New background",
		Facts: []VerifiedFact{
			{Claim: "The launch happened on Monday"},
			{Claim: "A second fact"},
		},
	}

	mergeTopics(base, extra)
	assert.Equal(t, "Base summary", base.Summary)
	assert.Equal(t, "New background", base.Background)
	assert.Len(t, base.Facts, 2)
}
