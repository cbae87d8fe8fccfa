package newsletter

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apresai/newsroom/internal/profile"
	"github.com/apresai/newsroom/internal/research"
	"github.com/apresai/newsroom/internal/script"
)

func sample() (*profile.Profile, *script.Script, []research.VerifiedTopic) {
	p := &profile.Profile{Name: "Tech Daily"}
	sc := &script.Script{
		EpisodeID: "tech-daily-20260314",
		Title:     "Tech Daily - March 14, 2026",
		Date:      time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
		Segments:  []script.Segment{{Title: "Chips"}},
	}
	topics := []research.VerifiedTopic{
		{
			Approved: true,
			Topic: &research.Topic{
				Headline: "Chip Shortage Deepens",
				Summary:  "Fabs are oversubscribed.",
				Facts: []research.VerifiedFact{
					{Claim: "Lead times hit 40 weeks", SourceURL: "https://reuters.com/x", SourceName: "reuters.com"},
				},
				Opinions: []research.ExpertOpinion{
					{Quote: "Demand is structural", Person: "Jane Doe", Role: "Analyst"},
				},
				CounterArguments: []research.CounterArgument{
					{Text: "Inventory corrections may flip this quickly"},
				},
			},
		},
		{
			Approved: false,
			Topic:    &research.Topic{Headline: "Rejected Story"},
		},
	}
	return p, sc, topics
}

func TestRender(t *testing.T) {
	p, sc, topics := sample()
	md := Render(p, sc, topics)

	assert.Contains(t, md, "# Tech Daily - March 14, 2026")
	assert.Contains(t, md, "## Chip Shortage Deepens")
	assert.Contains(t, md, "[reuters.com](https://reuters.com/x)")
	assert.Contains(t, md, "Jane Doe, Analyst")
	assert.Contains(t, md, "Inventory corrections")
	// Unapproved topics are left out.
	assert.NotContains(t, md, "Rejected Story")
}

func TestWrite(t *testing.T) {
	dir := t.TempDir()
	p, sc, topics := sample()

	path, err := Write(dir, p, sc, topics)
	require.NoError(t, err)
	assert.Equal(t, Path(dir, sc.EpisodeID), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Chip Shortage Deepens")
}
