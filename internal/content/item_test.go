package content

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestItemIDStable(t *testing.T) {
	a := ItemID(KindRSS, "https://example.com/story")
	b := ItemID(KindRSS, "https://example.com/story")
	assert.Equal(t, a, b)
	assert.Len(t, a, 16)

	// Same URL from a different source kind is a different item.
	c := ItemID(KindForum, "https://example.com/story")
	assert.NotEqual(t, a, c)
}

func TestContentHashCaseInsensitive(t *testing.T) {
	a := ContentHash("Big Launch", "the body text")
	b := ContentHash("BIG LAUNCH", "The Body Text")
	assert.Equal(t, a, b)

	c := ContentHash("Big Launch", "different body")
	assert.NotEqual(t, a, c)
}

func TestEngagement(t *testing.T) {
	it := Item{Score: 100, Comments: 25}
	assert.Equal(t, 150, it.Engagement())
}
