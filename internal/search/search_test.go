package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomain(t *testing.T) {
	assert.Equal(t, "reuters.com", Domain("https://www.reuters.com/tech/story"))
	assert.Equal(t, "blog.example.org", Domain("http://blog.example.org/post?id=1"))
	assert.Equal(t, "", Domain("://bad"))
}

func TestParseResults(t *testing.T) {
	html := `
	<a rel="nofollow" class="result__a" href="https://example.com/one">First &amp; Best</a>
	<a class="result__snippet">A <b>great</b> story</a>
	<a rel="nofollow" class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fexample.org%2Ftwo">Second</a>
	<a class="result__snippet">Another one</a>
	`

	results := ParseResults(html, 5)
	assert.Len(t, results, 2)

	assert.Equal(t, "First & Best", results[0].Title)
	assert.Equal(t, "https://example.com/one", results[0].URL)
	assert.Equal(t, "A great story", results[0].Snippet)
	assert.Equal(t, "example.com", results[0].Source)
	assert.Equal(t, 1, results[0].Rank)

	// The uddg redirect wrapper is unwrapped.
	assert.Equal(t, "https://example.org/two", results[1].URL)
	assert.Equal(t, 2, results[1].Rank)
}

func TestParseResultsHonoursLimit(t *testing.T) {
	html := `
	<a class="result__a" href="https://a.com/1">A</a>
	<a class="result__a" href="https://b.com/2">B</a>
	<a class="result__a" href="https://c.com/3">C</a>
	`
	results := ParseResults(html, 2)
	assert.Len(t, results, 2)
}
