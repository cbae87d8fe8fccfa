package sources

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apresai/newsroom/internal/content"
	"github.com/apresai/newsroom/internal/profile"
)

func TestKeywordFilter(t *testing.T) {
	f := KeywordFilter{Include: []string{"golang", "rust"}, Exclude: []string{"crypto"}}

	assert.True(t, f.Match("Golang 1.25 released", ""))
	assert.True(t, f.Match("A deep dive", "why Rust borrowck matters"))
	assert.False(t, f.Match("Python 4 announced", "nothing relevant"))
	// Exclude wins even when an include keyword is present.
	assert.False(t, f.Match("Golang crypto exchange hacked", ""))

	// An empty include list matches everything.
	open := KeywordFilter{Exclude: []string{"spam"}}
	assert.True(t, open.Match("anything", "goes"))
	assert.False(t, open.Match("pure spam", ""))
}

func TestNewRejectsUnknownKind(t *testing.T) {
	_, err := New(profile.ContentSource{ID: "s1", Kind: "telepathy"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown source kind")
}

func TestNewRSSRequiresFeedURLs(t *testing.T) {
	_, err := New(profile.ContentSource{
		ID:     "s1",
		Kind:   content.KindRSS,
		Config: json.RawMessage(`{}`),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "feedUrls")
}

const sampleRSS = `<?xml version="1.0"?>
<rss version="2.0">
  <channel>
    <title>Example Tech</title>
    <item>
      <title>Chip shortage deepens</title>
      <link>https://example.com/chips</link>
      <description>&lt;p&gt;Fabs are oversubscribed.&lt;/p&gt;</description>
      <pubDate>Sat, 14 Mar 2026 06:00:00 +0000</pubDate>
      <category>hardware</category>
    </item>
    <item>
      <title>Crypto exchange collapses</title>
      <link>https://example.com/crypto</link>
      <description>Bad news.</description>
    </item>
    <item>
      <title>No link entry</title>
      <description>Skipped.</description>
    </item>
  </channel>
</rss>`

func TestRSSConnectorFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(sampleRSS))
	}))
	defer srv.Close()

	cfg, _ := json.Marshal(map[string]any{
		"feedUrls":        []string{srv.URL},
		"excludeKeywords": []string{"crypto"},
	})
	conn, err := New(profile.ContentSource{
		ID:     "s1",
		Kind:   content.KindRSS,
		Name:   "tech feed",
		Config: cfg,
	})
	require.NoError(t, err)
	assert.Equal(t, content.KindRSS, conn.Kind())

	items, err := conn.Fetch(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, items, 1)

	it := items[0]
	assert.Equal(t, "Chip shortage deepens", it.Title)
	assert.Equal(t, "https://example.com/chips", it.URL)
	assert.Equal(t, "Example Tech", it.SourceName)
	assert.Equal(t, "Fabs are oversubscribed.", it.Body)
	assert.Equal(t, []string{"hardware"}, it.Categories)
	assert.Equal(t, content.ItemID(content.KindRSS, it.URL), it.ID)
	assert.Equal(t, 2026, it.PublishedAt.Year())

	stats := conn.Stats()
	assert.Equal(t, 1, stats.Fetches)
	assert.Equal(t, 1, stats.Items)
	assert.Equal(t, 0, stats.Errors)
}

func TestRSSConnectorFeedDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	cfg, _ := json.Marshal(map[string]any{"feedUrls": []string{srv.URL}})
	conn, err := New(profile.ContentSource{ID: "s1", Kind: content.KindRSS, Name: "down", Config: cfg})
	require.NoError(t, err)

	items, err := conn.Fetch(context.Background(), 10)
	require.Error(t, err)
	assert.Empty(t, items)

	stats := conn.Stats()
	assert.Equal(t, 1, stats.Errors)
	assert.NotEmpty(t, stats.LastError)
}

func TestParseFeedTimeFallback(t *testing.T) {
	// Unparseable timestamps fall back to now rather than zero.
	got := parseFeedTime("not a date")
	assert.False(t, got.IsZero())

	got = parseFeedTime("Sat, 14 Mar 2026 06:00:00 +0000")
	assert.Equal(t, 14, got.Day())
}

func TestStripTags(t *testing.T) {
	assert.Equal(t, "Hello world", stripTags("<p>Hello <b>world</b></p>"))
	assert.Equal(t, "plain", stripTags("plain"))
}
