// Package content defines the normalized item shape shared by source
// connectors, the aggregation manager, and the clusterer.
package content

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// SourceKind identifies the class of external source an item came from.
type SourceKind string

const (
	KindForum            SourceKind = "forum"
	KindNewsAPI          SourceKind = "news-api"
	KindRSS              SourceKind = "rss"
	KindVideoTranscripts SourceKind = "video-transcripts"
	KindAggregatorBoard  SourceKind = "aggregator-board"
)

// Item is one piece of fetched content, normalized across source kinds.
// Items live in memory for the duration of one generation job.
type Item struct {
	ID          string
	SourceKind  SourceKind
	SourceName  string
	Title       string
	Body        string
	URL         string
	Author      string
	PublishedAt time.Time
	FetchedAt   time.Time
	Score       int
	Comments    int
	Shares      int
	ContentHash string
	Embedding   []float64
	Categories  []string
}

// ItemID derives the stable identifier for an item: a hash of the source
// kind and URL. The same URL fetched twice always yields the same ID.
func ItemID(kind SourceKind, url string) string {
	sum := sha256.Sum256([]byte(string(kind) + url))
	return hex.EncodeToString(sum[:8])
}

// ContentHash fingerprints an item for near-duplicate detection across
// sources: lowercased title plus the first 500 bytes of the body.
func ContentHash(title, body string) string {
	b := strings.ToLower(body)
	if len(b) > 500 {
		b = b[:500]
	}
	sum := sha256.Sum256([]byte(strings.ToLower(title) + b))
	return hex.EncodeToString(sum[:8])
}

// Engagement is the raw per-item engagement used for ranking and for
// salvaging high-signal noise points during clustering.
func (it Item) Engagement() int {
	return it.Score + 2*it.Comments
}
