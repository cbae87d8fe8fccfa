// Package sources implements the connectors that fetch normalized content
// items from external sources: forums, news APIs, RSS feeds, video
// transcripts, and aggregator boards.
package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/apresai/newsroom/internal/content"
	"github.com/apresai/newsroom/internal/profile"
)

// fetchTimeout bounds every outbound HTTP call a connector makes.
const fetchTimeout = 30 * time.Second

// Connector is a named, configured adapter over one external source.
// Fetch honours the limit, applies the connector's keyword filters, skips
// (never fails on) individual bad entries, and returns an empty slice with
// an error when the source as a whole is unreachable.
type Connector interface {
	Name() string
	Kind() content.SourceKind
	Fetch(ctx context.Context, limit int) ([]content.Item, error)
	FetchComments(ctx context.Context, itemID string, limit int) ([]string, error)
	Stats() Stats
}

// Stats is the health counter set every connector maintains.
type Stats struct {
	Fetches   int
	Items     int
	Errors    int
	LastError string
	LastFetch time.Time
}

// statsTracker is embedded by concrete connectors to record Stats.
type statsTracker struct {
	mu    sync.Mutex
	stats Stats
}

func (t *statsTracker) recordFetch(items int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats.Fetches++
	t.stats.Items += items
	t.stats.LastFetch = time.Now().UTC()
	if err != nil {
		t.stats.Errors++
		t.stats.LastError = err.Error()
	}
}

func (t *statsTracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

// KeywordFilter applies include/exclude keyword rules over title + body.
type KeywordFilter struct {
	Include []string
	Exclude []string
}

// Match reports whether an item passes the filter. An empty include list
// matches everything; any exclude hit rejects.
func (f KeywordFilter) Match(title, body string) bool {
	text := strings.ToLower(title + " " + body)
	for _, kw := range f.Exclude {
		if kw != "" && strings.Contains(text, strings.ToLower(kw)) {
			return false
		}
	}
	if len(f.Include) == 0 {
		return true
	}
	for _, kw := range f.Include {
		if kw != "" && strings.Contains(text, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// baseConfig is the portion of a source config shared by every kind.
type baseConfig struct {
	IncludeKeywords []string `json:"includeKeywords"`
	ExcludeKeywords []string `json:"excludeKeywords"`
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: fetchTimeout}
}

// New builds a connector for the given content source configuration.
func New(src profile.ContentSource) (Connector, error) {
	switch src.Kind {
	case content.KindForum:
		return newForumConnector(src)
	case content.KindNewsAPI:
		return newNewsAPIConnector(src)
	case content.KindRSS:
		return newRSSConnector(src)
	case content.KindVideoTranscripts:
		return newVideoConnector(src)
	case content.KindAggregatorBoard:
		return newBoardConnector(src)
	default:
		return nil, fmt.Errorf("unknown source kind %q for source %s", src.Kind, src.ID)
	}
}

func decodeConfig(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

// getJSON fetches a URL and decodes the response body as JSON.
func getJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", "newsroom/1.0")
	for k, val := range headers {
		req.Header.Set(k, val)
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: HTTP %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
