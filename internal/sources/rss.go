package sources

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"

	"github.com/apresai/newsroom/internal/content"
	"github.com/apresai/newsroom/internal/profile"
)

const maxFeedBody = 10 << 20 // 10 MB per feed document

// rssConfig configures an rss connector. No auth.
type rssConfig struct {
	baseConfig
	FeedURLs []string `json:"feedUrls"`
	// ExtractFullText fetches each entry page and runs readability over it
	// when the feed only carries a short description.
	ExtractFullText bool `json:"extractFullText"`
}

type rssConnector struct {
	statsTracker
	name   string
	cfg    rssConfig
	filter KeywordFilter
	client *http.Client
}

func newRSSConnector(src profile.ContentSource) (*rssConnector, error) {
	var cfg rssConfig
	if err := decodeConfig(src.Config, &cfg); err != nil {
		return nil, fmt.Errorf("rss source %s: %w", src.ID, err)
	}
	if len(cfg.FeedURLs) == 0 {
		return nil, fmt.Errorf("rss source %s: feedUrls is required", src.ID)
	}
	return &rssConnector{
		name:   src.Name,
		cfg:    cfg,
		filter: KeywordFilter{Include: cfg.IncludeKeywords, Exclude: cfg.ExcludeKeywords},
		client: newHTTPClient(),
	}, nil
}

func (c *rssConnector) Name() string             { return c.name }
func (c *rssConnector) Kind() content.SourceKind { return content.KindRSS }

// rssDoc and atomDoc cover the two feed dialects we accept.
type rssDoc struct {
	XMLName xml.Name `xml:"rss"`
	Channel struct {
		Title string `xml:"title"`
		Items []struct {
			Title       string `xml:"title"`
			Link        string `xml:"link"`
			Description string `xml:"description"`
			Creator     string `xml:"creator"`
			PubDate     string `xml:"pubDate"`
			Categories  []string `xml:"category"`
		} `xml:"item"`
	} `xml:"channel"`
}

type atomDoc struct {
	XMLName xml.Name `xml:"feed"`
	Title   string   `xml:"title"`
	Entries []struct {
		Title string `xml:"title"`
		Links []struct {
			Href string `xml:"href,attr"`
			Rel  string `xml:"rel,attr"`
		} `xml:"link"`
		Summary   string `xml:"summary"`
		Content   string `xml:"content"`
		Author    struct{ Name string `xml:"name"` } `xml:"author"`
		Published string `xml:"published"`
		Updated   string `xml:"updated"`
	} `xml:"entry"`
}

func (c *rssConnector) Fetch(ctx context.Context, limit int) (items []content.Item, err error) {
	defer func() { c.recordFetch(len(items), err) }()

	perFeed := limit
	if n := len(c.cfg.FeedURLs); n > 1 {
		perFeed = limit/n + 1
	}

	for _, feedURL := range c.cfg.FeedURLs {
		feedItems, ferr := c.fetchFeed(ctx, feedURL, perFeed)
		if ferr != nil {
			err = fmt.Errorf("feed %s: %w", feedURL, ferr)
			return items, err
		}
		items = append(items, feedItems...)
		if len(items) >= limit {
			items = items[:limit]
			return items, nil
		}
	}
	return items, nil
}

func (c *rssConnector) fetchFeed(ctx context.Context, feedURL string, limit int) ([]content.Item, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "newsroom/1.0")
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBody))
	if err != nil {
		return nil, err
	}
	return c.parseFeed(ctx, data, limit)
}

func (c *rssConnector) parseFeed(ctx context.Context, data []byte, limit int) ([]content.Item, error) {
	now := time.Now().UTC()
	var items []content.Item

	var rss rssDoc
	if err := xml.Unmarshal(data, &rss); err == nil && len(rss.Channel.Items) > 0 {
		sourceName := firstNonEmpty(rss.Channel.Title, c.name)
		for _, it := range rss.Channel.Items {
			if it.Title == "" || it.Link == "" {
				continue
			}
			body := stripTags(it.Description)
			if !c.filter.Match(it.Title, body) {
				continue
			}
			items = append(items, content.Item{
				ID:          content.ItemID(content.KindRSS, it.Link),
				SourceKind:  content.KindRSS,
				SourceName:  sourceName,
				Title:       it.Title,
				Body:        c.maybeExtract(ctx, it.Link, body),
				URL:         it.Link,
				Author:      it.Creator,
				PublishedAt: parseFeedTime(it.PubDate),
				FetchedAt:   now,
				Categories:  it.Categories,
			})
			if len(items) >= limit {
				return items, nil
			}
		}
		return items, nil
	}

	var atom atomDoc
	if err := xml.Unmarshal(data, &atom); err != nil {
		return nil, fmt.Errorf("not a recognized RSS or Atom document: %w", err)
	}
	sourceName := firstNonEmpty(atom.Title, c.name)
	for _, e := range atom.Entries {
		link := ""
		for _, l := range e.Links {
			if l.Rel == "" || l.Rel == "alternate" {
				link = l.Href
				break
			}
		}
		if e.Title == "" || link == "" {
			continue
		}
		body := stripTags(firstNonEmpty(e.Content, e.Summary))
		if !c.filter.Match(e.Title, body) {
			continue
		}
		items = append(items, content.Item{
			ID:          content.ItemID(content.KindRSS, link),
			SourceKind:  content.KindRSS,
			SourceName:  sourceName,
			Title:       e.Title,
			Body:        c.maybeExtract(ctx, link, body),
			URL:         link,
			Author:      e.Author.Name,
			PublishedAt: parseFeedTime(firstNonEmpty(e.Published, e.Updated)),
			FetchedAt:   now,
		})
		if len(items) >= limit {
			break
		}
	}
	return items, nil
}

// maybeExtract replaces a thin feed description with readable article text.
// Extraction failures keep the original body; a bad page never fails a fetch.
func (c *rssConnector) maybeExtract(ctx context.Context, link, body string) string {
	if !c.cfg.ExtractFullText || len(body) > 500 {
		return body
	}
	parsed, err := url.Parse(link)
	if err != nil {
		return body
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return body
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return body
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return body
	}
	article, err := readability.FromReader(io.LimitReader(resp.Body, maxFeedBody), parsed)
	if err != nil || article.TextContent == "" {
		return body
	}
	return article.TextContent
}

// FetchComments is unsupported for feeds.
func (c *rssConnector) FetchComments(ctx context.Context, itemID string, limit int) ([]string, error) {
	return nil, nil
}

var feedTimeLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC3339,
	"2006-01-02T15:04:05Z",
	"Mon, 2 Jan 2006 15:04:05 -0700",
}

func parseFeedTime(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range feedTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Now().UTC()
}

// stripTags removes HTML markup from feed descriptions.
func stripTags(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}
