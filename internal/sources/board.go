package sources

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/apresai/newsroom/internal/content"
	"github.com/apresai/newsroom/internal/profile"
)

// boardConfig configures an aggregator-board connector: a Hacker News-style
// firebase API with a story-ID list endpoint and a per-item endpoint.
type boardConfig struct {
	baseConfig
	Endpoints []string `json:"endpoints"` // story list URLs, e.g. .../topstories.json
	ItemURL   string   `json:"itemUrl"`   // per-item URL with %s placeholder
}

type boardConnector struct {
	statsTracker
	name   string
	cfg    boardConfig
	filter KeywordFilter
	client *http.Client
}

func newBoardConnector(src profile.ContentSource) (*boardConnector, error) {
	var cfg boardConfig
	if err := decodeConfig(src.Config, &cfg); err != nil {
		return nil, fmt.Errorf("aggregator-board source %s: %w", src.ID, err)
	}
	if len(cfg.Endpoints) == 0 {
		cfg.Endpoints = []string{"https://hacker-news.firebaseio.com/v0/topstories.json"}
	}
	if cfg.ItemURL == "" {
		cfg.ItemURL = "https://hacker-news.firebaseio.com/v0/item/%d.json"
	}
	return &boardConnector{
		name:   src.Name,
		cfg:    cfg,
		filter: KeywordFilter{Include: cfg.IncludeKeywords, Exclude: cfg.ExcludeKeywords},
		client: newHTTPClient(),
	}, nil
}

func (c *boardConnector) Name() string             { return c.name }
func (c *boardConnector) Kind() content.SourceKind { return content.KindAggregatorBoard }

type boardItem struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	Text        string `json:"text"`
	URL         string `json:"url"`
	By          string `json:"by"`
	Score       int    `json:"score"`
	Descendants int    `json:"descendants"`
	Time        int64  `json:"time"`
	Type        string `json:"type"`
	Dead        bool   `json:"dead"`
	Kids        []int  `json:"kids"`
}

func (c *boardConnector) Fetch(ctx context.Context, limit int) (items []content.Item, err error) {
	defer func() { c.recordFetch(len(items), err) }()

	perBoard := limit
	if n := len(c.cfg.Endpoints); n > 1 {
		perBoard = limit/n + 1
	}

	for _, endpoint := range c.cfg.Endpoints {
		var ids []int
		if ferr := getJSON(ctx, c.client, endpoint, nil, &ids); ferr != nil {
			err = fmt.Errorf("board list %s: %w", endpoint, ferr)
			return items, err
		}

		fetched := 0
		for _, id := range ids {
			if fetched >= perBoard || len(items) >= limit {
				break
			}
			var story boardItem
			if ferr := getJSON(ctx, c.client, fmt.Sprintf(c.cfg.ItemURL, id), nil, &story); ferr != nil {
				// A single bad entry is skipped, not fatal.
				continue
			}
			if story.Type != "story" || story.Dead || story.Title == "" {
				continue
			}
			fetched++
			if !c.filter.Match(story.Title, story.Text) {
				continue
			}
			link := story.URL
			if link == "" {
				link = fmt.Sprintf(c.cfg.ItemURL, story.ID)
			}
			items = append(items, content.Item{
				ID:          content.ItemID(content.KindAggregatorBoard, link),
				SourceKind:  content.KindAggregatorBoard,
				SourceName:  c.name,
				Title:       story.Title,
				Body:        stripTags(story.Text),
				URL:         link,
				Author:      story.By,
				PublishedAt: time.Unix(story.Time, 0).UTC(),
				FetchedAt:   time.Now().UTC(),
				Score:       story.Score,
				Comments:    story.Descendants,
			})
		}
	}
	return items, nil
}

// FetchComments pulls the first-level comment texts for a board story.
func (c *boardConnector) FetchComments(ctx context.Context, itemID string, limit int) (out []string, err error) {
	defer func() { c.recordFetch(0, err) }()

	var story boardItem
	if err = getJSON(ctx, c.client, fmt.Sprintf(c.cfg.ItemURL, mustAtoi(itemID)), nil, &story); err != nil {
		return nil, err
	}
	for _, kid := range story.Kids {
		if len(out) >= limit {
			break
		}
		var comment boardItem
		if err := getJSON(ctx, c.client, fmt.Sprintf(c.cfg.ItemURL, kid), nil, &comment); err != nil {
			continue
		}
		if text := stripTags(comment.Text); text != "" {
			out = append(out, text)
		}
	}
	return out, nil
}

func mustAtoi(s string) int {
	var n int
	fmt.Sscanf(s, "%d", &n)
	return n
}
