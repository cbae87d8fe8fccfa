package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/apresai/newsroom/internal/content"
	"github.com/apresai/newsroom/internal/profile"
)

// forumConfig configures a forum connector: a Reddit-style JSON listing API.
type forumConfig struct {
	baseConfig
	BaseURL      string   `json:"baseUrl"`
	Sections     []string `json:"sections"`
	Sort         string   `json:"sort"`       // hot, top, new
	TimeWindow   string   `json:"timeWindow"` // hour, day, week
	ClientID     string   `json:"clientId"`
	ClientSecret string   `json:"clientSecret"`
}

type forumConnector struct {
	statsTracker
	name   string
	cfg    forumConfig
	filter KeywordFilter
	client *http.Client
}

func newForumConnector(src profile.ContentSource) (*forumConnector, error) {
	var cfg forumConfig
	if err := decodeConfig(src.Config, &cfg); err != nil {
		return nil, fmt.Errorf("forum source %s: %w", src.ID, err)
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("forum source %s: baseUrl is required", src.ID)
	}
	if cfg.Sort == "" {
		cfg.Sort = "hot"
	}
	if cfg.TimeWindow == "" {
		cfg.TimeWindow = "day"
	}
	return &forumConnector{
		name:   src.Name,
		cfg:    cfg,
		filter: KeywordFilter{Include: cfg.IncludeKeywords, Exclude: cfg.ExcludeKeywords},
		client: newHTTPClient(),
	}, nil
}

func (c *forumConnector) Name() string             { return c.name }
func (c *forumConnector) Kind() content.SourceKind { return content.KindForum }

// forumListing mirrors the Reddit-style listing envelope.
type forumListing struct {
	Data struct {
		Children []struct {
			Data forumPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type forumPost struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	SelfText    string  `json:"selftext"`
	URL         string  `json:"url"`
	Permalink   string  `json:"permalink"`
	Author      string  `json:"author"`
	Score       int     `json:"score"`
	NumComments int     `json:"num_comments"`
	CreatedUTC  float64 `json:"created_utc"`
	Stickied    bool    `json:"stickied"`
}

func (c *forumConnector) Fetch(ctx context.Context, limit int) (items []content.Item, err error) {
	defer func() { c.recordFetch(len(items), err) }()

	perSection := limit
	if n := len(c.cfg.Sections); n > 1 {
		perSection = limit/n + 1
	}

	for _, section := range c.cfg.Sections {
		u := fmt.Sprintf("%s/%s/%s.json?limit=%d&t=%s",
			c.cfg.BaseURL, url.PathEscape(section), c.cfg.Sort, perSection, c.cfg.TimeWindow)

		var listing forumListing
		if ferr := getJSON(ctx, c.client, u, nil, &listing); ferr != nil {
			err = fmt.Errorf("forum section %s: %w", section, ferr)
			return items, err
		}

		for _, child := range listing.Data.Children {
			post := child.Data
			if post.Stickied || post.Title == "" {
				continue
			}
			if !c.filter.Match(post.Title, post.SelfText) {
				continue
			}
			link := post.URL
			if link == "" {
				link = c.cfg.BaseURL + post.Permalink
			}
			items = append(items, content.Item{
				ID:          content.ItemID(content.KindForum, link),
				SourceKind:  content.KindForum,
				SourceName:  c.name,
				Title:       post.Title,
				Body:        post.SelfText,
				URL:         link,
				Author:      post.Author,
				PublishedAt: time.Unix(int64(post.CreatedUTC), 0).UTC(),
				FetchedAt:   time.Now().UTC(),
				Score:       post.Score,
				Comments:    post.NumComments,
				Categories:  []string{section},
			})
			if len(items) >= limit {
				return items, nil
			}
		}
	}
	return items, nil
}

// FetchComments returns top-level comment bodies for one post.
func (c *forumConnector) FetchComments(ctx context.Context, itemID string, limit int) (out []string, err error) {
	defer func() { c.recordFetch(0, err) }()

	u := fmt.Sprintf("%s/comments/%s.json?limit=%d", c.cfg.BaseURL, url.PathEscape(itemID), limit)
	var thread []struct {
		Data struct {
			Children []struct {
				Data struct {
					Body string `json:"body"`
				} `json:"data"`
			} `json:"children"`
		} `json:"data"`
	}
	if err = getJSON(ctx, c.client, u, nil, &thread); err != nil {
		return nil, err
	}
	if len(thread) < 2 {
		return nil, nil
	}
	for _, child := range thread[1].Data.Children {
		if body := child.Data.Body; body != "" {
			out = append(out, body)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}
