package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/apresai/newsroom/internal/content"
	"github.com/apresai/newsroom/internal/profile"
)

// newsAPIConfig configures a news-api connector (NewsAPI-compatible).
type newsAPIConfig struct {
	baseConfig
	Endpoint   string   `json:"endpoint"`
	APIKey     string   `json:"apiKey"`
	Categories []string `json:"categories"`
	Domains    []string `json:"domains"`
	Query      string   `json:"query"`
	Language   string   `json:"language"`
}

type newsAPIConnector struct {
	statsTracker
	name   string
	cfg    newsAPIConfig
	filter KeywordFilter
	client *http.Client
}

func newNewsAPIConnector(src profile.ContentSource) (*newsAPIConnector, error) {
	var cfg newsAPIConfig
	if err := decodeConfig(src.Config, &cfg); err != nil {
		return nil, fmt.Errorf("news-api source %s: %w", src.ID, err)
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://newsapi.org/v2/top-headlines"
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("news-api source %s: apiKey is required", src.ID)
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	return &newsAPIConnector{
		name:   src.Name,
		cfg:    cfg,
		filter: KeywordFilter{Include: cfg.IncludeKeywords, Exclude: cfg.ExcludeKeywords},
		client: newHTTPClient(),
	}, nil
}

func (c *newsAPIConnector) Name() string             { return c.name }
func (c *newsAPIConnector) Kind() content.SourceKind { return content.KindNewsAPI }

type newsAPIResponse struct {
	Status   string `json:"status"`
	Articles []struct {
		Source struct {
			Name string `json:"name"`
		} `json:"source"`
		Author      string    `json:"author"`
		Title       string    `json:"title"`
		Description string    `json:"description"`
		Content     string    `json:"content"`
		URL         string    `json:"url"`
		PublishedAt time.Time `json:"publishedAt"`
	} `json:"articles"`
}

func (c *newsAPIConnector) Fetch(ctx context.Context, limit int) (items []content.Item, err error) {
	defer func() { c.recordFetch(len(items), err) }()

	categories := c.cfg.Categories
	if len(categories) == 0 {
		categories = []string{""}
	}
	perCategory := limit
	if len(categories) > 1 {
		perCategory = limit/len(categories) + 1
	}

	for _, category := range categories {
		q := url.Values{}
		q.Set("apiKey", c.cfg.APIKey)
		q.Set("language", c.cfg.Language)
		q.Set("pageSize", fmt.Sprint(perCategory))
		if category != "" {
			q.Set("category", category)
		}
		if c.cfg.Query != "" {
			q.Set("q", c.cfg.Query)
		}
		if len(c.cfg.Domains) > 0 {
			q.Set("domains", strings.Join(c.cfg.Domains, ","))
		}

		var resp newsAPIResponse
		if ferr := getJSON(ctx, c.client, c.cfg.Endpoint+"?"+q.Encode(), nil, &resp); ferr != nil {
			err = fmt.Errorf("news-api category %q: %w", category, ferr)
			return items, err
		}
		if resp.Status != "ok" {
			err = fmt.Errorf("news-api category %q: status %s", category, resp.Status)
			return items, err
		}

		for _, a := range resp.Articles {
			if a.Title == "" || a.URL == "" {
				continue
			}
			body := a.Content
			if body == "" {
				body = a.Description
			}
			if !c.filter.Match(a.Title, body) {
				continue
			}
			cats := []string{}
			if category != "" {
				cats = append(cats, category)
			}
			items = append(items, content.Item{
				ID:          content.ItemID(content.KindNewsAPI, a.URL),
				SourceKind:  content.KindNewsAPI,
				SourceName:  firstNonEmpty(a.Source.Name, c.name),
				Title:       a.Title,
				Body:        body,
				URL:         a.URL,
				Author:      a.Author,
				PublishedAt: a.PublishedAt.UTC(),
				FetchedAt:   time.Now().UTC(),
				Categories:  cats,
			})
			if len(items) >= limit {
				return items, nil
			}
		}
	}
	return items, nil
}

// FetchComments is unsupported for news APIs.
func (c *newsAPIConnector) FetchComments(ctx context.Context, itemID string, limit int) ([]string, error) {
	return nil, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
