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

	"github.com/apresai/newsroom/internal/content"
	"github.com/apresai/newsroom/internal/profile"
)

// videoConfig configures a video-transcripts connector. Transcripts come
// from a timedtext-style caption endpoint keyed by video ID.
type videoConfig struct {
	baseConfig
	TranscriptEndpoint string   `json:"transcriptEndpoint"`
	WatchBaseURL       string   `json:"watchBaseUrl"`
	VideoIDs           []string `json:"videoIds"`
	Languages          []string `json:"languages"`
}

type videoConnector struct {
	statsTracker
	name   string
	cfg    videoConfig
	filter KeywordFilter
	client *http.Client
}

func newVideoConnector(src profile.ContentSource) (*videoConnector, error) {
	var cfg videoConfig
	if err := decodeConfig(src.Config, &cfg); err != nil {
		return nil, fmt.Errorf("video-transcripts source %s: %w", src.ID, err)
	}
	if len(cfg.VideoIDs) == 0 {
		return nil, fmt.Errorf("video-transcripts source %s: videoIds is required", src.ID)
	}
	if cfg.TranscriptEndpoint == "" {
		cfg.TranscriptEndpoint = "https://video.google.com/timedtext"
	}
	if cfg.WatchBaseURL == "" {
		cfg.WatchBaseURL = "https://www.youtube.com/watch?v="
	}
	if len(cfg.Languages) == 0 {
		cfg.Languages = []string{"en"}
	}
	return &videoConnector{
		name:   src.Name,
		cfg:    cfg,
		filter: KeywordFilter{Include: cfg.IncludeKeywords, Exclude: cfg.ExcludeKeywords},
		client: newHTTPClient(),
	}, nil
}

func (c *videoConnector) Name() string             { return c.name }
func (c *videoConnector) Kind() content.SourceKind { return content.KindVideoTranscripts }

// timedText is the caption XML document shape.
type timedText struct {
	XMLName xml.Name `xml:"transcript"`
	Texts   []struct {
		Start string `xml:"start,attr"`
		Body  string `xml:",chardata"`
	} `xml:"text"`
}

func (c *videoConnector) Fetch(ctx context.Context, limit int) (items []content.Item, err error) {
	defer func() { c.recordFetch(len(items), err) }()

	now := time.Now().UTC()
	for _, videoID := range c.cfg.VideoIDs {
		if len(items) >= limit {
			break
		}
		transcript, lang, ferr := c.fetchTranscript(ctx, videoID)
		if ferr != nil {
			// One missing transcript does not fail the source; record and move on.
			c.recordFetch(0, ferr)
			continue
		}
		title := fmt.Sprintf("Video %s transcript (%s)", videoID, lang)
		if !c.filter.Match(title, transcript) {
			continue
		}
		watchURL := c.cfg.WatchBaseURL + videoID
		items = append(items, content.Item{
			ID:          content.ItemID(content.KindVideoTranscripts, watchURL),
			SourceKind:  content.KindVideoTranscripts,
			SourceName:  c.name,
			Title:       title,
			Body:        transcript,
			URL:         watchURL,
			PublishedAt: now,
			FetchedAt:   now,
		})
	}
	return items, nil
}

// fetchTranscript tries each preferred language in order.
func (c *videoConnector) fetchTranscript(ctx context.Context, videoID string) (string, string, error) {
	var lastErr error
	for _, lang := range c.cfg.Languages {
		u := fmt.Sprintf("%s?v=%s&lang=%s", c.cfg.TranscriptEndpoint, url.QueryEscape(videoID), url.QueryEscape(lang))
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return "", "", err
		}
		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		data, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBody))
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("video %s lang %s: HTTP %d", videoID, lang, resp.StatusCode)
			continue
		}

		var tt timedText
		if err := xml.Unmarshal(data, &tt); err != nil || len(tt.Texts) == 0 {
			lastErr = fmt.Errorf("video %s lang %s: no captions", videoID, lang)
			continue
		}
		var b strings.Builder
		for _, t := range tt.Texts {
			line := strings.TrimSpace(t.Body)
			if line == "" {
				continue
			}
			b.WriteString(line)
			b.WriteByte(' ')
		}
		return strings.TrimSpace(b.String()), lang, nil
	}
	return "", "", lastErr
}

// FetchComments is unsupported for transcripts.
func (c *videoConnector) FetchComments(ctx context.Context, itemID string, limit int) ([]string, error) {
	return nil, nil
}
