// Package feed renders podcast RSS with the iTunes extensions most
// podcast apps expect.
package feed

import (
	"encoding/xml"
	"fmt"
	"time"

	"github.com/apresai/newsroom/internal/profile"
	"github.com/apresai/newsroom/internal/store"
)

const itunesNS = "http://www.itunes.com/dtds/podcast-1.0.dtd"

// bytesPerSecond approximates enclosure size for a 128kbps MP3.
const bytesPerSecond = 16000

type rss struct {
	XMLName xml.Name `xml:"rss"`
	Version string   `xml:"version,attr"`
	ITunes  string   `xml:"xmlns:itunes,attr"`
	Channel channel  `xml:"channel"`
}

type channel struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	Language    string `xml:"language"`
	Author      string `xml:"itunes:author"`
	Explicit    string `xml:"itunes:explicit"`
	Items       []item `xml:"item"`
}

type item struct {
	Title       string    `xml:"title"`
	Description string    `xml:"description"`
	GUID        guid      `xml:"guid"`
	PubDate     string    `xml:"pubDate"`
	Enclosure   enclosure `xml:"enclosure"`
	Duration    string    `xml:"itunes:duration"`
}

type guid struct {
	IsPermaLink string `xml:"isPermaLink,attr"`
	Value       string `xml:",chardata"`
}

type enclosure struct {
	URL    string `xml:"url,attr"`
	Length int64  `xml:"length,attr"`
	Type   string `xml:"type,attr"`
}

// Render produces the RSS document for a profile's episodes. baseURL is
// the externally reachable server root used for enclosure links.
func Render(p *profile.Profile, episodes []*store.Episode, baseURL string) ([]byte, error) {
	ch := channel{
		Title:       p.Name,
		Link:        baseURL,
		Description: fmt.Sprintf("%s, a generated podcast for %s.", p.Name, p.Audience),
		Language:    "en",
		Author:      p.Name,
		Explicit:    "false",
	}
	for _, ep := range episodes {
		ch.Items = append(ch.Items, item{
			Title:       ep.Title,
			Description: fmt.Sprintf("Episode of %s from %s.", p.Name, ep.Date.Format("January 2, 2006")),
			GUID:        guid{IsPermaLink: "false", Value: ep.ID},
			PubDate:     ep.Date.UTC().Format(time.RFC1123Z),
			Enclosure: enclosure{
				URL:    fmt.Sprintf("%s/episodes/%s/audio", baseURL, ep.ID),
				Length: int64(ep.DurationSeconds * bytesPerSecond),
				Type:   "audio/mpeg",
			},
			Duration: FormatDuration(ep.DurationSeconds),
		})
	}

	doc := rss{Version: "2.0", ITunes: itunesNS, Channel: ch}
	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal feed: %w", err)
	}
	return append([]byte(xml.Header), out...), nil
}

// FormatDuration renders seconds as HH:MM:SS.
func FormatDuration(seconds float64) string {
	total := int(seconds)
	if total < 0 {
		total = 0
	}
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
