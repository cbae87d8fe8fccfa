package research

import "strings"

// Tiered source trust. Official and academic domains rank highest,
// established tech press next, everything else gets a neutral score.
var credibleDomains = map[string]float64{
	"reuters.com":      0.95,
	"apnews.com":       0.95,
	"nature.com":       0.95,
	"arxiv.org":        0.9,
	"acm.org":          0.9,
	"ieee.org":         0.9,
	"bbc.com":          0.85,
	"bbc.co.uk":        0.85,
	"nytimes.com":      0.85,
	"wsj.com":          0.85,
	"theverge.com":     0.75,
	"arstechnica.com":  0.75,
	"techcrunch.com":   0.75,
	"wired.com":        0.75,
	"theregister.com":  0.7,
	"venturebeat.com":  0.7,
	"medium.com":       0.5,
	"substack.com":     0.5,
}

// DomainCredibility scores a URL's host on [0,1]. Unknown .edu and .gov
// hosts score like academic sources.
func DomainCredibility(rawURL string) float64 {
	host := sourceNameFromURL(rawURL)
	if host == "" {
		return 0.6
	}
	if score, ok := credibleDomains[host]; ok {
		return score
	}
	if strings.HasSuffix(host, ".edu") || strings.HasSuffix(host, ".gov") {
		return 0.9
	}
	return 0.6
}
