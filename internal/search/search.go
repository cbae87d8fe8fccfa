// Package search provides the web search interface the researcher uses to
// collect counter-argument sources.
package search

import "context"

// Result is one search hit.
type Result struct {
	Title   string
	URL     string
	Snippet string
	Source  string // domain
	Rank    int
}

// Provider performs a web search.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string, maxResults int) ([]Result, error)
}
