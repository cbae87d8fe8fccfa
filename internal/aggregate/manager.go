// Package aggregate fans out across source connectors and produces the
// deduplicated, ranked candidate item set for one generation job.
package aggregate

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/apresai/newsroom/internal/content"
	"github.com/apresai/newsroom/internal/sources"
)

// SourceWeight carries the ranking inputs configured on a content source.
type SourceWeight struct {
	Priority    int     // 1-10
	Credibility float64 // 0-1
}

// Manager aggregates items across connectors. It is stateless across calls;
// all state lives in the item slices it returns.
type Manager struct {
	connectors []sources.Connector
	weights    map[string]SourceWeight // keyed by connector name
	log        *slog.Logger
}

// NewManager creates a manager over the given connectors. weights maps
// connector names to their configured priority and credibility.
func NewManager(connectors []sources.Connector, weights map[string]SourceWeight, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{connectors: connectors, weights: weights, log: logger}
}

// FetchAll launches one concurrent fetch per connector, waits for all of
// them, deduplicates, attaches content hashes, and returns the survivors
// sorted by weighted engagement, descending. A failing connector contributes
// an empty list; it never fails the aggregation.
func (m *Manager) FetchAll(ctx context.Context, limitPerSource int) ([]content.Item, error) {
	if len(m.connectors) == 0 {
		m.log.WarnContext(ctx, "Aggregation with zero active connectors")
		return []content.Item{}, nil
	}

	results := make([][]content.Item, len(m.connectors))
	var g errgroup.Group
	for i, conn := range m.connectors {
		g.Go(func() error {
			items, err := conn.Fetch(ctx, limitPerSource)
			if err != nil {
				m.log.WarnContext(ctx, "Connector fetch failed",
					"connector", conn.Name(), "kind", string(conn.Kind()), "error", err)
				items = nil
			}
			results[i] = items
			return nil
		})
	}
	// Errors are swallowed per connector above.
	_ = g.Wait()

	// Weight lookup keys on the configured connector name. Items may carry
	// a different display name (feed channel title, wire-service name), so
	// the connector weight is recorded per item ID before the flatten.
	var all []content.Item
	itemWeights := make(map[string]SourceWeight)
	for i, items := range results {
		m.log.InfoContext(ctx, "Connector fetch complete",
			"connector", m.connectors[i].Name(), "items", len(items))
		w := m.weightFor(m.connectors[i].Name())
		for _, it := range items {
			itemWeights[it.ID] = w
		}
		all = append(all, items...)
	}

	deduped := Dedupe(all)
	for i := range deduped {
		deduped[i].ContentHash = content.ContentHash(deduped[i].Title, deduped[i].Body)
	}

	sort.SliceStable(deduped, func(a, b int) bool {
		return rank(deduped[a], itemWeights[deduped[a].ID]) > rank(deduped[b], itemWeights[deduped[b].ID])
	})

	if deduped == nil {
		deduped = []content.Item{}
	}
	return deduped, nil
}

// Rank is the weighted engagement of one item:
// (score + 2*comments) * (priority/10) * credibility.
func (m *Manager) Rank(it content.Item) float64 {
	return rank(it, m.weightFor(it.SourceName))
}

func rank(it content.Item, w SourceWeight) float64 {
	return float64(it.Engagement()) * (float64(w.Priority) / 10.0) * w.Credibility
}

func (m *Manager) weightFor(name string) SourceWeight {
	if w, ok := m.weights[name]; ok {
		return w
	}
	return SourceWeight{Priority: 5, Credibility: 0.5}
}

// Dedupe drops items whose URL was already seen, then items whose first 50
// title characters (lowercased, whitespace-stripped) were already seen. The
// first occurrence wins, so attribution follows input order.
func Dedupe(items []content.Item) []content.Item {
	seenURL := make(map[string]bool, len(items))
	seenTitle := make(map[string]bool, len(items))
	out := make([]content.Item, 0, len(items))
	for _, it := range items {
		if it.URL != "" && seenURL[it.URL] {
			continue
		}
		key := titleKey(it.Title)
		if key != "" && seenTitle[key] {
			continue
		}
		if it.URL != "" {
			seenURL[it.URL] = true
		}
		if key != "" {
			seenTitle[key] = true
		}
		out = append(out, it)
	}
	return out
}

func titleKey(title string) string {
	key := strings.ToLower(strings.Join(strings.Fields(title), ""))
	if len(key) > 50 {
		key = key[:50]
	}
	return key
}

// StatsSummary aggregates the per-connector health counters, keyed by name.
func (m *Manager) StatsSummary() map[string]sources.Stats {
	out := make(map[string]sources.Stats, len(m.connectors))
	for _, conn := range m.connectors {
		out[conn.Name()] = conn.Stats()
	}
	return out
}
