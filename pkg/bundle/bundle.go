// Package bundle assembles token-budgeted context bundles: semantic search,
// one-hop graph expansion, domain filtering, composite ranking and
// per-bucket character budgeting.
package bundle

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/muninhq/munin/pkg/graph"
	"github.com/muninhq/munin/pkg/knowledge"
	"github.com/muninhq/munin/pkg/search"
)

const (
	// searchTopK is the breadth of the initial semantic search.
	searchTopK = 20

	// graphSimilarity is the placeholder relevance assigned to items
	// discovered through graph expansion; they are not scored against the
	// query directly.
	graphSimilarity = 0.5

	// charsPerToken converts the caller's token budget to characters.
	charsPerToken = 4

	weightRelevance  = 0.5
	weightRecency    = 0.3
	weightImportance = 0.2
)

// bucketShare is each bucket's share of the total character budget. Each
// bucket draws against the full budget independently; the nominal allocation
// sums to 110% of the budget.
var bucketShare = map[knowledge.ItemType]float64{
	knowledge.TypeDecision:      0.40,
	knowledge.TypeIncident:      0.30,
	knowledge.TypeMeetingRecord: 0.20,
	knowledge.TypeSnapshot:      0.20,
}

// importanceBase is the per-type importance used in composite ranking.
var importanceBase = map[knowledge.ItemType]float64{
	knowledge.TypeDecision:      0.9,
	knowledge.TypeIncident:      0.8,
	knowledge.TypeMeetingRecord: 0.6,
	knowledge.TypeSnapshot:      0.5,
}

// Item is one entry of a delivered bundle.
type Item struct {
	ID      string    `json:"id"`
	Type    string    `json:"type"`
	Title   string    `json:"title"`
	Content string    `json:"content"`
	Tags    []string  `json:"tags"`
	Date    time.Time `json:"date,omitempty"`

	// Similarity is the query similarity from search, or the 0.5
	// placeholder for graph-derived items.
	Similarity float64 `json:"similarity"`

	// Score is the composite ranking score.
	Score float64 `json:"score"`
}

// Bundle is the token-budgeted response returned to a caller.
type Bundle struct {
	KeyDecisions  []Item `json:"key_decisions"`
	KnownIssues   []Item `json:"known_issues"`
	RecentChanges []Item `json:"recent_changes"`
	TotalItems    int    `json:"total_items"`
}

// Bundler orchestrates search and graph into bundles.
type Bundler struct {
	store  *knowledge.Store
	search *search.Service
	graph  *graph.Graph

	// now is swappable for recency tests.
	now func() time.Time
}

// New creates a Bundler.
func New(store *knowledge.Store, searchSvc *search.Service, graphSvc *graph.Graph) *Bundler {
	return &Bundler{
		store:  store,
		search: searchSvc,
		graph:  graphSvc,
		now:    time.Now,
	}
}

// candidate is an item moving through the pipeline.
type candidate struct {
	item       knowledge.Item
	similarity float64
	score      float64
}

// BundleContext answers a query with a ranked, budgeted bundle.
//
// Pipeline: semantic search (top 20, all types), one-hop graph expansion with
// dedup, domain filter, composite ranking, then per-bucket character
// budgeting. A non-positive maxTokens returns an empty bundle without
// touching the embedder. Embedding failure aborts the call; dangling graph
// edges are skipped.
func (b *Bundler) BundleContext(ctx context.Context, query string, maxTokens int, domains []string) (*Bundle, error) {
	if maxTokens <= 0 {
		return &Bundle{
			KeyDecisions:  []Item{},
			KnownIssues:   []Item{},
			RecentChanges: []Item{},
		}, nil
	}

	// Step 1: semantic search
	results, err := b.search.SemanticSearch(ctx, query, searchTopK, nil)
	if err != nil {
		return nil, fmt.Errorf("searching: %w", err)
	}

	// Step 2: graph expansion, dedup by id
	seen := make(map[string]struct{}, len(results))
	candidates := make([]*candidate, 0, len(results))
	for _, r := range results {
		id := r.Item.Common().ID
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		candidates = append(candidates, &candidate{item: r.Item, similarity: r.Similarity})
	}

	for _, r := range results {
		related, err := b.graph.FindRelated(r.Item.Common().ID, 1)
		if err != nil {
			return nil, fmt.Errorf("expanding %s: %w", r.Item.Common().ID, err)
		}
		for _, rel := range related {
			id := rel.Item.Common().ID
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			candidates = append(candidates, &candidate{item: rel.Item, similarity: graphSimilarity})
		}
	}

	// Step 3: domain filter
	if len(domains) > 0 {
		kept := candidates[:0]
		for _, c := range candidates {
			if tagsIntersect(c.item.Common().Tags, domains) {
				kept = append(kept, c)
			}
		}
		candidates = kept
	}

	// Step 4: composite ranking
	now := b.now()
	for _, c := range candidates {
		c.score = weightRelevance*c.similarity +
			weightRecency*recencyScore(c.item.Common().Date, now) +
			weightImportance*importanceScore(c.item)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	// Step 5: per-bucket character budgeting
	totalChars := maxTokens * charsPerToken
	buckets := map[knowledge.ItemType][]Item{}
	delivered := []string{}

	for _, t := range knowledge.AllTypes {
		remaining := int(float64(totalChars) * bucketShare[t])

		for _, c := range candidates {
			if c.item.Type() != t {
				continue
			}
			entry := toItem(c)
			if len(entry.Content) > remaining {
				continue // skip, keep trying smaller items in score order
			}
			remaining -= len(entry.Content)
			buckets[t] = append(buckets[t], entry)
			delivered = append(delivered, entry.ID)
		}
	}

	// Delivery bumps the 30-day access counter
	for _, id := range delivered {
		if err := b.store.IncrementAccessCount(id); err != nil {
			return nil, fmt.Errorf("recording access of %s: %w", id, err)
		}
	}

	recent := append(buckets[knowledge.TypeMeetingRecord], buckets[knowledge.TypeSnapshot]...)
	sort.SliceStable(recent, func(i, j int) bool { return recent[i].Score > recent[j].Score })

	bundle := &Bundle{
		KeyDecisions:  emptyIfNil(buckets[knowledge.TypeDecision]),
		KnownIssues:   emptyIfNil(buckets[knowledge.TypeIncident]),
		RecentChanges: emptyIfNil(recent),
	}
	bundle.TotalItems = len(bundle.KeyDecisions) + len(bundle.KnownIssues) + len(bundle.RecentChanges)

	return bundle, nil
}

func toItem(c *candidate) Item {
	meta := c.item.Common()
	return Item{
		ID:         meta.ID,
		Type:       string(c.item.Type()),
		Title:      meta.Title,
		Content:    knowledge.Content(c.item),
		Tags:       meta.Tags,
		Date:       meta.Date,
		Similarity: c.similarity,
		Score:      c.score,
	}
}

// recencyScore steps down with item age. A missing date scores 0.5.
func recencyScore(date time.Time, now time.Time) float64 {
	if date.IsZero() {
		return 0.5
	}

	age := now.Sub(date)
	switch {
	case age <= 30*24*time.Hour:
		return 1.0
	case age <= 90*24*time.Hour:
		return 0.8
	case age <= 180*24*time.Hour:
		return 0.6
	case age <= 365*24*time.Hour:
		return 0.4
	default:
		return 0.2
	}
}

// importanceScore is the per-type base, boosted by 0.1 (capped at 1.0) for
// critical or high-priority items.
func importanceScore(item knowledge.Item) float64 {
	score := importanceBase[item.Type()]
	for _, tag := range item.Common().Tags {
		if tag == "critical" || tag == "high-priority" {
			score += 0.1
			break
		}
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

func tagsIntersect(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

func emptyIfNil(items []Item) []Item {
	if items == nil {
		return []Item{}
	}
	return items
}
