// Package search ranks knowledge items by vector similarity to a query.
package search

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/muninhq/munin/pkg/embed"
	"github.com/muninhq/munin/pkg/knowledge"
	"github.com/muninhq/munin/pkg/storage"
	"github.com/muninhq/munin/pkg/vector"
)

// ScoredItem is a search hit with its similarity to the query.
type ScoredItem struct {
	Item knowledge.Item

	// Similarity is 1 - cosine distance, in [0, 1]. Identical text scores
	// close to 1.0.
	Similarity float64
}

// Service performs semantic and filtered search over the item store.
type Service struct {
	store    *knowledge.Store
	embedder embed.Embedder
	engine   storage.Engine
}

// New creates a search service.
func New(store *knowledge.Store, embedder embed.Embedder) *Service {
	return &Service{
		store:    store,
		embedder: embedder,
		engine:   store.Engine(),
	}
}

// SemanticSearch embeds the query and returns the topK most similar items.
//
// For each requested type the topK best matches are collected, then the
// per-type lists are merged, sorted by similarity descending and truncated to
// topK overall. The sort is stable, so ties keep the per-type list order.
// Archived items and items without an embedding never match.
//
// An empty types slice searches all types.
func (s *Service) SemanticSearch(ctx context.Context, query string, topK int, types []knowledge.ItemType) ([]ScoredItem, error) {
	if topK <= 0 {
		return []ScoredItem{}, nil
	}
	if len(types) == 0 {
		types = knowledge.AllTypes
	}

	queryVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	merged := []ScoredItem{}
	for _, t := range types {
		perType, err := s.searchType(queryVec, t, topK)
		if err != nil {
			return nil, err
		}
		merged = append(merged, perType...)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Similarity > merged[j].Similarity
	})

	if len(merged) > topK {
		merged = merged[:topK]
	}
	return merged, nil
}

// searchType ranks one type's non-archived, embedded items against the query
// vector and returns its topK.
func (s *Service) searchType(queryVec []float32, t knowledge.ItemType, topK int) ([]ScoredItem, error) {
	nodes, err := s.engine.GetNodesByLabel(string(t))
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", t, err)
	}

	// Deterministic per-type order so stable-sort tie-breaks are stable
	// across runs.
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })

	scored := []ScoredItem{}
	for _, node := range nodes {
		if node.Status == knowledge.StatusArchived || len(node.Embedding) == 0 {
			continue
		}

		item, err := knowledge.NodeToItem(node)
		if err != nil {
			continue
		}

		scored = append(scored, ScoredItem{
			Item:       item,
			Similarity: vector.Similarity(queryVec, node.Embedding),
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Similarity > scored[j].Similarity
	})

	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

// Filters narrows a FilteredSearch. Zero values disable each filter.
type Filters struct {
	// Tags keeps only items whose tag set intersects this set.
	Tags []string

	// DateFrom and DateTo bound the item date, inclusive on both ends.
	DateFrom time.Time
	DateTo   time.Time

	// Types restricts the searched item types. Empty means all.
	Types []knowledge.ItemType

	// TopK is the result cap passed to the underlying semantic search.
	TopK int
}

// FilteredSearch is a post-filter over SemanticSearch: it only removes
// results, never re-ranks them.
func (s *Service) FilteredSearch(ctx context.Context, query string, filters Filters) ([]ScoredItem, error) {
	results, err := s.SemanticSearch(ctx, query, filters.TopK, filters.Types)
	if err != nil {
		return nil, err
	}

	filtered := []ScoredItem{}
	for _, r := range results {
		meta := r.Item.Common()

		if len(filters.Tags) > 0 && !tagsIntersect(meta.Tags, filters.Tags) {
			continue
		}
		if !filters.DateFrom.IsZero() && meta.Date.Before(filters.DateFrom) {
			continue
		}
		if !filters.DateTo.IsZero() && meta.Date.After(filters.DateTo) {
			continue
		}

		filtered = append(filtered, r)
	}

	return filtered, nil
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
