// Package graph maintains the directed, typed relationship edges between
// knowledge items: auto-linking from free text, bounded-depth traversal and
// full-graph export.
package graph

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/muninhq/munin/pkg/knowledge"
	"github.com/muninhq/munin/pkg/storage"
)

// Relationship type vocabulary. Open by convention; these are the values the
// core itself creates or expects.
const (
	RelReferences = "references"
	RelCausedBy   = "caused_by"
	RelSupersedes = "supersedes"
	RelRelatedTo  = "related_to"
)

// Graph operates on the edge set stored alongside the items.
type Graph struct {
	store  *knowledge.Store
	engine storage.Engine
}

// New creates a Graph over the given store.
func New(store *knowledge.Store) *Graph {
	return &Graph{
		store:  store,
		engine: store.Engine(),
	}
}

// AutoLink scans text for item ID patterns and creates a "references" edge
// from itemID to each matched item. Self-references and IDs not present in
// the store are skipped. Returns the number of edges created.
//
// Calling AutoLink twice with the same text creates duplicate edges; it is
// intended to run once per item creation.
func (g *Graph) AutoLink(itemID string, text string) (int, error) {
	created := 0

	for _, match := range knowledge.IDPattern.FindAllString(text, -1) {
		if match == itemID {
			continue
		}

		if _, err := g.engine.GetNode(storage.NodeID(match)); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return created, fmt.Errorf("resolving %s: %w", match, err)
		}

		if err := g.createEdge(itemID, match, RelReferences, 1.0, true); err != nil {
			return created, err
		}
		created++
	}

	return created, nil
}

// CreateRelationship inserts a direct edge with strength 1.0. Used by seed
// and import paths.
func (g *Graph) CreateRelationship(fromID, toID, relType string) error {
	if relType == "" {
		return fmt.Errorf("relationship type is required")
	}
	return g.createEdge(fromID, toID, relType, 1.0, false)
}

// createEdge persists the edge and bumps the target's reference count.
func (g *Graph) createEdge(fromID, toID, relType string, strength float64, auto bool) error {
	edge := &storage.Edge{
		ID:            storage.EdgeID(uuid.New().String()),
		StartNode:     storage.NodeID(fromID),
		EndNode:       storage.NodeID(toID),
		Type:          relType,
		Strength:      strength,
		AutoGenerated: auto,
		CreatedAt:     time.Now(),
	}

	if err := g.engine.CreateEdge(edge); err != nil {
		return fmt.Errorf("creating %s edge %s -> %s: %w", relType, fromID, toID, err)
	}

	if err := g.store.IncrementReferenceCount(toID); err != nil {
		return fmt.Errorf("bumping reference count of %s: %w", toID, err)
	}

	return nil
}

// Related is a neighbor discovered by FindRelated.
type Related struct {
	Item knowledge.Item

	// Distance is the hop count from the start item.
	Distance int

	// RelType is the relationship type of the edge that connected this
	// item to its parent in the traversal tree.
	RelType string
}

// FindRelated walks the undirected view of the edge set breadth-first from
// itemID, up to depth hops. Each discovered neighbor appears once with its
// hop distance; the start item is excluded. Edges pointing at missing items
// are skipped.
func (g *Graph) FindRelated(itemID string, depth int) ([]Related, error) {
	if _, err := g.engine.GetNode(storage.NodeID(itemID)); err != nil {
		return nil, err
	}

	visited := map[string]struct{}{itemID: {}}
	frontier := []string{itemID}
	results := []Related{}

	for hop := 1; hop <= depth && len(frontier) > 0; hop++ {
		next := []string{}

		for _, current := range frontier {
			neighbors, err := g.neighbors(current)
			if err != nil {
				return nil, err
			}

			for _, n := range neighbors {
				if _, seen := visited[n.id]; seen {
					continue
				}
				visited[n.id] = struct{}{}

				item, err := g.store.Get(n.id)
				if errors.Is(err, storage.ErrNotFound) {
					continue // dangling edge
				}
				if err != nil {
					return nil, err
				}

				results = append(results, Related{
					Item:     item,
					Distance: hop,
					RelType:  n.relType,
				})
				next = append(next, n.id)
			}
		}

		frontier = next
	}

	return results, nil
}

type neighbor struct {
	id      string
	relType string
}

// neighbors returns adjacent item IDs in both edge directions.
func (g *Graph) neighbors(itemID string) ([]neighbor, error) {
	nodeID := storage.NodeID(itemID)

	outgoing, err := g.engine.GetOutgoingEdges(nodeID)
	if err != nil {
		return nil, err
	}
	incoming, err := g.engine.GetIncomingEdges(nodeID)
	if err != nil {
		return nil, err
	}

	neighbors := make([]neighbor, 0, len(outgoing)+len(incoming))
	for _, e := range outgoing {
		neighbors = append(neighbors, neighbor{id: string(e.EndNode), relType: e.Type})
	}
	for _, e := range incoming {
		neighbors = append(neighbors, neighbor{id: string(e.StartNode), relType: e.Type})
	}

	// Deterministic expansion order
	sort.Slice(neighbors, func(i, j int) bool { return neighbors[i].id < neighbors[j].id })

	return neighbors, nil
}
