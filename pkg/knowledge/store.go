package knowledge

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/muninhq/munin/pkg/embed"
	"github.com/muninhq/munin/pkg/storage"
)

// Store is the typed persistence layer for knowledge items.
//
// Items are stored as storage Nodes: the item type becomes the node label,
// type-specific body fields live in Properties, and the lifecycle status and
// ranking counters are first-class node columns. Embeddings are generated at
// creation and regenerated in full whenever body text changes.
type Store struct {
	engine   storage.Engine
	embedder embed.Embedder

	// Per-type monotonic ID sequences, seeded from existing data at open.
	mu  sync.Mutex
	seq map[ItemType]int
}

// NewStore creates a Store over the given engine and embedder. Existing item
// IDs are scanned once to seed the per-type sequences.
func NewStore(engine storage.Engine, embedder embed.Embedder) (*Store, error) {
	s := &Store{
		engine:   engine,
		embedder: embedder,
		seq:      make(map[ItemType]int),
	}

	for _, t := range AllTypes {
		nodes, err := engine.GetNodesByLabel(string(t))
		if err != nil {
			return nil, fmt.Errorf("scanning %s sequence: %w", t, err)
		}
		for _, node := range nodes {
			if n := sequenceOf(string(node.ID)); n > s.seq[t] {
				s.seq[t] = n
			}
		}
	}

	return s, nil
}

// sequenceOf parses the numeric suffix of an item ID. Returns 0 when the ID
// does not parse.
func sequenceOf(id string) int {
	_, digits, found := strings.Cut(id, "-")
	if !found {
		return 0
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0
	}
	return n
}

// nextID reserves the next ID for the type (e.g. "ADR-001").
func (s *Store) nextID(t ItemType) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq[t]++
	return fmt.Sprintf("%s-%03d", t.Prefix(), s.seq[t])
}

// Create validates, embeds and persists a new item, assigning its ID.
// Tags are auto-derived from the title and body when not supplied.
// Returns the assigned ID.
func (s *Store) Create(ctx context.Context, item Item) (string, error) {
	if err := Validate(item); err != nil {
		return "", err
	}

	meta := item.Common()
	now := time.Now()

	if meta.Status == "" {
		meta.Status = item.Type().DefaultStatus()
	}
	if len(meta.Tags) == 0 {
		meta.Tags = DeriveTags(Content(item))
	}
	if meta.Date.IsZero() {
		meta.Date = now
	}
	meta.CreatedAt = now
	meta.UpdatedAt = now
	meta.ID = s.nextID(item.Type())

	embedding, err := s.embedder.Embed(ctx, Content(item))
	if err != nil {
		return "", fmt.Errorf("embedding %s: %w", meta.ID, err)
	}

	node := ItemToNode(item)
	node.Embedding = embedding

	if err := s.engine.CreateNode(node); err != nil {
		return "", fmt.Errorf("storing %s: %w", meta.ID, err)
	}

	return meta.ID, nil
}

// Get fetches an item by ID.
func (s *Store) Get(id string) (Item, error) {
	node, err := s.engine.GetNode(storage.NodeID(id))
	if err != nil {
		return nil, err
	}
	return NodeToItem(node)
}

// List returns all items of a type. An empty statusFilter returns every
// status; otherwise only items with that exact status.
func (s *Store) List(t ItemType, statusFilter string) ([]Item, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: unknown item type %q", ErrValidation, t)
	}

	nodes, err := s.engine.GetNodesByLabel(string(t))
	if err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(nodes))
	for _, node := range nodes {
		if statusFilter != "" && node.Status != statusFilter {
			continue
		}
		item, err := NodeToItem(node)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	return items, nil
}

// Update re-validates an existing item, regenerates its embedding in full
// (body text may have changed) and persists it. The ID and creation time are
// preserved.
func (s *Store) Update(ctx context.Context, item Item) error {
	if err := Validate(item); err != nil {
		return err
	}

	meta := item.Common()
	if meta.ID == "" {
		return fmt.Errorf("%w: missing ID", ErrValidation)
	}

	existing, err := s.engine.GetNode(storage.NodeID(meta.ID))
	if err != nil {
		return err
	}

	embedding, err := s.embedder.Embed(ctx, Content(item))
	if err != nil {
		return fmt.Errorf("embedding %s: %w", meta.ID, err)
	}

	meta.CreatedAt = existing.CreatedAt
	meta.UpdatedAt = time.Now()

	node := ItemToNode(item)
	node.Embedding = embedding

	return s.engine.UpdateNode(node)
}

// UpdateStatus transitions an item to a new lifecycle status.
func (s *Store) UpdateStatus(id, status string) error {
	t, ok := TypeFromID(id)
	if !ok {
		return fmt.Errorf("%w: unrecognized ID %q", ErrValidation, id)
	}
	if !t.ValidStatus(status) {
		return fmt.Errorf("%w: invalid status %q for %s", ErrValidation, status, t)
	}

	node, err := s.engine.GetNode(storage.NodeID(id))
	if err != nil {
		return err
	}

	node.Status = status
	return s.engine.UpdateNode(node)
}

// IncrementAccessCount bumps the 30-day access counter. Called by the
// bundler when an item is delivered in a bundle.
func (s *Store) IncrementAccessCount(id string) error {
	node, err := s.engine.GetNode(storage.NodeID(id))
	if err != nil {
		return err
	}
	node.AccessCount30d++
	return s.engine.UpdateNode(node)
}

// IncrementReferenceCount bumps the inbound-reference counter. Called by the
// graph when a new inbound edge is created.
func (s *Store) IncrementReferenceCount(id string) error {
	node, err := s.engine.GetNode(storage.NodeID(id))
	if err != nil {
		return err
	}
	node.ReferenceCount++
	return s.engine.UpdateNode(node)
}

// Engine exposes the underlying storage engine for the graph, search and
// decay layers.
func (s *Store) Engine() storage.Engine {
	return s.engine
}
