package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muninhq/munin/pkg/embed/embedtest"
	"github.com/muninhq/munin/pkg/knowledge"
	"github.com/muninhq/munin/pkg/storage"
)

func newTestGraph(t *testing.T) (*Graph, *knowledge.Store) {
	t.Helper()
	engine := storage.NewMemoryEngine()
	t.Cleanup(func() { engine.Close() })

	store, err := knowledge.NewStore(engine, embedtest.New())
	require.NoError(t, err)
	return New(store), store
}

func mustCreate(t *testing.T, store *knowledge.Store, item knowledge.Item) string {
	t.Helper()
	id, err := store.Create(context.Background(), item)
	require.NoError(t, err)
	return id
}

func TestAutoLink(t *testing.T) {
	g, store := newTestGraph(t)

	target := mustCreate(t, store, &knowledge.Decision{
		Meta: knowledge.Meta{Title: "Use PostgreSQL"},
	})
	source := mustCreate(t, store, &knowledge.Incident{
		Meta:      knowledge.Meta{Title: "Pool exhaustion"},
		RootCause: "Config change made in " + target + " left the pool unbounded",
	})

	created, err := g.AutoLink(source, "Config change made in "+target+" left the pool unbounded")
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	edges, err := store.Engine().GetOutgoingEdges(storage.NodeID(source))
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, RelReferences, edges[0].Type)
	assert.Equal(t, storage.NodeID(target), edges[0].EndNode)
	assert.True(t, edges[0].AutoGenerated)
	assert.Equal(t, 1.0, edges[0].Strength)

	// Inbound edge bumps the target's reference count
	item, err := store.Get(target)
	require.NoError(t, err)
	assert.EqualValues(t, 1, item.Common().ReferenceCount)
}

func TestAutoLinkSkipsSelfAndUnknown(t *testing.T) {
	g, store := newTestGraph(t)

	id := mustCreate(t, store, &knowledge.Decision{Meta: knowledge.Meta{Title: "x"}})

	created, err := g.AutoLink(id, "See "+id+" and the long-gone ADR-999")
	require.NoError(t, err)
	assert.Equal(t, 0, created)

	edges, err := store.Engine().GetOutgoingEdges(storage.NodeID(id))
	require.NoError(t, err)
	assert.Empty(t, edges)
}

func TestAutoLinkRepeatedCallsDuplicate(t *testing.T) {
	g, store := newTestGraph(t)

	target := mustCreate(t, store, &knowledge.Decision{Meta: knowledge.Meta{Title: "t"}})
	source := mustCreate(t, store, &knowledge.Decision{Meta: knowledge.Meta{Title: "s"}})

	text := "supersedes " + target
	_, err := g.AutoLink(source, text)
	require.NoError(t, err)
	_, err = g.AutoLink(source, text)
	require.NoError(t, err)

	// Repeated linking of the same text duplicates the edge; AutoLink is
	// meant to run once per item creation.
	edges, err := store.Engine().GetOutgoingEdges(storage.NodeID(source))
	require.NoError(t, err)
	assert.Len(t, edges, 2)
}

func TestCreateRelationship(t *testing.T) {
	g, store := newTestGraph(t)

	from := mustCreate(t, store, &knowledge.Incident{Meta: knowledge.Meta{Title: "outage"}})
	to := mustCreate(t, store, &knowledge.Decision{Meta: knowledge.Meta{Title: "decision"}})

	require.NoError(t, g.CreateRelationship(from, to, RelCausedBy))

	edges, err := store.Engine().GetOutgoingEdges(storage.NodeID(from))
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, RelCausedBy, edges[0].Type)
	assert.Equal(t, 1.0, edges[0].Strength)
	assert.False(t, edges[0].AutoGenerated)

	err = g.CreateRelationship(from, to, "")
	assert.Error(t, err)

	err = g.CreateRelationship(from, "ADR-404", RelRelatedTo)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

// chain builds A -> B -> C -> D with distinct relationship types and returns
// the IDs in order.
func chain(t *testing.T, g *Graph, store *knowledge.Store) []string {
	a := mustCreate(t, store, &knowledge.Decision{Meta: knowledge.Meta{Title: "a"}})
	b := mustCreate(t, store, &knowledge.Incident{Meta: knowledge.Meta{Title: "b"}})
	c := mustCreate(t, store, &knowledge.MeetingRecord{Meta: knowledge.Meta{Title: "c"}})
	d := mustCreate(t, store, &knowledge.Snapshot{Meta: knowledge.Meta{Title: "d"}})

	require.NoError(t, g.CreateRelationship(a, b, RelReferences))
	require.NoError(t, g.CreateRelationship(b, c, RelCausedBy))
	require.NoError(t, g.CreateRelationship(c, d, RelRelatedTo))

	return []string{a, b, c, d}
}

func TestFindRelatedDepthOne(t *testing.T) {
	g, store := newTestGraph(t)
	ids := chain(t, g, store)

	// From B, depth 1: A (incoming edge, undirected view) and C (outgoing)
	related, err := g.FindRelated(ids[1], 1)
	require.NoError(t, err)
	require.Len(t, related, 2)

	found := map[string]Related{}
	for _, r := range related {
		found[r.Item.Common().ID] = r
		assert.Equal(t, 1, r.Distance)
		assert.NotEqual(t, ids[1], r.Item.Common().ID, "start item excluded")
	}
	assert.Equal(t, RelReferences, found[ids[0]].RelType)
	assert.Equal(t, RelCausedBy, found[ids[2]].RelType)
}

func TestFindRelatedDepthTwoIsSuperset(t *testing.T) {
	g, store := newTestGraph(t)
	ids := chain(t, g, store)

	depth1, err := g.FindRelated(ids[0], 1)
	require.NoError(t, err)
	depth2, err := g.FindRelated(ids[0], 2)
	require.NoError(t, err)

	ids1 := map[string]struct{}{}
	for _, r := range depth1 {
		ids1[r.Item.Common().ID] = struct{}{}
	}
	ids2 := map[string]struct{}{}
	for _, r := range depth2 {
		ids2[r.Item.Common().ID] = struct{}{}
	}

	for id := range ids1 {
		assert.Contains(t, ids2, id)
	}
	assert.Greater(t, len(ids2), len(ids1))

	// C is two hops from A
	for _, r := range depth2 {
		if r.Item.Common().ID == ids[2] {
			assert.Equal(t, 2, r.Distance)
		}
	}
}

func TestFindRelatedCycle(t *testing.T) {
	g, store := newTestGraph(t)

	a := mustCreate(t, store, &knowledge.Decision{Meta: knowledge.Meta{Title: "a"}})
	b := mustCreate(t, store, &knowledge.Decision{Meta: knowledge.Meta{Title: "b"}})
	require.NoError(t, g.CreateRelationship(a, b, RelRelatedTo))
	require.NoError(t, g.CreateRelationship(b, a, RelRelatedTo))

	related, err := g.FindRelated(a, 5)
	require.NoError(t, err)
	require.Len(t, related, 1, "each neighbor discovered once despite the cycle")
	assert.Equal(t, b, related[0].Item.Common().ID)
}

func TestFindRelatedUnknownStart(t *testing.T) {
	g, _ := newTestGraph(t)

	_, err := g.FindRelated("ADR-404", 1)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestExport(t *testing.T) {
	g, store := newTestGraph(t)
	ids := chain(t, g, store)

	result, err := g.Export(true, 0)
	require.NoError(t, err)
	assert.Len(t, result.Nodes, 4)
	assert.Len(t, result.Edges, 3)

	// B, C, D each have one inbound edge; A has none. The cap keeps the
	// most-referenced nodes.
	capped, err := g.Export(true, 3)
	require.NoError(t, err)
	require.Len(t, capped.Nodes, 3)
	for _, n := range capped.Nodes {
		assert.NotEqual(t, ids[0], n.ID)
		assert.EqualValues(t, 1, n.ReferenceCount)
	}
	// Edges touching the dropped node are excluded
	assert.Len(t, capped.Edges, 2)
}

func TestExportExcludesArchived(t *testing.T) {
	g, store := newTestGraph(t)
	ids := chain(t, g, store)

	require.NoError(t, store.UpdateStatus(ids[3], knowledge.StatusArchived))

	visible, err := g.Export(false, 0)
	require.NoError(t, err)
	assert.Len(t, visible.Nodes, 3)
	assert.Len(t, visible.Edges, 2)

	all, err := g.Export(true, 0)
	require.NoError(t, err)
	assert.Len(t, all.Nodes, 4)
}
