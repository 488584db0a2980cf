package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// engines returns a fresh instance of every Engine implementation so the same
// behavioral suite runs against both.
func engines(t *testing.T) map[string]Engine {
	t.Helper()

	badgerEngine, err := NewBadgerEngineWithOptions(BadgerOptions{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { badgerEngine.Close() })

	memEngine := NewMemoryEngine()
	t.Cleanup(func() { memEngine.Close() })

	return map[string]Engine{
		"memory": memEngine,
		"badger": badgerEngine,
	}
}

func testNode(id NodeID, labels ...string) *Node {
	if len(labels) == 0 {
		labels = []string{"Decision"}
	}
	return &Node{
		ID:     id,
		Labels: labels,
		Properties: map[string]any{
			"title": "Use PostgreSQL for persistence",
			"tags":  []string{"database", "architecture"},
		},
		Embedding: []float32{0.1, 0.2, 0.3},
		Status:    "accepted",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
}

func TestNodeCRUD(t *testing.T) {
	for name, engine := range engines(t) {
		t.Run(name, func(t *testing.T) {
			node := testNode("ADR-001")
			require.NoError(t, engine.CreateNode(node))

			// Duplicate creation fails
			err := engine.CreateNode(testNode("ADR-001"))
			assert.ErrorIs(t, err, ErrAlreadyExists)

			got, err := engine.GetNode("ADR-001")
			require.NoError(t, err)
			assert.Equal(t, NodeID("ADR-001"), got.ID)
			assert.Equal(t, []string{"Decision"}, got.Labels)
			assert.Equal(t, "accepted", got.Status)
			assert.Equal(t, []float32{0.1, 0.2, 0.3}, got.Embedding)

			got.Status = "superseded"
			require.NoError(t, engine.UpdateNode(got))

			updated, err := engine.GetNode("ADR-001")
			require.NoError(t, err)
			assert.Equal(t, "superseded", updated.Status)

			require.NoError(t, engine.DeleteNode("ADR-001"))
			_, err = engine.GetNode("ADR-001")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestNodeValidation(t *testing.T) {
	for name, engine := range engines(t) {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, engine.CreateNode(nil), ErrInvalidData)
			assert.ErrorIs(t, engine.CreateNode(&Node{}), ErrInvalidID)

			_, err := engine.GetNode("")
			assert.ErrorIs(t, err, ErrInvalidID)

			_, err = engine.GetNode("ADR-999")
			assert.ErrorIs(t, err, ErrNotFound)

			assert.ErrorIs(t, engine.UpdateNode(testNode("ADR-999")), ErrNotFound)
			assert.ErrorIs(t, engine.DeleteNode("ADR-999"), ErrNotFound)
		})
	}
}

func TestGetNodesByLabel(t *testing.T) {
	for name, engine := range engines(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, engine.CreateNode(testNode("ADR-001", "Decision")))
			require.NoError(t, engine.CreateNode(testNode("ADR-002", "Decision")))
			require.NoError(t, engine.CreateNode(testNode("FAIL-001", "Incident")))

			decisions, err := engine.GetNodesByLabel("Decision")
			require.NoError(t, err)
			assert.Len(t, decisions, 2)

			incidents, err := engine.GetNodesByLabel("Incident")
			require.NoError(t, err)
			assert.Len(t, incidents, 1)

			none, err := engine.GetNodesByLabel("Snapshot")
			require.NoError(t, err)
			assert.Empty(t, none)
		})
	}
}

func TestLabelIndexFollowsUpdate(t *testing.T) {
	for name, engine := range engines(t) {
		t.Run(name, func(t *testing.T) {
			node := testNode("ADR-001", "Decision")
			require.NoError(t, engine.CreateNode(node))

			node.Labels = []string{"Snapshot"}
			require.NoError(t, engine.UpdateNode(node))

			decisions, err := engine.GetNodesByLabel("Decision")
			require.NoError(t, err)
			assert.Empty(t, decisions)

			snapshots, err := engine.GetNodesByLabel("Snapshot")
			require.NoError(t, err)
			assert.Len(t, snapshots, 1)
		})
	}
}

func TestEdgeCRUD(t *testing.T) {
	for name, engine := range engines(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, engine.CreateNode(testNode("ADR-001")))
			require.NoError(t, engine.CreateNode(testNode("FAIL-001", "Incident")))

			edge := &Edge{
				ID:            "e1",
				StartNode:     "FAIL-001",
				EndNode:       "ADR-001",
				Type:          "references",
				Strength:      1.0,
				AutoGenerated: true,
				CreatedAt:     time.Now(),
			}
			require.NoError(t, engine.CreateEdge(edge))

			got, err := engine.GetEdge("e1")
			require.NoError(t, err)
			assert.Equal(t, NodeID("FAIL-001"), got.StartNode)
			assert.Equal(t, NodeID("ADR-001"), got.EndNode)
			assert.Equal(t, "references", got.Type)
			assert.True(t, got.AutoGenerated)

			outgoing, err := engine.GetOutgoingEdges("FAIL-001")
			require.NoError(t, err)
			assert.Len(t, outgoing, 1)

			incoming, err := engine.GetIncomingEdges("ADR-001")
			require.NoError(t, err)
			assert.Len(t, incoming, 1)

			// No edges in the other direction
			outgoing, err = engine.GetOutgoingEdges("ADR-001")
			require.NoError(t, err)
			assert.Empty(t, outgoing)
		})
	}
}

func TestEdgeRequiresEndpoints(t *testing.T) {
	for name, engine := range engines(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, engine.CreateNode(testNode("ADR-001")))

			err := engine.CreateEdge(&Edge{
				ID:        "e1",
				StartNode: "ADR-001",
				EndNode:   "ADR-404",
				Type:      "references",
			})
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestDeleteNodeCascadesEdges(t *testing.T) {
	for name, engine := range engines(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, engine.CreateNode(testNode("ADR-001")))
			require.NoError(t, engine.CreateNode(testNode("ADR-002")))
			require.NoError(t, engine.CreateEdge(&Edge{
				ID: "e1", StartNode: "ADR-001", EndNode: "ADR-002", Type: "references",
			}))
			require.NoError(t, engine.CreateEdge(&Edge{
				ID: "e2", StartNode: "ADR-002", EndNode: "ADR-001", Type: "supersedes",
			}))

			require.NoError(t, engine.DeleteNode("ADR-001"))

			_, err := engine.GetEdge("e1")
			assert.ErrorIs(t, err, ErrNotFound)
			_, err = engine.GetEdge("e2")
			assert.ErrorIs(t, err, ErrNotFound)

			incoming, err := engine.GetIncomingEdges("ADR-002")
			require.NoError(t, err)
			assert.Empty(t, incoming)

			count, err := engine.EdgeCount()
			require.NoError(t, err)
			assert.EqualValues(t, 0, count)
		})
	}
}

func TestCounts(t *testing.T) {
	for name, engine := range engines(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, engine.CreateNode(testNode("ADR-001")))
			require.NoError(t, engine.CreateNode(testNode("ADR-002")))
			require.NoError(t, engine.CreateEdge(&Edge{
				ID: "e1", StartNode: "ADR-001", EndNode: "ADR-002", Type: "references",
			}))

			nodeCount, err := engine.NodeCount()
			require.NoError(t, err)
			assert.EqualValues(t, 2, nodeCount)

			edgeCount, err := engine.EdgeCount()
			require.NoError(t, err)
			assert.EqualValues(t, 1, edgeCount)
		})
	}
}

func TestDeepCopyIsolation(t *testing.T) {
	engine := NewMemoryEngine()
	defer engine.Close()

	node := testNode("ADR-001")
	require.NoError(t, engine.CreateNode(node))

	// Mutating the original after store must not affect the stored copy
	node.Properties["title"] = "mutated"
	node.Embedding[0] = 99

	got, err := engine.GetNode("ADR-001")
	require.NoError(t, err)
	assert.Equal(t, "Use PostgreSQL for persistence", got.Properties["title"])
	assert.Equal(t, float32(0.1), got.Embedding[0])

	// Mutating a fetched copy must not affect subsequent reads
	got.Properties["title"] = "also mutated"
	again, err := engine.GetNode("ADR-001")
	require.NoError(t, err)
	assert.Equal(t, "Use PostgreSQL for persistence", again.Properties["title"])
}

func TestClosedEngine(t *testing.T) {
	for name, engine := range engines(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, engine.Close())

			assert.ErrorIs(t, engine.CreateNode(testNode("ADR-001")), ErrStorageClosed)
			_, err := engine.GetNode("ADR-001")
			assert.ErrorIs(t, err, ErrStorageClosed)
			_, err = engine.GetAllNodes()
			assert.ErrorIs(t, err, ErrStorageClosed)

			// Double close is fine
			assert.NoError(t, engine.Close())
		})
	}
}

func TestBadgerPersistence(t *testing.T) {
	dir := t.TempDir()

	engine, err := NewBadgerEngine(dir)
	require.NoError(t, err)

	require.NoError(t, engine.CreateNode(testNode("ADR-001")))
	require.NoError(t, engine.CreateNode(testNode("ADR-002")))
	require.NoError(t, engine.CreateEdge(&Edge{
		ID: "e1", StartNode: "ADR-001", EndNode: "ADR-002", Type: "references",
	}))
	require.NoError(t, engine.Close())

	// Reopen and verify data plus cached counts survived
	reopened, err := NewBadgerEngine(dir)
	require.NoError(t, err)
	defer reopened.Close()

	node, err := reopened.GetNode("ADR-001")
	require.NoError(t, err)
	assert.Equal(t, "accepted", node.Status)

	nodeCount, err := reopened.NodeCount()
	require.NoError(t, err)
	assert.EqualValues(t, 2, nodeCount)

	edgeCount, err := reopened.EdgeCount()
	require.NoError(t, err)
	assert.EqualValues(t, 1, edgeCount)
}

func TestBadgerEncryptionKeyLength(t *testing.T) {
	_, err := NewBadgerEngineWithOptions(BadgerOptions{
		InMemory:      true,
		EncryptionKey: []byte("short"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "16, 24, or 32 bytes")
}
