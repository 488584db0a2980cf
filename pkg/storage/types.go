// Package storage provides the persistence engines for knowledge items and
// relationship edges.
//
// Two implementations of Engine are provided:
//   - MemoryEngine: thread-safe in-memory storage for tests and small corpora
//   - BadgerEngine: persistent disk-based storage using BadgerDB
package storage

import (
	"errors"
	"time"
)

// Errors returned by storage engines.
var (
	ErrNotFound      = errors.New("record not found")
	ErrAlreadyExists = errors.New("record already exists")
	ErrInvalidID     = errors.New("invalid ID")
	ErrInvalidData   = errors.New("invalid data")
	ErrStorageClosed = errors.New("storage is closed")
)

// NodeID uniquely identifies a knowledge-item node (e.g. "ADR-001").
type NodeID string

// EdgeID uniquely identifies a relationship edge.
type EdgeID string

// Node is the stored representation of a knowledge item.
//
// The knowledge layer owns the meaning of Labels (item type), Status
// (lifecycle vocabulary) and Properties (type-specific body fields); storage
// treats them as opaque. Embedding holds the full item vector; it is either
// absent or complete, never partially updated.
type Node struct {
	ID         NodeID         `json:"id"`
	Labels     []string       `json:"labels"`
	Properties map[string]any `json:"properties"`
	Embedding  []float32      `json:"embedding,omitempty"`

	// Lifecycle and ranking metadata.
	Status         string `json:"status"`
	AccessCount30d int64  `json:"access_count_30d"`
	ReferenceCount int64  `json:"reference_count"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Edge is a directed, typed relationship between two nodes.
//
// Edges are append-only from the core's perspective: the engines support
// deletion for maintenance tooling, but no core code path deletes edges.
type Edge struct {
	ID            EdgeID         `json:"id"`
	StartNode     NodeID         `json:"start_node"`
	EndNode       NodeID         `json:"end_node"`
	Type          string         `json:"type"`
	Strength      float64        `json:"strength"`
	AutoGenerated bool           `json:"auto_generated"`
	CreatedAt     time.Time      `json:"created_at"`
	Properties    map[string]any `json:"properties,omitempty"`
}

// Engine is the storage interface consumed by the knowledge, graph, search
// and decay layers.
//
// Implementations must be safe for concurrent use. Individual inserts and
// updates are atomic per record; no cross-record transactional guarantee is
// made (an item insert and its auto-linked edges may be separated by a
// crash).
type Engine interface {
	// Node operations
	CreateNode(node *Node) error
	GetNode(id NodeID) (*Node, error)
	UpdateNode(node *Node) error
	DeleteNode(id NodeID) error
	GetNodesByLabel(label string) ([]*Node, error)
	GetAllNodes() ([]*Node, error)

	// Edge operations
	CreateEdge(edge *Edge) error
	GetEdge(id EdgeID) (*Edge, error)
	GetOutgoingEdges(nodeID NodeID) ([]*Edge, error)
	GetIncomingEdges(nodeID NodeID) ([]*Edge, error)
	GetAllEdges() ([]*Edge, error)

	// Stats
	NodeCount() (int64, error)
	EdgeCount() (int64, error)

	Close() error
}

// CopyNode creates a deep copy of a node.
func CopyNode(n *Node) *Node {
	if n == nil {
		return nil
	}

	copied := &Node{
		ID:             n.ID,
		Labels:         make([]string, len(n.Labels)),
		Properties:     make(map[string]any, len(n.Properties)),
		Status:         n.Status,
		AccessCount30d: n.AccessCount30d,
		ReferenceCount: n.ReferenceCount,
		CreatedAt:      n.CreatedAt,
		UpdatedAt:      n.UpdatedAt,
	}

	copy(copied.Labels, n.Labels)
	for k, v := range n.Properties {
		copied.Properties[k] = v
	}

	if n.Embedding != nil {
		copied.Embedding = make([]float32, len(n.Embedding))
		copy(copied.Embedding, n.Embedding)
	}

	return copied
}

// CopyEdge creates a deep copy of an edge.
func CopyEdge(e *Edge) *Edge {
	if e == nil {
		return nil
	}

	copied := &Edge{
		ID:            e.ID,
		StartNode:     e.StartNode,
		EndNode:       e.EndNode,
		Type:          e.Type,
		Strength:      e.Strength,
		AutoGenerated: e.AutoGenerated,
		CreatedAt:     e.CreatedAt,
	}

	if e.Properties != nil {
		copied.Properties = make(map[string]any, len(e.Properties))
		for k, v := range e.Properties {
			copied.Properties[k] = v
		}
	}

	return copied
}
