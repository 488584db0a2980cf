package storage

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// CreateEdge stores a new edge and its direction index entries. Both endpoint
// nodes must exist.
func (b *BadgerEngine) CreateEdge(edge *Edge) error {
	if edge == nil {
		return ErrInvalidData
	}
	if edge.ID == "" {
		return ErrInvalidID
	}
	if err := b.ensureOpen(); err != nil {
		return err
	}

	err := b.db.Update(func(txn *badger.Txn) error {
		key := edgeKey(edge.ID)

		if _, err := txn.Get(key); err == nil {
			return ErrAlreadyExists
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("checking edge existence: %w", err)
		}

		// Endpoints must exist
		if _, err := txn.Get(nodeKey(edge.StartNode)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("reading start node %s: %w", edge.StartNode, err)
		}
		if _, err := txn.Get(nodeKey(edge.EndNode)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("reading end node %s: %w", edge.EndNode, err)
		}

		data, err := encodeEdge(edge)
		if err != nil {
			return err
		}
		if err := txn.Set(key, data); err != nil {
			return fmt.Errorf("storing edge %s: %w", edge.ID, err)
		}

		if err := txn.Set(outgoingIndexKey(edge.StartNode, edge.ID), nil); err != nil {
			return fmt.Errorf("indexing outgoing edge: %w", err)
		}
		if err := txn.Set(incomingIndexKey(edge.EndNode, edge.ID), nil); err != nil {
			return fmt.Errorf("indexing incoming edge: %w", err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	b.edgeCount.Add(1)
	return nil
}

// GetEdge retrieves an edge by ID.
func (b *BadgerEngine) GetEdge(id EdgeID) (*Edge, error) {
	if id == "" {
		return nil, ErrInvalidID
	}
	if err := b.ensureOpen(); err != nil {
		return nil, err
	}

	var edge *Edge
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(edgeKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("reading edge %s: %w", id, err)
		}

		return item.Value(func(val []byte) error {
			edge, err = decodeEdge(val)
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	return edge, nil
}

// GetOutgoingEdges returns all edges starting from the given node.
func (b *BadgerEngine) GetOutgoingEdges(nodeID NodeID) ([]*Edge, error) {
	return b.edgesByIndex(prefixOutgoingIndex, nodeID)
}

// GetIncomingEdges returns all edges ending at the given node.
func (b *BadgerEngine) GetIncomingEdges(nodeID NodeID) ([]*Edge, error) {
	return b.edgesByIndex(prefixIncomingIndex, nodeID)
}

// edgesByIndex walks a direction index and resolves each entry to its edge.
func (b *BadgerEngine) edgesByIndex(indexPrefix byte, nodeID NodeID) ([]*Edge, error) {
	if nodeID == "" {
		return nil, ErrInvalidID
	}
	if err := b.ensureOpen(); err != nil {
		return nil, err
	}

	edges := []*Edge{}
	prefix := append(append([]byte{indexPrefix}, nodeID...), keySep)

	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			k := it.Item().KeyCopy(nil)
			edgeID := EdgeID(k[len(prefix):])

			item, err := txn.Get(edgeKey(edgeID))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue // stale index entry
			}
			if err != nil {
				return fmt.Errorf("reading edge %s: %w", edgeID, err)
			}

			if err := item.Value(func(val []byte) error {
				edge, err := decodeEdge(val)
				if err != nil {
					return err
				}
				edges = append(edges, edge)
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return edges, nil
}

// GetAllEdges returns every edge in the store.
func (b *BadgerEngine) GetAllEdges() ([]*Edge, error) {
	if err := b.ensureOpen(); err != nil {
		return nil, err
	}

	edges := []*Edge{}
	prefix := []byte{prefixEdge}

	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := it.Item().Value(func(val []byte) error {
				edge, err := decodeEdge(val)
				if err != nil {
					return err
				}
				edges = append(edges, edge)
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return edges, nil
}

// deleteEdgeInTxn removes an edge and its index entries within an existing
// transaction. Used by DeleteNode cascade.
func (b *BadgerEngine) deleteEdgeInTxn(txn *badger.Txn, id EdgeID) error {
	item, err := txn.Get(edgeKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("reading edge %s: %w", id, err)
	}

	var edge *Edge
	if err := item.Value(func(val []byte) error {
		edge, err = decodeEdge(val)
		return err
	}); err != nil {
		return err
	}

	if err := txn.Delete(outgoingIndexKey(edge.StartNode, id)); err != nil {
		return fmt.Errorf("removing outgoing index: %w", err)
	}
	if err := txn.Delete(incomingIndexKey(edge.EndNode, id)); err != nil {
		return fmt.Errorf("removing incoming index: %w", err)
	}
	if err := txn.Delete(edgeKey(id)); err != nil {
		return fmt.Errorf("deleting edge %s: %w", id, err)
	}

	return nil
}
