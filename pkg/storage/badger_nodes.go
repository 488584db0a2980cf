package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// CreateNode stores a new node and its label index entries in one transaction.
func (b *BadgerEngine) CreateNode(node *Node) error {
	if node == nil {
		return ErrInvalidData
	}
	if node.ID == "" {
		return ErrInvalidID
	}
	if err := b.ensureOpen(); err != nil {
		return err
	}

	err := b.db.Update(func(txn *badger.Txn) error {
		key := nodeKey(node.ID)

		if _, err := txn.Get(key); err == nil {
			return ErrAlreadyExists
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("checking node existence: %w", err)
		}

		data, err := encodeNode(node)
		if err != nil {
			return err
		}
		if err := txn.Set(key, data); err != nil {
			return fmt.Errorf("storing node %s: %w", node.ID, err)
		}

		for _, label := range node.Labels {
			if err := txn.Set(labelIndexKey(label, node.ID), nil); err != nil {
				return fmt.Errorf("indexing label %s: %w", label, err)
			}
		}

		return nil
	})
	if err != nil {
		return err
	}

	b.nodeCount.Add(1)
	return nil
}

// GetNode retrieves a node by ID.
func (b *BadgerEngine) GetNode(id NodeID) (*Node, error) {
	if id == "" {
		return nil, ErrInvalidID
	}
	if err := b.ensureOpen(); err != nil {
		return nil, err
	}

	var node *Node
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(nodeKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("reading node %s: %w", id, err)
		}

		return item.Value(func(val []byte) error {
			node, err = decodeNode(val)
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	return node, nil
}

// UpdateNode replaces an existing node and refreshes its label index.
func (b *BadgerEngine) UpdateNode(node *Node) error {
	if node == nil {
		return ErrInvalidData
	}
	if node.ID == "" {
		return ErrInvalidID
	}
	if err := b.ensureOpen(); err != nil {
		return err
	}

	return b.db.Update(func(txn *badger.Txn) error {
		key := nodeKey(node.ID)

		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("reading node %s: %w", node.ID, err)
		}

		// Drop old label index entries before writing the new set
		var existing *Node
		if err := item.Value(func(val []byte) error {
			existing, err = decodeNode(val)
			return err
		}); err != nil {
			return err
		}
		for _, label := range existing.Labels {
			if err := txn.Delete(labelIndexKey(label, node.ID)); err != nil {
				return fmt.Errorf("removing label index %s: %w", label, err)
			}
		}

		node.UpdatedAt = time.Now()
		data, err := encodeNode(node)
		if err != nil {
			return err
		}
		if err := txn.Set(key, data); err != nil {
			return fmt.Errorf("storing node %s: %w", node.ID, err)
		}

		for _, label := range node.Labels {
			if err := txn.Set(labelIndexKey(label, node.ID), nil); err != nil {
				return fmt.Errorf("indexing label %s: %w", label, err)
			}
		}

		return nil
	})
}

// DeleteNode removes a node, its label index entries, and all connected edges.
func (b *BadgerEngine) DeleteNode(id NodeID) error {
	if id == "" {
		return ErrInvalidID
	}
	if err := b.ensureOpen(); err != nil {
		return err
	}

	var removedEdges int64

	err := b.db.Update(func(txn *badger.Txn) error {
		key := nodeKey(id)

		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("reading node %s: %w", id, err)
		}

		var node *Node
		if err := item.Value(func(val []byte) error {
			node, err = decodeNode(val)
			return err
		}); err != nil {
			return err
		}

		for _, label := range node.Labels {
			if err := txn.Delete(labelIndexKey(label, id)); err != nil {
				return fmt.Errorf("removing label index %s: %w", label, err)
			}
		}

		// Collect connected edge IDs from both direction indexes
		edgeIDs := make(map[EdgeID]struct{})
		for _, prefix := range [][]byte{
			append(append([]byte{prefixOutgoingIndex}, id...), keySep),
			append(append([]byte{prefixIncomingIndex}, id...), keySep),
		} {
			opts := badger.DefaultIteratorOptions
			opts.PrefetchValues = false
			opts.Prefix = prefix
			it := txn.NewIterator(opts)
			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				k := it.Item().KeyCopy(nil)
				edgeIDs[EdgeID(k[len(prefix):])] = struct{}{}
			}
			it.Close()
		}

		for edgeID := range edgeIDs {
			if err := b.deleteEdgeInTxn(txn, edgeID); err != nil && !errors.Is(err, ErrNotFound) {
				return err
			}
			removedEdges++
		}

		if err := txn.Delete(key); err != nil {
			return fmt.Errorf("deleting node %s: %w", id, err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	b.nodeCount.Add(-1)
	b.edgeCount.Add(-removedEdges)
	return nil
}

// GetNodesByLabel returns all nodes carrying the given label, via the label
// index (no full scan).
func (b *BadgerEngine) GetNodesByLabel(label string) ([]*Node, error) {
	if err := b.ensureOpen(); err != nil {
		return nil, err
	}

	nodes := []*Node{}
	prefix := append(append([]byte{prefixLabelIndex}, label...), keySep)

	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			k := it.Item().KeyCopy(nil)
			nodeID := NodeID(k[len(prefix):])

			item, err := txn.Get(nodeKey(nodeID))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue // stale index entry
			}
			if err != nil {
				return fmt.Errorf("reading node %s: %w", nodeID, err)
			}

			if err := item.Value(func(val []byte) error {
				node, err := decodeNode(val)
				if err != nil {
					return err
				}
				nodes = append(nodes, node)
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

	return nodes, nil
}

// GetAllNodes returns every node in the store.
func (b *BadgerEngine) GetAllNodes() ([]*Node, error) {
	if err := b.ensureOpen(); err != nil {
		return nil, err
	}

	nodes := []*Node{}
	prefix := []byte{prefixNode}

	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := it.Item().Value(func(val []byte) error {
				node, err := decodeNode(val)
				if err != nil {
					return err
				}
				nodes = append(nodes, node)
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

	return nodes, nil
}
