package merkle

import (
	"context"
	"errors"
)

// Storer defines the interface for persisting and retrieving nodes in a Merkle DAG from a storage backend.
// De-duplication happens automatically via content-addressing: identical content
// with identical parents produces identical hashes and is stored once.
type Storer interface {
	// Put stores a node and reports whether it was new. Storing a node that
	// already exists (by hash) is a no-op.
	Put(ctx context.Context, node *Node) (bool, error)

	// Get retrieves a node by its hash. Returns ErrNotFound if the node doesn't exist.
	Get(ctx context.Context, hash string) (*Node, error)

	// Has checks if a node exists by its hash.
	Has(ctx context.Context, hash string) (bool, error)

	// GetByParent retrieves all nodes that have the given parent hash.
	// Pass nil to get root nodes (nodes with no parent).
	GetByParent(ctx context.Context, parentHash *string) ([]*Node, error)

	// List returns all nodes in the store, in insertion order.
	List(ctx context.Context) ([]*Node, error)

	// Roots returns all root nodes (nodes with no parent).
	Roots(ctx context.Context) ([]*Node, error)

	// Leaves returns all leaf nodes (nodes with no children).
	Leaves(ctx context.Context) ([]*Node, error)

	// Ancestry returns the path from a node back to its root (node first, root last).
	Ancestry(ctx context.Context, hash string) ([]*Node, error)

	// Descendants returns the path from root to node (root first, node last).
	Descendants(ctx context.Context, hash string) ([]*Node, error)

	// Depth returns the depth of a node (0 for roots).
	Depth(ctx context.Context, hash string) (int, error)

	// Close closes the store and releases any resources.
	Close() error
}

// ErrNotFound is returned when a node doesn't exist in the store.
type ErrNotFound struct {
	Hash string
}

func (e ErrNotFound) Error() string {
	if e.Hash == "" {
		return "node not found"
	}

	return "node not found: " + e.Hash
}

// IsNotFound reports whether err is, or wraps, an ErrNotFound.
func IsNotFound(err error) bool {
	var nf ErrNotFound
	return errors.As(err, &nf)
}

var errNilNode = errors.New("cannot store nil node")

// getter is the part of a Storer the traversals need.
type getter interface {
	Get(ctx context.Context, hash string) (*Node, error)
}

// ancestry walks parent links from hash to the root.
func ancestry(ctx context.Context, s getter, hash string) ([]*Node, error) {
	var path []*Node
	seen := make(map[string]bool)

	for current := hash; ; {
		if seen[current] {
			return nil, errors.New("cycle detected at node " + current)
		}
		seen[current] = true

		node, err := s.Get(ctx, current)
		if err != nil {
			return nil, err
		}
		path = append(path, node)

		if node.ParentHash == nil {
			return path, nil
		}
		current = *node.ParentHash
	}
}

// descendants is ancestry in root-first order.
func descendants(ctx context.Context, s getter, hash string) ([]*Node, error) {
	path, err := ancestry(ctx, s, hash)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, nil
}

func depth(ctx context.Context, s getter, hash string) (int, error) {
	path, err := ancestry(ctx, s, hash)
	if err != nil {
		return 0, err
	}
	return len(path) - 1, nil
}
