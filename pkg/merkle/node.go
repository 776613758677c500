// Package merkle stores chat transcripts as a content-addressed Merkle DAG.
// Every message is a node whose hash covers its content and its parent's hash,
// so identical histories collapse onto the same nodes and divergent replies
// branch from their shared prefix.
package merkle

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Node represents a single content-addressed node in a Merkle DAG
type Node struct {
	// Hash is the content-addressed identifier (SHA-256, hex-encoded)
	Hash string `json:"hash"`

	// ParentHash links to the previous node hash.
	// This will be nil for root nodes.
	ParentHash *string `json:"parent_hash"`

	// Content is the message the node records
	Content Bucket `json:"content"`
}

// NewNode creates a new node with the computed hash for the provided content
func NewNode(content Bucket, parent *Node) *Node {
	n := &Node{
		Content: content,
	}

	if parent != nil {
		hash := parent.Hash
		n.ParentHash = &hash
	}

	n.Hash = n.ComputeHash()
	return n
}

// ComputeHash calculates the content-addressed hash for a node from its
// content and parent. It does not read n.Hash.
func (n *Node) ComputeHash() string {
	i := &input{
		Content: n.Content,
	}

	if n.ParentHash != nil {
		i.Parent = *n.ParentHash
	}

	// Canonical JSON encoding for deterministic hashing
	data, err := json.Marshal(i)
	if err != nil {
		panic("failed to marshal hash input: " + err.Error())
	}

	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Verify reports whether n.Hash matches its content. Nodes received from
// outside (a push, a merged database) are checked before they are stored.
func (n *Node) Verify() bool {
	return n.Hash == n.ComputeHash()
}

type input struct {
	Content Bucket `json:"content"`
	Parent  string `json:"parent,omitempty"`
}
