// Package naming implements the Naming Server's directory tree, health
// registry, request dispatcher, and storage-server router.
package naming

import (
	"strings"
	"sync"

	"github.com/netfsd/netfsd/protocol"
)

// NodeKind distinguishes a directory node from a file node.
type NodeKind uint8

const (
	KindDirectory NodeKind = iota
	KindFile
)

// FileMetadata is the record a registered file node carries, replaced
// atomically on every (re-)registration.
type FileMetadata struct {
	SSHost      string
	SSPort      uint16
	Size        uint64
	Permissions uint32
}

// Node is one entry in the directory tree. Each node owns its own
// reader/writer lock rather than sharing one lock across the whole
// tree, so lookups and inserts under different subtrees don't
// contend.
type Node struct {
	name     string
	kind     NodeKind
	meta     *FileMetadata
	parent   *Node // non-owning; never walked for ownership or free
	children map[string]*Node

	mu sync.RWMutex
}

// Tree is the root of the namespace. treeMu guards wholesale teardown
// only; ordinary traversal/mutation use per-node locks.
type Tree struct {
	root   *Node
	treeMu sync.RWMutex
}

// NewTree creates an empty tree with just a root directory.
func NewTree() *Tree {
	return &Tree{root: &Node{name: "", kind: KindDirectory, children: make(map[string]*Node)}}
}

func splitPath(path string) ([]string, error) {
	if path == "" {
		return nil, protocol.InvalidArgument
	}
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil, nil // root
	}
	parts := strings.Split(trimmed, "/")
	for _, p := range parts {
		if p == "" || strings.ContainsRune(p, 0) {
			return nil, protocol.InvalidArgument
		}
	}
	return parts, nil
}

// Lookup resolves path to its node. lookup("/") returns the root.
func (t *Tree) Lookup(path string) (*Node, error) {
	t.treeMu.RLock()
	defer t.treeMu.RUnlock()

	parts, err := splitPath(path)
	if err != nil {
		return nil, err
	}

	cur := t.root
	for _, name := range parts {
		cur.mu.RLock()
		next, ok := cur.children[name]
		cur.mu.RUnlock()
		if !ok {
			return nil, protocol.NotFound
		}
		cur = next
	}
	return cur, nil
}

// Create ensures path exists as a directory, creating any missing
// intermediate components along the way. Idempotent if path already
// names a directory.
func (t *Tree) Create(path string) error {
	t.treeMu.RLock()
	defer t.treeMu.RUnlock()

	parts, err := splitPath(path)
	if err != nil {
		return err
	}
	node, err := t.descendCreating(parts, nil)
	if err != nil {
		return err
	}
	node.mu.RLock()
	defer node.mu.RUnlock()
	if node.kind != KindDirectory {
		return protocol.InvalidArgument
	}
	return nil
}

// RegisterFile ensures path exists as a file node (creating intermediate
// directories as needed) and replaces its metadata atomically. The
// latest registration always wins, even if a different storage server
// is taking over the path.
func (t *Tree) RegisterFile(path string, meta FileMetadata) error {
	t.treeMu.RLock()
	defer t.treeMu.RUnlock()

	parts, err := splitPath(path)
	if err != nil || len(parts) == 0 {
		if err == nil {
			err = protocol.InvalidArgument // can't register the root as a file
		}
		return err
	}

	node, err := t.descendCreating(parts[:len(parts)-1], nil)
	if err != nil {
		return err
	}

	last := parts[len(parts)-1]
	node.mu.Lock()
	child, ok := node.children[last]
	if !ok {
		child = &Node{name: last, kind: KindFile, parent: node}
		node.children[last] = child
	}
	node.mu.Unlock()

	child.mu.Lock()
	child.kind = KindFile
	m := meta
	child.meta = &m
	child.mu.Unlock()
	return nil
}

// descendCreating walks parts from the root, creating missing
// intermediate directories. Each step acquires only the current node's
// write lock to find-or-create the next child, then releases it before
// descending.
func (t *Tree) descendCreating(parts []string, _ *FileMetadata) (*Node, error) {
	cur := t.root
	for _, name := range parts {
		cur.mu.Lock()
		if cur.kind == KindFile {
			cur.mu.Unlock()
			return nil, protocol.InvalidArgument
		}
		next, ok := cur.children[name]
		if !ok {
			next = &Node{name: name, kind: KindDirectory, parent: cur, children: make(map[string]*Node)}
			cur.children[name] = next
		}
		cur.mu.Unlock()
		cur = next
	}
	return cur, nil
}

// Delete removes path from the tree. Fails with InvalidArgument if the
// node has children; the caller must recurse.
func (t *Tree) Delete(path string) error {
	t.treeMu.RLock()
	defer t.treeMu.RUnlock()

	parts, err := splitPath(path)
	if err != nil {
		return err
	}
	if len(parts) == 0 {
		return protocol.InvalidArgument // can't delete root
	}

	parent := t.root
	for _, name := range parts[:len(parts)-1] {
		parent.mu.RLock()
		next, ok := parent.children[name]
		parent.mu.RUnlock()
		if !ok {
			return protocol.NotFound
		}
		parent = next
	}

	last := parts[len(parts)-1]
	parent.mu.Lock()
	defer parent.mu.Unlock()

	target, ok := parent.children[last]
	if !ok {
		return protocol.NotFound
	}

	target.mu.RLock()
	hasChildren := len(target.children) > 0
	target.mu.RUnlock()
	if hasChildren {
		return protocol.InvalidArgument
	}

	delete(parent.children, last)
	return nil
}

// GetMetadata returns a copy of path's file metadata.
func (t *Tree) GetMetadata(path string) (FileMetadata, error) {
	node, err := t.Lookup(path)
	if err != nil {
		return FileMetadata{}, err
	}

	node.mu.RLock()
	defer node.mu.RUnlock()
	if node.kind != KindFile || node.meta == nil {
		return FileMetadata{}, protocol.NotFound
	}
	return *node.meta, nil
}

// Kind reports whether node is a file or directory.
func (n *Node) Kind() NodeKind { return n.kind }

// Name returns the node's last path component.
func (n *Node) Name() string { return n.name }
