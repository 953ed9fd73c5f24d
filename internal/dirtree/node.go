package dirtree

import (
	"time"

	"github.com/nicolagi/dedupvfs/internal/hash"
)

// Kind tags a Node as a directory or a file, replacing the 3-element
// heterogeneous-tuple representation of the original document format (which
// is still what gets written to disk; see codec.go).
type Kind uint8

const (
	KindDir Kind = iota
	KindFile
)

// Reserved metadata keys. CreatedKey carries the node's creation time,
// never mutated after the node is created; ModifiedKey carries the
// last-modified time, updated by the tree's maintenance rules. User
// metadata may not use either key directly; SetMetadata overlays these two
// back onto whatever map the caller supplies.
const (
	CreatedKey  = "0"
	ModifiedKey = "1"
)

// timeFormat is minute precision, no seconds, no timezone: a known
// limitation carried forward for document compatibility.
const timeFormat = "2006-01-02 15:04"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

// Node is a single entry in the tree: either a directory (with children) or
// a file (with an optional content digest). Exactly one of children/digest
// is meaningful, selected by kind.
type Node struct {
	kind     Kind
	name     string
	metadata map[string]string
	parent   *Node

	children []*Node // meaningful only when kind == KindDir
	digest   hash.Digest
}

func newNode(kind Kind, name string, parent *Node, now time.Time) *Node {
	return &Node{
		kind:   kind,
		name:   name,
		parent: parent,
		metadata: map[string]string{
			CreatedKey:  formatTime(now),
			ModifiedKey: formatTime(now),
		},
	}
}

// IsDir reports whether the node is a directory.
func (n *Node) IsDir() bool { return n.kind == KindDir }

// Name returns the node's own name (empty for the root).
func (n *Node) Name() string { return n.name }

// Metadata returns a deep copy of the node's metadata map.
func (n *Node) Metadata() map[string]string {
	out := make(map[string]string, len(n.metadata))
	for k, v := range n.metadata {
		out[k] = v
	}
	return out
}

// Digest returns the node's bound content digest, or "" if unbound. Only
// meaningful for files.
func (n *Node) Digest() hash.Digest { return n.digest }

// ChildNames returns the ordered names of a directory's children.
func (n *Node) ChildNames() []string {
	names := make([]string, len(n.children))
	for i, c := range n.children {
		names[i] = c.name
	}
	return names
}

func (n *Node) childByName(name string) *Node {
	for _, c := range n.children {
		if c.name == name {
			return c
		}
	}
	return nil
}

func (n *Node) addChild(c *Node) {
	c.parent = n
	n.children = append(n.children, c)
}

func (n *Node) removeChild(name string) bool {
	for i, c := range n.children {
		if c.name == name {
			n.children = append(n.children[:i], n.children[i+1:]...)
			return true
		}
	}
	return false
}

// touch sets the node's last-modified time to now.
func (n *Node) touch(now time.Time) {
	n.metadata[ModifiedKey] = formatTime(now)
}

// touchAncestors sets last-modified time to now on every ancestor of n (not
// n itself), keeping every directory's last-modified time at or after that
// of its children after a mutation at n.
func (n *Node) touchAncestors(now time.Time) {
	for p := n.parent; p != nil; p = p.parent {
		p.touch(now)
	}
}

// touchSubtree recursively sets last-modified time to now on n and every
// descendant, without altering creation time. Used when placing a cloned
// subtree at a copy/move destination.
func (n *Node) touchSubtree(now time.Time) {
	n.touch(now)
	for _, c := range n.children {
		c.touchSubtree(now)
	}
}

// clone returns a structurally independent deep copy of the subtree rooted
// at n, with no parent set (the caller attaches it). Metadata maps are
// copied; digests are copied by value (the value IS the reference, no
// ledger bookkeeping happens here - that's the orchestrator's job).
func (n *Node) clone() *Node {
	out := &Node{
		kind:     n.kind,
		name:     n.name,
		metadata: make(map[string]string, len(n.metadata)),
		digest:   n.digest,
	}
	for k, v := range n.metadata {
		out.metadata[k] = v
	}
	for _, c := range n.children {
		cc := c.clone()
		cc.parent = out
		out.children = append(out.children, cc)
	}
	return out
}

// walkFiles invokes fn for every file leaf in the subtree rooted at n
// (including n itself, if n is a file), passing the path of each leaf
// relative to n.
func (n *Node) walkFiles(prefix Path, fn func(p Path, file *Node)) {
	if !n.IsDir() {
		fn(prefix, n)
		return
	}
	for _, c := range n.children {
		c.walkFiles(prefix.Child(c.name), fn)
	}
}
