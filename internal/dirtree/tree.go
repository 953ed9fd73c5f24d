// Package dirtree implements the per-user hierarchical directory tree: an
// in-memory node graph with path algebra, metadata, and recursive
// timestamp maintenance, persisted as a single JSON document.
//
// The tree has no notion of a "current directory": every operation takes a
// fully resolved structured Path, and resolution walks from the root every
// time. The cursor lives in the orchestrator (package vfs).
package dirtree

import (
	"fmt"
	"time"

	"github.com/nicolagi/dedupvfs/internal/hash"
	"github.com/nicolagi/dedupvfs/internal/vfserr"
)

// Tree is a single user's namespace: a root directory and everything under
// it.
type Tree struct {
	root *Node
}

// New returns a fresh, empty tree: just the root directory.
func New() *Tree {
	return &Tree{root: &Node{kind: KindDir, metadata: map[string]string{}}}
}

// Load parses a tree document. A zero-length document yields an empty tree
// (deliberate bootstrapping behaviour); a non-empty but unparsable document
// is an error.
func Load(data []byte) (*Tree, error) {
	if len(data) == 0 {
		return New(), nil
	}
	root, err := decode(data)
	if err != nil {
		return nil, errorf("Load", "parsing document: %v", err)
	}
	return &Tree{root: root}, nil
}

// Encode serialises the tree to its on-disk document form.
func (t *Tree) Encode() ([]byte, error) {
	return encode(t.root)
}

func errorf(method, format string, a ...interface{}) error {
	return fmt.Errorf("github.com/nicolagi/dedupvfs/internal/dirtree."+method+": "+format, a...)
}

// resolve walks from the root following p's components, returning the node
// at that path. It is the stateless replacement for the source's
// saved/restored cursor.
func (t *Tree) resolve(p Path) (*Node, error) {
	n := t.root
	for _, name := range p {
		if !n.IsDir() {
			return nil, vfserr.ErrPathIsNotDir
		}
		child := n.childByName(name)
		if child == nil {
			return nil, vfserr.ErrPathNotExists
		}
		n = child
	}
	return n, nil
}

// resolveDir is resolve plus a directory-kind check, for operations that
// require a directory (list, chdir target, mkdir/create_file parent).
func (t *Tree) resolveDir(p Path) (*Node, error) {
	n, err := t.resolve(p)
	if err != nil {
		return nil, err
	}
	if !n.IsDir() {
		return nil, vfserr.ErrPathIsNotDir
	}
	return n, nil
}

// Exists reports whether p resolves to a node.
func (t *Tree) Exists(p Path) bool {
	_, err := t.resolve(p)
	return err == nil
}

// IsDir reports whether p resolves to a directory. It fails if p does not
// resolve at all.
func (t *Tree) IsDir(p Path) (bool, error) {
	n, err := t.resolve(p)
	if err != nil {
		return false, err
	}
	return n.IsDir(), nil
}

// GetMetadata returns a deep copy of the metadata map at p.
func (t *Tree) GetMetadata(p Path) (map[string]string, error) {
	n, err := t.resolve(p)
	if err != nil {
		return nil, err
	}
	return n.Metadata(), nil
}

// SetMetadata replaces the metadata map at p with m, except that the two
// reserved keys are overlaid back: creation time is preserved unchanged,
// last-modified time is set to now. User-supplied values under the reserved
// keys are discarded, never merged.
func (t *Tree) SetMetadata(p Path, m map[string]string) error {
	n, err := t.resolve(p)
	if err != nil {
		return err
	}
	now := time.Now()
	created := n.metadata[CreatedKey]
	next := make(map[string]string, len(m)+2)
	for k, v := range m {
		if k == CreatedKey || k == ModifiedKey {
			continue
		}
		next[k] = v
	}
	next[CreatedKey] = created
	next[ModifiedKey] = formatTime(now)
	n.metadata = next
	n.touchAncestors(now)
	return nil
}

// List returns the ordered child names of the directory at p.
func (t *Tree) List(p Path) ([]string, error) {
	n, err := t.resolveDir(p)
	if err != nil {
		return nil, err
	}
	return n.ChildNames(), nil
}

// GetHash returns the content digest bound to the file at p. It fails with
// ErrFileIDNotFound if the file exists but has no digest bound.
func (t *Tree) GetHash(p Path) (hash.Digest, error) {
	n, err := t.resolve(p)
	if err != nil {
		return "", err
	}
	if n.IsDir() {
		return "", vfserr.ErrPathIsNotFile
	}
	if n.digest == "" {
		return "", vfserr.ErrFileIDNotFound
	}
	return n.digest, nil
}

// SetHash binds digest d to the file at p. No timestamp changes.
func (t *Tree) SetHash(p Path, d hash.Digest) error {
	n, err := t.resolve(p)
	if err != nil {
		return err
	}
	if n.IsDir() {
		return vfserr.ErrPathIsNotFile
	}
	n.digest = d
	return nil
}

func validateName(name string) error {
	if name == "" || name == "." || name == ".." {
		return vfserr.ErrInvalidNamingConvention
	}
	return nil
}

// Mkdir creates an empty directory at p. The parent of p must already
// exist and be a directory; an existing child of the same name is silently
// replaced.
func (t *Tree) Mkdir(p Path) error {
	return t.create(p, KindDir)
}

// CreateFile creates an empty, digest-unbound file at p. The parent of p
// must already exist and be a directory; an existing child of the same name
// is silently replaced.
func (t *Tree) CreateFile(p Path) error {
	return t.create(p, KindFile)
}

func (t *Tree) create(p Path, kind Kind) error {
	if p.IsRoot() {
		return vfserr.ErrInvalidOperation
	}
	name := p.Name()
	if err := validateName(name); err != nil {
		return err
	}
	parent, err := t.resolve(p.Parent())
	if err != nil {
		return vfserr.ErrDirOfPathNotExists
	}
	if !parent.IsDir() {
		return vfserr.ErrDirOfPathNotExists
	}
	now := time.Now()
	n := newNode(kind, name, parent, now)
	parent.removeChild(name) // creation overwrites an existing same-named child silently.
	parent.addChild(n)
	n.touchAncestors(now)
	return nil
}

// Move relocates the subtree at src to dst. See checkRelocation for the
// shared precondition checks with Copy.
func (t *Tree) Move(src, dst Path) error {
	if err := t.checkRelocation(src, dst); err != nil {
		return err
	}
	srcNode, err := t.resolve(src)
	if err != nil {
		return err
	}
	srcParent := srcNode.parent
	dstParent, err := t.resolveDir(dst.Parent())
	if err != nil {
		return vfserr.ErrDirOfPathNotExists
	}
	now := time.Now()
	srcParent.removeChild(srcNode.name)
	srcNode.name = dst.Name()
	dstParent.addChild(srcNode)
	srcNode.touchSubtree(now)
	srcParent.touch(now)
	srcParent.touchAncestors(now)
	dstParent.touch(now)
	dstParent.touchAncestors(now)
	return nil
}

// Copy deep-clones the subtree at src and attaches the clone at dst.
// Creation times in the clone are preserved from src; last-modified times
// throughout the clone are set to now. File digests are copied by value:
// the caller (vfs.VirtualFileSystem) is responsible for any reference-count
// bookkeeping this implies.
func (t *Tree) Copy(src, dst Path) error {
	if err := t.checkRelocation(src, dst); err != nil {
		return err
	}
	srcNode, err := t.resolve(src)
	if err != nil {
		return err
	}
	dstParent, err := t.resolveDir(dst.Parent())
	if err != nil {
		return vfserr.ErrDirOfPathNotExists
	}
	clone := srcNode.clone()
	clone.name = dst.Name()
	now := time.Now()
	dstParent.addChild(clone)
	clone.touchSubtree(now)
	dstParent.touch(now)
	dstParent.touchAncestors(now)
	return nil
}

// checkRelocation applies the shared move/copy preconditions: neither side
// may be the root; destination must not lie inside source (or equal it);
// destination's last component must be a valid name; source must exist;
// destination must not exist. Move and Copy then check that the destination
// parent exists and is a directory.
// Current-directory containment (reject if src/dst is or contains the
// cursor) is the orchestrator's responsibility, since the cursor is not
// tracked here.
func (t *Tree) checkRelocation(src, dst Path) error {
	if src.IsRoot() {
		return vfserr.ErrInvalidOperation
	}
	if dst.IsRoot() {
		return vfserr.ErrInvalidOperation
	}
	if src.Contains(dst) {
		return vfserr.ErrInvalidOperation
	}
	if err := validateName(dst.Name()); err != nil {
		return err
	}
	if !t.Exists(src) {
		return vfserr.ErrPathNotExists
	}
	if t.Exists(dst) {
		return vfserr.ErrPathExists
	}
	return nil
}

// Delete removes the subtree at p. Current-directory containment checks
// are the orchestrator's responsibility.
func (t *Tree) Delete(p Path) error {
	if p.IsRoot() {
		return vfserr.ErrInvalidOperation
	}
	n, err := t.resolve(p)
	if err != nil {
		return err
	}
	now := time.Now()
	n.parent.removeChild(n.name)
	n.parent.touch(now)
	n.parent.touchAncestors(now)
	return nil
}

// WalkFiles visits every file leaf reachable from p (p itself if p is a
// file), passing each leaf's path relative to p and the node itself. Used
// by the orchestrator to apply ledger effects across a subtree (delete,
// internal copy) and by the diff/compare operation.
func (t *Tree) WalkFiles(p Path, fn func(relative Path, n *Node)) error {
	n, err := t.resolve(p)
	if err != nil {
		return err
	}
	n.walkFiles(Path{}, fn)
	return nil
}

// Node exposes the resolved node at p for callers that need direct access
// (e.g., the orchestrator binding a digest right after CreateFile).
func (t *Tree) Node(p Path) (*Node, error) {
	return t.resolve(p)
}
