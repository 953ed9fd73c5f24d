package vfs

import (
	"sort"
	"strings"

	"github.com/nicolagi/dedupvfs/internal/dirtree"
	"github.com/nicolagi/dedupvfs/internal/hash"
)

// Compare recursively enumerates the two inner directories into
// relative-path -> digest maps and returns a patch: every path present in
// base but absent (or digest-differing) in patch, prefixed "-", in sorted
// order, followed by every path present in patch but absent (or
// digest-differing) in base, prefixed "+", in sorted order. The result is
// empty iff the two trees are digest-identical at every leaf.
func (vfs *VirtualFileSystem) Compare(baseDir, patchDir string) (string, error) {
	basePath, err := vfs.resolveInner(baseDir)
	if err != nil {
		return "", err
	}
	patchPath, err := vfs.resolveInner(patchDir)
	if err != nil {
		return "", err
	}

	baseEntries, err := vfs.digestsByRelativePath(basePath)
	if err != nil {
		return "", err
	}
	patchEntries, err := vfs.digestsByRelativePath(patchPath)
	if err != nil {
		return "", err
	}

	var removed, added []string
	for p, bd := range baseEntries {
		if pd, ok := patchEntries[p]; !ok || pd != bd {
			removed = append(removed, p)
		}
	}
	for p, pd := range patchEntries {
		if bd, ok := baseEntries[p]; !ok || bd != pd {
			added = append(added, p)
		}
	}
	sort.Strings(removed)
	sort.Strings(added)

	var b strings.Builder
	for _, p := range removed {
		b.WriteString("-")
		b.WriteString(p)
		b.WriteString("\n")
	}
	for _, p := range added {
		b.WriteString("+")
		b.WriteString(p)
		b.WriteString("\n")
	}
	return b.String(), nil
}

func (vfs *VirtualFileSystem) digestsByRelativePath(p dirtree.Path) (map[string]hash.Digest, error) {
	out := make(map[string]hash.Digest)
	err := vfs.tree.WalkFiles(p, func(rel dirtree.Path, n *dirtree.Node) {
		out[strings.Join(rel, "/")] = n.Digest()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
