package vfs

import (
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/nicolagi/dedupvfs/internal/dirtree"
	"github.com/nicolagi/dedupvfs/internal/hash"
	"github.com/nicolagi/dedupvfs/internal/objectstore"
	"github.com/nicolagi/dedupvfs/internal/vfserr"
)

// CopyFromOutside imports a host file or directory at outer into the
// virtual namespace at inner. For a file, bytes are hashed; if the digest
// is already known to the ledger, the ledger is incremented, otherwise the
// bytes are staged into the object store and a fresh ledger entry is
// created. For a directory, the walk recurses and imports regular files
// only - symlinks, devices and anything else non-regular are skipped.
//
// Preconditions: outer must not be inside this root's own directory (no
// self-referential imports); inner must not already exist; inner's parent
// must exist.
func (vfs *VirtualFileSystem) CopyFromOutside(outer, inner string) error {
	return vfs.copyFromOutside(outer, inner, nil)
}

// CopyDirFromOutsideEx is the extension-filtered directory import: only
// regular files whose lowercased suffix (after the last '.') is in
// extensions are imported. The literal empty string in extensions matches
// files with no '.' in their basename.
func (vfs *VirtualFileSystem) CopyDirFromOutsideEx(outer, inner string, extensions []string) error {
	return vfs.copyFromOutside(outer, inner, extensionFilter(extensions))
}

// MoveFromOutside imports outer into inner, then removes outer.
func (vfs *VirtualFileSystem) MoveFromOutside(outer, inner string) error {
	if err := vfs.CopyFromOutside(outer, inner); err != nil {
		return err
	}
	return os.RemoveAll(outer)
}

func extensionFilter(extensions []string) func(name string) bool {
	allowed := make(map[string]bool, len(extensions))
	for _, e := range extensions {
		allowed[strings.ToLower(e)] = true
	}
	return func(name string) bool {
		i := strings.LastIndex(name, ".")
		if i == -1 {
			return allowed[""]
		}
		return allowed[strings.ToLower(name[i+1:])]
	}
}

func (vfs *VirtualFileSystem) copyFromOutside(outer, inner string, filter func(name string) bool) error {
	const method = "CopyFromOutside"
	contains, err := objectstore.PathContains(vfs.cfg.BaseDirectoryPath(), outer)
	if err != nil {
		return errorf(method, "checking outer path containment: %v", err)
	}
	if contains {
		return vfserr.ErrInvalidOperation
	}

	innerPath, err := vfs.resolveInner(inner)
	if err != nil {
		return err
	}
	if vfs.tree.Exists(innerPath) {
		return vfserr.ErrPathExists
	}
	if !innerPath.IsRoot() {
		parent, err := vfs.tree.IsDir(innerPath.Parent())
		if err != nil {
			return vfserr.ErrDirOfPathNotExists
		}
		if !parent {
			return vfserr.ErrDirOfPathNotExists
		}
	}

	fi, err := os.Stat(outer)
	if err != nil {
		return errorf(method, "stat %q: %v", outer, err)
	}

	if fi.IsDir() {
		if err := vfs.tree.Mkdir(innerPath); err != nil {
			return errorf(method, "creating directory node %q: %v", innerPath, err)
		}
		vfs.markDirty()
		entries, err := ioutil.ReadDir(outer)
		if err != nil {
			return errorf(method, "reading directory %q: %v", outer, err)
		}
		for _, e := range entries {
			childOuter := filepath.Join(outer, e.Name())
			childInner := innerPath.Child(e.Name())
			mode := e.Mode()
			if mode.IsDir() {
				if err := vfs.copyFromOutside(childOuter, childInner.String(), filter); err != nil {
					return err
				}
				continue
			}
			if !mode.IsRegular() {
				continue // symlinks, devices, etc. are skipped.
			}
			if filter != nil && !filter(e.Name()) {
				continue
			}
			if err := vfs.importFile(childOuter, childInner); err != nil {
				return err
			}
		}
		return nil
	}

	if !fi.Mode().IsRegular() {
		return errorf(method, "%q: not a regular file", outer)
	}
	if filter != nil && !filter(fi.Name()) {
		return nil
	}
	return vfs.importFile(outer, innerPath)
}

// importFile stages a new digest's blob then creates its ledger row then
// the file node, compensating backwards on failure; a known digest just
// increments the ledger, then creates and binds the node.
func (vfs *VirtualFileSystem) importFile(outer string, inner dirtree.Path) error {
	const method = "importFile"
	f, err := os.Open(outer)
	if err != nil {
		return errorf(method, "opening %q: %v", outer, err)
	}
	defer func() { _ = f.Close() }()

	d, err := hash.Of(f)
	if err != nil {
		return errorf(method, "hashing %q: %v", outer, err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return errorf(method, "rewinding %q: %v", outer, err)
	}

	_, err = vfs.ledger.Get(d)
	isNew := err != nil

	if isNew {
		if err := vfs.store.Add(d, f); err != nil {
			return errorf(method, "staging blob %q: %v", d, err)
		}
		if err := vfs.ledger.Create(d); err != nil {
			if rmErr := vfs.store.Remove(d); rmErr != nil {
				return errorf(method, "creating ledger row for %q: %v (compensation also failed: %v)", d, err, rmErr)
			}
			return errorf(method, "creating ledger row for %q: %v", d, err)
		}
	} else {
		if err := vfs.ledger.Increment(d); err != nil {
			return errorf(method, "incrementing ledger for %q: %v", d, err)
		}
	}

	if err := vfs.tree.CreateFile(inner); err != nil {
		if decErr := vfs.releaseDigest(d); decErr != nil {
			return errorf(method, "creating file node: %v (compensation also failed: %v)", err, decErr)
		}
		return errorf(method, "creating file node: %v", err)
	}
	if err := vfs.tree.SetHash(inner, d); err != nil {
		return errorf(method, "binding digest: %v", err)
	}
	vfs.markDirty()
	return nil
}

// CopyToOutside exports the file or directory at inner to the host path
// outer.
func (vfs *VirtualFileSystem) CopyToOutside(inner, outer string) error {
	return vfs.copyToOutside(inner, outer, nil)
}

// CopyDirToOutsideEx is the extension-filtered directory export.
func (vfs *VirtualFileSystem) CopyDirToOutsideEx(inner, outer string, extensions []string) error {
	return vfs.copyToOutside(inner, outer, extensionFilter(extensions))
}

func (vfs *VirtualFileSystem) copyToOutside(inner, outer string, filter func(name string) bool) error {
	const method = "CopyToOutside"
	innerPath, err := vfs.resolveInner(inner)
	if err != nil {
		return err
	}
	isDir, err := vfs.tree.IsDir(innerPath)
	if err != nil {
		return err
	}
	if isDir {
		names, err := vfs.tree.List(innerPath)
		if err != nil {
			return errorf(method, "listing %q: %v", innerPath, err)
		}
		if err := os.MkdirAll(outer, 0777); err != nil {
			return errorf(method, "creating %q: %v", outer, err)
		}
		for _, name := range names {
			childInner := innerPath.Child(name)
			childOuter := filepath.Join(outer, name)
			childIsDir, err := vfs.tree.IsDir(childInner)
			if err != nil {
				return err
			}
			if childIsDir {
				if err := vfs.copyToOutside(childInner.String(), childOuter, filter); err != nil {
					return err
				}
				continue
			}
			if filter != nil && !filter(name) {
				continue
			}
			if err := vfs.exportFile(childInner, childOuter); err != nil {
				return err
			}
		}
		return nil
	}
	if filter != nil && !filter(innerPath.Name()) {
		return nil
	}
	return vfs.exportFile(innerPath, outer)
}

func (vfs *VirtualFileSystem) exportFile(inner dirtree.Path, outer string) error {
	const method = "exportFile"
	d, err := vfs.tree.GetHash(inner)
	if err != nil {
		return err
	}
	rc, err := vfs.store.Open(d)
	if err != nil {
		return errorf(method, "opening blob %q: %v", d, err)
	}
	defer func() { _ = rc.Close() }()

	if err := os.MkdirAll(filepath.Dir(outer), 0777); err != nil {
		return errorf(method, "creating parent directory for %q: %v", outer, err)
	}
	w, err := os.OpenFile(outer, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0666)
	if err != nil {
		return errorf(method, "creating %q: %v", outer, err)
	}
	defer func() { _ = w.Close() }()
	if _, err := io.Copy(w, rc); err != nil {
		return errorf(method, "writing %q: %v", outer, err)
	}
	return nil
}

// The Simple* wrappers below take a destination directory plus an optional
// destination name, rather than a full destination path: when dstName is
// empty, it is derived from the source's own base name. This is the
// convenience a caller reaches for when dropping something into a directory
// under its own name, without having to splice the name onto the directory
// path themselves.

// joinInner appends name as a new final component of the inner directory
// path dir, textually. An empty dir denotes the root here (not the cursor,
// as "" does elsewhere in this package); a dir without a leading "/" is
// relative to the cursor, as any other inner path is.
func joinInner(dir, name string) string {
	if dir == "" {
		return "/" + name
	}
	if strings.HasSuffix(dir, "/") {
		return dir + name
	}
	return dir + "/" + name
}

// SimpleCopyFromOutside imports outer into the directory innerDir, naming
// the new entry dstName, or the base name of outer if dstName is empty.
func (vfs *VirtualFileSystem) SimpleCopyFromOutside(outer, innerDir, dstName string) error {
	if dstName == "" {
		dstName = filepath.Base(outer)
	}
	return vfs.CopyFromOutside(outer, joinInner(innerDir, dstName))
}

// SimpleMoveFromOutside imports outer into the directory innerDir under
// dstName (or outer's base name if dstName is empty), then removes outer.
func (vfs *VirtualFileSystem) SimpleMoveFromOutside(outer, innerDir, dstName string) error {
	if dstName == "" {
		dstName = filepath.Base(outer)
	}
	return vfs.MoveFromOutside(outer, joinInner(innerDir, dstName))
}

// SimpleCopyToOutside exports the file or directory at inner into the host
// directory outerDir, naming the result dstName, or inner's own base name if
// dstName is empty.
func (vfs *VirtualFileSystem) SimpleCopyToOutside(inner, outerDir, dstName string) error {
	if dstName == "" {
		innerPath, err := vfs.resolveInner(inner)
		if err != nil {
			return err
		}
		dstName = innerPath.Name()
	}
	return vfs.CopyToOutside(inner, filepath.Join(outerDir, dstName))
}

// SimpleMove relocates src into the directory dstDir, naming it dstName, or
// src's own base name if dstName is empty.
func (vfs *VirtualFileSystem) SimpleMove(src, dstDir, dstName string) error {
	if dstName == "" {
		srcPath, err := vfs.resolveInner(src)
		if err != nil {
			return err
		}
		dstName = srcPath.Name()
	}
	return vfs.Move(src, joinInner(dstDir, dstName))
}

// SimpleCopy deep-clones src into the directory dstDir, naming the clone
// dstName, or src's own base name if dstName is empty.
func (vfs *VirtualFileSystem) SimpleCopy(src, dstDir, dstName string) error {
	if dstName == "" {
		srcPath, err := vfs.resolveInner(src)
		if err != nil {
			return err
		}
		dstName = srcPath.Name()
	}
	return vfs.Copy(src, joinInner(dstDir, dstName))
}
