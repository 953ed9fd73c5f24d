// Package vfs implements the VirtualFileSystem orchestrator: it binds a
// user identity to a dirtree.Tree and coordinates that tree with an
// objectstore.Store and a ledger.Ledger for every user-facing operation,
// maintaining the inner (virtual path) / outer (host path) boundary.
package vfs

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"syscall"

	"github.com/nicolagi/dedupvfs/internal/config"
	"github.com/nicolagi/dedupvfs/internal/dirtree"
	"github.com/nicolagi/dedupvfs/internal/hash"
	"github.com/nicolagi/dedupvfs/internal/ledger"
	"github.com/nicolagi/dedupvfs/internal/objectstore"
	"github.com/nicolagi/dedupvfs/internal/vfserr"
	log "github.com/sirupsen/logrus"
)

// VirtualFileSystem orchestrates DirTree, ObjectStore and RefCountLedger
// for a single user's session against a single root.
//
// It is a scoped resource: Open acquires the DirTree document and the
// ledger; Close flushes both, in that order. After Close the instance must
// not be used. It is not safe for concurrent use - the whole system is
// explicitly single-writer per root (see DESIGN.md).
type VirtualFileSystem struct {
	cfg    *config.C
	userID string

	tree   *dirtree.Tree
	store  objectstore.Store
	ledger *ledger.Ledger
	lock   *os.File

	cwd   dirtree.Path
	dirty bool
}

// ErrRootLocked is returned by Open when another instance already holds the
// root: the ledger and object store do not tolerate concurrent writers.
const ErrRootLocked = baseErr("root already in use by another instance")

type baseErr string

func (e baseErr) Error() string { return string(e) }

// acquireRootLock takes an exclusive advisory lock on a sentinel file under
// the root. The lock is tied to the returned open file and released by the
// kernel if the process dies, so a crash never wedges the root.
func acquireRootLock(base string) (*os.File, error) {
	f, err := os.OpenFile(filepath.Join(base, "lock"), os.O_RDWR|os.O_CREATE, 0666)
	if err != nil {
		return nil, err
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = f.Close()
		if err == syscall.EWOULDBLOCK {
			return nil, ErrRootLocked
		}
		return nil, err
	}
	return f, nil
}

// Open initialises (creating on-disk layout as needed) and returns a
// VirtualFileSystem bound to userID under rootDir.
func Open(rootDir, userID string) (*VirtualFileSystem, error) {
	const method = "Open"
	cfg, err := config.Load(rootDir)
	if err != nil {
		return nil, errorf(method, "loading configuration: %v", err)
	}
	if err := cfg.EnsureLayout(userID); err != nil {
		return nil, errorf(method, "ensuring layout: %v", err)
	}

	lock, err := acquireRootLock(rootDir)
	if err != nil {
		return nil, errorf(method, "locking root %q: %w", rootDir, err)
	}

	store, err := newStore(cfg)
	if err != nil {
		_ = lock.Close()
		return nil, errorf(method, "opening object store: %v", err)
	}

	ldg, err := ledger.Open(cfg.LedgerPath())
	if err != nil {
		_ = lock.Close()
		return nil, errorf(method, "opening ledger: %v", err)
	}

	treePath := cfg.UserTreePath(userID)
	data, err := ioutil.ReadFile(treePath)
	if err != nil && !os.IsNotExist(err) {
		_ = ldg.Commit()
		_ = lock.Close()
		return nil, errorf(method, "reading tree document %q: %v", treePath, err)
	}
	tr, err := dirtree.Load(data)
	if err != nil {
		_ = ldg.Commit()
		_ = lock.Close()
		return nil, errorf(method, "loading tree document %q: %v", treePath, err)
	}

	return &VirtualFileSystem{
		cfg:    cfg,
		userID: userID,
		tree:   tr,
		store:  store,
		ledger: ldg,
		lock:   lock,
	}, nil
}

func newStore(cfg *config.C) (objectstore.Store, error) {
	switch cfg.Storage {
	case "disk", "":
		return objectstore.NewDiskStore(cfg.DiskStoreDir), nil
	case "s3":
		return objectstore.NewS3Store(objectstore.S3Config{
			Region:  cfg.S3Region,
			Bucket:  cfg.S3Bucket,
			Profile: cfg.S3Profile,
		})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage)
	}
}

func errorf(method, format string, a ...interface{}) error {
	return fmt.Errorf("github.com/nicolagi/dedupvfs/vfs."+method+": "+format, a...)
}

// Close flushes the DirTree document, then commits the ledger, in that
// order, and releases underlying resources. After Close the instance must
// not be used.
func (vfs *VirtualFileSystem) Close() error {
	const method = "Close"
	if err := vfs.flush(); err != nil {
		return errorf(method, "flushing tree: %v", err)
	}
	if err := vfs.ledger.Commit(); err != nil {
		return errorf(method, "committing ledger: %v", err)
	}
	if err := vfs.lock.Close(); err != nil {
		return errorf(method, "releasing root lock: %v", err)
	}
	return nil
}

func (vfs *VirtualFileSystem) flush() error {
	if !vfs.dirty {
		return nil
	}
	data, err := vfs.tree.Encode()
	if err != nil {
		return err
	}
	path := vfs.cfg.UserTreePath(vfs.userID)
	scratch := path + ".new"
	if err := ioutil.WriteFile(scratch, data, 0600); err != nil {
		return err
	}
	if err := os.Rename(scratch, path); err != nil {
		return err
	}
	vfs.dirty = false
	return nil
}

// resolveInner converts a textual inner path to its structured, root-
// relative form, resolving "" to the current directory.
func (vfs *VirtualFileSystem) resolveInner(textual string) (dirtree.Path, error) {
	if textual == "" {
		return vfs.cwd.Clone(), nil
	}
	p, err := dirtree.ParsePath(textual)
	if err != nil {
		return nil, err
	}
	if len(textual) > 0 && textual[0] != '/' {
		return append(vfs.cwd.Clone(), p...), nil
	}
	return p, nil
}

// checkNotCursor rejects operations whose target is the current directory
// or an ancestor of it: the DirTree layer has no notion of the cursor, so
// this check lives here.
func (vfs *VirtualFileSystem) checkNotCursor(p dirtree.Path) error {
	if p.Contains(vfs.cwd) {
		return vfserr.ErrInvalidCurrentDirOperation
	}
	return nil
}

func (vfs *VirtualFileSystem) markDirty() { vfs.dirty = true }

// GetCwd returns the textual form of the current directory.
func (vfs *VirtualFileSystem) GetCwd() string {
	return vfs.cwd.String()
}

// Exists reports whether the inner path resolves to a node.
func (vfs *VirtualFileSystem) Exists(inner string) (bool, error) {
	p, err := vfs.resolveInner(inner)
	if err != nil {
		return false, err
	}
	return vfs.tree.Exists(p), nil
}

// Chdir moves the cursor to the inner path, if it names a directory.
func (vfs *VirtualFileSystem) Chdir(inner string) error {
	p, err := vfs.resolveInner(inner)
	if err != nil {
		return err
	}
	isDir, err := vfs.tree.IsDir(p)
	if err != nil {
		return err
	}
	if !isDir {
		return vfserr.ErrPathIsNotDir
	}
	vfs.cwd = p
	return nil
}

// GetMetadata returns a copy of the metadata map at the inner path.
func (vfs *VirtualFileSystem) GetMetadata(inner string) (map[string]string, error) {
	p, err := vfs.resolveInner(inner)
	if err != nil {
		return nil, err
	}
	return vfs.tree.GetMetadata(p)
}

// SetMetadata replaces the metadata map at the inner path.
func (vfs *VirtualFileSystem) SetMetadata(inner string, m map[string]string) error {
	p, err := vfs.resolveInner(inner)
	if err != nil {
		return err
	}
	if err := vfs.tree.SetMetadata(p, m); err != nil {
		return err
	}
	vfs.markDirty()
	return nil
}

// List returns the ordered child names of the directory at the inner path.
func (vfs *VirtualFileSystem) List(inner string) ([]string, error) {
	p, err := vfs.resolveInner(inner)
	if err != nil {
		return nil, err
	}
	return vfs.tree.List(p)
}

// Mkdir creates a directory at the inner path. It fails with ErrPathExists
// if the path already exists.
func (vfs *VirtualFileSystem) Mkdir(inner string) error {
	p, err := vfs.resolveInner(inner)
	if err != nil {
		return err
	}
	if err := vfs.checkNotCursor(p); err != nil {
		return err
	}
	if vfs.tree.Exists(p) {
		return vfserr.ErrPathExists
	}
	if err := vfs.tree.Mkdir(p); err != nil {
		return err
	}
	vfs.markDirty()
	return nil
}

// Delete removes the subtree at the inner path, decrementing the ledger
// (and removing now-unreferenced blobs) for every file leaf.
func (vfs *VirtualFileSystem) Delete(inner string) error {
	const method = "Delete"
	p, err := vfs.resolveInner(inner)
	if err != nil {
		return err
	}
	if err := vfs.checkNotCursor(p); err != nil {
		return err
	}
	if !vfs.tree.Exists(p) {
		return vfserr.ErrPathNotExists
	}

	var leaves []hash.Digest
	if err := vfs.tree.WalkFiles(p, func(_ dirtree.Path, n *dirtree.Node) {
		if n.Digest() != "" {
			leaves = append(leaves, n.Digest())
		}
	}); err != nil {
		return errorf(method, "walking subtree: %v", err)
	}

	for _, d := range leaves {
		if err := vfs.releaseDigest(d); err != nil {
			log.WithFields(log.Fields{"digest": d, "err": err}).Warning("vfs: ledger/object store left in a degraded state during delete")
		}
	}

	if err := vfs.tree.Delete(p); err != nil {
		return errorf(method, "removing subtree from tree: %v", err)
	}
	vfs.markDirty()
	return nil
}

// releaseDigest decrements the ledger for d, removing the blob if the count
// reaches zero.
func (vfs *VirtualFileSystem) releaseDigest(d hash.Digest) error {
	deleted, err := vfs.ledger.Decrement(d)
	if err != nil {
		return err
	}
	if deleted {
		if err := vfs.store.Remove(d); err != nil {
			return err
		}
	}
	return nil
}

// Move relocates the subtree at src to dst, both inner paths.
func (vfs *VirtualFileSystem) Move(src, dst string) error {
	srcPath, err := vfs.resolveInner(src)
	if err != nil {
		return err
	}
	dstPath, err := vfs.resolveInner(dst)
	if err != nil {
		return err
	}
	if err := vfs.checkNotCursor(srcPath); err != nil {
		return err
	}
	if err := vfs.checkNotCursor(dstPath); err != nil {
		return err
	}
	if err := vfs.tree.Move(srcPath, dstPath); err != nil {
		return err
	}
	vfs.markDirty()
	return nil
}

// Copy deep-clones the subtree at src to dst, both inner paths, and
// increments the ledger once per file leaf in the clone. If the clone
// succeeds but a ledger increment fails partway through, the ledger is left
// inconsistent with the tree for the remaining leaves: a documented
// degraded state (see ERROR HANDLING DESIGN), logged at Warning.
func (vfs *VirtualFileSystem) Copy(src, dst string) error {
	const method = "Copy"
	srcPath, err := vfs.resolveInner(src)
	if err != nil {
		return err
	}
	dstPath, err := vfs.resolveInner(dst)
	if err != nil {
		return err
	}
	if err := vfs.checkNotCursor(srcPath); err != nil {
		return err
	}
	if err := vfs.checkNotCursor(dstPath); err != nil {
		return err
	}

	if err := vfs.tree.Copy(srcPath, dstPath); err != nil {
		return err
	}
	vfs.markDirty()

	var incrementErr error
	walkErr := vfs.tree.WalkFiles(dstPath, func(_ dirtree.Path, n *dirtree.Node) {
		if incrementErr != nil || n.Digest() == "" {
			return
		}
		if err := vfs.ledger.Increment(n.Digest()); err != nil {
			incrementErr = err
		}
	})
	if walkErr != nil {
		return errorf(method, "walking cloned subtree: %v", walkErr)
	}
	if incrementErr != nil {
		log.WithFields(log.Fields{"err": incrementErr}).Warning("vfs: ledger left inconsistent with tree after partial copy")
		return errorf(method, "incrementing ledger for cloned subtree: %v", incrementErr)
	}
	return nil
}
