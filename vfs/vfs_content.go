package vfs

import (
	"io"
	"io/ioutil"

	"github.com/nicolagi/dedupvfs/internal/hash"
	"github.com/nicolagi/dedupvfs/internal/vfserr"
)

// Read returns up to size bytes of the file at the inner path, starting at
// start. If size is negative, the file is read to the end.
func (vfs *VirtualFileSystem) Read(inner string, start, size int64) ([]byte, error) {
	const method = "Read"
	p, err := vfs.resolveInner(inner)
	if err != nil {
		return nil, err
	}
	d, err := vfs.tree.GetHash(p)
	if err != nil {
		return nil, err
	}
	rc, err := vfs.store.Open(d)
	if err != nil {
		return nil, errorf(method, "opening blob %q: %v", d, err)
	}
	defer func() { _ = rc.Close() }()

	if start > 0 {
		if seeker, ok := rc.(io.Seeker); ok {
			if _, err := seeker.Seek(start, io.SeekStart); err != nil {
				return nil, errorf(method, "seeking blob %q: %v", d, err)
			}
		} else {
			if _, err := io.CopyN(ioutil.Discard, rc, start); err != nil {
				return nil, errorf(method, "skipping to offset in blob %q: %v", d, err)
			}
		}
	}
	if size < 0 {
		return ioutil.ReadAll(rc)
	}
	buf := make([]byte, size)
	n, err := io.ReadFull(rc, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, errorf(method, "reading blob %q: %v", d, err)
	}
	return buf[:n], nil
}

// ExistsByDigest reports whether the object store has a blob named d.
func (vfs *VirtualFileSystem) ExistsByDigest(d hash.Digest) (bool, error) {
	return vfs.store.Exists(d)
}

// AddByDigest creates a file node at the inner path bound to an
// already-present digest, incrementing the ledger. It fails with
// ErrInvalidOperation if d is absent from the object store - binding a file
// to a nonexistent blob is a caller error, not the GetHash "bound to nothing"
// case that ErrFileIDNotFound denotes - and with ErrPathExists if the inner
// path already exists.
func (vfs *VirtualFileSystem) AddByDigest(inner string, d hash.Digest) error {
	const method = "AddByDigest"
	p, err := vfs.resolveInner(inner)
	if err != nil {
		return err
	}
	if err := vfs.checkNotCursor(p); err != nil {
		return err
	}
	exists, err := vfs.store.Exists(d)
	if err != nil {
		return errorf(method, "checking object store: %v", err)
	}
	if !exists {
		return vfserr.ErrInvalidOperation
	}
	if vfs.tree.Exists(p) {
		return vfserr.ErrPathExists
	}

	if err := vfs.ledger.Increment(d); err != nil {
		return errorf(method, "incrementing ledger for %q: %v", d, err)
	}
	if err := vfs.tree.CreateFile(p); err != nil {
		if _, decErr := vfs.ledger.Decrement(d); decErr != nil {
			return errorf(method, "creating file node: %v (compensation also failed: %v)", err, decErr)
		}
		return errorf(method, "creating file node: %v", err)
	}
	if err := vfs.tree.SetHash(p, d); err != nil {
		return errorf(method, "binding digest: %v", err)
	}
	vfs.markDirty()
	return nil
}
