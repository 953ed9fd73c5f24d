package objectstore

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/nicolagi/dedupvfs/internal/hash"
	"github.com/pkg/errors"
)

// DiskStore stores blobs as flat files directly under dir, one per digest:
// dir/<digest>. No sharding into subdirectories by digest prefix: a single
// user's blob set does not grow large enough to need it.
type DiskStore struct {
	dir string
}

var _ Store = (*DiskStore)(nil)

// NewDiskStore returns a Store rooted at dir. The caller is responsible for
// ensuring dir exists.
func NewDiskStore(dir string) *DiskStore {
	return &DiskStore{dir: dir}
}

func (s *DiskStore) path(d hash.Digest) string {
	return filepath.Join(s.dir, string(d))
}

func (s *DiskStore) Exists(d hash.Digest) (bool, error) {
	const method = "DiskStore.Exists"
	_, err := os.Stat(s.path(d))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, errorf(method, "stat %q: %v", d, err)
}

// Add writes src to a scratch file alongside the final path, then renames it
// into place; the rename is the commit point. If anything fails after the
// scratch file is created, it is removed so the store is left in its
// pre-call state.
func (s *DiskStore) Add(d hash.Digest, src io.Reader) error {
	const method = "DiskStore.Add"
	if exists, err := s.Exists(d); err != nil {
		return err
	} else if exists {
		return errorf(method, "%q: %w", d, ErrExists)
	}
	final := s.path(d)
	scratch := final + ".new"
	f, err := os.OpenFile(scratch, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0666)
	if err != nil {
		if !os.IsNotExist(err) {
			return errorf(method, "create scratch file for %q: %v", d, err)
		}
		if mkErr := os.MkdirAll(s.dir, 0777); mkErr != nil {
			return errorf(method, "create store directory: %v", mkErr)
		}
		f, err = os.OpenFile(scratch, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0666)
		if err != nil {
			return errorf(method, "create scratch file for %q: %v", d, err)
		}
	}
	if _, copyErr := io.Copy(f, src); copyErr != nil {
		_ = f.Close()
		_ = os.Remove(scratch)
		return errorf(method, "write scratch file for %q: %v", d, copyErr)
	}
	if closeErr := f.Close(); closeErr != nil {
		_ = os.Remove(scratch)
		return errorf(method, "close scratch file for %q: %v", d, closeErr)
	}
	if renameErr := syscall.Rename(scratch, final); renameErr != nil {
		_ = os.Remove(scratch)
		return errorf(method, "commit %q: %v", d, renameErr)
	}
	return nil
}

func (s *DiskStore) Remove(d hash.Digest) error {
	const method = "DiskStore.Remove"
	err := os.Remove(s.path(d))
	if err == nil {
		return nil
	}
	if os.IsNotExist(err) {
		return errorf(method, "%q: %w", d, ErrNotFound)
	}
	return errors.Wrapf(err, "%s: removing %q", method, d)
}

func (s *DiskStore) Open(d hash.Digest) (io.ReadCloser, error) {
	const method = "DiskStore.Open"
	f, err := os.Open(s.path(d))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errorf(method, "%q: %w", d, ErrNotFound)
		}
		return nil, errorf(method, "opening %q: %v", d, err)
	}
	return f, nil
}

// ForEach walks the store directory and calls cb for every blob in it.
// Entries whose names are not digest-shaped (a scratch file caught
// mid-write, a stray dotfile) are not blobs and are skipped.
func (s *DiskStore) ForEach(cb func(hash.Digest) error) error {
	var dd []hash.Digest
	err := filepath.Walk(s.dir, func(p string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			return nil
		}
		if name := filepath.Base(p); hash.Valid(name) {
			dd = append(dd, hash.Digest(name))
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, d := range dd {
		if err := cb(d); err != nil {
			return err
		}
	}
	return nil
}

// PathContains reports whether the absolute, cleaned form of externalPath
// is root itself or falls under it. VirtualFileSystem calls it with the
// system root to reject outer paths that are self-referential with respect
// to that root.
func PathContains(root, externalPath string) (bool, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return false, err
	}
	absExternal, err := filepath.Abs(externalPath)
	if err != nil {
		return false, err
	}
	rel, err := filepath.Rel(absRoot, absExternal)
	if err != nil {
		return false, err
	}
	if rel == "." {
		return true, nil
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)), nil
}
