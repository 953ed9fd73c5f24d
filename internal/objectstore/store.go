// Package objectstore manages the content-addressed pool of blobs backing
// the virtual file system: one physical file per unique digest, named by
// that digest.
package objectstore

import (
	"fmt"
	"io"

	"github.com/nicolagi/dedupvfs/internal/hash"
)

type baseErr string

func (e baseErr) Error() string { return string(e) }

// ErrNotFound is returned when a digest has no corresponding blob.
const ErrNotFound = baseErr("blob not found")

// ErrExists is returned by Add when a blob for the digest is already
// present; Add never overwrites.
const ErrExists = baseErr("blob already exists")

// Store manages blobs named by content digest under a root directory (or
// equivalent addressable namespace, for non-filesystem backends).
type Store interface {
	// Exists reports whether a blob named by d is present.
	Exists(d hash.Digest) (bool, error)

	// Add atomically places the bytes read from src under the name d.
	// It fails with ErrExists if a blob with that name is already present.
	Add(d hash.Digest, src io.Reader) error

	// Remove deletes the blob named by d. A missing blob is surfaced as
	// ErrNotFound rather than treated as a no-op: the caller asked to
	// remove something the ledger believed still existed.
	Remove(d hash.Digest) error

	// Open returns a readable, closeable stream over the blob named by d.
	Open(d hash.Digest) (io.ReadCloser, error)

	// ForEach calls cb once per blob in the store, in no particular
	// order. Iteration stops at the first error from cb, which is
	// returned. Used by the audit scan to find orphans.
	ForEach(cb func(d hash.Digest) error) error
}

func errorf(method, format string, a ...interface{}) error {
	return fmt.Errorf("github.com/nicolagi/dedupvfs/internal/objectstore."+method+": "+format, a...)
}
