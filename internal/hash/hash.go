// Package hash computes content digests for the object store.
//
// The digest algorithm is SHA-256, rendered as 64 lowercase hex characters.
// Readers are consumed in bounded chunks so the memory footprint does not
// grow with input size.
package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"io"

	"github.com/pkg/errors"
)

// chunkSize is the buffer size used to drain readers: large enough to
// amortize syscalls, small enough to keep memory use flat regardless of
// input size.
const chunkSize = 64 * 1024

// Digest is a 64-character lowercase hex SHA-256 digest.
type Digest string

// String implements fmt.Stringer.
func (d Digest) String() string { return string(d) }

// Of reads r to completion and returns the hex digest of its bytes.
func Of(r io.Reader) (Digest, error) {
	h := sha256.New()
	buf := make([]byte, chunkSize)
	if _, err := io.CopyBuffer(h, r, buf); err != nil {
		return "", errors.Wrap(err, "hash.Of: reading input")
	}
	return Digest(hex.EncodeToString(h.Sum(nil))), nil
}

// OfBytes is a convenience wrapper for in-memory byte slices.
func OfBytes(b []byte) Digest {
	sum := sha256.Sum256(b)
	return Digest(hex.EncodeToString(sum[:]))
}

// Valid reports whether s has the shape of a digest produced by this
// package: 64 lowercase hex characters.
func Valid(s string) bool {
	if len(s) != sha256.Size*2 {
		return false
	}
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		default:
			return false
		}
	}
	return true
}
