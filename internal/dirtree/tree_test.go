package dirtree

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/nicolagi/dedupvfs/internal/hash"
	"github.com/nicolagi/dedupvfs/internal/vfserr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustPath(t *testing.T, s string) Path {
	t.Helper()
	p, err := ParsePath(s)
	require.NoError(t, err)
	return p
}

func TestLoadEmptyDocumentBootstraps(t *testing.T) {
	tr, err := Load(nil)
	require.NoError(t, err)
	assert.True(t, tr.Exists(Path{}))
	names, err := tr.List(Path{})
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestLoadMalformedNonEmptyDocumentErrors(t *testing.T) {
	_, err := Load([]byte("not json"))
	assert.Error(t, err)
}

func TestMkdirAndList(t *testing.T) {
	tr := New()
	require.NoError(t, tr.Mkdir(mustPath(t, "/a")))
	names, err := tr.List(Path{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, names)
}

func TestMkdirMissingParent(t *testing.T) {
	tr := New()
	err := tr.Mkdir(mustPath(t, "/a/b"))
	assert.ErrorIs(t, err, vfserr.ErrDirOfPathNotExists)
}

func TestCreateFileAndSetGetHash(t *testing.T) {
	tr := New()
	p := mustPath(t, "/a.txt")
	require.NoError(t, tr.CreateFile(p))

	_, err := tr.GetHash(p)
	assert.ErrorIs(t, err, vfserr.ErrFileIDNotFound)

	require.NoError(t, tr.SetHash(p, hash.Digest("h1")))
	d, err := tr.GetHash(p)
	require.NoError(t, err)
	assert.Equal(t, hash.Digest("h1"), d)
}

func TestTimestampPropagationToAncestors(t *testing.T) {
	tr := New()
	require.NoError(t, tr.Mkdir(mustPath(t, "/a")))
	rootBefore, err := tr.GetMetadata(Path{})
	require.NoError(t, err)

	require.NoError(t, tr.CreateFile(mustPath(t, "/a/f.txt")))

	rootAfter, err := tr.GetMetadata(Path{})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, rootAfter[ModifiedKey], rootBefore[ModifiedKey])
}

func TestSetMetadataPreservesCreatedOverlaysModified(t *testing.T) {
	tr := New()
	p := mustPath(t, "/a")
	require.NoError(t, tr.Mkdir(p))
	before, err := tr.GetMetadata(p)
	require.NoError(t, err)

	err = tr.SetMetadata(p, map[string]string{"color": "blue", CreatedKey: "bogus", ModifiedKey: "bogus"})
	require.NoError(t, err)

	after, err := tr.GetMetadata(p)
	require.NoError(t, err)
	assert.Equal(t, before[CreatedKey], after[CreatedKey])
	assert.Equal(t, "blue", after["color"])
	assert.NotEqual(t, "bogus", after[ModifiedKey])
}

func TestCopyDestinationInsideSourceFails(t *testing.T) {
	tr := New()
	require.NoError(t, tr.Mkdir(mustPath(t, "/d")))
	err := tr.Copy(mustPath(t, "/d"), mustPath(t, "/d/e"))
	assert.ErrorIs(t, err, vfserr.ErrInvalidOperation)

	names, err := tr.List(Path{})
	require.NoError(t, err)
	assert.Equal(t, []string{"d"}, names)
}

func TestCopyPreservesCreatedTimeSetsModified(t *testing.T) {
	tr := New()
	src := mustPath(t, "/a.txt")
	require.NoError(t, tr.CreateFile(src))
	require.NoError(t, tr.SetHash(src, hash.Digest("h1")))
	srcMeta, err := tr.GetMetadata(src)
	require.NoError(t, err)

	dst := mustPath(t, "/b.txt")
	require.NoError(t, tr.Copy(src, dst))

	dstMeta, err := tr.GetMetadata(dst)
	require.NoError(t, err)
	assert.Equal(t, srcMeta[CreatedKey], dstMeta[CreatedKey])
	assert.GreaterOrEqual(t, dstMeta[ModifiedKey], srcMeta[ModifiedKey])

	d, err := tr.GetHash(dst)
	require.NoError(t, err)
	assert.Equal(t, hash.Digest("h1"), d)
}

func TestMoveRelocatesSubtree(t *testing.T) {
	tr := New()
	require.NoError(t, tr.Mkdir(mustPath(t, "/a")))
	require.NoError(t, tr.CreateFile(mustPath(t, "/a/f.txt")))
	require.NoError(t, tr.Move(mustPath(t, "/a"), mustPath(t, "/b")))

	assert.False(t, tr.Exists(mustPath(t, "/a")))
	assert.True(t, tr.Exists(mustPath(t, "/b/f.txt")))
}

func TestDeleteRemovesSubtree(t *testing.T) {
	tr := New()
	require.NoError(t, tr.Mkdir(mustPath(t, "/a")))
	require.NoError(t, tr.CreateFile(mustPath(t, "/a/f.txt")))
	require.NoError(t, tr.Delete(mustPath(t, "/a")))
	assert.False(t, tr.Exists(mustPath(t, "/a")))
}

func TestWalkFilesVisitsAllLeaves(t *testing.T) {
	tr := New()
	require.NoError(t, tr.Mkdir(mustPath(t, "/a")))
	require.NoError(t, tr.CreateFile(mustPath(t, "/a/x.txt")))
	require.NoError(t, tr.Mkdir(mustPath(t, "/a/s")))
	require.NoError(t, tr.CreateFile(mustPath(t, "/a/s/y.txt")))

	var seen []string
	err := tr.WalkFiles(mustPath(t, "/a"), func(rel Path, n *Node) {
		seen = append(seen, rel.String())
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"/x.txt", "/s/y.txt"}, seen)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tr := New()
	require.NoError(t, tr.Mkdir(mustPath(t, "/a")))
	require.NoError(t, tr.CreateFile(mustPath(t, "/a/f.txt")))
	require.NoError(t, tr.SetHash(mustPath(t, "/a/f.txt"), hash.Digest("h1")))

	data, err := tr.Encode()
	require.NoError(t, err)

	tr2, err := Load(data)
	require.NoError(t, err)
	d, err := tr2.GetHash(mustPath(t, "/a/f.txt"))
	require.NoError(t, err)
	assert.Equal(t, hash.Digest("h1"), d)

	// The whole metadata map and child listing at every level must survive
	// the round trip unchanged, not just the digest.
	wantMeta, err := tr.GetMetadata(mustPath(t, "/a/f.txt"))
	require.NoError(t, err)
	gotMeta, err := tr2.GetMetadata(mustPath(t, "/a/f.txt"))
	require.NoError(t, err)
	if diff := cmp.Diff(wantMeta, gotMeta); diff != "" {
		t.Errorf("metadata mismatch after round trip (-want +got):\n%s", diff)
	}

	wantNames, err := tr.List(mustPath(t, "/a"))
	require.NoError(t, err)
	gotNames, err := tr2.List(mustPath(t, "/a"))
	require.NoError(t, err)
	if diff := cmp.Diff(wantNames, gotNames); diff != "" {
		t.Errorf("child listing mismatch after round trip (-want +got):\n%s", diff)
	}
}

// TestEncodeDecodePreservesChildInsertionOrder guards against the codec
// routing children through a Go map, which would silently re-sort them
// alphabetically on encode and scramble them further on decode.
func TestEncodeDecodePreservesChildInsertionOrder(t *testing.T) {
	tr := New()
	want := []string{"zebra", "apple", "mango", "banana"}
	for _, name := range want {
		require.NoError(t, tr.CreateFile(mustPath(t, "/"+name)))
	}

	names, err := tr.List(Path{})
	require.NoError(t, err)
	require.Equal(t, want, names, "insertion order before any encode/decode")

	data, err := tr.Encode()
	require.NoError(t, err)

	tr2, err := Load(data)
	require.NoError(t, err)
	names, err = tr2.List(Path{})
	require.NoError(t, err)
	assert.Equal(t, want, names, "insertion order must survive an encode/decode round trip")
}

func TestFailedOperationLeavesTreeUnchanged(t *testing.T) {
	tr := New()
	require.NoError(t, tr.Mkdir(mustPath(t, "/a")))
	before, err := tr.Encode()
	require.NoError(t, err)

	err = tr.Mkdir(mustPath(t, "/missing-parent/x"))
	assert.Error(t, err)

	after, err := tr.Encode()
	require.NoError(t, err)
	assert.JSONEq(t, string(before), string(after))
}
