package objectstore

import (
	"io/ioutil"
	"strings"
	"testing"

	"github.com/nicolagi/dedupvfs/internal/hash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiskStoreAddExistsOpenRemove(t *testing.T) {
	dir, err := ioutil.TempDir("", "objectstore")
	require.NoError(t, err)
	s := NewDiskStore(dir)

	d := hash.OfBytes([]byte("hello"))

	exists, err := s.Exists(d)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, s.Add(d, strings.NewReader("hello")))

	exists, err = s.Exists(d)
	require.NoError(t, err)
	assert.True(t, exists)

	err = s.Add(d, strings.NewReader("hello"))
	assert.ErrorIs(t, err, ErrExists)

	rc, err := s.Open(d)
	require.NoError(t, err)
	b, err := ioutil.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "hello", string(b))

	require.NoError(t, s.Remove(d))
	exists, err = s.Exists(d)
	require.NoError(t, err)
	assert.False(t, exists)

	err = s.Remove(d)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDiskStoreAddCreatesDirectory(t *testing.T) {
	dir, err := ioutil.TempDir("", "objectstore")
	require.NoError(t, err)
	s := NewDiskStore(dir + "/nested/does-not-exist-yet")

	d := hash.OfBytes([]byte("x"))
	require.NoError(t, s.Add(d, strings.NewReader("x")))
}

func TestDiskStoreForEachSkipsNonDigestEntries(t *testing.T) {
	dir, err := ioutil.TempDir("", "objectstore")
	require.NoError(t, err)
	s := NewDiskStore(dir)

	d1 := hash.OfBytes([]byte("one"))
	d2 := hash.OfBytes([]byte("two"))
	require.NoError(t, s.Add(d1, strings.NewReader("one")))
	require.NoError(t, s.Add(d2, strings.NewReader("two")))
	// A scratch file caught mid-write must not show up as a blob.
	require.NoError(t, ioutil.WriteFile(dir+"/"+string(d1)+".new", []byte("partial"), 0666))

	var seen []hash.Digest
	require.NoError(t, s.ForEach(func(d hash.Digest) error {
		seen = append(seen, d)
		return nil
	}))
	assert.ElementsMatch(t, []hash.Digest{d1, d2}, seen)
}

func TestPathContains(t *testing.T) {
	dir, err := ioutil.TempDir("", "objectstore-root")
	require.NoError(t, err)

	ok, err := PathContains(dir, dir+"/EntityFiles/abc")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = PathContains(dir, dir)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = PathContains(dir, "/tmp/somewhere-else-entirely")
	require.NoError(t, err)
	assert.False(t, ok)
}
