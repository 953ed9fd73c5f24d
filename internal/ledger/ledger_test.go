package ledger

import (
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/nicolagi/dedupvfs/internal/hash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	dir, err := ioutil.TempDir("", "ledger")
	require.NoError(t, err)
	l, err := Open(filepath.Join(dir, "file_quote_count.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Commit() })
	return l
}

func TestCreateThenGet(t *testing.T) {
	l := newTestLedger(t)
	d := hash.Digest("h1")

	require.NoError(t, l.Create(d))
	count, err := l.Get(d)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	err = l.Create(d)
	assert.ErrorIs(t, err, ErrExists)
}

func TestIncrementAutoCreates(t *testing.T) {
	l := newTestLedger(t)
	d := hash.Digest("h1")

	require.NoError(t, l.Increment(d))
	count, err := l.Get(d)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	require.NoError(t, l.Increment(d))
	count, err = l.Get(d)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestDecrementDeletesAtZero(t *testing.T) {
	l := newTestLedger(t)
	d := hash.Digest("h1")

	require.NoError(t, l.Increment(d))
	require.NoError(t, l.Increment(d))

	deleted, err := l.Decrement(d)
	require.NoError(t, err)
	assert.False(t, deleted)
	count, err := l.Get(d)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	deleted, err = l.Decrement(d)
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = l.Get(d)
	assert.ErrorIs(t, err, ErrNotExists)
}

func TestDecrementMissingRow(t *testing.T) {
	l := newTestLedger(t)
	_, err := l.Decrement(hash.Digest("missing"))
	assert.ErrorIs(t, err, ErrNotExists)
}

func TestGetMissingRow(t *testing.T) {
	l := newTestLedger(t)
	_, err := l.Get(hash.Digest("missing"))
	assert.ErrorIs(t, err, ErrNotExists)
}
