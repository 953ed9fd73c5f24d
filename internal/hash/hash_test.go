package hash

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOf(t *testing.T) {
	d, err := Of(strings.NewReader("hello"))
	require.NoError(t, err)
	assert.Equal(t, Digest("2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"), d)
}

func TestOfBytesMatchesOf(t *testing.T) {
	want, err := Of(strings.NewReader("the quick brown fox"))
	require.NoError(t, err)
	assert.Equal(t, want, OfBytes([]byte("the quick brown fox")))
}

func TestValid(t *testing.T) {
	assert.True(t, Valid(string(OfBytes([]byte("x")))))
	assert.False(t, Valid(""))
	assert.False(t, Valid("not-hex"))
	assert.False(t, Valid(strings.Repeat("g", 64)))
	assert.False(t, Valid(strings.Repeat("a", 63)))
}
