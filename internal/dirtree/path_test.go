package dirtree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePathRoundTrip(t *testing.T) {
	cases := []struct {
		text string
		want Path
	}{
		{"", Path{}},
		{"/", Path{}},
		{"/a", Path{"a"}},
		{"a", Path{"a"}},
		{"/a/b/c", Path{"a", "b", "c"}},
		{"a/b/c/", Path{"a", "b", "c"}},
	}
	for _, c := range cases {
		got, err := ParsePath(c.text)
		require.NoError(t, err, c.text)
		assert.Equal(t, c.want, got, c.text)
	}
}

func TestParsePathInvalid(t *testing.T) {
	for _, text := range []string{"//", "/a//b", "a//"} {
		_, err := ParsePath(text)
		assert.Error(t, err, text)
	}
}

func TestPathStringDegenerateForms(t *testing.T) {
	assert.Equal(t, "/", Path{}.String())
	assert.Equal(t, "/a/b", Path{"a", "b"}.String())
}

func TestPathContains(t *testing.T) {
	assert.True(t, Path{"a"}.Contains(Path{"a", "b"}))
	assert.True(t, Path{"a"}.Contains(Path{"a"}))
	assert.False(t, Path{"a", "b"}.Contains(Path{"a"}))
	assert.False(t, Path{"a"}.Contains(Path{"b"}))
}
