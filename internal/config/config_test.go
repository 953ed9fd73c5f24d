package config

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	dir, err := ioutil.TempDir("", "config")
	require.NoError(t, err)
	c, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "disk", c.Storage)
	assert.Equal(t, filepath.Join(dir, "EntityFiles"), c.DiskStoreDir)
}

func TestLoadParsesKeyValueFile(t *testing.T) {
	dir, err := ioutil.TempDir("", "config")
	require.NoError(t, err)
	contents := "storage s3\ns3-bucket my-bucket\ns3-region us-east-1\n# a comment\n"
	require.NoError(t, ioutil.WriteFile(filepath.Join(dir, "config"), []byte(contents), 0600))

	c, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "s3", c.Storage)
	assert.Equal(t, "my-bucket", c.S3Bucket)
	assert.Equal(t, "us-east-1", c.S3Region)
}

func TestLoadUnknownKeyErrors(t *testing.T) {
	dir, err := ioutil.TempDir("", "config")
	require.NoError(t, err)
	require.NoError(t, ioutil.WriteFile(filepath.Join(dir, "config"), []byte("bogus value\n"), 0600))
	_, err = Load(dir)
	assert.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "bogus"))
}

func TestEnsureLayout(t *testing.T) {
	dir, err := ioutil.TempDir("", "config")
	require.NoError(t, err)
	c, err := Load(dir)
	require.NoError(t, err)
	require.NoError(t, c.EnsureLayout("alice"))

	for _, p := range []string{
		c.DiskStoreDir,
		filepath.Join(dir, "Users", "alice"),
	} {
		fi, statErr := os.Stat(p)
		require.NoError(t, statErr)
		assert.True(t, fi.IsDir())
	}
}
