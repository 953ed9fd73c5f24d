// Package config loads the small key-value configuration file that tells a
// VirtualFileSystem root where to live and how to back its object store.
package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// DefaultBaseDirectoryPath is where a root's configuration and data live
// when no -base flag is given. It defaults to $DEDUPVFS_BASE if set,
// otherwise $HOME/lib/dedupvfs.
var DefaultBaseDirectoryPath string

func init() {
	if base := os.Getenv("DEDUPVFS_BASE"); base != "" {
		DefaultBaseDirectoryPath = base
	} else {
		DefaultBaseDirectoryPath = os.ExpandEnv("$HOME/lib/dedupvfs")
	}
}

// C is a root's configuration.
type C struct {
	// Storage selects the ObjectStore backend: "disk" (default) or "s3".
	Storage string

	// DiskStoreDir is where blobs live when Storage is "disk". If
	// relative, it is resolved relative to the base directory. Defaults
	// to "<base>/EntityFiles".
	DiskStoreDir string

	// These only make sense if Storage is "s3".
	S3Region  string
	S3Bucket  string
	S3Profile string

	// base is the directory holding the config file and, by default,
	// EntityFiles/ and Users/.
	base string
}

// Load loads the configuration from the file called "config" in base. A
// missing config file is not an error: Load returns the defaults (disk
// storage under <base>/EntityFiles), so a root can be used without ever
// writing a config file.
func Load(base string) (*C, error) {
	c := &C{base: base, Storage: "disk"}
	filename := filepath.Join(base, "config")
	f, err := os.Open(filename)
	if os.IsNotExist(err) {
		c.applyDefaults()
		return c, nil
	}
	if err != nil {
		return nil, errorf("Load", "%q: %w", filename, err)
	}
	defer func() { _ = f.Close() }()
	if err := c.parse(f); err != nil {
		return nil, errorf("Load", "%q: %w", filename, err)
	}
	c.applyDefaults()
	return c, nil
}

func (c *C) parse(r io.Reader) error {
	s := bufio.NewScanner(r)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		i := strings.IndexAny(line, " \t")
		if i == -1 {
			return fmt.Errorf("no separator in %q", line)
		}
		key, val := line[:i], strings.TrimSpace(line[i:])
		switch key {
		case "storage":
			c.Storage = val
		case "disk-store-dir":
			c.DiskStoreDir = val
		case "s3-region":
			c.S3Region = val
		case "s3-bucket":
			c.S3Bucket = val
		case "s3-profile":
			c.S3Profile = val
		default:
			return fmt.Errorf("unknown key %q", key)
		}
	}
	return s.Err()
}

func (c *C) applyDefaults() {
	if c.Storage == "" {
		c.Storage = "disk"
	}
	if c.DiskStoreDir == "" {
		c.DiskStoreDir = filepath.Join(c.base, "EntityFiles")
	} else if !filepath.IsAbs(c.DiskStoreDir) {
		c.DiskStoreDir = filepath.Clean(filepath.Join(c.base, c.DiskStoreDir))
	}
}

// BaseDirectoryPath returns the root directory this configuration was
// loaded from.
func (c *C) BaseDirectoryPath() string {
	return c.base
}

// LedgerPath returns the path to the ledger's SQLite file.
func (c *C) LedgerPath() string {
	return filepath.Join(c.base, "file_quote_count.sqlite")
}

// UserTreePath returns the path to a given user's tree document.
func (c *C) UserTreePath(userID string) string {
	return filepath.Join(c.base, "Users", userID, "dirTreeHandler.json")
}

// EnsureLayout creates the on-disk directory layout for a root and user, if
// not already present: <root>/, <root>/EntityFiles/, <root>/Users/,
// <root>/Users/<user_id>/.
func (c *C) EnsureLayout(userID string) error {
	for _, dir := range []string{
		c.base,
		c.DiskStoreDir,
		filepath.Join(c.base, "Users"),
		filepath.Join(c.base, "Users", userID),
	} {
		if err := os.MkdirAll(dir, 0777); err != nil {
			return errorf("EnsureLayout", "%q: %w", dir, err)
		}
	}
	return nil
}
