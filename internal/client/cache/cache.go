// Package cache stores pulled ciphertext on disk so load works offline.
// Versions are immutable on the server, so entries are write-once: a cached
// version is never rewritten.
package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/dmitrijs2005/secretvault/internal/filex"
)

const dataFile = "data"

var ErrMiss = errors.New("version not cached")

type Cache struct {
	root string
}

// New returns a cache rooted at the user cache directory
// (~/.cache/secret-vault on Linux).
func New() (*Cache, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return nil, err
	}
	return NewAt(filepath.Join(base, "secret-vault")), nil
}

// NewAt returns a cache rooted at an explicit directory. Used by tests.
func NewAt(root string) *Cache {
	return &Cache{root: root}
}

func (c *Cache) versionDir(uid string, version int64) string {
	return filepath.Join(c.root, uid, strconv.FormatInt(version, 10))
}

// Get returns the cached ciphertext for (uid, version), or ErrMiss.
func (c *Cache) Get(uid string, version int64) (string, error) {
	data, err := os.ReadFile(filepath.Join(c.versionDir(uid, version), dataFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrMiss
		}
		return "", err
	}
	return string(data), nil
}

// Put stores ciphertext for (uid, version). An existing entry is left
// untouched, the first write wins.
func (c *Cache) Put(uid string, version int64, ciphertext string) error {
	dir := c.versionDir(uid, version)
	path := filepath.Join(dir, dataFile)

	if _, err := os.Stat(path); err == nil {
		return nil
	}

	if err := filex.EnsureDir(dir); err != nil {
		return fmt.Errorf("cache dir: %w", err)
	}
	return filex.WriteFileAtomic(path, []byte(ciphertext), 0o600)
}
