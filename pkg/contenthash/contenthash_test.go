package contenthash

import (
	"crypto/sha1"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, contents string) Key {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "file.txt")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0600))

	info, err := os.Stat(path)
	require.NoError(t, err)
	return Key{
		Path:    path,
		Size:    info.Size(),
		ModSec:  info.ModTime().Unix(),
		ModNsec: int64(info.ModTime().Nanosecond()),
	}
}

func TestGetComputesExpectedDigest(t *testing.T) {
	key := writeTempFile(t, "hello world")
	c := New(8, time.Minute)

	digest, err := c.Get(key, time.Now())
	require.NoError(t, err)
	assert.Equal(t, sha1.Sum([]byte("hello world")), [sha1.Size]byte(digest))
}

func TestGetCachesOnSecondCall(t *testing.T) {
	key := writeTempFile(t, "cached")
	c := New(8, time.Minute)

	_, err := c.Get(key, time.Now())
	require.NoError(t, err)

	// Mutate the file on disk without updating the key; a cache hit must
	// still return the original digest rather than rehashing.
	require.NoError(t, os.WriteFile(key.Path, []byte("mutated"), 0600))

	digest, err := c.Get(key, time.Now())
	require.NoError(t, err)
	assert.Equal(t, sha1.Sum([]byte("cached")), [sha1.Size]byte(digest))
}

func TestGetFailsWithMetadataChangedOnStaleKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.txt")
	require.NoError(t, os.WriteFile(path, []byte("original"), 0600))

	key := Key{Path: path, Size: 999, ModSec: 0, ModNsec: 0}
	c := New(8, time.Minute)

	_, err := c.Get(key, time.Now())
	assert.ErrorIs(t, err, ErrMetadataChanged)
}

func TestMetadataChangedResultIsNotCached(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.txt")
	require.NoError(t, os.WriteFile(path, []byte("original"), 0600))

	staleKey := Key{Path: path, Size: 999, ModSec: 0, ModNsec: 0}
	c := New(8, time.Hour)

	_, err := c.Get(staleKey, time.Now())
	require.ErrorIs(t, err, ErrMetadataChanged)

	// A second call with the same (bad) key must re-attempt the hash rather
	// than serve a cached negative result, since a TOCTOU failure is never
	// cached.
	_, err = c.Get(staleKey, time.Now())
	assert.ErrorIs(t, err, ErrMetadataChanged)
}

func TestGetFailsForMissingFile(t *testing.T) {
	key := Key{Path: filepath.Join(t.TempDir(), "absent"), Size: 0}
	c := New(8, time.Minute)

	_, err := c.Get(key, time.Now())
	assert.Error(t, err)
}
