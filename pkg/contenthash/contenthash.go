// Package contenthash implements a content-hash cache: a SHA-1 digest of a
// file's bytes, keyed by the metadata observed at hash time, with a TOCTOU
// re-check guarding against the file having changed while it was being
// read.
//
// Cached digests are keyed by (path, size, modification time) to decide
// whether a rescan can skip rehashing. Unlike a cache that's a pure value
// rebuilt wholesale on every scan and serialized to disk between runs, this
// one serves a live query engine and so layers pkg/lru's single-flight
// future on top: concurrent queries for the same file share one
// read-and-hash pass rather than duplicating I/O.
package contenthash

import (
	"crypto/sha1"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"

	"github.com/wisprd/wisp/pkg/lru"
)

// chunkSize is the read buffer size used while hashing.
const chunkSize = 8 * 1024

// ErrMetadataChanged indicates the file's (size, mtime) pair no longer
// matched the requested key once hashing completed. This negative result is
// never cached.
var ErrMetadataChanged = errors.New("contenthash: metadata changed during hashing")

// Key identifies the exact file state a digest is good for.
type Key struct {
	Path    string
	Size    int64
	ModSec  int64
	ModNsec int64
}

func (k Key) cacheKey() string {
	return fmt.Sprintf("%s|%d|%d|%d", k.Path, k.Size, k.ModSec, k.ModNsec)
}

// Digest is a 20-byte SHA-1 content hash.
type Digest [sha1.Size]byte

// Cache computes and caches content digests, bounded by an underlying
// LRU with single-flight fill coalescing.
type Cache struct {
	cache *lru.Cache
}

// New creates a Cache with the given capacity and negative-result TTL,
// matching pkg/lru's constructor shape.
func New(capacity int, errorTTL time.Duration) *Cache {
	return &Cache{cache: lru.New(capacity, errorTTL)}
}

// Get returns the content digest for key, hashing the file if it is
// not already cached. A mismatch between the live file's metadata and
// key after hashing completes (a TOCTOU re-check) fails with
// ErrMetadataChanged and is deliberately NOT entered into the
// negative-result cache, since the caller is expected to re-query once
// the pending notification for the in-flight mutation has been
// processed.
func (c *Cache) Get(key Key, now time.Time) (Digest, error) {
	getter := func() (interface{}, error) {
		return hashFile(key)
	}
	value, err := c.cache.GetOrFill(key.cacheKey(), getter, now)
	if err != nil {
		if err == ErrMetadataChanged {
			c.cache.Erase(key.cacheKey())
		}
		return Digest{}, err
	}
	return value.(Digest), nil
}

func hashFile(key Key) (Digest, error) {
	f, err := os.Open(key.Path)
	if err != nil {
		return Digest{}, errors.Wrap(err, "unable to open file for hashing")
	}
	defer f.Close()

	h := sha1.New()
	buf := make([]byte, chunkSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return Digest{}, errors.Wrap(err, "unable to read file contents")
	}

	info, err := f.Stat()
	if err != nil {
		return Digest{}, errors.Wrap(err, "unable to re-stat file after hashing")
	}
	mtime := info.ModTime()
	if info.Size() != key.Size || mtime.Unix() != key.ModSec || int64(mtime.Nanosecond()) != key.ModNsec {
		return Digest{}, ErrMetadataChanged
	}

	var digest Digest
	copy(digest[:], h.Sum(nil))
	return digest, nil
}

// Stats returns the underlying cache's cumulative counters.
func (c *Cache) Stats() lru.Stats { return c.cache.Stats() }
