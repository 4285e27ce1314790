// Package cookie implements a file-creation-round-trip synchronization
// protocol: a caller asks to be told when every notification generated
// before the call has been observed by the crawler, and the implementation
// proves that by creating a uniquely-named file and waiting for the crawler
// to see its own notification go by.
//
// Cookie-file creation follows an atomic-temporary-file idiom (a unique
// name, an O_CREATE|O_EXCL open, best-effort cleanup on every exit path);
// future/promise registration for an outstanding sync uses a one-shot
// channel per cookie, since a sync completes once and is done rather than
// tracking a repeating index.
package cookie

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

// ErrTimeout indicates a sync call's timeout elapsed before its cookie's
// notification was observed.
var ErrTimeout = errors.New("cookie: sync timed out")

// ErrCancelled indicates the root was cancelled while a sync was pending.
var ErrCancelled = errors.New("cookie: root cancelled")

// NamePrefix is the cookie file name prefix: a cookie path has the shape
// "<cookieDir>/<NamePrefix><pid>-<serial>".
const NamePrefix = ".wisp-cookie-"

// Sync manages outstanding cookies for a single root.
type Sync struct {
	mu      sync.Mutex
	dir     string
	pid     int
	serial  uint64
	pending map[string]chan error
}

// New creates a Sync that creates cookie files inside dir (the watched root
// by default, or a configured subdirectory on filesystems where deep-subtree
// creations may be coalesced).
func New(dir string, pid int) *Sync {
	return &Sync{
		dir:     dir,
		pid:     pid,
		pending: make(map[string]chan error),
	}
}

// cookiePath builds the next serial-numbered cookie path.
func (s *Sync) cookiePath() (string, uint64) {
	serial := atomic.AddUint64(&s.serial, 1)
	name := fmt.Sprintf("%s%d-%d", NamePrefix, s.pid, serial)
	return filepath.Join(s.dir, name), serial
}

// IsCookiePath reports whether path names a cookie file, making it not
// reportable to clients.
func IsCookiePath(path string) bool {
	return strings.HasPrefix(filepath.Base(path), NamePrefix)
}

// Sync creates a cookie file, registers its future, and blocks until the
// cookie's notification is observed by Observe, ctx is cancelled, or timeout
// elapses. On success, every filesystem mutation flushed before the call is
// guaranteed observable in the view, because the crawler processes pending
// entries in FIFO order and the cookie's own creation notification cannot be
// observed before notifications for changes that preceded it on the same
// watch stream.
func (s *Sync) Sync(ctx context.Context, timeout time.Duration) error {
	path, _ := s.cookiePath()

	done := make(chan error, 1)
	s.mu.Lock()
	s.pending[path] = done
	s.mu.Unlock()

	cleanup := func() {
		s.mu.Lock()
		delete(s.pending, path)
		s.mu.Unlock()
		_ = os.Remove(path)
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		cleanup()
		return errors.Wrap(err, "unable to create cookie file")
	}
	_ = file.Close()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		_ = os.Remove(path)
		return err
	case <-timer.C:
		cleanup()
		return ErrTimeout
	case <-ctx.Done():
		cleanup()
		return ErrCancelled
	}
}

// Observe is called by the crawler for every pending path it drains. If path
// names an outstanding cookie, its future is fulfilled and the registration
// is removed. It returns whether path was a cookie (the crawler should skip
// normal stat/view processing for cookie paths).
func (s *Sync) Observe(path string) bool {
	s.mu.Lock()
	done, ok := s.pending[path]
	if ok {
		delete(s.pending, path)
	}
	s.mu.Unlock()
	if ok {
		done <- nil
	}
	return ok
}

// CancelAll fails every outstanding sync with ErrCancelled, used when a root
// is cancelled while syncs are pending.
func (s *Sync) CancelAll() {
	s.mu.Lock()
	pending := s.pending
	s.pending = make(map[string]chan error)
	s.mu.Unlock()
	for path, done := range pending {
		done <- ErrCancelled
		_ = os.Remove(path)
	}
}
