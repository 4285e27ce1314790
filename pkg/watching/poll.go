package watching

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/wisprd/wisp/pkg/pending"
)

// snapshot records the metadata poll uses to detect change: mode always,
// plus size and modification time for non-directories.
type snapshot struct {
	mode    os.FileMode
	size    int64
	modTime time.Time
	isDir   bool
}

func statSnapshot(info os.FileInfo) snapshot {
	return snapshot{
		mode:    info.Mode(),
		size:    info.Size(),
		modTime: info.ModTime(),
		isDir:   info.IsDir(),
	}
}

func (s snapshot) equal(other snapshot) bool {
	if s.mode != other.mode {
		return false
	}
	if s.isDir {
		return other.isDir
	}
	return s.size == other.size && s.modTime.Equal(other.modTime)
}

// PollDriver is a portable Driver implementation that periodically walks the
// watched root and compares file metadata against the last walk. It offers
// neither per-file notifications nor coalesced renames: every poll that
// finds any change enqueues the changed paths' parent directories (and, for
// directories, the directories themselves) as recursive pending entries,
// letting the crawler's own readdir diff work out exactly what changed.
type PollDriver struct {
	interval time.Duration

	mu       sync.Mutex
	contents map[string]snapshot
	rootPath string

	wake chan struct{}
}

// NewPollDriver creates a PollDriver that polls every interval.
func NewPollDriver(interval time.Duration) *PollDriver {
	if interval <= 0 {
		interval = time.Second
	}
	return &PollDriver{
		interval: interval,
		contents: make(map[string]snapshot),
		wake:     make(chan struct{}, 1),
	}
}

// Start implements Driver.
func (d *PollDriver) Start(root string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rootPath = root
	return true, nil
}

// StartWatchDir implements Driver. The polling driver has no per-directory
// registration to perform; the handle simply names the directory.
func (d *PollDriver) StartWatchDir(root, dir string, now time.Time) (DirHandle, error) {
	return DirHandle{Path: dir}, nil
}

// ConsumeNotify performs one poll of the tree, diffing against the last
// recorded snapshot and enqueuing a recursive pending entry for every parent
// directory of a changed path (and the changed path itself, if it is a
// directory). The first call has no previous snapshot, so it reports the
// root and every directory in the tree.
func (d *PollDriver) ConsumeNotify(root string, set *pending.Set) (bool, error) {
	d.mu.Lock()
	previous := d.contents
	d.mu.Unlock()

	current := make(map[string]snapshot, len(previous))
	changedDirs := make(map[string]bool)
	now := time.Now()

	rootMissing := false
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				if path == root {
					rootMissing = true
				}
				return nil
			}
			return err
		}
		snap := statSnapshot(info)
		current[path] = snap
		if prior, ok := previous[path]; !ok || !prior.equal(snap) {
			if info.IsDir() {
				changedDirs[path] = true
			}
			if path != root {
				changedDirs[filepath.Dir(path)] = true
			} else {
				changedDirs[path] = true
			}
		}
		return nil
	})
	if err != nil && !rootMissing {
		return false, errors.Wrap(err, "unable to perform filesystem walk")
	}
	for path := range previous {
		if _, ok := current[path]; !ok {
			if path != root {
				changedDirs[filepath.Dir(path)] = true
			} else {
				changedDirs[path] = true
			}
		}
	}

	d.mu.Lock()
	d.contents = current
	d.mu.Unlock()

	if len(changedDirs) == 0 {
		return false, nil
	}
	for dir := range changedDirs {
		set.Add(pending.Entry{Path: dir, Flags: pending.FlagRecursive | pending.FlagViaNotify, Timestamp: now})
	}
	return true, nil
}

// WaitNotify blocks for up to timeout, returning true if a wake was
// signaled by SignalThreads and false on timeout.
func (d *PollDriver) WaitNotify(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-d.wake:
		return true
	case <-timer.C:
		return false
	}
}

// SignalThreads implements Driver.
func (d *PollDriver) SignalThreads() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Flags implements Driver. The polling driver offers neither capability.
func (d *PollDriver) Flags() Flags { return 0 }

// Stop implements Driver; the polling driver holds no external resources.
func (d *PollDriver) Stop() {}
