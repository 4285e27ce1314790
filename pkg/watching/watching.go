// Package watching implements the per-root watcher driver contract:
// start/startWatchDir/consumeNotify/waitNotify/signalThreads, feeding
// pkg/pending instead of a bare dirty-path set.
//
// Three drivers cover the platform matrix: FSNotifyDriver wraps
// github.com/fsnotify/fsnotify for the general non-recursive POSIX/Windows
// case, FSEventsDriver wraps the native darwin recursive-watch facility for
// the case where the OS itself reports subtree changes, and PollDriver is a
// dependency-free fallback that periodically walks each directory and diffs
// metadata for platforms or mount types where neither native mechanism is
// reliable. See DESIGN.md for the full justification of this split.
package watching

import (
	"time"

	"github.com/wisprd/wisp/pkg/pending"
)

// Flags advertises the capabilities a Driver implementation offers.
type Flags uint8

const (
	// HasPerFileNotifications indicates the driver reports individual file
	// paths rather than only "something changed in this directory."
	HasPerFileNotifications Flags = 1 << iota
	// CoalescedRename indicates rename pairs arrive pre-coalesced rather than
	// as a separate delete/create.
	CoalescedRename
)

// DirHandle identifies a directory registered with startWatchDir, returned
// so the crawler can later enumerate it.
type DirHandle struct {
	Path string
}

// Driver is the per-root watcher contract.
type Driver interface {
	// Start begins producing events for root. May block briefly for initial
	// setup.
	Start(root string) (bool, error)
	// StartWatchDir is called on directory discovery; it returns a handle
	// the crawler uses to enumerate dir's contents.
	StartWatchDir(root, dir string, now time.Time) (DirHandle, error)
	// ConsumeNotify drains whatever events the driver has accumulated into
	// set, coalescing per pkg/pending's own rules. Returns whether any
	// events were produced.
	ConsumeNotify(root string, set *pending.Set) (bool, error)
	// WaitNotify blocks until events might be available or timeout elapses.
	WaitNotify(timeout time.Duration) bool
	// SignalThreads wakes any goroutine blocked in WaitNotify, used during
	// shutdown.
	SignalThreads()
	// Flags reports this driver's capabilities.
	Flags() Flags
	// Stop releases any resources the driver holds for root.
	Stop()
}
