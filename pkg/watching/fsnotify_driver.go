//go:build !plan9

package watching

import (
	"context"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/wisprd/wisp/pkg/pending"
)

// FSNotifyDriver is the non-recursive POSIX/Windows watching.Driver backend:
// inotify on Linux, kqueue on BSD/darwin, ReadDirectoryChangesW on Windows,
// all behind fsnotify's single cross-platform Watcher type. It registers one
// watch per discovered directory (via StartWatchDir) and forwards raw events
// into a pending.Set instead of fsnotify's own Event/Op pair.
//
// Events are drained by a forwarding goroutine into a buffered paths channel
// (mirroring FSEventsDriver's shape) so that WaitNotify's wake signal and
// ConsumeNotify's drain can never race over the same fsnotify.Watcher
// channel.
type FSNotifyDriver struct {
	watcher          *fsnotify.Watcher
	forwardingCancel context.CancelFunc
	wake             chan struct{}
	paths            chan string
}

// NewFSNotifyDriver constructs an unstarted fsnotify-backed driver.
func NewFSNotifyDriver() *FSNotifyDriver {
	return &FSNotifyDriver{wake: make(chan struct{}, 1)}
}

// Start implements Driver.
func (d *FSNotifyDriver) Start(root string) (bool, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return false, err
	}
	d.watcher = watcher
	d.paths = make(chan string, 1024)

	forwardingContext, cancel := context.WithCancel(context.Background())
	d.forwardingCancel = cancel
	go func() {
		defer close(d.paths)
		for {
			select {
			case <-forwardingContext.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				select {
				case d.paths <- event.Name:
				default:
				}
				select {
				case d.wake <- struct{}{}:
				default:
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return true, nil
}

// StartWatchDir implements Driver, registering a non-recursive watch on dir.
func (d *FSNotifyDriver) StartWatchDir(root, dir string, now time.Time) (DirHandle, error) {
	if err := d.watcher.Add(dir); err != nil {
		return DirHandle{}, err
	}
	return DirHandle{Path: dir}, nil
}

// ConsumeNotify implements Driver, draining every fsnotify event received
// since the last call into set as a non-recursive, notify-sourced entry.
func (d *FSNotifyDriver) ConsumeNotify(root string, set *pending.Set) (bool, error) {
	now := time.Now()
	drained := false
	for {
		select {
		case path, ok := <-d.paths:
			if !ok {
				return drained, nil
			}
			set.Add(pending.Entry{Path: path, Flags: pending.FlagViaNotify, Timestamp: now})
			drained = true
		default:
			return drained, nil
		}
	}
}

// WaitNotify implements Driver.
func (d *FSNotifyDriver) WaitNotify(timeout time.Duration) bool {
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
func (d *FSNotifyDriver) SignalThreads() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Flags implements Driver. fsnotify delivers one event per path with
// separate rename-from/rename-to notifications, so neither capability bit
// is set.
func (d *FSNotifyDriver) Flags() Flags {
	return 0
}

// Stop implements Driver.
func (d *FSNotifyDriver) Stop() {
	if d.forwardingCancel != nil {
		d.forwardingCancel()
	}
	if d.watcher != nil {
		_ = d.watcher.Close()
	}
}
