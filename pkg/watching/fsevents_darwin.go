//go:build darwin && cgo

package watching

import (
	"context"
	"os"
	"syscall"
	"time"

	"github.com/fsnotify/fsevents"
	"github.com/pkg/errors"

	"github.com/wisprd/wisp/pkg/pending"
)

// fseventsCoalescingLatency is the coalescing latency requested from
// FSEvents itself, independent of the crawler's own pending-set coalescing.
const fseventsCoalescingLatency = 25 * time.Millisecond

// fseventsFlags requests a recursive, per-file event stream rooted at the
// watched path.
const fseventsFlags = fsevents.WatchRoot | fsevents.FileEvents

// watchRootParameters identifies a watch root across re-creation (e.g. after
// the root directory itself is replaced).
type watchRootParameters struct {
	deviceID int32
	inode    uint64
}

func probeWatchRoot(root string) (watchRootParameters, error) {
	info, err := os.Lstat(root)
	if err != nil {
		return watchRootParameters{}, err
	}
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return watchRootParameters{}, errors.New("unable to extract raw root metadata")
	}
	return watchRootParameters{deviceID: stat.Dev, inode: stat.Ino}, nil
}

// FSEventsDriver is the darwin recursive watching.Driver backend: a
// forwarding goroutine buffers raw FSEvents paths on a channel, and
// ConsumeNotify drains them into a pending.Set. FSEvents is inherently
// recursive and per-path (Flags reports both capabilities).
type FSEventsDriver struct {
	stream           *fsevents.EventStream
	forwardingCancel context.CancelFunc
	wake             chan struct{}
	paths            chan string
}

// NewFSEventsDriver constructs an unstarted FSEvents-backed driver.
func NewFSEventsDriver() *FSEventsDriver {
	return &FSEventsDriver{wake: make(chan struct{}, 1)}
}

// Start implements Driver.
func (d *FSEventsDriver) Start(root string) (bool, error) {
	parameters, err := probeWatchRoot(root)
	if err != nil {
		return false, errors.Wrap(err, "unable to grab watch root metadata")
	}

	rawEvents := make(chan []fsevents.Event, 50)
	d.stream = &fsevents.EventStream{
		Events:  rawEvents,
		Paths:   []string{root},
		Latency: fseventsCoalescingLatency,
		Device:  parameters.deviceID,
		Flags:   fseventsFlags,
	}

	d.paths = make(chan string, 1024)
	forwardingContext, cancel := context.WithCancel(context.Background())
	d.forwardingCancel = cancel
	go func() {
		defer close(d.paths)
		for {
			select {
			case <-forwardingContext.Done():
				return
			case events, ok := <-rawEvents:
				if !ok {
					return
				}
				for _, e := range events {
					select {
					case d.paths <- e.Path:
					default:
					}
				}
				select {
				case d.wake <- struct{}{}:
				default:
				}
			}
		}
	}()

	d.stream.Start()
	return true, nil
}

// StartWatchDir implements Driver. FSEvents watches recursively from the
// root, so per-directory registration is a no-op.
func (d *FSEventsDriver) StartWatchDir(root, dir string, now time.Time) (DirHandle, error) {
	return DirHandle{Path: dir}, nil
}

// ConsumeNotify implements Driver, draining every path FSEvents has
// delivered since the last call into set as a non-recursive, notify-sourced
// entry (the crawler re-stats and, for directories, re-enumerates).
func (d *FSEventsDriver) ConsumeNotify(root string, set *pending.Set) (bool, error) {
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
func (d *FSEventsDriver) WaitNotify(timeout time.Duration) bool {
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
func (d *FSEventsDriver) SignalThreads() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Flags implements Driver. FSEvents reports individual paths (not bare
// directory signals) and coalesces renames into from/to pairs internally.
func (d *FSEventsDriver) Flags() Flags {
	return HasPerFileNotifications | CoalescedRename
}

// Stop implements Driver.
func (d *FSEventsDriver) Stop() {
	if d.stream != nil {
		d.stream.Stop()
	}
	if d.forwardingCancel != nil {
		d.forwardingCancel()
	}
}
