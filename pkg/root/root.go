// Package root provides the per-root glue struct and crawler goroutine: a
// watched directory tree owning exactly one view, ignore set, clock, cookie
// sync, pending set, watcher driver, cursor table, and unilateral publisher.
//
// The shape is "one goroutine per watched root driving detect -> rescan ->
// publish": a scan lock, a watch goroutine, and a poll-event signal driving
// a Poll/scan cycle, feeding a pending-set/view/clock model rather than a
// two-sided, cache-backed synchronization.
package root

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/wisprd/wisp/pkg/clock"
	"github.com/wisprd/wisp/pkg/cookie"
	"github.com/wisprd/wisp/pkg/ignore"
	"github.com/wisprd/wisp/pkg/pending"
	"github.com/wisprd/wisp/pkg/pubsub"
	"github.com/wisprd/wisp/pkg/state"
	"github.com/wisprd/wisp/pkg/view"
	"github.com/wisprd/wisp/pkg/watching"
)

// ErrPoisoned is returned by any operation on a root that has entered the
// unrecoverable state: destroyed because its watcher driver signaled an
// unrecoverable error.
var ErrPoisoned = errors.New("root: poisoned")

// ageOutThreshold bounds how many ticks a !exists node survives before
// pruning.
const ageOutThreshold = 10000

// crawlWaitInterval bounds how long the crawler goroutine blocks in
// WaitNotify between polls when nothing has signaled it awake.
const crawlWaitInterval = 100 * time.Millisecond

// Root is a single watched directory tree, owning exactly the state needed
// to track it.
type Root struct {
	Path string

	View      *view.View
	Ignore    *ignore.Set
	Clock     *clock.Clock
	Cursors   *clock.CursorTable
	Cookies   *cookie.Sync
	Pending   *pending.Set
	Driver    watching.Driver
	Publisher *pubsub.Publisher

	mu       sync.RWMutex
	dirIDs   map[string]view.DirID // root-relative path ('.' for the root) -> arena id
	poisoned state.Marker

	cancel context.CancelFunc
	done   chan struct{}
}

// New constructs a Root rooted at path, wiring fresh instances of every
// owned subsystem together.
func New(path string, process clock.ProcessContext, rootNumber int64, driver watching.Driver) *Root {
	r := &Root{
		Path:      path,
		View:      view.New(ageOutThreshold),
		Ignore:    ignore.New(),
		Clock:     clock.New(process, rootNumber),
		Cursors:   clock.NewCursorTable(),
		Cookies:   cookie.New(path, int(process.PID)),
		Pending:   pending.New(),
		Driver:    driver,
		Publisher: pubsub.New(),
		dirIDs:    map[string]view.DirID{".": view.DirID(0)},
		done:      make(chan struct{}),
	}
	return r
}

// relPath returns path relative to the root, using "/" separators and "."
// for the root itself.
func (r *Root) relPath(path string) (string, error) {
	rel, err := filepath.Rel(r.Path, path)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

func (r *Root) dirIDFor(relDir string) (view.DirID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.dirIDs[relDir]
	return id, ok
}

// ensureParentChain walks relDir's ancestors (in order), creating any
// missing arena directories, and returns the final directory's id.
func (r *Root) ensureParentChain(relDir string, tick uint64) view.DirID {
	if relDir == "." || relDir == "" {
		return r.View.RootID()
	}
	if id, ok := r.dirIDFor(relDir); ok {
		return id
	}
	parentDir := filepath.ToSlash(filepath.Dir(relDir))
	name := filepath.Base(relDir)
	parentID := r.ensureParentChain(parentDir, tick)
	id := r.View.EnsureChildDir(parentID, name, tick)

	r.mu.Lock()
	r.dirIDs[relDir] = id
	r.mu.Unlock()
	return id
}

// Start begins the watcher driver and the background crawler goroutine.
func (r *Root) Start(ctx context.Context) error {
	ok, err := r.Driver.Start(r.Path)
	if err != nil {
		return errors.Wrap(err, "unable to start watcher driver")
	}
	if !ok {
		return errors.New("watcher driver declined to start")
	}

	if _, err := r.Driver.StartWatchDir(r.Path, r.Path, time.Now()); err != nil {
		return errors.Wrap(err, "unable to register root watch")
	}

	crawlCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	go r.crawlLoop(crawlCtx)
	return nil
}

// Stop cancels the crawler goroutine and releases the driver.
func (r *Root) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.Driver.SignalThreads()
	r.Driver.Stop()
	r.Cookies.CancelAll()
	<-r.done
}

// crawlLoop is the crawler/notify goroutine: it waits for driver events,
// drains them into the pending set, and processes the pending set.
func (r *Root) crawlLoop(ctx context.Context) {
	defer close(r.done)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if _, err := r.Driver.ConsumeNotify(r.Path, r.Pending); err != nil {
			r.poison()
			return
		}

		entries := r.Pending.Drain()
		for _, e := range entries {
			r.processEntry(e)
		}
		if len(entries) > 0 {
			r.View.AgeOut(r.Clock.Tick())
		}

		r.Driver.WaitNotify(crawlWaitInterval)
	}
}

// processEntry implements the five-step crawler algorithm for a single
// pending entry.
func (r *Root) processEntry(e pending.Entry) {
	if cookie.IsCookiePath(e.Path) {
		r.Cookies.Observe(e.Path)
		return
	}
	if r.Ignore.IsIgnored(e.Path) {
		return
	}

	rel, err := r.relPath(e.Path)
	if err != nil {
		return
	}

	info, statErr := os.Lstat(e.Path)
	if statErr != nil {
		if os.IsNotExist(statErr) {
			r.markMissing(rel)
		}
		return
	}

	parentRel := filepath.ToSlash(filepath.Dir(rel))
	name := filepath.Base(rel)
	tick := r.Clock.Advance()
	parentID := r.ensureParentChain(parentRel, tick)

	if info.IsDir() {
		dirID := r.View.EnsureChildDir(parentID, name, tick)
		r.mu.Lock()
		r.dirIDs[rel] = dirID
		r.mu.Unlock()
		if e.Flags&pending.FlagRecursive != 0 {
			r.enumerateDir(e.Path, rel, dirID)
		}
		r.Publisher.Enqueue(rel)
		return
	}

	changed := r.View.UpsertFile(parentID, name, fileInfoFrom(e.Path, info), tick)
	if changed {
		r.Publisher.Enqueue(rel)
	}
}

func (r *Root) markMissing(rel string) {
	tick := r.Clock.Advance()
	if id, ok := r.dirIDFor(rel); ok {
		r.View.MarkDirMissing(id, tick)
		r.Publisher.Enqueue(rel)
		return
	}
	parentRel := filepath.ToSlash(filepath.Dir(rel))
	name := filepath.Base(rel)
	if parentID, ok := r.dirIDFor(parentRel); ok {
		if r.View.MarkFileMissing(parentID, name, tick) {
			r.Publisher.Enqueue(rel)
		}
	}
}

// enumerateDir enqueues a non-recursive pending entry for every child of
// absDir that the ignore set does not exclude; it does not compare the
// listing against the children already recorded in the view.
func (r *Root) enumerateDir(absDir, relDir string, dirID view.DirID) {
	entries, err := os.ReadDir(absDir)
	if err != nil {
		return
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	now := time.Now()
	for _, name := range names {
		childPath := filepath.Join(absDir, name)
		if r.Ignore.IsIgnored(childPath) {
			continue
		}
		r.Pending.Add(pending.Entry{Path: childPath, Flags: pending.FlagViaNotify, Timestamp: now})
	}
}

func fileInfoFrom(path string, info os.FileInfo) view.FileInfo {
	target := ""
	if info.Mode()&os.ModeSymlink != 0 {
		if t, err := os.Readlink(path); err == nil {
			target = t
		}
	}
	return view.FileInfo{
		Mode:      info.Mode(),
		Size:      info.Size(),
		ModTime:   info.ModTime(),
		SymlinkTo: target,
	}
}

func (r *Root) poison() {
	r.poisoned.Mark()
}

// Poisoned reports whether the root has entered the unrecoverable state.
func (r *Root) Poisoned() bool {
	return r.poisoned.Marked()
}

// Recrawl forces a full re-scan.
func (r *Root) Recrawl() {
	r.View.Recrawl()
	r.Pending.Add(pending.Entry{Path: r.Path, Flags: pending.FlagRecursive | pending.FlagCrawlOnly, Timestamp: time.Now()})
}

// ResolveSince evaluates a since clause against this root's current clock
// state.
func (r *Root) ResolveSince(since clock.Since, process clock.ProcessContext, rootNumber int64) clock.Resolved {
	return clock.Evaluate(since, process, rootNumber, r.Clock.Tick(), r.View.LastAgeOutTick(), r.Cursors)
}
