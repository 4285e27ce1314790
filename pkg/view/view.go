// Package view implements the per-root in-memory tree: directory and file
// nodes stamped with logical ticks, age-out of deleted nodes, and recrawl
// bookkeeping.
//
// A tree modeled as a pure recursive value (an Entry with a Contents map of
// child Entry values) is perfectly fine for an immutable snapshot rebuilt
// on every scan. This view is mutated in place by a live crawler and needs
// parent back-references for O(1) ancestor walks (age-out, tick
// propagation), which a cyclic value type cannot express in Go without
// pointers the garbage collector can't reason about cleanly. Directories
// live in an arena keyed by dirID and reference their parent by ID rather
// than by pointer, breaking the cycle at the type level; file nodes are
// owned directly by their parent directory and hold a non-owning parent ID
// of their own.
package view

import (
	"os"
	"sync"
	"time"
)

// dirID identifies a directory node within a View's arena.
type dirID uint64

// DirID is the exported alias callers outside this package use to hold a
// directory identifier returned by RootID/EnsureChildDir, without this
// package needing to expose arena internals.
type DirID = dirID

// rootDirID is the identifier of the root directory, always present.
const rootDirID dirID = 0

// FileInfo captures the subset of stat(2) metadata a file node carries.
type FileInfo struct {
	Mode       os.FileMode
	Size       int64
	UID, GID   uint32
	Dev, Ino   uint64
	Nlink      uint64
	ModTime    time.Time
	ChangeTime time.Time
	SymlinkTo  string
}

// File is a single file-node entry in the view.
type File struct {
	Name   string
	Parent dirID

	Info FileInfo

	// Exists reports whether the node currently corresponds to an item on
	// disk; nodes are not deleted immediately on removal (see age-out).
	Exists bool

	CtimeTick   uint64 // tick of last existence change
	OtimeTick   uint64 // tick of last observation/change of any kind
	ContentTick uint64 // tick of last size/mtime change
	Oclock      uint64 // tick at which the crawler last touched this entry
}

// Directory is a single directory node in the view's arena.
type Directory struct {
	id     dirID
	Name   string
	Parent dirID
	isRoot bool

	Files       map[string]*File
	Directories map[string]dirID

	Exists    bool
	Tick      uint64 // tick of last structural change
	OtimeTick uint64

	// needsRestat is set by a recrawl and cleared once the crawler has
	// re-verified this node against the filesystem.
	needsRestat bool
}

// View is a single root's in-memory tree, stamped with the root's
// logical clock ticks. It is safe for concurrent use.
type View struct {
	mu   sync.RWMutex
	next dirID
	dirs map[dirID]*Directory

	// ageOutThreshold bounds how many ticks a !exists node survives before
	// it is pruned from the tree.
	ageOutThreshold uint64
	lastAgeOutTick  uint64
}

// New creates a View with a single, existing root directory.
func New(ageOutThreshold uint64) *View {
	v := &View{
		dirs:            make(map[dirID]*Directory),
		ageOutThreshold: ageOutThreshold,
	}
	v.dirs[rootDirID] = &Directory{
		id:          rootDirID,
		Parent:      rootDirID,
		isRoot:      true,
		Files:       make(map[string]*File),
		Directories: make(map[string]dirID),
		Exists:      true,
	}
	v.next = rootDirID + 1
	return v
}

// RootID returns the identifier of the root directory.
func (v *View) RootID() dirID { return rootDirID }

// Directory returns the directory node itself, not a copy: its fields and
// child maps are shared with the view. The returned pointer must not be
// mutated by the caller.
func (v *View) Directory(id dirID) (*Directory, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	d, ok := v.dirs[id]
	return d, ok
}

// EnsureChildDir creates (if absent) a child directory named name under
// parent, returning its id. Creation bumps the parent's structural tick.
func (v *View) EnsureChildDir(parent dirID, name string, tick uint64) dirID {
	v.mu.Lock()
	defer v.mu.Unlock()
	p, ok := v.dirs[parent]
	if !ok {
		return 0
	}
	if id, exists := p.Directories[name]; exists {
		return id
	}
	id := v.next
	v.next++
	v.dirs[id] = &Directory{
		id:          id,
		Name:        name,
		Parent:      parent,
		Files:       make(map[string]*File),
		Directories: make(map[string]dirID),
		Exists:      true,
		Tick:        tick,
		OtimeTick:   tick,
	}
	p.Directories[name] = id
	p.Tick = tick
	p.OtimeTick = tick
	return id
}

// UpsertFile records a file observation under parent, creating the node
// if absent and updating its tick stamps: any mutation sets
// otime_tick = ++root.tick. changed reports
// whether the stat metadata actually differs from what was recorded,
// so callers can decide whether to publish a notification.
func (v *View) UpsertFile(parent dirID, name string, info FileInfo, tick uint64) (changed bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	p, ok := v.dirs[parent]
	if !ok {
		return false
	}

	f, existed := p.Files[name]
	if !existed {
		f = &File{Name: name, Parent: parent}
		p.Files[name] = f
	}

	existenceChanged := !f.Exists
	contentChanged := !existed || f.Info.Size != info.Size || !f.Info.ModTime.Equal(info.ModTime)

	f.Info = info
	f.Exists = true
	f.OtimeTick = tick
	f.Oclock = tick
	if existenceChanged {
		f.CtimeTick = tick
	}
	if contentChanged {
		f.ContentTick = tick
	}

	return existenceChanged || contentChanged
}

// MarkFileMissing marks a file node as no longer existing (stat failed
// with ENOENT). Returns false if the node was already marked missing (a
// no-op mutation is not reported).
func (v *View) MarkFileMissing(parent dirID, name string, tick uint64) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	p, ok := v.dirs[parent]
	if !ok {
		return false
	}
	f, ok := p.Files[name]
	if !ok || !f.Exists {
		return false
	}
	f.Exists = false
	f.CtimeTick = tick
	f.OtimeTick = tick
	f.Oclock = tick
	return true
}

// MarkDirMissing marks a directory and, recursively, all of its known
// children as no longer existing: if the node is a directory, mark all
// children !exists recursively.
func (v *View) MarkDirMissing(id dirID, tick uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.markDirMissingLocked(id, tick)
}

func (v *View) markDirMissingLocked(id dirID, tick uint64) {
	d, ok := v.dirs[id]
	if !ok || !d.Exists {
		return
	}
	d.Exists = false
	d.Tick = tick
	d.OtimeTick = tick
	for name, f := range d.Files {
		if f.Exists {
			f.Exists = false
			f.CtimeTick = tick
			f.OtimeTick = tick
			f.Oclock = tick
		}
		_ = name
	}
	for _, childID := range d.Directories {
		v.markDirMissingLocked(childID, tick)
	}
}

// ChildNames returns the file and directory names currently recorded
// under id, for the crawler to diff against a fresh readdir listing.
func (v *View) ChildNames(id dirID) (files []string, dirs []string) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	d, ok := v.dirs[id]
	if !ok {
		return nil, nil
	}
	for name := range d.Files {
		files = append(files, name)
	}
	for name := range d.Directories {
		dirs = append(dirs, name)
	}
	return files, dirs
}

// RemoveFile deletes a file node from the arena outright, used once a
// missing node has aged out rather than merely being marked missing.
func (v *View) RemoveFile(parent dirID, name string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if p, ok := v.dirs[parent]; ok {
		delete(p.Files, name)
	}
}

// RemoveDir deletes a directory node, and its arena entry, from the
// tree. The caller must have already emptied or aged out its children.
func (v *View) RemoveDir(id dirID) {
	v.mu.Lock()
	defer v.mu.Unlock()
	d, ok := v.dirs[id]
	if !ok {
		return
	}
	if p, ok := v.dirs[d.Parent]; ok && !d.isRoot {
		delete(p.Directories, d.Name)
	}
	delete(v.dirs, id)
}

// AgeOut sweeps the entire tree for !exists nodes whose otime_tick is
// older than currentTick - ageOutThreshold, removing them from the
// arena and recording the current tick as the view's last age-out
// tick.
func (v *View) AgeOut(currentTick uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()

	var floor uint64
	if currentTick > v.ageOutThreshold {
		floor = currentTick - v.ageOutThreshold
	}

	v.ageOutDirLocked(rootDirID, floor)
	v.lastAgeOutTick = currentTick
}

func (v *View) ageOutDirLocked(id dirID, floor uint64) {
	d, ok := v.dirs[id]
	if !ok {
		return
	}
	for name, f := range d.Files {
		if !f.Exists && f.OtimeTick < floor {
			delete(d.Files, name)
		}
	}
	for name, childID := range d.Directories {
		v.ageOutDirLocked(childID, floor)
		child := v.dirs[childID]
		if child != nil && !child.Exists && child.OtimeTick < floor &&
			len(child.Files) == 0 && len(child.Directories) == 0 {
			delete(d.Directories, name)
			delete(v.dirs, childID)
		}
	}
}

// LastAgeOutTick returns the tick recorded at the most recent AgeOut
// sweep, used by since-evaluation to detect stale cursors.
func (v *View) LastAgeOutTick() uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.lastAgeOutTick
}

// Recrawl marks every directory in the tree as needing a fresh stat: a
// full walk re-asserts the truth. The clock's tick is not reset; callers
// must still bump it normally as the recrawl's stats surface real
// mutations.
func (v *View) Recrawl() {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, d := range v.dirs {
		d.needsRestat = true
	}
}

// NeedsRestat reports and clears the recrawl flag for a directory.
func (v *View) NeedsRestat(id dirID) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	d, ok := v.dirs[id]
	if !ok {
		return false
	}
	needed := d.needsRestat
	d.needsRestat = false
	return needed
}
