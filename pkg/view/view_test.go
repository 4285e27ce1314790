package view

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertFileCreatesAndStampsTicks(t *testing.T) {
	v := New(100)
	changed := v.UpsertFile(v.RootID(), "a.txt", FileInfo{Size: 10}, 1)
	assert.True(t, changed, "first observation of a new file is a change")

	files, _ := v.ChildNames(v.RootID())
	assert.Equal(t, []string{"a.txt"}, files)
}

func TestUpsertFileNoChangeWhenMetadataIdentical(t *testing.T) {
	v := New(100)
	mtime := time.Now()
	v.UpsertFile(v.RootID(), "a.txt", FileInfo{Size: 10, ModTime: mtime}, 1)
	changed := v.UpsertFile(v.RootID(), "a.txt", FileInfo{Size: 10, ModTime: mtime}, 2)
	assert.False(t, changed, "re-observing identical metadata is not a content change")
}

func TestUpsertFileDetectsSizeChange(t *testing.T) {
	v := New(100)
	v.UpsertFile(v.RootID(), "a.txt", FileInfo{Size: 10}, 1)
	changed := v.UpsertFile(v.RootID(), "a.txt", FileInfo{Size: 20}, 2)
	assert.True(t, changed)
}

func TestMarkFileMissingSetsExistsFalse(t *testing.T) {
	v := New(100)
	v.UpsertFile(v.RootID(), "a.txt", FileInfo{Size: 1}, 1)
	ok := v.MarkFileMissing(v.RootID(), "a.txt", 2)
	require.True(t, ok)

	ok = v.MarkFileMissing(v.RootID(), "a.txt", 3)
	assert.False(t, ok, "marking an already-missing file again is a no-op")
}

func TestMarkDirMissingRecursesToChildren(t *testing.T) {
	v := New(100)
	sub := v.EnsureChildDir(v.RootID(), "sub", 1)
	v.UpsertFile(sub, "child.txt", FileInfo{Size: 1}, 2)

	v.MarkDirMissing(sub, 3)

	d, ok := v.Directory(sub)
	require.True(t, ok)
	assert.False(t, d.Exists)
	assert.False(t, d.Files["child.txt"].Exists)
}

func TestAgeOutRemovesOldMissingNodes(t *testing.T) {
	v := New(5)
	v.UpsertFile(v.RootID(), "a.txt", FileInfo{Size: 1}, 1)
	v.MarkFileMissing(v.RootID(), "a.txt", 2)

	// Not yet past the threshold.
	v.AgeOut(5)
	files, _ := v.ChildNames(v.RootID())
	assert.Contains(t, files, "a.txt")

	// Now well past it.
	v.AgeOut(100)
	files, _ = v.ChildNames(v.RootID())
	assert.NotContains(t, files, "a.txt")
	assert.Equal(t, uint64(100), v.LastAgeOutTick())
}

func TestRecrawlFlagsEveryDirectoryAndClearsOnRead(t *testing.T) {
	v := New(100)
	sub := v.EnsureChildDir(v.RootID(), "sub", 1)

	v.Recrawl()
	assert.True(t, v.NeedsRestat(v.RootID()))
	assert.True(t, v.NeedsRestat(sub))

	// Flag is cleared once read.
	assert.False(t, v.NeedsRestat(v.RootID()))
}

func TestEnsureChildDirIsIdempotent(t *testing.T) {
	v := New(100)
	id1 := v.EnsureChildDir(v.RootID(), "sub", 1)
	id2 := v.EnsureChildDir(v.RootID(), "sub", 2)
	assert.Equal(t, id1, id2)
}
