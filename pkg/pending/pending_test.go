package pending

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecursiveAncestorAbsorbsDescendant(t *testing.T) {
	s := New()
	now := time.Now()
	s.Add(Entry{Path: "/root/dir", Flags: FlagRecursive, Timestamp: now})
	s.Add(Entry{Path: "/root/dir/child.txt", Flags: FlagViaNotify, Timestamp: now})

	entries := s.Drain()
	require.Len(t, entries, 1)
	assert.Equal(t, "/root/dir", entries[0].Path)
}

func TestNewRecursiveEntryRemovesExistingDescendants(t *testing.T) {
	s := New()
	now := time.Now()
	s.Add(Entry{Path: "/root/dir/child.txt", Flags: FlagViaNotify, Timestamp: now})
	s.Add(Entry{Path: "/root/dir/other.txt", Flags: FlagViaNotify, Timestamp: now})
	s.Add(Entry{Path: "/root/dir", Flags: FlagRecursive, Timestamp: now})

	entries := s.Drain()
	require.Len(t, entries, 1)
	assert.Equal(t, "/root/dir", entries[0].Path)
}

func TestSamePathEntriesOrCombineFlagsAndKeepEarliestTimestamp(t *testing.T) {
	s := New()
	t1 := time.Now()
	t2 := t1.Add(time.Second)
	s.Add(Entry{Path: "/root/file", Flags: FlagViaNotify, Timestamp: t2})
	s.Add(Entry{Path: "/root/file", Flags: FlagIsNew, Timestamp: t1})

	entries := s.Drain()
	require.Len(t, entries, 1)
	assert.Equal(t, FlagViaNotify|FlagIsNew, entries[0].Flags)
	assert.True(t, entries[0].Timestamp.Equal(t1))
}

func TestDrainIsAtomicAndEmptiesSet(t *testing.T) {
	s := New()
	s.Add(Entry{Path: "/a", Timestamp: time.Now()})
	first := s.Drain()
	require.Len(t, first, 1)

	second := s.Drain()
	assert.Empty(t, second)
}

// TestCoalescingIsIdempotent verifies the round-trip law: inserting the
// same entry twice is observationally equivalent to inserting it once.
func TestCoalescingIsIdempotent(t *testing.T) {
	now := time.Now()
	entry := Entry{Path: "/root/file", Flags: FlagViaNotify, Timestamp: now}

	once := New()
	once.Add(entry)

	twice := New()
	twice.Add(entry)
	twice.Add(entry)

	assert.Equal(t, once.Drain(), twice.Drain())
}

func TestUnrelatedSiblingPathsDoNotAbsorbEachOther(t *testing.T) {
	s := New()
	now := time.Now()
	s.Add(Entry{Path: "/root/dir1", Flags: FlagRecursive, Timestamp: now})
	s.Add(Entry{Path: "/root/dir10/file.txt", Flags: FlagViaNotify, Timestamp: now})

	entries := s.Drain()
	require.Len(t, entries, 2, "dir10 is not a descendant of dir1 despite the string prefix")
}

func TestAddAllPreservesCoalescing(t *testing.T) {
	s := New()
	now := time.Now()
	s.AddAll([]Entry{
		{Path: "/root/dir", Flags: FlagRecursive, Timestamp: now},
		{Path: "/root/dir/a", Flags: FlagViaNotify, Timestamp: now},
		{Path: "/root/dir/b", Flags: FlagViaNotify, Timestamp: now},
	})
	entries := s.Drain()
	require.Len(t, entries, 1)
	assert.Equal(t, "/root/dir", entries[0].Path)
}
