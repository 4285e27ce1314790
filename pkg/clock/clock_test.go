package clock

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestClockStringRoundTrip verifies a rendered clock string parses back to
// the same tuple.
func TestClockStringRoundTrip(t *testing.T) {
	input := "c:1700000000:4242:7:99"
	parsed, err := Parse(input)
	require.NoError(t, err)
	require.False(t, parsed.Legacy)
	assert.Equal(t, input, parsed.Tuple.String())
}

func TestLegacyClockStringIsFreshInstance(t *testing.T) {
	parsed, err := Parse("c:1234:99")
	require.NoError(t, err)
	assert.True(t, parsed.Legacy)

	resolved, err := ResolveClockString("c:1234:99", ProcessContext{StartTime: 1, PID: 1234}, 0, 500, 0)
	require.NoError(t, err)
	assert.True(t, resolved.IsFreshInstance)
}

func TestInvalidClockStringRejected(t *testing.T) {
	for _, s := range []string{"", "nope", "c:", "c:1:2:3", "c:a:b:c:d"} {
		_, err := Parse(s)
		assert.ErrorIs(t, err, ErrInvalidClockString, "input %q", s)
	}
}

func TestTickStrictlyIncreases(t *testing.T) {
	c := New(ProcessContext{StartTime: 1, PID: 1}, 0)
	var last uint64
	for i := 0; i < 100; i++ {
		next := c.Advance()
		assert.Greater(t, next, last)
		last = next
	}
}

func TestCursorEvaluateSetsAndReturnsPrevious(t *testing.T) {
	table := NewCursorTable()
	prev, existed := table.Evaluate("build", 10)
	assert.False(t, existed)
	assert.Equal(t, uint64(0), prev)

	got, ok := table.Peek("build")
	require.True(t, ok)
	assert.Equal(t, uint64(10), got)

	prev, existed = table.Evaluate("build", 25)
	assert.True(t, existed)
	assert.Equal(t, uint64(10), prev)
}

// TestFreshRootYieldsFreshInstance verifies a cursor used against a fresh
// root (never-queried) yields is_fresh_instance.
func TestFreshRootYieldsFreshInstance(t *testing.T) {
	table := NewCursorTable()
	process := ProcessContext{StartTime: 1, PID: 1}
	resolved := Evaluate(Since{Kind: SinceCursor, Cursor: "never-seen"}, process, 0, 42, 0, table)
	assert.True(t, resolved.IsFreshInstance)
}

func TestClockMatchingProcessAndRootUsesTicks(t *testing.T) {
	process := ProcessContext{StartTime: 100, PID: 55}
	spec := Since{Kind: SinceClock, Clock: Tuple{StartTime: 100, PID: 55, RootNumber: 3, Tick: 20}}
	resolved := Evaluate(spec, process, 3, 50, 0, nil)
	assert.False(t, resolved.IsFreshInstance)
	assert.Equal(t, uint64(20), resolved.Ticks)
}

func TestClockFromDifferentProcessIsFreshInstance(t *testing.T) {
	process := ProcessContext{StartTime: 100, PID: 55}
	spec := Since{Kind: SinceClock, Clock: Tuple{StartTime: 1, PID: 2, RootNumber: 3, Tick: 20}}
	resolved := Evaluate(spec, process, 3, 50, 0, nil)
	assert.True(t, resolved.IsFreshInstance)
}

func TestClockBeforeLastAgeOutIsFreshInstance(t *testing.T) {
	process := ProcessContext{StartTime: 100, PID: 55}
	spec := Since{Kind: SinceClock, Clock: Tuple{StartTime: 100, PID: 55, RootNumber: 3, Tick: 5}}
	resolved := Evaluate(spec, process, 3, 50, 10, nil)
	assert.True(t, resolved.IsFreshInstance)
}
