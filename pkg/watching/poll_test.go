package watching

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wisprd/wisp/pkg/pending"
)

func TestPollDriverDetectsNewFile(t *testing.T) {
	dir := t.TempDir()
	d := NewPollDriver(time.Second)
	ok, err := d.Start(dir)
	require.NoError(t, err)
	require.True(t, ok)

	set := pending.New()
	produced, err := d.ConsumeNotify(dir, set)
	require.NoError(t, err)
	assert.True(t, produced, "the first poll has no previous snapshot and reports the root directory")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0600))

	produced, err = d.ConsumeNotify(dir, set)
	require.NoError(t, err)
	assert.True(t, produced)
	assert.Equal(t, 1, set.Len())
}

func TestPollDriverDetectsRemoval(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0600))

	d := NewPollDriver(time.Second)
	_, _ = d.Start(dir)
	set := pending.New()
	_, err := d.ConsumeNotify(dir, set)
	require.NoError(t, err)

	require.NoError(t, os.Remove(path))
	produced, err := d.ConsumeNotify(dir, set)
	require.NoError(t, err)
	assert.True(t, produced)
}

func TestPollDriverFlagsAreEmpty(t *testing.T) {
	d := NewPollDriver(time.Second)
	assert.Equal(t, Flags(0), d.Flags())
}

func TestWaitNotifyTimesOutWithoutSignal(t *testing.T) {
	d := NewPollDriver(time.Second)
	start := time.Now()
	ok := d.WaitNotify(20 * time.Millisecond)
	assert.False(t, ok)
	assert.WithinDuration(t, start.Add(20*time.Millisecond), time.Now(), 50*time.Millisecond)
}

func TestSignalThreadsWakesWaitNotify(t *testing.T) {
	d := NewPollDriver(time.Second)
	done := make(chan bool, 1)
	go func() { done <- d.WaitNotify(5 * time.Second) }()
	time.Sleep(10 * time.Millisecond)
	d.SignalThreads()
	select {
	case ok := <-done:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("WaitNotify did not wake on SignalThreads")
	}
}
