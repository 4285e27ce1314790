package lru

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestErrorTTLEviction verifies capacity 5, errorTTL 1s, six failing fills
// at now+1ms..now+6ms leave exactly 5 entries, and a Set a little over a
// second after the first failure succeeds and is retrievable.
func TestErrorTTLEviction(t *testing.T) {
	c := New(5, time.Second)
	base := time.Unix(0, 0)

	for i := 1; i <= 6; i++ {
		key := fmt.Sprintf("k%d", i)
		_, err := c.GetOrFill(key, func() (interface{}, error) {
			return nil, assert.AnError
		}, base.Add(time.Duration(i)*time.Millisecond))
		require.Error(t, err)
	}
	assert.Equal(t, 5, c.Size())

	c.Set("k1", "v1", base.Add(1001*time.Millisecond))
	got, ok := c.Get("k1")
	require.True(t, ok)
	assert.Equal(t, "v1", got)
}

func TestEvictionIsLeastRecentlyUsed(t *testing.T) {
	c := New(2, time.Second)
	now := time.Now()
	c.Set("a", 1, now)
	c.Set("b", 2, now)
	_, _ = c.Get("a") // touch a, making b the LRU entry
	c.Set("c", 3, now)

	_, ok := c.Get("b")
	assert.False(t, ok, "b should have been evicted as least-recently-used")
	_, ok = c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
	assert.LessOrEqual(t, c.Size(), 2)
}

func TestConcurrentFillersShareOneFill(t *testing.T) {
	c := New(10, time.Second)
	var calls int32
	getter := func() (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(10 * time.Millisecond)
		return "value", nil
	}

	var wg sync.WaitGroup
	results := make([]interface{}, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.GetOrFill("shared", getter, time.Now())
			require.NoError(t, err)
			results[i] = v
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for _, r := range results {
		assert.Equal(t, "value", r)
	}
}

func TestMismatchedFillerForPendingKeyIsAnError(t *testing.T) {
	c := New(10, time.Second)
	release := make(chan struct{})
	getterA := func() (interface{}, error) {
		<-release
		return "a", nil
	}
	getterB := func() (interface{}, error) {
		return "b", nil
	}

	done := make(chan struct{})
	go func() {
		_, _ = c.GetOrFill("key", getterA, time.Now())
		close(done)
	}()
	time.Sleep(5 * time.Millisecond)

	_, err := c.GetOrFill("key", getterB, time.Now())
	assert.ErrorIs(t, err, ErrFillerMismatch)

	close(release)
	<-done
}

func TestCapacityNeverExceeded(t *testing.T) {
	c := New(3, time.Second)
	now := time.Now()
	for i := 0; i < 100; i++ {
		c.Set(fmt.Sprintf("k%d", i), i, now)
		assert.LessOrEqual(t, c.Size(), 3)
	}
}
