package pubsub

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscriberOnlySeesItemsAfterSubscribing(t *testing.T) {
	p := New()
	p.Enqueue("before")

	sub := p.Subscribe(nil)
	p.Enqueue("after")

	pending := sub.GetPending(nil)
	assert.Equal(t, []Item{"after"}, pending)
}

func TestNotifierCalledOnEnqueue(t *testing.T) {
	p := New()
	var calls int32
	p.Subscribe(func() { atomic.AddInt32(&calls, 1) })

	p.Enqueue("a")
	p.Enqueue("b")

	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestPullOnlySubscriberHasNoNotifier(t *testing.T) {
	p := New()
	sub := p.Subscribe(nil)
	p.Enqueue("a")

	pending := sub.GetPending(nil)
	require.Len(t, pending, 1)
	assert.Equal(t, "a", pending[0])
}

func TestGetPendingAdvancesCursor(t *testing.T) {
	p := New()
	sub := p.Subscribe(nil)
	p.Enqueue("a")
	first := sub.GetPending(nil)
	require.Len(t, first, 1)

	second := sub.GetPending(nil)
	assert.Empty(t, second, "items already delivered must not be redelivered")
}

func TestGarbageCollectionDropsFullyConsumedItems(t *testing.T) {
	p := New()
	sub1 := p.Subscribe(nil)
	sub2 := p.Subscribe(nil)

	p.Enqueue("a")
	assert.Equal(t, 1, p.Len())

	sub1.GetPending(nil)
	assert.Equal(t, 1, p.Len(), "item must be retained until every subscriber has consumed it")

	sub2.GetPending(nil)
	assert.Equal(t, 0, p.Len(), "item is garbage collected once all subscribers consumed it")
}

func TestUnsubscribeAllowsGarbageCollection(t *testing.T) {
	p := New()
	sub1 := p.Subscribe(nil)
	sub2 := p.Subscribe(nil)

	p.Enqueue("a")
	sub1.GetPending(nil)
	assert.Equal(t, 1, p.Len())

	sub2.Unsubscribe()
	assert.Equal(t, 0, p.Len())
}

func TestMultipleSubscribersEachGetFullBacklog(t *testing.T) {
	p := New()
	sub1 := p.Subscribe(nil)
	sub2 := p.Subscribe(nil)

	p.Enqueue("a")
	p.Enqueue("b")

	pending1 := sub1.GetPending(nil)
	pending2 := sub2.GetPending(nil)
	assert.Equal(t, pending1, pending2)
	assert.Equal(t, []Item{"a", "b"}, pending1)
}
