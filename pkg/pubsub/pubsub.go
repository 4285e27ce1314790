// Package pubsub implements a unilateral-notification publisher/subscriber:
// an append-only item queue fanned out to subscribers that each track
// their own delivery cursor.
//
// The core problem is waking waiters on a monotonically increasing index
// under a mutex, generalized from "wake pollers on any index change" to
// "append an item, hand each subscriber its own undelivered slice, and
// garbage-collect items every subscriber has consumed". The notifier
// callback is exposed as a closure since subscribers are externally
// registered rather than code that blocks in the same process.
package pubsub

import (
	"sync"
)

// Item is an opaque published value (a JSON-shaped value).
type Item interface{}

// Notifier is called after an item is enqueued, once per subscriber. A
// subscriber registered with a nil Notifier is a pull-only consumer: it
// must call GetPending itself on whatever schedule it likes.
type Notifier func()

type subscriber struct {
	nextIndex int
	notify    Notifier
}

// Publisher holds an append-only queue of published items and the set of
// registered subscribers.
type Publisher struct {
	mu          sync.Mutex
	items       []Item
	baseIndex   int // items[0] corresponds to this absolute index
	subscribers map[*subscriber]bool
}

// New creates an empty Publisher.
func New() *Publisher {
	return &Publisher{subscribers: make(map[*subscriber]bool)}
}

// Subscription is an opaque handle a caller uses to fetch pending items and
// eventually unsubscribe.
type Subscription struct {
	pub *Publisher
	sub *subscriber
}

// Subscribe registers a new subscriber starting from the current queue tail
// (it will not see items published before this call). notify may be nil for
// a pull-only consumer.
func (p *Publisher) Subscribe(notify Notifier) *Subscription {
	p.mu.Lock()
	defer p.mu.Unlock()
	sub := &subscriber{nextIndex: p.baseIndex + len(p.items), notify: notify}
	p.subscribers[sub] = true
	return &Subscription{pub: p, sub: sub}
}

// Unsubscribe removes the subscription. Outstanding items only it had not
// yet consumed become eligible for garbage collection.
func (s *Subscription) Unsubscribe() {
	s.pub.mu.Lock()
	defer s.pub.mu.Unlock()
	delete(s.pub.subscribers, s.sub)
	s.pub.gcLocked()
}

// Enqueue appends item to the queue and notifies every subscriber with a
// non-nil Notifier.
func (p *Publisher) Enqueue(item Item) {
	p.mu.Lock()
	p.items = append(p.items, item)
	notifiers := make([]Notifier, 0, len(p.subscribers))
	for sub := range p.subscribers {
		if sub.notify != nil {
			notifiers = append(notifiers, sub.notify)
		}
	}
	p.mu.Unlock()

	for _, n := range notifiers {
		n()
	}
}

// GetPending atomically moves every item the subscription has not yet seen
// into out (appending), advancing its delivery cursor.
func (s *Subscription) GetPending(out []Item) []Item {
	s.pub.mu.Lock()
	defer s.pub.mu.Unlock()

	start := s.sub.nextIndex - s.pub.baseIndex
	if start < 0 {
		start = 0
	}
	if start < len(s.pub.items) {
		out = append(out, s.pub.items[start:]...)
	}
	s.sub.nextIndex = s.pub.baseIndex + len(s.pub.items)
	s.pub.gcLocked()
	return out
}

// gcLocked drops items from the front of the queue that every current
// subscriber has already consumed.
func (p *Publisher) gcLocked() {
	if len(p.subscribers) == 0 {
		p.baseIndex += len(p.items)
		p.items = p.items[:0]
		return
	}

	min := -1
	for sub := range p.subscribers {
		if min == -1 || sub.nextIndex < min {
			min = sub.nextIndex
		}
	}
	drop := min - p.baseIndex
	if drop <= 0 {
		return
	}
	if drop > len(p.items) {
		drop = len(p.items)
	}
	p.items = p.items[drop:]
	p.baseIndex += drop
}

// Len returns the number of items currently retained (not yet
// garbage-collected), for diagnostics.
func (p *Publisher) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.items)
}
