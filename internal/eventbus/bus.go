// Package eventbus carries dispatch outcomes from the engine to observers
// such as the status endpoint.
//
// Publish never blocks. Subscribers get a buffered channel and drop events
// when they fall behind.
package eventbus

import (
	"sync"
	"time"
)

// Kind names what happened.
type Kind string

const (
	PostPublished   Kind = "post.published"
	PostFailed      Kind = "post.failed"
	PostSkipped     Kind = "post.skipped"
	PostRescheduled Kind = "post.rescheduled"
	ReminderSent    Kind = "reminder.sent"
	ReminderFail    Kind = "reminder.failed"
	TickDone        Kind = "tick.done"
	TickFailed      Kind = "tick.failed"
)

type Event struct {
	Kind   Kind
	At     time.Time
	PostID string
	Err    string
	// Count is a kind-specific number (messages sent, posts handled).
	Count int
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns an in-memory fan-out bus. It owns no goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

// Nop discards everything.
func Nop() Bus { return nopBus{} }

type memBus struct {
	mu   sync.RWMutex
	subs map[uint64]chan Event
	next uint64
}

func (b *memBus) Publish(e Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	b.next++
	id := b.next
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			// Publish holds the read lock while sending, so closing under
			// the write lock cannot race a send.
			b.mu.Lock()
			delete(b.subs, id)
			close(ch)
			b.mu.Unlock()
		})
	}
}

type nopBus struct{}

func (nopBus) Publish(Event) {}

func (nopBus) Subscribe(int) (<-chan Event, func()) {
	ch := make(chan Event)
	close(ch)
	return ch, func() {}
}
