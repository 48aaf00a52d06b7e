package eventbus

import (
	"testing"
)

func TestFanOut(t *testing.T) {
	t.Parallel()

	b := New()
	a, unsubA := b.Subscribe(4)
	c, unsubC := b.Subscribe(4)
	defer unsubC()

	b.Publish(Event{Kind: PostPublished, PostID: "p1"})

	for _, ch := range []<-chan Event{a, c} {
		e := <-ch
		if e.Kind != PostPublished || e.PostID != "p1" || e.At.IsZero() {
			t.Fatalf("unexpected event: %+v", e)
		}
	}

	unsubA()
	unsubA()
	if _, ok := <-a; ok {
		t.Fatalf("channel should be closed after unsubscribe")
	}
	b.Publish(Event{Kind: PostFailed})
	if e := <-c; e.Kind != PostFailed {
		t.Fatalf("remaining subscriber missed event: %+v", e)
	}
}

func TestPublishDropsWhenFull(t *testing.T) {
	t.Parallel()

	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	b.Publish(Event{Kind: TickDone, Count: 1})
	b.Publish(Event{Kind: TickDone, Count: 2})

	if e := <-ch; e.Count != 1 {
		t.Fatalf("got %+v", e)
	}
	select {
	case e := <-ch:
		t.Fatalf("expected drop, got %+v", e)
	default:
	}
}

func TestNop(t *testing.T) {
	t.Parallel()
	b := Nop()
	b.Publish(Event{Kind: TickDone})
	ch, unsub := b.Subscribe(1)
	unsub()
	if _, ok := <-ch; ok {
		t.Fatalf("nop channel should be closed")
	}
}
