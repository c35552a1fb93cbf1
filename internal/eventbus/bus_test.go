package eventbus

import "testing"

func TestPublishFansOutAndDropsWhenFull(t *testing.T) {
	t.Parallel()
	b := New()
	a, unsubA := b.Subscribe(1)
	defer unsubA()
	c, unsubC := b.Subscribe(4)
	defer unsubC()

	b.Publish(Event{Type: TypeTaskState, Task: "t", State: "Ready"})
	b.Publish(Event{Type: TypeTaskState, Task: "t", State: "Stopped"})

	if got := len(a); got != 1 {
		t.Fatalf("subscriber with buffer 1 holds %d events, want 1", got)
	}
	if got := len(c); got != 2 {
		t.Fatalf("subscriber with buffer 4 holds %d events, want 2", got)
	}
	e := <-c
	if e.Time.IsZero() {
		t.Fatal("event time not stamped")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()
	unsub()
	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel")
	}
	// Publishing after unsubscribe must not panic.
	b.Publish(Event{Type: TypeDelivery})
}
