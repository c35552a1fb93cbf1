package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSenderDrainsQueueBeforeStopping(t *testing.T) {
	t.Parallel()
	h := NewHandle("Console [a]", KindSender, nil)
	dst := newRecordingDest()
	for _, id := range []string{"1", "2", "3"} {
		h.Queue().Put(Item{Channel: "c", Publication: pub(id)})
	}
	if err := h.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}

	s := NewSender(h, dst, SenderConfig{Tick: time.Millisecond})
	if err := runWithTimeout(t, s.Run); err != nil {
		t.Fatalf("Run: %v", err)
	}
	got := dst.deliveries()
	if len(got) != 3 || got[0].id != "1" || got[2].id != "3" {
		t.Fatalf("deliveries = %+v", got)
	}
	if !dst.connected || !dst.closed || dst.closedAt != 3 {
		t.Fatalf("connected=%v closed=%v closedAt=%d", dst.connected, dst.closed, dst.closedAt)
	}
}

func TestSenderDropsFailedItem(t *testing.T) {
	t.Parallel()
	h := NewHandle("Console [a]", KindSender, nil)
	dst := newRecordingDest()
	dst.failIDs["bad"] = true
	h.Queue().Put(Item{Channel: "c", Publication: pub("bad")})
	h.Queue().Put(Item{Channel: "c", Publication: pub("good")})
	_ = h.Stop(context.Background())

	s := NewSender(h, dst, SenderConfig{Tick: time.Millisecond})
	if err := runWithTimeout(t, s.Run); err != nil {
		t.Fatalf("Run: %v", err)
	}
	got := dst.deliveries()
	if len(got) != 1 || got[0].id != "good" {
		t.Fatalf("deliveries = %+v", got)
	}
	if s.failed != 1 || s.delivered != 1 {
		t.Fatalf("failed=%d delivered=%d", s.failed, s.delivered)
	}
}

func TestSenderWakesOnPut(t *testing.T) {
	t.Parallel()
	h := NewHandle("Console [a]", KindSender, nil)
	dst := newRecordingDest()
	s := NewSender(h, dst, SenderConfig{Tick: time.Hour})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	h.Queue().Put(Item{Channel: "c", Publication: pub("1")})
	select {
	case <-dst.delivered:
	case <-ctx.Done():
		t.Fatal("sender did not wake up on Put")
	}

	_ = h.Stop(ctx)
	// The stop is only observed after the next wake-up; a put wakes the loop.
	h.Queue().Put(Item{Channel: "c", Publication: pub("2")})
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-ctx.Done():
		t.Fatal("sender did not stop")
	}
	if n := len(dst.deliveries()); n != 2 {
		t.Fatalf("delivered %d, want 2", n)
	}
}

func TestSenderProtocolViolationCloses(t *testing.T) {
	t.Parallel()
	h := NewHandle("Console [a]", KindSender, nil)
	dst := newRecordingDest()
	_ = h.Send(context.Background(), Signal(9))
	s := NewSender(h, dst, SenderConfig{Tick: time.Millisecond})
	err := runWithTimeout(t, s.Run)
	if !errors.Is(err, ErrProtocolViolation) {
		t.Fatalf("Run = %v, want ErrProtocolViolation", err)
	}
	if !dst.closed {
		t.Fatal("destination not closed")
	}
}

type failingConnect struct{ recordingDest }

func (f *failingConnect) Connect(context.Context) error { return errors.New("unauthorized") }

func TestSenderConnectFailureIsFatal(t *testing.T) {
	t.Parallel()
	h := NewHandle("Telegram [bot]", KindSender, nil)
	s := NewSender(h, &failingConnect{}, SenderConfig{Tick: time.Millisecond})
	if err := runWithTimeout(t, s.Run); err == nil {
		t.Fatal("expected connect error")
	}
}

func TestSenderHardAbort(t *testing.T) {
	t.Parallel()
	h := NewHandle("Console [a]", KindSender, nil)
	dst := newRecordingDest()
	s := NewSender(h, dst, SenderConfig{Tick: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("sender ignored cancellation")
	}
	if !dst.closed {
		t.Fatal("destination not closed on abort")
	}
}
