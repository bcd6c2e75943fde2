package dispatch

import (
	"context"
	"math/rand/v2"
	"testing"
	"time"

	"greetbot/internal/timerqueue"
	logx "greetbot/pkg/logx"
)

func newDispatcher(seed uint64) (*Dispatcher, *timerqueue.Queue) {
	q := timerqueue.New()
	return New(q, rand.New(rand.NewPCG(seed, seed)), logx.Nop()), q
}

func TestJitterBounds(t *testing.T) {
	d, _ := newDispatcher(1)
	for _, max := range []time.Duration{time.Nanosecond, 5 * time.Minute, time.Hour, 2 * time.Hour} {
		for i := 0; i < 500; i++ {
			got := d.Jitter(max)
			if got < 0 || got >= max {
				t.Fatalf("Jitter(%v) = %v out of [0, %v)", max, got, max)
			}
		}
	}
	if got := d.Jitter(0); got != 0 {
		t.Fatalf("Jitter(0) = %v", got)
	}
	if got := d.Jitter(-time.Second); got != 0 {
		t.Fatalf("Jitter(-1s) = %v", got)
	}
}

func TestDispatchRunsOnceAtDelay(t *testing.T) {
	d, q := newDispatcher(2)
	now := time.Date(2024, 3, 1, 7, 0, 0, 0, time.UTC)
	runs := 0
	_, delay := d.Dispatch(now, "u1", "morning", time.Hour, func(context.Context, time.Time) error {
		runs++
		return nil
	})

	if at, ok := q.Next(); !ok || !at.Equal(now.Add(delay)) {
		t.Fatalf("Next = %v, want %v", at, now.Add(delay))
	}
	for _, task := range q.PopDue(now.Add(time.Hour)) {
		_ = task.Run(context.Background(), now.Add(time.Hour))
	}
	if runs != 1 {
		t.Fatalf("runs = %d, want 1", runs)
	}
	if len(q.PopDue(now.Add(24*time.Hour))) != 0 {
		t.Fatal("job scheduled more than once")
	}
}

func TestCancelRecipient(t *testing.T) {
	d, q := newDispatcher(3)
	now := time.Now()
	noop := func(context.Context, time.Time) error { return nil }
	d.Dispatch(now, "u1", "morning", time.Hour, noop)
	d.Dispatch(now, "u1", "evening", 2*time.Hour, noop)
	d.Dispatch(now, "u2", "morning", time.Hour, noop)

	if d.Pending("u1") != 2 {
		t.Fatalf("Pending(u1) = %d", d.Pending("u1"))
	}
	if n := d.CancelRecipient("u1"); n != 2 {
		t.Fatalf("CancelRecipient = %d, want 2", n)
	}
	if d.Pending("u1") != 0 || d.Pending("u2") != 1 || q.Len() != 1 {
		t.Fatalf("after cancel: u1=%d u2=%d len=%d", d.Pending("u1"), d.Pending("u2"), q.Len())
	}
}
