package timerqueue

import (
	"testing"
	"time"
)

func TestPopDueOrdersByTimeThenSequence(t *testing.T) {
	q := New()
	base := time.Date(2024, 1, 1, 7, 0, 0, 0, time.UTC)
	q.Schedule(base.Add(3*time.Minute), "a", "third", nil)
	q.Schedule(base.Add(time.Minute), "b", "first", nil)
	q.Schedule(base.Add(time.Minute), "c", "second", nil)
	q.Schedule(base.Add(time.Hour), "d", "later", nil)

	if at, ok := q.Next(); !ok || !at.Equal(base.Add(time.Minute)) {
		t.Fatalf("Next = %v, %v", at, ok)
	}

	due := q.PopDue(base.Add(5 * time.Minute))
	if len(due) != 3 {
		t.Fatalf("PopDue returned %d tasks, want 3", len(due))
	}
	for i, want := range []string{"first", "second", "third"} {
		if due[i].Name != want {
			t.Fatalf("due[%d] = %s, want %s", i, due[i].Name, want)
		}
	}
	if q.Len() != 1 {
		t.Fatalf("Len = %d, want 1", q.Len())
	}
	if len(q.PopDue(base)) != 0 {
		t.Fatal("nothing should be due yet")
	}
}

func TestCancel(t *testing.T) {
	q := New()
	now := time.Now()
	h1 := q.Schedule(now, "u1", "x", nil)
	h2 := q.Schedule(now.Add(time.Second), "u1", "y", nil)
	q.Schedule(now.Add(2*time.Second), "u2", "z", nil)

	if !q.Cancel(h1) {
		t.Fatal("Cancel h1 = false")
	}
	if q.Cancel(h1) {
		t.Fatal("second Cancel h1 = true")
	}
	if q.Pending("u1") != 1 {
		t.Fatalf("Pending(u1) = %d", q.Pending("u1"))
	}

	if n := q.CancelKey("u1"); n != 1 {
		t.Fatalf("CancelKey = %d, want 1", n)
	}
	if q.Cancel(h2) {
		t.Fatal("h2 should already be gone")
	}

	due := q.PopDue(now.Add(time.Minute))
	if len(due) != 1 || due[0].Key != "u2" {
		t.Fatalf("remaining = %+v", due)
	}
	if _, ok := q.Next(); ok {
		t.Fatal("queue should be empty")
	}
}

func TestCancelAfterPopIsNoop(t *testing.T) {
	q := New()
	now := time.Now()
	h := q.Schedule(now, "u1", "x", nil)
	if len(q.PopDue(now)) != 1 {
		t.Fatal("task not due")
	}
	if q.Cancel(h) {
		t.Fatal("Cancel after pop = true")
	}
}
