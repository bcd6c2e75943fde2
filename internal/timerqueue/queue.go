// Package timerqueue is a priority queue of due tasks with cancellable
// handles. It does not run anything on its own: the owner asks for the next
// due time, arms a timer, and pops due tasks when it fires.
//
// The queue is not safe for concurrent use; it is owned by a single loop.
package timerqueue

import (
	"container/heap"
	"context"
	"time"
)

// Func runs a due task. at is the time the task was due, which may be
// earlier than the wall clock when the owner drains late.
type Func func(ctx context.Context, at time.Time) error

// Handle identifies a scheduled task.
type Handle uint64

// Task is a scheduled unit of work.
type Task struct {
	Handle Handle
	At     time.Time
	Key    string // grouping key, typically the recipient id
	Name   string
	Run    Func

	seq   uint64
	index int
}

type Queue struct {
	h      taskHeap
	byID   map[Handle]*Task
	nextID Handle
	seq    uint64
}

func New() *Queue {
	return &Queue{byID: map[Handle]*Task{}}
}

// Schedule adds a task due at at and returns its handle.
// Tasks due at the same instant run in scheduling order.
func (q *Queue) Schedule(at time.Time, key, name string, run Func) Handle {
	q.nextID++
	q.seq++
	t := &Task{Handle: q.nextID, At: at, Key: key, Name: name, Run: run, seq: q.seq}
	heap.Push(&q.h, t)
	q.byID[t.Handle] = t
	return t.Handle
}

// Cancel removes the task. It reports false when the task already ran or was
// never scheduled.
func (q *Queue) Cancel(h Handle) bool {
	t, ok := q.byID[h]
	if !ok {
		return false
	}
	heap.Remove(&q.h, t.index)
	delete(q.byID, h)
	return true
}

// CancelKey removes every pending task with key and returns how many were
// removed.
func (q *Queue) CancelKey(key string) int {
	var hs []Handle
	for h, t := range q.byID {
		if t.Key == key {
			hs = append(hs, h)
		}
	}
	for _, h := range hs {
		q.Cancel(h)
	}
	return len(hs)
}

// Next returns the due time of the earliest task.
func (q *Queue) Next() (time.Time, bool) {
	if len(q.h) == 0 {
		return time.Time{}, false
	}
	return q.h[0].At, true
}

// PopDue removes and returns every task due at or before now, earliest first.
func (q *Queue) PopDue(now time.Time) []*Task {
	var out []*Task
	for len(q.h) > 0 && !q.h[0].At.After(now) {
		t := heap.Pop(&q.h).(*Task)
		delete(q.byID, t.Handle)
		out = append(out, t)
	}
	return out
}

func (q *Queue) Len() int { return len(q.h) }

// Pending returns the number of tasks scheduled under key.
func (q *Queue) Pending(key string) int {
	n := 0
	for _, t := range q.byID {
		if t.Key == key {
			n++
		}
	}
	return n
}

type taskHeap []*Task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].At.Equal(h[j].At) {
		return h[i].seq < h[j].seq
	}
	return h[i].At.Before(h[j].At)
}

func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *taskHeap) Push(x any) {
	t := x.(*Task)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}
