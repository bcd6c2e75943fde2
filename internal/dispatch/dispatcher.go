// Package dispatch schedules per-recipient deliveries after a random delay.
//
// The job passed to Dispatch decides what to send when it runs, so anything
// that changes between scheduling and firing (mode, removal) is observed.
package dispatch

import (
	"math/rand/v2"
	"time"

	"greetbot/internal/timerqueue"
	logx "greetbot/pkg/logx"
)

type Dispatcher struct {
	log   logx.Logger
	queue *timerqueue.Queue
	rng   *rand.Rand
}

func New(q *timerqueue.Queue, rng *rand.Rand, log logx.Logger) *Dispatcher {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Dispatcher{log: log, queue: q, rng: rng}
}

// Jitter returns a delay uniformly distributed in [0, max), or 0 when max <= 0.
func (d *Dispatcher) Jitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(d.rng.Int64N(int64(max)))
}

// Dispatch schedules job for id at now plus a jittered delay.
func (d *Dispatcher) Dispatch(now time.Time, id, name string, maxDelay time.Duration, job timerqueue.Func) (timerqueue.Handle, time.Duration) {
	delay := d.Jitter(maxDelay)
	h := d.queue.Schedule(now.Add(delay), id, name, job)
	d.log.Debug("dispatch scheduled",
		logx.String("recipient", id),
		logx.String("name", name),
		logx.Duration("delay", delay),
	)
	return h, delay
}

// CancelRecipient drops every pending dispatch for id.
func (d *Dispatcher) CancelRecipient(id string) int {
	n := d.queue.CancelKey(id)
	if n > 0 {
		d.log.Debug("pending dispatches cancelled", logx.String("recipient", id), logx.Int("count", n))
	}
	return n
}

// Pending returns the number of dispatches waiting for id.
func (d *Dispatcher) Pending(id string) int { return d.queue.Pending(id) }
