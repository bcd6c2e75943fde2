// Package eventbus fans engine events out to in-process observers.
//
// Publish never blocks: every subscriber owns a buffered channel and events
// that do not fit are dropped for that subscriber and counted.
package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event types published by greetbot.
const (
	RecipientAdded   = "recipient.added"
	RecipientRemoved = "recipient.removed"
	ModeChanged      = "recipient.mode"
	ZoneResolved     = "recipient.zone"
	GreetingQueued   = "greeting.scheduled"
	GreetingSent     = "greeting.sent"
	GreetingFailed   = "greeting.failed"
	ConfigReloaded   = "config.reloaded"
)

type Event struct {
	Type string
	Time time.Time
	Data any
}

// Greeting is the payload of the greeting.* events.
type Greeting struct {
	Recipient string
	Source    string // firing or command that produced the texts
	Texts     []string
	Delay     time.Duration
	Err       string
}

// Recipient is the payload of the recipient.* events.
type Recipient struct {
	ID    string
	Value string // mode or zone when relevant
}

type Bus interface {
	Publish(e Event)
	// Subscribe returns a channel receiving events whose type is in types,
	// or every event when types is empty.
	Subscribe(buffer int, types ...string) (ch <-chan Event, unsubscribe func())
	Dropped() uint64
}

func New() Bus {
	return &memBus{subs: map[uint64]*sub{}}
}

type sub struct {
	ch     chan Event
	filter map[string]struct{}
	mu     sync.Mutex
	closed bool
}

func (s *sub) wants(t string) bool {
	if len(s.filter) == 0 {
		return true
	}
	_, ok := s.filter[t]
	return ok
}

// offer delivers e without blocking and reports whether it fit.
func (s *sub) offer(e Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}
	select {
	case s.ch <- e:
		return true
	default:
		return false
	}
}

func (s *sub) close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	s.mu.Unlock()
}

type memBus struct {
	mu      sync.RWMutex
	subs    map[uint64]*sub
	seq     atomic.Uint64
	dropped atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	targets := make([]*sub, 0, len(b.subs))
	for _, s := range b.subs {
		if s.wants(e.Type) {
			targets = append(targets, s)
		}
	}
	b.mu.RUnlock()

	for _, s := range targets {
		if !s.offer(e) {
			b.dropped.Add(1)
		}
	}
}

func (b *memBus) Subscribe(buffer int, types ...string) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	s := &sub{ch: make(chan Event, buffer)}
	if len(types) > 0 {
		s.filter = make(map[string]struct{}, len(types))
		for _, t := range types {
			s.filter[t] = struct{}{}
		}
	}
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = s
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			s.close()
		})
	}
	return s.ch, unsub
}

// Dropped returns how many deliveries were skipped because a subscriber was full.
func (b *memBus) Dropped() uint64 { return b.dropped.Load() }

// Nop discards every event.
func Nop() Bus { return nopBus{} }

type nopBus struct{}

func (nopBus) Publish(Event) {}

func (nopBus) Subscribe(int, ...string) (<-chan Event, func()) {
	ch := make(chan Event)
	close(ch)
	return ch, func() {}
}

func (nopBus) Dropped() uint64 { return 0 }
