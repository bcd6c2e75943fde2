// Package engine is the greeting dispatch loop.
//
// A single goroutine (Run) owns every mutation: inbound updates, due timer
// tasks and results of background lookups are handled one at a time. Work
// that may block (profile lookups) runs elsewhere and posts a closure back
// into the loop.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"greetbot/internal/clock"
	"greetbot/internal/dispatch"
	"greetbot/internal/eventbus"
	"greetbot/internal/outbox"
	"greetbot/internal/registry"
	"greetbot/internal/selector"
	"greetbot/internal/storage"
	"greetbot/internal/timerqueue"
	"greetbot/internal/transport"
	"greetbot/internal/trigger"
	logx "greetbot/pkg/logx"
)

// Outbound accepts messages for asynchronous delivery.
type Outbound interface {
	Enqueue(ctx context.Context, m outbox.Message) error
}

// AuditLog records executed commands.
type AuditLog interface {
	AppendAudit(ctx context.Context, e storage.AuditEntry) error
}

// AsyncFunc starts fn outside the loop.
type AsyncFunc func(name string, fn func(ctx context.Context))

type Deps struct {
	Clock      clock.Clock
	Registry   *registry.Registry
	Selector   *selector.Selector
	Trigger    *trigger.Trigger
	Queue      *timerqueue.Queue
	Dispatcher *dispatch.Dispatcher
	Outbox     Outbound
	Profiles   transport.ProfileSource
	Audit      AuditLog
	Bus        eventbus.Bus
	Async      AsyncFunc
	Log        logx.Logger

	// ProfileTimeout bounds a single profile lookup. Zero means 10s.
	ProfileTimeout time.Duration
}

type Engine struct {
	log      logx.Logger
	clock    clock.Clock
	reg      *registry.Registry
	sel      *selector.Selector
	trig     *trigger.Trigger
	queue    *timerqueue.Queue
	disp     *dispatch.Dispatcher
	out      Outbound
	profiles transport.ProfileSource
	audit    AuditLog
	bus      eventbus.Bus
	async    AsyncFunc

	profileTimeout time.Duration

	posted chan func(ctx context.Context) error
}

func New(d Deps) (*Engine, error) {
	switch {
	case d.Registry == nil:
		return nil, errors.New("engine: registry required")
	case d.Selector == nil:
		return nil, errors.New("engine: selector required")
	case d.Trigger == nil:
		return nil, errors.New("engine: trigger required")
	case d.Queue == nil || d.Dispatcher == nil:
		return nil, errors.New("engine: queue and dispatcher required")
	case d.Outbox == nil:
		return nil, errors.New("engine: outbox required")
	case d.Profiles == nil:
		return nil, errors.New("engine: profile source required")
	}
	e := &Engine{
		log:            d.Log,
		clock:          d.Clock,
		reg:            d.Registry,
		sel:            d.Selector,
		trig:           d.Trigger,
		queue:          d.Queue,
		disp:           d.Dispatcher,
		out:            d.Outbox,
		profiles:       d.Profiles,
		audit:          d.Audit,
		bus:            d.Bus,
		async:          d.Async,
		profileTimeout: d.ProfileTimeout,
		posted:         make(chan func(ctx context.Context) error, 256),
	}
	if e.clock == nil {
		e.clock = clock.Real()
	}
	if e.bus == nil {
		e.bus = eventbus.Nop()
	}
	if e.async == nil {
		e.async = func(_ string, fn func(ctx context.Context)) { go fn(context.Background()) }
	}
	if e.profileTimeout <= 0 {
		e.profileTimeout = 10 * time.Second
	}
	return e, nil
}

// Run drives the engine until ctx ends. A returned error is fatal.
func (e *Engine) Run(ctx context.Context, updates <-chan transport.Update) error {
	e.scheduleFirings(e.clock.Now())
	e.log.Info("engine started",
		logx.Int("recipients", e.reg.Len()),
		logx.Int("firings", len(e.trig.Firings())),
		logx.Time("now", e.clock.Now()),
	)

	timer := time.NewTimer(time.Hour)
	defer timer.Stop()
	for {
		if err := e.advance(ctx, e.clock.Now()); err != nil {
			return err
		}
		e.arm(timer)

		select {
		case <-ctx.Done():
			e.log.Info("engine stopped", logx.Int("pending", e.queue.Len()))
			return nil
		case up, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
			if err := e.handleUpdate(ctx, up); err != nil {
				return err
			}
		case fn := <-e.posted:
			if err := fn(ctx); err != nil {
				return err
			}
		case <-timer.C:
		}
	}
}

// arm resets timer to fire at the earliest queued task.
func (e *Engine) arm(timer *time.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	d := time.Hour
	if at, ok := e.queue.Next(); ok {
		d = max(at.Sub(e.clock.Now()), 0)
	}
	timer.Reset(d)
}

// advance runs every task due at or before now.
func (e *Engine) advance(ctx context.Context, now time.Time) error {
	for {
		due := e.queue.PopDue(now)
		if len(due) == 0 {
			return nil
		}
		for _, t := range due {
			if t.Run == nil {
				continue
			}
			if err := t.Run(ctx, t.At); err != nil {
				return fmt.Errorf("task %s (%s): %w", t.Name, t.Key, err)
			}
		}
	}
}

// post queues fn to run inside the loop.
func (e *Engine) post(ctx context.Context, fn func(ctx context.Context) error) {
	select {
	case e.posted <- fn:
	case <-ctx.Done():
	}
}

// drainPosted runs every closure posted so far.
func (e *Engine) drainPosted(ctx context.Context) error {
	for {
		select {
		case fn := <-e.posted:
			if err := fn(ctx); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

// Pending returns the number of queued dispatches for id.
func (e *Engine) Pending(id string) int { return e.disp.Pending(id) }

func (e *Engine) enqueue(ctx context.Context, to, source string, texts ...string) {
	err := e.out.Enqueue(ctx, outbox.Message{To: to, Texts: texts, Source: source})
	if err != nil {
		e.log.Warn("message not queued", logx.String("recipient", to), logx.String("source", source), logx.Err(err))
	}
}

func (e *Engine) recordAudit(ctx context.Context, id, action, detail string) {
	if e.audit == nil {
		return
	}
	entry := storage.AuditEntry{At: e.clock.Now(), Recipient: id, Action: action, Detail: detail}
	if err := e.audit.AppendAudit(ctx, entry); err != nil {
		e.log.Warn("audit append failed", logx.String("recipient", id), logx.String("action", action), logx.Err(err))
	}
}
