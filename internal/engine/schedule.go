package engine

import (
	"context"
	"errors"
	"time"

	"greetbot/internal/catalog"
	"greetbot/internal/eventbus"
	"greetbot/internal/models"
	"greetbot/internal/registry"
	"greetbot/internal/timerqueue"
	"greetbot/internal/trigger"
	logx "greetbot/pkg/logx"
)

const firingKeyPrefix = "firing/"

func (e *Engine) scheduleFirings(now time.Time) {
	for _, f := range e.trig.Firings() {
		e.scheduleFiring(f, f.Next(now))
	}
}

func (e *Engine) scheduleFiring(f trigger.Firing, at time.Time) {
	e.queue.Schedule(at, firingKeyPrefix+f.Name, f.Name, func(ctx context.Context, due time.Time) error {
		e.fire(ctx, f, due)
		next := f.Next(due)
		// Skip firings missed while the process was suspended.
		if now := e.clock.Now(); next.Before(now) {
			next = f.Next(now)
		}
		e.scheduleFiring(f, next)
		return nil
	})
	e.log.Debug("firing scheduled", logx.String("name", f.Name), logx.Time("at", at))
}

// fire schedules one jittered dispatch per recipient in scope.
func (e *Engine) fire(ctx context.Context, f trigger.Firing, at time.Time) {
	var ids []string
	if f.AllZones {
		ids = e.reg.IDs()
	} else {
		ids = e.reg.InZone(f.Zone)
	}
	e.log.Info("firing",
		logx.String("name", f.Name),
		logx.Time("local", at.In(f.Location)),
		logx.Int("recipients", len(ids)),
	)
	for _, id := range ids {
		_, delay := e.disp.Dispatch(at, id, f.Name, f.Jitter, e.greetingJob(f, id))
		e.bus.Publish(eventbus.Event{Type: eventbus.GreetingQueued, Data: eventbus.Greeting{
			Recipient: id, Source: f.Name, Delay: delay,
		}})
	}
}

// greetingJob decides the text when it runs, so it sees the recipient's
// state at delivery time.
func (e *Engine) greetingJob(f trigger.Firing, id string) timerqueue.Func {
	return func(ctx context.Context, at time.Time) error {
		if !e.reg.Has(id) {
			e.log.Debug("recipient gone; dispatch skipped", logx.String("recipient", id), logx.String("name", f.Name))
			return nil
		}
		var (
			text   string
			source = f.Name
			err    error
		)
		switch f.Action {
		case trigger.ActionFixed:
			text = f.Text
		case trigger.ActionEvening:
			text, err = e.sel.Select(ctx, id, models.SlotNight)
		default:
			if r, ok := e.trig.ResolveMorning(id, at.In(f.Location)); ok {
				text, source = r.Text, f.Name+"/"+r.Name
			} else {
				text, err = e.sel.Select(ctx, id, models.SlotMorning)
			}
		}
		if err != nil {
			return e.selectionFailed(id, source, err)
		}
		e.enqueue(ctx, id, source, text)
		return nil
	}
}

// selectionFailed logs recoverable selection errors and passes the rest
// through as fatal.
func (e *Engine) selectionFailed(id, source string, err error) error {
	if errors.Is(err, registry.ErrNotFound) || errors.Is(err, catalog.ErrEmpty) {
		e.log.Warn("no text selected", logx.String("recipient", id), logx.String("source", source), logx.Err(err))
		return nil
	}
	return err
}
