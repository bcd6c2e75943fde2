package engine

import (
	"context"
	"strings"

	"greetbot/internal/command"
	"greetbot/internal/eventbus"
	"greetbot/internal/models"
	"greetbot/internal/transport"
	logx "greetbot/pkg/logx"
)

func (e *Engine) handleUpdate(ctx context.Context, up transport.Update) error {
	from := strings.TrimSpace(up.From)
	if from == "" {
		return nil
	}
	switch up.Kind {
	case transport.UpdateStart:
		e.startChatting(ctx, from, up.FirstName)
		return nil
	default:
		return e.handleText(ctx, from, up.Body)
	}
}

// startChatting replies with the invitation. It never touches the roster.
func (e *Engine) startChatting(ctx context.Context, from, firstName string) {
	if firstName != "" {
		e.log.Debug("started chatting", logx.String("recipient", from))
		e.enqueue(ctx, from, "start", command.Invitation(firstName))
		return
	}
	e.lookupProfile(from, func(ctx context.Context, p transport.Profile, err error) error {
		if err != nil {
			e.log.Debug("profile lookup failed; no invitation", logx.String("recipient", from), logx.Err(err))
			return nil
		}
		e.enqueue(ctx, from, "start", command.Invitation(p.FirstName))
		return nil
	})
}

func (e *Engine) handleText(ctx context.Context, from, body string) error {
	act := command.Route(command.Input{Body: body, Known: e.reg.Has(from)})
	log := e.log.With(logx.String("recipient", from), logx.String("rule", act.Rule))
	log.Debug("message routed", logx.String("body", body))
	detail := ""

	switch act.Kind {
	case command.Register:
		if _, err := e.reg.Add(ctx, from); err != nil {
			return err
		}
		e.bus.Publish(eventbus.Event{Type: eventbus.RecipientAdded, Data: eventbus.Recipient{ID: from}})
		e.resolveZone(from)
		text, err := e.sel.Select(ctx, from, models.SlotMorning)
		if err != nil {
			return e.selectionFailed(from, act.Rule, err)
		}
		e.enqueue(ctx, from, act.Rule, command.ReplyWelcome, command.ReplyWelcomeText, text)
		log.Info("recipient registered")

	case command.Thanks:
		e.enqueue(ctx, from, act.Rule, command.ReplyThanks)

	case command.NightText:
		text, err := e.sel.Select(ctx, from, models.SlotNight)
		if err != nil {
			return e.selectionFailed(from, act.Rule, err)
		}
		e.enqueue(ctx, from, act.Rule, command.ReplyNight, text)

	case command.SetInsult, command.SetSweet:
		mode, reply := models.ModeInsult, command.ReplyInsult
		if act.Kind == command.SetSweet {
			mode, reply = models.ModeSweet, command.ReplySweet
		}
		if err := e.reg.SetMode(ctx, from, mode); err != nil {
			return err
		}
		e.bus.Publish(eventbus.Event{Type: eventbus.ModeChanged, Data: eventbus.Recipient{ID: from, Value: string(mode)}})
		e.enqueue(ctx, from, act.Rule, reply)
		log.Info("mode changed", logx.String("mode", string(mode)))
		detail = string(mode)

	case command.Remove:
		if _, err := e.reg.Remove(ctx, from); err != nil {
			return err
		}
		cancelled := e.disp.CancelRecipient(from)
		e.bus.Publish(eventbus.Event{Type: eventbus.RecipientRemoved, Data: eventbus.Recipient{ID: from}})
		e.enqueue(ctx, from, act.Rule, command.ReplyLeave, command.ReplyLeaveResume)
		log.Info("recipient removed", logx.Int("cancelled", cancelled))

	case command.Timezone:
		e.lookupProfile(from, func(ctx context.Context, p transport.Profile, err error) error {
			if err != nil {
				e.log.Debug("profile lookup failed; no timezone reply", logx.String("recipient", from), logx.Err(err))
				return nil
			}
			e.enqueue(ctx, from, act.Rule, command.ReplyTimezone+p.Timezone)
			return nil
		})

	default:
		text, err := e.sel.Select(ctx, from, models.SlotMorning)
		if err != nil {
			return e.selectionFailed(from, act.Rule, err)
		}
		e.enqueue(ctx, from, act.Rule, command.ReplyMorning, text)
	}

	e.recordAudit(ctx, from, string(act.Kind), detail)
	return nil
}

// resolveZone fetches the profile and stores the zone bucket. A failed
// lookup leaves the zone pending.
func (e *Engine) resolveZone(id string) {
	e.lookupProfile(id, func(ctx context.Context, p transport.Profile, err error) error {
		if err != nil {
			e.log.Debug("profile lookup failed; zone stays pending", logx.String("recipient", id), logx.Err(err))
			return nil
		}
		if !e.reg.Has(id) {
			return nil
		}
		zone := models.ZoneForTimezone(p.Timezone)
		if err := e.reg.SetZone(ctx, id, zone); err != nil {
			return err
		}
		e.bus.Publish(eventbus.Event{Type: eventbus.ZoneResolved, Data: eventbus.Recipient{ID: id, Value: string(zone)}})
		e.log.Info("zone resolved",
			logx.String("recipient", id),
			logx.String("timezone", p.Timezone),
			logx.String("zone", string(zone)),
		)
		return nil
	})
}

// lookupProfile fetches a profile off the loop and hands the result to then
// inside the loop.
func (e *Engine) lookupProfile(id string, then func(ctx context.Context, p transport.Profile, err error) error) {
	e.async("profile."+id, func(ctx context.Context) {
		lctx, cancel := context.WithTimeout(ctx, e.profileTimeout)
		p, err := e.profiles.Profile(lctx, id)
		cancel()
		e.post(ctx, func(ctx context.Context) error { return then(ctx, p, err) })
	})
}
