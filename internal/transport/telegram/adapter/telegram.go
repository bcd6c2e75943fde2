package adapter

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	"greetbot/internal/runtime/supervisor"
	kit "greetbot/internal/transport"
	logx "greetbot/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
	// Telegram does not share a user's timezone; these stand in for it.
	DefaultTimezone string
	Timezones       map[string]string // chat id -> IANA name
}

// Adapter connects greetbot to the Telegram Bot API. Recipient ids are chat
// ids in decimal.
type Adapter struct {
	cfg Config
	log logx.Logger

	bot *tele.Bot
	out atomic.Value // chan<- kit.Update

	runMu   sync.Mutex
	running bool
	sup     *supervisor.Supervisor

	droppedUpdates atomic.Uint64
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	a := &Adapter{cfg: cfg, log: log, bot: b}
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	a.registerHandlers()
	return a, nil
}

func (a *Adapter) registerHandlers() {
	a.bot.Handle("/start", func(c tele.Context) error {
		a.forward(kit.UpdateStart, c)
		return nil
	})
	a.bot.Handle(tele.OnText, func(c tele.Context) error {
		a.forward(kit.UpdateText, c)
		return nil
	})
}

func (a *Adapter) forward(kind kit.UpdateKind, c tele.Context) {
	m := c.Message()
	if m == nil || m.Chat == nil {
		return
	}
	up := kit.Update{
		Kind: kind,
		From: strconv.FormatInt(m.Chat.ID, 10),
		Body: m.Text,
		At:   m.Time(),
	}
	if m.Sender != nil {
		up.FirstName = m.Sender.FirstName
		up.Username = m.Sender.Username
	}

	out, _ := a.out.Load().(chan<- kit.Update)
	if out == nil {
		return
	}
	select {
	case out <- up:
	default:
		a.droppedUpdates.Add(1)
	}
}

func (a *Adapter) Start(ctx context.Context, out chan<- kit.Update) error {
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	a.out.Store(out)
	// Poller failures restart in place and never take the app down.
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log))
	sup := a.sup
	a.runMu.Unlock()

	sup.Go0("updates.drop_report", func(c context.Context) {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-c.Done():
				a.reportDropped(cap(out))
				return
			case <-ticker.C:
				a.reportDropped(cap(out))
			}
		}
	})

	sup.Go0("telebot.stop_on_cancel", func(c context.Context) {
		<-c.Done()
		a.bot.Stop()
	})

	sup.GoRestart("telebot.poll", func(c context.Context) error {
		a.log.Info("polling started")
		a.bot.Start() // blocks until Stop
		a.log.Info("polling stopped")
		if c.Err() == nil {
			return errors.New("poller exited")
		}
		return nil
	}, supervisor.WithRestartBackoff(500*time.Millisecond, 10*time.Second))

	return nil
}

func (a *Adapter) reportDropped(capacity int) {
	if n := a.droppedUpdates.Swap(0); n > 0 {
		a.log.Warn("incoming updates dropped (channel full)", logx.Uint64("count", n), logx.Int("chan_cap", capacity))
	}
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	sup := a.sup
	a.sup = nil
	wasRunning := a.running
	a.running = false
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	a.runMu.Unlock()

	if !wasRunning || sup == nil {
		return nil
	}
	sup.Cancel()

	// Long polling can hold a request open; do not let it stall shutdown.
	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	wctx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()
	if err := sup.Wait(wctx); err != nil {
		a.log.Warn("telegram stop incomplete", logx.Err(err))
	}
	return nil
}

// Send delivers texts in order, splitting any text over the API limit.
func (a *Adapter) Send(ctx context.Context, to string, texts []string) error {
	chatID, err := parseChatID(to)
	if err != nil {
		return err
	}
	chat := &tele.Chat{ID: chatID}
	for _, text := range texts {
		for _, chunk := range splitText(text, textLimit) {
			if err := ctx.Err(); err != nil {
				return err
			}
			if _, err := a.bot.Send(chat, chunk); err != nil {
				return fmt.Errorf("telegram send to %s: %w", to, err)
			}
		}
	}
	return nil
}

// Profile returns the chat's names and the configured timezone for it.
func (a *Adapter) Profile(ctx context.Context, id string) (kit.Profile, error) {
	if err := ctx.Err(); err != nil {
		return kit.Profile{}, err
	}
	chatID, err := parseChatID(id)
	if err != nil {
		return kit.Profile{}, err
	}
	chat, err := a.bot.ChatByID(chatID)
	if err != nil {
		return kit.Profile{}, fmt.Errorf("telegram chat %s: %w", id, err)
	}
	return kit.Profile{
		ID:        id,
		FirstName: chat.FirstName,
		Username:  chat.Username,
		Timezone:  a.timezoneFor(id),
	}, nil
}

func (a *Adapter) timezoneFor(id string) string {
	if tz := strings.TrimSpace(a.cfg.Timezones[id]); tz != "" {
		return tz
	}
	if tz := strings.TrimSpace(a.cfg.DefaultTimezone); tz != "" {
		return tz
	}
	return "Europe/Berlin"
}

func parseChatID(id string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid telegram chat id %q", id)
	}
	return n, nil
}

const textLimit = 4000

// splitText cuts s into chunks of at most limit runes, preferring newline
// boundaries that are not too close to the chunk start.
func splitText(s string, limit int) []string {
	if limit <= 0 {
		limit = textLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}

	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := min(start+limit, len(rs))
		if end < len(rs) {
			for i := end - 1; i > start; i-- {
				if rs[i] == '\n' && i-start >= limit/3 {
					end = i + 1
					break
				}
			}
		}
		out = append(out, strings.TrimRight(string(rs[start:end]), "\n"))
		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}
