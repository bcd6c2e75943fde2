// Package outbox is the asynchronous, rate-limited path from the engine to
// the transport.
//
// Delivery is at most once: a failed send is logged and published as a
// greeting.failed event, never retried.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"greetbot/internal/eventbus"
	"greetbot/internal/runtime/supervisor"
	"greetbot/internal/transport"
	logx "greetbot/pkg/logx"
)

var (
	ErrQueueFull = errors.New("outbox queue full")
	ErrStopped   = errors.New("outbox stopped")
)

type Config struct {
	Workers     int
	QueueSize   int
	RatePerSec  float64
	Burst       int
	SendTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 20
	}
	if c.Burst <= 0 {
		c.Burst = max(1, int(c.RatePerSec))
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 15 * time.Second
	}
	return c
}

// Message is one delivery: texts go out in order to a single recipient.
type Message struct {
	To     string
	Texts  []string
	Source string // firing or command name, for logs and events
}

type Service struct {
	log    logx.Logger
	sender transport.Sender
	bus    eventbus.Bus

	mu        sync.Mutex
	cfg       Config
	limiter   *rate.Limiter
	queue     chan Message
	accepting bool
	enqWG     sync.WaitGroup
	sup       *supervisor.Supervisor
}

func New(cfg Config, sender transport.Sender, bus eventbus.Bus, log logx.Logger) *Service {
	if bus == nil {
		bus = eventbus.Nop()
	}
	cfg = cfg.withDefaults()
	return &Service{
		log:     log,
		sender:  sender,
		bus:     bus,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst),
	}
}

// Apply updates the rate limit. Queue size and worker count apply on the
// next Start.
func (s *Service) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	s.mu.Lock()
	s.cfg = cfg
	s.limiter.SetLimit(rate.Limit(cfg.RatePerSec))
	s.limiter.SetBurst(cfg.Burst)
	s.mu.Unlock()
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.queue != nil {
		s.mu.Unlock()
		return
	}
	cfg := s.cfg
	s.queue = make(chan Message, cfg.QueueSize)
	s.accepting = true
	// Workers outlive ctx so Stop can drain; only Stop ends them. Send
	// failures are reported per message and never stop the app.
	s.sup = supervisor.New(context.WithoutCancel(ctx), supervisor.WithLogger(s.log))
	q, sup := s.queue, s.sup
	s.mu.Unlock()

	for i := 0; i < cfg.Workers; i++ {
		sup.GoRestart(fmt.Sprintf("outbox.worker.%d", i), func(c context.Context) error {
			s.workerLoop(c, q)
			return nil
		})
	}
	s.log.Info("outbox started", logx.Int("workers", cfg.Workers), logx.Int("queue", cfg.QueueSize))
}

// Enqueue hands m to the workers without blocking.
func (s *Service) Enqueue(ctx context.Context, m Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	if !s.accepting || s.queue == nil {
		s.mu.Unlock()
		return ErrStopped
	}
	q := s.queue
	s.enqWG.Add(1)
	s.mu.Unlock()
	defer s.enqWG.Done()

	select {
	case q <- m:
		return nil
	default:
		s.log.Warn("outbox full; message dropped", logx.String("recipient", m.To), logx.String("source", m.Source))
		s.publish(eventbus.GreetingFailed, m, ErrQueueFull)
		return ErrQueueFull
	}
}

// abandonGrace bounds the wait for in-flight sends once Stop gives up.
const abandonGrace = time.Second

// Stop refuses new messages and drains the queue until ctx ends. Messages
// still queued or in flight at that point are reported as failed.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	q, sup := s.queue, s.sup
	if q == nil || !s.accepting {
		s.mu.Unlock()
		return
	}
	s.accepting = false
	s.mu.Unlock()

	s.enqWG.Wait()
	close(q)
	if err := sup.Wait(ctx); err != nil {
		s.log.Warn("outbox drain incomplete", logx.Err(err), logx.Int("left", len(q)))
		sup.Cancel()
		wctx, cancel := context.WithTimeout(context.Background(), abandonGrace)
		_ = sup.Wait(wctx)
		cancel()
		for m := range q {
			s.fail(m, ErrStopped)
		}
	}

	s.mu.Lock()
	s.queue = nil
	s.sup = nil
	s.mu.Unlock()
}

func (s *Service) workerLoop(ctx context.Context, q <-chan Message) {
	for {
		select {
		case <-ctx.Done():
			// Stop reports whatever is left in q.
			return
		case m, ok := <-q:
			if !ok {
				return
			}
			s.deliver(ctx, m)
		}
	}
}

func (s *Service) deliver(ctx context.Context, m Message) {
	s.mu.Lock()
	lim, timeout := s.limiter, s.cfg.SendTimeout
	s.mu.Unlock()

	if err := lim.Wait(ctx); err != nil {
		s.fail(m, err)
		return
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	err := s.sender.Send(callCtx, m.To, m.Texts)
	cancel()
	if err != nil {
		s.fail(m, err)
		return
	}
	s.log.Debug("sent", logx.String("recipient", m.To), logx.String("source", m.Source), logx.Strings("texts", m.Texts))
	s.publish(eventbus.GreetingSent, m, nil)
}

func (s *Service) fail(m Message, err error) {
	s.log.Warn("send failed", logx.String("recipient", m.To), logx.String("source", m.Source), logx.Err(err))
	s.publish(eventbus.GreetingFailed, m, err)
}

func (s *Service) publish(typ string, m Message, err error) {
	g := eventbus.Greeting{Recipient: m.To, Source: m.Source, Texts: m.Texts}
	if err != nil {
		g.Err = err.Error()
	}
	s.bus.Publish(eventbus.Event{Type: typ, Data: g})
}
