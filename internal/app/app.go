package app

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"greetbot/internal/catalog"
	"greetbot/internal/clock"
	"greetbot/internal/config"
	"greetbot/internal/dispatch"
	"greetbot/internal/engine"
	"greetbot/internal/eventbus"
	"greetbot/internal/outbox"
	"greetbot/internal/registry"
	"greetbot/internal/runtime/supervisor"
	"greetbot/internal/selector"
	"greetbot/internal/storage"
	"greetbot/internal/timerqueue"
	kit "greetbot/internal/transport"
	telegram "greetbot/internal/transport/telegram/adapter"
	logx "greetbot/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	adapter kit.Adapter
	outbox  *outbox.Service
	engine  *engine.Engine

	updates chan kit.Update
}

func NewApp(cfgPath string) (*App, error) {
	if err := config.LoadDotEnv(cfgPath); err != nil {
		return nil, err
	}
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", cfgPath, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", cfgPath, err)
	}

	logSvc, log := logx.New(mapLoggingConfig(cfg))
	closeOnErr := func(err error) (*App, error) {
		_ = logSvc.Close()
		return nil, err
	}

	home, err := time.LoadLocation(homeTimezone)
	if err != nil {
		return closeOnErr(err)
	}
	clk, err := clock.FromFakeTime(cfg.FakeTime, home)
	if err != nil {
		return closeOnErr(err)
	}
	if strings.TrimSpace(cfg.FakeTime) != "" {
		log.Warn("fake clock enabled", logx.Time("start", clk.Now()))
	}

	cat, err := catalog.LoadFiles(mapCatalogFiles(cfg))
	if err != nil {
		return closeOnErr(err)
	}
	trig, err := mapTrigger(cfg)
	if err != nil {
		return closeOnErr(err)
	}

	tcfg, err := mapTelegramConfig(cfg)
	if err != nil {
		return closeOnErr(err)
	}
	ad, err := telegram.New(tcfg, log.With(logx.String("comp", "telegram")))
	if err != nil {
		return closeOnErr(err)
	}

	scfg, err := mapStorageConfig(cfg)
	if err != nil {
		return closeOnErr(err)
	}
	store, err := storage.Open(scfg, log.With(logx.String("comp", "storage")))
	if err != nil {
		return closeOnErr(err)
	}
	log.Info("storage opened", logx.String("driver", scfg.Driver))

	reg := registry.New(store, log.With(logx.String("comp", "registry")))
	if err := reg.Load(context.Background()); err != nil {
		_ = store.Close()
		return closeOnErr(err)
	}

	bus := eventbus.New()
	ocfg, err := mapOutboxConfig(cfg)
	if err != nil {
		_ = store.Close()
		return closeOnErr(err)
	}
	out := outbox.New(ocfg, ad, bus, log.With(logx.String("comp", "outbox")))

	a := &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log.With(logx.String("comp", "app")),
		logs:    logSvc,
		bus:     bus,
		store:   store,
		adapter: ad,
		outbox:  out,
		updates: make(chan kit.Update, 256),
	}

	q := timerqueue.New()
	eng, err := engine.New(engine.Deps{
		Clock:      clk,
		Registry:   reg,
		Selector:   selector.New(cat, reg, nil, log.With(logx.String("comp", "selector"))),
		Trigger:    trig,
		Queue:      q,
		Dispatcher: dispatch.New(q, rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())), log.With(logx.String("comp", "dispatch"))),
		Outbox:     out,
		Profiles:   ad,
		Audit:      store,
		Bus:        bus,
		Async:      a.async,
		Log:        log.With(logx.String("comp", "engine")),
	})
	if err != nil {
		_ = store.Close()
		return closeOnErr(err)
	}
	a.engine = eng
	return a, nil
}

// async runs fn under the app supervisor so a panic there is fatal.
func (a *App) async(name string, fn func(ctx context.Context)) {
	if a.sup == nil {
		go fn(context.Background())
		return
	}
	a.sup.Go0(name, fn)
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		if _, err := mapTrigger(cfg); err != nil {
			return err
		}
		_, err := mapOutboxConfig(cfg)
		return err
	})

	a.outbox.Start(a.sup.Context())
	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}

	a.sup.Go("engine", func(c context.Context) error {
		return a.engine.Run(c, a.updates)
	})

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.logEvent(e)
			}
		}
	})

	sub, unsubCfg := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer unsubCfg()
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config.
				for drained := false; !drained; {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						drained = true
					}
				}
				a.applyConfig(lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started", logx.String("config", a.cfgPath))
	return nil
}

// applyConfig applies the live sections of a reload and reports the rest.
func (a *App) applyConfig(prev, next *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	a.logs.Apply(mapLoggingConfig(next))
	if ocfg, err := mapOutboxConfig(next); err != nil {
		a.log.Warn("invalid outbox config; keeping previous", logx.Err(err))
	} else {
		a.outbox.Apply(ocfg)
	}
	if rest := config.RestartRequired(sections); len(rest) > 0 {
		a.log.Warn("config sections changed; restart required for them to take effect",
			logx.String("sections", strings.Join(rest, ",")))
	}
	a.bus.Publish(eventbus.Event{Type: eventbus.ConfigReloaded, Time: time.Now(), Data: sections})
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) logEvent(e eventbus.Event) {
	switch d := e.Data.(type) {
	case eventbus.Greeting:
		fields := []logx.Field{
			logx.String("type", e.Type),
			logx.String("recipient", d.Recipient),
			logx.String("source", d.Source),
		}
		if d.Delay > 0 {
			fields = append(fields, logx.Duration("delay", d.Delay))
		}
		if d.Err != "" {
			fields = append(fields, logx.String("err", d.Err))
		}
		a.log.Debug("event", fields...)
	case eventbus.Recipient:
		a.log.Debug("event",
			logx.String("type", e.Type),
			logx.String("recipient", d.ID),
			logx.String("value", d.Value),
		)
	default:
		a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
	}
}

// Stop shuts components down in reverse dependency order. Each step is
// bounded so one stuck component cannot stall the rest.
func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping")
	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	// The engine has to be gone before the outbox drains, and the outbox
	// still sends through the adapter.
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("outbox", 4*time.Second, func(c context.Context) error {
		dctx, cancel := context.WithTimeout(c, 2*time.Second)
		defer cancel()
		a.outbox.Stop(dctx)
		return nil
	})
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
