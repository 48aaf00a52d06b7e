// Package app wires configuration, storage, the platform client and the
// engine together and owns their lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"schedbot/internal/clock"
	"schedbot/internal/config"
	"schedbot/internal/dispatch"
	"schedbot/internal/eventbus"
	"schedbot/internal/i18n"
	"schedbot/internal/lock"
	"schedbot/internal/notifier"
	"schedbot/internal/runtime/supervisor"
	"schedbot/internal/scheduler"
	"schedbot/internal/status"
	"schedbot/internal/storage"
	"schedbot/internal/transport"
	"schedbot/internal/transport/telegram"
	logx "schedbot/pkg/logx"
)

type options struct {
	client transport.Client
	clock  clock.Clock
	notify func(string)
}

type Option func(*options)

// WithClient replaces the Telegram client.
func WithClient(c transport.Client) Option { return func(o *options) { o.client = c } }

func WithClock(c clock.Clock) Option { return func(o *options) { o.clock = c } }

// WithNotify replaces sd_notify for service manager states.
func WithNotify(fn func(string)) Option { return func(o *options) { o.notify = fn } }

type App struct {
	cfgm *config.Manager
	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store  storage.Store
	client transport.Client
	lease  *lock.Lease

	sender *notifier.Sender
	disp   *dispatch.Dispatcher
	notif  *notifier.Notifier
	loop   *scheduler.Loop
	maint  *scheduler.Maintenance

	collector *status.Collector
	status    *status.Server

	sup *supervisor.Supervisor
}

// New loads cfgPath and builds every component. Nothing runs until Start.
func New(ctx context.Context, cfgPath string, opts ...Option) (*App, error) {
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	if o.clock == nil {
		o.clock = clock.Real()
	}

	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	boot := logx.NewConsole(cfg.Logging.Level)
	client := o.client
	if client == nil {
		tg, err := telegram.New(telegramConfig(cfg), boot.With(logx.String("comp", "telegram")))
		if err != nil {
			return nil, fmt.Errorf("telegram: %w", err)
		}
		client = tg
	}

	var chat logx.ChatSender
	if cs, ok := client.(logx.ChatSender); ok {
		chat = cs
	}
	logs, root := logx.New(loggingConfig(cfg), chat)
	log := root.With(logx.String("comp", "app"))
	cfgm.SetLogger(root.With(logx.String("comp", "config")))

	a := &App{cfgm: cfgm, log: log, logs: logs, bus: eventbus.New(), client: client}
	if err := a.build(ctx, cfg, o, root); err != nil {
		a.closeResources()
		_ = logs.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context, cfg *config.Config, o options, root logx.Logger) error {
	store, err := storage.Open(ctx, storageConfig(cfg), root.With(logx.String("comp", "storage")))
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	a.store = store
	a.log.Info("storage ready", logx.String("driver", cfg.Storage.Driver))

	lang, err := i18n.Load(cfg.Dispatch.PlaceholderLang)
	if err != nil {
		return fmt.Errorf("i18n: %w", err)
	}

	a.sender = notifier.NewSender(a.client, senderConfig(cfg), root)
	a.disp = dispatch.New(dispatch.Deps{
		Store:   store,
		History: store,
		Client:  a.client,
		Notices: a.sender,
		Lang:    lang,
		Clock:   o.clock,
		Bus:     a.bus,
		Log:     root,
	}, dispatchConfig(cfg))

	deps := scheduler.Deps{Dispatcher: a.disp, Bus: a.bus, Log: root, Notify: o.notify}
	if cfg.Notifier.On() {
		a.notif = notifier.New(notifier.Deps{
			Store:    store,
			Sender:   a.sender,
			Lang:     lang,
			Clock:    o.clock,
			Bus:      a.bus,
			Log:      root,
			Language: cfg.Notifier.DefaultLanguage,
		})
		deps.Reminders = a.notif
	}
	if cfg.Lock.Enabled {
		lctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		lease, err := lock.New(lctx, lockConfig(cfg), root)
		cancel()
		if err != nil {
			return fmt.Errorf("lock: %w", err)
		}
		a.lease = lease
		deps.Guard = lease
	}
	a.loop = scheduler.New(deps, cfg.TickInterval())

	a.maint, err = scheduler.NewMaintenance(cfg.Scheduler.MaintenanceSchedule, cfg.HistoryRetention(), store, o.clock, root)
	if err != nil {
		return fmt.Errorf("scheduler.maintenance_schedule: %w", err)
	}

	a.collector = status.NewCollector(50)
	if cfg.Status.Enabled {
		src := status.Sources{
			Collector: a.collector,
			Loop:      a.loop.Stats,
			History:   store,
			Goroutines: func() []supervisor.Stat {
				if a.sup == nil {
					return nil
				}
				return a.sup.Snapshot()
			},
		}
		if p, ok := store.(storage.Pinger); ok {
			src.Store = p
		}
		a.status = status.New(cfg.Status.Addr, src, root)
		if cfg.Status.Pprof {
			if err := a.status.EnablePprof(cfg.Status.PprofToken); err != nil {
				return fmt.Errorf("status.pprof: %w", err)
			}
		}
	}
	return nil
}

func (a *App) Store() storage.Store { return a.store }

func (a *App) Loop() *scheduler.Loop { return a.loop }

// Done is closed once the app context is cancelled.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, a.log)

	if a.status != nil {
		if err := a.status.Start(); err != nil {
			return fmt.Errorf("status: %w", err)
		}
	}
	a.sup.Go("status.collector", func(c context.Context) error {
		return a.collector.Run(c, a.bus)
	})
	a.sup.GoRestart("scheduler.loop", a.loop.Run, time.Second, 30*time.Second)
	a.maint.Start()

	a.sup.Go("config.watch", a.cfgm.Watch)
	a.sup.Go("config.reload", a.reloadLoop)

	a.log.Info("app started", logx.Duration("interval", a.loop.Interval()))
	return nil
}

// Wake runs a tick now instead of after the current sleep.
func (a *App) Wake() { a.loop.Wake() }

func (a *App) reloadLoop(ctx context.Context) error {
	sub := a.cfgm.Subscribe(4)
	defer a.cfgm.Unsubscribe(sub)
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return nil
		case next, ok := <-sub:
			if !ok {
				return nil
			}
			a.apply(last, next)
			last = next
		}
	}
}

// apply pushes the hot-reloadable parts of next into running components.
func (a *App) apply(prev, next *config.Config) {
	ch := config.Summarize(prev, next)
	if ch.Empty() {
		a.log.Debug("config reload without effective changes")
		return
	}
	a.logs.Apply(loggingConfig(next))
	a.loop.SetInterval(next.TickInterval())
	a.disp.Apply(dispatchConfig(next))
	a.sender.Apply(senderConfig(next))

	fields := append([]logx.Field{logx.String("changed", strings.Join(ch.Sections, ","))}, ch.Fields...)
	a.log.Info("config applied", fields...)
	if len(ch.Restart) > 0 {
		a.log.Warn("restart required for some changes", logx.String("sections", strings.Join(ch.Restart, ",")))
	}
}

// Stop shuts components down in dependency order. Each step is bounded so
// one slow component cannot hold up the rest.
func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		a.closeResources()
		return nil
	}
	a.log.Info("stopping")

	var errs []error
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		sctx, cancel := context.WithTimeout(ctx, max)
		defer cancel()
		if err := fn(sctx); err != nil {
			a.log.Warn("stop step failed", logx.String("step", name), logx.Err(err))
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			return
		}
		a.log.Debug("stop step done", logx.String("step", name), logx.Duration("took", time.Since(start)))
	}

	step("supervisor", 10*time.Second, a.sup.Stop)
	step("maintenance", 5*time.Second, func(c context.Context) error { a.maint.Stop(c); return nil })
	if a.status != nil {
		step("status", 3*time.Second, a.status.Stop)
	}
	a.closeResources()
	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return errors.Join(errs...)
}

func (a *App) closeResources() {
	if a.lease != nil {
		if err := a.lease.Close(); err != nil {
			a.log.Warn("close lease", logx.Err(err))
		}
		a.lease = nil
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("close storage", logx.Err(err))
		}
		a.store = nil
	}
}
