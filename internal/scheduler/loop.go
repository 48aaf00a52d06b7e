// Package scheduler runs the engine: every tick the dispatcher goes first,
// then the notifier, then the loop sleeps for the tick interval.
package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"schedbot/internal/dispatch"
	"schedbot/internal/eventbus"
	"schedbot/internal/notifier"
	logx "schedbot/pkg/logx"
)

const DefaultInterval = 2 * time.Second

type Dispatcher interface {
	Tick(ctx context.Context) (dispatch.Result, error)
}

type Reminders interface {
	Tick(ctx context.Context) (notifier.Result, error)
}

// Guard decides whether this instance may run a tick.
type Guard interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

type Deps struct {
	Dispatcher Dispatcher
	Reminders  Reminders // optional
	Guard      Guard     // optional
	Bus        eventbus.Bus
	Log        logx.Logger
	// Notify receives service manager states; nil uses sd_notify.
	Notify func(state string)
}

// Stats is the loop state shown on the status page.
type Stats struct {
	Ticks        uint64        `json:"ticks"`
	Failures     uint64        `json:"failures"`
	Skipped      uint64        `json:"skipped"`
	Leader       bool          `json:"leader"`
	Interval     time.Duration `json:"interval"`
	LastTick     time.Time     `json:"last_tick"`
	LastDuration time.Duration `json:"last_duration"`
	LastErr      string        `json:"last_err,omitempty"`
}

type Loop struct {
	dispatcher Dispatcher
	reminders  Reminders
	guard      Guard
	bus        eventbus.Bus
	log        logx.Logger
	notify     func(string)

	interval atomic.Int64
	wake     chan struct{}

	mu    sync.Mutex
	stats Stats
}

func New(d Deps, interval time.Duration) *Loop {
	if d.Bus == nil {
		d.Bus = eventbus.Nop()
	}
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	if d.Notify == nil {
		d.Notify = sdNotify
	}
	l := &Loop{
		dispatcher: d.Dispatcher,
		reminders:  d.Reminders,
		guard:      d.Guard,
		bus:        d.Bus,
		log:        d.Log.With(logx.String("comp", "scheduler")),
		notify:     d.Notify,
		wake:       make(chan struct{}, 1),
	}
	l.SetInterval(interval)
	return l
}

// SetInterval changes the sleep between ticks; it takes effect after the
// current sleep.
func (l *Loop) SetInterval(d time.Duration) {
	if d <= 0 {
		d = DefaultInterval
	}
	l.interval.Store(int64(d))
}

func (l *Loop) Interval() time.Duration { return time.Duration(l.interval.Load()) }

// Wake ends the current sleep early.
func (l *Loop) Wake() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Run ticks until ctx is cancelled. Cancellation lets the running tick
// finish and cuts the sleep short.
func (l *Loop) Run(ctx context.Context) error {
	l.notify(stateReady)
	l.log.Info("scheduler started", logx.Duration("interval", l.Interval()))
	defer func() {
		l.notify(stateStopping)
		if l.guard != nil {
			rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
			if err := l.guard.Release(rctx); err != nil {
				l.log.Warn("release lease failed", logx.Err(err))
			}
			cancel()
		}
		l.log.Info("scheduler stopped")
	}()

	for {
		l.Iterate(ctx)
		if ctx.Err() != nil {
			return nil
		}
		t := time.NewTimer(l.Interval())
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-l.wake:
			t.Stop()
		case <-t.C:
		}
	}
}

// Iterate runs one tick. Panics and errors are logged and never escape.
func (l *Loop) Iterate(ctx context.Context) {
	tctx := context.WithoutCancel(ctx)
	start := time.Now()
	var tickErr error

	defer func() {
		if r := recover(); r != nil {
			tickErr = fmt.Errorf("panic: %v", r)
			l.log.Error("tick panicked", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
		}
		l.finish(start, tickErr)
		l.notify(stateWatchdog)
	}()

	if l.guard != nil {
		ok, err := l.guard.Acquire(tctx)
		l.mu.Lock()
		l.stats.Leader = ok && err == nil
		l.mu.Unlock()
		if err != nil {
			tickErr = fmt.Errorf("acquire lease: %w", err)
			l.log.Warn("lease check failed, skipping tick", logx.Err(err))
			return
		}
		if !ok {
			l.mu.Lock()
			l.stats.Skipped++
			l.mu.Unlock()
			l.log.Trace("lease held by another instance")
			return
		}
	}

	res, err := l.dispatcher.Tick(tctx)
	if err != nil {
		tickErr = fmt.Errorf("dispatch: %w", err)
		l.log.Error("dispatch tick failed", logx.Err(err))
	}
	if l.reminders != nil {
		if _, err := l.reminders.Tick(tctx); err != nil {
			tickErr = fmt.Errorf("notify: %w", err)
			l.log.Error("notifier tick failed", logx.Err(err))
		}
	}
	l.bus.Publish(eventbus.Event{Kind: eventbus.TickDone, Count: res.Due})
}

func (l *Loop) finish(start time.Time, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stats.Ticks++
	l.stats.LastTick = start
	l.stats.LastDuration = time.Since(start)
	if err != nil {
		l.stats.Failures++
		l.stats.LastErr = err.Error()
		l.bus.Publish(eventbus.Event{Kind: eventbus.TickFailed, Err: err.Error()})
	}
}

func (l *Loop) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.stats
	s.Interval = l.Interval()
	return s
}
