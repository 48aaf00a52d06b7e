// Package supervisor runs the long-lived goroutines of the service under one
// cancellable context, with panic capture and restart backoff.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	logx "schedbot/pkg/logx"
)

// Stat is a per-name view of supervised goroutines for the status page.
type Stat struct {
	Name     string    `json:"name"`
	Running  bool      `json:"running"`
	Restarts int       `json:"restarts"`
	Panics   int       `json:"panics"`
	LastErr  string    `json:"last_err,omitempty"`
	Since    time.Time `json:"since"`
}

type Supervisor struct {
	ctx    context.Context
	cancel context.CancelFunc
	log    logx.Logger

	wg       sync.WaitGroup
	doneOnce sync.Once
	done     chan struct{}

	mu       sync.Mutex
	firstErr error
	stats    map[string]*Stat
}

func New(parent context.Context, log logx.Logger) *Supervisor {
	if log.IsZero() {
		log = logx.Nop()
	}
	ctx, cancel := context.WithCancel(parent)
	return &Supervisor{
		ctx:    ctx,
		cancel: cancel,
		log:    log,
		done:   make(chan struct{}),
		stats:  map[string]*Stat{},
	}
}

func (s *Supervisor) Context() context.Context { return s.ctx }

// Err returns the first error reported by a supervised goroutine.
func (s *Supervisor) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.firstErr
}

// Go runs fn once. A panic is logged and recorded as an error.
func (s *Supervisor) Go(name string, fn func(ctx context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.mark(name, true, nil, false)
		err := s.run(name, fn)
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		s.mark(name, false, err, false)
	}()
}

// GoRestart runs fn and restarts it after a panic or error with exponential
// backoff between min and max. A nil return or context cancellation stops it.
func (s *Supervisor) GoRestart(name string, fn func(ctx context.Context) error, min, max time.Duration) {
	if min <= 0 {
		min = 250 * time.Millisecond
	}
	if max < min {
		max = min
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		backoff := min
		restart := false
		for {
			s.mark(name, true, nil, restart)
			started := time.Now()
			err := s.run(name, fn)
			if err == nil || s.ctx.Err() != nil || errors.Is(err, context.Canceled) {
				s.mark(name, false, nil, false)
				return
			}
			s.mark(name, false, err, false)
			if time.Since(started) >= 30*time.Second {
				backoff = min
			}
			s.log.Warn("goroutine restarting", logx.String("name", name), logx.Duration("backoff", backoff), logx.Err(err))

			t := time.NewTimer(backoff)
			select {
			case <-s.ctx.Done():
				t.Stop()
				return
			case <-t.C:
			}
			backoff *= 2
			if backoff > max {
				backoff = max
			}
			restart = true
		}
	}()
}

func (s *Supervisor) run(name string, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("goroutine panicked", logx.String("name", name), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			s.mu.Lock()
			s.stat(name).Panics++
			s.mu.Unlock()
			err = fmt.Errorf("panic in %s: %v", name, r)
		}
	}()
	return fn(s.ctx)
}

func (s *Supervisor) mark(name string, running bool, err error, restart bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stat(name)
	st.Running = running
	if running {
		st.Since = time.Now()
	}
	if restart {
		st.Restarts++
	}
	if err != nil {
		st.LastErr = err.Error()
		if s.firstErr == nil {
			s.firstErr = fmt.Errorf("%s: %w", name, err)
		}
	}
}

// stat must be called with mu held.
func (s *Supervisor) stat(name string) *Stat {
	st := s.stats[name]
	if st == nil {
		st = &Stat{Name: name}
		s.stats[name] = st
	}
	return st
}

func (s *Supervisor) Snapshot() []Stat {
	s.mu.Lock()
	out := make([]Stat, 0, len(s.stats))
	for _, st := range s.stats {
		out = append(out, *st)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Stop cancels every goroutine and waits for them until ctx expires.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.cancel()
	return s.Wait(ctx)
}

func (s *Supervisor) Wait(ctx context.Context) error {
	s.doneOnce.Do(func() {
		go func() {
			s.wg.Wait()
			close(s.done)
		}()
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return s.Err()
	}
}
