// Package status exposes the engine's health and counters over HTTP.
package status

import (
	"context"
	"sync"
	"time"

	"schedbot/internal/eventbus"
)

// Counters aggregates engine events since start.
type Counters struct {
	Published   uint64 `json:"published"`
	Failed      uint64 `json:"failed"`
	Skipped     uint64 `json:"skipped"`
	Rescheduled uint64 `json:"rescheduled"`
	Reminders   uint64 `json:"reminders"`
	ReminderErr uint64 `json:"reminder_errors"`
	TickErrors  uint64 `json:"tick_errors"`
}

type Recent struct {
	Kind   eventbus.Kind `json:"kind"`
	At     time.Time     `json:"at"`
	PostID string        `json:"post_id,omitempty"`
	Err    string        `json:"error,omitempty"`
}

// Collector consumes bus events until its context ends.
type Collector struct {
	mu       sync.Mutex
	counters Counters
	recent   []Recent
	keep     int
	started  time.Time
}

func NewCollector(keep int) *Collector {
	if keep <= 0 {
		keep = 20
	}
	return &Collector{keep: keep, started: time.Now()}
}

// Run subscribes to bus and blocks until ctx is done.
func (c *Collector) Run(ctx context.Context, bus eventbus.Bus) error {
	ch, unsub := bus.Subscribe(256)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-ch:
			if !ok {
				return nil
			}
			c.Observe(e)
		}
	}
}

func (c *Collector) Observe(e eventbus.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch e.Kind {
	case eventbus.PostPublished:
		c.counters.Published++
	case eventbus.PostFailed:
		c.counters.Failed++
	case eventbus.PostSkipped:
		c.counters.Skipped++
	case eventbus.PostRescheduled:
		c.counters.Rescheduled++
	case eventbus.ReminderSent:
		c.counters.Reminders++
	case eventbus.ReminderFail:
		c.counters.ReminderErr++
	case eventbus.TickFailed:
		c.counters.TickErrors++
	case eventbus.TickDone:
		return
	}
	c.recent = append(c.recent, Recent{Kind: e.Kind, At: e.At, PostID: e.PostID, Err: e.Err})
	if len(c.recent) > c.keep {
		c.recent = c.recent[len(c.recent)-c.keep:]
	}
}

func (c *Collector) Counters() Counters {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counters
}

// RecentEvents returns the newest events first.
func (c *Collector) RecentEvents() []Recent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Recent, 0, len(c.recent))
	for i := len(c.recent) - 1; i >= 0; i-- {
		out = append(out, c.recent[i])
	}
	return out
}

func (c *Collector) Uptime() time.Duration { return time.Since(c.started) }
