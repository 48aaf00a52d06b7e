package scheduler

import (
	"context"
	"time"

	"schedbot/internal/clock"
	"schedbot/internal/post"
	logx "schedbot/pkg/logx"

	"github.com/robfig/cron/v3"
)

// Maintenance runs housekeeping jobs on a cron schedule.
type Maintenance struct {
	c         *cron.Cron
	history   post.History
	retention time.Duration
	clock     clock.Clock
	log       logx.Logger
}

// NewMaintenance schedules delivery history pruning. A zero retention keeps
// history forever and schedules nothing.
func NewMaintenance(schedule string, retention time.Duration, history post.History, clk clock.Clock, log logx.Logger) (*Maintenance, error) {
	if clk == nil {
		clk = clock.Real()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	m := &Maintenance{
		c:         cron.New(cron.WithParser(parser), cron.WithLocation(time.UTC)),
		history:   history,
		retention: retention,
		clock:     clk,
		log:       log.With(logx.String("comp", "maintenance")),
	}
	if history == nil || retention <= 0 {
		return m, nil
	}
	sch, err := ParseSchedule(schedule)
	if err != nil {
		return nil, err
	}
	m.c.Schedule(sch, cron.FuncJob(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		_, _ = m.Prune(ctx)
	}))
	return m, nil
}

func (m *Maintenance) Start() { m.c.Start() }

// Stop waits for a running job until ctx expires.
func (m *Maintenance) Stop(ctx context.Context) {
	done := m.c.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// Prune deletes delivery records older than the retention window.
func (m *Maintenance) Prune(ctx context.Context) (int64, error) {
	if m.history == nil || m.retention <= 0 {
		return 0, nil
	}
	before := m.clock.Now().Add(-m.retention)
	n, err := m.history.PruneDeliveries(ctx, before)
	if err != nil {
		m.log.Warn("prune delivery history failed", logx.Err(err))
		return 0, err
	}
	if n > 0 {
		m.log.Info("delivery history pruned", logx.Int64("deleted", n), logx.Time("before", before))
	}
	return n, nil
}
