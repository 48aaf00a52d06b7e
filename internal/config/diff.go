package config

import (
	"reflect"

	"schedbot/pkg/logx"
)

// Change describes what a reload touched.
type Change struct {
	// Sections lists top-level keys whose values differ.
	Sections []string
	// Restart lists sections that only take effect after a restart.
	Restart []string
	// Fields are safe to log; secrets are reported as *_set booleans.
	Fields []logx.Field
}

func (c Change) Empty() bool { return len(c.Sections) == 0 }

// Summarize compares two configs section by section.
func Summarize(oldCfg, newCfg *Config) Change {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var ch Change
	mark := func(name string, restart bool, fields ...logx.Field) {
		ch.Sections = append(ch.Sections, name)
		if restart {
			ch.Restart = append(ch.Restart, name)
		}
		ch.Fields = append(ch.Fields, fields...)
	}

	if oldCfg.Telegram != newCfg.Telegram {
		mark("telegram", true,
			logx.Bool("telegram.token_set", newCfg.Telegram.Token != ""),
			logx.String("telegram.api_url", newCfg.Telegram.APIURL),
		)
	}
	if oldCfg.Logging != newCfg.Logging {
		mark("logging", false,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram", newCfg.Logging.Telegram.Enabled),
		)
	}
	if oldCfg.Storage != newCfg.Storage {
		mark("storage", true,
			logx.String("storage.driver", newCfg.Storage.Driver),
			logx.Bool("storage.dsn_set", newCfg.Storage.DSN != ""),
		)
	}
	if oldCfg.Scheduler != newCfg.Scheduler {
		// the maintenance cron is bound at startup
		restart := oldCfg.Scheduler.MaintenanceSchedule != newCfg.Scheduler.MaintenanceSchedule
		mark("scheduler", restart,
			logx.Int("scheduler.tick_interval_seconds", newCfg.Scheduler.TickIntervalSeconds),
			logx.String("scheduler.maintenance_schedule", newCfg.Scheduler.MaintenanceSchedule),
		)
	}
	if oldCfg.Dispatch != newCfg.Dispatch {
		mark("dispatch", false,
			logx.Int("dispatch.caption_budget", newCfg.Dispatch.CaptionBudget),
			logx.Int("dispatch.caption_retry_budget", newCfg.Dispatch.CaptionRetryBudget),
			logx.String("dispatch.send_timeout", newCfg.Dispatch.SendTimeout),
		)
	}
	if !reflect.DeepEqual(oldCfg.Notifier, newCfg.Notifier) {
		restart := oldCfg.Notifier.On() != newCfg.Notifier.On()
		mark("notifier", restart,
			logx.Bool("notifier.enabled", newCfg.Notifier.On()),
			logx.Int("notifier.rate_per_sec", newCfg.Notifier.RatePerSec),
		)
	}
	if oldCfg.Lock != newCfg.Lock {
		mark("lock", true,
			logx.Bool("lock.enabled", newCfg.Lock.Enabled),
			logx.String("lock.redis_addr", newCfg.Lock.RedisAddr),
		)
	}
	if oldCfg.Status != newCfg.Status {
		mark("status", true,
			logx.Bool("status.enabled", newCfg.Status.Enabled),
			logx.String("status.addr", newCfg.Status.Addr),
			logx.Bool("status.pprof", newCfg.Status.Pprof),
		)
	}
	return ch
}
