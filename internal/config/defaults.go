package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	DefaultTickSeconds        = 2
	DefaultCaptionBudget      = 1000
	DefaultCaptionRetryBudget = 500
	DefaultSendTimeout        = 30 * time.Second
	DefaultMaintenance        = "@daily"
	DefaultHistoryRetention   = 30 * 24 * time.Hour
	DefaultSQLitePath         = "./data/schedbot.db"
	DefaultLockTTL            = 90 * time.Second
)

// ApplyDefaults fills unset fields in place.
func (c *Config) ApplyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "sqlite"
	}
	if isSQLite(c.Storage.Driver) && c.Storage.Path == "" {
		c.Storage.Path = DefaultSQLitePath
	}
	if c.Scheduler.TickIntervalSeconds <= 0 {
		c.Scheduler.TickIntervalSeconds = DefaultTickSeconds
	}
	if c.Scheduler.MaintenanceSchedule == "" {
		c.Scheduler.MaintenanceSchedule = DefaultMaintenance
	}
	if c.Dispatch.CaptionBudget <= 0 {
		c.Dispatch.CaptionBudget = DefaultCaptionBudget
	}
	if c.Dispatch.CaptionRetryBudget <= 0 {
		c.Dispatch.CaptionRetryBudget = DefaultCaptionRetryBudget
	}
	if c.Dispatch.PlaceholderLang == "" {
		c.Dispatch.PlaceholderLang = "en"
	}
	if c.Notifier.DefaultLanguage == "" {
		c.Notifier.DefaultLanguage = c.Dispatch.PlaceholderLang
	}
	if c.Notifier.RatePerSec == 0 {
		c.Notifier.RatePerSec = 3
	}
	if c.Lock.Key == "" {
		c.Lock.Key = "schedbot:leader"
	}
	if c.Status.Addr == "" {
		c.Status.Addr = "127.0.0.1:8089"
	}
}

func isSQLite(driver string) bool {
	d := strings.ToLower(strings.TrimSpace(driver))
	return d == "sqlite" || d == "sqlite3"
}

var validate = validator.New()

// Validate checks field constraints and that every duration parses.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %s", fe.Namespace(), fe.Tag()))
			}
			return errors.New("invalid config: " + strings.Join(msgs, "; "))
		}
		return err
	}
	if d := strings.ToLower(c.Storage.Driver); (d == "postgres" || d == "postgresql" || d == "pg") && strings.TrimSpace(c.Storage.DSN) == "" {
		return errors.New("invalid config: storage.dsn is required for postgres")
	}
	if c.Dispatch.CaptionRetryBudget > c.Dispatch.CaptionBudget {
		return errors.New("invalid config: dispatch.caption_retry_budget must not exceed caption_budget")
	}
	for path, raw := range map[string]string{
		"telegram.timeout":            c.Telegram.Timeout,
		"storage.busy_timeout":        c.Storage.BusyTimeout,
		"scheduler.history_retention": c.Scheduler.HistoryRetention,
		"dispatch.send_timeout":       c.Dispatch.SendTimeout,
		"notifier.retry_base":         c.Notifier.RetryBase,
		"lock.ttl":                    c.Lock.TTL,
	} {
		if _, err := ParseDurationField(path, raw); err != nil {
			return err
		}
	}
	// A tick runs under one lease term and may block on several sends.
	if c.Lock.Enabled && c.LockTTL() <= 2*c.SendTimeout() {
		return fmt.Errorf("invalid config: lock.ttl (%s) must exceed twice dispatch.send_timeout (%s)", c.LockTTL(), c.SendTimeout())
	}
	return nil
}

func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Scheduler.TickIntervalSeconds) * time.Second
}

func (c *Config) SendTimeout() time.Duration {
	d, _ := ParseDurationOrDefault("dispatch.send_timeout", c.Dispatch.SendTimeout, DefaultSendTimeout)
	return d
}

// HistoryRetention is 0 when history should be kept forever ("0" or "off").
func (c *Config) HistoryRetention() time.Duration {
	raw := strings.ToLower(strings.TrimSpace(c.Scheduler.HistoryRetention))
	if raw == "" {
		return DefaultHistoryRetention
	}
	if raw == "off" {
		return 0
	}
	d, _ := ParseDurationField("scheduler.history_retention", raw)
	return d
}

func (c *Config) LockTTL() time.Duration {
	d, _ := ParseDurationOrDefault("lock.ttl", c.Lock.TTL, DefaultLockTTL)
	return d
}

func (c *Config) TelegramTimeout() time.Duration {
	d, _ := ParseDurationOrDefault("telegram.timeout", c.Telegram.Timeout, 60*time.Second)
	return d
}

func (c *Config) BusyTimeout() time.Duration {
	d, _ := ParseDurationOrDefault("storage.busy_timeout", c.Storage.BusyTimeout, 5*time.Second)
	return d
}

func (c *Config) NotifierRetryBase() time.Duration {
	d, _ := ParseDurationOrDefault("notifier.retry_base", c.Notifier.RetryBase, 500*time.Millisecond)
	return d
}

// ParseDurationField parses a non-negative duration; empty means 0.
// "off" is accepted as 0 as well.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" || strings.EqualFold(s, "off") {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}
