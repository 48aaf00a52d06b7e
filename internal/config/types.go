// Package config loads the service configuration from YAML or JSON, applies
// environment overrides and hot-reloads the file on change.
package config

// Config is the on-disk configuration. Durations are Go duration strings.
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Dispatch  DispatchConfig  `json:"dispatch"`
	Notifier  NotifierConfig  `json:"notifier"`
	Lock      LockConfig      `json:"lock"`
	Status    StatusConfig    `json:"status"`
}

type TelegramConfig struct {
	Token   string `json:"token" validate:"required"`
	APIURL  string `json:"api_url,omitempty" validate:"omitempty,url"`
	Timeout string `json:"timeout,omitempty"`
}

type LoggingConfig struct {
	Level    string                `json:"level" validate:"omitempty,oneof=trace debug info warn warning error TRACE DEBUG INFO WARN WARNING ERROR"`
	Console  bool                  `json:"console"`
	File     LoggingFileConfig     `json:"file"`
	Telegram LoggingTelegramConfig `json:"telegram"`
}

type LoggingFileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

type LoggingTelegramConfig struct {
	Enabled    bool   `json:"enabled"`
	ChatID     string `json:"chat_id,omitempty" validate:"required_if=Enabled true"`
	ThreadID   int    `json:"thread_id,omitempty"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty" validate:"min=0"`
}

type StorageConfig struct {
	Driver      string `json:"driver" validate:"omitempty,oneof=sqlite sqlite3 postgres postgresql pg memory mem"`
	Path        string `json:"path,omitempty"`
	DSN         string `json:"dsn,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
	MaxConns    int    `json:"max_conns,omitempty" validate:"min=0"`
}

type SchedulerConfig struct {
	TickIntervalSeconds int    `json:"tick_interval_seconds" validate:"min=0"`
	MaintenanceSchedule string `json:"maintenance_schedule,omitempty"`
	HistoryRetention    string `json:"history_retention,omitempty"`
}

type DispatchConfig struct {
	CaptionBudget      int    `json:"caption_budget" validate:"min=0"`
	CaptionRetryBudget int    `json:"caption_retry_budget" validate:"min=0"`
	PlaceholderLang    string `json:"placeholder_lang,omitempty"`
	SendTimeout        string `json:"send_timeout,omitempty"`
}

type NotifierConfig struct {
	// Enabled defaults to true when omitted.
	Enabled         *bool  `json:"enabled,omitempty"`
	RatePerSec      int    `json:"rate_per_sec" validate:"min=0"`
	RetryMax        int    `json:"retry_max" validate:"min=0"`
	RetryBase       string `json:"retry_base,omitempty"`
	DefaultLanguage string `json:"default_language,omitempty"`
}

type LockConfig struct {
	Enabled       bool   `json:"enabled"`
	RedisAddr     string `json:"redis_addr,omitempty" validate:"required_if=Enabled true"`
	RedisPassword string `json:"redis_password,omitempty"`
	RedisDB       int    `json:"redis_db,omitempty" validate:"min=0"`
	Key           string `json:"key,omitempty"`
	TTL           string `json:"ttl,omitempty"`
}

type StatusConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty" validate:"required_if=Enabled true"`
	// Pprof mounts /debug/pprof/ on the status server.
	Pprof      bool   `json:"pprof"`
	PprofToken string `json:"pprof_token,omitempty"`
}

func (n NotifierConfig) On() bool { return n.Enabled == nil || *n.Enabled }
