package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables that override file values. Secrets usually live here.
const (
	EnvTelegramToken = "SCHEDBOT_TELEGRAM_TOKEN"
	EnvStorageDriver = "SCHEDBOT_STORAGE_DRIVER"
	EnvStorageDSN    = "SCHEDBOT_STORAGE_DSN"
	EnvRedisAddr     = "SCHEDBOT_REDIS_ADDR"
	EnvRedisPassword = "SCHEDBOT_REDIS_PASSWORD"
	EnvStatusAddr    = "SCHEDBOT_STATUS_ADDR"
	EnvLogLevel      = "SCHEDBOT_LOG_LEVEL"
	EnvLogChatID     = "SCHEDBOT_LOG_CHAT_ID"
	EnvTickSeconds   = "SCHEDBOT_TICK_SECONDS"
	EnvPprofToken    = "SCHEDBOT_PPROF_TOKEN"
)

// LoadDotEnv loads .env files into the process environment. Missing files
// are not an error; variables already set are kept.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// ApplyEnv overrides cfg fields from the environment using lookup
// (os.LookupEnv when nil).
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	str(EnvTelegramToken, &c.Telegram.Token)
	str(EnvStorageDriver, &c.Storage.Driver)
	str(EnvStorageDSN, &c.Storage.DSN)
	str(EnvRedisPassword, &c.Lock.RedisPassword)
	str(EnvLogLevel, &c.Logging.Level)
	str(EnvPprofToken, &c.Status.PprofToken)
	if v, ok := lookup(EnvRedisAddr); ok && strings.TrimSpace(v) != "" {
		c.Lock.RedisAddr = strings.TrimSpace(v)
		c.Lock.Enabled = true
	}
	if v, ok := lookup(EnvStatusAddr); ok && strings.TrimSpace(v) != "" {
		c.Status.Addr = strings.TrimSpace(v)
		c.Status.Enabled = true
	}
	if v, ok := lookup(EnvLogChatID); ok && strings.TrimSpace(v) != "" {
		c.Logging.Telegram.ChatID = strings.TrimSpace(v)
		c.Logging.Telegram.Enabled = true
	}
	if v, ok := lookup(EnvTickSeconds); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			c.Scheduler.TickIntervalSeconds = n
		}
	}
}
