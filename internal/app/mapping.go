package app

import (
	"schedbot/internal/config"
	"schedbot/internal/dispatch"
	"schedbot/internal/lock"
	"schedbot/internal/notifier"
	"schedbot/internal/storage"
	"schedbot/internal/transport/telegram"
	logx "schedbot/pkg/logx"
)

func loggingConfig(cfg *config.Config) logx.Config {
	lc := cfg.Logging
	return logx.Config{
		Level:   lc.Level,
		Console: lc.Console,
		File:    logx.FileConfig{Enabled: lc.File.Enabled, Path: lc.File.Path},
		Chat: logx.ChatConfig{
			Enabled:    lc.Telegram.Enabled,
			ChatID:     lc.Telegram.ChatID,
			ThreadID:   lc.Telegram.ThreadID,
			MinLevel:   lc.Telegram.MinLevel,
			RatePerSec: lc.Telegram.RatePerSec,
		},
	}
}

func telegramConfig(cfg *config.Config) telegram.Config {
	return telegram.Config{
		Token:   cfg.Telegram.Token,
		APIURL:  cfg.Telegram.APIURL,
		Timeout: cfg.TelegramTimeout(),
	}
}

func storageConfig(cfg *config.Config) storage.Config {
	return storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		DSN:         cfg.Storage.DSN,
		BusyTimeout: cfg.BusyTimeout(),
		MaxConns:    cfg.Storage.MaxConns,
	}
}

func dispatchConfig(cfg *config.Config) dispatch.Config {
	return dispatch.Config{
		CaptionBudget:      cfg.Dispatch.CaptionBudget,
		CaptionRetryBudget: cfg.Dispatch.CaptionRetryBudget,
		SendTimeout:        cfg.SendTimeout(),
		Language:           cfg.Dispatch.PlaceholderLang,
	}
}

func senderConfig(cfg *config.Config) notifier.SenderConfig {
	return notifier.SenderConfig{
		RatePerSec: cfg.Notifier.RatePerSec,
		RetryMax:   cfg.Notifier.RetryMax,
		RetryBase:  cfg.NotifierRetryBase(),
	}
}

func lockConfig(cfg *config.Config) lock.Config {
	return lock.Config{
		Addr:     cfg.Lock.RedisAddr,
		Password: cfg.Lock.RedisPassword,
		DB:       cfg.Lock.RedisDB,
		Key:      cfg.Lock.Key,
		TTL:      cfg.LockTTL(),
	}
}
