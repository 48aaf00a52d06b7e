package notifier

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"schedbot/internal/transport"
	logx "schedbot/pkg/logx"

	"golang.org/x/time/rate"
)

// SenderConfig controls owner notice delivery.
type SenderConfig struct {
	RatePerSec    int
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
}

// Sender sends owner notices as plain text.
type Sender struct {
	client transport.Client
	log    logx.Logger

	mu      sync.Mutex
	cfg     SenderConfig
	limiter *rate.Limiter
}

func NewSender(client transport.Client, cfg SenderConfig, log logx.Logger) *Sender {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Sender{client: client, log: log.With(logx.String("comp", "owner_notice"))}
	s.Apply(cfg)
	return s
}

// Apply swaps limits; in-flight sends keep the limiter they started with.
func (s *Sender) Apply(cfg SenderConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	if cfg.RatePerSec > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	} else {
		s.limiter = nil
	}
}

// NotifyOwner sends text to chatID, retrying flood and transient errors.
func (s *Sender) NotifyOwner(ctx context.Context, chatID, text string) error {
	if chatID == "" || text == "" {
		return nil
	}
	s.mu.Lock()
	cfg, lim := s.cfg, s.limiter
	s.mu.Unlock()

	attempts := 1
	if cfg.RetryMax > 0 {
		attempts += cfg.RetryMax
	}
	to := transport.ChatTarget{ChatID: chatID}
	opt := transport.SendOptions{Markup: transport.MarkupNone, DisablePreview: true}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if lim != nil {
			if err := lim.Wait(ctx); err != nil {
				return err
			}
		}
		_, err := s.client.SendText(ctx, to, text, opt)
		if err == nil {
			return nil
		}
		lastErr = err
		s.log.Debug("owner notice failed", logx.String("chat_id", chatID), logx.Int("attempt", attempt), logx.Err(err))

		if attempt >= attempts || !retryable(err) {
			break
		}
		t := time.NewTimer(retryDelay(cfg, attempt, err))
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
	}
	return lastErr
}

// retryable reports whether another attempt could succeed.
func retryable(err error) bool {
	switch transport.Classify(err) {
	case transport.KindForbidden, transport.KindChatNotFound:
		return false
	}
	return !errors.Is(err, context.Canceled)
}

func retryDelay(cfg SenderConfig, attempt int, err error) time.Duration {
	var te *transport.Error
	if errors.As(err, &te) && te.RetryAfter > 0 {
		return te.RetryAfter
	}
	base := cfg.RetryBase
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	maxD := cfg.RetryMaxDelay
	if maxD <= 0 {
		maxD = 10 * time.Second
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxD {
			d = maxD
			break
		}
	}
	// Jitter 0.7..1.3
	d = time.Duration(float64(d) * (0.7 + rand.Float64()*0.6))
	if d > maxD {
		d = maxD
	}
	return d
}
