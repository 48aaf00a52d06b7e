// Package lock keeps a single active engine across instances with a Redis
// lease. The holder renews on every tick; a crashed holder loses the lease
// after its TTL.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	logx "schedbot/pkg/logx"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrNotHeld = errors.New("lock: lease not held")

type Config struct {
	Addr     string
	Password string
	DB       int
	Key      string
	TTL      time.Duration
}

// renew extends the lease only when it still carries our token.
var renew = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

var release = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

type Lease struct {
	rdb   redis.UniversalClient
	key   string
	ttl   time.Duration
	token string
	log   logx.Logger

	mu   sync.Mutex
	held bool
}

// New connects to Redis and verifies it answers.
func New(ctx context.Context, cfg Config, log logx.Logger) (*Lease, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return NewWithClient(rdb, cfg, log), nil
}

func NewWithClient(rdb redis.UniversalClient, cfg Config, log logx.Logger) *Lease {
	if cfg.Key == "" {
		cfg.Key = "schedbot:leader"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 90 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Lease{
		rdb:   rdb,
		key:   cfg.Key,
		ttl:   cfg.TTL,
		token: uuid.NewString(),
		log:   log.With(logx.String("comp", "lock")),
	}
}

func (l *Lease) Token() string { return l.token }

// Acquire takes the lease or renews it when already held.
func (l *Lease) Acquire(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held {
		n, err := renew.Run(ctx, l.rdb, []string{l.key}, l.token, l.ttl.Milliseconds()).Int()
		if err != nil {
			return false, err
		}
		if n == 1 {
			return true, nil
		}
		l.held = false
		l.log.Warn("lease lost", logx.String("key", l.key))
	}

	ok, err := l.rdb.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return false, err
	}
	if ok {
		l.held = true
		l.log.Info("lease acquired", logx.String("key", l.key), logx.Duration("ttl", l.ttl))
	}
	return ok, nil
}

// Release gives the lease up. Releasing a lease that is not held is a no-op.
func (l *Lease) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.held {
		return nil
	}
	l.held = false
	n, err := release.Run(ctx, l.rdb, []string{l.key}, l.token).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}

func (l *Lease) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held
}

func (l *Lease) Close() error { return l.rdb.Close() }
