package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"schedbot/internal/clock"
	"schedbot/internal/config"
	"schedbot/internal/post"
	"schedbot/internal/transport/transporttest"
)

const testConfig = `
telegram:
  token: "123:test"
logging:
  level: error
storage:
  driver: memory
scheduler:
  tick_interval_seconds: 1
  history_retention: "off"
`

func newTestApp(t *testing.T, body string) (*App, *transporttest.Recorder, *clock.Manual) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "schedbot.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	rec := &transporttest.Recorder{}
	clk := clock.NewManual(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))
	a, err := New(context.Background(), path, WithClient(rec), WithClock(clk), WithNotify(func(string) {}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a, rec, clk
}

func TestNewRejectsBadConfig(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("telegram: {}\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := New(context.Background(), path, WithClient(&transporttest.Recorder{})); err == nil {
		t.Fatalf("expected error for missing token")
	}
}

func TestAppPublishesDuePost(t *testing.T) {
	t.Parallel()

	a, rec, _ := newTestApp(t, testConfig)
	ctx := context.Background()
	st := a.Store()
	if err := st.SaveChannel(ctx, post.Channel{ID: "c1", ChatID: "-1001", Name: "News"}); err != nil {
		t.Fatalf("SaveChannel: %v", err)
	}
	if err := st.SavePost(ctx, post.Post{
		ID:          "p1",
		Channel:     post.ChannelRef{ChannelID: "c1"},
		Text:        "hello",
		PublishTime: "2024-05-01T09:59:00Z",
	}); err != nil {
		t.Fatalf("SavePost: %v", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := a.Start(runCtx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for len(rec.Calls()) == 0 && time.Now().Before(deadline) {
		a.Wake()
		time.Sleep(20 * time.Millisecond)
	}
	calls := rec.Calls()
	if len(calls) != 1 || calls[0].Text != "hello" || calls[0].To.ChatID != "-1001" {
		t.Fatalf("calls=%+v", calls)
	}

	got, err := st.GetPost(ctx, "p1")
	if err != nil || got == nil || !got.Published {
		t.Fatalf("post not published: %+v err=%v", got, err)
	}

	stopCtx, stopCancel := context.WithTimeout(ctx, 5*time.Second)
	defer stopCancel()
	if err := a.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if a.Store() != nil {
		t.Fatalf("store should be closed after Stop")
	}
}

func TestApplyHotReload(t *testing.T) {
	t.Parallel()

	a, _, _ := newTestApp(t, testConfig)
	defer func() { _ = a.Stop(context.Background()) }()

	prev := a.cfgm.Get()
	next := *prev
	next.Scheduler.TickIntervalSeconds = 7
	next.Dispatch.CaptionBudget = 800
	a.apply(prev, &next)

	if got := a.loop.Interval(); got != 7*time.Second {
		t.Fatalf("interval=%v", got)
	}
}

func TestMappings(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{Telegram: config.TelegramConfig{Token: "t"}}
	cfg.ApplyDefaults()
	cfg.Dispatch.SendTimeout = "5s"
	cfg.Lock.TTL = "10s"
	cfg.Logging.Telegram = config.LoggingTelegramConfig{Enabled: true, ChatID: "-42", ThreadID: 3}

	if d := dispatchConfig(cfg); d.SendTimeout != 5*time.Second || d.CaptionBudget != 1000 || d.Language != "en" {
		t.Fatalf("dispatch=%+v", d)
	}
	if l := lockConfig(cfg); l.TTL != 10*time.Second || l.Key != "schedbot:leader" {
		t.Fatalf("lock=%+v", l)
	}
	if lc := loggingConfig(cfg); !lc.Chat.Enabled || lc.Chat.ChatID != "-42" || lc.Chat.ThreadID != 3 {
		t.Fatalf("logging=%+v", lc)
	}
	if sc := storageConfig(cfg); sc.Driver != "sqlite" || sc.BusyTimeout != 5*time.Second {
		t.Fatalf("storage=%+v", sc)
	}
}
