package notifier

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"schedbot/internal/clock"
	"schedbot/internal/post"
	"schedbot/internal/storage"
)

var t0 = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

type owners struct {
	mu   sync.Mutex
	fail error
	sent []string
}

func (o *owners) NotifyOwner(ctx context.Context, chatID, text string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fail != nil {
		return o.fail
	}
	o.sent = append(o.sent, chatID+"|"+text)
	return nil
}

func (o *owners) messages() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.sent...)
}

func setup(t *testing.T, notifyBefore int) (storage.Store, *owners, *clock.Manual, *Notifier) {
	t.Helper()
	ctx := context.Background()
	st := storage.NewMemory()
	_ = st.SaveChannel(ctx, post.Channel{ID: "news", ChatID: "-100", Name: "News"})
	_ = st.SaveUser(ctx, post.User{ID: "u1", Language: "en", NotifyBeforeMinutes: notifyBefore})
	o := &owners{}
	clk := clock.NewManual(t0)
	n := New(Deps{Store: st, Sender: o, Clock: clk})
	return st, o, clk, n
}

func save(t *testing.T, st storage.Store, p post.Post) {
	t.Helper()
	if p.Channel.IsZero() {
		p.Channel = post.ChannelRef{ChannelID: "news"}
	}
	if p.OwnerID == "" {
		p.OwnerID = "u1"
	}
	if err := st.SavePost(context.Background(), p); err != nil {
		t.Fatalf("save: %v", err)
	}
}

func TestReminderFiresOncePerCycle(t *testing.T) {
	t.Parallel()
	st, o, clk, n := setup(t, 10)
	ctx := context.Background()
	save(t, st, post.Post{ID: "p1", Text: "x", PublishTime: post.FormatTime(t0.Add(7 * time.Minute))})

	res, err := n.Tick(ctx)
	if err != nil || res.Sent != 1 {
		t.Fatalf("tick: %+v %v", res, err)
	}
	msgs := o.messages()
	if len(msgs) != 1 {
		t.Fatalf("messages: %v", msgs)
	}
	for _, want := range []string{"u1|", "p1", "News", "7 min"} {
		if !strings.Contains(msgs[0], want) {
			t.Fatalf("reminder %q lacks %q", msgs[0], want)
		}
	}
	p, _ := st.GetPost(ctx, "p1")
	if !p.Notified {
		t.Fatalf("notified not set")
	}

	clk.Advance(time.Minute)
	if res, _ := n.Tick(ctx); res.Sent != 0 || len(o.messages()) != 1 {
		t.Fatalf("second tick sent again: %+v", res)
	}
}

func TestReminderUnderAMinute(t *testing.T) {
	t.Parallel()
	st, o, _, n := setup(t, 5)
	save(t, st, post.Post{ID: "p1", Text: "x", PublishTime: post.FormatTime(t0.Add(30 * time.Second))})

	if _, err := n.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	msgs := o.messages()
	if len(msgs) != 1 || !strings.Contains(msgs[0], "less than a minute") {
		t.Fatalf("messages: %v", msgs)
	}
}

func TestReminderWindow(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		offset time.Duration
		want   int
	}{
		{"before window", 11 * time.Minute, 0},
		{"window start", 10 * time.Minute, 1},
		{"inside", 3 * time.Minute, 1},
		{"at publish time", 0, 0},
		{"overdue", -time.Minute, 0},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			st, o, _, n := setup(t, 10)
			save(t, st, post.Post{ID: "p", Text: "x", PublishTime: post.FormatTime(t0.Add(tc.offset))})
			if _, err := n.Tick(context.Background()); err != nil {
				t.Fatalf("tick: %v", err)
			}
			if got := len(o.messages()); got != tc.want {
				t.Fatalf("sent %d, want %d", got, tc.want)
			}
		})
	}
}

func TestReminderSkips(t *testing.T) {
	t.Parallel()
	st, o, _, n := setup(t, 0)
	ctx := context.Background()
	_ = st.SaveUser(ctx, post.User{ID: "u2", NotifyBeforeMinutes: 10})

	at := post.FormatTime(t0.Add(5 * time.Minute))
	save(t, st, post.Post{ID: "lead-zero", Text: "x", PublishTime: at})
	save(t, st, post.Post{ID: "no-user", OwnerID: "ghost", Text: "x", PublishTime: at})
	save(t, st, post.Post{ID: "draft", OwnerID: "u2", Text: "x", PublishTime: at, Draft: true})
	save(t, st, post.Post{ID: "done", OwnerID: "u2", Text: "x", PublishTime: at, Published: true})
	save(t, st, post.Post{ID: "already", OwnerID: "u2", Text: "x", PublishTime: at, Notified: true})
	save(t, st, post.Post{ID: "garbage", OwnerID: "u2", Text: "x", PublishTime: "soon"})

	if res, err := n.Tick(ctx); err != nil || res.Sent != 0 {
		t.Fatalf("tick: %+v %v", res, err)
	}
	if msgs := o.messages(); len(msgs) != 0 {
		t.Fatalf("messages: %v", msgs)
	}
}

func TestReminderFailureLeavesNotifiedUnset(t *testing.T) {
	t.Parallel()
	st, o, _, n := setup(t, 10)
	ctx := context.Background()
	o.fail = errors.New("network down")
	save(t, st, post.Post{ID: "p", Text: "x", PublishTime: post.FormatTime(t0.Add(2 * time.Minute))})

	res, err := n.Tick(ctx)
	if err != nil || res.Failed != 1 {
		t.Fatalf("tick: %+v %v", res, err)
	}
	p, _ := st.GetPost(ctx, "p")
	if p.Notified {
		t.Fatalf("notified set after failure")
	}

	o.mu.Lock()
	o.fail = nil
	o.mu.Unlock()
	if res, _ := n.Tick(ctx); res.Sent != 1 {
		t.Fatalf("retry tick: %+v", res)
	}
}

func TestReminderUsesOwnerChatAndLanguage(t *testing.T) {
	t.Parallel()
	st, o, _, n := setup(t, 10)
	ctx := context.Background()
	_ = st.SaveUser(ctx, post.User{ID: "u3", ChatID: "555", Language: "ru", NotifyBeforeMinutes: 10})
	save(t, st, post.Post{ID: "p", OwnerID: "u3", Text: "x", Channel: post.ParseChannelRef("@direct"), PublishTime: post.FormatTime(t0.Add(4 * time.Minute))})

	if _, err := n.Tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}
	msgs := o.messages()
	if len(msgs) != 1 || !strings.HasPrefix(msgs[0], "555|") || !strings.Contains(msgs[0], "@direct") || !strings.Contains(msgs[0], "мин") {
		t.Fatalf("messages: %v", msgs)
	}
}
