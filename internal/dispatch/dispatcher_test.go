package dispatch

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"schedbot/internal/clock"
	"schedbot/internal/eventbus"
	"schedbot/internal/post"
	"schedbot/internal/storage"
	"schedbot/internal/transport"
	"schedbot/internal/transport/transporttest"
	logx "schedbot/pkg/logx"
)

var t0 = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

type notices struct {
	mu   sync.Mutex
	sent []string // chat|text
}

func (n *notices) NotifyOwner(ctx context.Context, chatID, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, chatID+"|"+text)
	return nil
}

func (n *notices) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.sent...)
}

type fixture struct {
	store   storage.Store
	client  *transporttest.Recorder
	notices *notices
	bus     eventbus.Bus
	d       *Dispatcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := storage.NewMemory()
	f := &fixture{
		store:   st,
		client:  &transporttest.Recorder{},
		notices: &notices{},
		bus:     eventbus.New(),
	}
	f.d = New(Deps{
		Store:   st,
		History: st,
		Client:  f.client,
		Notices: f.notices,
		Clock:   clock.NewManual(t0),
		Bus:     f.bus,
	}, Config{})
	ctx := context.Background()
	if err := st.SaveChannel(ctx, post.Channel{ID: "news", ChatID: "-100", Name: "News"}); err != nil {
		t.Fatalf("seed channel: %v", err)
	}
	return f
}

func (f *fixture) save(t *testing.T, p post.Post) {
	t.Helper()
	if p.Channel.IsZero() {
		p.Channel = post.ChannelRef{ChannelID: "news"}
	}
	if p.PublishTime == "" {
		p.PublishTime = post.FormatTime(t0)
	}
	if err := f.store.SavePost(context.Background(), p); err != nil {
		t.Fatalf("save: %v", err)
	}
}

func (f *fixture) get(t *testing.T, id string) post.Post {
	t.Helper()
	p, err := f.store.GetPost(context.Background(), id)
	if err != nil || p == nil {
		t.Fatalf("get %s: %v %v", id, p, err)
	}
	return *p
}

func (f *fixture) tick(t *testing.T) Result {
	t.Helper()
	res, err := f.d.Tick(context.Background())
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	return res
}

func TestPlainTextPublishesOnce(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.save(t, post.Post{ID: "p", Text: "hello", Markup: "none"})

	res := f.tick(t)
	if res.Published != 1 || res.Due != 1 {
		t.Fatalf("result: %+v", res)
	}
	calls := f.client.Calls()
	if len(calls) != 1 {
		t.Fatalf("calls: %+v", calls)
	}
	c := calls[0]
	if c.Op != "send_text" || c.To.ChatID != "-100" || c.Text != "hello" || c.Options.Markup != transport.MarkupNone || len(c.Options.Buttons) != 0 {
		t.Fatalf("call: %+v", c)
	}
	if !f.get(t, "p").Published {
		t.Fatalf("post not marked published")
	}

	f.tick(t)
	if len(f.client.Calls()) != 1 {
		t.Fatalf("published post sent again")
	}
}

func TestMediaShortCaption(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.save(t, post.Post{ID: "p", Text: "caption", Markup: "none", Media: &post.Media{Kind: transport.MediaPhoto, Handle: "ph1"}})

	f.tick(t)
	calls := f.client.Calls()
	if len(calls) != 1 || calls[0].Op != "send_photo" || calls[0].Handle != "ph1" || calls[0].Text != "caption" {
		t.Fatalf("calls: %+v", calls)
	}
	if !f.get(t, "p").Published {
		t.Fatalf("post not marked published")
	}
}

func TestCaptionTooLongRetriesWithTighterBudget(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.client.Fail = func(n int, c transporttest.Call) error {
		if n == 0 {
			return &transport.Error{Kind: transport.KindCaptionTooLong, Op: c.Op, Err: errors.New("Bad Request: message caption is too long")}
		}
		return nil
	}
	body := strings.Repeat("word ", 240) // 1200 runes
	f.save(t, post.Post{ID: "p", Text: body, Media: &post.Media{Kind: transport.MediaPhoto, Handle: "ph1"}, Buttons: post.Buttons{{Text: "Go", URL: "https://go.dev"}}})

	res := f.tick(t)
	if res.Published != 1 || res.Failed != 0 {
		t.Fatalf("result: %+v", res)
	}
	calls := f.client.Calls()
	if len(calls) != 3 {
		t.Fatalf("want failed photo, then photo+text; got %d calls: %+v", len(calls), calls)
	}
	if calls[0].Op != "send_photo" || utf8.RuneCountInString(calls[0].Text) > 1000 {
		t.Fatalf("first attempt: %+v", calls[0])
	}
	// The first attempt failed at the media send, so its continuation was never sent.
	retry := calls[1:]
	if retry[0].Op != "send_photo" || utf8.RuneCountInString(retry[0].Text) > 500 {
		t.Fatalf("retry photo: %+v", retry[0])
	}
	if len(retry[0].Options.Buttons) != 1 {
		t.Fatalf("buttons belong to the media message: %+v", retry[0].Options)
	}
	if retry[1].Op != "send_text" || retry[1].Text == "" || len(retry[1].Options.Buttons) != 0 {
		t.Fatalf("continuation: %+v", retry[1])
	}
	if !f.get(t, "p").Published {
		t.Fatalf("post not marked published")
	}
}

func TestRepeatAdvancesFromScheduledInstant(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	sched := t0.Add(-3 * time.Hour)
	f.save(t, post.Post{ID: "p", Text: "again", RepeatInterval: 3600, PublishTime: post.FormatTime(sched), Notified: true})

	f.tick(t)
	if n := len(f.client.Calls()); n != 1 {
		t.Fatalf("calls = %d", n)
	}
	p := f.get(t, "p")
	at, err := p.ScheduledAt()
	if err != nil || !at.Equal(sched.Add(time.Hour)) {
		t.Fatalf("publish_time = %q (%v)", p.PublishTime, err)
	}
	if p.Published || p.Notified {
		t.Fatalf("flags after repeat: %+v", p)
	}
}

func TestRepeatWithUnparseableTimeUsesNow(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.save(t, post.Post{ID: "p", Text: "x", RepeatInterval: 60})
	p := post.Post{ID: "p", RepeatInterval: 60, PublishTime: "garbage"}
	if err := f.d.finalize(context.Background(), p, t0); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	at, _ := f.get(t, "p").ScheduledAt()
	if !at.Equal(t0.Add(time.Minute)) {
		t.Fatalf("next = %v", at)
	}
}

func TestUnresolvableChannelIsSkipped(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.save(t, post.Post{ID: "p", OwnerID: "u1", Text: "x", Channel: post.ChannelRef{ChannelID: "gone"}})
	_ = f.store.SaveChannel(context.Background(), post.Channel{ID: "nochat"})
	f.save(t, post.Post{ID: "q", OwnerID: "u1", Text: "x", Channel: post.ChannelRef{ChannelID: "nochat"}})

	res := f.tick(t)
	if res.Skipped != 2 {
		t.Fatalf("result: %+v", res)
	}
	if len(f.client.Calls()) != 0 || len(f.notices.all()) != 0 {
		t.Fatalf("unexpected sends: %+v %v", f.client.Calls(), f.notices.all())
	}
	if !f.get(t, "p").Published || !f.get(t, "q").Published {
		t.Fatalf("skipped posts must be marked published")
	}
}

func TestFailureNotifiesOwnerAndFinalizes(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.client.Fail = func(int, transporttest.Call) error {
		return &transport.Error{Kind: transport.KindForbidden, Err: errors.New("Forbidden: bot was kicked")}
	}
	ctx := context.Background()
	_ = f.store.SaveUser(ctx, post.User{ID: "u1", Language: "en"})
	f.save(t, post.Post{ID: "once", OwnerID: "u1", Text: "x"})
	f.save(t, post.Post{ID: "rep", OwnerID: "u1", Text: "y", RepeatInterval: 600})

	res := f.tick(t)
	if res.Failed != 2 {
		t.Fatalf("result: %+v", res)
	}
	if !f.get(t, "once").Published {
		t.Fatalf("failed one-shot post must be marked published")
	}
	rep := f.get(t, "rep")
	if rep.Published || rep.PublishTime != post.FormatTime(t0.Add(10*time.Minute)) {
		t.Fatalf("failed repeating post: %+v", rep)
	}
	sent := f.notices.all()
	if len(sent) != 2 {
		t.Fatalf("notices: %v", sent)
	}
	for _, s := range sent {
		if !strings.HasPrefix(s, "u1|") || !strings.Contains(s, "News") {
			t.Fatalf("notice: %q", s)
		}
	}
	hist, _ := f.store.Deliveries(ctx, "once", 0)
	if len(hist) != 1 || hist[0].Outcome != post.OutcomeFailed || hist[0].Error == "" {
		t.Fatalf("history: %+v", hist)
	}
}

func TestNonRepeatingAlwaysEndsPublished(t *testing.T) {
	t.Parallel()

	failures := []func(int, transporttest.Call) error{
		nil,
		func(int, transporttest.Call) error { return errors.New("boom") },
		func(int, transporttest.Call) error {
			return &transport.Error{Kind: transport.KindCaptionTooLong, Err: errors.New("caption is too long")}
		},
	}
	for i, fail := range failures {
		f := newFixture(t)
		f.client.Fail = fail
		f.save(t, post.Post{ID: "p", Text: strings.Repeat("a ", 800), Media: &post.Media{Kind: transport.MediaVideo, Handle: "v"}})
		f.tick(t)
		if !f.get(t, "p").Published {
			t.Fatalf("case %d: post not published", i)
		}
	}
}

func TestDraftsAndFuturePostsAreIgnored(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.save(t, post.Post{ID: "draft", Text: "x", Draft: true, PublishTime: post.FormatTime(t0.Add(-time.Hour))})
	f.save(t, post.Post{ID: "later", Text: "x", PublishTime: post.FormatTime(t0.Add(time.Minute))})

	if res := f.tick(t); res.Due != 0 {
		t.Fatalf("result: %+v", res)
	}
	if len(f.client.Calls()) != 0 || f.get(t, "draft").Published {
		t.Fatalf("draft or future post was touched")
	}
}

func TestEmptyBody(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.save(t, post.Post{ID: "text", Markup: "markdown"})
	f.save(t, post.Post{ID: "media", Media: &post.Media{Kind: transport.MediaAnimation, Handle: "gif"}})
	f.tick(t)

	var placeholder, media *transporttest.Call
	for _, c := range f.client.Calls() {
		c := c
		switch c.Op {
		case "send_text":
			placeholder = &c
		case "send_animation":
			media = &c
		}
	}
	if placeholder == nil || placeholder.Text != "[Post without text]" || placeholder.Options.Markup != transport.MarkupNone {
		t.Fatalf("placeholder: %+v", placeholder)
	}
	if media == nil || media.Text != "" {
		t.Fatalf("media: %+v", media)
	}
}

func TestDirectChatIDWithThread(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	_ = f.store.SaveChannel(context.Background(), post.Channel{ID: "forum", ChatID: "-200", Name: "Forum", ThreadID: 42})
	f.save(t, post.Post{ID: "a", Text: "x", Channel: post.ParseChannelRef("-200")})
	f.save(t, post.Post{ID: "b", Text: "y", Channel: post.ParseChannelRef("@elsewhere")})
	f.tick(t)

	got := map[string]transport.ChatTarget{}
	for _, c := range f.client.Calls() {
		got[c.Text] = c.To
	}
	if got["x"] != (transport.ChatTarget{ChatID: "-200", ThreadID: 42}) {
		t.Fatalf("thread target: %+v", got["x"])
	}
	if got["y"] != (transport.ChatTarget{ChatID: "@elsewhere"}) {
		t.Fatalf("direct target: %+v", got["y"])
	}
}

func TestRenderModesAndFallback(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.save(t, post.Post{ID: "md", Text: "1+1=2.", Markup: "markdown"})
	f.save(t, post.Post{ID: "bad", Text: "a<b>\xff</b>", Markup: "html", PublishTime: post.FormatTime(t0.Add(-time.Minute))})
	f.tick(t)

	calls := f.client.Calls()
	if len(calls) != 2 {
		t.Fatalf("calls: %+v", calls)
	}
	// bad is scheduled earlier, so it is sent first.
	if calls[0].Options.Markup != transport.MarkupNone || strings.Contains(calls[0].Text, "<b>") {
		t.Fatalf("fallback: %+v", calls[0])
	}
	if calls[1].Text != `1\+1\=2\.` || calls[1].Options.Markup != transport.MarkupMarkdown {
		t.Fatalf("markdown: %+v", calls[1])
	}
}

func TestApplySwapsBudgets(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.d.Apply(Config{CaptionBudget: 10, CaptionRetryBudget: 5})
	f.save(t, post.Post{ID: "p", Text: "aaaa bbbb cccc dddd", Media: &post.Media{Kind: transport.MediaPhoto, Handle: "h"}})
	f.tick(t)

	calls := f.client.Calls()
	if len(calls) != 2 || utf8.RuneCountInString(calls[0].Text) > 10 || calls[1].Op != "send_text" {
		t.Fatalf("calls: %+v", calls)
	}
}

func TestEventsArePublished(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ch, unsub := f.bus.Subscribe(8)
	defer unsub()
	f.save(t, post.Post{ID: "p", Text: "x", RepeatInterval: 60})
	f.tick(t)

	kinds := map[eventbus.Kind]bool{}
	for len(ch) > 0 {
		e := <-ch
		kinds[e.Kind] = true
	}
	if !kinds[eventbus.PostPublished] || !kinds[eventbus.PostRescheduled] {
		t.Fatalf("events: %v", kinds)
	}
}

func TestUnparseablePublishTimeIsReported(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	var buf bytes.Buffer
	clk := clock.NewManual(t0)
	f.d = New(Deps{
		Store:  f.store,
		Client: f.client,
		Clock:  clk,
		Log:    logx.NewJSON(&buf, "debug"),
	}, Config{})

	f.save(t, post.Post{ID: "bad", Text: "x", PublishTime: "next tuesday"})
	f.save(t, post.Post{ID: "draft", Text: "x", PublishTime: "whenever", Draft: true})
	f.save(t, post.Post{ID: "ok", Text: "x", PublishTime: "2024-05-01T10:00:00+0000"})

	warnings := func() []string {
		var out []string
		for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
			if strings.Contains(line, `"level":"warn"`) && strings.Contains(line, "publish_time does not parse") {
				out = append(out, line)
			}
		}
		return out
	}

	res := f.tick(t)
	if res.Published != 1 {
		t.Fatalf("result: %+v", res)
	}
	w := warnings()
	if len(w) != 1 || !strings.Contains(w[0], `"post_id":"bad"`) || !strings.Contains(w[0], `"publish_time":"next tuesday"`) {
		t.Fatalf("warnings: %v", w)
	}

	clk.Advance(2 * unparseableScanEvery)
	f.tick(t)
	if w := warnings(); len(w) != 1 {
		t.Fatalf("repeated warning: %v", w)
	}

	f.save(t, post.Post{ID: "bad", Text: "x", PublishTime: "still not a time"})
	clk.Advance(2 * unparseableScanEvery)
	f.tick(t)
	if w := warnings(); len(w) != 2 {
		t.Fatalf("changed publish_time not reported: %v", w)
	}
	if p := f.get(t, "bad"); p.Published {
		t.Fatal("unparseable post must stay pending")
	}
}
