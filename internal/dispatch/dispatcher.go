// Package dispatch delivers due posts and re-schedules repeating ones.
//
// One Tick handles every due post sequentially. A post is sent as a text
// message, or as a media message whose caption is split against a budget
// with the remainder sent as a follow-up text. Whatever the send outcome,
// a non-repeating post ends published and a repeating post moves forward
// by exactly its interval from the scheduled instant.
package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"schedbot/internal/clock"
	"schedbot/internal/eventbus"
	"schedbot/internal/i18n"
	"schedbot/internal/post"
	"schedbot/internal/render"
	"schedbot/internal/transport"
	logx "schedbot/pkg/logx"
)

// Config is the hot-reloadable part of the dispatcher.
type Config struct {
	CaptionBudget      int
	CaptionRetryBudget int
	// SendTimeout bounds each platform call; 0 disables the bound.
	SendTimeout time.Duration
	// Language is used for owner-facing text when the owner has none.
	Language string
}

func (c Config) withDefaults() Config {
	if c.CaptionBudget <= 0 {
		c.CaptionBudget = 1000
	}
	if c.CaptionRetryBudget <= 0 {
		c.CaptionRetryBudget = 500
	}
	if c.Language == "" {
		c.Language = "en"
	}
	return c
}

// OwnerNoticer delivers owner-visible notices.
type OwnerNoticer interface {
	NotifyOwner(ctx context.Context, chatID, text string) error
}

type Deps struct {
	Store   post.Store
	History post.History // optional
	Client  transport.Client
	Notices OwnerNoticer // optional
	Lang    *i18n.Registry
	Clock   clock.Clock
	Bus     eventbus.Bus
	Log     logx.Logger
}

type Dispatcher struct {
	store   post.Store
	history post.History
	client  transport.Client
	notices OwnerNoticer
	lang    *i18n.Registry
	clock   clock.Clock
	bus     eventbus.Bus
	log     logx.Logger

	cfg atomic.Pointer[Config]

	scanMu   sync.Mutex
	lastScan time.Time
	// warned maps post id to the publish_time already reported as unparseable.
	warned map[string]string
}

// unparseableScanEvery bounds how often pending posts are checked for a
// publish_time that can never become due.
const unparseableScanEvery = time.Minute

func New(d Deps, cfg Config) *Dispatcher {
	if d.Clock == nil {
		d.Clock = clock.Real()
	}
	if d.Bus == nil {
		d.Bus = eventbus.Nop()
	}
	if d.Lang == nil {
		d.Lang = i18n.MustLoad("en")
	}
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	x := &Dispatcher{
		store:   d.Store,
		history: d.History,
		client:  d.Client,
		notices: d.Notices,
		lang:    d.Lang,
		clock:   d.Clock,
		bus:     d.Bus,
		log:     d.Log.With(logx.String("comp", "dispatch")),
	}
	x.Apply(cfg)
	return x
}

// Apply swaps the runtime config.
func (d *Dispatcher) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	d.cfg.Store(&cfg)
}

func (d *Dispatcher) config() Config { return *d.cfg.Load() }

// Result summarizes one Tick.
type Result struct {
	Due       int
	Published int
	Failed    int
	Skipped   int
	// Deferred counts posts left due because of a store error.
	Deferred int
}

// Tick delivers every post due at the clock's current time.
func (d *Dispatcher) Tick(ctx context.Context) (Result, error) {
	now := d.clock.Now()
	due, err := d.store.DuePosts(ctx, now)
	if err != nil {
		return Result{}, err
	}
	d.warnUnparseable(ctx, now)
	res := Result{Due: len(due)}
	for _, p := range due {
		switch d.dispatchOne(ctx, p, now) {
		case post.OutcomePublished:
			res.Published++
		case post.OutcomeFailed:
			res.Failed++
		case post.OutcomeSkipped:
			res.Skipped++
		default:
			res.Deferred++
		}
	}
	if res.Due > 0 {
		d.log.Debug("dispatch tick",
			logx.Int("due", res.Due),
			logx.Int("published", res.Published),
			logx.Int("failed", res.Failed),
			logx.Int("skipped", res.Skipped),
			logx.Int("deferred", res.Deferred),
		)
	}
	return res, nil
}

// warnUnparseable logs each pending post whose publish_time does not parse.
// A post is reported again only after its publish_time changes.
func (d *Dispatcher) warnUnparseable(ctx context.Context, now time.Time) {
	d.scanMu.Lock()
	defer d.scanMu.Unlock()
	if !d.lastScan.IsZero() && now.Sub(d.lastScan) < unparseableScanEvery {
		return
	}
	d.lastScan = now

	pending, err := d.store.PendingPosts(ctx)
	if err != nil {
		d.log.Error("pending scan failed", logx.Err(err))
		return
	}
	seen := make(map[string]string)
	for _, p := range pending {
		if _, err := p.ScheduledAt(); err == nil {
			continue
		}
		seen[p.ID] = p.PublishTime
		if prev, ok := d.warned[p.ID]; ok && prev == p.PublishTime {
			continue
		}
		d.log.Warn("publish_time does not parse, post will never be due",
			logx.String("post_id", p.ID),
			logx.String("publish_time", p.PublishTime),
		)
	}
	d.warned = seen
}

// dispatchOne returns "" when the post was left untouched.
func (d *Dispatcher) dispatchOne(ctx context.Context, p post.Post, now time.Time) post.Outcome {
	log := d.log.With(logx.String("post_id", p.ID))

	dest, err := post.ResolveChannel(ctx, d.store, p.Channel)
	if err != nil {
		log.Error("resolve channel failed", logx.Err(err))
		return ""
	}
	if dest == nil {
		// Without a chat id the post would be due forever.
		log.Warn("channel unresolvable, skipping post", logx.String("channel_ref", p.Channel.String()))
		if err := d.store.MarkPublished(ctx, p.ID); err != nil {
			log.Error("mark published failed", logx.Err(err))
			return ""
		}
		d.record(ctx, post.Delivery{PostID: p.ID, At: now, Outcome: post.OutcomeSkipped, Error: "channel unresolvable"})
		d.bus.Publish(eventbus.Event{Kind: eventbus.PostSkipped, PostID: p.ID})
		return post.OutcomeSkipped
	}

	body, markup := d.body(p, log)
	cfg := d.config()

	ids, err := d.publish(ctx, target(dest), p, body, markup, cfg.CaptionBudget, cfg)
	if err != nil && p.Media != nil && transport.IsCaptionTooLong(err) {
		log.Info("caption too long, retrying with tighter budget", logx.Int("budget", cfg.CaptionRetryBudget))
		var more []int
		more, err = d.publish(ctx, target(dest), p, body, markup, cfg.CaptionRetryBudget, cfg)
		ids = append(ids, more...)
	}

	outcome := post.OutcomePublished
	if err != nil {
		outcome = post.OutcomeFailed
		log.Warn("publish failed",
			logx.String("chat_id", dest.ChatID),
			logx.String("kind", transport.Classify(err).String()),
			logx.Err(err),
		)
		d.noticeFailure(ctx, p, dest, err)
		d.bus.Publish(eventbus.Event{Kind: eventbus.PostFailed, PostID: p.ID, Err: err.Error()})
	} else {
		log.Info("post published", logx.String("chat_id", dest.ChatID), logx.Int("messages", len(ids)))
		d.bus.Publish(eventbus.Event{Kind: eventbus.PostPublished, PostID: p.ID, Count: len(ids)})
	}

	del := post.Delivery{PostID: p.ID, At: now, Outcome: outcome, MessageIDs: ids}
	if err != nil {
		del.Error = err.Error()
	}
	d.record(ctx, del)

	if err := d.finalize(ctx, p, now); err != nil {
		log.Error("finalize failed", logx.Err(err))
	}
	return outcome
}

func target(c *post.Channel) transport.ChatTarget {
	return transport.ChatTarget{ChatID: c.ChatID, ThreadID: c.ThreadID}
}

// body renders the text, falling back to tag-stripped plain text when the
// renderer rejects it.
func (d *Dispatcher) body(p post.Post, log logx.Logger) (string, transport.Markup) {
	m := transport.ParseMarkup(p.Markup)
	out, err := render.Render(p.Text, m)
	if err != nil {
		log.Warn("render failed, sending plain text", logx.String("markup", string(m)), logx.Err(err))
		return render.Fallback(p.Text), transport.MarkupNone
	}
	return out, m
}

// publish sends one attempt. Message ids of sends that succeeded are returned
// even when a later send of the same attempt fails.
func (d *Dispatcher) publish(ctx context.Context, to transport.ChatTarget, p post.Post, body string, m transport.Markup, budget int, cfg Config) ([]int, error) {
	opt := transport.SendOptions{Markup: m, Buttons: p.Buttons.Keyboard()}

	if p.Media == nil {
		if body == "" {
			body = d.lang.T(d.ownerLanguage(ctx, p, cfg), i18n.KeyPostWithoutText, nil)
			opt.Markup = transport.MarkupNone
		}
		ref, err := d.send(ctx, cfg, func(ctx context.Context) (transport.MessageRef, error) {
			return d.client.SendText(ctx, to, body, opt)
		})
		if err != nil {
			return nil, err
		}
		return []int{ref.MessageID}, nil
	}

	caption, rest := render.Split(body, budget)
	ref, err := d.send(ctx, cfg, func(ctx context.Context) (transport.MessageRef, error) {
		return transport.SendMedia(ctx, d.client, p.Media.Kind, to, p.Media.Handle, caption, opt)
	})
	if err != nil {
		return nil, err
	}
	ids := []int{ref.MessageID}
	if rest == "" {
		return ids, nil
	}

	opt.Buttons = nil
	ref, err = d.send(ctx, cfg, func(ctx context.Context) (transport.MessageRef, error) {
		return d.client.SendText(ctx, to, rest, opt)
	})
	if err != nil {
		return ids, err
	}
	return append(ids, ref.MessageID), nil
}

// send runs one platform call. Cancelling ctx does not abort a call in flight;
// only the configured timeout does.
func (d *Dispatcher) send(ctx context.Context, cfg Config, call func(context.Context) (transport.MessageRef, error)) (transport.MessageRef, error) {
	sctx := context.WithoutCancel(ctx)
	if cfg.SendTimeout > 0 {
		var cancel context.CancelFunc
		sctx, cancel = context.WithTimeout(sctx, cfg.SendTimeout)
		defer cancel()
	}
	return call(sctx)
}

// finalize marks a one-shot post published or moves a repeating post to its
// next slot. The next slot is based on the scheduled instant, not on now.
func (d *Dispatcher) finalize(ctx context.Context, p post.Post, now time.Time) error {
	if !p.Repeats() {
		return d.store.MarkPublished(ctx, p.ID)
	}
	base, err := p.ScheduledAt()
	if err != nil {
		base = now
	}
	next := base.Add(p.Interval())
	err = d.store.UpdatePost(ctx, p.ID, post.Update{
		PublishTime: post.String(post.FormatTime(next)),
		Published:   post.Bool(false),
		Notified:    post.Bool(false),
	})
	if err != nil {
		return err
	}
	d.log.Debug("post rescheduled", logx.String("post_id", p.ID), logx.Time("next", next))
	d.bus.Publish(eventbus.Event{Kind: eventbus.PostRescheduled, PostID: p.ID})
	return nil
}

func (d *Dispatcher) record(ctx context.Context, del post.Delivery) {
	if d.history == nil {
		return
	}
	if err := d.history.RecordDelivery(ctx, del); err != nil {
		d.log.Warn("record delivery failed", logx.String("post_id", del.PostID), logx.Err(err))
	}
}

func (d *Dispatcher) ownerLanguage(ctx context.Context, p post.Post, cfg Config) string {
	if p.OwnerID == "" {
		return cfg.Language
	}
	u, err := d.store.GetUser(ctx, p.OwnerID)
	if err != nil || u == nil || u.Language == "" {
		return cfg.Language
	}
	return u.Language
}

const maxNoticeErr = 200

func (d *Dispatcher) noticeFailure(ctx context.Context, p post.Post, dest *post.Channel, cause error) {
	if d.notices == nil || p.OwnerID == "" {
		return
	}
	cfg := d.config()
	lang, chat := cfg.Language, p.OwnerID
	u, err := d.store.GetUser(ctx, p.OwnerID)
	if err != nil {
		d.log.Warn("load owner failed", logx.String("post_id", p.ID), logx.Err(err))
	}
	if u != nil {
		if u.Language != "" {
			lang = u.Language
		}
		chat = u.NoticeChat()
	}

	msg := cause.Error()
	if r := []rune(msg); len(r) > maxNoticeErr {
		msg = string(r[:maxNoticeErr]) + render.Ellipsis
	}
	text := d.lang.T(lang, i18n.KeyPostFailed, map[string]any{
		"id":      p.ID,
		"channel": dest.Name,
		"error":   msg,
	})
	_, err = d.send(ctx, cfg, func(ctx context.Context) (transport.MessageRef, error) {
		return transport.MessageRef{}, d.notices.NotifyOwner(ctx, chat, text)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		d.log.Warn("owner notice failed", logx.String("post_id", p.ID), logx.Err(err))
	}
}
