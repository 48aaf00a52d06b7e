package notifier

import (
	"context"
	"time"

	"schedbot/internal/clock"
	"schedbot/internal/eventbus"
	"schedbot/internal/i18n"
	"schedbot/internal/post"
	logx "schedbot/pkg/logx"
)

// OwnerSender delivers a notice to an owner chat.
type OwnerSender interface {
	NotifyOwner(ctx context.Context, chatID, text string) error
}

type Deps struct {
	Store  post.Store
	Sender OwnerSender
	Lang   *i18n.Registry
	Clock  clock.Clock
	Bus    eventbus.Bus
	Log    logx.Logger
	// Language is used when the owner has none.
	Language string
}

type Notifier struct {
	store    post.Store
	sender   OwnerSender
	lang     *i18n.Registry
	clock    clock.Clock
	bus      eventbus.Bus
	log      logx.Logger
	language string
}

func New(d Deps) *Notifier {
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
	if d.Language == "" {
		d.Language = "en"
	}
	return &Notifier{
		store:    d.Store,
		sender:   d.Sender,
		lang:     d.Lang,
		clock:    d.Clock,
		bus:      d.Bus,
		log:      d.Log.With(logx.String("comp", "notifier")),
		language: d.Language,
	}
}

type Result struct {
	Sent   int
	Failed int
}

// Tick sends reminders for pending posts whose reminder window
// [publish_time - notify_before, publish_time) contains now.
func (n *Notifier) Tick(ctx context.Context) (Result, error) {
	var res Result
	if n.sender == nil {
		return res, nil
	}
	pending, err := n.store.PendingPosts(ctx)
	if err != nil {
		return res, err
	}
	now := n.clock.Now()
	users := map[string]*post.User{}

	for _, p := range pending {
		if p.Notified || p.OwnerID == "" {
			continue
		}
		u, ok := users[p.OwnerID]
		if !ok {
			u, err = n.store.GetUser(ctx, p.OwnerID)
			if err != nil {
				n.log.Warn("load owner failed", logx.String("post_id", p.ID), logx.Err(err))
				continue
			}
			users[p.OwnerID] = u
		}
		if u == nil || u.NotifyBeforeMinutes <= 0 {
			continue
		}
		at, err := p.ScheduledAt()
		if err != nil {
			continue
		}
		lead := time.Duration(u.NotifyBeforeMinutes) * time.Minute
		if now.Before(at.Add(-lead)) || !now.Before(at) {
			continue
		}

		if err := n.remind(ctx, p, u, at.Sub(now)); err != nil {
			res.Failed++
			n.log.Warn("reminder failed", logx.String("post_id", p.ID), logx.Err(err))
			n.bus.Publish(eventbus.Event{Kind: eventbus.ReminderFail, PostID: p.ID, Err: err.Error()})
			continue
		}
		if err := n.store.UpdatePost(ctx, p.ID, post.Update{Notified: post.Bool(true)}); err != nil {
			n.log.Error("mark notified failed", logx.String("post_id", p.ID), logx.Err(err))
			continue
		}
		res.Sent++
		n.bus.Publish(eventbus.Event{Kind: eventbus.ReminderSent, PostID: p.ID})
	}
	return res, nil
}

func (n *Notifier) remind(ctx context.Context, p post.Post, u *post.User, left time.Duration) error {
	name := p.Channel.String()
	if c, err := post.ResolveChannel(ctx, n.store, p.Channel); err == nil && c != nil {
		name = c.Name
	}
	lang := u.Language
	if lang == "" {
		lang = n.language
	}

	minutes := int(left / time.Minute)
	vars := map[string]any{"id": p.ID, "channel": name, "minutes": minutes}
	key := i18n.KeyReminder
	if minutes < 1 {
		key = i18n.KeyReminderSoon
	}
	return n.sender.NotifyOwner(ctx, u.NoticeChat(), n.lang.T(lang, key, vars))
}
