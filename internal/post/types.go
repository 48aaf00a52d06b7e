package post

import (
	"errors"
	"strings"
	"time"

	"schedbot/internal/transport"
)

var ErrNotFound = errors.New("post: not found")

// Media is the single optional attachment of a post.
type Media struct {
	Kind   transport.MediaKind `json:"kind" validate:"required,oneof=photo video animation"`
	Handle string              `json:"handle" validate:"required"`
}

type Post struct {
	ID        string `json:"id" validate:"required"`
	OwnerID   string `json:"owner_id"`
	ProjectID string `json:"project_id"`

	Channel ChannelRef `json:"channel_ref"`

	Text    string  `json:"text"`
	Markup  string  `json:"markup" validate:"omitempty,oneof=html markdown none"`
	Media   *Media  `json:"media,omitempty"`
	Buttons Buttons `json:"buttons" validate:"omitempty,dive"`

	// PublishTime is the stored ISO-8601 instant, kept verbatim so an
	// unparseable value can be detected at dispatch time.
	PublishTime    string `json:"publish_time"`
	RepeatInterval int64  `json:"repeat_interval" validate:"min=0"`

	Draft     bool `json:"draft"`
	Published bool `json:"published"`
	Notified  bool `json:"notified"`
}

// ScheduledAt parses PublishTime.
func (p Post) ScheduledAt() (time.Time, error) { return ParseTime(p.PublishTime) }

func (p Post) Repeats() bool { return p.RepeatInterval > 0 }

func (p Post) Interval() time.Duration { return time.Duration(p.RepeatInterval) * time.Second }

// Due reports whether the dispatcher should pick p up at now.
func (p Post) Due(now time.Time) bool {
	if p.Published || p.Draft {
		return false
	}
	at, err := p.ScheduledAt()
	if err != nil {
		return false
	}
	return !at.After(now)
}

// Pending reports whether p is neither published nor a draft.
func (p Post) Pending() bool { return !p.Published && !p.Draft }

// ChannelRef points at a stored channel or directly at a chat.
type ChannelRef struct {
	ChannelID string `json:"channel_id,omitempty"`
	ChatID    string `json:"chat_id,omitempty"`
}

const channelPrefix = "channel:"

// ParseChannelRef accepts "channel:<id>" for a stored channel; anything else is a chat id.
func ParseChannelRef(s string) ChannelRef {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(strings.ToLower(s), channelPrefix) {
		return ChannelRef{ChannelID: strings.TrimSpace(s[len(channelPrefix):])}
	}
	return ChannelRef{ChatID: s}
}

func (r ChannelRef) String() string {
	if r.ChatID != "" {
		return r.ChatID
	}
	if r.ChannelID != "" {
		return channelPrefix + r.ChannelID
	}
	return ""
}

func (r ChannelRef) IsZero() bool { return r.ChatID == "" && r.ChannelID == "" }

type Channel struct {
	ID       string `json:"id" validate:"required"`
	ChatID   string `json:"chat_id" validate:"required"`
	Name     string `json:"name"`
	ThreadID int    `json:"thread_id,omitempty"`
}

// User carries the owner settings the engine reads.
type User struct {
	ID string `json:"id" validate:"required"`
	// ChatID is where owner notices go; empty means the private chat with ID.
	ChatID              string `json:"chat_id,omitempty"`
	Language            string `json:"language"`
	NotifyBeforeMinutes int    `json:"notify_before_minutes" validate:"min=0"`
}

func (u User) NoticeChat() string {
	if strings.TrimSpace(u.ChatID) != "" {
		return u.ChatID
	}
	return u.ID
}

// Update is a partial post update; nil fields are left untouched.
type Update struct {
	PublishTime *string
	Published   *bool
	Notified    *bool
}

func Bool(v bool) *bool       { return &v }
func String(v string) *string { return &v }

// Outcome of a single dispatch attempt.
type Outcome string

const (
	OutcomePublished Outcome = "published"
	OutcomeFailed    Outcome = "failed"
	OutcomeSkipped   Outcome = "skipped"
)

// Delivery records one dispatch attempt.
type Delivery struct {
	PostID     string    `json:"post_id"`
	At         time.Time `json:"at"`
	Outcome    Outcome   `json:"outcome"`
	Error      string    `json:"error,omitempty"`
	MessageIDs []int     `json:"message_ids,omitempty"`
}
