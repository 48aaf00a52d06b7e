package transport

import (
	"context"
	"strings"
)

// Markup is the formatting dialect of a message body.
type Markup string

const (
	MarkupNone     Markup = "none"
	MarkupHTML     Markup = "html"
	MarkupMarkdown Markup = "markdown"
)

// ParseMarkup maps a stored markup value onto a dialect. Unknown values mean none.
func ParseMarkup(s string) Markup {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "html":
		return MarkupHTML
	case "markdown", "markdownv2", "markdown_v2":
		return MarkupMarkdown
	default:
		return MarkupNone
	}
}

// MediaKind is the type of a single attachment.
type MediaKind string

const (
	MediaPhoto     MediaKind = "photo"
	MediaVideo     MediaKind = "video"
	MediaAnimation MediaKind = "animation"
)

func (k MediaKind) Valid() bool {
	switch k {
	case MediaPhoto, MediaVideo, MediaAnimation:
		return true
	}
	return false
}

// Button is one inline URL button. Each button renders as its own keyboard row.
type Button struct {
	Text string `json:"text" validate:"required"`
	URL  string `json:"url" validate:"required,url"`
}

// ChatTarget addresses a chat: a numeric id or an @username, plus an optional forum topic.
type ChatTarget struct {
	ChatID   string
	ThreadID int
}

type MessageRef struct {
	ChatID    string
	MessageID int
}

type SendOptions struct {
	Markup         Markup
	Buttons        []Button
	DisablePreview bool
}

// Client is the platform surface consumed by the dispatcher and notifier.
// Every call may block until the platform responds.
type Client interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt SendOptions) (MessageRef, error)
	SendPhoto(ctx context.Context, to ChatTarget, handle, caption string, opt SendOptions) (MessageRef, error)
	SendVideo(ctx context.Context, to ChatTarget, handle, caption string, opt SendOptions) (MessageRef, error)
	SendAnimation(ctx context.Context, to ChatTarget, handle, caption string, opt SendOptions) (MessageRef, error)
}

// SendMedia routes to the Send<kind> call matching kind.
func SendMedia(ctx context.Context, c Client, kind MediaKind, to ChatTarget, handle, caption string, opt SendOptions) (MessageRef, error) {
	switch kind {
	case MediaPhoto:
		return c.SendPhoto(ctx, to, handle, caption, opt)
	case MediaVideo:
		return c.SendVideo(ctx, to, handle, caption, opt)
	case MediaAnimation:
		return c.SendAnimation(ctx, to, handle, caption, opt)
	default:
		return MessageRef{}, &Error{Kind: KindOther, Op: "send_" + string(kind), Err: errUnknownMedia}
	}
}
