// Package telegram implements transport.Client on top of telebot.
package telegram

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"schedbot/internal/transport"
	logx "schedbot/pkg/logx"
)

type Config struct {
	Token string
	// APIURL overrides the Bot API endpoint (local bot-api server).
	APIURL string
	// Timeout bounds a single HTTP round trip to the Bot API.
	Timeout time.Duration
	// Offline skips the getMe handshake at startup.
	Offline bool
}

// Client sends posts through the Telegram Bot API. It never polls for updates.
type Client struct {
	cfg Config
	log logx.Logger
	bot *tele.Bot
}

func New(cfg Config, log logx.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   strings.TrimSpace(cfg.Token),
		URL:     strings.TrimSpace(cfg.APIURL),
		Client:  &http.Client{Timeout: timeout},
		Offline: cfg.Offline,
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	c := &Client{cfg: cfg, log: log, bot: b}
	if b.Me != nil && b.Me.Username != "" {
		log.Info("bot authorized", logx.String("username", b.Me.Username))
	}
	return c, nil
}

func (c *Client) SendText(ctx context.Context, to transport.ChatTarget, text string, opt transport.SendOptions) (transport.MessageRef, error) {
	return c.send(ctx, "send_text", to, text, opt)
}

func (c *Client) SendPhoto(ctx context.Context, to transport.ChatTarget, handle, caption string, opt transport.SendOptions) (transport.MessageRef, error) {
	return c.send(ctx, "send_photo", to, &tele.Photo{File: fileFromHandle(handle), Caption: caption}, opt)
}

func (c *Client) SendVideo(ctx context.Context, to transport.ChatTarget, handle, caption string, opt transport.SendOptions) (transport.MessageRef, error) {
	return c.send(ctx, "send_video", to, &tele.Video{File: fileFromHandle(handle), Caption: caption}, opt)
}

func (c *Client) SendAnimation(ctx context.Context, to transport.ChatTarget, handle, caption string, opt transport.SendOptions) (transport.MessageRef, error) {
	return c.send(ctx, "send_animation", to, &tele.Animation{File: fileFromHandle(handle), Caption: caption}, opt)
}

// SendLogLine lets logx forward WARN+ lines to an operator chat.
func (c *Client) SendLogLine(ctx context.Context, chatID string, threadID int, text string) error {
	_, err := c.send(ctx, "send_log", transport.ChatTarget{ChatID: chatID, ThreadID: threadID}, text,
		transport.SendOptions{Markup: transport.MarkupNone, DisablePreview: true})
	return err
}

func (c *Client) send(ctx context.Context, op string, to transport.ChatTarget, what interface{}, opt transport.SendOptions) (transport.MessageRef, error) {
	if ctx != nil {
		select {
		case <-ctx.Done():
			return transport.MessageRef{}, &transport.Error{Kind: transport.KindOther, Op: op, Err: ctx.Err()}
		default:
		}
	}
	msg, err := c.bot.Send(recipient(to.ChatID), what, sendOptions(to, opt))
	if err != nil {
		return transport.MessageRef{}, classify(op, err)
	}
	ref := transport.MessageRef{ChatID: to.ChatID}
	if msg != nil {
		ref.MessageID = msg.ID
	}
	return ref, nil
}

// recipient addresses a chat by numeric id or @username.
type recipient string

func (r recipient) Recipient() string { return string(r) }

func fileFromHandle(handle string) tele.File {
	h := strings.TrimSpace(handle)
	if strings.HasPrefix(h, "http://") || strings.HasPrefix(h, "https://") {
		return tele.FromURL(h)
	}
	return tele.File{FileID: h}
}

func sendOptions(to transport.ChatTarget, opt transport.SendOptions) *tele.SendOptions {
	return &tele.SendOptions{
		ParseMode:             parseMode(opt.Markup),
		DisableWebPagePreview: opt.DisablePreview,
		ThreadID:              to.ThreadID,
		ReplyMarkup:           keyboard(opt.Buttons),
	}
}

func parseMode(m transport.Markup) tele.ParseMode {
	switch m {
	case transport.MarkupHTML:
		return tele.ModeHTML
	case transport.MarkupMarkdown:
		return tele.ModeMarkdownV2
	default:
		return tele.ModeDefault
	}
}

// keyboard renders one URL button per row, in order. Nil when there are no buttons.
func keyboard(buttons []transport.Button) *tele.ReplyMarkup {
	if len(buttons) == 0 {
		return nil
	}
	rm := &tele.ReplyMarkup{}
	rows := make([]tele.Row, 0, len(buttons))
	for _, b := range buttons {
		rows = append(rows, rm.Row(tele.Btn{Text: b.Text, URL: b.URL}))
	}
	rm.Inline(rows...)
	return rm
}

func classify(op string, err error) error {
	te := &transport.Error{Kind: transport.KindFromText(err.Error()), Op: op, Err: err}
	var apiErr *tele.Error
	if errors.As(err, &apiErr) && apiErr != nil {
		te.Code = apiErr.Code
		if te.Kind == transport.KindOther && apiErr.Code == http.StatusForbidden {
			te.Kind = transport.KindForbidden
		}
	}
	if secs, ok := floodRetryAfter(err); ok {
		te.Kind = transport.KindFlood
		te.Code = http.StatusTooManyRequests
		te.RetryAfter = time.Duration(secs) * time.Second
	}
	return te
}

// floodRetryAfter reports the retry_after seconds of a telebot flood error.
func floodRetryAfter(err error) (int, bool) {
	var fe tele.FloodError
	if errors.As(err, &fe) {
		return fe.RetryAfter, true
	}
	var pfe *tele.FloodError
	if errors.As(err, &pfe) && pfe != nil {
		return pfe.RetryAfter, true
	}
	return 0, false
}
