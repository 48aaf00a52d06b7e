// Package transporttest provides a recording transport.Client for tests.
package transporttest

import (
	"context"
	"sync"

	"schedbot/internal/transport"
)

// Call is one recorded send.
type Call struct {
	Op      string // send_text | send_photo | send_video | send_animation
	To      transport.ChatTarget
	Text    string // text body or caption
	Handle  string
	Options transport.SendOptions
}

// Recorder records every send and answers with the error returned by Fail, if set.
type Recorder struct {
	mu    sync.Mutex
	calls []Call
	seq   int

	// Fail is consulted before each send; n is the zero-based index of the call.
	Fail func(n int, c Call) error
}

func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

func (r *Recorder) record(c Call) (transport.MessageRef, error) {
	r.mu.Lock()
	n := len(r.calls)
	r.calls = append(r.calls, c)
	fail := r.Fail
	r.mu.Unlock()

	if fail != nil {
		if err := fail(n, c); err != nil {
			return transport.MessageRef{}, err
		}
	}
	r.mu.Lock()
	r.seq++
	id := r.seq
	r.mu.Unlock()
	return transport.MessageRef{ChatID: c.To.ChatID, MessageID: id}, nil
}

func (r *Recorder) SendText(ctx context.Context, to transport.ChatTarget, text string, opt transport.SendOptions) (transport.MessageRef, error) {
	return r.record(Call{Op: "send_text", To: to, Text: text, Options: opt})
}

func (r *Recorder) SendPhoto(ctx context.Context, to transport.ChatTarget, handle, caption string, opt transport.SendOptions) (transport.MessageRef, error) {
	return r.record(Call{Op: "send_photo", To: to, Text: caption, Handle: handle, Options: opt})
}

func (r *Recorder) SendVideo(ctx context.Context, to transport.ChatTarget, handle, caption string, opt transport.SendOptions) (transport.MessageRef, error) {
	return r.record(Call{Op: "send_video", To: to, Text: caption, Handle: handle, Options: opt})
}

func (r *Recorder) SendAnimation(ctx context.Context, to transport.ChatTarget, handle, caption string, opt transport.SendOptions) (transport.MessageRef, error) {
	return r.record(Call{Op: "send_animation", To: to, Text: caption, Handle: handle, Options: opt})
}
