package transport

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var errUnknownMedia = errors.New("unknown media kind")

// Kind classifies a platform failure.
type Kind int

const (
	KindOther Kind = iota
	KindCaptionTooLong
	KindFlood
	KindForbidden
	KindChatNotFound
)

func (k Kind) String() string {
	switch k {
	case KindCaptionTooLong:
		return "caption_too_long"
	case KindFlood:
		return "flood"
	case KindForbidden:
		return "forbidden"
	case KindChatNotFound:
		return "chat_not_found"
	default:
		return "other"
	}
}

// Error is a classified platform failure.
type Error struct {
	Kind       Kind
	Op         string
	Code       int
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Classify returns the Kind of err. Errors that did not pass through a Client
// implementation are classified from their message text.
func Classify(err error) Kind {
	if err == nil {
		return KindOther
	}
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindFromText(err.Error())
}

// KindFromText classifies a platform error description.
func KindFromText(msg string) Kind {
	m := strings.ToLower(msg)
	switch {
	case strings.Contains(m, "caption is too long"), strings.Contains(m, "caption too long"):
		return KindCaptionTooLong
	case strings.Contains(m, "too many requests"), strings.Contains(m, "retry after"):
		return KindFlood
	case strings.Contains(m, "forbidden"), strings.Contains(m, "bot was blocked"), strings.Contains(m, "not enough rights"):
		return KindForbidden
	case strings.Contains(m, "chat not found"):
		return KindChatNotFound
	default:
		return KindOther
	}
}

func IsCaptionTooLong(err error) bool { return err != nil && Classify(err) == KindCaptionTooLong }
