package post

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func v() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	return validate
}

// Validate checks a post before it is saved by an operator tool.
func Validate(p Post) error {
	if err := v().Struct(p); err != nil {
		return describe(err)
	}
	if p.Channel.IsZero() {
		return errors.New("post: channel_ref is required")
	}
	if strings.TrimSpace(p.Text) == "" && p.Media == nil {
		return errors.New("post: text or media is required")
	}
	if _, err := ParseTime(p.PublishTime); err != nil && !p.Draft {
		return fmt.Errorf("post: publish_time %q: %w", p.PublishTime, err)
	}
	return nil
}

func ValidateChannel(c Channel) error {
	if err := v().Struct(c); err != nil {
		return describe(err)
	}
	return nil
}

func ValidateUser(u User) error {
	if err := v().Struct(u); err != nil {
		return describe(err)
	}
	return nil
}

func describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return errors.New("post: invalid: " + strings.Join(msgs, "; "))
}
