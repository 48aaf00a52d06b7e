package post

import (
	"errors"
	"strings"
	"time"
)

var ErrBadTime = errors.New("post: unparseable publish_time")

// TimeLayout is the canonical stored form of publish_time.
const TimeLayout = time.RFC3339Nano

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02T15:04:05.999999999Z07",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05.999999999Z0700",
	"2006-01-02 15:04:05.999999999Z07",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// ParseTime parses an ISO-8601 instant. A trailing "Z" means UTC and values
// without an offset are taken as UTC. Offsets may be written +hh:mm, +hhmm
// or +hh.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrBadTime
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, ErrBadTime
}

// FormatTime renders t in the canonical stored form, always UTC.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}
