package scheduler

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

var reHHMM = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})\s*$`)

// ParseSchedule accepts a cron expression ("0 3 * * *", "@daily",
// "@every 6h"), a Go duration ("6h") or an HH:MM interval ("06:00").
func ParseSchedule(raw string) (cron.Schedule, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, fmt.Errorf("schedule required")
	}
	if strings.ContainsAny(s, " \t") || strings.HasPrefix(s, "@") {
		sch, err := parser.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("invalid cron schedule %q: %w", raw, err)
		}
		return sch, nil
	}
	d, err := ParseInterval(s)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q (use cron like '0 3 * * *', HH:MM like '06:00', or duration like '6h')", raw)
	}
	return cron.Every(d), nil
}

// ParseInterval accepts a Go duration, HH:MM or a plain number of seconds.
func ParseInterval(raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if m := reHHMM.FindStringSubmatch(s); m != nil {
		hh, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		if mm > 59 {
			return 0, fmt.Errorf("invalid minutes in %q", raw)
		}
		d := time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute
		if d <= 0 {
			return 0, fmt.Errorf("interval must be > 0")
		}
		return d, nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n <= 0 {
			return 0, fmt.Errorf("interval must be > 0")
		}
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid interval %q", raw)
	}
	if d <= 0 {
		return 0, fmt.Errorf("interval must be > 0")
	}
	return d, nil
}
