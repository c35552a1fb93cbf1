package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Schedule decides when a receiver polls next.
type Schedule interface {
	// Due reports whether a poll should run at now given the previous poll time.
	// last is zero before the first poll.
	Due(last, now time.Time) bool
}

// Every polls once the wait time has elapsed since the previous poll.
type Every time.Duration

func (e Every) Due(last, now time.Time) bool {
	if last.IsZero() {
		return true
	}
	return now.Sub(last) >= time.Duration(e)
}

func (e Every) String() string { return "every " + time.Duration(e).String() }

type cronSchedule struct {
	expr  string
	sched cron.Schedule
}

var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Cron polls immediately on start, then whenever the cron expression fires after
// the previous poll. Both 5 and 6 field (seconds first) forms are accepted.
func Cron(expr string, loc *time.Location) (Schedule, error) {
	if loc != nil && !strings.HasPrefix(expr, "TZ=") && !strings.HasPrefix(expr, "CRON_TZ=") {
		expr = "CRON_TZ=" + loc.String() + " " + expr
	}
	s, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron %q: %w", expr, err)
	}
	return cronSchedule{expr: expr, sched: s}, nil
}

func (c cronSchedule) Due(last, now time.Time) bool {
	if last.IsZero() {
		return true
	}
	return !now.Before(c.sched.Next(last))
}

func (c cronSchedule) String() string { return "cron " + c.expr }
