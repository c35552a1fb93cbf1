package config

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// WaitKind describes the normalized kind of a wait_time value.
type WaitKind int

const (
	WaitInterval WaitKind = iota
	WaitCron
)

// WaitSpec is a parsed wait_time.
//
// Supported forms:
//   - Seconds: 600 (number or numeric string)
//   - Interval duration: "55m", "2h30m"
//   - Interval HH:MM: "00:50" (50 minutes), "02:30" (2 hours 30 minutes)
//   - Cron: "*/5 * * * *", "0 30 * * * *", "@hourly"
//
// Optional prefixes:
//   - "cron:" forces cron parsing
//   - "every:" or "interval:" forces interval parsing
type WaitSpec struct {
	Kind   WaitKind
	Cron   string
	Every  time.Duration
	Source string // "seconds" | "duration" | "hhmm" | "cron"
}

var (
	reHHMM    = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})\s*$`)
	reSeconds = regexp.MustCompile(`^\d+(\.\d+)?$`)
)

// ParseWaitTime parses a receiver wait_time.
func ParseWaitTime(raw string) (WaitSpec, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return WaitSpec{}, fmt.Errorf("wait_time required")
	}

	low := strings.ToLower(s)
	if strings.HasPrefix(low, "cron:") {
		expr := strings.TrimSpace(s[len("cron:"):])
		if expr == "" {
			return WaitSpec{}, fmt.Errorf("cron expression required after 'cron:'")
		}
		return WaitSpec{Kind: WaitCron, Cron: expr, Source: "cron"}, nil
	}
	for _, p := range []string{"every:", "interval:"} {
		if strings.HasPrefix(low, p) {
			return parseInterval(strings.TrimSpace(s[len(p):]))
		}
	}

	if strings.ContainsAny(s, " \t\n\r") || strings.HasPrefix(s, "@") {
		return WaitSpec{Kind: WaitCron, Cron: s, Source: "cron"}, nil
	}
	ws, err := parseInterval(s)
	if err != nil {
		return WaitSpec{}, fmt.Errorf(
			"invalid wait_time %q (use seconds like 600, HH:MM like '02:30', duration like '55m', or cron like '*/5 * * * *')",
			raw,
		)
	}
	return ws, nil
}

func parseInterval(v string) (WaitSpec, error) {
	if v == "" {
		return WaitSpec{}, fmt.Errorf("interval required")
	}
	var (
		d   time.Duration
		src string
	)
	switch {
	case reSeconds.MatchString(v):
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return WaitSpec{}, err
		}
		d, src = time.Duration(f*float64(time.Second)), "seconds"
	case reHHMM.MatchString(v):
		m := reHHMM.FindStringSubmatch(v)
		hh, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		if mm > 59 {
			return WaitSpec{}, fmt.Errorf("invalid minutes in %q", v)
		}
		d, src = time.Duration(hh)*time.Hour+time.Duration(mm)*time.Minute, "hhmm"
	default:
		pd, err := time.ParseDuration(v)
		if err != nil {
			return WaitSpec{}, fmt.Errorf("invalid interval %q", v)
		}
		d, src = pd, "duration"
	}
	if d <= 0 {
		return WaitSpec{}, fmt.Errorf("interval must be > 0")
	}
	return WaitSpec{Kind: WaitInterval, Every: d, Source: src}, nil
}
