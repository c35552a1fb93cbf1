package config

import (
	"fmt"
	"strings"
	"time"
)

const (
	DefaultTick                = time.Second
	DefaultShutdownLogInterval = 5 * time.Second
	DefaultFilesTimeout        = 30 * time.Second
)

// ParseDurationField parses a Go duration string; empty means zero.
// path is only used in error messages (e.g. "app.tick").
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with def for empty or zero values.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil || d > 0 {
		return d, err
	}
	return def, nil
}

func (a AppConfig) TickDuration() (time.Duration, error) {
	return ParseDurationOrDefault("app.tick", a.Tick, DefaultTick)
}

func (a AppConfig) ShutdownLogEvery() (time.Duration, error) {
	return ParseDurationOrDefault("app.shutdown_log_interval", a.ShutdownLogInterval, DefaultShutdownLogInterval)
}

// Location resolves app.timezone. Empty means time.Local.
func (a AppConfig) Location() (*time.Location, error) {
	tz := strings.TrimSpace(a.Timezone)
	if tz == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("app.timezone: %w", err)
	}
	return loc, nil
}

func (f FilesConfig) TimeoutDuration() (time.Duration, error) {
	return ParseDurationOrDefault("files.timeout", f.Timeout, DefaultFilesTimeout)
}

func (s StorageConfig) BusyTimeoutDuration() (time.Duration, error) {
	return ParseDurationField("storage.busy_timeout", s.BusyTimeout)
}
