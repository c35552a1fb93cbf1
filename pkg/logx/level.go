package logx

import (
	"strings"

	"github.com/rs/zerolog"
)

type Level = zerolog.Level

const (
	LevelTrace = zerolog.TraceLevel
	LevelDebug = zerolog.DebugLevel
	LevelInfo  = zerolog.InfoLevel
	LevelWarn  = zerolog.WarnLevel
	LevelError = zerolog.ErrorLevel
)

var levels = map[string]zerolog.Level{
	"trace":   zerolog.TraceLevel,
	"debug":   zerolog.DebugLevel,
	"info":    zerolog.InfoLevel,
	"warn":    zerolog.WarnLevel,
	"warning": zerolog.WarnLevel,
	"error":   zerolog.ErrorLevel,
}

// ValidLevel reports whether s names a level. Empty is valid and means the default.
func ValidLevel(s string) bool {
	if strings.TrimSpace(s) == "" {
		return true
	}
	_, ok := lookupLevel(s)
	return ok
}

func lookupLevel(s string) (zerolog.Level, bool) {
	lvl, ok := levels[strings.ToLower(strings.TrimSpace(s))]
	return lvl, ok
}

func levelOr(s string, def zerolog.Level) zerolog.Level {
	if lvl, ok := lookupLevel(s); ok {
		return lvl
	}
	return def
}
