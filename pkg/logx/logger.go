package logx

import (
	"io"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/rs/zerolog"
)

// Logger is safe to copy. The zero value discards everything.
type Logger struct {
	svc    *Service
	base   *zerolog.Logger
	floor  zerolog.Level
	floors bool
	fields []Field
}

// Nop returns a logger that never writes.
func Nop() Logger {
	zl := zerolog.Nop()
	return Logger{base: &zl}
}

// NewConsole returns a console logger that does not follow any Service. It is
// used before the configuration has been read.
func NewConsole(level string) Logger {
	setGlobals()
	zl := newRoot(newConsoleWriter(stdout), levelOr(level, zerolog.InfoLevel))
	return Logger{base: &zl}
}

// NewWriter returns a JSON logger writing to w.
func NewWriter(w io.Writer, level string) Logger {
	zl := newRoot(w, levelOr(level, zerolog.DebugLevel))
	return Logger{base: &zl}
}

func (l Logger) IsZero() bool { return l.svc == nil && l.base == nil && len(l.fields) == 0 }

// With returns a logger that adds fields to every event.
func (l Logger) With(fields ...Field) Logger {
	if len(fields) == 0 {
		return l
	}
	out := l
	out.fields = append(append(make([]Field, 0, len(l.fields)+len(fields)), l.fields...), fields...)
	return out
}

// WithLevel returns a logger that drops events below level. An empty or
// unknown level returns l unchanged. A floor never makes a logger louder
// than its root.
func (l Logger) WithLevel(level string) Logger {
	lvl, ok := lookupLevel(level)
	if !ok {
		return l
	}
	out := l
	out.floor, out.floors = lvl, true
	return out
}

// Enabled reports whether an event at level would be written.
func (l Logger) Enabled(level Level) bool {
	if l.floors && level < l.floor {
		return false
	}
	return level >= l.root().GetLevel()
}

func (l Logger) Trace(msg string, fields ...Field) { l.emit(zerolog.TraceLevel, msg, fields) }
func (l Logger) Debug(msg string, fields ...Field) { l.emit(zerolog.DebugLevel, msg, fields) }
func (l Logger) Info(msg string, fields ...Field)  { l.emit(zerolog.InfoLevel, msg, fields) }
func (l Logger) Warn(msg string, fields ...Field)  { l.emit(zerolog.WarnLevel, msg, fields) }
func (l Logger) Error(msg string, fields ...Field) { l.emit(zerolog.ErrorLevel, msg, fields) }

func (l Logger) root() zerolog.Logger {
	switch {
	case l.svc != nil:
		return l.svc.current()
	case l.base != nil:
		return *l.base
	default:
		return zerolog.Nop()
	}
}

func (l Logger) emit(level zerolog.Level, msg string, fields []Field) {
	if l.floors && level < l.floor {
		return
	}
	zl := l.root()
	e := zl.WithLevel(level)
	if e == nil {
		return
	}
	// emit <- Info/Warn/... <- caller
	if _, file, line, ok := runtime.Caller(2); ok {
		e.Str(zerolog.CallerFieldName, filepath.Base(file)+":"+strconv.Itoa(line))
	}
	for _, set := range [][]Field{l.fields, fields} {
		for _, f := range set {
			if f != nil {
				f(e)
			}
		}
	}
	e.Msg(msg)
}
