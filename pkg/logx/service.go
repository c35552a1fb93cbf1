package logx

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

const (
	timeFormat      = "2006-01-02T15:04:05.000Z07:00"
	defaultFilePath = "./gabriel.log"
)

var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr

	globalsOnce sync.Once
)

type Config struct {
	Level   string
	Console bool
	File    FileConfig
}

// FileConfig enables JSON output to a file. Path defaults to ./gabriel.log.
type FileConfig struct {
	Enabled bool
	Path    string
}

func (c FileConfig) path() string {
	if p := strings.TrimSpace(c.Path); p != "" {
		return p
	}
	return defaultFilePath
}

// Service owns the log sinks. Loggers it hands out read the current root on
// every event, so Apply and Reopen take effect immediately.
type Service struct {
	mu   sync.Mutex
	cfg  Config
	file *os.File
	root atomic.Pointer[zerolog.Logger]
}

// New applies cfg and returns the service with its root logger.
func New(cfg Config) (*Service, Logger) {
	setGlobals()
	s := &Service{}
	s.Apply(cfg)
	return s, s.Logger()
}

func (s *Service) Logger() Logger { return Logger{svc: s} }

// Config returns the last applied config.
func (s *Service) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Apply swaps level and sinks. The log file is kept open when its path is
// unchanged.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var old *os.File
	keep := s.file != nil && cfg.File.Enabled && cfg.File.path() == s.cfg.File.path()
	if !keep {
		old, s.file = s.file, nil
		if cfg.File.Enabled {
			s.openFile(cfg.File.path())
		}
	}
	s.cfg = cfg
	s.rebuild()
	closeQuietly(old)
}

// Reopen closes and reopens the log file, for use after external rotation.
func (s *Service) Reopen() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.cfg.File.Enabled {
		return
	}
	old := s.file
	s.file = nil
	s.openFile(s.cfg.File.path())
	s.rebuild()
	closeQuietly(old)
}

func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.file
	s.file = nil
	s.rebuild()
	if f == nil {
		return nil
	}
	return f.Close()
}

func (s *Service) current() zerolog.Logger {
	if zl := s.root.Load(); zl != nil {
		return *zl
	}
	return zerolog.Nop()
}

// rebuild must be called with mu held.
func (s *Service) rebuild() {
	var sinks []io.Writer
	if s.cfg.Console || s.file == nil {
		sinks = append(sinks, newConsoleWriter(stdout))
	}
	if s.file != nil {
		sinks = append(sinks, zerolog.SyncWriter(s.file))
	}
	zl := newRoot(zerolog.MultiLevelWriter(sinks...), levelOr(s.cfg.Level, zerolog.InfoLevel))
	s.root.Store(&zl)
}

func (s *Service) openFile(path string) {
	if dir := filepath.Dir(path); dir != "." {
		_ = os.MkdirAll(dir, 0o755)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		fmt.Fprintf(stderr, "logx: open %s: %v\n", path, err)
		return
	}
	s.file = f
}

func closeQuietly(f *os.File) {
	if f != nil {
		_ = f.Close()
	}
}

func newRoot(w io.Writer, lvl zerolog.Level) zerolog.Logger {
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

func newConsoleWriter(w io.Writer) io.Writer {
	return zerolog.ConsoleWriter{
		Out:          w,
		TimeFormat:   timeFormat,
		FormatCaller: func(i any) string { s, _ := i.(string); return s },
	}
}

func setGlobals() {
	globalsOnce.Do(func() {
		zerolog.TimeFieldFormat = timeFormat
		zerolog.ErrorFieldName = "err"
	})
}
