package logx

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWithLevelDropsBelowFloor(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := NewWriter(&buf, "debug").WithLevel("warn")

	log.Info("quiet")
	log.Warn("loud", String("k", "v"))

	out := buf.String()
	if strings.Contains(out, "quiet") {
		t.Fatalf("info line should have been dropped: %s", out)
	}
	if !strings.Contains(out, "loud") || !strings.Contains(out, `"k":"v"`) {
		t.Fatalf("warn line missing: %s", out)
	}
	if log.Enabled(LevelInfo) {
		t.Fatal("Enabled(info) = true, want false")
	}
}

func TestWithLevelUnknownKeepsLogger(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := NewWriter(&buf, "debug").WithLevel("chatty")
	log.Debug("kept")
	if !strings.Contains(buf.String(), "kept") {
		t.Fatalf("debug line missing: %s", buf.String())
	}
}

func TestZeroLoggerIsNoop(t *testing.T) {
	t.Parallel()
	var log Logger
	if !log.IsZero() {
		t.Fatal("zero logger should report IsZero")
	}
	log.Error("nothing happens")
}

func TestValidLevel(t *testing.T) {
	t.Parallel()
	for _, s := range []string{"", "info", "DEBUG", "warning", "error", "trace"} {
		if !ValidLevel(s) {
			t.Fatalf("ValidLevel(%q) = false", s)
		}
	}
	if ValidLevel("verbose") {
		t.Fatal("ValidLevel(verbose) = true")
	}
}

func TestServiceApplyAndReopen(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "logs", "gabriel.log")

	svc, log := New(Config{Level: "warn", File: FileConfig{Enabled: true, Path: path}})
	t.Cleanup(func() { _ = svc.Close() })
	log = log.With(Task("rss [blog]"))

	log.Info("dropped")
	log.Warn("first")
	svc.Apply(Config{Level: "debug", File: FileConfig{Enabled: true, Path: path}})
	log.Debug("second")

	if err := os.Rename(path, path+".1"); err != nil {
		t.Fatal(err)
	}
	svc.Reopen()
	log.Info("third")

	rotated := readFile(t, path+".1")
	if strings.Contains(rotated, "dropped") {
		t.Fatalf("info logged below warn: %s", rotated)
	}
	if !strings.Contains(rotated, "first") || !strings.Contains(rotated, "second") {
		t.Fatalf("rotated file missing lines: %s", rotated)
	}
	if !strings.Contains(rotated, `"task":"rss [blog]"`) {
		t.Fatalf("task field missing: %s", rotated)
	}
	if current := readFile(t, path); !strings.Contains(current, "third") || strings.Contains(current, "first") {
		t.Fatalf("reopened file = %s", current)
	}
	if got := svc.Config().Level; got != "debug" {
		t.Fatalf("Config().Level = %q", got)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}
