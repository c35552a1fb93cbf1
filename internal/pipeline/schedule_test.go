package pipeline

import (
	"testing"
	"time"
)

func TestEveryDue(t *testing.T) {
	t.Parallel()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	s := Every(30 * time.Second)
	if !s.Due(time.Time{}, base) {
		t.Fatal("first poll should be due")
	}
	if s.Due(base, base.Add(29*time.Second)) {
		t.Fatal("due before wait time elapsed")
	}
	if !s.Due(base, base.Add(30*time.Second)) {
		t.Fatal("not due after wait time elapsed")
	}
}

func TestCronDue(t *testing.T) {
	t.Parallel()
	s, err := Cron("*/5 * * * *", time.UTC)
	if err != nil {
		t.Fatalf("Cron: %v", err)
	}
	last := time.Date(2024, 5, 1, 10, 1, 0, 0, time.UTC)
	if s.Due(last, last.Add(3*time.Minute)) {
		t.Fatal("due before 10:05")
	}
	if !s.Due(last, time.Date(2024, 5, 1, 10, 5, 0, 0, time.UTC)) {
		t.Fatal("not due at 10:05")
	}
	if _, err := Cron("not a cron", nil); err == nil {
		t.Fatal("expected error for invalid expression")
	}
}
