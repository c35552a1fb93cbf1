package pipeline

import "time"

// Observer receives pipeline counters. Implementations must be safe for
// concurrent use and must not block.
type Observer interface {
	Forwarded(receiver string, routes int)
	PollFailed(receiver string)
	Delivered(sender string, took time.Duration, err error)
}

type nopObserver struct{}

func (nopObserver) Forwarded(string, int)                  {}
func (nopObserver) PollFailed(string)                      {}
func (nopObserver) Delivered(string, time.Duration, error) {}
