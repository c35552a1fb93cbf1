package pipeline

import (
	"errors"
	"fmt"
)

// Signal is a value sent on a task's control queue.
//
// SignalNormal is the implicit state and is never sent; receiving anything other
// than SignalStop is a protocol violation.
type Signal int

const (
	SignalNormal Signal = iota
	SignalStop
)

func (s Signal) String() string {
	switch s {
	case SignalNormal:
		return "normal"
	case SignalStop:
		return "stop"
	default:
		return fmt.Sprintf("signal(%d)", int(s))
	}
}

// ErrProtocolViolation is returned by a task that received an unexpected control signal.
var ErrProtocolViolation = errors.New("control protocol violation")
