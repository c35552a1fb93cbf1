// Package pipeline implements the receiver -> queue -> sender hand-off.
//
// A receiver task polls one source, drops transactions whose identity is already
// in its seen-set, and forwards new publications through a Router that replicates
// them into the queue of every configured destination. A sender task drains one
// queue and delivers each item to one destination.
//
// Both task kinds are cooperative state machines driven by a fixed tick. They are
// stopped only through their control queue (SignalStop); the context passed to Run
// is a hard abort used when the process is going down regardless.
//
// Invariants:
//   - A transaction id found in the seen-set is never forwarded again in the same run.
//   - A transaction id is persisted only after all of its publications were queued.
//   - A sender honors SignalStop only right after observing its queue empty, so
//     nothing queued before the stop is lost.
package pipeline
