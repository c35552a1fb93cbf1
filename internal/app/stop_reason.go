package app

// StopReason is logged when the shutdown starts.
type StopReason string

const (
	StopUnknown    StopReason = "unknown"
	StopSIGINT     StopReason = "sigint"
	StopSIGTERM    StopReason = "sigterm"
	StopFatalError StopReason = "fatal_error"
	// StopAborted means the root context was cancelled under running tasks.
	StopAborted StopReason = "aborted"
)
