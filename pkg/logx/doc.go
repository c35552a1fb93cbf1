// Package logx is the structured logger used across gabriel-messenger.
//
// Logger is a small value type over zerolog. Loggers derived from a Service
// follow its configuration, so a reload that changes the level or the sinks
// reaches every task without rebuilding their loggers. Each task may carry its
// own level floor (the module "logging_level").
package logx
