// Package logger provides structured logging on top of log/slog.
//
//   - logger.go: Logger interface, handler setup, global level
//   - context.go: request id and logger propagation through context
//   - redact.go: masking of credentials before they reach the output
//
// The level is held in a slog.LevelVar so a config reload can change it
// without rebuilding loggers.
package logger
