/*
Package log provides structured logging for the LlamaFarm core using
zerolog. It wraps a single global logger with component-scoped child
loggers, configurable level/format, and a handful of helper functions
for the common case of "log one line and move on".

# Core Components

Global Logger:
  - Package-level zerolog.Logger, initialized once via log.Init()
  - Thread-safe, accessible from every package without being passed around

Log Levels:
  - Debug: verbose, development only
  - Info: default production level
  - Warn: unexpected but non-fatal conditions
  - Error: operation failed
  - Fatal: unrecoverable, exits the process

Context Loggers:
  - WithComponent("broker"|"pipeline"|"orchestrator"|"store")
  - WithTaskID(taskID), WithServiceID(serviceID)

# Usage

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true, Output: os.Stdout})
	log.Info("orchestrator starting")

	brokerLog := log.WithComponent("broker")
	brokerLog.Info().Str("task_id", handle.TaskID).Msg("dispatched")

	taskLog := log.WithTaskID(taskID)
	taskLog.Error().Err(err).Msg("handler failed")

# Output

JSON (production):

	{"level":"info","component":"broker","task_id":"abc123","time":"2026-01-01T00:00:00Z","message":"dispatched"}

Console (development):

	10:30:00 INF dispatched component=broker task_id=abc123

# Design Patterns

Global logger pattern: one package-level instance initialized at
startup, avoided being threaded through every constructor the way the
rest of the core threads its config objects — logging is the one
exception, by convention.

Context logger pattern: derive a child logger per component/request
instead of repeating fields at every call site.

# Security

Never log secrets: embedder API keys and HuggingFace tokens in the
project manifest must never reach a log line. Use structured fields
(.Str, .Int) rather than string interpolation so user-supplied text
can't inject control characters into JSON output.
*/
package log
