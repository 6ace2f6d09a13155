// Package logging configures structured logging for propindex.
//
// By default logs go to stderr as text at the configured level. With --debug,
// JSON logs are additionally written to ~/.propindex/logs/server.log with
// size-based rotation, which is what operators read when the index worker
// reports corruption or lock failures.
package logging
