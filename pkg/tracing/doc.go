/*
Package tracing keeps the OpenTelemetry tracer in a context.Context rather than a package global.

The CLI opens a span per command, the interpreter one per script run and one per
dispatched packet, and background bodies (async tasks, timers) get their own.
Failed spans carry the tagspeak error code; see const.go for the attribute keys.
*/
package tracing
