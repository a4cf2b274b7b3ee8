// Package audit relays security events from the engine to a caller-supplied
// Sink without blocking the operation that produced them.
//
// The package decides nothing about which events exist; the engine emits
// them. Sinks provided here: NoOpSink, ChannelSink, JSONWriterSink and
// LogSink (zerolog).
package audit
