// Package sinks implements concrete progress consumers: structured logging
// and Prometheus collectors with optional textfile export. Each sink
// satisfies progress.Sink and tolerates repeated Consume calls.
package sinks
