// Package progress carries pipeline milestones (run start, page outcomes,
// batch checkpoints, run completion) from the scheduler to pluggable sinks.
// Emit never blocks the scheduler; a background goroutine batches events and
// fans them out to sinks such as structured logs or Prometheus collectors.
package progress
