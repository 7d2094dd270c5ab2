// Package trace records kernel scheduling events.
//
// The kernel core emits an event at every scheduling decision point: thread
// creation, status transitions, wakeups, timer fires, context switches. Events
// flow through a Tracer, selected by configuration:
//
//   - nopTracer: zero-overhead no-op when tracing is disabled
//   - StreamTracer: immediate write to a file or stderr
//   - RingTracer: circular in-memory buffer for post-mortem dumps
//   - ChanTracer: feeds a channel, used by the live monitor UI
//   - MultiTracer: fans out to several of the above
//
// Verbosity is controlled by levels (off|error|core|thread|debug) matched
// against each event's scope:
//
//   - ScopeCore: per-core decisions (context switch, reschedule)
//   - ScopeThread: thread lifecycle (create, exit, status change)
//   - ScopeWait: wait/wake protocol (block, signal, timeout)
//   - ScopeTimer: timer schedule/cancel/fire
package trace
