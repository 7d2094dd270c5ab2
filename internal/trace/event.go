package trace

import (
	"sync/atomic"
	"time"
)

// Kind represents the type of trace event.
type Kind uint8

const (
	// KindSpanBegin marks the start of a logical operation.
	KindSpanBegin Kind = iota + 1
	// KindSpanEnd marks the end of a logical operation.
	KindSpanEnd
	// KindPoint represents an instant event.
	KindPoint
)

// String returns the string representation of Kind.
func (k Kind) String() string {
	switch k {
	case KindSpanBegin:
		return "begin"
	case KindSpanEnd:
		return "end"
	case KindPoint:
		return "point"
	default:
		return "unknown"
	}
}

// Scope indicates which part of the kernel emitted the event.
// Lower numeric values represent coarser events.
type Scope uint8

const (
	// ScopeCore represents per-core scheduling decisions.
	ScopeCore Scope = iota + 1
	// ScopeThread represents thread lifecycle events.
	ScopeThread
	// ScopeWait represents wait/wake protocol events.
	ScopeWait
	// ScopeTimer represents wakeup-timer events.
	ScopeTimer
)

// String returns the string representation of Scope.
func (s Scope) String() string {
	switch s {
	case ScopeCore:
		return "core"
	case ScopeThread:
		return "thread"
	case ScopeWait:
		return "wait"
	case ScopeTimer:
		return "timer"
	default:
		return "unknown"
	}
}

// Event represents a single kernel trace event.
type Event struct {
	Time   time.Time // wall-clock timestamp
	NowNs  uint64    // emulated time in nanoseconds
	Seq    uint64    // global sequence number (monotonic)
	Kind   Kind      // event kind
	Scope  Scope     // emitting subsystem
	Core   int32     // core the event belongs to (-1 if none)
	Thread uint64    // thread id the event belongs to (0 if none)
	Name   string    // e.g. "create", "switch", "wakeup"
	Detail string    // optional detail message
}

var seqCounter atomic.Uint64

// NextSeq returns the next global event sequence number.
func NextSeq() uint64 {
	return seqCounter.Add(1)
}
