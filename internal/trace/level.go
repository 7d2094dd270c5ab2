package trace

import "fmt"

// Level controls tracing verbosity.
type Level uint8

const (
	// LevelOff disables tracing.
	LevelOff Level = iota
	// LevelError only emits on kernel consistency failures.
	LevelError
	// LevelCore emits per-core scheduling decisions.
	LevelCore
	// LevelThread additionally emits thread lifecycle events.
	LevelThread
	// LevelDebug emits everything including wait and timer events.
	LevelDebug
)

// String returns the string representation of Level.
func (l Level) String() string {
	switch l {
	case LevelOff:
		return "off"
	case LevelError:
		return "error"
	case LevelCore:
		return "core"
	case LevelThread:
		return "thread"
	case LevelDebug:
		return "debug"
	default:
		return "unknown"
	}
}

// ParseLevel converts a string to a Level.
func ParseLevel(s string) (Level, error) {
	switch s {
	case "off", "OFF":
		return LevelOff, nil
	case "error", "ERROR":
		return LevelError, nil
	case "core", "CORE":
		return LevelCore, nil
	case "thread", "THREAD":
		return LevelThread, nil
	case "debug", "DEBUG":
		return LevelDebug, nil
	default:
		return LevelOff, fmt.Errorf("invalid trace level: %q (expected: off|error|core|thread|debug)", s)
	}
}

// ShouldEmit returns true if the given scope should emit at this level.
func (l Level) ShouldEmit(scope Scope) bool {
	switch l {
	case LevelOff:
		return false
	case LevelError:
		return false // error events are emitted through the crash path
	case LevelCore:
		return scope <= ScopeCore
	case LevelThread:
		return scope <= ScopeThread
	case LevelDebug:
		return true
	}
	return false
}
