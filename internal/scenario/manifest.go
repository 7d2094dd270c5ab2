// Package scenario loads declarative kernel scenarios from TOML manifests and
// replays them against a kernel instance. A scenario declares threads and
// synchronization objects, then a script of steps (waits, signals, lock
// hand-offs, timer advances) the runner executes in order.
package scenario

import (
	"errors"
	"fmt"

	"github.com/BurntSushi/toml"
)

var (
	// ErrNoThreads indicates that a manifest declares no threads.
	ErrNoThreads = errors.New("scenario: no [[threads]] declared")
	// ErrDuplicateName indicates two declarations share a name.
	ErrDuplicateName = errors.New("scenario: duplicate name")
	// ErrUnknownThread indicates a step references an undeclared thread.
	ErrUnknownThread = errors.New("scenario: unknown thread")
	// ErrUnknownObject indicates a step references an undeclared object.
	ErrUnknownObject = errors.New("scenario: unknown object")
	// ErrUnknownOp indicates a step uses an unrecognized op.
	ErrUnknownOp = errors.New("scenario: unknown op")
)

// ThreadDecl declares one thread of a scenario.
type ThreadDecl struct {
	Name     string  `toml:"name"`
	Priority *uint32 `toml:"priority"`
	Core     *int32  `toml:"core"`
	Entry    uint64  `toml:"entry"`
	Stack    uint64  `toml:"stack"`
}

// ObjectDecl declares one synchronization object of a scenario.
type ObjectDecl struct {
	Name     string `toml:"name"`
	Kind     string `toml:"kind"` // "flag" or "lock"
	Sticky   bool   `toml:"sticky"`
	Signaled bool   `toml:"signaled"`
}

// Step is one scripted action. Which fields apply depends on Op.
type Step struct {
	Op string `toml:"op"`

	Thread  string   `toml:"thread"`
	Object  string   `toml:"object"`
	Objects []string `toml:"objects"`

	WaitAll   bool   `toml:"wait_all"`
	TimeoutNs *int64 `toml:"timeout_ns"`

	Ns       uint64 `toml:"ns"`
	Priority uint32 `toml:"priority"`
	Core     uint32 `toml:"core"`
	Mask     uint64 `toml:"mask"`
}

// Manifest is one parsed scenario file.
type Manifest struct {
	Name    string       `toml:"name"`
	Cores   int          `toml:"cores"`
	Threads []ThreadDecl `toml:"threads"`
	Objects []ObjectDecl `toml:"objects"`
	Steps   []Step       `toml:"steps"`
}

// Steps the runner understands.
const (
	OpWait       = "wait"
	OpSignal     = "signal"
	OpClear      = "clear"
	OpLock       = "lock"
	OpUnlock     = "unlock"
	OpSleep      = "sleep"
	OpAdvance    = "advance"
	OpSetPrio    = "set_priority"
	OpBoostPrio  = "boost_priority"
	OpChangeCore = "change_core"
	OpStop       = "stop"
)

// Load parses and validates a scenario manifest.
func Load(path string) (*Manifest, error) {
	var man Manifest
	if _, err := toml.DecodeFile(path, &man); err != nil {
		return nil, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if err := man.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &man, nil
}

func (m *Manifest) validate() error {
	if len(m.Threads) == 0 {
		return ErrNoThreads
	}

	threads := make(map[string]struct{}, len(m.Threads))
	for _, td := range m.Threads {
		if td.Name == "" {
			return fmt.Errorf("scenario: unnamed thread declaration")
		}
		if _, dup := threads[td.Name]; dup {
			return fmt.Errorf("%w: thread %q", ErrDuplicateName, td.Name)
		}
		threads[td.Name] = struct{}{}
	}

	objects := make(map[string]string, len(m.Objects))
	for _, od := range m.Objects {
		if od.Name == "" {
			return fmt.Errorf("scenario: unnamed object declaration")
		}
		if _, dup := objects[od.Name]; dup {
			return fmt.Errorf("%w: object %q", ErrDuplicateName, od.Name)
		}
		switch od.Kind {
		case "flag", "lock":
		default:
			return fmt.Errorf("scenario: object %q has unknown kind %q", od.Name, od.Kind)
		}
		objects[od.Name] = od.Kind
	}

	for i, st := range m.Steps {
		if err := validateStep(st, threads, objects); err != nil {
			return fmt.Errorf("step %d (%s): %w", i+1, st.Op, err)
		}
	}
	return nil
}

func validateStep(st Step, threads map[string]struct{}, objects map[string]string) error {
	needThread := func() error {
		if _, ok := threads[st.Thread]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownThread, st.Thread)
		}
		return nil
	}
	needObject := func(kind string) error {
		got, ok := objects[st.Object]
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownObject, st.Object)
		}
		if kind != "" && got != kind {
			return fmt.Errorf("object %q is a %s, want %s", st.Object, got, kind)
		}
		return nil
	}

	switch st.Op {
	case OpWait:
		if err := needThread(); err != nil {
			return err
		}
		if len(st.Objects) == 0 {
			return fmt.Errorf("wait step without objects")
		}
		for _, name := range st.Objects {
			if _, ok := objects[name]; !ok {
				return fmt.Errorf("%w: %q", ErrUnknownObject, name)
			}
		}
	case OpSignal, OpClear:
		return needObject("flag")
	case OpLock, OpUnlock:
		if err := needThread(); err != nil {
			return err
		}
		return needObject("lock")
	case OpSleep:
		return needThread()
	case OpAdvance:
		// Ns of zero advances to the next pending event.
	case OpSetPrio, OpBoostPrio, OpChangeCore, OpStop:
		return needThread()
	default:
		return fmt.Errorf("%w: %q", ErrUnknownOp, st.Op)
	}
	return nil
}
