package kernel_test

import (
	"testing"

	"horizon/internal/kernel"
)

// testEvent is a minimal wait object for exercising the wait/wake protocol.
// A sticky event stays signaled across acquisitions.
type testEvent struct {
	name     string
	signaled bool
	sticky   bool
	waiters  kernel.WaiterList
	acquired []*kernel.Thread
}

func (e *testEvent) ShouldWait(t *kernel.Thread) bool { return !e.signaled }

func (e *testEvent) Acquire(t *kernel.Thread) {
	e.acquired = append(e.acquired, t)
	if !e.sticky {
		e.signaled = false
	}
}

func (e *testEvent) Waiters() *kernel.WaiterList { return &e.waiters }

func (e *testEvent) Signal() []kernel.WakeResult {
	e.signaled = true
	return kernel.WakeupAllWaitingThreads(e)
}

type testEnv struct {
	kernel  *kernel.KernelCore
	process *kernel.Process
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	k := kernel.New(kernel.Config{})
	k.Lock()
	t.Cleanup(k.Unlock)
	return &testEnv{
		kernel:  k,
		process: k.CreateProcess("test"),
	}
}

func (env *testEnv) spawn(t *testing.T, name string, priority uint32, core int32) *kernel.Thread {
	t.Helper()
	const (
		entry = kernel.VAddr(0x1000)
		stack = kernel.VAddr(0x2000)
	)
	th, err := env.kernel.CreateThread(name, entry, priority, 0, core, stack, env.process)
	if err != nil {
		t.Fatalf("CreateThread(%s): %v", name, err)
	}
	return th
}

func expectPanic(t *testing.T, what string, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic: %s", what)
		}
	}()
	fn()
}
