package kernel_test

import (
	"errors"
	"testing"

	"horizon/internal/kernel"
	"horizon/internal/testkit"
)

func TestCreateThread_Validation(t *testing.T) {
	env := newTestEnv(t)

	cases := []struct {
		name     string
		priority uint32
		core     int32
		owner    *kernel.Process
		wantErr  error
	}{
		{"priority too low", kernel.PriorityLowest + 1, 0, env.process, kernel.ErrInvalidPriority},
		{"core below default", kernel.PriorityDefault, -3, env.process, kernel.ErrInvalidProcessorID},
		{"core past max", kernel.PriorityDefault, kernel.ProcessorIDMax, env.process, kernel.ErrInvalidProcessorID},
		{"nil owner", kernel.PriorityDefault, 0, nil, kernel.ErrNilOwnerProcess},
	}

	for _, tc := range cases {
		_, err := env.kernel.CreateThread(tc.name, 0x1000, tc.priority, 0, tc.core, 0x2000, tc.owner)
		if !errors.Is(err, tc.wantErr) {
			t.Errorf("%s: got error %v, want %v", tc.name, err, tc.wantErr)
		}
	}

	if got := len(env.kernel.Threads()); got != 0 {
		t.Errorf("failed creations left %d threads registered", got)
	}
}

func TestCreateThread_InitialState(t *testing.T) {
	env := newTestEnv(t)
	th := env.spawn(t, "worker", 30, 2)

	if th.Status() != kernel.StatusReady {
		t.Errorf("expected ready, got %s", th.Status())
	}
	if th.Priority() != 30 || th.NominalPriority() != 30 {
		t.Errorf("expected priority 30/30, got %d/%d", th.Priority(), th.NominalPriority())
	}
	if th.ProcessorID() != 2 {
		t.Errorf("expected processor 2, got %d", th.ProcessorID())
	}
	if th.IdealCore() != 2 {
		t.Errorf("expected ideal core 2, got %d", th.IdealCore())
	}
	if th.AffinityMask() != 1<<2 {
		t.Errorf("expected affinity mask %#x, got %#x", uint64(1<<2), th.AffinityMask())
	}
	if th.Scheduler().CoreID() != 2 {
		t.Errorf("thread placed on core %d, want 2", th.Scheduler().CoreID())
	}

	ctx := th.Context()
	if ctx.PC != th.EntryPoint() || ctx.SP != th.StackTop() {
		t.Errorf("context PC/SP not initialized: pc=%#x sp=%#x", ctx.PC, ctx.SP)
	}
}

func TestCreateThread_DefaultProcessorUsesIdealCore(t *testing.T) {
	env := newTestEnv(t)
	env.process.SetIdealCore(3)

	th := env.spawn(t, "worker", kernel.PriorityDefault, kernel.ProcessorIDDefault)
	if th.ProcessorID() != 3 {
		t.Errorf("expected ideal core 3, got %d", th.ProcessorID())
	}
}

func TestCreateThread_EntryArgument(t *testing.T) {
	env := newTestEnv(t)
	th, err := env.kernel.CreateThread("worker", 0x1000, kernel.PriorityDefault, 0xDEAD,
		0, 0x2000, env.process)
	if err != nil {
		t.Fatalf("CreateThread: %v", err)
	}
	if th.Context().Regs[0] != 0xDEAD {
		t.Errorf("expected arg in x0, got %#x", th.Context().Regs[0])
	}
}

func TestThread_TLSAllocation(t *testing.T) {
	env := newTestEnv(t)
	a := env.spawn(t, "a", kernel.PriorityDefault, 0)
	b := env.spawn(t, "b", kernel.PriorityDefault, 0)

	if a.TLSAddress() == b.TLSAddress() {
		t.Errorf("threads share TLS address %#x", a.TLSAddress())
	}
	if got := a.CommandBufferAddress(); got != a.TLSAddress()+0x80 {
		t.Errorf("command buffer at %#x, want TLS+0x80 (%#x)", got, a.TLSAddress()+0x80)
	}

	// A stopped thread's slot is reusable.
	addr := b.TLSAddress()
	b.Stop()
	c := env.spawn(t, "c", kernel.PriorityDefault, 0)
	if c.TLSAddress() != addr {
		t.Errorf("expected freed slot %#x reused, got %#x", addr, c.TLSAddress())
	}
}

func TestThread_SetStatusOnDeadPanics(t *testing.T) {
	env := newTestEnv(t)
	th := env.spawn(t, "worker", kernel.PriorityDefault, 0)
	th.Stop()

	expectPanic(t, "status change on dead thread", func() {
		th.SetStatus(kernel.StatusWaitSleep)
	})
}

func TestThread_StopTwicePanics(t *testing.T) {
	env := newTestEnv(t)
	th := env.spawn(t, "worker", kernel.PriorityDefault, 0)
	th.Stop()

	expectPanic(t, "stopping dead thread", func() { th.Stop() })
}

func TestThread_JoinCompletesOnStop(t *testing.T) {
	env := newTestEnv(t)
	target := env.spawn(t, "target", kernel.PriorityDefault, 0)
	joiner := env.spawn(t, "joiner", kernel.PriorityDefault, 1)

	blocked := joiner.WaitSynchronization([]kernel.WaitObject{target}, false, -1)
	if !blocked {
		t.Fatalf("expected joiner to block on a live thread")
	}
	if joiner.Status() != kernel.StatusWaitSynchAny {
		t.Fatalf("expected wait-synch-any, got %s", joiner.Status())
	}

	target.Stop()

	if joiner.Status() != kernel.StatusReady {
		t.Errorf("expected joiner ready after target stopped, got %s", joiner.Status())
	}
	res := joiner.WakeResult()
	if res.Reason != kernel.WakeReasonSignal || res.Index != 0 {
		t.Errorf("expected signal wake at index 0, got %s/%d", res.Reason, res.Index)
	}
	if !joiner.WaitSynchronizationResult().IsSuccess() {
		t.Errorf("expected success result, got %s", joiner.WaitSynchronizationResult())
	}
}

func TestThread_JoinDeadThreadDoesNotBlock(t *testing.T) {
	env := newTestEnv(t)
	target := env.spawn(t, "target", kernel.PriorityDefault, 0)
	joiner := env.spawn(t, "joiner", kernel.PriorityDefault, 1)
	target.Stop()

	if joiner.WaitSynchronization([]kernel.WaitObject{target}, false, -1) {
		t.Errorf("expected immediate completion joining a dead thread")
	}
	if joiner.Status() != kernel.StatusReady {
		t.Errorf("joiner should stay ready, got %s", joiner.Status())
	}
}

func TestThread_StopHygiene(t *testing.T) {
	env := newTestEnv(t)
	owner := env.spawn(t, "owner", 44, 0)
	waiter := env.spawn(t, "waiter", 10, 0)
	victim := env.spawn(t, "victim", 20, 1)

	// victim blocks on a lock held by owner and on an event.
	ev := &testEvent{name: "ev"}
	if !victim.WaitSynchronization([]kernel.WaitObject{ev}, false, -1) {
		t.Fatalf("expected victim to block on event")
	}

	owner.AddMutexWaiter(waiter)
	waiter.SetMutexWaitAddress(0x5000)

	victim.Stop()

	live := env.kernel.Threads()
	if err := testkit.CheckDeadThread(victim, live); err != nil {
		t.Errorf("dead-thread hygiene: %v", err)
	}
	if !ev.Waiters().Empty() {
		t.Errorf("stopped thread still registered on event")
	}

	// Stopping the lock owner must not leave dangling back-references.
	owner.Stop()
	if waiter.LockOwner() != nil {
		t.Errorf("waiter still names a dead lock owner")
	}
	if err := testkit.CheckDeadThread(owner, env.kernel.Threads()); err != nil {
		t.Errorf("dead-thread hygiene for owner: %v", err)
	}
}

func TestKernel_SetupMainThread(t *testing.T) {
	env := newTestEnv(t)
	main := env.kernel.SetupMainThread(0x8000, kernel.PriorityDefault, env.process)

	if main.Status() != kernel.StatusRunning {
		t.Errorf("expected main running, got %s", main.Status())
	}
	if env.kernel.CurrentThread(main.Scheduler().CoreID()) != main {
		t.Errorf("main is not current on its core")
	}
	if main.Name() != "main" {
		t.Errorf("expected name main, got %q", main.Name())
	}
}

func TestKernel_ExitCurrentThread(t *testing.T) {
	env := newTestEnv(t)
	main := env.kernel.SetupMainThread(0x8000, kernel.PriorityDefault, env.process)
	core := main.Scheduler().CoreID()

	env.kernel.ExitCurrentThread(core)

	if env.kernel.CurrentThread(core) != nil {
		t.Errorf("core %d still has a current thread", core)
	}
	if env.kernel.Thread(main.ID()) != nil {
		t.Errorf("exited thread still registered")
	}
	if main.Status() != kernel.StatusDead {
		t.Errorf("expected dead, got %s", main.Status())
	}
}
