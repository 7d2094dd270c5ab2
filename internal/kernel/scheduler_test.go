package kernel_test

import (
	"testing"

	"horizon/internal/kernel"
	"horizon/internal/testkit"
)

func TestScheduler_RunsMostUrgentThread(t *testing.T) {
	env := newTestEnv(t)
	slow := env.spawn(t, "slow", 40, 0)
	fast := env.spawn(t, "fast", 20, 0)

	env.kernel.Scheduler(0).Reschedule()
	if cur := env.kernel.CurrentThread(0); cur != fast {
		t.Errorf("expected fast to run, got %s", cur.Name())
	}
	if slow.Status() != kernel.StatusReady {
		t.Errorf("slow should stay ready, got %s", slow.Status())
	}
	if err := testkit.CheckScheduling(env.kernel); err != nil {
		t.Errorf("scheduling consistency: %v", err)
	}
}

func TestScheduler_IdleWithoutThreads(t *testing.T) {
	env := newTestEnv(t)
	env.kernel.Scheduler(0).Reschedule()
	if cur := env.kernel.CurrentThread(0); cur != nil {
		t.Errorf("expected idle core, got thread %s", cur.Name())
	}
}

func TestScheduler_EqualPriorityDoesNotPreempt(t *testing.T) {
	env := newTestEnv(t)
	a := env.spawn(t, "a", 30, 0)
	s := env.kernel.Scheduler(0)
	s.Reschedule()
	if env.kernel.CurrentThread(0) != a {
		t.Fatalf("expected a running")
	}

	b := env.spawn(t, "b", 30, 0)
	s.Reschedule()
	if env.kernel.CurrentThread(0) != a {
		t.Errorf("equal-priority thread preempted the running one")
	}
	if b.Status() != kernel.StatusReady {
		t.Errorf("b should stay ready, got %s", b.Status())
	}
}

func TestScheduler_StrictlyBetterPreempts(t *testing.T) {
	env := newTestEnv(t)
	a := env.spawn(t, "a", 30, 0)
	s := env.kernel.Scheduler(0)
	s.Reschedule()

	b := env.spawn(t, "b", 10, 0)
	s.Reschedule()
	if env.kernel.CurrentThread(0) != b {
		t.Fatalf("expected b to preempt, current is %s", env.kernel.CurrentThread(0).Name())
	}
	if a.Status() != kernel.StatusReady {
		t.Errorf("preempted thread should be ready, got %s", a.Status())
	}

	// The preempted thread resumes before FIFO peers of its level once the
	// urgent one leaves.
	c := env.spawn(t, "c", 30, 0)
	_ = c
	b.Stop()
	s.Reschedule()
	if env.kernel.CurrentThread(0) != a {
		t.Errorf("expected preempted a to resume first, got %s", env.kernel.CurrentThread(0).Name())
	}
}

func TestScheduler_WaitingCurrentIsSwitchedOut(t *testing.T) {
	env := newTestEnv(t)
	a := env.spawn(t, "a", 30, 0)
	b := env.spawn(t, "b", 40, 0)
	s := env.kernel.Scheduler(0)
	s.Reschedule()
	if env.kernel.CurrentThread(0) != a {
		t.Fatalf("expected a running")
	}

	ev := &testEvent{name: "ev"}
	if !a.WaitSynchronization([]kernel.WaitObject{ev}, false, -1) {
		t.Fatalf("expected a to block")
	}
	s.Reschedule()

	if env.kernel.CurrentThread(0) != b {
		t.Errorf("expected b to take the core")
	}
	if s.Queued(a) {
		t.Errorf("waiting thread still in the ready queue")
	}
	if err := testkit.CheckScheduling(env.kernel); err != nil {
		t.Errorf("scheduling consistency: %v", err)
	}
}

func TestScheduler_SleepAndTimerWakeup(t *testing.T) {
	env := newTestEnv(t)
	a := env.spawn(t, "a", 30, 0)
	s := env.kernel.Scheduler(0)
	s.Reschedule()

	sleeper := env.kernel.WaitCurrentThreadSleep(0)
	if sleeper != a {
		t.Fatalf("WaitCurrentThreadSleep returned %v, want the core's current thread", sleeper)
	}
	if a.Status() != kernel.StatusWaitSleep {
		t.Fatalf("expected wait-sleep after the call, got %s", a.Status())
	}
	a.WakeAfterDelay(1_000)
	s.Reschedule()
	if env.kernel.CurrentThread(0) != nil {
		t.Fatalf("core should idle while its only thread sleeps")
	}

	env.kernel.Timing().Advance(1_000)
	if a.Status() != kernel.StatusReady {
		t.Fatalf("expected ready after wakeup, got %s", a.Status())
	}
	s.Reschedule()
	if env.kernel.CurrentThread(0) != a {
		t.Errorf("expected a running again after wakeup")
	}
	if a.WakeResult().Reason != kernel.WakeReasonTimeout {
		t.Errorf("sleep wakeup reason %s, want timeout", a.WakeResult().Reason)
	}
}

func TestScheduler_ContextSwitchRestoresState(t *testing.T) {
	env := newTestEnv(t)
	a := env.spawn(t, "a", 30, 0)
	s := env.kernel.Scheduler(0)
	s.Reschedule()

	cpu, ok := s.CPU().(*kernel.NullCPU)
	if !ok {
		t.Fatalf("expected NullCPU on test scheduler")
	}
	if cpu.TLSAddress() != a.TLSAddress() {
		t.Errorf("TLS base %#x, want %#x", cpu.TLSAddress(), a.TLSAddress())
	}

	// Switching to a more urgent thread loads its context.
	b := env.spawn(t, "b", 10, 0)
	s.Reschedule()
	if cpu.TLSAddress() != b.TLSAddress() {
		t.Errorf("TLS base not switched: %#x, want %#x", cpu.TLSAddress(), b.TLSAddress())
	}
}

func TestScheduler_LastRunningTicksAdvances(t *testing.T) {
	env := newTestEnv(t)
	a := env.spawn(t, "a", 30, 0)
	s := env.kernel.Scheduler(0)
	s.Reschedule()

	env.kernel.Timing().Advance(2_000_000)
	b := env.spawn(t, "b", 10, 0)
	s.Reschedule()
	if env.kernel.CurrentThread(0) != b {
		t.Fatalf("expected b running")
	}
	if a.LastRunningTicks() == 0 {
		t.Errorf("switched-out thread did not record its last running ticks")
	}
}
