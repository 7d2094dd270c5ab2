package kernel_test

import (
	"testing"

	"horizon/internal/kernel"
	"horizon/internal/testkit"
)

func checkInvariant(t *testing.T, k *kernel.KernelCore) {
	t.Helper()
	if err := testkit.CheckPriorityInvariant(k.Threads()); err != nil {
		t.Fatalf("priority invariant: %v", err)
	}
	if err := testkit.CheckWaiterBackrefs(k.Threads()); err != nil {
		t.Fatalf("waiter backrefs: %v", err)
	}
}

func TestPriorityInheritance_BasicScenario(t *testing.T) {
	env := newTestEnv(t)
	owner := env.spawn(t, "owner", 44, 0)
	urgent := env.spawn(t, "urgent", 10, 1)
	lazy := env.spawn(t, "lazy", 54, 2)

	// A less urgent waiter does not change the owner's priority.
	owner.AddMutexWaiter(lazy)
	if owner.Priority() != 44 {
		t.Errorf("after lazy waiter: priority %d, want 44", owner.Priority())
	}
	checkInvariant(t, env.kernel)

	// A more urgent waiter is inherited.
	owner.AddMutexWaiter(urgent)
	if owner.Priority() != 10 {
		t.Errorf("after urgent waiter: priority %d, want 10", owner.Priority())
	}
	if owner.NominalPriority() != 44 {
		t.Errorf("nominal priority changed to %d", owner.NominalPriority())
	}
	checkInvariant(t, env.kernel)

	// Removing the urgent waiter restores the nominal priority.
	owner.RemoveMutexWaiter(urgent)
	if owner.Priority() != 44 {
		t.Errorf("after removal: priority %d, want 44", owner.Priority())
	}
	checkInvariant(t, env.kernel)

	owner.RemoveMutexWaiter(lazy)
	checkInvariant(t, env.kernel)
}

func TestPriorityInheritance_PropagatesUpChain(t *testing.T) {
	env := newTestEnv(t)
	top := env.spawn(t, "top", 40, 0)
	mid := env.spawn(t, "mid", 30, 1)
	leaf := env.spawn(t, "leaf", 20, 2)

	// top holds a lock mid waits on; mid holds a lock leaf waits on.
	top.AddMutexWaiter(mid)
	mid.AddMutexWaiter(leaf)

	if mid.Priority() != 20 {
		t.Errorf("mid priority %d, want 20", mid.Priority())
	}
	if top.Priority() != 20 {
		t.Errorf("top priority %d, want 20 via chain", top.Priority())
	}
	checkInvariant(t, env.kernel)

	// Lowering the leaf propagates the whole way back up.
	leaf.SetPriority(50)
	if mid.Priority() != 30 {
		t.Errorf("mid priority %d, want 30 after leaf lowered", mid.Priority())
	}
	if top.Priority() != 30 {
		t.Errorf("top priority %d, want 30 (inherited from mid) after leaf lowered", top.Priority())
	}
	checkInvariant(t, env.kernel)

	// Raising the leaf urgency propagates too.
	leaf.SetPriority(5)
	if top.Priority() != 5 {
		t.Errorf("top priority %d, want 5", top.Priority())
	}
	checkInvariant(t, env.kernel)
}

func TestBoostPriority_NextUpdateRestores(t *testing.T) {
	env := newTestEnv(t)
	th := env.spawn(t, "worker", 44, 0)

	th.BoostPriority(10)
	if th.Priority() != 10 {
		t.Errorf("boost: priority %d, want 10", th.Priority())
	}
	if th.NominalPriority() != 44 {
		t.Errorf("boost changed nominal to %d", th.NominalPriority())
	}

	th.UpdatePriority()
	if th.Priority() != 44 {
		t.Errorf("update after boost: priority %d, want 44", th.Priority())
	}
}

func TestSetPriority_KeepsReadyQueueConsistent(t *testing.T) {
	env := newTestEnv(t)
	a := env.spawn(t, "a", 40, 0)
	b := env.spawn(t, "b", 30, 0)

	// b is more urgent until a is promoted past it.
	a.SetPriority(20)
	env.kernel.Scheduler(0).Reschedule()
	if cur := env.kernel.CurrentThread(0); cur != a {
		t.Errorf("expected a to run after promotion, got %v", cur)
	}
	if b.Status() != kernel.StatusReady {
		t.Errorf("b should stay ready, got %s", b.Status())
	}
	if err := testkit.CheckScheduling(env.kernel); err != nil {
		t.Errorf("scheduling consistency: %v", err)
	}
}

func TestSetPriority_OutOfRangePanics(t *testing.T) {
	env := newTestEnv(t)
	th := env.spawn(t, "worker", 44, 0)

	expectPanic(t, "SetPriority out of range", func() { th.SetPriority(64) })
	expectPanic(t, "BoostPriority out of range", func() { th.BoostPriority(64) })
}

func TestAddMutexWaiter_Panics(t *testing.T) {
	env := newTestEnv(t)
	owner := env.spawn(t, "owner", 44, 0)
	waiter := env.spawn(t, "waiter", 30, 1)
	other := env.spawn(t, "other", 30, 2)

	expectPanic(t, "self wait", func() { owner.AddMutexWaiter(owner) })

	owner.AddMutexWaiter(waiter)
	expectPanic(t, "double registration", func() { owner.AddMutexWaiter(waiter) })
	expectPanic(t, "waiter already owned elsewhere", func() { other.AddMutexWaiter(waiter) })
}

func TestRemoveMutexWaiter_WrongOwnerPanics(t *testing.T) {
	env := newTestEnv(t)
	owner := env.spawn(t, "owner", 44, 0)
	other := env.spawn(t, "other", 44, 1)
	waiter := env.spawn(t, "waiter", 30, 2)

	owner.AddMutexWaiter(waiter)
	expectPanic(t, "remove from non-owner", func() { other.RemoveMutexWaiter(waiter) })
}

func TestUpdatePriority_CyclePanics(t *testing.T) {
	env := newTestEnv(t)
	a := env.spawn(t, "a", 10, 0)
	b := env.spawn(t, "b", 20, 1)

	// Deliberately corrupt the waiter graph into a cycle.
	b.AddMutexWaiter(a)
	a.AddMutexWaiter(b)

	expectPanic(t, "inheritance cycle", func() { a.SetPriority(5) })
}

func TestChangeCore_MigratesOffExcludedCore(t *testing.T) {
	env := newTestEnv(t)
	th := env.spawn(t, "worker", 30, 0)

	// New mask excludes core 0; the thread moves to the new ideal core.
	th.ChangeCore(2, 1<<2)
	if th.Scheduler().CoreID() != 2 {
		t.Errorf("thread on core %d, want 2", th.Scheduler().CoreID())
	}
	if th.Status() != kernel.StatusReady {
		t.Errorf("expected ready after migration, got %s", th.Status())
	}
	if err := testkit.CheckScheduling(env.kernel); err != nil {
		t.Errorf("scheduling consistency: %v", err)
	}
}

func TestChangeCore_RunningThreadMigrates(t *testing.T) {
	env := newTestEnv(t)
	th := env.spawn(t, "worker", 30, 0)
	env.kernel.Scheduler(0).Reschedule()
	if env.kernel.CurrentThread(0) != th {
		t.Fatalf("expected worker current on core 0")
	}

	th.ChangeCore(1, 1<<1)
	if env.kernel.CurrentThread(0) != nil {
		t.Errorf("core 0 still has a current thread after migration")
	}
	if th.Scheduler().CoreID() != 1 || th.Status() != kernel.StatusReady {
		t.Errorf("expected ready on core 1, got %s on core %d", th.Status(), th.Scheduler().CoreID())
	}

	env.kernel.Scheduler(1).Reschedule()
	if env.kernel.CurrentThread(1) != th {
		t.Errorf("expected worker current on core 1 after reschedule")
	}
}

func TestChangeCore_KeepsPlacementWhenMaskAllows(t *testing.T) {
	env := newTestEnv(t)
	th := env.spawn(t, "worker", 30, 1)

	th.ChangeCore(3, kernel.DefaultAffinityMask)
	if th.Scheduler().CoreID() != 1 {
		t.Errorf("thread migrated to core %d although mask still allows core 1", th.Scheduler().CoreID())
	}
	if th.IdealCore() != 3 {
		t.Errorf("ideal core %d, want 3", th.IdealCore())
	}
}

func TestChangeCore_Panics(t *testing.T) {
	env := newTestEnv(t)
	th := env.spawn(t, "worker", 30, 0)

	expectPanic(t, "empty mask", func() { th.ChangeCore(0, 0) })
	expectPanic(t, "ideal core excluded", func() { th.ChangeCore(2, 1<<1) })
}
