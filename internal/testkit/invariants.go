package testkit

import (
	"fmt"

	"horizon/internal/kernel"
)

// CheckPriorityInvariant verifies that every thread's effective priority is
// exactly min(nominal, min over its mutex waiters' effective priorities).
// This must hold immediately after any UpdatePriority, AddMutexWaiter or
// RemoveMutexWaiter call, all the way up every lock-owner chain.
func CheckPriorityInvariant(threads []*kernel.Thread) error {
	for _, t := range threads {
		want := t.NominalPriority()
		for _, w := range t.MutexWaiters() {
			if w.Priority() < want {
				want = w.Priority()
			}
		}
		if got := t.Priority(); got != want {
			return fmt.Errorf("thread %d (%s): current priority %d, want %d",
				t.ID(), t.Name(), got, want)
		}
	}
	return nil
}

// CheckWaiterBackrefs verifies the lock-owner/waiter relation is mutually
// consistent: A is in B's waiter list if and only if A.LockOwner() == B.
func CheckWaiterBackrefs(threads []*kernel.Thread) error {
	for _, owner := range threads {
		for _, w := range owner.MutexWaiters() {
			if w.LockOwner() != owner {
				return fmt.Errorf("thread %d in waiter list of %d but lock owner is not %d",
					w.ID(), owner.ID(), owner.ID())
			}
		}
	}
	for _, w := range threads {
		owner := w.LockOwner()
		if owner == nil {
			continue
		}
		found := false
		for _, cand := range owner.MutexWaiters() {
			if cand == w {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("thread %d names %d as lock owner but is not in its waiter list",
				w.ID(), owner.ID())
		}
	}
	return nil
}

// CheckDeadThread verifies termination hygiene: a dead thread holds no wait
// registrations and appears in nobody's bookkeeping.
func CheckDeadThread(t *kernel.Thread, live []*kernel.Thread) error {
	if t.Status() != kernel.StatusDead {
		return fmt.Errorf("thread %d: status %s, want dead", t.ID(), t.Status())
	}
	if n := len(t.WaitObjects()); n != 0 {
		return fmt.Errorf("dead thread %d still waits on %d objects", t.ID(), n)
	}
	if n := len(t.MutexWaiters()); n != 0 {
		return fmt.Errorf("dead thread %d still has %d mutex waiters", t.ID(), n)
	}
	if t.LockOwner() != nil {
		return fmt.Errorf("dead thread %d still has a lock owner", t.ID())
	}
	for _, other := range live {
		for _, w := range other.MutexWaiters() {
			if w == t {
				return fmt.Errorf("dead thread %d still in waiter list of %d", t.ID(), other.ID())
			}
		}
	}
	return nil
}

// CheckScheduling verifies thread status and queue placement stay consistent
// on every core: the current thread is Running, Ready threads placed on the
// core are queued, and waiting or dormant threads are not.
func CheckScheduling(k *kernel.KernelCore) error {
	for core := 0; core < k.NumCores(); core++ {
		s := k.Scheduler(int32(core))
		if cur := s.CurrentThread(); cur != nil && cur.Status() != kernel.StatusRunning {
			return fmt.Errorf("core %d: current thread %d has status %s", core, cur.ID(), cur.Status())
		}
		for _, t := range s.Threads() {
			switch t.Status() {
			case kernel.StatusReady:
				if !s.Queued(t) {
					return fmt.Errorf("core %d: ready thread %d not queued", core, t.ID())
				}
			case kernel.StatusRunning:
				if s.CurrentThread() != t {
					return fmt.Errorf("core %d: running thread %d is not current", core, t.ID())
				}
			default:
				if s.Queued(t) {
					return fmt.Errorf("core %d: %s thread %d still queued", core, t.Status(), t.ID())
				}
			}
		}
	}
	return nil
}
