package kernel

import (
	"fmt"

	"fortio.org/safecast"

	"horizon/internal/trace"
)

// SetPriority changes the thread's nominal priority and recomputes the
// effective priority. The priority must already be validated at the
// system-call boundary; an out-of-range value here is a kernel-model bug.
func (t *Thread) SetPriority(priority uint32) {
	if priority > PriorityLowest {
		panic(fmt.Sprintf("kernel: SetPriority(%d) out of range on thread %d", priority, t.id))
	}
	t.nominalPriority = priority
	t.UpdatePriority()
}

// BoostPriority overrides the effective priority directly, bypassing the
// nominal priority, for a single scheduling quantum. The next UpdatePriority
// call restores the inheritance-derived value.
func (t *Thread) BoostPriority(priority uint32) {
	if priority > PriorityLowest {
		panic(fmt.Sprintf("kernel: BoostPriority(%d) out of range on thread %d", priority, t.id))
	}
	t.setCurrentPriority(priority)
}

// setCurrentPriority applies a new effective priority and keeps the ready
// queue position consistent with it.
func (t *Thread) setCurrentPriority(priority uint32) {
	if priority == t.currentPriority {
		return
	}
	if t.scheduler != nil {
		t.scheduler.SetThreadPriority(t, priority)
	}
	t.currentPriority = priority
}

// UpdatePriority recomputes the effective priority from the nominal priority
// and the priorities of every thread blocked on a lock this thread holds,
// then propagates the change up the lock-owner chain. The walk is a bounded
// loop: propagation stops as soon as a link's priority is unchanged, and
// revisiting a thread means the waiter graph has a cycle, which is a
// kernel-model bug.
func (t *Thread) UpdatePriority() {
	visited := make(map[*Thread]struct{})
	for cur := t; cur != nil; cur = cur.lockOwner {
		if _, seen := visited[cur]; seen {
			panic(fmt.Sprintf("kernel: priority inheritance cycle through thread %d", cur.id))
		}
		visited[cur] = struct{}{}

		want := cur.nominalPriority
		for _, w := range cur.waitMutexThreads {
			if w.currentPriority < want {
				want = w.currentPriority
			}
		}
		if want == cur.currentPriority {
			return
		}
		cur.setCurrentPriority(want)
	}
}

// AddMutexWaiter registers w as blocked on a lock this thread holds and
// recomputes the inherited priority. Self-waits and double registrations are
// kernel-model bugs.
func (t *Thread) AddMutexWaiter(w *Thread) {
	if w == t {
		panic(fmt.Sprintf("kernel: thread %d waiting on its own lock", t.id))
	}
	if w.lockOwner != nil {
		panic(fmt.Sprintf("kernel: thread %d already waits on a lock held by thread %d", w.id, w.lockOwner.id))
	}
	for _, existing := range t.waitMutexThreads {
		if existing == w {
			panic(fmt.Sprintf("kernel: thread %d registered twice as mutex waiter", w.id))
		}
	}
	t.waitMutexThreads = append(t.waitMutexThreads, w)
	w.lockOwner = t
	t.UpdatePriority()
	t.kernel.emit(trace.ScopeWait, -1, t.id, "mutex-waiter-add",
		fmt.Sprintf("waiter=%d prio=%d", w.id, t.currentPriority))
}

// RemoveMutexWaiter unregisters w from this thread's waiter list and
// recomputes the inherited priority.
func (t *Thread) RemoveMutexWaiter(w *Thread) {
	if w.lockOwner != t {
		panic(fmt.Sprintf("kernel: thread %d is not a mutex waiter of thread %d", w.id, t.id))
	}
	found := false
	for i, existing := range t.waitMutexThreads {
		if existing == w {
			copy(t.waitMutexThreads[i:], t.waitMutexThreads[i+1:])
			t.waitMutexThreads[len(t.waitMutexThreads)-1] = nil
			t.waitMutexThreads = t.waitMutexThreads[:len(t.waitMutexThreads)-1]
			found = true
			break
		}
	}
	if !found {
		panic(fmt.Sprintf("kernel: thread %d missing from waiter list of thread %d", w.id, t.id))
	}
	w.lockOwner = nil
	t.UpdatePriority()
	t.kernel.emit(trace.ScopeWait, -1, t.id, "mutex-waiter-remove",
		fmt.Sprintf("waiter=%d prio=%d", w.id, t.currentPriority))
}

// ChangeCore updates the ideal core and affinity mask. A Ready or Running
// thread whose current core is excluded by the new mask migrates to the ideal
// core's scheduler.
func (t *Thread) ChangeCore(core uint32, mask uint64) {
	if mask == 0 {
		panic(fmt.Sprintf("kernel: empty affinity mask on thread %d", t.id))
	}
	if mask&(1<<core) == 0 {
		panic(fmt.Sprintf("kernel: ideal core %d excluded by affinity mask %#x", core, mask))
	}
	t.idealCore = core
	t.affinityMask = mask

	if t.status != StatusReady && t.status != StatusRunning {
		return
	}
	if t.scheduler == nil {
		return
	}
	currentCore, err := safecast.Conv[uint32](t.scheduler.coreID)
	if err != nil {
		panic(fmt.Sprintf("kernel: core id overflow: %v", err))
	}
	if mask&(1<<currentCore) != 0 {
		return
	}

	// The thread may no longer run where it is; move it to the ideal core.
	targetCore, err := safecast.Conv[int32](core)
	if err != nil {
		panic(fmt.Sprintf("kernel: core id overflow: %v", err))
	}
	target := t.kernel.Scheduler(targetCore)
	switch t.status {
	case StatusReady:
		t.scheduler.UnscheduleThread(t, t.currentPriority)
	case StatusRunning:
		t.scheduler.dropCurrent(t)
	}
	t.scheduler.RemoveThread(t)
	t.status = StatusReady
	t.scheduler = target
	target.AddThread(t)
	target.ScheduleThread(t, t.currentPriority)
	t.kernel.emit(trace.ScopeThread, targetCore, t.id, "migrate",
		fmt.Sprintf("mask=%#x", mask))
}
