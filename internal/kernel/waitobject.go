package kernel

import "fmt"

// WaitObject is the contract every synchronization primitive exposes to the
// thread core. Concrete primitive kinds (mutex, semaphore, event, ...) live
// outside this package; the core only needs these three views.
type WaitObject interface {
	// ShouldWait reports whether the given thread would currently block
	// attempting to acquire this object. Must be side-effect-free.
	ShouldWait(t *Thread) bool
	// Acquire performs the acquisition side effect. Called only after
	// ShouldWait returned false for the same thread.
	Acquire(t *Thread)
	// Waiters exposes the object's waiter registry.
	Waiters() *WaiterList
}

// WaiterList is the registration list every WaitObject embeds. Registration
// order is preserved: it is the FIFO tie-break among equal-priority waiters.
type WaiterList struct {
	threads []*Thread
}

// Add registers a waiting thread. Adding a thread that is already registered
// is a no-op, so signal paths may re-register without bookkeeping.
func (wl *WaiterList) Add(t *Thread) {
	for _, cand := range wl.threads {
		if cand == t {
			return
		}
	}
	wl.threads = append(wl.threads, t)
}

// Remove unregisters a waiting thread. Removing an absent thread is a no-op.
func (wl *WaiterList) Remove(t *Thread) {
	for i, cand := range wl.threads {
		if cand == t {
			copy(wl.threads[i:], wl.threads[i+1:])
			wl.threads[len(wl.threads)-1] = nil
			wl.threads = wl.threads[:len(wl.threads)-1]
			return
		}
	}
}

// Empty reports whether no thread is registered.
func (wl *WaiterList) Empty() bool { return len(wl.threads) == 0 }

// Threads returns the registered threads in registration order.
func (wl *WaiterList) Threads() []*Thread {
	out := make([]*Thread, len(wl.threads))
	copy(out, wl.threads)
	return out
}

// HighestPriorityReadyThread scans o's waiters for the best thread that could
// complete its wait right now. Among equal-priority candidates the first
// registered wins. Returns nil when no waiter can proceed.
func HighestPriorityReadyThread(o WaitObject) *Thread {
	var candidate *Thread
	candidatePriority := PriorityLowest + 1

	for _, t := range o.Waiters().threads {
		switch t.status {
		case StatusWaitSynchAny, StatusWaitSynchAll, StatusWaitHLEEvent:
		default:
			panic(fmt.Sprintf("kernel: thread %d in waiter list with status %s", t.id, t.status))
		}
		if t.currentPriority >= candidatePriority {
			continue
		}
		if o.ShouldWait(t) {
			continue
		}
		// A wait-all sleeper only completes when every object in its list is
		// simultaneously acquirable, not just the signaling one.
		readyToRun := true
		if t.status == StatusWaitSynchAll {
			for _, obj := range t.waitObjects {
				if obj.ShouldWait(t) {
					readyToRun = false
					break
				}
			}
		}
		if readyToRun {
			candidate = t
			candidatePriority = t.currentPriority
		}
	}
	return candidate
}

// WakeupWaitingThread completes t's wait episode against o: acquires the
// matched object (or, for a wait-all sleeper, every object in t's list),
// records the guest-visible result and output index, tears down every waiter
// registration in one step, and resumes the thread.
func WakeupWaitingThread(o WaitObject, t *Thread) WakeResult {
	if o.ShouldWait(t) {
		panic(fmt.Sprintf("kernel: waking thread %d that would still wait", t.id))
	}

	if !t.IsSleepingOnWaitAll() {
		o.Acquire(t)
	} else {
		for _, obj := range t.waitObjects {
			if obj.ShouldWait(t) {
				panic(fmt.Sprintf("kernel: wait-all thread %d woken with unacquirable object", t.id))
			}
			obj.Acquire(t)
		}
	}

	index := t.WaitObjectIndex(o)
	t.clearWaitObjects()
	t.SetWaitSynchronizationResult(ResultSuccess)
	t.SetWaitSynchronizationOutput(index)

	res := WakeResult{Reason: WakeReasonSignal, Object: o, Index: index}
	t.setWakeResult(res)
	t.ResumeFromWait()
	return res
}

// WakeupAllWaitingThreads drains o's waiter list of every thread that can now
// complete its wait, in priority order with FIFO tie-break, and returns the
// wake results in the order the threads were resumed.
func WakeupAllWaitingThreads(o WaitObject) []WakeResult {
	var results []WakeResult
	for t := HighestPriorityReadyThread(o); t != nil; t = HighestPriorityReadyThread(o) {
		results = append(results, WakeupWaitingThread(o, t))
	}
	return results
}
