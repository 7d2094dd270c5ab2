package kernel

import (
	"fmt"

	"fortio.org/safecast"

	"horizon/internal/trace"
)

// WakeReason reports why a thread left a waiting state.
type WakeReason uint8

const (
	// WakeReasonNone means the thread has not completed a wait episode yet.
	WakeReasonNone WakeReason = iota
	// WakeReasonSignal means an object signal completed the wait.
	WakeReasonSignal
	// WakeReasonTimeout means the wakeup timer fired first.
	WakeReasonTimeout
)

// String returns the lower-case name of the reason.
func (r WakeReason) String() string {
	switch r {
	case WakeReasonNone:
		return "none"
	case WakeReasonSignal:
		return "signal"
	case WakeReasonTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// WakeResult is the tagged outcome of a wait episode, recorded by the resume
// path and consumed by the caller of resume. On timeout Object is nil and
// Index is -1.
type WakeResult struct {
	Reason WakeReason
	Object WaitObject
	Index  int32
}

// WakeResult returns the outcome of the thread's most recent wait episode.
func (t *Thread) WakeResult() WakeResult { return t.wakeResult }

func (t *Thread) setWakeResult(res WakeResult) { t.wakeResult = res }

// SetWaitSynchronizationResult records the result code the guest-visible wait
// call observes once the thread resumes.
func (t *Thread) SetWaitSynchronizationResult(result ResultCode) {
	t.waitResult = result
}

// SetWaitSynchronizationOutput records the output index the guest-visible
// wait call observes once the thread resumes.
func (t *Thread) SetWaitSynchronizationOutput(output int32) {
	t.waitOutput = output
}

// WaitSynchronizationResult returns the recorded result code.
func (t *Thread) WaitSynchronizationResult() ResultCode { return t.waitResult }

// WaitSynchronizationOutput returns the recorded output index.
func (t *Thread) WaitSynchronizationOutput() int32 { return t.waitOutput }

// IsSleepingOnWaitAll reports whether the thread sleeps in a wait-all, which
// signaling paths must treat specially: the whole list is re-checked, not
// just the signaling object.
func (t *Thread) IsSleepingOnWaitAll() bool { return t.status == StatusWaitSynchAll }

// WaitObjects returns the objects of the current wait episode in call order.
func (t *Thread) WaitObjects() []WaitObject {
	out := make([]WaitObject, len(t.waitObjects))
	copy(out, t.waitObjects)
	return out
}

// WaitObjectIndex returns the index object occupies in the thread's wait
// list, searching from the last element backward. When the same object occurs
// several times the LAST index wins; guest software depends on this, so it is
// preserved as a compatibility rule.
func (t *Thread) WaitObjectIndex(object WaitObject) int32 {
	if len(t.waitObjects) == 0 {
		panic(fmt.Sprintf("kernel: thread %d is not waiting on any object", t.id))
	}
	for i := len(t.waitObjects) - 1; i >= 0; i-- {
		if t.waitObjects[i] == object {
			idx, err := safecast.Conv[int32](i)
			if err != nil {
				panic(fmt.Sprintf("kernel: wait object index overflow: %v", err))
			}
			return idx
		}
	}
	panic(fmt.Sprintf("kernel: object not in wait list of thread %d", t.id))
}

// WaitSynchronization starts a multi-object wait episode for the thread. The
// thread must be Running (the calling core's current thread) or Ready.
//
// If the wait condition is already satisfied (any object acquirable for
// wait-any, all simultaneously acquirable for wait-all) the objects are
// acquired and the call returns false without blocking. A zero timeout never
// blocks: the episode resolves to ResultTimeout immediately. Otherwise the
// thread registers with every object, enters WaitSynchAny/WaitSynchAll, arms
// the wakeup timer (timeoutNs < 0 waits forever) and the call returns true.
func (t *Thread) WaitSynchronization(objects []WaitObject, waitAll bool, timeoutNs int64) bool {
	if len(objects) == 0 {
		panic(fmt.Sprintf("kernel: empty wait list on thread %d", t.id))
	}
	switch t.status {
	case StatusRunning, StatusReady:
	default:
		panic(fmt.Sprintf("kernel: thread %d cannot start a wait in status %s", t.id, t.status))
	}

	if waitAll {
		allReady := true
		for _, obj := range objects {
			if obj.ShouldWait(t) {
				allReady = false
				break
			}
		}
		if allReady {
			for _, obj := range objects {
				obj.Acquire(t)
			}
			t.completeImmediateWait(objects[len(objects)-1], int32(len(objects)-1))
			return false
		}
	} else {
		// Immediate satisfaction takes the first acquirable object; the
		// last-match rule only governs wakeups from a sleep.
		for i, obj := range objects {
			if obj.ShouldWait(t) {
				continue
			}
			obj.Acquire(t)
			idx, err := safecast.Conv[int32](i)
			if err != nil {
				panic(fmt.Sprintf("kernel: wait object index overflow: %v", err))
			}
			t.completeImmediateWait(obj, idx)
			return false
		}
	}

	if timeoutNs == 0 {
		t.SetWaitSynchronizationResult(ResultTimeout)
		t.SetWaitSynchronizationOutput(-1)
		t.setWakeResult(WakeResult{Reason: WakeReasonTimeout, Index: -1})
		return false
	}

	if t.status == StatusReady {
		t.scheduler.UnscheduleThread(t, t.currentPriority)
	}

	t.waitObjects = make([]WaitObject, len(objects))
	copy(t.waitObjects, objects)
	for _, obj := range objects {
		obj.Waiters().Add(t)
	}
	if waitAll {
		t.status = StatusWaitSynchAll
	} else {
		t.status = StatusWaitSynchAny
	}
	// Default to timeout; a signal overwrites it before resuming.
	t.SetWaitSynchronizationResult(ResultTimeout)
	t.SetWaitSynchronizationOutput(-1)
	t.WakeAfterDelay(timeoutNs)
	t.kernel.emit(trace.ScopeWait, -1, t.id, "block",
		fmt.Sprintf("objects=%d all=%v timeout=%dns", len(objects), waitAll, timeoutNs))
	return true
}

func (t *Thread) completeImmediateWait(obj WaitObject, index int32) {
	t.SetWaitSynchronizationResult(ResultSuccess)
	t.SetWaitSynchronizationOutput(index)
	t.setWakeResult(WakeResult{Reason: WakeReasonSignal, Object: obj, Index: index})
}

// clearWaitObjects removes the thread from every object registry it joined
// during the current wait episode and empties the wait list. This is the only
// routine that performs the removal, so cleanup is all-or-nothing.
func (t *Thread) clearWaitObjects() {
	for _, obj := range t.waitObjects {
		obj.Waiters().Remove(t)
	}
	t.waitObjects = nil
}

// ResumeFromWait transitions the thread out of a waiting state back to Ready
// and requeues it. Every resume path funnels through here, so the wakeup
// timer cancellation is unconditional: a stale timer must never resume an
// already-resumed thread.
func (t *Thread) ResumeFromWait() {
	t.CancelWakeupTimer()

	switch t.status {
	case StatusWaitSynchAll, StatusWaitSynchAny, StatusWaitHLEEvent,
		StatusWaitSleep, StatusWaitIPC, StatusWaitMutex, StatusWaitArb:
		if len(t.waitObjects) != 0 {
			panic(fmt.Sprintf("kernel: thread %d resuming while registered on wait objects", t.id))
		}
	case StatusReady, StatusRunning:
		// Already resumed on another path; nothing to do.
		return
	case StatusDead:
		// Stale resume against a stopped thread. Harmless, ignore.
		return
	case StatusDormant:
		panic(fmt.Sprintf("kernel: resuming dormant thread %d", t.id))
	}

	t.status = StatusReady
	t.scheduler.ScheduleThread(t, t.currentPriority)
	t.kernel.emit(trace.ScopeWait, -1, t.id, "resume", t.wakeResult.Reason.String())
}

// WakeAfterDelay arms the wakeup timer to resume the thread after the given
// delay. A negative delay means wait forever: no timer is armed.
func (t *Thread) WakeAfterDelay(nanoseconds int64) {
	if nanoseconds < 0 {
		return
	}
	delay, err := safecast.Conv[uint64](nanoseconds)
	if err != nil {
		panic(fmt.Sprintf("kernel: wakeup delay overflow: %v", err))
	}
	t.kernel.timing.ScheduleEvent(delay, t.kernel.threadWakeupEvent, t.id)
	t.kernel.emit(trace.ScopeTimer, -1, t.id, "arm", fmt.Sprintf("%dns", nanoseconds))
}

// CancelWakeupTimer cancels any outstanding wakeup timer for this thread.
// Idempotent: cancelling twice, or after the timer fired, is a no-op.
func (t *Thread) CancelWakeupTimer() {
	t.kernel.timing.UnscheduleEvent(t.kernel.threadWakeupEvent, t.id)
}
