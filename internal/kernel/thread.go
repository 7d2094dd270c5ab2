package kernel

import (
	"fmt"

	"horizon/internal/trace"
)

// Thread priorities are inverted: 0 is the most urgent, 63 the least.
const (
	// PriorityHighest is the most urgent priority.
	PriorityHighest uint32 = 0
	// PriorityUserlandMax is the most urgent priority available to userland.
	PriorityUserlandMax uint32 = 24
	// PriorityDefault is the default priority for userland threads.
	PriorityDefault uint32 = 44
	// PriorityLowest is the least urgent priority.
	PriorityLowest uint32 = 63
	// PriorityLevels is the number of distinct priority levels.
	PriorityLevels = 64
)

// Processor id selectors accepted at thread creation.
const (
	// ProcessorIDDefault runs the thread on the owner process's ideal core.
	ProcessorIDDefault int32 = -2
	ProcessorID0       int32 = 0
	ProcessorID1       int32 = 1
	ProcessorID2       int32 = 2
	ProcessorID3       int32 = 3
	// ProcessorIDMax is one past the largest valid core id.
	ProcessorIDMax int32 = 4
)

// DefaultAffinityMask allows scheduling on cores 0-3.
const DefaultAffinityMask uint64 = (1 << ProcessorID0) | (1 << ProcessorID1) |
	(1 << ProcessorID2) | (1 << ProcessorID3)

// ThreadStatus is the scheduling state of a thread.
type ThreadStatus uint8

const (
	// StatusRunning means currently executing on a core.
	StatusRunning ThreadStatus = iota
	// StatusReady means queued waiting for a core.
	StatusReady
	// StatusWaitHLEEvent means waiting for an HLE-internal event.
	StatusWaitHLEEvent
	// StatusWaitSleep means waiting due to a sleep system call.
	StatusWaitSleep
	// StatusWaitIPC means waiting for the reply to an IPC request.
	StatusWaitIPC
	// StatusWaitSynchAny means waiting for any object of a wait list.
	StatusWaitSynchAny
	// StatusWaitSynchAll means waiting for all objects of a wait list.
	StatusWaitSynchAll
	// StatusWaitMutex means waiting for a mutex or condition variable.
	StatusWaitMutex
	// StatusWaitArb means waiting on an address arbiter.
	StatusWaitArb
	// StatusDormant means created but not yet made ready.
	StatusDormant
	// StatusDead means run to completion or forcefully terminated.
	StatusDead
)

// String returns the lower-case name of the status.
func (s ThreadStatus) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusReady:
		return "ready"
	case StatusWaitHLEEvent:
		return "wait-hle-event"
	case StatusWaitSleep:
		return "wait-sleep"
	case StatusWaitIPC:
		return "wait-ipc"
	case StatusWaitSynchAny:
		return "wait-synch-any"
	case StatusWaitSynchAll:
		return "wait-synch-all"
	case StatusWaitMutex:
		return "wait-mutex"
	case StatusWaitArb:
		return "wait-arb"
	case StatusDormant:
		return "dormant"
	case StatusDead:
		return "dead"
	default:
		return "unknown"
	}
}

// IsWaiting reports whether the status is one of the Wait* sub-states.
func (s ThreadStatus) IsWaiting() bool {
	switch s {
	case StatusWaitHLEEvent, StatusWaitSleep, StatusWaitIPC,
		StatusWaitSynchAny, StatusWaitSynchAll, StatusWaitMutex, StatusWaitArb:
		return true
	}
	return false
}

// Thread is one schedulable guest execution context. All mutation happens at
// kernel entry points under the KernelCore critical section; Thread itself is
// not goroutine-safe.
//
// A Thread is also a WaitObject: other threads may wait on it, completing
// once it is Dead (thread join).
type Thread struct {
	kernel *KernelCore

	id   uint64
	name string

	context          Context
	entryPoint       VAddr
	stackTop         VAddr
	lastRunningTicks uint64

	status ThreadStatus

	// nominalPriority is what the application asked for; currentPriority is
	// the effective priority after inheritance or an explicit boost. Because
	// priorities are inverted, a boosted currentPriority is numerically lower
	// than nominalPriority.
	nominalPriority uint32
	currentPriority uint32

	processorID  int32
	idealCore    uint32
	affinityMask uint64

	tlsAddress VAddr
	tpidrEL0   uint64

	ownerProcess *Process

	// waitObjects holds the objects of the current wait episode, in call
	// order. The order is significant: the reported wake index is the LAST
	// matching entry.
	waitObjects []WaitObject

	// waitMutexThreads are the threads blocked on locks this thread holds.
	// It is a back-reference used for priority inheritance and lock hand-off.
	waitMutexThreads []*Thread
	// lockOwner is the thread holding the lock this thread is blocked on.
	// Non-owning: the owner keeps running.
	lockOwner *Thread

	condvarWaitAddress VAddr
	mutexWaitAddress   VAddr
	arbWaitAddress     VAddr
	waitHandle         Handle

	waitResult ResultCode
	waitOutput int32
	wakeResult WakeResult

	// scheduler is a non-owning reference to the core this thread is placed
	// on; the kernel owns the schedulers.
	scheduler *Scheduler

	// waiters are the threads joined on this thread (Thread-as-WaitObject).
	waiters WaiterList
}

// ID returns the process-scoped thread id.
func (t *Thread) ID() uint64 { return t.id }

// Name returns the diagnostic thread name.
func (t *Thread) Name() string { return t.name }

// Status returns the current scheduling status.
func (t *Thread) Status() ThreadStatus { return t.status }

// Priority returns the thread's effective (current) priority.
func (t *Thread) Priority() uint32 { return t.currentPriority }

// NominalPriority returns the application-requested priority.
func (t *Thread) NominalPriority() uint32 { return t.nominalPriority }

// ProcessorID returns the core the thread was created for.
func (t *Thread) ProcessorID() int32 { return t.processorID }

// IdealCore returns the preferred core.
func (t *Thread) IdealCore() uint32 { return t.idealCore }

// AffinityMask returns the allowed-cores bitmask.
func (t *Thread) AffinityMask() uint64 { return t.affinityMask }

// EntryPoint returns the guest address execution starts at.
func (t *Thread) EntryPoint() VAddr { return t.entryPoint }

// StackTop returns the guest stack top address.
func (t *Thread) StackTop() VAddr { return t.stackTop }

// LastRunningTicks returns the CPU tick count when the thread last ran.
func (t *Thread) LastRunningTicks() uint64 { return t.lastRunningTicks }

// Context returns the saved CPU context for mutation by the CPU collaborator.
func (t *Thread) Context() *Context { return &t.context }

// OwnerProcess returns the process this thread belongs to.
func (t *Thread) OwnerProcess() *Process { return t.ownerProcess }

// Scheduler returns the core scheduler the thread is currently placed on.
func (t *Thread) Scheduler() *Scheduler { return t.scheduler }

// TLSAddress returns the guest address of the thread-local storage block.
func (t *Thread) TLSAddress() VAddr { return t.tlsAddress }

// TPIDREL0 returns the thread's TPIDR_EL0 system register value.
func (t *Thread) TPIDREL0() uint64 { return t.tpidrEL0 }

// SetTPIDREL0 sets the thread's TPIDR_EL0 system register value.
func (t *Thread) SetTPIDREL0(value uint64) { t.tpidrEL0 = value }

// CommandBufferAddress returns the guest address of the thread's IPC command
// buffer, located at a fixed offset inside the TLS block.
func (t *Thread) CommandBufferAddress() VAddr {
	const commandHeaderOffset = 0x80
	return t.tlsAddress + commandHeaderOffset
}

// LockOwner returns the thread holding the lock this thread is blocked on.
func (t *Thread) LockOwner() *Thread { return t.lockOwner }

// MutexWaiters returns the threads blocked on locks this thread holds.
func (t *Thread) MutexWaiters() []*Thread {
	out := make([]*Thread, len(t.waitMutexThreads))
	copy(out, t.waitMutexThreads)
	return out
}

// MutexWaitAddress returns the guest mutex address the thread is blocked on.
func (t *Thread) MutexWaitAddress() VAddr { return t.mutexWaitAddress }

// SetMutexWaitAddress records the guest mutex address being waited on.
func (t *Thread) SetMutexWaitAddress(addr VAddr) { t.mutexWaitAddress = addr }

// CondvarWaitAddress returns the condition-variable address being waited on.
func (t *Thread) CondvarWaitAddress() VAddr { return t.condvarWaitAddress }

// SetCondvarWaitAddress records the condition-variable address being waited on.
func (t *Thread) SetCondvarWaitAddress(addr VAddr) { t.condvarWaitAddress = addr }

// ArbWaitAddress returns the arbiter address being waited on.
func (t *Thread) ArbWaitAddress() VAddr { return t.arbWaitAddress }

// SetArbWaitAddress records the arbiter address being waited on.
func (t *Thread) SetArbWaitAddress(addr VAddr) { t.arbWaitAddress = addr }

// WaitHandle returns the handle used to wait for the mutex.
func (t *Thread) WaitHandle() Handle { return t.waitHandle }

// SetWaitHandle records the handle used to wait for the mutex.
func (t *Thread) SetWaitHandle(h Handle) { t.waitHandle = h }

// SetStatus moves the thread into a wait sub-state. Only the sleep/IPC/mutex/
// arbiter paths use this directly; synchronization waits go through
// WaitSynchronization.
func (t *Thread) SetStatus(status ThreadStatus) {
	if t.status == StatusDead {
		panic(fmt.Sprintf("kernel: status change on dead thread %d", t.id))
	}
	t.status = status
}

// ShouldWait implements WaitObject: joining threads block until this thread
// is dead.
func (t *Thread) ShouldWait(waiter *Thread) bool {
	return t.status != StatusDead
}

// Acquire implements WaitObject. Joining has no acquisition side effect.
func (t *Thread) Acquire(waiter *Thread) {
	if t.ShouldWait(waiter) {
		panic(fmt.Sprintf("kernel: thread %d acquired while alive", t.id))
	}
}

// Waiters implements WaitObject.
func (t *Thread) Waiters() *WaiterList { return &t.waiters }

// Stop forcefully terminates the thread: cancels its wakeup timer, removes it
// from all scheduling and wait structures, wakes its joiners, releases its TLS
// block and unregisters it from the kernel. Stopping a dead thread is a
// kernel-model bug.
func (t *Thread) Stop() {
	if t.status == StatusDead {
		panic(fmt.Sprintf("kernel: stopping dead thread %d", t.id))
	}

	t.CancelWakeupTimer()

	switch t.status {
	case StatusReady:
		t.scheduler.UnscheduleThread(t, t.currentPriority)
	case StatusRunning:
		t.scheduler.dropCurrent(t)
	}

	t.status = StatusDead

	// Joiners complete now that the thread is dead.
	WakeupAllWaitingThreads(t)

	// Drop every wait registration this thread still holds.
	t.clearWaitObjects()
	if t.lockOwner != nil {
		t.lockOwner.RemoveMutexWaiter(t)
	}
	t.mutexWaitAddress = 0
	t.condvarWaitAddress = 0
	t.arbWaitAddress = 0
	t.waitHandle = 0

	// Threads blocked on locks this thread held lose their owner. They stay
	// blocked on the guest-side lock word; the back-reference must not dangle.
	for _, w := range t.waitMutexThreads {
		w.lockOwner = nil
	}
	t.waitMutexThreads = nil

	t.ownerProcess.FreeTLSSlot(t.tlsAddress)

	t.scheduler.RemoveThread(t)
	t.kernel.unregisterThread(t)
	t.kernel.emit(trace.ScopeThread, t.scheduler.coreID, t.id, "stop", "")
}
