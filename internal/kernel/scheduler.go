package kernel

import (
	"fmt"

	"horizon/internal/sched"
	"horizon/internal/trace"
)

// Scheduler manages the ready queue of one emulated core. It is also the
// per-core execution context: its current thread is the thread executing on
// that core right now. The kernel owns its schedulers; threads only keep
// non-owning references back.
type Scheduler struct {
	kernel *KernelCore
	cpu    CPU
	coreID int32

	threadList    []*Thread
	readyQueue    *sched.Queue[*Thread]
	currentThread *Thread
}

func newScheduler(k *KernelCore, coreID int32, cpu CPU) *Scheduler {
	return &Scheduler{
		kernel:     k,
		cpu:        cpu,
		coreID:     coreID,
		readyQueue: sched.NewQueue[*Thread](PriorityLevels),
	}
}

// CoreID returns the core this scheduler drives.
func (s *Scheduler) CoreID() int32 { return s.coreID }

// CPU returns the CPU collaborator attached to this core.
func (s *Scheduler) CPU() CPU { return s.cpu }

// CurrentThread returns the thread running on this core, or nil when idle.
func (s *Scheduler) CurrentThread() *Thread { return s.currentThread }

// HaveReadyThreads reports whether any thread is queued on this core.
func (s *Scheduler) HaveReadyThreads() bool { return !s.readyQueue.Empty() }

// Threads returns every thread placed on this core, in placement order.
func (s *Scheduler) Threads() []*Thread {
	out := make([]*Thread, len(s.threadList))
	copy(out, s.threadList)
	return out
}

// AddThread places a thread on this core.
func (s *Scheduler) AddThread(t *Thread) {
	s.threadList = append(s.threadList, t)
}

// RemoveThread takes a thread off this core entirely.
func (s *Scheduler) RemoveThread(t *Thread) {
	for i, cand := range s.threadList {
		if cand == t {
			copy(s.threadList[i:], s.threadList[i+1:])
			s.threadList[len(s.threadList)-1] = nil
			s.threadList = s.threadList[:len(s.threadList)-1]
			return
		}
	}
}

// ScheduleThread queues a Ready thread for execution.
func (s *Scheduler) ScheduleThread(t *Thread, priority uint32) {
	if t.status != StatusReady {
		panic(fmt.Sprintf("kernel: scheduling thread %d in status %s", t.id, t.status))
	}
	s.readyQueue.PushBack(priority, t)
}

// UnscheduleThread removes a Ready thread from the queue.
func (s *Scheduler) UnscheduleThread(t *Thread, priority uint32) {
	if t.status != StatusReady {
		panic(fmt.Sprintf("kernel: unscheduling thread %d in status %s", t.id, t.status))
	}
	if !s.readyQueue.Remove(priority, t) {
		panic(fmt.Sprintf("kernel: thread %d not queued at priority %d", t.id, priority))
	}
}

// SetThreadPriority moves a queued thread to a new priority level. The
// thread's own priority field is updated by the caller afterwards.
func (s *Scheduler) SetThreadPriority(t *Thread, priority uint32) {
	if t.status == StatusReady {
		s.readyQueue.Move(t, t.currentPriority, priority)
	}
}

// Queued reports whether t sits in this core's ready queue at its current
// priority.
func (s *Scheduler) Queued(t *Thread) bool {
	return s.readyQueue.Contains(t.currentPriority, t)
}

// Reschedule performs one scheduling decision on this core: picks the next
// thread to run and switches to it.
func (s *Scheduler) Reschedule() {
	next := s.popNextReadyThread()
	s.switchContext(next)
}

// popNextReadyThread selects the thread to run next. A Running current thread
// is only displaced by a strictly more urgent one; otherwise the front of the
// most urgent non-empty level wins.
func (s *Scheduler) popNextReadyThread() *Thread {
	cur := s.currentThread
	if cur != nil && cur.status == StatusRunning {
		if next, ok := s.readyQueue.PopFirstBetter(cur.currentPriority); ok {
			return next
		}
		return cur
	}
	next, _ := s.readyQueue.PopFirst()
	return next
}

// switchContext saves the outgoing thread's CPU state and loads the incoming
// thread's. A preempted thread that did not yield goes to the front of its
// level so it resumes before its FIFO peers.
func (s *Scheduler) switchContext(next *Thread) {
	prev := s.currentThread
	if prev == next {
		// Either nothing better was ready, or the current thread won its own
		// slot back after being resumed; keep it running.
		if next != nil && next.status == StatusReady {
			s.readyQueue.Remove(next.currentPriority, next)
			next.status = StatusRunning
		}
		return
	}

	if prev != nil {
		prev.lastRunningTicks = s.kernel.timing.CPUTicks()
		s.cpu.SaveContext(&prev.context)
		if prev.status == StatusRunning {
			s.readyQueue.PushFront(prev.currentPriority, prev)
			prev.status = StatusReady
		}
	}

	if next == nil {
		s.currentThread = nil
		s.kernel.emit(trace.ScopeCore, s.coreID, 0, "idle", "")
		return
	}

	if next.status != StatusReady {
		panic(fmt.Sprintf("kernel: switching to thread %d in status %s", next.id, next.status))
	}
	// A stale wakeup timer must not fire once the thread is running again.
	next.CancelWakeupTimer()

	s.currentThread = next
	s.readyQueue.Remove(next.currentPriority, next)
	next.status = StatusRunning
	next.scheduler = s
	s.cpu.LoadContext(&next.context)
	s.cpu.SetTLSAddress(next.tlsAddress)
	s.cpu.SetTPIDREL0(next.tpidrEL0)
	s.kernel.emit(trace.ScopeCore, s.coreID, next.id, "switch", next.name)
}

// dropCurrent detaches t from the core without requeueing it. Used when the
// running thread stops or migrates away.
func (s *Scheduler) dropCurrent(t *Thread) {
	if s.currentThread != t {
		panic(fmt.Sprintf("kernel: thread %d is not current on core %d", t.id, s.coreID))
	}
	t.lastRunningTicks = s.kernel.timing.CPUTicks()
	s.cpu.SaveContext(&t.context)
	s.currentThread = nil
}
