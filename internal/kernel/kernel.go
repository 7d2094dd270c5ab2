package kernel

import (
	"fmt"
	"sync"
	"time"

	"fortio.org/safecast"

	"horizon/internal/timing"
	"horizon/internal/trace"
)

// NumCores is the number of emulated CPU cores.
const NumCores = 4

// Default main-thread stack placement in the guest address space.
const defaultStackTop VAddr = 0x8_0000_0000

// Config configures a KernelCore. Zero values select the defaults: four
// cores, NullCPU per core, a fresh virtual-time event queue and no tracing.
type Config struct {
	Cores      int
	CPUFactory func(core int32) CPU
	Timing     *timing.Timing
	Tracer     trace.Tracer
}

// KernelCore owns every kernel object of the emulated system: threads,
// processes, the per-core schedulers and the wakeup timer wiring.
//
// Host concurrency model: the emulator may drive each core from its own OS
// thread, but every mutation of kernel state must happen under the single
// critical section exposed by Lock/Unlock. Priority inheritance and wait-all
// completion need a globally consistent view of thread state, so there is
// exactly one lock, never per-object locks. The methods themselves do not
// lock; the caller brackets each kernel entry point.
type KernelCore struct {
	mu sync.Mutex

	timing *timing.Timing
	tracer trace.Tracer

	threadWakeupEvent *timing.EventType

	nextThreadID  uint64
	nextProcessID uint64

	threads    []*Thread
	threadByID map[uint64]*Thread

	schedulers []*Scheduler
}

// New constructs a kernel core.
func New(cfg Config) *KernelCore {
	cores := cfg.Cores
	if cores <= 0 {
		cores = NumCores
	}
	tm := cfg.Timing
	if tm == nil {
		tm = timing.New()
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = trace.Nop
	}
	cpuFactory := cfg.CPUFactory
	if cpuFactory == nil {
		cpuFactory = func(int32) CPU { return NewNullCPU() }
	}

	k := &KernelCore{
		timing:        tm,
		tracer:        tracer,
		nextThreadID:  1,
		nextProcessID: 1,
		threadByID:    make(map[uint64]*Thread),
	}
	k.threadWakeupEvent = tm.RegisterEvent("thread-wakeup", k.onThreadWakeup)

	k.schedulers = make([]*Scheduler, cores)
	for i := range k.schedulers {
		coreID, err := safecast.Conv[int32](i)
		if err != nil {
			panic(fmt.Sprintf("kernel: core count overflow: %v", err))
		}
		k.schedulers[i] = newScheduler(k, coreID, cpuFactory(coreID))
	}
	return k
}

// Lock enters the kernel critical section.
func (k *KernelCore) Lock() { k.mu.Lock() }

// Unlock leaves the kernel critical section.
func (k *KernelCore) Unlock() { k.mu.Unlock() }

// Timing returns the delayed-callback facility driving this kernel.
func (k *KernelCore) Timing() *timing.Timing { return k.timing }

// NumCores returns the number of emulated cores.
func (k *KernelCore) NumCores() int { return len(k.schedulers) }

// Scheduler returns the scheduler of the given core.
func (k *KernelCore) Scheduler(core int32) *Scheduler {
	if core < 0 || int(core) >= len(k.schedulers) {
		panic(fmt.Sprintf("kernel: core %d out of range", core))
	}
	return k.schedulers[core]
}

// CurrentThread returns the thread executing on the given core, or nil when
// the core is idle. There is no ambient "current thread": callers always name
// the core they are entering the kernel from.
func (k *KernelCore) CurrentThread(core int32) *Thread {
	return k.Scheduler(core).CurrentThread()
}

// RescheduleAll performs one scheduling decision on every core, in core order.
func (k *KernelCore) RescheduleAll() {
	for _, s := range k.schedulers {
		s.Reschedule()
	}
}

// Threads returns every live thread in creation order.
func (k *KernelCore) Threads() []*Thread {
	out := make([]*Thread, len(k.threads))
	copy(out, k.threads)
	return out
}

// Thread returns the live thread with the given id, or nil.
func (k *KernelCore) Thread(id uint64) *Thread { return k.threadByID[id] }

// CreateProcess registers a new process.
func (k *KernelCore) CreateProcess(name string) *Process {
	p := &Process{
		kernel: k,
		id:     k.nextProcessID,
		name:   name,
	}
	k.nextProcessID++
	return p
}

// CreateThread creates a new thread and schedules it. The thread starts
// Dormant and is transitioned to Ready before the call returns. Validation
// failures leave no partial state behind.
func (k *KernelCore) CreateThread(name string, entryPoint VAddr, priority uint32, arg uint64,
	processorID int32, stackTop VAddr, owner *Process) (*Thread, error) {

	if priority > PriorityLowest {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPriority, priority)
	}
	if processorID < ProcessorIDDefault || processorID >= ProcessorIDMax {
		return nil, fmt.Errorf("%w: %d", ErrInvalidProcessorID, processorID)
	}
	if owner == nil {
		return nil, ErrNilOwnerProcess
	}
	if processorID == ProcessorIDDefault {
		processorID = owner.IdealCore()
	}
	if int(processorID) >= len(k.schedulers) {
		return nil, fmt.Errorf("%w: core %d not present", ErrInvalidProcessorID, processorID)
	}

	idealCore, err := safecast.Conv[uint32](processorID)
	if err != nil {
		panic(fmt.Sprintf("kernel: processor id overflow: %v", err))
	}

	tlsAddress, err := owner.AllocateTLSSlot()
	if err != nil {
		return nil, err
	}

	t := &Thread{
		kernel:          k,
		id:              k.nextThreadID,
		name:            name,
		entryPoint:      entryPoint,
		stackTop:        stackTop,
		status:          StatusDormant,
		nominalPriority: priority,
		currentPriority: priority,
		processorID:     processorID,
		idealCore:       idealCore,
		affinityMask:    1 << idealCore,
		tlsAddress:      tlsAddress,
		ownerProcess:    owner,
		waitResult:      ResultSuccess,
		waitOutput:      -1,
	}
	k.nextThreadID++

	t.context.PC = entryPoint
	t.context.SP = stackTop
	t.context.Regs[0] = arg

	s := k.schedulers[processorID]
	t.scheduler = s
	s.AddThread(t)

	k.threads = append(k.threads, t)
	k.threadByID[t.id] = t

	t.status = StatusReady
	s.ScheduleThread(t, priority)

	k.emit(trace.ScopeThread, processorID, t.id, "create",
		fmt.Sprintf("%s prio=%d", name, priority))
	return t, nil
}

// SetupMainThread creates the process's first thread and makes it eligible to
// run immediately. This is the privileged creation path used during process
// launch: priority is assumed pre-validated, so a bad value is a bug, not a
// guest error.
func (k *KernelCore) SetupMainThread(entryPoint VAddr, priority uint32, owner *Process) *Thread {
	t, err := k.CreateThread("main", entryPoint, priority, 0,
		ProcessorIDDefault, defaultStackTop, owner)
	if err != nil {
		panic(fmt.Sprintf("kernel: main thread creation failed: %v", err))
	}
	t.scheduler.Reschedule()
	return t
}

// WaitCurrentThreadSleep puts the thread running on the given core into
// WaitSleep. The caller is responsible for arming a wakeup timer and
// rescheduling the core.
func (k *KernelCore) WaitCurrentThreadSleep(core int32) *Thread {
	t := k.CurrentThread(core)
	if t == nil {
		panic(fmt.Sprintf("kernel: sleep with no current thread on core %d", core))
	}
	t.status = StatusWaitSleep
	k.emit(trace.ScopeThread, core, t.id, "sleep", "")
	return t
}

// ExitCurrentThread tears down the thread running on the given core and
// removes it from all scheduling structures.
func (k *KernelCore) ExitCurrentThread(core int32) {
	t := k.CurrentThread(core)
	if t == nil {
		panic(fmt.Sprintf("kernel: exit with no current thread on core %d", core))
	}
	t.Stop()
}

// onThreadWakeup is the timer callback for wait timeouts. It detaches the
// thread from whatever it was blocked on and resumes it with a timeout
// outcome. A signal that raced the timer wins: the cancel in the resume path
// removes the timer, so this callback only ever sees still-waiting threads,
// and a thread found in any other state is left untouched.
func (k *KernelCore) onThreadWakeup(userdata uint64, lateNs int64) {
	t := k.threadByID[userdata]
	if t == nil {
		return
	}
	if !t.status.IsWaiting() {
		return
	}

	switch t.status {
	case StatusWaitSynchAny, StatusWaitSynchAll, StatusWaitHLEEvent:
		t.clearWaitObjects()
		t.SetWaitSynchronizationResult(ResultTimeout)
		t.SetWaitSynchronizationOutput(-1)
	}

	if t.mutexWaitAddress != 0 || t.condvarWaitAddress != 0 || t.waitHandle != 0 {
		if t.lockOwner != nil {
			t.lockOwner.RemoveMutexWaiter(t)
		}
		t.mutexWaitAddress = 0
		t.condvarWaitAddress = 0
		t.waitHandle = 0
	}
	if t.arbWaitAddress != 0 {
		t.arbWaitAddress = 0
	}

	t.setWakeResult(WakeResult{Reason: WakeReasonTimeout, Index: -1})
	k.emit(trace.ScopeTimer, -1, t.id, "timeout", fmt.Sprintf("late=%dns", lateNs))
	t.ResumeFromWait()
}

func (k *KernelCore) unregisterThread(t *Thread) {
	for i, cand := range k.threads {
		if cand == t {
			copy(k.threads[i:], k.threads[i+1:])
			k.threads[len(k.threads)-1] = nil
			k.threads = k.threads[:len(k.threads)-1]
			break
		}
	}
	delete(k.threadByID, t.id)
}

func (k *KernelCore) emit(scope trace.Scope, core int32, tid uint64, name, detail string) {
	if !k.tracer.Enabled() {
		return
	}
	k.tracer.Emit(&trace.Event{
		Time:   time.Now(),
		NowNs:  k.timing.NowNs(),
		Kind:   trace.KindPoint,
		Scope:  scope,
		Core:   core,
		Thread: tid,
		Name:   name,
		Detail: detail,
	})
}
