package scenario

import (
	"fmt"

	"horizon/internal/kernel"
	"horizon/internal/observ"
	"horizon/internal/trace"
)

// Synthetic guest addresses handed to scenario threads and locks. Values only
// need to be distinct and nonzero.
const (
	entryBase = kernel.VAddr(0x0800_0000)
	stackBase = kernel.VAddr(0x0900_0000)
	lockBase  = kernel.VAddr(0x4000_0000)

	entryStride = 0x1000
	stackStride = 0x1_0000
	lockStride  = 0x10
)

// ThreadReport is the final observed state of one scenario thread.
type ThreadReport struct {
	Name            string `json:"name"`
	ID              uint64 `json:"id"`
	Status          string `json:"status"`
	Priority        uint32 `json:"priority"`
	NominalPriority uint32 `json:"nominal_priority"`
	Core            int32  `json:"core"`
	WakeReason      string `json:"wake_reason"`
	WaitResult      string `json:"wait_result"`
	WaitOutput      int32  `json:"wait_output"`
}

// Report summarizes one scenario run.
type Report struct {
	Scenario string         `json:"scenario"`
	Steps    int            `json:"steps"`
	NowNs    uint64         `json:"now_ns"`
	Threads  []ThreadReport `json:"threads"`
	Timings  observ.Report  `json:"timings"`
}

// Runner replays a scenario manifest against a fresh kernel.
type Runner struct {
	man    *Manifest
	kernel *kernel.KernelCore
	timer  *observ.Timer

	threads map[string]*kernel.Thread
	objects map[string]kernel.WaitObject
	flags   map[string]*Flag
	locks   map[string]*Lock
}

// NewRunner builds a kernel from the manifest's declarations: one process,
// the declared threads and objects. Steps run later via Run.
func NewRunner(man *Manifest, tracer trace.Tracer) (*Runner, error) {
	r := &Runner{
		man:     man,
		timer:   observ.NewTimer(),
		threads: make(map[string]*kernel.Thread, len(man.Threads)),
		objects: make(map[string]kernel.WaitObject, len(man.Objects)),
		flags:   make(map[string]*Flag),
		locks:   make(map[string]*Lock),
	}

	phase := r.timer.Phase("build")
	r.kernel = kernel.New(kernel.Config{Cores: man.Cores, Tracer: tracer})
	k := r.kernel
	k.Lock()
	defer k.Unlock()

	proc := k.CreateProcess(man.Name)
	for i, td := range man.Threads {
		priority := kernel.PriorityDefault
		if td.Priority != nil {
			priority = *td.Priority
		}
		core := kernel.ProcessorIDDefault
		if td.Core != nil {
			core = *td.Core
		}
		entry := kernel.VAddr(td.Entry)
		if entry == 0 {
			entry = entryBase + kernel.VAddr(i)*entryStride
		}
		stack := kernel.VAddr(td.Stack)
		if stack == 0 {
			stack = stackBase + kernel.VAddr(i)*stackStride
		}

		t, err := k.CreateThread(td.Name, entry, priority, 0, core, stack, proc)
		if err != nil {
			return nil, fmt.Errorf("scenario %q: thread %q: %w", man.Name, td.Name, err)
		}
		r.threads[td.Name] = t
	}

	for i, od := range man.Objects {
		switch od.Kind {
		case "flag":
			f := NewFlag(od.Name, od.Sticky, od.Signaled)
			r.flags[od.Name] = f
			r.objects[od.Name] = f
		case "lock":
			addr := lockBase + kernel.VAddr(i)*lockStride
			handle := kernel.Handle(0x100 + i)
			l := NewLock(od.Name, addr, handle)
			r.locks[od.Name] = l
			r.objects[od.Name] = l
		}
	}

	k.RescheduleAll()
	phase.Done(fmt.Sprintf("%d threads, %d objects", len(man.Threads), len(man.Objects)))
	return r, nil
}

// Kernel exposes the kernel under the runner, for savestate capture and
// inspection. Callers must bracket access with Lock/Unlock.
func (r *Runner) Kernel() *kernel.KernelCore { return r.kernel }

// Thread returns the scenario thread with the given manifest name, or nil.
func (r *Runner) Thread(name string) *kernel.Thread { return r.threads[name] }

// Run executes every step of the manifest in order and returns the final
// report. Execution stops at the first failing step.
func (r *Runner) Run() (*Report, error) {
	k := r.kernel
	k.Lock()
	defer k.Unlock()

	phase := r.timer.Phase("run")
	for i, st := range r.man.Steps {
		if err := r.step(st); err != nil {
			return nil, fmt.Errorf("scenario %q: step %d (%s): %w", r.man.Name, i+1, st.Op, err)
		}
		k.RescheduleAll()
	}
	phase.Done(fmt.Sprintf("%d steps", len(r.man.Steps)))

	return r.report(), nil
}

func (r *Runner) step(st Step) error {
	switch st.Op {
	case OpWait:
		t := r.threads[st.Thread]
		if err := needRunnable(st.Thread, t); err != nil {
			return err
		}
		objects := make([]kernel.WaitObject, len(st.Objects))
		for i, name := range st.Objects {
			objects[i] = r.objects[name]
		}
		timeout := int64(-1)
		if st.TimeoutNs != nil {
			timeout = *st.TimeoutNs
		}
		t.WaitSynchronization(objects, st.WaitAll, timeout)

	case OpSignal:
		r.flags[st.Object].Signal()

	case OpClear:
		r.flags[st.Object].Clear()

	case OpLock:
		t := r.threads[st.Thread]
		if err := needRunnable(st.Thread, t); err != nil {
			return err
		}
		r.locks[st.Object].Lock(t)

	case OpUnlock:
		l := r.locks[st.Object]
		t := r.threads[st.Thread]
		if l.Owner() != t {
			return fmt.Errorf("thread %q does not own lock %q", st.Thread, st.Object)
		}
		l.Unlock(t)

	case OpSleep:
		t := r.threads[st.Thread]
		if err := needRunnable(st.Thread, t); err != nil {
			return err
		}
		if t.Status() == kernel.StatusReady {
			t.Scheduler().UnscheduleThread(t, t.Priority())
		}
		t.SetStatus(kernel.StatusWaitSleep)
		t.WakeAfterDelay(int64(st.Ns))

	case OpAdvance:
		if st.Ns == 0 {
			r.kernel.Timing().AdvanceToNext()
		} else {
			r.kernel.Timing().Advance(st.Ns)
		}

	case OpSetPrio:
		if st.Priority > kernel.PriorityLowest {
			return fmt.Errorf("priority %d out of range", st.Priority)
		}
		r.threads[st.Thread].SetPriority(st.Priority)

	case OpBoostPrio:
		if st.Priority > kernel.PriorityLowest {
			return fmt.Errorf("priority %d out of range", st.Priority)
		}
		r.threads[st.Thread].BoostPriority(st.Priority)

	case OpChangeCore:
		mask := st.Mask
		if mask == 0 {
			mask = 1 << st.Core
		}
		if mask&(1<<st.Core) == 0 {
			return fmt.Errorf("core %d excluded by mask %#x", st.Core, mask)
		}
		if int(st.Core) >= r.kernel.NumCores() {
			return fmt.Errorf("core %d not present", st.Core)
		}
		r.threads[st.Thread].ChangeCore(st.Core, mask)

	case OpStop:
		t := r.threads[st.Thread]
		if t.Status() == kernel.StatusDead {
			return fmt.Errorf("thread %q already stopped", st.Thread)
		}
		t.Stop()
		// Locks held by a stopped thread are abandoned; their waiters keep
		// blocking but no longer name a dead owner.
		for _, l := range r.locks {
			if l.owner == t {
				l.owner = nil
			}
		}

	default:
		return fmt.Errorf("%w: %q", ErrUnknownOp, st.Op)
	}
	return nil
}

// needRunnable checks that a thread can enter a new blocking operation.
func needRunnable(name string, t *kernel.Thread) error {
	switch t.Status() {
	case kernel.StatusRunning, kernel.StatusReady:
		return nil
	default:
		return fmt.Errorf("thread %q is %s, cannot block again", name, t.Status())
	}
}

func (r *Runner) report() *Report {
	rep := &Report{
		Scenario: r.man.Name,
		Steps:    len(r.man.Steps),
		NowNs:    r.kernel.Timing().NowNs(),
		Timings:  r.timer.Report(),
	}
	for _, td := range r.man.Threads {
		t := r.threads[td.Name]
		tr := ThreadReport{
			Name: td.Name,
			ID:   t.ID(),
		}
		if r.kernel.Thread(t.ID()) == nil {
			// Stopped threads are unregistered; report the terminal state.
			tr.Status = kernel.StatusDead.String()
		} else {
			tr.Status = t.Status().String()
			tr.Priority = t.Priority()
			tr.NominalPriority = t.NominalPriority()
			tr.Core = t.Scheduler().CoreID()
			tr.WakeReason = t.WakeResult().Reason.String()
			tr.WaitResult = t.WaitSynchronizationResult().String()
			tr.WaitOutput = t.WaitSynchronizationOutput()
		}
		rep.Threads = append(rep.Threads, tr)
	}
	return rep
}
