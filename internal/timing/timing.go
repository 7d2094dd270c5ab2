package timing

import (
	"container/heap"
	"fmt"
	"sync"
)

// CPUClockHz is the emulated CPU clock rate used to derive tick counts.
const CPUClockHz = 1020_000_000

// EventCallback is invoked when a scheduled event fires. lateNs reports how far
// past the requested deadline the clock had already advanced when the event ran.
type EventCallback func(userdata uint64, lateNs int64)

// EventType identifies a class of scheduled events. Register one per callback,
// then schedule instances of it with per-instance userdata.
type EventType struct {
	name     string
	callback EventCallback
}

// Name returns the name the event type was registered under.
func (et *EventType) Name() string {
	if et == nil {
		return ""
	}
	return et.name
}

type event struct {
	deadlineNs uint64
	seq        uint64
	etype      *EventType
	userdata   uint64
	cancelled  bool
}

type eventHeap []*event

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool {
	if h[i].deadlineNs == h[j].deadlineNs {
		return h[i].seq < h[j].seq
	}
	return h[i].deadlineNs < h[j].deadlineNs
}

func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *eventHeap) Push(x any) {
	ev, ok := x.(*event)
	if !ok || ev == nil {
		return
	}
	*h = append(*h, ev)
}

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	if n == 0 {
		return (*event)(nil)
	}
	item := old[n-1]
	*h = old[:n-1]
	return item
}

type pendingKey struct {
	etype    *EventType
	userdata uint64
}

// Timing is the emulated-time event queue. The clock is virtual: it only moves
// when Advance or AdvanceToNext is called, which makes every run of the kernel
// core deterministic. Callbacks run on the advancing goroutine with the Timing
// lock released.
type Timing struct {
	mu      sync.Mutex
	nowNs   uint64
	nextSeq uint64
	events  eventHeap
	pending map[pendingKey][]*event
	types   map[string]*EventType
}

// New constructs an empty event queue at time zero.
func New() *Timing {
	return &Timing{
		pending: make(map[pendingKey][]*event),
		types:   make(map[string]*EventType),
	}
}

// RegisterEvent registers a named event class. Registering the same name twice
// is a programmer error.
func (tm *Timing) RegisterEvent(name string, cb EventCallback) *EventType {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if _, ok := tm.types[name]; ok {
		panic(fmt.Sprintf("timing: event type %q registered twice", name))
	}
	et := &EventType{name: name, callback: cb}
	tm.types[name] = et
	return et
}

// NowNs returns the current virtual time in nanoseconds.
func (tm *Timing) NowNs() uint64 {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return tm.nowNs
}

// CPUTicks returns the current virtual time expressed in emulated CPU ticks.
func (tm *Timing) CPUTicks() uint64 {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return tm.nowNs / 1000 * (CPUClockHz / 1_000_000)
}

// ScheduleEvent queues an event of the given type to fire delayNs from now.
// The (etype, userdata) pair is the handle used for cancellation.
func (tm *Timing) ScheduleEvent(delayNs uint64, etype *EventType, userdata uint64) {
	if etype == nil {
		return
	}
	tm.mu.Lock()
	defer tm.mu.Unlock()

	tm.nextSeq++
	ev := &event{
		deadlineNs: tm.nowNs + delayNs,
		seq:        tm.nextSeq,
		etype:      etype,
		userdata:   userdata,
	}
	key := pendingKey{etype: etype, userdata: userdata}
	tm.pending[key] = append(tm.pending[key], ev)
	heap.Push(&tm.events, ev)
}

// UnscheduleEvent cancels every queued event matching (etype, userdata).
// Cancelling an event that never existed, or one that already fired, is a no-op.
func (tm *Timing) UnscheduleEvent(etype *EventType, userdata uint64) {
	if etype == nil {
		return
	}
	tm.mu.Lock()
	defer tm.mu.Unlock()

	key := pendingKey{etype: etype, userdata: userdata}
	for _, ev := range tm.pending[key] {
		ev.cancelled = true
	}
	delete(tm.pending, key)
}

// Advance moves the virtual clock forward by deltaNs, firing every due event
// in deadline order.
func (tm *Timing) Advance(deltaNs uint64) {
	tm.mu.Lock()
	target := tm.nowNs + deltaNs
	tm.fireUntilLocked(target)
	tm.nowNs = target
	tm.mu.Unlock()
}

// AdvanceToNext jumps the clock to the next pending deadline and fires every
// event due at it. It reports whether any event fired.
func (tm *Timing) AdvanceToNext() bool {
	tm.mu.Lock()
	next, ok := tm.nextDeadlineLocked()
	if !ok {
		tm.mu.Unlock()
		return false
	}
	tm.fireUntilLocked(next)
	if tm.nowNs < next {
		tm.nowNs = next
	}
	tm.mu.Unlock()
	return true
}

// HasPendingEvents reports whether any uncancelled event is queued.
func (tm *Timing) HasPendingEvents() bool {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	_, ok := tm.nextDeadlineLocked()
	return ok
}

func (tm *Timing) nextDeadlineLocked() (uint64, bool) {
	for len(tm.events) > 0 {
		if tm.events[0] == nil || tm.events[0].cancelled {
			heap.Pop(&tm.events)
			continue
		}
		return tm.events[0].deadlineNs, true
	}
	return 0, false
}

// fireUntilLocked pops and runs every event with deadline <= target. The lock
// is dropped around each callback so callbacks may schedule or cancel events.
func (tm *Timing) fireUntilLocked(target uint64) {
	for {
		deadline, ok := tm.nextDeadlineLocked()
		if !ok || deadline > target {
			return
		}
		ev, ok := heap.Pop(&tm.events).(*event)
		if !ok || ev == nil || ev.cancelled {
			continue
		}
		tm.nowNs = ev.deadlineNs
		tm.dropPendingLocked(ev)

		cb := ev.etype.callback
		if cb == nil {
			continue
		}
		// How far the advance target overshoots the deadline. The callback
		// observes virtual time at the deadline either way.
		late := int64(target - ev.deadlineNs)
		tm.mu.Unlock()
		cb(ev.userdata, late)
		tm.mu.Lock()
	}
}

func (tm *Timing) dropPendingLocked(ev *event) {
	key := pendingKey{etype: ev.etype, userdata: ev.userdata}
	list := tm.pending[key]
	for i, cand := range list {
		if cand == ev {
			copy(list[i:], list[i+1:])
			list = list[:len(list)-1]
			break
		}
	}
	if len(list) == 0 {
		delete(tm.pending, key)
		return
	}
	tm.pending[key] = list
}
