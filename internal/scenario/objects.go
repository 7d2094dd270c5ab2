package scenario

import (
	"horizon/internal/kernel"
)

// Flag is the event-like wait object scenarios signal and wait on. A sticky
// flag stays signaled until cleared; a non-sticky flag resets on acquisition,
// releasing exactly one waiter per signal.
type Flag struct {
	name     string
	sticky   bool
	signaled bool
	waiters  kernel.WaiterList
}

// NewFlag creates a flag in the given initial state.
func NewFlag(name string, sticky, signaled bool) *Flag {
	return &Flag{name: name, sticky: sticky, signaled: signaled}
}

// Name returns the manifest name of the flag.
func (f *Flag) Name() string { return f.name }

// Signaled reports whether the flag is currently set.
func (f *Flag) Signaled() bool { return f.signaled }

// ShouldWait implements kernel.WaitObject.
func (f *Flag) ShouldWait(t *kernel.Thread) bool { return !f.signaled }

// Acquire implements kernel.WaitObject. A non-sticky flag consumes the signal.
func (f *Flag) Acquire(t *kernel.Thread) {
	if !f.sticky {
		f.signaled = false
	}
}

// Waiters implements kernel.WaitObject.
func (f *Flag) Waiters() *kernel.WaiterList { return &f.waiters }

// Signal sets the flag and wakes every waiter that can complete its wait.
func (f *Flag) Signal() []kernel.WakeResult {
	f.signaled = true
	return kernel.WakeupAllWaitingThreads(f)
}

// Clear resets the flag without touching waiters.
func (f *Flag) Clear() { f.signaled = false }

// Lock is the mutex-like object scenarios contend on. Blocking goes through
// the thread core's lock-owner chain, so priority inheritance applies. Lock is
// also a WaitObject, usable in wait lists like any other handle.
type Lock struct {
	name    string
	address kernel.VAddr
	handle  kernel.Handle
	owner   *kernel.Thread
	waiters kernel.WaiterList
}

// NewLock creates an unowned lock with a synthetic guest address and handle.
func NewLock(name string, address kernel.VAddr, handle kernel.Handle) *Lock {
	return &Lock{name: name, address: address, handle: handle}
}

// Name returns the manifest name of the lock.
func (l *Lock) Name() string { return l.name }

// Owner returns the thread holding the lock, or nil.
func (l *Lock) Owner() *kernel.Thread { return l.owner }

// Address returns the lock's synthetic guest address.
func (l *Lock) Address() kernel.VAddr { return l.address }

// ShouldWait implements kernel.WaitObject.
func (l *Lock) ShouldWait(t *kernel.Thread) bool {
	return l.owner != nil && l.owner != t
}

// Acquire implements kernel.WaitObject.
func (l *Lock) Acquire(t *kernel.Thread) { l.owner = t }

// Waiters implements kernel.WaitObject.
func (l *Lock) Waiters() *kernel.WaiterList { return &l.waiters }

// Lock acquires the lock for t, or blocks t on the owner with priority
// inheritance. Returns true when t now owns the lock.
func (l *Lock) Lock(t *kernel.Thread) bool {
	if l.owner == nil || l.owner == t {
		l.owner = t
		return true
	}

	if t.Status() == kernel.StatusReady {
		t.Scheduler().UnscheduleThread(t, t.Priority())
	}
	t.SetMutexWaitAddress(l.address)
	t.SetWaitHandle(l.handle)
	l.owner.AddMutexWaiter(t)
	t.SetStatus(kernel.StatusWaitMutex)
	return false
}

// Unlock releases the lock held by t and hands it to the most urgent waiter,
// re-homing the remaining waiters onto the new owner so inheritance stays
// rooted at the thread that actually holds the lock. Returns the new owner,
// or nil when the lock is now free.
func (l *Lock) Unlock(t *kernel.Thread) *kernel.Thread {
	next := l.bestWaiter(t)
	if next == nil {
		l.owner = nil
		return nil
	}

	t.RemoveMutexWaiter(next)
	for _, w := range t.MutexWaiters() {
		if w.MutexWaitAddress() == l.address {
			t.RemoveMutexWaiter(w)
			next.AddMutexWaiter(w)
		}
	}

	l.owner = next
	next.SetMutexWaitAddress(0)
	next.SetWaitHandle(0)
	next.ResumeFromWait()
	return next
}

// bestWaiter picks the most urgent thread blocked on this lock. Registration
// order breaks priority ties.
func (l *Lock) bestWaiter(owner *kernel.Thread) *kernel.Thread {
	var best *kernel.Thread
	for _, w := range owner.MutexWaiters() {
		if w.MutexWaitAddress() != l.address {
			continue
		}
		if best == nil || w.Priority() < best.Priority() {
			best = w
		}
	}
	return best
}
