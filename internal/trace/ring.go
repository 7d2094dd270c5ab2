package trace

import (
	"io"
	"sync"
)

// RingTracer retains the most recent events in a fixed-size buffer, for
// post-mortem dumps of long simulations where streaming every event is
// too expensive.
type RingTracer struct {
	mu    sync.Mutex
	buf   []Event
	total uint64 // events ever written; buf slot = total % len(buf)
	level Level
}

const defaultRingSize = 4096

func NewRingTracer(capacity int, level Level) *RingTracer {
	if capacity <= 0 {
		capacity = defaultRingSize
	}
	return &RingTracer{
		buf:   make([]Event, capacity),
		level: level,
	}
}

// Emit stores a copy of the event, overwriting the oldest entry once the
// buffer is full.
func (t *RingTracer) Emit(ev *Event) {
	if !t.level.ShouldEmit(ev.Scope) {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	slot := &t.buf[t.total%uint64(len(t.buf))]
	*slot = *ev
	slot.Seq = NextSeq()
	t.total++
}

// Len reports how many events are currently retained.
func (t *RingTracer) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.retained()
}

func (t *RingTracer) retained() int {
	if t.total < uint64(len(t.buf)) {
		return int(t.total)
	}
	return len(t.buf)
}

// Snapshot copies the retained events out in emission order, oldest first.
func (t *RingTracer) Snapshot() []Event {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := t.retained()
	out := make([]Event, 0, n)
	start := t.total - uint64(n)
	for i := uint64(0); i < uint64(n); i++ {
		out = append(out, t.buf[(start+i)%uint64(len(t.buf))])
	}
	return out
}

// Dump writes the retained events to w in the given format.
func (t *RingTracer) Dump(w io.Writer, format Format) error {
	events := t.Snapshot()
	for i := range events {
		if _, err := w.Write(FormatEvent(&events[i], format)); err != nil {
			return err
		}
	}
	return nil
}

// Flush is a no-op, the buffer lives in memory.
func (t *RingTracer) Flush() error { return nil }

// Close is a no-op.
func (t *RingTracer) Close() error { return nil }

func (t *RingTracer) Level() Level { return t.level }

func (t *RingTracer) Enabled() bool { return t.level > LevelOff }
