package trace

// ChanTracer forwards events to a channel. The live monitor UI consumes the
// channel from its own goroutine. Emit never blocks: if the consumer falls
// behind, events are dropped rather than stalling the kernel.
type ChanTracer struct {
	ch    chan<- Event
	level Level
}

// NewChanTracer creates a tracer that forwards events to ch.
func NewChanTracer(ch chan<- Event, level Level) *ChanTracer {
	return &ChanTracer{ch: ch, level: level}
}

// Emit forwards the event if the channel has room.
func (t *ChanTracer) Emit(ev *Event) {
	if !t.level.ShouldEmit(ev.Scope) {
		return
	}
	stored := *ev
	stored.Seq = NextSeq()
	select {
	case t.ch <- stored:
	default:
	}
}

// Flush is a no-op for ChanTracer.
func (t *ChanTracer) Flush() error { return nil }

// Close is a no-op for ChanTracer. The channel is owned by the consumer.
func (t *ChanTracer) Close() error { return nil }

// Level returns the current tracing level.
func (t *ChanTracer) Level() Level { return t.level }

// Enabled returns true if tracing is active.
func (t *ChanTracer) Enabled() bool { return t.level > LevelOff }
