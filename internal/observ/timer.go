// Package observ measures host-side wall time spent in the simulator's
// phases. Phase durations are real time, unrelated to the kernel's
// virtual clock.
package observ

import (
	"fmt"
	"strings"
	"time"
)

// Phase is one tracked span of work. Obtained from Timer.Phase and closed
// with Done.
type Phase struct {
	Name string
	Note string

	start time.Time
	dur   time.Duration
	done  bool
}

// Done closes the phase and records its note. Closing twice keeps the
// first duration.
func (p *Phase) Done(note string) {
	if p.done {
		return
	}
	p.dur = time.Since(p.start)
	p.Note = note
	p.done = true
}

func (p *Phase) elapsed() time.Duration {
	if p.done {
		return p.dur
	}
	return time.Since(p.start)
}

// Timer collects the run's phases (build, run, report) in start order.
type Timer struct {
	phases []*Phase
}

func NewTimer() *Timer { return &Timer{} }

// Phase starts a new span and returns its handle.
func (t *Timer) Phase(name string) *Phase {
	p := &Phase{Name: name, start: time.Now()}
	t.phases = append(t.phases, p)
	return p
}

// PhaseReport is the serializable form of one phase.
type PhaseReport struct {
	Name       string  `json:"name"`
	DurationMS float64 `json:"duration_ms"`
	Note       string  `json:"note,omitempty"`
}

// Report aggregates all phases with their total duration.
type Report struct {
	TotalMS float64       `json:"total_ms"`
	Phases  []PhaseReport `json:"phases"`
}

// Report builds the aggregate view. A phase still open reports its
// elapsed time so far.
func (t *Timer) Report() Report {
	if len(t.phases) == 0 {
		return Report{}
	}
	rep := Report{Phases: make([]PhaseReport, len(t.phases))}
	var total time.Duration
	for i, p := range t.phases {
		d := p.elapsed()
		total += d
		rep.Phases[i] = PhaseReport{
			Name:       p.Name,
			DurationMS: millis(d),
			Note:       p.Note,
		}
	}
	rep.TotalMS = millis(total)
	return rep
}

// Summary renders the report for human eyes.
func (t *Timer) Summary() string {
	rep := t.Report()
	var b strings.Builder
	b.WriteString("timings:\n")
	for _, p := range rep.Phases {
		fmt.Fprintf(&b, "  %-20s %7.2f ms", p.Name, p.DurationMS)
		if p.Note != "" {
			b.WriteString("  // " + p.Note)
		}
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "  %-20s %7.2f ms\n", "total", rep.TotalMS)
	return b.String()
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
