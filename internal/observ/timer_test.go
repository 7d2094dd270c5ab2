package observ

import (
	"strings"
	"testing"
	"time"
)

func TestTimer_PhaseLifecycle(t *testing.T) {
	tm := NewTimer()
	p := tm.Phase("build")
	time.Sleep(time.Millisecond)
	p.Done("3 threads")

	rep := tm.Report()
	if len(rep.Phases) != 1 {
		t.Fatalf("got %d phases, want 1", len(rep.Phases))
	}
	got := rep.Phases[0]
	if got.Name != "build" || got.Note != "3 threads" {
		t.Errorf("unexpected phase: %+v", got)
	}
	if got.DurationMS <= 0 {
		t.Errorf("duration %.3fms, want > 0", got.DurationMS)
	}
	if rep.TotalMS < got.DurationMS {
		t.Errorf("total %.3fms less than its only phase %.3fms", rep.TotalMS, got.DurationMS)
	}
}

func TestTimer_DoneTwiceKeepsFirstDuration(t *testing.T) {
	tm := NewTimer()
	p := tm.Phase("run")
	p.Done("first")
	first := tm.Report().Phases[0].DurationMS

	time.Sleep(time.Millisecond)
	p.Done("second")
	rep := tm.Report().Phases[0]
	if rep.Note != "first" {
		t.Errorf("note overwritten: %q", rep.Note)
	}
	if rep.DurationMS != first {
		t.Errorf("duration changed after second Done: %.3f -> %.3f", first, rep.DurationMS)
	}
}

func TestTimer_OpenPhaseReportsElapsed(t *testing.T) {
	tm := NewTimer()
	tm.Phase("run")
	time.Sleep(time.Millisecond)

	if got := tm.Report().Phases[0].DurationMS; got <= 0 {
		t.Errorf("open phase reported %.3fms, want elapsed > 0", got)
	}
}

func TestTimer_EmptyReportAndSummary(t *testing.T) {
	tm := NewTimer()
	if rep := tm.Report(); len(rep.Phases) != 0 || rep.TotalMS != 0 {
		t.Errorf("empty timer produced %+v", rep)
	}

	p := tm.Phase("report")
	p.Done("")
	sum := tm.Summary()
	if !strings.Contains(sum, "report") || !strings.Contains(sum, "total") {
		t.Errorf("summary missing lines:\n%s", sum)
	}
}
