package main

import (
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"horizon/internal/scenario"
	"horizon/internal/trace"
	"horizon/internal/ui"
)

type simOutcome struct {
	report *scenario.Report
	err    error
}

// runScenarioWithUI runs one scenario while the live monitor consumes its
// trace stream. The scenario runs on its own goroutine; the UI owns the
// terminal until the event channel closes.
func runScenarioWithUI(man *scenario.Manifest, tracer trace.Tracer) (*scenario.Report, error) {
	events := make(chan trace.Event, 256)
	outcomeCh := make(chan simOutcome, 1)

	chanTracer := trace.NewChanTracer(events, trace.LevelDebug)
	var runTracer trace.Tracer = chanTracer
	if tracer.Enabled() {
		runTracer = trace.NewMultiTracer(trace.LevelDebug, tracer, chanTracer)
	}

	go func() {
		rep, err := runScenario(man, runTracer)
		outcomeCh <- simOutcome{report: rep, err: err}
		close(events)
	}()

	model := ui.NewMonitorModel(man.Name, monitorCores(man), events)
	program := tea.NewProgram(model, tea.WithOutput(os.Stdout))
	_, uiErr := program.Run()
	outcome := <-outcomeCh
	if uiErr != nil {
		return outcome.report, uiErr
	}
	return outcome.report, outcome.err
}
