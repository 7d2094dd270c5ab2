package main

import (
	"fmt"
	"io"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"horizon/internal/kernel"
	"horizon/internal/savestate"
	"horizon/internal/scenario"
	"horizon/internal/trace"
)

var (
	simJobs    int
	simUI      string
	simSaveDir string
)

func init() {
	simCmd.Flags().IntVar(&simJobs, "jobs", runtime.NumCPU(), "number of scenarios to run in parallel")
	simCmd.Flags().StringVar(&simUI, "ui", "auto", "live scheduler monitor (auto|on|off)")
	simCmd.Flags().StringVar(&simSaveDir, "save", "", "directory to write one <scenario>.state savestate per run")
}

var simCmd = &cobra.Command{
	Use:   "sim <scenario.toml> [scenario.toml...]",
	Short: "Replay scheduling scenarios against the kernel",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSim,
}

func runSim(cmd *cobra.Command, args []string) error {
	tracer, cleanup, err := setupTracing(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	quiet, err := cmd.Root().PersistentFlags().GetBool("quiet")
	if err != nil {
		return fmt.Errorf("failed to get quiet flag: %w", err)
	}
	showTimings, err := cmd.Root().PersistentFlags().GetBool("timings")
	if err != nil {
		return fmt.Errorf("failed to get timings flag: %w", err)
	}
	mode, err := parseUIMode(simUI)
	if err != nil {
		return err
	}

	manifests := make([]*scenario.Manifest, len(args))
	for i, path := range args {
		man, err := scenario.Load(path)
		if err != nil {
			return err
		}
		if man.Name == "" {
			man.Name = filepath.Base(path)
		}
		manifests[i] = man
	}

	// The live monitor only makes sense for a single scenario; parallel runs
	// would interleave on one screen.
	if len(manifests) == 1 && mode.wantTUI() {
		rep, err := runScenarioWithUI(manifests[0], tracer)
		if err != nil {
			return err
		}
		printReport(cmd.OutOrStdout(), rep, quiet, showTimings)
		return nil
	}

	reports := make([]*scenario.Report, len(manifests))
	g := new(errgroup.Group)
	g.SetLimit(min(simJobs, len(manifests)))
	for i, man := range manifests {
		i, man := i, man
		g.Go(func() error {
			rep, err := runScenario(man, tracer)
			if err != nil {
				return err
			}
			reports[i] = rep
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, rep := range reports {
		printReport(cmd.OutOrStdout(), rep, quiet, showTimings)
	}
	return nil
}

func runScenario(man *scenario.Manifest, tracer trace.Tracer) (*scenario.Report, error) {
	r, err := scenario.NewRunner(man, tracer)
	if err != nil {
		return nil, err
	}
	rep, err := r.Run()
	if err != nil {
		return nil, err
	}
	if simSaveDir != "" {
		if err := writeSavestate(r, man.Name); err != nil {
			return nil, err
		}
	}
	return rep, nil
}

func writeSavestate(r *scenario.Runner, name string) error {
	k := r.Kernel()
	k.Lock()
	snap, err := savestate.Capture(k)
	k.Unlock()
	if err != nil {
		return fmt.Errorf("capture %q: %w", name, err)
	}
	path := filepath.Join(simSaveDir, name+".state")
	if err := savestate.Save(path, snap); err != nil {
		return fmt.Errorf("save %q: %w", name, err)
	}
	return nil
}

func printReport(out io.Writer, rep *scenario.Report, quiet, showTimings bool) {
	fmt.Fprintf(out, "scenario %s: %d steps, t=%dns\n", rep.Scenario, rep.Steps, rep.NowNs)
	if quiet {
		return
	}
	for _, tr := range rep.Threads {
		line := fmt.Sprintf("  %-16s %-14s prio=%d/%d core=%d",
			tr.Name, tr.Status, tr.Priority, tr.NominalPriority, tr.Core)
		if tr.WakeReason != "" && tr.WakeReason != "none" {
			line += fmt.Sprintf(" wake=%s result=%s out=%d", tr.WakeReason, tr.WaitResult, tr.WaitOutput)
		}
		fmt.Fprintln(out, line)
	}
	if showTimings {
		for _, p := range rep.Timings.Phases {
			fmt.Fprintf(out, "  %s %.1f ms\n", p.Name, p.DurationMS)
		}
	}
}

func monitorCores(man *scenario.Manifest) int {
	if man.Cores > 0 {
		return man.Cores
	}
	return kernel.NumCores
}
